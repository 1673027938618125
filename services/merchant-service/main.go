package main

import (
	"github.com/ashendes/paygate/internal/config"
	"github.com/ashendes/paygate/internal/gateway"
	"github.com/ashendes/paygate/internal/merchant"
	"github.com/ashendes/paygate/internal/patterns"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}
	cfg.ConfigureLogging()
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	client, err := gateway.New(cfg, merchant.ServiceName, log.StandardLogger())
	if err != nil {
		log.Fatal("Failed to create gateway client: ", err)
	}

	// charge, cancel and ship each fetch the payment first
	shop := merchant.NewService(client, cfg.Merchant.Currency, patterns.SlowServiceTimeout, log.StandardLogger())

	addr := ":" + cfg.Server.Port
	log.WithFields(log.Fields{
		"addr":        addr,
		"gateway_url": cfg.APIURL,
		"currency":    cfg.Merchant.Currency,
	}).Info("Merchant Service starting")

	if err := shop.Router().Run(addr); err != nil {
		log.Fatal("Failed to start server: ", err)
	}
}
