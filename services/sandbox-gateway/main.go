package main

import (
	"github.com/ashendes/paygate/internal/config"
	"github.com/ashendes/paygate/internal/sandbox"
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

	gateway := sandbox.NewServer(sandbox.Options{
		PrivateKey: cfg.PrivateKey,
		PublicKey:  cfg.Sandbox.PublicKey,
		Codes:      cfg.CodeTable(),
	})
	gateway.Chaos().SetFailureRate(cfg.Sandbox.FailureRate)
	gateway.Chaos().SetDelay(cfg.Sandbox.SlowMin, cfg.Sandbox.SlowMax)
	gateway.Chaos().SetEnabled(false)
	gateway.Chaos().SetSlowMode(false)

	addr := ":" + cfg.Sandbox.Port
	log.WithFields(log.Fields{
		"addr":         addr,
		"key_required": cfg.PrivateKey != "",
		"failure_rate": cfg.Sandbox.FailureRate,
	}).Info("Sandbox gateway starting")

	if err := gateway.Router().Run(addr); err != nil {
		log.Fatal("Failed to start server: ", err)
	}
}
