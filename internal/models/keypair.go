package models

import (
	"encoding/json"
	"fmt"
)

// Keypair describes the merchant's public key and enabled payment methods.
type Keypair struct {
	Meta

	PublicKey             string
	AvailablePaymentTypes []string
}

func (k *Keypair) ResourcePath() string { return "keypair" }
func (k *Keypair) Parent() Resource     { return nil }
func (k *Keypair) IsSingleton() bool    { return true }

func (k *Keypair) HandleResponse(body []byte) error {
	var resp struct {
		PublicKey             string   `json:"publicKey"`
		AvailablePaymentTypes []string `json:"availablePaymentTypes"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("failed to parse keypair response: %w", err)
	}
	k.PublicKey = resp.PublicKey
	k.AvailablePaymentTypes = resp.AvailablePaymentTypes
	return nil
}
