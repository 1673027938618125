package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ashendes/paygate/internal/apierr"
)

// PaymentKind names a payment method; it doubles as the resource path suffix.
type PaymentKind string

const (
	KindCard                      PaymentKind = "card"
	KindSepaDirectDebit           PaymentKind = "sepa-direct-debit"
	KindSepaDirectDebitGuaranteed PaymentKind = "sepa-direct-debit-guaranteed"
	KindInvoice                   PaymentKind = "invoice"
	KindInvoiceGuaranteed         PaymentKind = "invoice-guaranteed"
	KindInvoiceFactoring          PaymentKind = "invoice-factoring"
	KindPaypal                    PaymentKind = "paypal"
	KindSofort                    PaymentKind = "sofort"
	KindGiropay                   PaymentKind = "giropay"
	KindIdeal                     PaymentKind = "ideal"
	KindPrepayment                PaymentKind = "prepayment"
	KindPrzelewy24                PaymentKind = "przelewy24"
	KindPIS                       PaymentKind = "pis"
	KindBancontact                PaymentKind = "bancontact"
	KindWallet                    PaymentKind = "wallet"
)

// Capability is a bit set of the operations a payment method supports
type Capability uint8

const (
	CanAuthorize Capability = 1 << iota
	CanDirectCharge
	CanPayout
	// ShipmentNeedsInvoiceID marks methods whose shipments must carry an invoice id
	ShipmentNeedsInvoiceID
	// NeedsBasket marks methods whose charges must reference a basket
	NeedsBasket
)

type kindInfo struct {
	tag  string
	caps Capability
}

var kinds = map[PaymentKind]kindInfo{
	KindCard:                      {"crd", CanAuthorize | CanDirectCharge | CanPayout},
	KindSepaDirectDebit:           {"sdd", CanDirectCharge | CanPayout},
	KindSepaDirectDebitGuaranteed: {"ddg", CanDirectCharge | CanPayout},
	KindInvoice:                   {"ivc", CanDirectCharge},
	KindInvoiceGuaranteed:         {"ivg", CanDirectCharge | ShipmentNeedsInvoiceID},
	KindInvoiceFactoring:          {"ivf", CanDirectCharge | ShipmentNeedsInvoiceID | NeedsBasket},
	KindPaypal:                    {"ppl", CanAuthorize | CanDirectCharge},
	KindSofort:                    {"sft", CanDirectCharge},
	KindGiropay:                   {"gro", CanDirectCharge},
	KindIdeal:                     {"idl", CanDirectCharge},
	KindPrepayment:                {"ppy", CanDirectCharge},
	KindPrzelewy24:                {"p24", CanDirectCharge},
	KindPIS:                       {"pis", CanDirectCharge},
	KindBancontact:                {"bct", CanDirectCharge},
	KindWallet:                    {"wlt", CanAuthorize | CanDirectCharge},
}

// Kinds lists every known payment method in name order
func Kinds() []PaymentKind {
	out := make([]PaymentKind, 0, len(kinds))
	for k := range kinds {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Tag is the three-letter marker used in ids of this kind
func (k PaymentKind) Tag() string { return kinds[k].tag }

// Valid reports whether k is a known payment method
func (k PaymentKind) Valid() bool {
	_, ok := kinds[k]
	return ok
}

// Supports reports whether the method declares every capability in c.
func (k PaymentKind) Supports(c Capability) bool {
	info, ok := kinds[k]
	return ok && info.caps&c == c
}

// KindFromID resolves "s-crd-123" style ids to their payment kind.
func KindFromID(id string) (PaymentKind, error) {
	parts := strings.SplitN(id, "-", 3)
	if len(parts) != 3 || (parts[0] != "s" && parts[0] != "p") || parts[2] == "" {
		return "", apierr.Usage("payment type", "Invalid payment type!")
	}
	for kind, info := range kinds {
		if info.tag == parts[1] {
			return kind, nil
		}
	}
	return "", apierr.Usage("payment type", "Invalid payment type!")
}

// PaymentType is a created payment method instance (a card, an IBAN, ...).
type PaymentType struct {
	Meta

	Kind   PaymentKind
	Fields map[string]string
}

// NewPaymentType prepares a payment type of the given kind
func NewPaymentType(kind PaymentKind, fields map[string]string) *PaymentType {
	if fields == nil {
		fields = make(map[string]string)
	}
	return &PaymentType{Kind: kind, Fields: fields}
}

// NewCard validates the expiry date and prepares a card.
func NewCard(number, expiryDate string) (*PaymentType, error) {
	expiry, err := NormalizeExpiryDate(expiryDate)
	if err != nil {
		return nil, err
	}
	return NewPaymentType(KindCard, map[string]string{
		"number":     number,
		"expiryDate": expiry,
	}), nil
}

// NewSepaDirectDebit prepares a SEPA mandate for iban
func NewSepaDirectDebit(iban string) *PaymentType {
	return NewPaymentType(KindSepaDirectDebit, map[string]string{"iban": iban})
}

// NormalizeExpiryDate accepts M/YY, MM/YY or MM/YYYY and returns MM/YYYY.
func NormalizeExpiryDate(v string) (string, error) {
	invalid := apierr.Usage("card", "Invalid expiry date!")
	parts := strings.Split(v, "/")
	if len(parts) != 2 || !isDigits(parts[0]) || !isDigits(parts[1]) || len(parts[1]) > 4 || len(parts[1]) < 2 {
		return "", invalid
	}
	month, _ := strconv.Atoi(parts[0])
	year, _ := strconv.Atoi(parts[1])
	if month < 1 || month > 12 {
		return "", invalid
	}
	if len(parts[1]) == 2 {
		year += 2000
	}
	return fmt.Sprintf("%02d/%04d", month, year), nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (t *PaymentType) ResourcePath() string { return "types/" + string(t.Kind) }
func (t *PaymentType) Parent() Resource     { return nil }

func (t *PaymentType) Payload() interface{} {
	return t.Fields
}

func (t *PaymentType) HandleResponse(body []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return fmt.Errorf("failed to parse payment type response: %w", err)
	}
	if t.Fields == nil {
		t.Fields = make(map[string]string)
	}
	for k, v := range raw {
		if k == "id" {
			continue
		}
		if s, ok := v.(string); ok {
			t.Fields[k] = s
		}
	}
	if id, ok := raw["id"].(string); ok && id != "" {
		t.SetID(id)
	}
	return nil
}
