package apierr

// Symbol is a gateway-independent name for a remote error condition.
// Wire values belong to the remote API and are resolved through a CodeTable.
type Symbol string

const (
	AlreadyCancelled                Symbol = "ALREADY_CANCELLED"
	AlreadyCharged                  Symbol = "ALREADY_CHARGED"
	AlreadyChargedBack              Symbol = "ALREADY_CHARGED_BACK"
	TransactionCancelNotAllowed     Symbol = "TRANSACTION_CANCEL_NOT_ALLOWED"
	TransactionAuthorizeNotAllowed  Symbol = "TRANSACTION_AUTHORIZE_NOT_ALLOWED"
	TransactionChargeNotAllowed     Symbol = "TRANSACTION_CHARGE_NOT_ALLOWED"
	CustomerIDAlreadyExists         Symbol = "CUSTOMER_ID_ALREADY_EXISTS"
	CustomerIDRequired              Symbol = "CUSTOMER_ID_REQUIRED"
	InvoiceIDRequired               Symbol = "INVOICE_ID_REQUIRED"
	BasketItemInvalid               Symbol = "BASKET_ITEM_INVALID"
	ChargedAmountHigherThanExpected Symbol = "CHARGED_AMOUNT_HIGHER_THAN_EXPECTED"
	PaymentNotFound                 Symbol = "PAYMENT_NOT_FOUND"
)

// CodeTable maps symbols to wire codes and back.
type CodeTable struct {
	toWire   map[Symbol]string
	toSymbol map[string]Symbol
}

// DefaultWireCodes returns the gateway's published codes for every known symbol.
func DefaultWireCodes() map[Symbol]string {
	return map[Symbol]string{
		AlreadyCancelled:                "API.340.100.014",
		AlreadyCharged:                  "API.340.100.015",
		TransactionCancelNotAllowed:     "API.340.100.017",
		AlreadyChargedBack:              "API.340.100.024",
		CustomerIDAlreadyExists:         "API.410.200.010",
		CustomerIDRequired:              "API.320.200.138",
		InvoiceIDRequired:               "API.360.000.012",
		BasketItemInvalid:               "API.600.410.024",
		ChargedAmountHigherThanExpected: "API.330.100.007",
		PaymentNotFound:                 "API.310.100.003",
		TransactionAuthorizeNotAllowed:  "API.330.000.004",
		TransactionChargeNotAllowed:     "API.330.000.005",
	}
}

// NewCodeTable builds a table from the defaults with overrides applied.
func NewCodeTable(overrides map[Symbol]string) *CodeTable {
	t := &CodeTable{
		toWire:   DefaultWireCodes(),
		toSymbol: make(map[string]Symbol),
	}
	for sym, code := range overrides {
		if code != "" {
			t.toWire[sym] = code
		}
	}
	for sym, code := range t.toWire {
		t.toSymbol[code] = sym
	}
	return t
}

// Symbol resolves a wire code, returning "" for codes the table does not know.
func (t *CodeTable) Symbol(code string) Symbol {
	if t == nil || code == "" {
		return ""
	}
	return t.toSymbol[code]
}

// Code returns the wire code configured for a symbol.
func (t *CodeTable) Code(sym Symbol) string {
	if t == nil {
		return DefaultWireCodes()[sym]
	}
	return t.toWire[sym]
}
