package models

// Shipment reports goods as shipped. Invoice-based methods require an
// invoice id; the gateway enforces that and answers with an error.
type Shipment struct {
	Transaction
}

func NewShipment(invoiceID, orderID string) *Shipment {
	s := &Shipment{}
	s.InvoiceID = invoiceID
	s.OrderID = orderID
	return s
}

func (s *Shipment) ResourcePath() string { return "shipments" }
func (s *Shipment) Parent() Resource     { return s.paymentParent() }

type shipmentPayload struct {
	InvoiceID string `json:"invoiceId,omitempty"`
	OrderID   string `json:"orderId,omitempty"`
}

func (s *Shipment) Payload() interface{} {
	return shipmentPayload{InvoiceID: s.InvoiceID, OrderID: s.OrderID}
}

func (s *Shipment) HandleResponse(body []byte) error {
	resp, err := decodeTransaction(body)
	if err != nil {
		return err
	}
	s.apply(resp)
	return nil
}
