package models

import (
	"encoding/json"
	"fmt"
)

// Address is a postal address attached to a customer
type Address struct {
	Name    string `json:"name,omitempty"`
	Street  string `json:"street,omitempty"`
	State   string `json:"state,omitempty"`
	Zip     string `json:"zip,omitempty"`
	City    string `json:"city,omitempty"`
	Country string `json:"country,omitempty"`
}

func (a *Address) mergeFrom(o Address) {
	fillEmpty(&a.Name, o.Name)
	fillEmpty(&a.Street, o.Street)
	fillEmpty(&a.State, o.State)
	fillEmpty(&a.Zip, o.Zip)
	fillEmpty(&a.City, o.City)
	fillEmpty(&a.Country, o.Country)
}

// Customer is the only resource type with an explicit delete verb.
type Customer struct {
	Meta

	CustomerID      string  `json:"customerId,omitempty"`
	Firstname       string  `json:"firstname,omitempty"`
	Lastname        string  `json:"lastname,omitempty"`
	Salutation      string  `json:"salutation,omitempty"`
	BirthDate       string  `json:"birthDate,omitempty"`
	Company         string  `json:"company,omitempty"`
	Email           string  `json:"email,omitempty"`
	Phone           string  `json:"phone,omitempty"`
	Mobile          string  `json:"mobile,omitempty"`
	BillingAddress  Address `json:"billingAddress"`
	ShippingAddress Address `json:"shippingAddress"`
}

func NewCustomer(firstname, lastname string) *Customer {
	return &Customer{Firstname: firstname, Lastname: lastname}
}

func (c *Customer) ResourcePath() string { return "customers" }
func (c *Customer) Parent() Resource     { return nil }

func (c *Customer) Payload() interface{} {
	return c
}

func (c *Customer) HandleResponse(body []byte) error {
	var resp struct {
		ID string `json:"id"`
		Customer
	}
	resp.Customer = *c
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("failed to parse customer response: %w", err)
	}
	meta := c.Meta
	*c = resp.Customer
	c.Meta = meta
	if resp.ID != "" {
		c.SetID(resp.ID)
	}
	return nil
}

// MergeFrom fills every field that is empty on c with the value from fetched.
// Values already set on c take precedence.
func (c *Customer) MergeFrom(fetched *Customer) {
	if c.ID() == "" {
		c.SetID(fetched.ID())
	}
	fillEmpty(&c.CustomerID, fetched.CustomerID)
	fillEmpty(&c.Firstname, fetched.Firstname)
	fillEmpty(&c.Lastname, fetched.Lastname)
	fillEmpty(&c.Salutation, fetched.Salutation)
	fillEmpty(&c.BirthDate, fetched.BirthDate)
	fillEmpty(&c.Company, fetched.Company)
	fillEmpty(&c.Email, fetched.Email)
	fillEmpty(&c.Phone, fetched.Phone)
	fillEmpty(&c.Mobile, fetched.Mobile)
	c.BillingAddress.mergeFrom(fetched.BillingAddress)
	c.ShippingAddress.mergeFrom(fetched.ShippingAddress)
}

func fillEmpty(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}
