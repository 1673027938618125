package sandbox

import (
	"net/http"

	"github.com/ashendes/paygate/internal/apierr"
	"github.com/ashendes/paygate/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// Basket is a stored basket in its wire shape
type Basket struct {
	ID                  string              `json:"id"`
	AmountTotalGross    decimal.Decimal     `json:"amountTotalGross"`
	AmountTotalVat      decimal.Decimal     `json:"amountTotalVat"`
	AmountTotalDiscount decimal.Decimal     `json:"amountTotalDiscount"`
	CurrencyCode        string              `json:"currencyCode"`
	OrderID             string              `json:"orderId"`
	Note                string              `json:"note,omitempty"`
	BasketItems         []models.BasketItem `json:"basketItems"`
}

func (b *Basket) clone() *Basket {
	out := *b
	out.BasketItems = append([]models.BasketItem(nil), b.BasketItems...)
	return &out
}

// validateBasket checks every item and fills in gross amounts the client
// left out. A stated total must match the sum of the items.
func validateBasket(b *Basket) *Rejection {
	if len(b.BasketItems) == 0 {
		return reject(http.StatusBadRequest, apierr.BasketItemInvalid, "Basket has no items")
	}
	sum := decimal.Zero
	for i := range b.BasketItems {
		item := &b.BasketItems[i]
		switch {
		case item.BasketItemReferenceID == "":
			return reject(http.StatusBadRequest, apierr.BasketItemInvalid, "Basket item %d has no reference id", i)
		case item.Title == "":
			return reject(http.StatusBadRequest, apierr.BasketItemInvalid, "Basket item %s has no title", item.BasketItemReferenceID)
		case item.Quantity < 1:
			return reject(http.StatusBadRequest, apierr.BasketItemInvalid, "Basket item %s has quantity %d", item.BasketItemReferenceID, item.Quantity)
		case item.AmountPerUnit.IsNegative():
			return reject(http.StatusBadRequest, apierr.BasketItemInvalid, "Basket item %s has a negative unit amount", item.BasketItemReferenceID)
		}
		if item.AmountGross.IsZero() {
			item.AmountGross = item.AmountPerUnit.Mul(decimal.NewFromInt(int64(item.Quantity)))
		}
		sum = sum.Add(item.AmountGross)
	}
	if b.AmountTotalGross.IsZero() {
		b.AmountTotalGross = sum
	}
	if !b.AmountTotalGross.Equal(sum) {
		return &Rejection{Status: http.StatusBadRequest, Code: CodeInvalidRequest,
			Message: "amountTotalGross " + b.AmountTotalGross.String() + " does not match the items sum " + sum.String()}
	}
	return nil
}

// CreateBasket validates and stores a basket
func (l *Ledger) CreateBasket(b Basket) (*Basket, *Rejection) {
	if rej := validateBasket(&b); rej != nil {
		return nil, rej
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	b.ID = newID(models.TagBasket)
	l.baskets[b.ID] = &b
	return b.clone(), nil
}

// Basket returns a stored basket
func (l *Ledger) Basket(id string) (*Basket, *Rejection) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	b, ok := l.baskets[id]
	if !ok {
		return nil, &Rejection{Status: http.StatusNotFound, Code: CodeNotFound, Message: "basket not found"}
	}
	return b.clone(), nil
}

// UpdateBasket replaces a stored basket
func (l *Ledger) UpdateBasket(id string, b Basket) (*Basket, *Rejection) {
	if rej := validateBasket(&b); rej != nil {
		return nil, rej
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.baskets[id]; !ok {
		return nil, &Rejection{Status: http.StatusNotFound, Code: CodeNotFound, Message: "basket not found"}
	}
	b.ID = id
	l.baskets[id] = &b
	return b.clone(), nil
}

// requireBasket is called with the ledger locked.
func (l *Ledger) requireBasket(kind models.PaymentKind, basketID string) *Rejection {
	if basketID == "" {
		if kind.Supports(models.NeedsBasket) {
			return &Rejection{Status: http.StatusBadRequest, Code: CodeInvalidRequest,
				Message: "Payment type " + string(kind) + " requires a basket"}
		}
		return nil
	}
	if _, ok := l.baskets[basketID]; !ok {
		return &Rejection{Status: http.StatusNotFound, Code: CodeNotFound, Message: "basket " + basketID + " not found"}
	}
	return nil
}

func (s *Server) createBasket(c *gin.Context) {
	var b Basket
	if !s.bind(c, &b) {
		return
	}
	stored, rej := s.ledger.CreateBasket(b)
	if rej != nil {
		s.fail(c, rej)
		return
	}
	c.JSON(http.StatusOK, stored)
}

func (s *Server) getBasket(c *gin.Context) {
	b, rej := s.ledger.Basket(c.Param("basketId"))
	if rej != nil {
		s.fail(c, rej)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (s *Server) updateBasket(c *gin.Context) {
	var b Basket
	if !s.bind(c, &b) {
		return
	}
	stored, rej := s.ledger.UpdateBasket(c.Param("basketId"), b)
	if rej != nil {
		s.fail(c, rej)
		return
	}
	c.JSON(http.StatusOK, stored)
}
