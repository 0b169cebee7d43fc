package cart

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrInvalidProduct  = errors.New("product_id is required")
)

// CartLine is one product selection in the customer's cart.
type CartLine struct {
	ProductID string          `json:"productId"`
	ShopID    string          `json:"shopId"`
	ShopName  string          `json:"shopName"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	ItemTotal decimal.Decimal `json:"itemTotal"`
}

// Total returns the line total, deriving it from the unit price when the cart did not supply one.
func (l CartLine) Total() decimal.Decimal {
	if !l.ItemTotal.IsZero() {
		return l.ItemTotal
	}
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

func (l CartLine) validate() error {
	if l.ProductID == "" {
		return ErrInvalidProduct
	}
	if l.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	return nil
}

// ShopOrderGroup holds the lines of one shop for a single checkout attempt.
type ShopOrderGroup struct {
	ShopID      string          `json:"shopId"`
	ShopName    string          `json:"shopName"`
	Lines       []CartLine      `json:"lines"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	ShippingFee decimal.Decimal `json:"shippingFee"`
	Total       decimal.Decimal `json:"total"`
}

func (g *ShopOrderGroup) add(line CartLine) {
	g.Lines = append(g.Lines, line)
	g.Subtotal = g.Subtotal.Add(line.Total())
	g.Total = g.Subtotal.Add(g.ShippingFee)
}

// ProductIDs lists the products in the group, in cart order.
func (g *ShopOrderGroup) ProductIDs() []string {
	ids := make([]string, len(g.Lines))
	for i, l := range g.Lines {
		ids[i] = l.ProductID
	}
	return ids
}
