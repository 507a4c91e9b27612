package domain

import "github.com/shopspring/decimal"

// State is the aggregate application state owned by the engine container.
//
// Values are treated as immutable: every transition builds new slices, and
// State.Clone is used whenever a state leaves the container.
type State struct {
	Products        []Product      `json:"products"`
	Categories      []Category     `json:"categories"`
	CurrentCategory string         `json:"currentCategory,omitempty"`
	Cart            []CartLineItem `json:"cart"`
	CartOpen        bool           `json:"cartOpen"`
}

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	return State{
		Products:        CloneProducts(s.Products),
		Categories:      CloneCategories(s.Categories),
		CurrentCategory: s.CurrentCategory,
		Cart:            CloneCart(s.Cart),
		CartOpen:        s.CartOpen,
	}
}

// FilteredProducts returns the products of the current category, or every
// product when no category is selected.
func (s State) FilteredProducts() []Product {
	if s.CurrentCategory == "" {
		return CloneProducts(s.Products)
	}
	out := make([]Product, 0, len(s.Products))
	for _, p := range s.Products {
		if string(p.Category) == s.CurrentCategory {
			out = append(out, p)
		}
	}
	return out
}

// Product looks up a catalog product by id.
func (s State) Product(id string) (Product, bool) {
	for _, p := range s.Products {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}

// CartItem looks up the cart line for a product id.
func (s State) CartItem(id string) (CartLineItem, bool) {
	for _, l := range s.Cart {
		if l.ID == id {
			return l, true
		}
	}
	return CartLineItem{}, false
}

// CartTotal sums every line subtotal, rounded to cents.
func (s State) CartTotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range s.Cart {
		total = total.Add(l.Subtotal())
	}
	return total.Round(2)
}

// CartCount returns the number of units in the cart.
func (s State) CartCount() int {
	n := 0
	for _, l := range s.Cart {
		n += l.PurchaseQuantity
	}
	return n
}

// CloneProducts copies a product slice. The result is never nil.
func CloneProducts(in []Product) []Product {
	out := make([]Product, len(in))
	copy(out, in)
	return out
}

// CloneCategories copies a category slice. The result is never nil.
func CloneCategories(in []Category) []Category {
	out := make([]Category, len(in))
	copy(out, in)
	return out
}

// CloneCart copies a cart slice. The result is never nil.
func CloneCart(in []CartLineItem) []CartLineItem {
	out := make([]CartLineItem, len(in))
	copy(out, in)
	return out
}

// Pluralize returns name, or name with an "s" appended when count != 1.
func Pluralize(name string, count int) string {
	if count == 1 {
		return name
	}
	return name + "s"
}
