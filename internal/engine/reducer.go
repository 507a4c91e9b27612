package engine

import (
	"fmt"

	"github.com/roach88/shopsync/internal/domain"
)

// InitialState returns the empty state: no products, no categories, no
// current category, empty cart, cart closed.
func InitialState() domain.State {
	return domain.State{
		Products:   []domain.Product{},
		Categories: []domain.Category{},
		Cart:       []domain.CartLineItem{},
	}
}

// Reduce applies an action to a state and returns the next state.
//
// Reduce is pure and total. It never writes to the slices of s; every
// changed collection is rebuilt. Unknown kinds return s unchanged.
//
// Cart uniqueness is kept by construction:
//   - AddToCart of a product already in the cart increments that line
//   - AddManyToCart merges by id, last occurrence wins
//   - SetCartQuantity below 1 removes the line
func Reduce(s domain.State, a Action) domain.State {
	switch a.Kind {
	case ActionSetProducts:
		s.Products = domain.CloneProducts(a.Products)
		return s

	case ActionSetCategories:
		s.Categories = domain.CloneCategories(a.Categories)
		return s

	case ActionSetCurrentCategory:
		s.CurrentCategory = a.ID
		return s

	case ActionAddToCart:
		qty := a.Quantity
		if qty < 1 {
			qty = 1
		}
		cart := domain.CloneCart(s.Cart)
		if i := indexOfLine(cart, a.Product.ID); i >= 0 {
			line := cart[i]
			line.PurchaseQuantity += qty
			cart[i] = line
		} else {
			cart = append(cart, domain.CartLineItem{Product: a.Product, PurchaseQuantity: qty})
		}
		s.Cart = cart
		s.CartOpen = true
		return s

	case ActionAddManyToCart:
		cart := domain.CloneCart(s.Cart)
		for _, item := range a.Items {
			if item.PurchaseQuantity < 1 {
				continue
			}
			if i := indexOfLine(cart, item.ID); i >= 0 {
				cart[i] = item
			} else {
				cart = append(cart, item)
			}
		}
		s.Cart = cart
		return s

	case ActionRemoveFromCart:
		s.Cart = removeLine(s.Cart, a.ID)
		s.CartOpen = len(s.Cart) > 0
		return s

	case ActionSetCartQuantity:
		if a.Quantity < 1 {
			return Reduce(s, RemoveFromCart(a.ID))
		}
		i := indexOfLine(s.Cart, a.ID)
		if i < 0 {
			return s
		}
		cart := domain.CloneCart(s.Cart)
		line := cart[i]
		line.PurchaseQuantity = a.Quantity
		cart[i] = line
		s.Cart = cart
		s.CartOpen = true
		return s

	case ActionClearCart:
		s.Cart = []domain.CartLineItem{}
		s.CartOpen = false
		return s

	case ActionToggleCartOpen:
		s.CartOpen = !s.CartOpen
		return s

	default:
		return s
	}
}

// CheckInvariants reports a cart that holds a duplicate product id or a
// line below quantity 1. Reduce never produces either; a non-nil result is
// a programming defect.
func CheckInvariants(s domain.State) error {
	seen := make(map[string]bool, len(s.Cart))
	for _, line := range s.Cart {
		if seen[line.ID] {
			return fmt.Errorf("cart invariant: duplicate line for product %q", line.ID)
		}
		seen[line.ID] = true
		if line.PurchaseQuantity < 1 {
			return fmt.Errorf("cart invariant: line %q has quantity %d", line.ID, line.PurchaseQuantity)
		}
	}
	return nil
}

func indexOfLine(cart []domain.CartLineItem, id string) int {
	for i, line := range cart {
		if line.ID == id {
			return i
		}
	}
	return -1
}

func removeLine(cart []domain.CartLineItem, id string) []domain.CartLineItem {
	out := make([]domain.CartLineItem, 0, len(cart))
	for _, line := range cart {
		if line.ID != id {
			out = append(out, line)
		}
	}
	return out
}
