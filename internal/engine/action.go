package engine

import (
	"fmt"

	"github.com/roach88/shopsync/internal/domain"
)

// ActionKind names a state transition.
type ActionKind string

const (
	ActionSetProducts        ActionKind = "SET_PRODUCTS"
	ActionSetCategories      ActionKind = "SET_CATEGORIES"
	ActionSetCurrentCategory ActionKind = "SET_CURRENT_CATEGORY"
	ActionAddToCart          ActionKind = "ADD_TO_CART"
	ActionAddManyToCart      ActionKind = "ADD_MULTIPLE_TO_CART"
	ActionRemoveFromCart     ActionKind = "REMOVE_FROM_CART"
	ActionSetCartQuantity    ActionKind = "UPDATE_CART_QUANTITY"
	ActionClearCart          ActionKind = "CLEAR_CART"
	ActionToggleCartOpen     ActionKind = "TOGGLE_CART"
)

// Action is a request to transition state. Only the fields relevant to Kind
// are set; use the constructors below rather than building literals.
type Action struct {
	Kind       ActionKind
	Products   []domain.Product
	Categories []domain.Category
	Items      []domain.CartLineItem
	Product    domain.Product
	ID         string
	Quantity   int
}

// SetProducts replaces the catalog.
func SetProducts(products []domain.Product) Action {
	return Action{Kind: ActionSetProducts, Products: domain.CloneProducts(products)}
}

// SetCategories replaces the category list.
func SetCategories(categories []domain.Category) Action {
	return Action{Kind: ActionSetCategories, Categories: domain.CloneCategories(categories)}
}

// SetCurrentCategory selects a category; an empty id clears the selection.
func SetCurrentCategory(id string) Action {
	return Action{Kind: ActionSetCurrentCategory, ID: id}
}

// AddToCart adds qty units of a product. A qty below 1 adds one unit.
func AddToCart(product domain.Product, qty int) Action {
	if qty < 1 {
		qty = 1
	}
	return Action{Kind: ActionAddToCart, Product: product, ID: product.ID, Quantity: qty}
}

// AddManyToCart merges lines into the cart. Used for cart hydration.
func AddManyToCart(items []domain.CartLineItem) Action {
	return Action{Kind: ActionAddManyToCart, Items: domain.CloneCart(items)}
}

// RemoveFromCart drops the line for a product id.
func RemoveFromCart(id string) Action {
	return Action{Kind: ActionRemoveFromCart, ID: id}
}

// SetCartQuantity replaces the quantity of an existing line.
// Callers handling user input should prefer UpdateCartQuantity.
func SetCartQuantity(id string, qty int) Action {
	return Action{Kind: ActionSetCartQuantity, ID: id, Quantity: qty}
}

// UpdateCartQuantity routes a quantity change: zero or less removes the
// line, anything else sets it.
func UpdateCartQuantity(id string, qty int) Action {
	if qty <= 0 {
		return RemoveFromCart(id)
	}
	return SetCartQuantity(id, qty)
}

// ClearCart empties the cart.
func ClearCart() Action {
	return Action{Kind: ActionClearCart}
}

// ToggleCartOpen flips the cart drawer.
func ToggleCartOpen() Action {
	return Action{Kind: ActionToggleCartOpen}
}

// IsCartMutation reports whether the action changes cart lines.
func (a Action) IsCartMutation() bool {
	switch a.Kind {
	case ActionAddToCart, ActionRemoveFromCart, ActionSetCartQuantity, ActionClearCart:
		return true
	}
	return false
}

// String renders the action for logs.
func (a Action) String() string {
	switch a.Kind {
	case ActionSetProducts:
		return fmt.Sprintf("%s(%d)", a.Kind, len(a.Products))
	case ActionSetCategories:
		return fmt.Sprintf("%s(%d)", a.Kind, len(a.Categories))
	case ActionAddManyToCart:
		return fmt.Sprintf("%s(%d)", a.Kind, len(a.Items))
	case ActionSetCurrentCategory, ActionRemoveFromCart:
		return fmt.Sprintf("%s(%s)", a.Kind, a.ID)
	case ActionAddToCart, ActionSetCartQuantity:
		return fmt.Sprintf("%s(%s, %d)", a.Kind, a.ID, a.Quantity)
	default:
		return string(a.Kind)
	}
}
