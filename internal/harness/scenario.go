package harness

import (
	"bytes"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/roach88/shopsync/internal/domain"
	"github.com/roach88/shopsync/internal/store"
	"github.com/roach88/shopsync/internal/syncer"
)

// Scenario is one storefront session run against the real container,
// orchestrator and an in-memory SQLite cache.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description"`

	// Seed is written to the cache before mounting, as if left by an
	// earlier session.
	Seed Seed `yaml:"seed,omitempty"`

	// Remote configures the stub catalog source. A resource left out is
	// unreachable.
	Remote Remote `yaml:"remote,omitempty"`

	// Steps are dispatched in order once hydration has finished.
	Steps []Step `yaml:"steps,omitempty"`

	// Expect is checked after every cache write has been flushed.
	Expect *Expect `yaml:"expect,omitempty"`

	// Assertions are evaluated against the step trace.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Seed holds records preloaded into the cache.
type Seed struct {
	Products   []ProductFixture  `yaml:"products,omitempty"`
	Categories []CategoryFixture `yaml:"categories,omitempty"`
	Cart       []CartFixture     `yaml:"cart,omitempty"`
}

// Remote holds the stub source responses.
type Remote struct {
	Products   *RemoteList[ProductFixture]  `yaml:"products,omitempty"`
	Categories *RemoteList[CategoryFixture] `yaml:"categories,omitempty"`
}

// RemoteList is either a successful response or a failure message.
type RemoteList[T any] struct {
	Items []T    `yaml:"items,omitempty"`
	Fail  string `yaml:"fail,omitempty"`
}

// ProductFixture is the YAML form of domain.Product. Price is a decimal
// string so scenarios never go through floats.
type ProductFixture struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Price       string `yaml:"price"`
	Image       string `yaml:"image,omitempty"`
	Quantity    int    `yaml:"quantity,omitempty"`
	Category    string `yaml:"category,omitempty"`
}

// CategoryFixture is the YAML form of domain.Category.
type CategoryFixture struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// CartFixture is a cached cart line.
type CartFixture struct {
	ProductFixture `yaml:",inline"`
	Qty            int `yaml:"qty"`
}

// Step is one user interaction.
type Step struct {
	// Action is one of the Step* constants.
	Action string `yaml:"action"`

	// ID is the product or category id the action targets.
	ID string `yaml:"id,omitempty"`

	// Qty is the quantity for add_to_cart, set_quantity and update_quantity.
	Qty int `yaml:"qty,omitempty"`
}

// Step actions.
const (
	StepSelectCategory = "select_category"
	StepAddToCart      = "add_to_cart"
	StepSetQuantity    = "set_quantity"
	StepUpdateQuantity = "update_quantity"
	StepRemoveFromCart = "remove_from_cart"
	StepClearCart      = "clear_cart"
	StepToggleCart     = "toggle_cart"
)

// Expect describes the settled session. Nil fields are not checked.
type Expect struct {
	// Products lists catalog ids in state order.
	Products []string `yaml:"products,omitempty"`

	// Visible lists the ids shown for the current category.
	Visible []string `yaml:"visible,omitempty"`

	// Categories lists category ids in state order.
	Categories []string `yaml:"categories,omitempty"`

	CurrentCategory *string `yaml:"current_category,omitempty"`

	// Cart lists lines in state order.
	Cart []LineExpect `yaml:"cart,omitempty"`

	CartOpen *bool `yaml:"cart_open,omitempty"`

	// Total is the cart total as a decimal string.
	Total string `yaml:"total,omitempty"`

	// Cache maps a collection name to the ids it must hold, in id order.
	Cache map[string][]string `yaml:"cache,omitempty"`

	// Hydration maps a domain name to how it must have been hydrated.
	Hydration map[string]HydrationExpect `yaml:"hydration,omitempty"`
}

// LineExpect is an expected cart line.
type LineExpect struct {
	ID  string `yaml:"id"`
	Qty int    `yaml:"qty"`
}

// HydrationExpect is an expected domain status.
type HydrationExpect struct {
	Phase  string `yaml:"phase"`
	Source string `yaml:"source"`
}

// Assertion validates the step trace.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": an action kind appears, optionally for ID
	// - "trace_order": action kinds appear in order
	// - "trace_count": an action kind appears exactly Count times
	Type string `yaml:"type"`

	// Action is the action kind, e.g. ADD_TO_CART.
	Action string `yaml:"action,omitempty"`

	// ID narrows trace_contains to one target id.
	ID string `yaml:"id,omitempty"`

	// Count is the expected number of occurrences (used by trace_count).
	Count int `yaml:"count,omitempty"`

	// Actions is the expected action order (used by trace_order).
	Actions []string `yaml:"actions,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or fails validation.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 && s.Expect == nil && len(s.Assertions) == 0 {
		return fmt.Errorf("at least one of steps, expect or assertions is required")
	}

	if err := validateFixtures(s); err != nil {
		return err
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}

	if s.Expect != nil {
		if err := validateExpect(s.Expect); err != nil {
			return err
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateFixtures converts every fixture once so a bad price or a missing
// id is reported at load time rather than mid-run.
func validateFixtures(s *Scenario) error {
	for i, p := range s.Seed.Products {
		if _, err := p.product(); err != nil {
			return fmt.Errorf("seed.products[%d]: %w", i, err)
		}
	}
	for i, c := range s.Seed.Categories {
		if _, err := c.category(); err != nil {
			return fmt.Errorf("seed.categories[%d]: %w", i, err)
		}
	}
	for i, l := range s.Seed.Cart {
		if _, err := l.line(); err != nil {
			return fmt.Errorf("seed.cart[%d]: %w", i, err)
		}
	}
	if r := s.Remote.Products; r != nil {
		for i, p := range r.Items {
			if _, err := p.product(); err != nil {
				return fmt.Errorf("remote.products.items[%d]: %w", i, err)
			}
		}
	}
	if r := s.Remote.Categories; r != nil {
		for i, c := range r.Items {
			if _, err := c.category(); err != nil {
				return fmt.Errorf("remote.categories.items[%d]: %w", i, err)
			}
		}
	}
	return nil
}

func validateStep(index int, step Step) error {
	switch step.Action {
	case StepAddToCart, StepSetQuantity, StepUpdateQuantity, StepRemoveFromCart:
		if step.ID == "" {
			return fmt.Errorf("steps[%d]: id is required for %s", index, step.Action)
		}
	case StepSelectCategory, StepClearCart, StepToggleCart:
	case "":
		return fmt.Errorf("steps[%d]: action is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown action %q", index, step.Action)
	}
	return nil
}

func validateExpect(e *Expect) error {
	for coll := range e.Cache {
		if !store.ValidCollection(coll) {
			return fmt.Errorf("expect.cache: unknown collection %q", coll)
		}
	}
	for name, h := range e.Hydration {
		switch name {
		case syncer.DomainProducts, syncer.DomainCategories, syncer.DomainCart:
		default:
			return fmt.Errorf("expect.hydration: unknown domain %q", name)
		}
		switch h.Source {
		case syncer.SourceRemote, syncer.SourceCache, syncer.SourceNone:
		default:
			return fmt.Errorf("expect.hydration.%s: unknown source %q", name, h.Source)
		}
		if h.Phase != syncer.PhaseResolved.String() && h.Phase != syncer.PhaseFailed.String() {
			return fmt.Errorf("expect.hydration.%s: phase must be resolved or failed, got %q", name, h.Phase)
		}
	}
	if e.Total != "" {
		if _, err := decimal.NewFromString(e.Total); err != nil {
			return fmt.Errorf("expect.total: %w", err)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func (f ProductFixture) product() (domain.Product, error) {
	price, err := decimal.NewFromString(f.Price)
	if err != nil {
		return domain.Product{}, fmt.Errorf("price %q: %w", f.Price, err)
	}
	p := domain.Product{
		ID:          f.ID,
		Name:        f.Name,
		Description: f.Description,
		Price:       price,
		Image:       f.Image,
		Quantity:    f.Quantity,
		Category:    domain.CategoryRef(f.Category),
	}
	if err := domain.Validate(p); err != nil {
		return domain.Product{}, err
	}
	return p, nil
}

func (f CategoryFixture) category() (domain.Category, error) {
	c := domain.Category{ID: f.ID, Name: f.Name}
	if err := domain.Validate(c); err != nil {
		return domain.Category{}, err
	}
	return c, nil
}

func (f CartFixture) line() (domain.CartLineItem, error) {
	p, err := f.product()
	if err != nil {
		return domain.CartLineItem{}, err
	}
	l := domain.CartLineItem{Product: p, PurchaseQuantity: f.Qty}
	if err := domain.Validate(l); err != nil {
		return domain.CartLineItem{}, err
	}
	return l, nil
}

// convertAll maps fixtures to domain values. Fixtures were validated at
// load, but scenarios built in code skip LoadScenario.
func convertAll[F any, T any](fixtures []F, convert func(F) (T, error)) ([]T, error) {
	out := make([]T, 0, len(fixtures))
	for i, f := range fixtures {
		v, err := convert(f)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}
