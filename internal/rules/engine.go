// Package rules evaluates catalog and cart price rules. Cart rule conditions are CEL
// expressions over the cart facts exposed by Facts.
package rules

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/hanko-field/quickorder/internal/domain"
	"github.com/hanko-field/quickorder/internal/platform/money"
	"github.com/hanko-field/quickorder/internal/repositories"
	"github.com/hanko-field/quickorder/internal/services"
)

// PriceSource resolves the base price catalog rules are applied to.
type PriceSource interface {
	GetByID(ctx context.Context, productID string) (domain.Product, error)
}

// EngineDeps wires the rule engine.
type EngineDeps struct {
	Rules       repositories.RuleRepository
	Prices      PriceSource
	Diagnostics services.Diagnostics
	Clock       func() time.Time
}

// Engine implements services.RuleEngine.
type Engine struct {
	rules  repositories.RuleRepository
	prices PriceSource
	diag   services.Diagnostics
	env    *cel.Env
	now    func() time.Time

	mu       sync.RWMutex
	programs map[string]cel.Program
}

var _ services.RuleEngine = (*Engine)(nil)

// NewEngine constructs a rule engine.
func NewEngine(deps EngineDeps) (*Engine, error) {
	if deps.Rules == nil {
		return nil, errors.New("rules: rule repository is required")
	}
	if deps.Prices == nil {
		return nil, errors.New("rules: price source is required")
	}
	env, err := newConditionEnv()
	if err != nil {
		return nil, fmt.Errorf("rules: build condition env: %w", err)
	}
	diag := deps.Diagnostics
	if diag == nil {
		diag = services.DiagnosticsFunc(func(context.Context, services.DiagnosticLevel, string, map[string]any) {})
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	return &Engine{
		now:      now,
		rules:    deps.Rules,
		prices:   deps.Prices,
		diag:     diag,
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// ApplyCatalogRule returns the product price after every matching catalog rule, in priority
// order, until a rule stops further processing.
func (e *Engine) ApplyCatalogRule(ctx context.Context, query services.CatalogRuleQuery) (int64, bool, error) {
	catalogRules, err := e.rules.CatalogRules(ctx, query.WebsiteID)
	if err != nil {
		return 0, false, fmt.Errorf("rules: load catalog rules: %w", err)
	}
	matching := make([]domain.CatalogRule, 0, len(catalogRules))
	for _, rule := range catalogRules {
		if rule.Scope.Matches(query.WebsiteID, query.CustomerGroupID, query.At) && rule.AppliesTo(query.ProductID) {
			matching = append(matching, rule)
		}
	}
	if len(matching) == 0 {
		return 0, false, nil
	}

	product, err := e.prices.GetByID(ctx, query.ProductID)
	if err != nil {
		return 0, false, fmt.Errorf("rules: load product %s: %w", query.ProductID, err)
	}
	sortCatalogRules(matching)

	price := product.EffectivePrice()
	for _, rule := range matching {
		price = applyCatalogAction(price, rule)
		if rule.StopFurther {
			break
		}
	}
	return price, true, nil
}

// RecomputeTotals applies matching cart rules and refreshes the cart totals.
func (e *Engine) RecomputeTotals(ctx context.Context, cart domain.VirtualCart) (domain.VirtualCart, error) {
	out := cart.WithItems(cart.Items)
	subtotal := out.Subtotal
	shipping := out.ShippingAmount

	cartRules, err := e.rules.CartRules(ctx, cart.WebsiteID)
	if err != nil {
		return domain.VirtualCart{}, fmt.Errorf("rules: load cart rules: %w", err)
	}
	slices.SortStableFunc(cartRules, func(a, b domain.CartRule) int {
		if a.Priority != b.Priority {
			return a.Priority - b.Priority
		}
		return strings.Compare(a.ID, b.ID)
	})

	facts := Facts(out)
	at := e.now()
	var (
		discount     int64
		freeShipping bool
		applied      []string
	)
	for _, rule := range cartRules {
		if !rule.Scope.Matches(cart.WebsiteID, cart.CustomerGroupID, at) {
			continue
		}
		if rule.CouponCode != "" && !strings.EqualFold(rule.CouponCode, strings.TrimSpace(cart.CouponCode)) {
			continue
		}
		ok, err := e.conditionHolds(rule.Condition, facts)
		if err != nil {
			e.diag.Log(ctx, services.LevelWarn, "rules.condition_invalid", map[string]any{
				"rule_id": rule.ID,
				"error":   err.Error(),
			})
			continue
		}
		if !ok {
			continue
		}
		discount += cartDiscount(rule, subtotal, subtotal-discount, out.TotalQuantity())
		if rule.FreeShipping {
			freeShipping = true
		}
		applied = append(applied, rule.ID)
		if rule.StopFurther {
			break
		}
	}

	discount = min(max(discount, 0), subtotal)
	if freeShipping {
		shipping = 0
	}
	return out.WithTotals(domain.CartTotals{
		Subtotal:             subtotal,
		SubtotalWithDiscount: subtotal - discount,
		ShippingAmount:       shipping,
		GrandTotal:           subtotal - discount + shipping,
		AppliedRuleIDs:       applied,
		CouponCode:           cart.CouponCode,
	}), nil
}

// Facts exposes the cart to rule conditions. Money facts are major units of the cart currency
// and sku/product_id describe the first line item.
func Facts(cart domain.VirtualCart) map[string]any {
	var country, region, postcode, sku, productID string
	if cart.ShippingAddress != nil {
		country = cart.ShippingAddress.CountryCode
		region = cart.ShippingAddress.RegionName
		postcode = cart.ShippingAddress.Postcode
	}
	skus := make([]string, 0, len(cart.Items))
	for _, item := range cart.Items {
		skus = append(skus, item.SKU)
	}
	if len(cart.Items) > 0 {
		sku = cart.Items[0].SKU
		productID = cart.Items[0].PricedProductID()
	}
	return map[string]any{
		"subtotal":        money.ToMajor(cart.Subtotal, cart.Currency),
		"qty":             int64(cart.TotalQuantity()),
		"items":           int64(cart.ItemCount()),
		"weight":          cart.WeightKg,
		"skus":            skus,
		"sku":             sku,
		"product_id":      productID,
		"country":         country,
		"region":          region,
		"postcode":        postcode,
		"coupon":          strings.TrimSpace(cart.CouponCode),
		"customer_group":  int64(cart.CustomerGroupID),
		"website":         cart.WebsiteID,
		"shipping_method": cart.ShippingMethodCode,
		"payment_method":  cart.PaymentMethodCode,
	}
}

func newConditionEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("subtotal", cel.DoubleType),
		cel.Variable("qty", cel.IntType),
		cel.Variable("items", cel.IntType),
		cel.Variable("weight", cel.DoubleType),
		cel.Variable("skus", cel.ListType(cel.StringType)),
		cel.Variable("sku", cel.StringType),
		cel.Variable("product_id", cel.StringType),
		cel.Variable("country", cel.StringType),
		cel.Variable("region", cel.StringType),
		cel.Variable("postcode", cel.StringType),
		cel.Variable("coupon", cel.StringType),
		cel.Variable("customer_group", cel.IntType),
		cel.Variable("website", cel.StringType),
		cel.Variable("shipping_method", cel.StringType),
		cel.Variable("payment_method", cel.StringType),
	)
}

func (e *Engine) conditionHolds(expr string, facts map[string]any) (bool, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return true, nil
	}
	program, err := e.program(expr)
	if err != nil {
		return false, err
	}
	out, _, err := program.Eval(facts)
	if err != nil {
		return false, fmt.Errorf("evaluate %q: %w", expr, err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("condition %q did not evaluate to bool", expr)
	}
	return result, nil
}

func (e *Engine) program(expr string) (cel.Program, error) {
	e.mu.RLock()
	program, ok := e.programs[expr]
	e.mu.RUnlock()
	if ok {
		return program, nil
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile %q: %w", expr, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("condition %q must return bool, got %s", expr, ast.OutputType())
	}
	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program %q: %w", expr, err)
	}

	e.mu.Lock()
	e.programs[expr] = program
	e.mu.Unlock()
	return program, nil
}

func sortCatalogRules(rules []domain.CatalogRule) {
	slices.SortStableFunc(rules, func(a, b domain.CatalogRule) int {
		if a.Priority != b.Priority {
			return a.Priority - b.Priority
		}
		return strings.Compare(a.ID, b.ID)
	})
}

func applyCatalogAction(price int64, rule domain.CatalogRule) int64 {
	var next int64
	switch rule.Action {
	case domain.RuleActionByPercent:
		next = price - percentOf(price, rule.Percent)
	case domain.RuleActionToPercent:
		next = percentOf(price, rule.Percent)
	case domain.RuleActionByFixed:
		next = price - rule.Amount
	case domain.RuleActionToFixed:
		next = min(rule.Amount, price)
	default:
		return price
	}
	return max(next, 0)
}

// cartDiscount prices one rule. Percentages apply to the undiscounted subtotal so stacked
// percentage rules add up; the result is capped at what is left to discount.
func cartDiscount(rule domain.CartRule, subtotal, remaining int64, qty int) int64 {
	if remaining <= 0 {
		return 0
	}
	var discount int64
	switch rule.Action {
	case domain.RuleActionByPercent:
		discount = percentOf(subtotal, rule.Percent)
	case domain.RuleActionByFixed:
		discount = rule.Amount * int64(max(qty, 1))
	case domain.RuleActionCartFixed:
		discount = rule.Amount
	}
	return min(max(discount, 0), remaining)
}

func percentOf(amount int64, percent float64) int64 {
	percent = min(max(percent, 0), 100)
	return int64(math.Round(float64(amount) * percent / 100))
}
