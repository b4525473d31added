package domain

import (
	"slices"
	"time"
)

// Rule actions. Percent actions read Percent, fixed actions read Amount in minor units.
const (
	RuleActionByPercent = "by_percent"
	RuleActionByFixed   = "by_fixed"
	RuleActionToPercent = "to_percent"
	RuleActionToFixed   = "to_fixed"
	RuleActionCartFixed = "cart_fixed"
)

// RuleScope limits where a price rule applies. Empty lists match everything.
type RuleScope struct {
	WebsiteIDs     []string
	CustomerGroups []int
	FromDate       time.Time
	ToDate         time.Time
	Active         bool
}

// Matches reports whether the scope covers the website and group at the given time.
func (s RuleScope) Matches(websiteID string, group int, at time.Time) bool {
	if !s.Active {
		return false
	}
	if len(s.WebsiteIDs) > 0 && !slices.Contains(s.WebsiteIDs, websiteID) {
		return false
	}
	if len(s.CustomerGroups) > 0 && !slices.Contains(s.CustomerGroups, group) {
		return false
	}
	if !s.FromDate.IsZero() && at.Before(s.FromDate) {
		return false
	}
	if !s.ToDate.IsZero() && !at.Before(s.ToDate) {
		return false
	}
	return true
}

// CatalogRule reprices individual products before they reach the cart.
type CatalogRule struct {
	ID          string
	Name        string
	Scope       RuleScope
	ProductIDs  []string
	Action      string
	Percent     float64
	Amount      int64
	Priority    int
	StopFurther bool
}

// AppliesTo reports whether the rule targets productID. No product list means every product.
func (r CatalogRule) AppliesTo(productID string) bool {
	return len(r.ProductIDs) == 0 || slices.Contains(r.ProductIDs, productID)
}

// CartRule discounts a whole cart when its condition holds.
type CartRule struct {
	ID           string
	Name         string
	Scope        RuleScope
	CouponCode   string
	Condition    string
	Action       string
	Percent      float64
	Amount       int64
	FreeShipping bool
	Priority     int
	StopFurther  bool
}
