package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/hanko-field/quickorder/internal/domain"
	pfirestore "github.com/hanko-field/quickorder/internal/platform/firestore"
	"github.com/hanko-field/quickorder/internal/repositories"
)

const (
	catalogRulesCollection = "catalog_rules"
	cartRulesCollection    = "cart_rules"
)

type ruleScopeDocument struct {
	WebsiteIDs     []string  `firestore:"websiteIds,omitempty"`
	CustomerGroups []int     `firestore:"customerGroups,omitempty"`
	FromDate       time.Time `firestore:"fromDate,omitempty"`
	ToDate         time.Time `firestore:"toDate,omitempty"`
	Active         bool      `firestore:"active"`
}

func (d ruleScopeDocument) toDomain() domain.RuleScope {
	return domain.RuleScope{
		WebsiteIDs:     d.WebsiteIDs,
		CustomerGroups: d.CustomerGroups,
		FromDate:       d.FromDate,
		ToDate:         d.ToDate,
		Active:         d.Active,
	}
}

type catalogRuleDocument struct {
	ID          string            `firestore:"-"`
	Name        string            `firestore:"name"`
	Scope       ruleScopeDocument `firestore:"scope"`
	ProductIDs  []string          `firestore:"productIds,omitempty"`
	Action      string            `firestore:"action"`
	Percent     float64           `firestore:"percent"`
	Amount      int64             `firestore:"amount"`
	Priority    int               `firestore:"priority"`
	StopFurther bool              `firestore:"stopFurther"`
}

type cartRuleDocument struct {
	ID           string            `firestore:"-"`
	Name         string            `firestore:"name"`
	Scope        ruleScopeDocument `firestore:"scope"`
	CouponCode   string            `firestore:"couponCode,omitempty"`
	Condition    string            `firestore:"condition,omitempty"`
	Action       string            `firestore:"action"`
	Percent      float64           `firestore:"percent"`
	Amount       int64             `firestore:"amount"`
	FreeShipping bool              `firestore:"freeShipping"`
	Priority     int               `firestore:"priority"`
	StopFurther  bool              `firestore:"stopFurther"`
}

// RuleRepository loads catalog and cart price rules.
type RuleRepository struct {
	catalog *pfirestore.Collection[catalogRuleDocument]
	cart    *pfirestore.Collection[cartRuleDocument]
}

var _ repositories.RuleRepository = (*RuleRepository)(nil)

// NewRuleRepository constructs a Firestore-backed rule repository.
func NewRuleRepository(provider *pfirestore.Provider) (*RuleRepository, error) {
	if provider == nil {
		return nil, errors.New("rule repository requires firestore provider")
	}
	return &RuleRepository{
		catalog: pfirestore.NewCollection[catalogRuleDocument](provider, catalogRulesCollection, func(snap *firestore.DocumentSnapshot) (catalogRuleDocument, error) {
			var doc catalogRuleDocument
			err := snap.DataTo(&doc)
			doc.ID = snap.Ref.ID
			return doc, err
		}),
		cart: pfirestore.NewCollection[cartRuleDocument](provider, cartRulesCollection, func(snap *firestore.DocumentSnapshot) (cartRuleDocument, error) {
			var doc cartRuleDocument
			err := snap.DataTo(&doc)
			doc.ID = snap.Ref.ID
			return doc, err
		}),
	}, nil
}

// CatalogRules returns the active catalog rules scoped to websiteID.
func (r *RuleRepository) CatalogRules(ctx context.Context, websiteID string) ([]domain.CatalogRule, error) {
	docs, err := r.catalog.Query(ctx, activeRules)
	if err != nil {
		return nil, err
	}
	out := make([]domain.CatalogRule, 0, len(docs))
	for _, doc := range docs {
		if !websiteInScope(doc.Scope.WebsiteIDs, websiteID) {
			continue
		}
		out = append(out, domain.CatalogRule{
			ID:          doc.ID,
			Name:        doc.Name,
			Scope:       doc.Scope.toDomain(),
			ProductIDs:  doc.ProductIDs,
			Action:      doc.Action,
			Percent:     doc.Percent,
			Amount:      doc.Amount,
			Priority:    doc.Priority,
			StopFurther: doc.StopFurther,
		})
	}
	return out, nil
}

// CartRules returns the active cart rules scoped to websiteID.
func (r *RuleRepository) CartRules(ctx context.Context, websiteID string) ([]domain.CartRule, error) {
	docs, err := r.cart.Query(ctx, activeRules)
	if err != nil {
		return nil, err
	}
	out := make([]domain.CartRule, 0, len(docs))
	for _, doc := range docs {
		if !websiteInScope(doc.Scope.WebsiteIDs, websiteID) {
			continue
		}
		out = append(out, domain.CartRule{
			ID:           doc.ID,
			Name:         doc.Name,
			Scope:        doc.Scope.toDomain(),
			CouponCode:   strings.TrimSpace(doc.CouponCode),
			Condition:    strings.TrimSpace(doc.Condition),
			Action:       doc.Action,
			Percent:      doc.Percent,
			Amount:       doc.Amount,
			FreeShipping: doc.FreeShipping,
			Priority:     doc.Priority,
			StopFurther:  doc.StopFurther,
		})
	}
	return out, nil
}

func activeRules(q firestore.Query) firestore.Query {
	return q.Where("scope.active", "==", true)
}

func websiteInScope(websites []string, websiteID string) bool {
	if len(websites) == 0 {
		return true
	}
	for _, id := range websites {
		if strings.TrimSpace(id) == websiteID {
			return true
		}
	}
	return false
}
