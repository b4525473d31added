package firestore

import (
	"context"
	"errors"
	"slices"
	"strings"

	"cloud.google.com/go/firestore"

	"github.com/hanko-field/quickorder/internal/domain"
	pfirestore "github.com/hanko-field/quickorder/internal/platform/firestore"
	"github.com/hanko-field/quickorder/internal/repositories"
)

const paymentMethodsCollection = "payment_method_configs"

type paymentMethodDocument struct {
	Code      string   `firestore:"code"`
	Title     string   `firestore:"title"`
	Active    bool     `firestore:"active"`
	SortOrder int      `firestore:"sortOrder"`
	StoreIDs  []string `firestore:"storeIds,omitempty"`
}

// PaymentMethodRepository lists configured payment methods.
type PaymentMethodRepository struct {
	methods *pfirestore.Collection[paymentMethodDocument]
}

var _ repositories.PaymentMethodConfigRepository = (*PaymentMethodRepository)(nil)

// NewPaymentMethodRepository constructs a Firestore-backed payment method config repository.
func NewPaymentMethodRepository(provider *pfirestore.Provider) (*PaymentMethodRepository, error) {
	if provider == nil {
		return nil, errors.New("payment method repository requires firestore provider")
	}
	return &PaymentMethodRepository{
		methods: pfirestore.NewCollection[paymentMethodDocument](provider, paymentMethodsCollection, nil),
	}, nil
}

// ListConfigured returns the active methods visible to storeID ordered by sort order then code.
// Methods without a store list are visible everywhere.
func (r *PaymentMethodRepository) ListConfigured(ctx context.Context, storeID string) ([]domain.RegisteredPaymentMethod, error) {
	docs, err := r.methods.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("active", "==", true)
	})
	if err != nil {
		return nil, err
	}
	storeID = strings.TrimSpace(storeID)
	out := make([]domain.RegisteredPaymentMethod, 0, len(docs))
	for _, doc := range docs {
		code := strings.TrimSpace(doc.Code)
		if code == "" {
			continue
		}
		if len(doc.StoreIDs) > 0 && !slices.Contains(doc.StoreIDs, storeID) {
			continue
		}
		out = append(out, domain.RegisteredPaymentMethod{
			Code:      code,
			Title:     strings.TrimSpace(doc.Title),
			SortOrder: doc.SortOrder,
		})
	}
	slices.SortStableFunc(out, func(a, b domain.RegisteredPaymentMethod) int {
		if a.SortOrder != b.SortOrder {
			return a.SortOrder - b.SortOrder
		}
		return strings.Compare(a.Code, b.Code)
	})
	return out, nil
}
