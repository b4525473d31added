package payments

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	"github.com/hanko-field/quickorder/internal/domain"
)

const (
	// StripeMethodCode is the payment method code served by Stripe.
	StripeMethodCode  = "stripe_payments"
	defaultStripeTTL  = 5 * time.Minute
	defaultStripeName = "Credit / Debit Card"
)

type stripeAccountAPI interface {
	GetByID(id string, params *stripe.AccountParams) (*stripe.Account, error)
}

// StripeIntegrationConfig configures StripeIntegration.
type StripeIntegrationConfig struct {
	APIKey    string
	AccountID string
	Title     string
	CacheTTL  time.Duration
	Backends  *stripe.Backends
	Clock     func() time.Time

	accounts stripeAccountAPI
}

// StripeIntegration reports card payments as available while the Stripe account can accept
// charges. Account lookups are cached for CacheTTL.
type StripeIntegration struct {
	api     stripeAccountAPI
	account string
	title   string
	ttl     time.Duration
	clock   func() time.Time

	mu        sync.Mutex
	enabled   bool
	checkedAt time.Time
}

var _ Integration = (*StripeIntegration)(nil)

// NewStripeIntegration constructs the Stripe integration.
func NewStripeIntegration(cfg StripeIntegrationConfig) (*StripeIntegration, error) {
	account := strings.TrimSpace(cfg.AccountID)
	if account == "" {
		return nil, errors.New("stripe: account id is required")
	}
	api := cfg.accounts
	if api == nil {
		apiKey := strings.TrimSpace(cfg.APIKey)
		if apiKey == "" {
			return nil, errors.New("stripe: api key is required")
		}
		sc := client.New(apiKey, cfg.Backends)
		api = sc.Accounts
	}
	title := strings.TrimSpace(cfg.Title)
	if title == "" {
		title = defaultStripeName
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultStripeTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &StripeIntegration{api: api, account: account, title: title, ttl: ttl, clock: clock}, nil
}

// Code implements Integration.
func (s *StripeIntegration) Code() string { return StripeMethodCode }

// Title implements Integration.
func (s *StripeIntegration) Title() string { return s.title }

// Available reports whether the account has charges enabled.
func (s *StripeIntegration) Available(ctx context.Context, _ domain.StoreContext) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	if !s.checkedAt.IsZero() && now.Sub(s.checkedAt) < s.ttl {
		return s.enabled, nil
	}

	params := &stripe.AccountParams{}
	params.Context = ctx
	acct, err := s.api.GetByID(s.account, params)
	if err != nil {
		return false, err
	}
	s.enabled = acct != nil && acct.ChargesEnabled
	s.checkedAt = now
	return s.enabled, nil
}
