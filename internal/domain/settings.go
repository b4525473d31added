package domain

import "strings"

const (
	// DefaultEmailDomain is used for generated guest emails when the merchant configures none.
	DefaultEmailDomain = "easypay.com"
	// DefaultCountryCode is the storefront default country.
	DefaultCountryCode = "EG"
)

// StoreContext identifies the storefront a request is evaluated for.
type StoreContext struct {
	StoreID   string
	WebsiteID string
	Currency  string
	Locale    string
	BaseURL   string
}

// MerchantSettings is a read-only snapshot of quick-order merchant configuration. Prices are
// minor units of Store.Currency.
type MerchantSettings struct {
	Enabled               bool
	FormTitle             string
	SuccessMessage        string
	SendEmailNotification bool
	DefaultCustomerGroup  int
	AutoGenerateEmail     bool
	EmailDomain           string
	PhoneValidation       bool

	RequireEmail      bool
	RequirePostcode   bool
	RequireRegion     bool
	RequireCity       bool
	ShowStreet2       bool
	RegionFieldType   string
	PostcodeFieldType string

	EnabledPaymentMethods []string
	DefaultPaymentMethod  string
	DefaultOrderStatus    string
	DefaultOrderState     string

	FallbackShippingPrice int64
	DefaultShippingPrice  int64
	FlatRatePrice         int64
	FreeShippingThreshold int64

	DefaultCountry string
	Store          StoreContext
}

// ResolvedFallbackShippingPrice walks the fallback tiers: explicit fallback price, legacy
// default price, flat-rate carrier price, then zero.
func (s MerchantSettings) ResolvedFallbackShippingPrice() int64 {
	switch {
	case s.FallbackShippingPrice > 0:
		return s.FallbackShippingPrice
	case s.DefaultShippingPrice > 0:
		return s.DefaultShippingPrice
	case s.FlatRatePrice > 0:
		return s.FlatRatePrice
	default:
		return 0
	}
}

// FreeShippingApplies reports whether subtotal reaches a configured free-shipping threshold.
func (s MerchantSettings) FreeShippingApplies(subtotal int64) bool {
	return s.FreeShippingThreshold > 0 && subtotal >= s.FreeShippingThreshold
}

// GuestEmailDomain returns the configured domain or the default.
func (s MerchantSettings) GuestEmailDomain() string {
	if domain := strings.TrimSpace(s.EmailDomain); domain != "" {
		return domain
	}
	return DefaultEmailDomain
}

// Country returns the configured default country or EG.
func (s MerchantSettings) Country() string {
	if country := strings.TrimSpace(s.DefaultCountry); country != "" {
		return strings.ToUpper(country)
	}
	return DefaultCountryCode
}

// PaymentMethodEnabled applies the merchant allow-list. An empty list allows everything.
func (s MerchantSettings) PaymentMethodEnabled(code string) bool {
	if len(s.EnabledPaymentMethods) == 0 {
		return true
	}
	for _, allowed := range s.EnabledPaymentMethods {
		if strings.TrimSpace(allowed) == code {
			return true
		}
	}
	return false
}

// FormSettings is the storefront-facing subset of merchant settings.
type FormSettings struct {
	Enabled           bool
	FormTitle         string
	RequireEmail      bool
	RequirePostcode   bool
	RequireRegion     bool
	RequireCity       bool
	ShowStreet2       bool
	RegionFieldType   string
	PostcodeFieldType string
	PhoneValidation   bool
	DefaultCountry    string
	Currency          string
}

// Form projects the settings onto the storefront form configuration.
func (s MerchantSettings) Form() FormSettings {
	return FormSettings{
		Enabled:           s.Enabled,
		FormTitle:         s.FormTitle,
		RequireEmail:      s.RequireEmail,
		RequirePostcode:   s.RequirePostcode,
		RequireRegion:     s.RequireRegion,
		RequireCity:       s.RequireCity,
		ShowStreet2:       s.ShowStreet2,
		RegionFieldType:   s.RegionFieldType,
		PostcodeFieldType: s.PostcodeFieldType,
		PhoneValidation:   s.PhoneValidation,
		DefaultCountry:    s.Country(),
		Currency:          s.Store.Currency,
	}
}
