package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"

	"github.com/hanko-field/quickorder/internal/domain"
	"github.com/hanko-field/quickorder/internal/platform/httpx"
	"github.com/hanko-field/quickorder/internal/platform/money"
	"github.com/hanko-field/quickorder/internal/services"
)

const maxQuickOrderBodySize = 16 * 1024

var (
	errEmptyBody    = errors.New("request body is empty")
	errBodyTooLarge = errors.New("request body too large")
)

// QuickOrderHandlers exposes the quick-order facade over HTTP.
type QuickOrderHandlers struct {
	service  services.QuickOrderService
	validate *validator.Validate
	policy   *bluemonday.Policy
}

// NewQuickOrderHandlers constructs the handler set.
func NewQuickOrderHandlers(service services.QuickOrderService) *QuickOrderHandlers {
	return &QuickOrderHandlers{
		service:  service,
		validate: newRequestValidator(),
		policy:   bluemonday.StrictPolicy(),
	}
}

// Routes registers the quick-order endpoints against the provided router.
func (h *QuickOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/settings", h.getFormSettings)
	r.Get("/shipping-methods", h.listShippingMethods)
	r.Get("/payment-methods", h.listPaymentMethods)
	r.Get("/shipping-cost", h.getShippingCost)
	r.Post("/totals", h.calculateTotals)
	r.Post("/orders", h.createOrder)
}

func newRequestValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type shippingMethodPayload struct {
	Code           string  `json:"code"`
	CarrierCode    string  `json:"carrier_code"`
	MethodCode     string  `json:"method_code"`
	CarrierTitle   string  `json:"carrier_title"`
	MethodTitle    string  `json:"method_title"`
	Description    string  `json:"description"`
	Price          float64 `json:"price"`
	PriceFormatted string  `json:"price_formatted"`
}

type paymentMethodPayload struct {
	Code    string `json:"code"`
	Title   string `json:"title"`
	Default bool   `json:"default"`
}

type breakdownPayload struct {
	Currency       string   `json:"currency"`
	UnitPrice      float64  `json:"unit_price"`
	Subtotal       float64  `json:"subtotal"`
	ShippingCost   float64  `json:"shipping_cost"`
	DiscountAmount float64  `json:"discount_amount"`
	GrandTotal     float64  `json:"grand_total"`
	Formatted      string   `json:"grand_total_formatted"`
	HasDiscount    bool     `json:"has_discount"`
	CouponCode     string   `json:"coupon_code,omitempty"`
	AppliedRuleIDs []string `json:"applied_rule_ids,omitempty"`
}

type formSettingsPayload struct {
	Enabled           bool   `json:"enabled"`
	FormTitle         string `json:"form_title"`
	RequireEmail      bool   `json:"require_email"`
	RequirePostcode   bool   `json:"require_postcode"`
	RequireRegion     bool   `json:"require_region"`
	RequireCity       bool   `json:"require_city"`
	ShowStreet2       bool   `json:"show_street2"`
	RegionFieldType   string `json:"region_field_type"`
	PostcodeFieldType string `json:"postcode_field_type"`
	PhoneValidation   bool   `json:"phone_validation"`
	DefaultCountry    string `json:"default_country"`
	Currency          string `json:"currency"`
}

type totalsRequest struct {
	ProductID      string            `json:"product_id" validate:"required,max=64"`
	Qty            int               `json:"qty" validate:"gte=0,lte=10000"`
	ShippingMethod string            `json:"shipping_method" validate:"max=128"`
	CountryID      string            `json:"country_id" validate:"omitempty,len=2,alpha"`
	Region         string            `json:"region" validate:"max=128"`
	Postcode       string            `json:"postcode" validate:"max=32"`
	SuperAttribute map[string]string `json:"super_attribute"`
	CouponCode     string            `json:"coupon_code" validate:"max=64"`
}

type createOrderRequest struct {
	ProductID      string            `json:"product_id" validate:"required,max=64"`
	Qty            int               `json:"qty" validate:"gte=0,lte=10000"`
	SuperAttribute map[string]string `json:"super_attribute"`
	CustomerName   string            `json:"customer_name" validate:"required,max=255"`
	CustomerPhone  string            `json:"customer_phone" validate:"required,max=32"`
	CustomerEmail  string            `json:"customer_email" validate:"omitempty,email,max=255"`
	Street         string            `json:"street" validate:"max=512"`
	City           string            `json:"city" validate:"max=128"`
	Region         string            `json:"region" validate:"max=128"`
	Postcode       string            `json:"postcode" validate:"max=32"`
	CountryID      string            `json:"country_id" validate:"omitempty,len=2,alpha"`
	ShippingMethod string            `json:"shipping_method" validate:"max=128"`
	PaymentMethod  string            `json:"payment_method" validate:"max=128"`
	CouponCode     string            `json:"coupon_code" validate:"max=64"`
}

type orderLinePayload struct {
	Name        string            `json:"name"`
	SKU         string            `json:"sku"`
	Qty         int               `json:"qty"`
	Price       string            `json:"price"`
	RowTotal    string            `json:"row_total"`
	ProductType string            `json:"product_type"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

type createOrderResponse struct {
	Success     bool               `json:"success"`
	OrderID     string             `json:"order_id"`
	IncrementID string             `json:"increment_id"`
	Message     string             `json:"message"`
	Items       []orderLinePayload `json:"items"`
	OrderTotal  string             `json:"order_total"`
	RedirectURL string             `json:"redirect_url,omitempty"`
}

func (h *QuickOrderHandlers) getFormSettings(w http.ResponseWriter, r *http.Request) {
	form := h.service.GetFormSettings(r.Context())
	httpx.WriteJSON(w, http.StatusOK, formSettingsPayload{
		Enabled:           form.Enabled,
		FormTitle:         form.FormTitle,
		RequireEmail:      form.RequireEmail,
		RequirePostcode:   form.RequirePostcode,
		RequireRegion:     form.RequireRegion,
		RequireCity:       form.RequireCity,
		ShowStreet2:       form.ShowStreet2,
		RegionFieldType:   form.RegionFieldType,
		PostcodeFieldType: form.PostcodeFieldType,
		PhoneValidation:   form.PhoneValidation,
		DefaultCountry:    form.DefaultCountry,
		Currency:          form.Currency,
	})
}

func (h *QuickOrderHandlers) listShippingMethods(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()
	productID := h.clean(query.Get("product_id"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product_id is required", http.StatusBadRequest))
		return
	}

	options := h.service.GetAvailableShippingMethods(ctx, services.ShippingMethodsQuery{
		ProductID:   productID,
		CountryCode: strings.ToUpper(h.clean(query.Get("country_id"))),
		Region:      h.clean(query.Get("region")),
		Postcode:    h.clean(query.Get("postcode")),
	})
	currency := h.currency(r)
	methods := make([]shippingMethodPayload, 0, len(options))
	for _, option := range options {
		methods = append(methods, shippingMethodPayload{
			Code:           option.Code,
			CarrierCode:    option.CarrierCode,
			MethodCode:     option.MethodCode,
			CarrierTitle:   option.CarrierTitle,
			MethodTitle:    option.MethodTitle,
			Description:    option.Description(),
			Price:          money.ToMajor(option.Price, currency),
			PriceFormatted: money.Format(option.Price, currency, ""),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"methods": methods,
	})
}

func (h *QuickOrderHandlers) listPaymentMethods(w http.ResponseWriter, r *http.Request) {
	options := h.service.GetAvailablePaymentMethods(r.Context())
	methods := make([]paymentMethodPayload, 0, len(options))
	for _, option := range options {
		methods = append(methods, paymentMethodPayload{Code: option.Code, Title: option.Title, Default: option.Default})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"methods": methods,
	})
}

func (h *QuickOrderHandlers) getShippingCost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()
	productID := h.clean(query.Get("product_id"))
	method := h.clean(query.Get("method"))
	if productID == "" || method == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product_id and method are required", http.StatusBadRequest))
		return
	}
	qty, err := parseQuantity(query.Get("qty"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	cost := h.service.CalculateShippingCost(ctx, services.ShippingCostQuery{
		ProductID:   productID,
		MethodCode:  method,
		CountryCode: strings.ToUpper(h.clean(query.Get("country_id"))),
		Region:      h.clean(query.Get("region")),
		Postcode:    h.clean(query.Get("postcode")),
		Qty:         qty,
	})
	currency := h.currency(r)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"shipping_cost":   money.ToMajor(cost, currency),
		"price_formatted": money.Format(cost, currency, ""),
	})
}

func (h *QuickOrderHandlers) calculateTotals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req totalsRequest
	if !h.decode(w, r, &req) {
		return
	}

	breakdown := h.service.CalculateOrderTotal(ctx, services.PriceQuoteCommand{
		ProductID:          h.clean(req.ProductID),
		Quantity:           req.Qty,
		ShippingMethodCode: h.clean(req.ShippingMethod),
		CountryCode:        strings.ToUpper(h.clean(req.CountryID)),
		Region:             h.clean(req.Region),
		Postcode:           h.clean(req.Postcode),
		VariantAttributes:  h.cleanAttributes(req.SuperAttribute),
		CouponCode:         h.clean(req.CouponCode),
	})
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"totals":  newBreakdownPayload(breakdown),
	})
}

func (h *QuickOrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createOrderRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.service.CreateOrder(ctx, services.PlaceOrderCommand{
		ProductID:          h.clean(req.ProductID),
		Quantity:           req.Qty,
		VariantAttributes:  h.cleanAttributes(req.SuperAttribute),
		CustomerName:       h.clean(req.CustomerName),
		CustomerPhone:      h.clean(req.CustomerPhone),
		CustomerEmail:      h.clean(req.CustomerEmail),
		Street:             h.clean(req.Street),
		City:               h.clean(req.City),
		Region:             h.clean(req.Region),
		Postcode:           h.clean(req.Postcode),
		CountryCode:        strings.ToUpper(h.clean(req.CountryID)),
		ShippingMethodCode: h.clean(req.ShippingMethod),
		PaymentMethodCode:  h.clean(req.PaymentMethod),
		CouponCode:         h.clean(req.CouponCode),
	})
	if err != nil {
		writeQuickOrderError(w, r, err)
		return
	}

	items := make([]orderLinePayload, 0, len(result.Items))
	for _, item := range result.Items {
		line := orderLinePayload{
			Name:        item.Name,
			SKU:         item.SKU,
			Qty:         item.Qty,
			Price:       item.Price,
			RowTotal:    item.RowTotal,
			ProductType: item.ProductType,
		}
		if len(item.Attributes) > 0 {
			line.Attributes = make(map[string]string, len(item.Attributes))
			for _, attr := range item.Attributes {
				line.Attributes[attr.Label] = attr.Value
			}
		}
		items = append(items, line)
	}
	httpx.WriteJSON(w, http.StatusCreated, createOrderResponse{
		Success:     result.Success,
		OrderID:     result.OrderID,
		IncrementID: result.IncrementID,
		Message:     result.Message,
		Items:       items,
		OrderTotal:  result.OrderTotal,
		RedirectURL: result.RedirectURL,
	})
}

// decode reads, parses and validates a JSON body. It writes the error response and returns false on failure.
func (h *QuickOrderHandlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	ctx := r.Context()
	body, err := readLimitedBody(r, maxQuickOrderBodySize)
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		return false
	case errors.Is(err, errEmptyBody):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		return false
	case err != nil:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
		return false
	}

	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", fmt.Sprintf("invalid JSON payload: %v", err), http.StatusBadRequest))
		return false
	}

	if err := h.validate.StructCtx(ctx, dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field())
			}
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid fields: "+strings.Join(fields, ", "), http.StatusBadRequest).
				WithDetails(map[string]any{"fields": fields}))
			return false
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return false
	}
	return true
}

// clean strips markup from caller input so it can be persisted and echoed safely.
func (h *QuickOrderHandlers) clean(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(h.policy.Sanitize(value)))
}

func (h *QuickOrderHandlers) cleanAttributes(attrs map[string]string) map[string]string {
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		key := h.clean(k)
		if key == "" {
			continue
		}
		out[key] = h.clean(v)
	}
	return out
}

func (h *QuickOrderHandlers) currency(r *http.Request) string {
	return h.service.GetFormSettings(r.Context()).Currency
}

func newBreakdownPayload(b domain.PriceBreakdown) breakdownPayload {
	return breakdownPayload{
		Currency:       b.Currency,
		UnitPrice:      money.ToMajor(b.UnitPrice, b.Currency),
		Subtotal:       money.ToMajor(b.Subtotal, b.Currency),
		ShippingCost:   money.ToMajor(b.ShippingCost, b.Currency),
		DiscountAmount: money.ToMajor(b.DiscountAmount, b.Currency),
		GrandTotal:     money.ToMajor(b.GrandTotal, b.Currency),
		Formatted:      money.Format(b.GrandTotal, b.Currency, ""),
		HasDiscount:    b.HasDiscount,
		CouponCode:     b.CouponCode,
		AppliedRuleIDs: b.AppliedRuleIDs,
	}
}

func parseQuantity(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	qty, err := strconv.Atoi(raw)
	if err != nil || qty < 0 {
		return 0, fmt.Errorf("qty must be a non-negative integer")
	}
	return qty, nil
}

func writeQuickOrderError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}
	ctx := r.Context()
	message := err.Error()
	switch {
	case errors.Is(err, services.ErrQuickOrderDisabled):
		httpx.WriteError(ctx, w, httpx.NewError("quick_order_disabled", message, http.StatusForbidden))
	case errors.Is(err, services.ErrQuickOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("quick_order_unavailable", message, http.StatusServiceUnavailable))
	case errors.Is(err, services.ErrQuickOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_input", message, http.StatusBadRequest))
	case errors.Is(err, services.ErrQuickOrderValidation):
		httpx.WriteError(ctx, w, httpx.NewError("validation_failed", message, http.StatusBadRequest))
	case errors.Is(err, services.ErrQuickOrderCommit):
		httpx.WriteError(ctx, w, httpx.NewError("order_commit_failed", message, http.StatusBadGateway))
	case errors.Is(err, services.ErrQuickOrderProvider):
		httpx.WriteError(ctx, w, httpx.NewError("order_failed", message, http.StatusUnprocessableEntity))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unable to create order", http.StatusInternalServerError))
	}
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = maxQuickOrderBodySize
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}
