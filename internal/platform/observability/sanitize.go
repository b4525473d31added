package observability

import (
	"strings"
	"unicode"
)

const defaultStringLimit = 256

var piiKeys = map[string]struct{}{
	"telephone":      {},
	"phone":          {},
	"email":          {},
	"customer_email": {},
	"customer_name":  {},
	"street":         {},
}

// sanitizeString drops control characters and caps the length to avoid log injection.
func sanitizeString(value string, limit int) string {
	if limit <= 0 {
		limit = defaultStringLimit
	}

	cleaned := make([]rune, 0, len(value))
	for _, r := range value {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			continue
		}
		cleaned = append(cleaned, r)
	}
	if len(cleaned) > limit {
		cleaned = cleaned[:limit]
	}
	return string(cleaned)
}

// SanitizeRoute removes control characters and enforces length constraints on routes.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return sanitizeString(route, 180)
}

// SanitizeMethod removes control characters in HTTP methods.
func SanitizeMethod(method string) string {
	return sanitizeString(method, 10)
}

// IsPIIKey reports whether a log field carries customer contact data.
func IsPIIKey(key string) bool {
	_, ok := piiKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// RedactPII masks value when key names a customer contact field.
func RedactPII(key string, value any) any {
	if !IsPIIKey(key) {
		return value
	}
	s, ok := value.(string)
	if !ok {
		return "[redacted]"
	}
	switch strings.ToLower(key) {
	case "email", "customer_email":
		return MaskEmail(s)
	case "telephone", "phone":
		return MaskPhone(s)
	default:
		return "[redacted]"
	}
}

// MaskPhone keeps the last three digits.
func MaskPhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if len(phone) <= 3 {
		return strings.Repeat("*", len(phone))
	}
	return strings.Repeat("*", len(phone)-3) + phone[len(phone)-3:]
}

// MaskEmail keeps the first character of the local part and the domain.
func MaskEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "[redacted]"
	}
	return email[:1] + "***" + email[at:]
}
