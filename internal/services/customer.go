package services

import (
	"strings"
	"unicode"
)

const egyptCountryPrefix = "20"

// FormatPhoneNumber keeps digits and '+' and prefixes the Egyptian country code when the number
// carries no international prefix.
func FormatPhoneNumber(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if (r >= '0' && r <= '9') || r == '+' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return ""
	}
	if strings.HasPrefix(cleaned, "+") || strings.HasPrefix(cleaned, egyptCountryPrefix) {
		return cleaned
	}
	if strings.HasPrefix(cleaned, "0") {
		return "+2" + cleaned
	}
	return "+" + egyptCountryPrefix + cleaned
}

// ValidPhoneNumber reports whether a normalised phone is an Egyptian mobile number.
func ValidPhoneNumber(normalized string) bool {
	digits := digitsOnly(normalized)
	if !strings.HasPrefix(digits, egyptCountryPrefix) {
		return false
	}
	return len(digits) == len(egyptCountryPrefix)+10
}

// GuestEmail derives a deterministic guest address from a phone number.
func GuestEmail(normalizedPhone, domain string) string {
	digits := digitsOnly(normalizedPhone)
	if digits == "" {
		return ""
	}
	return digits + "@" + strings.TrimSpace(domain)
}

// SplitCustomerName splits on the first space. The last name repeats the first name when the
// input holds a single word.
func SplitCustomerName(fullName string) (string, string) {
	trimmed := strings.TrimSpace(fullName)
	first, last, found := strings.Cut(trimmed, " ")
	last = strings.TrimSpace(last)
	if !found || last == "" {
		return first, first
	}
	return first, last
}

// SplitStreet turns a free-text address into street lines on comma boundaries.
func SplitStreet(street string) []string {
	if !strings.Contains(street, ",") {
		return []string{street}
	}
	parts := strings.Split(street, ",")
	lines := make([]string, 0, len(parts))
	for _, part := range parts {
		lines = append(lines, strings.TrimSpace(part))
	}
	return lines
}

func digitsOnly(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func titleCaseCode(code string) string {
	words := strings.ReplaceAll(strings.TrimSpace(code), "_", " ")
	if words == "" {
		return ""
	}
	runes := []rune(words)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
