package service

import (
	"fmt"
	"strings"
	"time"
)

/* ===================== Channel & value coercion ===================== */

// ResolveChannel derives the settlement channel from the payment type code
// and the installment count: "VD" + 3 installments -> "VD-3C". An empty code
// falls back to the collector label.
func ResolveChannel(paymentTypeCode string, installments any, collector string) string {
	channel := strings.ToUpper(strings.TrimSpace(paymentTypeCode))
	if channel == "" {
		return collector
	}

	if count, ok := NormalizeInt(installments); ok && count > 0 {
		channel = fmt.Sprintf("%s-%dC", channel, count)
	}
	return channel
}

// NormalizeInt coerces loosely-typed JSON values to an integer. Strings keep
// their digits (and a leading minus); anything without digits is a miss.
func NormalizeInt(value any) (int64, bool) {
	switch v := value.(type) {
	case nil:
		return 0, false
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v + 0.5*sign(v)), true
	case string:
		return digitsToInt(v, true)
	default:
		return 0, false
	}
}

// NormalizeAmount coerces an amount to a non-negative integer: strings are
// stripped of every non-digit character ("$ 12.000" -> 12000).
func NormalizeAmount(value any) (int64, bool) {
	switch v := value.(type) {
	case nil:
		return 0, false
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v + 0.5*sign(v)), true
	case string:
		return digitsToInt(v, false)
	default:
		return 0, false
	}
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

func digitsToInt(value string, allowNegative bool) (int64, bool) {
	negative := false
	var digits []rune
	for _, r := range value {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
			continue
		}
		if allowNegative && r == '-' && len(digits) == 0 {
			negative = true
		}
	}

	if len(digits) == 0 {
		return 0, false
	}

	var result int64
	for _, r := range digits {
		result = result*10 + int64(r-'0')
	}
	if negative {
		result = -result
	}
	return result, true
}

/* ===================== Payment dates ===================== */

var paymentDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02-01-2006",
}

// FormatPaymentDate renders the gateway's transaction date as DD-MM-YYYY,
// also accepting the compact YYYYMMDD form; an unparseable value falls back
// to the current date so a settlement is never blocked on a date format.
func FormatPaymentDate(value string, now func() time.Time) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return now().Format("02-01-2006")
	}

	for _, layout := range paymentDateLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.Format("02-01-2006")
		}
	}

	if len(value) == 8 && isDigits(value) {
		if parsed, err := time.Parse("20060102", value); err == nil {
			return parsed.Format("02-01-2006")
		}
	}

	return now().Format("02-01-2006")
}

func isDigits(value string) bool {
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return value != ""
}
