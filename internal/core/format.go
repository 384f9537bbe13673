package core

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var mobilePattern = regexp.MustCompile(`^9\d{8}$`)

// NormalizePhone strips separators and the Portuguese country prefix
func NormalizePhone(raw string) string {
	s := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "").Replace(strings.TrimSpace(raw))
	switch {
	case strings.HasPrefix(s, "+351"):
		s = strings.TrimPrefix(s, "+351")
	case strings.HasPrefix(s, "00351"):
		s = strings.TrimPrefix(s, "00351")
	}
	return s
}

// ValidatePhone normalizes raw and checks it is a Portuguese mobile number
func ValidatePhone(raw string) (string, error) {
	phone := NormalizePhone(raw)
	if !mobilePattern.MatchString(phone) {
		return "", &ValidationError{Field: "phoneNumber", Message: "must be a 9-digit mobile number starting with 9"}
	}
	return phone, nil
}

// Euros converts integer cents to a decimal euro amount
func Euros(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// CentsFromEuros parses a euro amount such as "12.34" into cents
func CentsFromEuros(s string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	return d.Shift(2).Round(0).IntPart(), nil
}

const nbsp = "\u00a0"

// FormatAmount renders cents the way pt-PT displays EUR: "1234,50 €", "12 345,67 €".
func FormatAmount(cents int64) string {
	fixed := Euros(cents).StringFixed(2)
	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign, fixed = "-", fixed[1:]
	}
	intPart, frac, _ := strings.Cut(fixed, ".")
	// pt-PT only groups from five integer digits
	if len(intPart) >= 5 {
		var b strings.Builder
		lead := len(intPart) % 3
		if lead > 0 {
			b.WriteString(intPart[:lead])
		}
		for i := lead; i < len(intPart); i += 3 {
			if b.Len() > 0 {
				b.WriteString(nbsp)
			}
			b.WriteString(intPart[i : i+3])
		}
		intPart = b.String()
	}
	return sign + intPart + "," + frac + nbsp + "€"
}

// FormatRemaining renders a countdown as zero-padded HH:MM:SS
func FormatRemaining(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	hours := ms / 3600000
	minutes := (ms / 60000) % 60
	seconds := (ms / 1000) % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}
