// Package barcode encodes and decodes the item identity printed on bale labels:
//
//	{DD.MM.YYYY}-{sku}-{serial}-{weight}
//
// The format has no escaping, so SKUs must not contain "-".
package barcode

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"baletrack/infrastructure/apperr"
)

const (
	// DateLayout is the label date format.
	DateLayout = "02.01.2006"
	separator  = "-"
	minParts   = 4
)

// Code is the decoded identity of one item.
type Code struct {
	Date   time.Time
	SKU    string
	Serial int64
	Weight decimal.Decimal
}

// DateString renders Date in label format.
func (c Code) DateString() string {
	return c.Date.Format(DateLayout)
}

// String is the canonical barcode text.
func (c Code) String() string {
	return Format(c)
}

// Format renders c as barcode text.
func Format(c Code) string {
	return strings.Join([]string{
		c.DateString(),
		c.SKU,
		strconv.FormatInt(c.Serial, 10),
		c.Weight.String(),
	}, separator)
}

// ValidSKU reports whether sku can be embedded in a barcode.
func ValidSKU(sku string) bool {
	return sku != "" && !strings.Contains(sku, separator) && strings.TrimSpace(sku) == sku
}

// Parse decodes barcode text. Segments beyond the fourth are ignored.
func Parse(text string) (Code, error) {
	text = strings.TrimSpace(text)
	parts := strings.Split(text, separator)
	if len(parts) < minParts {
		return Code{}, apperr.Validation("barcode", "%q has %d segments, need at least %d", text, len(parts), minParts)
	}

	date, err := time.Parse(DateLayout, parts[0])
	if err != nil {
		return Code{}, apperr.Validation("barcode", "invalid date %q", parts[0])
	}
	sku := parts[1]
	if sku == "" {
		return Code{}, apperr.Validation("barcode", "empty sku")
	}
	serial, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || serial <= 0 {
		return Code{}, apperr.Validation("barcode", "invalid serial %q", parts[2])
	}
	weight, err := decimal.NewFromString(parts[3])
	if err != nil || !weight.IsPositive() {
		return Code{}, apperr.Validation("barcode", "invalid weight %q", parts[3])
	}
	return Code{Date: date, SKU: sku, Serial: serial, Weight: weight}, nil
}
