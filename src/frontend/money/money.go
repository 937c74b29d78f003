// Package money formats integer minor-currency amounts the way the storefront
// theme renders them.
package money

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// DefaultFormat is used when a shop does not configure a money format.
const DefaultFormat = "${{amount}}"

var placeholder = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)

// Cents is an amount in minor currency units. Shopify reports prices as
// integers on cart and product endpoints but as decimal strings on search
// suggestions, so decoding accepts both.
type Cents int64

func (c *Cents) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*c = 0
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := ParseAmount(s)
		if err != nil {
			return err
		}
		*c = v
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.Wrap(err, "money: invalid amount")
	}
	if i, err := n.Int64(); err == nil {
		*c = Cents(i)
		return nil
	}
	v, err := ParseAmount(n.String())
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// ParseAmount reads a price string. A decimal string ("10.99") is a major-unit
// amount; a bare integer string ("1099") is already in minor units.
func ParseAmount(s string) (Cents, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if !strings.Contains(s, ".") {
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, errors.Wrapf(err, "money: invalid amount %q", s)
		}
		return Cents(i), nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, errors.Wrapf(err, "money: invalid amount %q", s)
	}
	return Cents(d.Shift(2).Round(0).IntPart()), nil
}

// Format renders cents through a shop money format such as "${{amount}}" or
// "{{amount_with_comma_separator}} €".
func Format(cents int64, format string) string {
	if format == "" {
		format = DefaultFormat
	}
	var value string
	name := ""
	if m := placeholder.FindStringSubmatch(format); m != nil {
		name = m[1]
	}
	switch name {
	case "amount_no_decimals":
		value = withDelimiters(cents, 0, ",", ".")
	case "amount_with_comma_separator":
		value = withDelimiters(cents, 2, ".", ",")
	case "amount_no_decimals_with_comma_separator":
		value = withDelimiters(cents, 0, ".", ",")
	case "amount_with_apostrophe_separator":
		value = withDelimiters(cents, 2, "'", ".")
	default:
		value = withDelimiters(cents, 2, ",", ".")
	}
	loc := placeholder.FindStringIndex(format)
	if loc == nil {
		return format
	}
	return format[:loc[0]] + value + format[loc[1]:]
}

func withDelimiters(cents int64, precision int, thousands, dec string) string {
	d := decimal.New(cents, -2).StringFixed(int32(precision))
	sign := ""
	if strings.HasPrefix(d, "-") {
		sign, d = "-", d[1:]
	}
	whole, frac, _ := strings.Cut(d, ".")
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteString(thousands)
		}
		b.WriteRune(r)
	}
	if frac != "" {
		return sign + b.String() + dec + frac
	}
	return sign + b.String()
}

// FormatCurrency renders cents with the currency symbol and the standard
// number of decimals for the ISO code. Unknown codes are treated as USD.
func FormatCurrency(cents int64, code string) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		unit, code = currency.USD, "USD"
	}
	scale, _ := currency.Standard.Rounding(unit)
	return fmt.Sprintf("%s%s", Symbol(code), withDelimiters(cents, scale, ",", "."))
}

// Symbol returns the display symbol for an ISO currency code.
func Symbol(code string) string {
	logos := map[string]string{
		"USD": "$",
		"CAD": "$",
		"AUD": "$",
		"JPY": "¥",
		"EUR": "€",
		"TRY": "₺",
		"GBP": "£",
		"SEK": "kr",
		"NOK": "kr",
		"DKK": "kr",
	}

	logo := "$" //default
	if val, ok := logos[strings.ToUpper(code)]; ok {
		logo = val
	}
	return logo
}

// Format renders c through a shop money format.
func (c Cents) Format(format string) string { return Format(int64(c), format) }
