package model

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var amountReplacer = strings.NewReplacer(
	",", "",
	"٬", "", // arabic thousands separator
	"\u00a0", "",
	" ", "",
	"\t", "",
	"\n", "",
)

// ParseAmount parses a displayed figure such as "4,509,836", "(12,500)" or
// "SAR 1,200,000.00". Parentheses and a leading minus denote negatives.
func ParseAmount(s string) (decimal.Decimal, error) {
	raw := strings.TrimSpace(s)
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, DefaultCurrency), "SR")
	raw = strings.TrimSpace(raw)

	negative := false
	if strings.HasPrefix(raw, "(") && strings.HasSuffix(raw, ")") {
		negative = true
		raw = raw[1 : len(raw)-1]
	}
	raw = amountReplacer.Replace(raw)
	if strings.HasPrefix(raw, "-") {
		negative = !negative
		raw = raw[1:]
	}
	if raw == "" {
		return decimal.Zero, eris.Errorf("model: empty amount %q", s)
	}
	for _, r := range raw {
		if (r < '0' || r > '9') && r != '.' {
			return decimal.Zero, eris.Errorf("model: invalid amount %q", s)
		}
	}

	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, eris.Wrapf(err, "model: parse amount %q", s)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// FormatAmount renders d with standard thousands grouping, keeping any
// fractional digits.
func FormatAmount(d decimal.Decimal) string {
	p := message.NewPrinter(language.English)
	whole := d.Truncate(0)
	out := p.Sprintf("%d", whole.IntPart())
	if frac := d.Sub(whole).Abs(); !frac.IsZero() {
		out += strings.TrimPrefix(frac.String(), "0")
	}
	if d.IsNegative() && whole.IsZero() {
		out = "-" + out
	}
	return out
}
