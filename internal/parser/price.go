package parser

import (
	"regexp"
	"strings"

	"watch-deal-finder/pkg/utils"
)

const DefaultCurrency = "USD"

type Price struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	// Marked is false when the currency was not written and DefaultCurrency
	// was assumed.
	Marked   bool    `json:"-"`
}

var (
	symbolBeforePattern = regexp.MustCompile(`(?i)([$€£])\s*(\d[\d.,]*)(\s*k\b)?`)
	codeBeforePattern   = regexp.MustCompile(`(?i)\b(usd|eur|gbp|chf)\s*(\d[\d.,]*)(\s*k\b)?`)
	codeAfterPattern    = regexp.MustCompile(`(?i)\b(\d[\d.,]*)(\s*k)?(?:\s*(usd|eur|gbp|chf)\b|([$€£]))`)
	bareKPattern        = regexp.MustCompile(`(?i)\b(\d{1,3}(?:[.,]\d{1,2})?)\s*k\b`)
	bareNumberPattern   = regexp.MustCompile(`\b(\d{1,3}(?:[.,]\d{3})+|\d{3,7})\b`)
	wtsPattern          = regexp.MustCompile(`(?i)\[wts\]|\bwts\b|\bfor sale\b`)
)

var symbolCurrency = map[string]string{
	"$": "USD",
	"€": "EUR",
	"£": "GBP",
}

// maxKAmount rejects "16570k"-style tokens that are references, not prices.
const maxKAmount = 999

type priceCandidate struct {
	pos   int
	price Price
}

// ParsePrice finds the asking price in free text. Currency-marked amounts and
// "k"-suffixed amounts are preferred, earliest first; otherwise the first bare
// number that is neither a year, one of exclude (typically the parsed
// reference number) nor glued to a reference-like token is used.
func ParsePrice(text string, exclude ...string) (Price, bool) {
	if strings.TrimSpace(text) == "" {
		return Price{}, false
	}

	var best *priceCandidate
	consider := func(pos int, amount float64, currency string) {
		if amount <= 0 {
			return
		}
		if best == nil || pos < best.pos {
			best = &priceCandidate{pos: pos, price: Price{Amount: amount, Currency: currency, Marked: true}}
		}
	}

	for _, m := range symbolBeforePattern.FindAllStringSubmatchIndex(text, -1) {
		amount, ok := scaledAmount(text[m[4]:m[5]], m[6] >= 0)
		if ok {
			consider(m[0], amount, symbolCurrency[text[m[2]:m[3]]])
		}
	}
	for _, m := range codeBeforePattern.FindAllStringSubmatchIndex(text, -1) {
		amount, ok := scaledAmount(text[m[4]:m[5]], m[6] >= 0)
		if ok {
			consider(m[0], amount, strings.ToUpper(text[m[2]:m[3]]))
		}
	}
	for _, m := range codeAfterPattern.FindAllStringSubmatchIndex(text, -1) {
		amount, ok := scaledAmount(text[m[2]:m[3]], m[4] >= 0)
		if !ok {
			continue
		}
		currency := ""
		if m[6] >= 0 {
			currency = strings.ToUpper(text[m[6]:m[7]])
		} else {
			currency = symbolCurrency[text[m[8]:m[9]]]
		}
		consider(m[0], amount, currency)
	}
	for _, m := range bareKPattern.FindAllStringSubmatchIndex(text, -1) {
		amount, ok := scaledAmount(text[m[2]:m[3]], true)
		if ok {
			consider(m[0], amount, DefaultCurrency)
		}
	}

	if best != nil {
		return best.price, true
	}

	if _, _, amount := bareNumberPrice(text, exclude); amount > 0 {
		return Price{Amount: amount, Currency: DefaultCurrency}, true
	}
	return Price{}, false
}

// bareNumberPrice returns the span and value of the first bare number usable
// as a price, or a zero amount when there is none.
func bareNumberPrice(text string, exclude []string) (start, end int, amount float64) {
	for _, m := range bareNumberPattern.FindAllStringSubmatchIndex(text, -1) {
		tok := text[m[2]:m[3]]
		if isPlausibleYear(tok) || gluedToToken(text, m[2], m[3]) || excluded(tok, exclude) {
			continue
		}
		if v := utils.NormalizeNumber(tok); v > 0 {
			return m[2], m[3], v
		}
	}
	return -1, -1, 0
}

func scaledAmount(raw string, thousands bool) (float64, bool) {
	amount := utils.NormalizeNumber(raw)
	if amount <= 0 {
		return 0, false
	}
	if thousands {
		if amount > maxKAmount {
			return 0, false
		}
		amount *= 1000
	}
	return amount, true
}

// gluedToToken reports whether the number at text[start:end] is part of a
// larger token such as "5711/1A", "#1234" or "16610-LV".
func gluedToToken(text string, start, end int) bool {
	if start > 0 && strings.ContainsRune("#/-.", rune(text[start-1])) {
		return true
	}
	if end < len(text) {
		next := text[end]
		if strings.ContainsRune("/-", rune(next)) {
			return true
		}
		if next == '.' && end+1 < len(text) && isAlnum(text[end+1]) {
			return true
		}
		if rest := strings.ToLower(text[end:]); strings.HasPrefix(rest, "mm") {
			return true
		}
	}
	return false
}

func excluded(tok string, exclude []string) bool {
	for _, e := range exclude {
		if strings.EqualFold(tok, e) {
			return true
		}
	}
	return false
}

func isAlnum(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// IsForSale reports whether a post title follows the WTS convention.
func IsForSale(title string) bool {
	return wtsPattern.MatchString(title)
}
