package parser

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"watch-deal-finder/internal/models"
)

type TitleInfo struct {
	Brand      string `json:"brand"`
	Model      string `json:"model"`
	Reference  string `json:"reference_number"`
	CleanTitle string `json:"clean_title"`
}

type brandEntry struct {
	match   string
	display string
}

// Gazetteer order matters: the first entry contained in the title wins, so
// longer names that embed a shorter one come first. Match text is lower case
// without diacritics; titles are folded the same way before matching.
var knownBrands = []brandEntry{
	{"patek philippe", "Patek Philippe"},
	{"audemars piguet", "Audemars Piguet"},
	{"vacheron constantin", "Vacheron Constantin"},
	{"a. lange & sohne", "A. Lange & Söhne"},
	{"lange & sohne", "A. Lange & Söhne"},
	{"a. lange", "A. Lange & Söhne"},
	{"jaeger-lecoultre", "Jaeger-LeCoultre"},
	{"glashutte original", "Glashütte Original"},
	{"grand seiko", "Grand Seiko"},
	{"rolex", "Rolex"},
	{"omega", "Omega"},
	{"seiko", "Seiko"},
	{"cartier", "Cartier"},
	{"tudor", "Tudor"},
	{"tag heuer", "TAG Heuer"},
	{"breitling", "Breitling"},
	{"panerai", "Panerai"},
	{"iwc", "IWC"},
	{"zenith", "Zenith"},
	{"breguet", "Breguet"},
	{"blancpain", "Blancpain"},
	{"hublot", "Hublot"},
	{"hermes", "Hermès"},
	{"doxa", "Doxa"},
	{"nomos", "Nomos"},
	{"longines", "Longines"},
	{"mido", "Mido"},
	{"hamilton", "Hamilton"},
	{"bulova", "Bulova"},
	{"tissot", "Tissot"},
	{"rado", "Rado"},
}

var stopPhrases = []string{
	"box and papers", "box & papers", "box/papers", "for sale", "for trade",
	"full set", "price drop", "price reduced", "excellent condition",
	"wts", "wtt", "fs", "ft", "b&p", "bnib", "lnib", "nos", "obo",
	"shipped", "reduced", "ref", "reference", "mint", "unworn",
}

var (
	tagPattern        = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)|\{[^}]*\}`)
	parenPattern      = regexp.MustCompile(`\(([^)]*)\)`)
	priceExprPattern  = regexp.MustCompile(`(?i)[$€£]\s*\d[\d.,]*\s*k?\b|\b\d[\d.,]*\s*k\b|\b\d[\d.,]*(?:\s*(?:usd|eur|gbp|chf)\b|[$€£])|\b(?:usd|eur|gbp|chf)\s*\d[\d.,]*`)
	tokenSplitPattern = regexp.MustCompile(`[\s,;:|!?"'*~]+`)
	refShapePattern   = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9.\-/]*[A-Za-z0-9]$`)
	measurePattern    = regexp.MustCompile(`(?i)^\d+(?:\.\d+)?(?:mm|cm|m|ft|atm|bar|j|jewels?|hz|vph|g)$`)
	datePattern       = regexp.MustCompile(`^\d{1,2}[/.\-]\d{1,2}[/.\-]\d{2,4}$`)
	yearPattern       = regexp.MustCompile(`^(19|20)\d{2}$`)
	punctOnlyPattern  = regexp.MustCompile(`^[\W_]+$`)
	stopPatterns      = compileStopPhrases(stopPhrases)
)

const (
	minRefLen    = 4
	maxRefLen    = 20
	minRefDigits = 3
	modelTrimSet = " -:/,|."
)

// ParseTitle extracts brand, model and reference number from a free-text
// listing title. It never fails: missing parts come back as the Unknown and
// N/A sentinels.
func ParseTitle(title string) TitleInfo {
	title = foldAccents(title)
	clean := strings.TrimSpace(collapseSpaces(tagPattern.ReplaceAllString(title, " ")))

	info := TitleInfo{
		Brand:     matchBrand(clean),
		Reference: models.NoReference,
	}

	if ref := findReference(clean); ref != "" {
		info.Reference = ref
	} else {
		// tags were stripped; a reference written as "(ref. 5513)" is still usable
		for _, m := range parenPattern.FindAllStringSubmatch(title, -1) {
			if ref := findReference(m[1]); ref != "" {
				info.Reference = ref
				break
			}
		}
	}

	info.Model = extractModel(clean, info.Brand, info.Reference)

	if info.Brand != models.UnknownBrand {
		info.CleanTitle = strings.TrimSpace(info.Brand + " " + info.Model)
	} else {
		info.CleanTitle = info.Model
	}
	return info
}

func matchBrand(title string) string {
	lower := strings.ToLower(title)
	for _, b := range knownBrands {
		if strings.Contains(lower, b.match) {
			return b.display
		}
	}
	return models.UnknownBrand
}

// brandMatches returns every gazetteer spelling of a display name, longest
// first.
func brandMatches(display string) []string {
	var out []string
	for _, b := range knownBrands {
		if b.display == display {
			out = append(out, b.match)
		}
	}
	return out
}

var accentFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// foldAccents strips diacritics so "Glashütte" and "Glashutte" compare equal.
func foldAccents(s string) string {
	out, _, err := transform.String(accentFolder, s)
	if err != nil {
		return s
	}
	return out
}

func findReference(text string) string {
	text = priceExprPattern.ReplaceAllString(text, " ")
	for _, tok := range tokenSplitPattern.Split(text, -1) {
		tok = strings.Trim(tok, "#-./()[]{}")
		if isReferenceCandidate(tok) {
			return strings.ToUpper(tok)
		}
	}
	return ""
}

func isReferenceCandidate(tok string) bool {
	if len(tok) < minRefLen || len(tok) > maxRefLen {
		return false
	}
	if !refShapePattern.MatchString(tok) {
		return false
	}

	digits := 0
	for _, r := range tok {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits < minRefDigits {
		return false
	}

	if isPlausibleYear(tok) || measurePattern.MatchString(tok) || datePattern.MatchString(tok) {
		return false
	}
	return true
}

func isPlausibleYear(tok string) bool {
	if !yearPattern.MatchString(tok) {
		return false
	}
	y, err := strconv.Atoi(tok)
	return err == nil && y >= 1900 && y <= 2099
}

func extractModel(clean, brand, ref string) string {
	model := clean
	// an unmarked price is a bare number; drop the one ParsePrice settles on
	if price, ok := ParsePrice(clean, ref); ok && !price.Marked {
		if start, end, _ := bareNumberPrice(clean, []string{ref}); start >= 0 {
			model = clean[:start] + " " + clean[end:]
		}
	}
	model = priceExprPattern.ReplaceAllString(model, " ")

	for _, match := range brandMatches(brand) {
		model = regexp.MustCompile(`(?i)`+regexp.QuoteMeta(match)).ReplaceAllString(model, " ")
	}
	if ref != models.NoReference {
		model = regexp.MustCompile(`(?i)`+regexp.QuoteMeta(ref)).ReplaceAllString(model, " ")
	}
	// boundaries are consumed by each match, so adjacent repeats need another pass
	for _, p := range stopPatterns {
		for p.MatchString(model) {
			model = p.ReplaceAllString(model, "${1} ${2}")
		}
	}

	var kept []string
	for _, f := range strings.Fields(model) {
		if punctOnlyPattern.MatchString(f) {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Trim(strings.Join(kept, " "), modelTrimSet)
}

func compileStopPhrases(phrases []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(phrases))
	for _, p := range phrases {
		out = append(out, regexp.MustCompile(`(?i)(^|[^\w&])`+regexp.QuoteMeta(p)+`($|[^\w&])`))
	}
	return out
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
