package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	extractSystemPrompt = "You read second-hand watch sale posts. Answer only with JSON. Use null for anything the text does not state."
	extractTemperature  = 0.0
	extractMaxTokens    = 100
	extractMaxText      = 2000
)

var currencyCodePattern = regexp.MustCompile(`^[A-Z]{3}$`)

// Extraction is what the model read from a listing. Empty fields were not
// found; Price is 0 when no asking price was stated.
type Extraction struct {
	Brand    string  `json:"brand"`
	Model    string  `json:"model"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
}

// LLMExtractor reads brand, model and asking price from listings the title
// parsers could not make sense of.
type LLMExtractor struct {
	chat *chatClient
}

// NewLLMExtractor returns nil when no API key is configured.
func NewLLMExtractor(cfg LLMConfig) *LLMExtractor {
	chat := newChatClient(cfg)
	if chat == nil {
		return nil
	}
	return &LLMExtractor{chat: chat}
}

func (e *LLMExtractor) Extract(ctx context.Context, title, text string) (Extraction, error) {
	content, err := e.chat.completeJSON(ctx, extractSystemPrompt, extractPrompt(title, text), extractTemperature, extractMaxTokens)
	if err != nil {
		return Extraction{}, err
	}
	return parseExtraction(content)
}

type llmExtraction struct {
	Brand    *string  `json:"brand"`
	Model    *string  `json:"model"`
	Price    *float64 `json:"price"`
	Currency *string  `json:"currency"`
}

func parseExtraction(content string) (Extraction, error) {
	content = jsonObject(content)

	var raw llmExtraction
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return Extraction{}, fmt.Errorf("decode extraction %q: %w", content, err)
	}

	ex := Extraction{
		Brand: cleanField(raw.Brand),
		Model: cleanField(raw.Model),
	}
	if raw.Price != nil && *raw.Price > 0 {
		ex.Price = *raw.Price
		ex.Currency = strings.ToUpper(cleanField(raw.Currency))
		if !currencyCodePattern.MatchString(ex.Currency) {
			ex.Currency = ""
		}
	}
	return ex, nil
}

// cleanField treats the answers models give instead of null as empty.
func cleanField(s *string) string {
	if s == nil {
		return ""
	}
	v := strings.TrimSpace(*s)
	switch strings.ToLower(v) {
	case "null", "none", "unknown", "n/a":
		return ""
	}
	return v
}

func extractPrompt(title, text string) string {
	text = strings.TrimSpace(text)
	if len(text) > extractMaxText {
		cut := extractMaxText
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}

	var b strings.Builder
	b.WriteString("Read this watch sale post.\n\n")
	fmt.Fprintf(&b, "TITLE: %s\n", title)
	if text != "" {
		fmt.Fprintf(&b, "\nTEXT:\n---\n%s\n---\n", text)
	}
	b.WriteString(`
Answer ONLY with JSON: {"brand": "<watch brand>", "model": "<model name>", "price": <asking price as a number, no symbols>, "currency": "<ISO 4217 code>"}`)
	return b.String()
}
