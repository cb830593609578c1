package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"watch-deal-finder/internal/models"
)

const (
	LLMScorerName = "llm"

	llmSystemPrompt = "You are a luxury watch expert. Rate how good a second-hand watch deal is, objectively, and answer only with JSON."
	llmTemperature  = 0.2
	llmMaxTokens    = 120
)

var ErrNoCompletion = errors.New("llm returned no completion")

type LLMConfig struct {
	APIKey  string
	URL     string
	Model   string
	Timeout time.Duration
}

// chatClient talks to an OpenAI compatible chat-completions endpoint and
// returns the first choice's content.
type chatClient struct {
	cfg        LLMConfig
	httpClient *http.Client
}

// newChatClient returns nil when no API key or URL is configured.
func newChatClient(cfg LLMConfig) *chatClient {
	if cfg.APIKey == "" || cfg.URL == "" {
		return nil
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &chatClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// completeJSON sends one system and one user message and asks for a JSON
// object back.
func (c *chatClient) completeJSON(ctx context.Context, system, user string, temperature float64, maxTokens int) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature:    temperature,
		MaxTokens:      maxTokens,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("llm status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var completion chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return "", fmt.Errorf("decode completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", ErrNoCompletion
	}
	return completion.Choices[0].Message.Content, nil
}

// jsonObject trims anything around the outermost braces; some models wrap
// the object in a markdown fence.
func jsonObject(content string) string {
	content = strings.TrimSpace(content)
	if start, end := strings.Index(content, "{"), strings.LastIndex(content, "}"); start >= 0 && end > start {
		return content[start : end+1]
	}
	return content
}

// LLMScorer asks the chat endpoint to score a deal.
type LLMScorer struct {
	chat *chatClient
}

// NewLLMScorer returns nil when no API key is configured.
func NewLLMScorer(cfg LLMConfig) *LLMScorer {
	chat := newChatClient(cfg)
	if chat == nil {
		return nil
	}
	return &LLMScorer{chat: chat}
}

func (l *LLMScorer) Name() string { return LLMScorerName }

type llmVerdict struct {
	Score     *float64 `json:"score"`
	Rationale string   `json:"rationale"`
}

func (l *LLMScorer) Score(ctx context.Context, deal *models.Deal) (Result, error) {
	content, err := l.chat.completeJSON(ctx, llmSystemPrompt, dealPrompt(deal), llmTemperature, llmMaxTokens)
	if err != nil {
		return Result{}, err
	}
	return parseVerdict(content)
}

func parseVerdict(content string) (Result, error) {
	content = jsonObject(content)

	var v llmVerdict
	if err := json.Unmarshal([]byte(content), &v); err != nil {
		return Result{}, fmt.Errorf("decode verdict %q: %w", content, err)
	}
	if v.Score == nil {
		return Result{}, fmt.Errorf("verdict without score: %q", content)
	}

	return Result{
		Score:     clamp(int(math.Round(*v.Score))),
		Rationale: strings.TrimSpace(v.Rationale),
		Scorer:    LLMScorerName,
	}, nil
}

func dealPrompt(d *models.Deal) string {
	var b strings.Builder
	b.WriteString("Score this used watch listing from 0 to 100 and give a short reason.\n\nLISTING:\n")
	fmt.Fprintf(&b, "- Title: %s\n", d.OriginalTitle)
	fmt.Fprintf(&b, "- Brand: %s\n", d.Brand)
	fmt.Fprintf(&b, "- Model: %s\n", d.Model)
	fmt.Fprintf(&b, "- Reference: %s\n", d.ReferenceNumber)
	fmt.Fprintf(&b, "- Asking price: %.0f %s\n", d.PriceBase, d.BaseCurrency)
	fmt.Fprintf(&b, "- Estimated market value (past sales): %s\n", optionalPrice(d.MarketPrice, d.BaseCurrency))
	fmt.Fprintf(&b, "- Retail / grey market price: %s\n", optionalPrice(d.RetailPrice, d.BaseCurrency))
	fmt.Fprintf(&b, "- Source: %s\n", d.Source)
	fmt.Fprintf(&b, "- Photos: %d\n", len(d.ImageURLs))
	b.WriteString(`
CRITERIA:
1. Price against value weighs most: asking well below market value is a great deal.
2. Brand and model liquidity: Rolex, Patek Philippe and Audemars Piguet are safer.
3. Data completeness: a reference number and many photos make the listing more reliable.

Answer ONLY with JSON: {"score": <integer 0-100>, "rationale": "<one sentence, at most 15 words>"}`)
	return b.String()
}

func optionalPrice(p *float64, currency string) string {
	if p == nil {
		return "unknown"
	}
	return fmt.Sprintf("%.0f %s", *p, currency)
}
