package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"bankroll-tracker/internal/config"
	"bankroll-tracker/internal/model"
)

const maxErrorBody = 512

var _ Client = (*GeminiClient)(nil)

// GeminiClient calls the Gemini generateContent REST endpoint with Google
// Search grounding enabled.
type GeminiClient struct {
	Client  *http.Client
	BaseURL string
	APIKey  string
	Model   string
	Count   int              // recommendations requested per call
	Now     func() time.Time // today's date in prompts
}

// NewGeminiClient builds a client from cfg. The HTTP timeout is left to the
// caller's context.
func NewGeminiClient(cfg config.OracleConfig) *GeminiClient {
	count := cfg.Recommendations
	if count <= 0 {
		count = 5
	}
	return &GeminiClient{
		Client:  &http.Client{},
		BaseURL: strings.TrimRight(cfg.BaseURL, "/"),
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		Count:   count,
		Now:     time.Now,
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
	Tools    []geminiTool    `json:"tools,omitempty"`
}

type geminiTool struct {
	GoogleSearch *struct{} `json:"google_search,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// Recommend asks for today's betting opportunities.
func (g *GeminiClient) Recommend(ctx context.Context, bankroll decimal.Decimal) ([]model.Recommendation, error) {
	text, err := g.generate(ctx, recommendPrompt(g.Now(), g.Count, bankroll))
	if err != nil {
		return nil, err
	}
	recs, dropped, err := decodeJSONArray[model.Recommendation](text)
	if err != nil {
		return nil, err
	}
	if dropped > 0 {
		log.Warn().Int("dropped", dropped).Int("kept", len(recs)).Msg("Skipped unreadable recommendations")
	}
	return recs, nil
}

// Audit asks for the real-world outcome of each bet.
func (g *GeminiClient) Audit(ctx context.Context, bets []model.Bet) ([]model.AuditResult, error) {
	prompt, err := auditPrompt(bets)
	if err != nil {
		return nil, err
	}
	text, err := g.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	results, dropped, err := decodeJSONArray[model.AuditResult](text)
	if err != nil {
		return nil, err
	}
	if dropped > 0 {
		log.Warn().Int("dropped", dropped).Int("kept", len(results)).Msg("Skipped unreadable audit entries")
	}
	return results, nil
}

func (g *GeminiClient) generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
		Tools:    []geminiTool{{GoogleSearch: &struct{}{}}},
	})
	if err != nil {
		return "", fmt.Errorf("gemini encode: %w", err)
	}

	u := fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.BaseURL, url.PathEscape(g.Model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("gemini request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.APIKey)

	resp, err := g.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: gemini fetch: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: gemini read body: %w", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		if len(raw) > maxErrorBody {
			raw = raw[:maxErrorBody]
		}
		return "", fmt.Errorf("%w: gemini status %d: %s", ErrUnavailable, resp.StatusCode, string(raw))
	}

	var out geminiResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("%w: gemini decode: %w", ErrMalformed, err)
	}
	if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: gemini blocked prompt: %s", ErrUnavailable, out.PromptFeedback.BlockReason)
	}
	if len(out.Candidates) == 0 {
		return "", fmt.Errorf("%w: gemini returned no candidates", ErrMalformed)
	}

	var sb strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}

// decodeJSONArray extracts the first JSON array from model text, which may
// be wrapped in markdown fences or surrounded by prose. Elements that do not
// decode as T are skipped and counted; only an unreadable array is an error.
func decodeJSONArray[T any](text string) ([]T, int, error) {
	text = stripFences(text)
	start := strings.IndexByte(text, '[')
	end := strings.LastIndexByte(text, ']')
	if start < 0 || end < start {
		return nil, 0, fmt.Errorf("%w: no JSON array in reply", ErrMalformed)
	}

	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(text[start:end+1]), &elems); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	out := make([]T, 0, len(elems))
	dropped := 0
	for i, raw := range elems {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			log.Debug().Err(err).Int("index", i).Msg("Undecodable oracle entry")
			dropped++
			continue
		}
		out = append(out, v)
	}
	return out, dropped, nil
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	} else {
		text = strings.TrimPrefix(text, "```")
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "```"))
}
