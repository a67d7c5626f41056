package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/forPelevin/hlshorts/internal/types"
)

type Adapter struct {
	key      string
	model    string
	endpoint string
	timeout  time.Duration
	client   *http.Client
}

const (
	defaultModel   = "openai/gpt-4o-mini"
	defaultTimeout = 90 * time.Second

	transcriptLimit = 4000

	analyzeTemperature   = 0.7
	analyzeMaxTokens     = 2000
	translateTemperature = 0.3
	translateMaxTokens   = 1000
)

func New(apiKey, model, baseURL string, timeout time.Duration) *Adapter {
	if model == "" {
		model = defaultModel
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Adapter{
		key:      apiKey,
		model:    model,
		endpoint: completionsURL(baseURL),
		timeout:  timeout,
		client:   &http.Client{Timeout: 5 * time.Minute},
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Analyze asks the model for self-contained segments of the transcript. The
// returned candidates are unvalidated.
func (a *Adapter) Analyze(ctx context.Context, transcript string, duration float64) ([]types.RawCandidate, error) {
	msgs := []message{
		{Role: "system", Content: analyzeSystemPrompt},
		{Role: "user", Content: buildAnalyzePrompt(transcript, duration)},
	}
	content, err := a.chat(ctx, msgs, analyzeTemperature, analyzeMaxTokens, true)
	if err != nil {
		return nil, err
	}
	clean, err := extractJSONObject(content)
	if err != nil {
		return nil, err
	}

	var out struct {
		Segments []types.RawCandidate `json:"segments"`
	}
	if err := json.Unmarshal([]byte(clean), &out); err != nil {
		return nil, fmt.Errorf("openrouter: decode segments: %w", err)
	}
	return out.Segments, nil
}

// Translate renders text in targetLang. An empty reply is an error so
// callers keep the original text.
func (a *Adapter) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	msgs := []message{
		{Role: "system", Content: translatePrompt(sourceLang, targetLang)},
		{Role: "user", Content: text},
	}
	content, err := a.chat(ctx, msgs, translateTemperature, translateMaxTokens, false)
	if err != nil {
		return "", err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return "", errors.New("openrouter: empty translation")
	}
	return content, nil
}

func (a *Adapter) chat(ctx context.Context, msgs []message, temperature float64, maxTokens int, jsonMode bool) (string, error) {
	payload := map[string]any{
		"model":       a.model,
		"stream":      false,
		"messages":    msgs,
		"temperature": temperature,
		"max_tokens":  maxTokens,
	}
	if jsonMode {
		payload["response_format"] = map[string]any{"type": "json_object"}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+a.key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("openrouter timeout after %s (model=%s)", a.timeout, a.model)
		}
		return "", errors.New(redactSecrets(err.Error(), a.key))
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rb, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return "", fmt.Errorf("openrouter status %d and read body failed: %v", resp.StatusCode, readErr)
		}
		return "", fmt.Errorf("openrouter status %d: %s", resp.StatusCode, truncate(redactSecrets(string(rb), a.key), 400))
	}

	var raw struct {
		Choices []struct {
			Message struct {
				Content any `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return "", fmt.Errorf("openrouter: decode response: %w", err)
	}
	if len(raw.Choices) == 0 {
		return "", errors.New("openrouter: no choices in response")
	}
	return messageContentToString(raw.Choices[0].Message.Content)
}

func translatePrompt(sourceLang, targetLang string) string {
	return fmt.Sprintf(
		"You translate %s speech into natural, fluent %s for video captions. "+
			"Keep the meaning and tone. Reply with the translation only.",
		languageName(sourceLang, "the source language"), languageName(targetLang, "English"))
}

// languageName spells a language code in English ("fr" -> "French") and
// falls back to the code itself when it is not a known tag.
func languageName(code, empty string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return empty
	}
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.English.Languages().Name(tag); name != "" {
		return name
	}
	return code
}

const analyzeSystemPrompt = "You are a video editor who cuts long videos into engaging vertical shorts. " +
	"You pick segments by where the content naturally starts and ends, never by a fixed length."

func buildAnalyzePrompt(transcript string, duration float64) string {
	return fmt.Sprintf(
		"Find the best segments of this video for short-form vertical clips.\n"+
			"Each segment must start where a topic, scene or action begins and end where it concludes. "+
			"Do not cut mid-sentence or mid-action. Segments should run between 15 and 120 seconds; "+
			"let the content decide the length. Prefer strong opening hooks and clips that stand on their own. "+
			"Return 3 to 7 segments.\n\n"+
			"Video duration: %.1f minutes\n"+
			"Transcript:\n%s\n\n"+
			"Reply with strictly valid JSON (no markdown) of the form:\n"+
			`{"segments":[{"start_time":45.2,"end_time":98.7,"duration":53.5,"topic":"...","hook":"...",`+
			`"title":"...","description":"...","engagement_score":9.2,"content_type":"...","natural_boundary":"..."}]}`,
		duration/60, truncate(transcript, transcriptLimit),
	)
}

func messageContentToString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []any:
		// Some providers return an array of {type,text} parts.
		var b strings.Builder
		for _, it := range x {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			if t, ok := m["text"].(string); ok {
				b.WriteString(t)
			}
		}
		s := b.String()
		if strings.TrimSpace(s) == "" {
			return "", errors.New("openrouter: empty content")
		}
		return s, nil
	default:
		return "", fmt.Errorf("openrouter: unexpected content type %T", v)
	}
}

func extractJSONObject(s string) (string, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return "", errors.New("openrouter: empty content")
	}

	// Strip markdown code fences.
	if strings.HasPrefix(t, "```") {
		// Remove opening fence line.
		if i := strings.Index(t, "\n"); i >= 0 {
			t = t[i+1:]
		}
		// Remove trailing fence.
		if j := strings.LastIndex(t, "```"); j >= 0 {
			t = t[:j]
		}
		t = strings.TrimSpace(t)
	}

	// Best-effort: take the first JSON object found.
	start := strings.Index(t, "{")
	end := strings.LastIndex(t, "}")
	if start >= 0 && end > start {
		return t[start : end+1], nil
	}

	return "", fmt.Errorf("openrouter: could not locate JSON object in: %q", truncate(t, 200))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var (
	bearerTokenRE = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._-]+\b`)
	authHeaderRE  = regexp.MustCompile(`(?i)(authorization\s*[:=]\s*)([^\n\r,;]+)`)
	apiKeyFieldRE = regexp.MustCompile(`(?i)(api[_-]?key\s*[:=]\s*)([^\n\r,;]+)`)
)

func redactSecrets(s, apiKey string) string {
	if s == "" {
		return s
	}
	out := s
	if apiKey != "" {
		out = strings.ReplaceAll(out, apiKey, "[REDACTED]")
	}
	out = bearerTokenRE.ReplaceAllString(out, "Bearer [REDACTED]")
	out = authHeaderRE.ReplaceAllString(out, "${1}[REDACTED]")
	out = apiKeyFieldRE.ReplaceAllString(out, "${1}[REDACTED]")
	return out
}

