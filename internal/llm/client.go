package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// APIFormat selects how a provider's chat-completions response is parsed.
type APIFormat string

const (
	APIFormatOpenAI    APIFormat = "openai"
	APIFormatAnthropic APIFormat = "anthropic"
	APIFormatOllama    APIFormat = "ollama"
)

// LanguageModel is the abstraction every pipeline stage calls through. The
// vendor SDK behind a concrete implementation is deliberately out of scope —
// stages only ever see this interface.
type LanguageModel interface {
	// Call sends a system+user prompt pair and returns the raw text of the
	// model's reply. Callers that need structured output are expected to
	// instruct the model via the prompt and parse the reply themselves.
	Call(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Config describes a single configured provider endpoint.
type Config struct {
	BaseURL  string
	APIKey   string
	Model    string
	Format   APIFormat
	Timeout  time.Duration
}

// HTTPLanguageModel calls an OpenAI/Anthropic/Ollama-compatible chat
// completions endpoint over HTTP.
type HTTPLanguageModel struct {
	cfg    Config
	client *http.Client
}

// NewHTTPLanguageModel builds a LanguageModel backed by an HTTP endpoint.
func NewHTTPLanguageModel(cfg Config) *HTTPLanguageModel {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &HTTPLanguageModel{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (m *HTTPLanguageModel) Call(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	body, err := m.buildRequestBody(systemPrompt, userPrompt)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.apiURL(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	m.setAuthHeaders(req)

	resp, err := m.client.Do(req)
	if err != nil {
		return "", WrapError(err, string(m.cfg.Format), m.cfg.Model)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return "", ClassifyError(fmt.Errorf("upstream returned %s", resp.Status), string(m.cfg.Format), m.cfg.Model, resp.StatusCode)
	}

	return parseResponse(m.cfg.Format, respBody)
}

func (m *HTTPLanguageModel) apiURL() string {
	switch m.cfg.Format {
	case APIFormatAnthropic:
		return m.cfg.BaseURL + "/v1/messages"
	case APIFormatOllama:
		return m.cfg.BaseURL + "/api/chat"
	default:
		return m.cfg.BaseURL + "/v1/chat/completions"
	}
}

func (m *HTTPLanguageModel) setAuthHeaders(req *http.Request) {
	if m.cfg.APIKey == "" {
		return
	}
	switch m.cfg.Format {
	case APIFormatAnthropic:
		req.Header.Set("x-api-key", m.cfg.APIKey)
		req.Header.Set("anthropic-version", "2023-06-01")
	case APIFormatOllama:
		// local Ollama deployments are typically unauthenticated
	default:
		req.Header.Set("Authorization", "Bearer "+m.cfg.APIKey)
	}
}

func (m *HTTPLanguageModel) buildRequestBody(systemPrompt, userPrompt string) ([]byte, error) {
	switch m.cfg.Format {
	case APIFormatAnthropic:
		return json.Marshal(map[string]any{
			"model":      m.cfg.Model,
			"system":     systemPrompt,
			"max_tokens": 4096,
			"messages": []map[string]string{
				{"role": "user", "content": userPrompt},
			},
		})
	case APIFormatOllama:
		return json.Marshal(map[string]any{
			"model":  m.cfg.Model,
			"stream": false,
			"messages": []map[string]string{
				{"role": "system", "content": systemPrompt},
				{"role": "user", "content": userPrompt},
			},
		})
	default:
		return json.Marshal(map[string]any{
			"model": m.cfg.Model,
			"messages": []map[string]string{
				{"role": "system", "content": systemPrompt},
				{"role": "user", "content": userPrompt},
			},
			"response_format": map[string]string{"type": "json_object"},
		})
	}
}

func parseResponse(format APIFormat, body []byte) (string, error) {
	switch format {
	case APIFormatAnthropic:
		return parseAnthropicFormat(body)
	case APIFormatOllama:
		return parseOllamaFormat(body)
	default:
		return parseOpenAIFormat(body)
	}
}

func parseOpenAIFormat(body []byte) (string, error) {
	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("decode openai response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", ErrProviderError
	}
	return decoded.Choices[0].Message.Content, nil
}

func parseAnthropicFormat(body []byte) (string, error) {
	var decoded struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("decode anthropic response: %w", err)
	}
	if len(decoded.Content) == 0 {
		return "", ErrProviderError
	}
	return decoded.Content[0].Text, nil
}

func parseOllamaFormat(body []byte) (string, error) {
	var decoded struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("decode ollama response: %w", err)
	}
	return decoded.Message.Content, nil
}
