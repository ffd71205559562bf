package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const ollamaBaseURL = "http://localhost:11434"

// ollamaModel talks to a locally running Ollama server. format "json" asks
// the runtime to constrain output to a JSON object.
type ollamaModel struct {
	model   string
	baseURL string
	client  *http.Client
}

func newOllama(opts Options) *ollamaModel {
	base := opts.BaseURL
	if base == "" {
		base = ollamaBaseURL
	}
	return &ollamaModel{
		model:   opts.Model,
		baseURL: base,
		client:  &http.Client{Timeout: opts.Timeout},
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Format string `json:"format"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

func (m *ollamaModel) Invoke(ctx context.Context, prompt string) (string, error) {
	reqBody := generateRequest{
		Model:  m.model,
		Prompt: prompt,
		Format: "json",
		Stream: false,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimRight(m.baseURL, "/") + "/api/generate"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return "", &ConnectError{Provider: Ollama, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &InvocationError{Provider: Ollama, Status: resp.StatusCode, Body: string(respBody)}
	}

	var parsed generateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("runtime error: %s", parsed.Error)
	}
	return parsed.Response, nil
}

var _ Model = (*ollamaModel)(nil)
