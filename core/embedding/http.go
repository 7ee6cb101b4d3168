package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/siherrmann/ragger/helper"
)

// HTTPConfig configures an HTTPProvider.
type HTTPConfig struct {
	// BaseURL is the API root, for example https://api.openai.com/v1.
	BaseURL string
	// APIKey is sent as bearer token when set.
	APIKey string
	// Model is the embedding model identifier.
	Model string
	// Timeout bounds a single request, defaults to 30 seconds.
	Timeout time.Duration
}

// HTTPProvider calls an OpenAI compatible embeddings endpoint.
type HTTPProvider struct {
	config HTTPConfig
	client *http.Client
}

// NewHTTPProvider creates a provider for an OpenAI compatible embeddings API.
func NewHTTPProvider(config HTTPConfig) (*HTTPProvider, error) {
	if strings.TrimSpace(config.BaseURL) == "" {
		return nil, helper.NewError("http provider configuration", fmt.Errorf("base url must not be empty"))
	}
	if strings.TrimSpace(config.Model) == "" {
		return nil, helper.NewError("http provider configuration", fmt.Errorf("model must not be empty"))
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &HTTPProvider{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}, nil
}

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed requests one embedding per text. Vectors are reassembled by the
// index field so provider side reordering cannot scramble the batch.
func (p *HTTPProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embeddingsRequest{Model: p.config.Model, Input: texts})
	if err != nil {
		return nil, &ProviderError{Operation: "encode request", Err: err}
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, &ProviderError{Operation: "build request", Err: err}
	}
	request.Header.Set("Content-Type", "application/json")
	if p.config.APIKey != "" {
		request.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}

	response, err := p.client.Do(request)
	if err != nil {
		return nil, &ProviderError{Operation: "send request", Transient: true, Err: err}
	}
	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		message, _ := io.ReadAll(io.LimitReader(response.Body, 4096))
		return nil, &ProviderError{
			Operation: "embeddings request",
			Status:    response.StatusCode,
			Transient: transientStatus(response.StatusCode),
			Err:       fmt.Errorf("%v", strings.TrimSpace(string(message))),
		}
	}

	var parsed embeddingsResponse
	if err := json.NewDecoder(response.Body).Decode(&parsed); err != nil {
		return nil, &ProviderError{Operation: "decode response", Err: err}
	}
	if len(parsed.Data) != len(texts) {
		return nil, &ProviderError{
			Operation: "decode response",
			Err:       fmt.Errorf("expected %v embeddings, got %v", len(texts), len(parsed.Data)),
		}
	}

	vectors := make([][]float32, len(texts))
	for _, item := range parsed.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			return nil, &ProviderError{
				Operation: "decode response",
				Err:       fmt.Errorf("embedding index %v out of range", item.Index),
			}
		}
		vectors[item.Index] = item.Embedding
	}
	return vectors, nil
}

// ModelID returns the configured model identifier.
func (p *HTTPProvider) ModelID() string {
	return p.config.Model
}

// Close closes idle connections.
func (p *HTTPProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
