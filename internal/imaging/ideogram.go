// Package imaging generates one illustration per course slot and copies it
// into durable storage. The provider hands back an ephemeral URL that is only
// valid for a bounded window; nothing downstream may hold onto it.
package imaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"courseforge/internal/apperr"
)

const (
	// defaultBaseURL is the Ideogram API base URL.
	defaultBaseURL = "https://api.ideogram.ai"

	// generatePath is the Ideogram v3 generation endpoint.
	generatePath = "/v1/ideogram-v3/generate"

	// defaultTimeout is the HTTP client timeout. Image generation can
	// take tens of seconds.
	defaultTimeout = 60 * time.Second
)

// Fixed style configuration for educational illustrations.
const (
	styleAspectRatio    = "1x1"
	styleRenderingSpeed = "DEFAULT"
	styleType           = "REALISTIC"
)

// Generation is an ephemeral provider reference to a freshly generated image.
type Generation struct {
	URL    string
	Prompt string
}

// Generator produces an image for a prompt and returns an ephemeral reference.
type Generator interface {
	Generate(ctx context.Context, prompt string) (*Generation, error)
}

// IdeogramClient calls the Ideogram v3 REST API.
type IdeogramClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewIdeogramClient creates an Ideogram API client.
func NewIdeogramClient(apiKey string) *IdeogramClient {
	return &IdeogramClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// --- API request/response types ---

type generateRequest struct {
	Prompt         string `json:"prompt"`
	AspectRatio    string `json:"aspect_ratio"`
	RenderingSpeed string `json:"rendering_speed"`
	StyleType      string `json:"style_type"`
}

type generateResponse struct {
	Data []generatedImage `json:"data"`
}

type generatedImage struct {
	URL    string `json:"url"`
	Prompt string `json:"prompt,omitempty"`
}

// Generate requests one image and returns its ephemeral URL.
func (c *IdeogramClient) Generate(ctx context.Context, prompt string) (*Generation, error) {
	enhanced := enhancePrompt(prompt)
	log.Debug().Str("prompt", truncate(prompt, 100)).Msg("Generating image with Ideogram")

	body, err := json.Marshal(generateRequest{
		Prompt:         enhanced,
		AspectRatio:    styleAspectRatio,
		RenderingSpeed: styleRenderingSpeed,
		StyleType:      styleType,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindImageGeneration, "marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+generatePath, bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindImageGeneration, "build request", err)
	}
	req.Header.Set("Api-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Transient(apperr.KindImageGeneration, "image generation request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Transient(apperr.KindImageGeneration, "read response", err)
	}

	log.Debug().
		Int("statusCode", resp.StatusCode).
		Dur("duration", time.Since(startTime)).
		Msg("Ideogram API response")

	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("Ideogram API returned status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, apperr.Transient(apperr.KindImageGeneration, msg, nil)
		}
		return nil, apperr.New(apperr.KindImageGeneration, msg)
	}

	var genResp generateResponse
	if err := json.Unmarshal(respBody, &genResp); err != nil {
		return nil, apperr.Wrap(apperr.KindImageGeneration, "parse response", err)
	}
	if len(genResp.Data) == 0 || genResp.Data[0].URL == "" {
		return nil, apperr.New(apperr.KindImageGeneration, "no image URL returned from Ideogram")
	}

	return &Generation{
		URL:    genResp.Data[0].URL,
		Prompt: enhanced,
	}, nil
}

// enhancePrompt wraps a slot prompt in the fixed educational-illustration
// style envelope sent with every generation request.
func enhancePrompt(prompt string) string {
	return fmt.Sprintf(
		"Create a highly realistic, professional educational illustration for: %s. "+
			"Photorealistic quality with high detail, clean modern design suitable for "+
			"course materials, realistic lighting, professional color palette, "+
			"no cartoon or abstract elements.",
		prompt,
	)
}

// truncate returns the first n characters of s, appending "..." if truncated.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
