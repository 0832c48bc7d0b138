package drafter

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"courseforge/internal/apperr"
)

// systemPrompt fixes the model's role across every drafting call.
const systemPrompt = "You are a curriculum development expert. Always return valid JSON. " +
	"The course_title is required and must not be blank. Each module must have a title, " +
	"a highly detailed realistic image prompt, and detailed text content."

// TextGenerator is the language-model provider contract the drafter depends on.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// GeminiGenerator is the production TextGenerator backed by the Gemini API.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

// NewGeminiGenerator creates a Gemini-backed text generator.
func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindGeneration, "create Gemini client", err)
	}
	return &GeminiGenerator{client: client, model: model}, nil
}

// GenerateText sends a single prompt and returns the raw response text.
// Provider errors are reported as transient; the caller's retry policy
// decides how many attempts a drafting call gets.
func (g *GeminiGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	log.Debug().
		Str("model", g.model).
		Int("promptLength", len(prompt)).
		Msg("Starting Gemini API call for curriculum generation")

	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: systemPrompt}},
		},
	}
	contents := []*genai.Content{
		{Role: "user", Parts: []*genai.Part{{Text: prompt}}},
	}

	callStart := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	duration := time.Since(callStart)
	if err != nil {
		log.Error().Err(err).Dur("duration", duration).Msg("Gemini API call failed")
		return "", apperr.Transient(apperr.KindGeneration, "generate content", err)
	}
	if resp == nil {
		return "", apperr.Transient(apperr.KindGeneration, "received empty response from Gemini API", nil)
	}

	text := resp.Text()
	if text == "" {
		return "", apperr.Transient(apperr.KindGeneration, "Gemini response contained no text", nil)
	}

	log.Debug().
		Int("responseLength", len(text)).
		Dur("duration", duration).
		Msg("Gemini API response received")
	return text, nil
}
