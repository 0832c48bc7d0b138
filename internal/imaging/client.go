package imaging

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"courseforge/internal/apperr"
	"courseforge/internal/course"
	"courseforge/internal/storage"
)

// maxInlinePayload caps the preview copy embedded in an ImageAsset.
// Larger images keep only their durable reference.
const maxInlinePayload = 2 << 20 // 2 MiB

// PersistenceClient materializes prompts into durably stored image assets:
// generate, fetch the bytes from the ephemeral reference, write them to
// durable storage, and return the canonical URL.
//
// The operation is all-or-nothing. If the durable write fails, no asset is
// returned even though generation succeeded: the ephemeral reference is not a
// durable contract and must never leak into persisted output.
type PersistenceClient struct {
	generator     Generator
	store         storage.Store
	httpClient    *http.Client
	inlinePreview bool
}

// Option configures a PersistenceClient.
type Option func(*PersistenceClient)

// WithInlinePreview embeds a copy of the image bytes in each returned asset
// for preview use, subject to the inline size cap.
func WithInlinePreview() Option {
	return func(c *PersistenceClient) { c.inlinePreview = true }
}

// WithHTTPClient overrides the HTTP client used to fetch image bytes.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *PersistenceClient) { c.httpClient = hc }
}

// NewPersistenceClient wires a generator to a durable store.
func NewPersistenceClient(generator Generator, store storage.Store, opts ...Option) *PersistenceClient {
	c := &PersistenceClient{
		generator: generator,
		store:     store,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Materialize generates an image for prompt and persists it, returning the
// fully populated asset. Provider and fetch failures carry the
// image-generation kind; durable-write failures carry the storage-upload
// kind, so callers can tell which half of the operation to retry.
func (c *PersistenceClient) Materialize(ctx context.Context, prompt string) (*course.ImageAsset, error) {
	if prompt == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "empty image prompt")
	}

	gen, err := c.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate image: %w", err)
	}

	data, err := c.fetch(ctx, gen.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch generated image: %w", err)
	}

	// Collision-resistant key from a fresh identifier; prompts are not
	// guaranteed unique, so no content-derived keys.
	key := fmt.Sprintf("courses/%s.png", uuid.NewString())
	durableURL, err := c.store.Put(ctx, key, data, "image/png")
	if err != nil {
		return nil, apperr.Transient(apperr.KindStorageUpload, "persist generated image", err)
	}

	asset := &course.ImageAsset{
		Prompt:      gen.Prompt,
		ProviderURL: gen.URL,
		DurableURL:  durableURL,
	}
	if c.inlinePreview && len(data) <= maxInlinePayload {
		asset.InlinePayload = data
	}

	log.Info().
		Str("key", key).
		Int("bytes", len(data)).
		Msg("Image materialized")
	return asset, nil
}

// fetch downloads the image bytes behind an ephemeral provider URL.
func (c *PersistenceClient) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindImageGeneration, "build fetch request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Transient(apperr.KindImageGeneration, "download image", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperr.Transient(apperr.KindImageGeneration,
			fmt.Sprintf("image download returned status %d", resp.StatusCode), nil)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Transient(apperr.KindImageGeneration, "read image bytes", err)
	}
	if len(data) == 0 {
		return nil, apperr.New(apperr.KindImageGeneration, "image download returned no data")
	}
	return data, nil
}
