package imaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"courseforge/internal/apperr"
)

// fakeStore records puts and can be told to fail.
type fakeStore struct {
	puts    int
	failPut error
	lastKey string
}

func (f *fakeStore) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	f.puts++
	f.lastKey = key
	if f.failPut != nil {
		return "", f.failPut
	}
	return "https://bucket.s3.amazonaws.com/" + key, nil
}

// newImageServer serves the generation endpoint and a /image.png download.
func newImageServer(t *testing.T, genStatus int) *httptest.Server {
	t.Helper()
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, generatePath):
			if r.Header.Get("Api-Key") != "test-key" {
				t.Errorf("missing Api-Key header")
			}
			if genStatus != http.StatusOK {
				w.WriteHeader(genStatus)
				return
			}
			json.NewEncoder(w).Encode(generateResponse{
				Data: []generatedImage{{URL: server.URL + "/image.png"}},
			})
		case r.URL.Path == "/image.png":
			w.Header().Set("Content-Type", "image/png")
			w.Write([]byte("png-bytes"))
		default:
			http.NotFound(w, r)
		}
	}))
	return server
}

func newTestGenerator(server *httptest.Server) *IdeogramClient {
	return &IdeogramClient{
		apiKey:     "test-key",
		baseURL:    server.URL,
		httpClient: server.Client(),
	}
}

func TestMaterialize(t *testing.T) {
	server := newImageServer(t, http.StatusOK)
	defer server.Close()

	store := &fakeStore{}
	client := NewPersistenceClient(newTestGenerator(server), store, WithHTTPClient(server.Client()))

	asset, err := client.Materialize(context.Background(), "photosynthesis diagram")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if asset.DurableURL == "" || !strings.Contains(asset.DurableURL, "courses/") {
		t.Errorf("unexpected durable URL: %q", asset.DurableURL)
	}
	if asset.ProviderURL == "" {
		t.Error("provider URL not recorded")
	}
	if !strings.Contains(asset.Prompt, "photosynthesis diagram") {
		t.Errorf("prompt envelope lost the slot prompt: %q", asset.Prompt)
	}
	if asset.InlinePayload != nil {
		t.Error("inline payload present without WithInlinePreview")
	}
	if !strings.HasSuffix(store.lastKey, ".png") {
		t.Errorf("unexpected storage key: %q", store.lastKey)
	}
}

func TestMaterializeInlinePreview(t *testing.T) {
	server := newImageServer(t, http.StatusOK)
	defer server.Close()

	client := NewPersistenceClient(newTestGenerator(server), &fakeStore{},
		WithHTTPClient(server.Client()), WithInlinePreview())

	asset, err := client.Materialize(context.Background(), "cell structure")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(asset.InlinePayload) != "png-bytes" {
		t.Errorf("inline payload not populated: %q", asset.InlinePayload)
	}
}

func TestMaterializeUploadFailureReturnsNoAsset(t *testing.T) {
	server := newImageServer(t, http.StatusOK)
	defer server.Close()

	store := &fakeStore{failPut: errors.New("connection reset")}
	client := NewPersistenceClient(newTestGenerator(server), store, WithHTTPClient(server.Client()))

	asset, err := client.Materialize(context.Background(), "mitosis stages")
	if asset != nil {
		t.Fatal("asset returned despite upload failure")
	}
	if apperr.KindOf(err) != apperr.KindStorageUpload {
		t.Errorf("expected storage_upload kind, got %v", err)
	}
	if !apperr.IsTransient(err) {
		t.Error("upload failure should be retryable")
	}
}

func TestMaterializeProviderFailure(t *testing.T) {
	server := newImageServer(t, http.StatusBadRequest)
	defer server.Close()

	store := &fakeStore{}
	client := NewPersistenceClient(newTestGenerator(server), store, WithHTTPClient(server.Client()))

	_, err := client.Materialize(context.Background(), "some prompt")
	if apperr.KindOf(err) != apperr.KindImageGeneration {
		t.Errorf("expected image_generation kind, got %v", err)
	}
	if apperr.IsTransient(err) {
		t.Error("4xx provider failure should not be retryable")
	}
	if store.puts != 0 {
		t.Errorf("storage touched despite provider failure: %d puts", store.puts)
	}
}

func TestMaterializeProviderOverload(t *testing.T) {
	server := newImageServer(t, http.StatusServiceUnavailable)
	defer server.Close()

	client := NewPersistenceClient(newTestGenerator(server), &fakeStore{}, WithHTTPClient(server.Client()))

	_, err := client.Materialize(context.Background(), "some prompt")
	if !apperr.IsTransient(err) {
		t.Error("5xx provider failure should be retryable")
	}
}

func TestMaterializeEmptyPrompt(t *testing.T) {
	client := NewPersistenceClient(nil, &fakeStore{})
	if _, err := client.Materialize(context.Background(), ""); apperr.KindOf(err) != apperr.KindInvalidInput {
		t.Errorf("expected invalid_input, got %v", err)
	}
}
