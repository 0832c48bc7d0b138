package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"courseforge/internal/apperr"
	"courseforge/internal/assemble"
	"courseforge/internal/config"
	"courseforge/internal/course"
	"courseforge/internal/drafter"
	"courseforge/internal/extract"
	"courseforge/internal/fanout"
	"courseforge/internal/platform"
	"courseforge/internal/publish"
)

// maxUploadSize bounds document uploads.
const maxUploadSize = 32 << 20

// tokenStore holds the process-wide default platform token. Requests may
// override it per call; the core packages never read it implicitly.
type tokenStore struct {
	mu    sync.Mutex
	token string
}

func (s *tokenStore) Set(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

func (s *tokenStore) Get() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// app carries the wired dependencies behind the HTTP handlers. generator
// and images are nil when the corresponding provider is unconfigured.
type app struct {
	cfg       *config.Config
	generator drafter.TextGenerator
	images    assemble.Materializer
	tokens    *tokenStore
}

func newRouter(a *app) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "courseforge"})
	})

	r.Post("/extract-text", a.handleExtractText)
	r.Post("/generate-course", a.handleGenerateCourse)
	r.Post("/publish-course", a.handlePublishCourse)
	r.Post("/republish", a.handleRepublish)
	r.Post("/token", a.handleSetToken)
	r.Get("/token", a.handleTokenStatus)

	return r
}

func (a *app) fanoutConfig() fanout.Config {
	return fanout.Config{
		MaxParallelism: a.cfg.MaxParallelism,
		PerJobTimeout:  a.cfg.JobTimeout,
		MaxRetries:     a.cfg.MaxRetries,
	}
}

// --- Extraction and generation ---

func (a *app) handleExtractText(w http.ResponseWriter, r *http.Request) {
	data, filename, ok := readUpload(w, r)
	if !ok {
		return
	}

	src, err := extract.TextFromBytes(data, filename)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"filename":    src.OriginFilename,
		"text_length": src.Length,
		"text":        src.Content,
	})
}

func (a *app) handleGenerateCourse(w http.ResponseWriter, r *http.Request) {
	if a.generator == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "language-model provider not configured"})
		return
	}
	data, filename, ok := readUpload(w, r)
	if !ok {
		return
	}
	skipImages := r.FormValue("skip_images") == "true"
	if !skipImages && a.images == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "image provider not configured"})
		return
	}

	src, err := extract.TextFromBytes(data, filename)
	if err != nil {
		writeError(w, err)
		return
	}

	draft, audit, err := drafter.New(a.generator, a.fanoutConfig()).Draft(r.Context(), src)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := map[string]any{"course": draft, "audit": audit}
	if !skipImages {
		report, err := assemble.New(a.images, a.fanoutConfig()).Assemble(r.Context(), draft)
		if err != nil {
			writeError(w, err)
			return
		}
		resp["assembly"] = report
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Publishing ---

type publishRequest struct {
	Course   *course.StructuredCourse `json:"course"`
	CourseID string                   `json:"course_id,omitempty"`
	Indices  []int                    `json:"indices,omitempty"`
	Token    string                   `json:"token,omitempty"`
	OrgID    string                   `json:"org_id,omitempty"`
}

func (a *app) handlePublishCourse(w http.ResponseWriter, r *http.Request) {
	req, p, ok := a.publisherFor(w, r)
	if !ok {
		return
	}

	report, err := p.Publish(r.Context(), req.Course)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *app) handleRepublish(w http.ResponseWriter, r *http.Request) {
	req, p, ok := a.publisherFor(w, r)
	if !ok {
		return
	}

	report, err := p.Republish(r.Context(), req.CourseID, req.Indices, req.Course)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// publisherFor decodes a publish request and builds a publisher bound to
// the request's token, falling back to the stored default.
func (a *app) publisherFor(w http.ResponseWriter, r *http.Request) (*publishRequest, *publish.Publisher, bool) {
	var req publishRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadSize)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body: " + err.Error()})
		return nil, nil, false
	}
	if req.Course == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "course is required"})
		return nil, nil, false
	}

	token := req.Token
	if token == "" {
		token = a.tokens.Get()
	}
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "no platform token provided or stored"})
		return nil, nil, false
	}
	orgID := req.OrgID
	if orgID == "" {
		orgID = a.cfg.PlatformOrgID
	}

	client := platform.NewClient(a.cfg.PlatformBaseURL, token, orgID)
	return &req, publish.New(client, a.fanoutConfig()), true
}

// --- Token management ---

func (a *app) handleSetToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Token == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "token is required"})
		return
	}
	a.tokens.Set(body.Token)
	log.Info().Msg("Default platform token updated")
	writeJSON(w, http.StatusOK, map[string]any{"stored": true})
}

func (a *app) handleTokenStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"stored": a.tokens.Get() != ""})
}

// --- Helpers ---

// readUpload pulls the "file" part out of a multipart upload. It writes the
// error response itself when the upload is unusable.
func readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "expected multipart upload: " + err.Error()})
		return nil, "", false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "file field is required"})
		return nil, "", false
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadSize))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read upload: " + err.Error()})
		return nil, "", false
	}
	return data, header.Filename, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// writeError maps error kinds to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.KindInvalidInput, apperr.KindExtraction:
		status = http.StatusBadRequest
	case apperr.KindAuth:
		status = http.StatusUnauthorized
	case apperr.KindTimeout:
		status = http.StatusGatewayTimeout
	case apperr.KindGeneration, apperr.KindImageGeneration, apperr.KindPlatformAPI, apperr.KindStorageUpload:
		status = http.StatusBadGateway
	}
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}

	log.Error().Err(err).Int("status", status).Msg("Request failed")
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"kind":  string(apperr.KindOf(err)),
	})
}
