// Package platform provides a client for the course platform admin API.
// Courses are "cohorts" on the wire; a published module is one slide
// attached to its cohort.
//
// Every call carries a bearer token. Authentication failures (401/403) are
// classified apart from other platform errors so callers can halt before
// creating remote state with a bad token.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"courseforge/internal/apperr"
)

const (
	// defaultBaseURL is the platform admin API base URL.
	defaultBaseURL = "https://admin.lisaapp.net"

	// defaultTimeout is the HTTP client timeout for API calls.
	defaultTimeout = 30 * time.Second

	createCoursePath  = "/v1/cohort/new"
	coursePath        = "/v1/cohort/%s"
	createSectionPath = "/v2/slides/cohort/%s"
	profilePath       = "/v1/user/profile"
)

// Client provides methods for publishing courses to the platform admin API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	orgID      string
}

// NewClient creates a platform API client. baseURL may be empty to use the
// production endpoint.
func NewClient(baseURL, token, orgID string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		orgID:   orgID,
	}
}

// --- Request types ---

// CourseRequest carries everything needed to create a remote course.
type CourseRequest struct {
	Title       string
	Description string
	UID         string
	CoverURL    string
}

// courseBody is the cohort creation payload.
type courseBody struct {
	Title              string       `json:"title"`
	Details            string       `json:"details"`
	UID                string       `json:"uid"`
	OrgID              string       `json:"orgId"`
	Mode               string       `json:"mode"`
	Type               string       `json:"type"`
	Duration           durationBody `json:"duration"`
	SupportedLanguages string       `json:"supportedLanguages"`
	Icon               *string      `json:"icon"`
	CoverImage         string       `json:"coverImage"`
}

type durationBody struct {
	Duration int `json:"duration"`
}

// SectionRequest carries one module's content for slide creation.
type SectionRequest struct {
	Title    string
	Content  string
	ImageURL string
}

// slideBody is the slide creation payload. The platform renders title and
// description as styled text blocks over a fullscreen image.
type slideBody struct {
	Type              string     `json:"type"`
	Title             textBlock  `json:"title"`
	Description       textBlock  `json:"description"`
	TextContainerSize string     `json:"textContainerSize"`
	BackgroundColor   *string    `json:"backgroundColor"`
	Media             slideMedia `json:"media"`
	Options           []any      `json:"options"`
	AssessmentPrompt  string     `json:"assessmentPrompt"`
	RestrictScroll    bool       `json:"restrictScroll"`
	MaxDuration       int        `json:"maxDuration"`
}

type textBlock struct {
	Text      string    `json:"text"`
	Color     *string   `json:"color"`
	Alignment alignment `json:"alignment"`
	Weight    int       `json:"weight"`
	Italics   bool      `json:"italics"`
}

type alignment struct {
	Horizontal string `json:"horizontal"`
	Vertical   string `json:"vertical"`
}

type slideMedia struct {
	Type      string `json:"type"`
	URL       string `json:"url"`
	Alignment string `json:"alignment"`
}

// --- Response types ---

// createCourseResponse is the cohort creation response. The new cohort's ID
// is buried under results.data.cohortDetails, with top-level fallbacks for
// older response shapes.
type createCourseResponse struct {
	ID       string `json:"id"`
	CohortID string `json:"cohortId"`
	AltID    string `json:"_id"`
	Results  struct {
		Data struct {
			CohortDetails struct {
				ID    string `json:"_id"`
				AltID string `json:"id"`
			} `json:"cohortDetails"`
		} `json:"data"`
	} `json:"results"`
}

func (r *createCourseResponse) courseID() string {
	for _, id := range []string{
		r.Results.Data.CohortDetails.ID,
		r.Results.Data.CohortDetails.AltID,
		r.ID,
		r.CohortID,
		r.AltID,
	} {
		if id != "" {
			return id
		}
	}
	return ""
}

type createSectionResponse struct {
	ID    string `json:"id"`
	AltID string `json:"_id"`
}

// --- Operations ---

// ValidateToken checks the bearer token against the profile endpoint. A
// 401 or 403 response is an authentication error; any other failure is a
// platform error.
func (c *Client) ValidateToken(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, profilePath, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp, "token validation"); err != nil {
		return err
	}
	log.Debug().Msg("Platform token validated")
	return nil
}

// CreateCourse creates a remote course and returns its platform ID. A
// response from which no ID can be extracted is a platform error.
func (c *Client) CreateCourse(ctx context.Context, req CourseRequest) (string, error) {
	log.Debug().Str("title", req.Title).Str("uid", req.UID).Msg("Creating platform course")

	body := courseBody{
		Title:              req.Title,
		Details:            req.Description,
		UID:                req.UID,
		OrgID:              c.orgID,
		Mode:               "offline",
		Type:               "C",
		Duration:           durationBody{Duration: 30},
		SupportedLanguages: "en_US",
		CoverImage:         req.CoverURL,
	}

	resp, err := c.do(ctx, http.MethodPost, createCoursePath, body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp, "course creation"); err != nil {
		return "", err
	}

	var created createCourseResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", apperr.Wrap(apperr.KindPlatformAPI, "decode course creation response", err)
	}
	id := created.courseID()
	if id == "" {
		return "", apperr.New(apperr.KindPlatformAPI, "course creation response carried no course ID")
	}

	log.Info().Str("courseId", id).Str("title", req.Title).Msg("Platform course created")
	return id, nil
}

// CreateSection attaches one slide to an existing course and returns the
// slide's platform ID, which may be empty when the platform acknowledges
// without one.
func (c *Client) CreateSection(ctx context.Context, courseID string, req SectionRequest) (string, error) {
	start := time.Now()

	body := slideBody{
		Type: "default",
		Title: textBlock{
			Text:      req.Title,
			Alignment: alignment{Horizontal: "start", Vertical: "center"},
			Weight:    600,
		},
		Description: textBlock{
			Text:      req.Content,
			Alignment: alignment{Horizontal: "start", Vertical: "center"},
			Weight:    400,
		},
		TextContainerSize: "auto",
		Media: slideMedia{
			Type:      "image",
			URL:       req.ImageURL,
			Alignment: "fullscreen",
		},
		Options: []any{},
	}

	resp, err := c.do(ctx, http.MethodPost, fmt.Sprintf(createSectionPath, courseID), body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp, "section creation"); err != nil {
		return "", err
	}

	var created createSectionResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		// Some deployments return non-JSON bodies on success.
		log.Debug().Err(err).Msg("Section creation response not decodable")
	}
	id := created.ID
	if id == "" {
		id = created.AltID
	}

	log.Debug().
		Str("courseId", courseID).
		Str("sectionId", id).
		Dur("duration", time.Since(start)).
		Msg("Platform section created")
	return id, nil
}

// CourseExists reports whether courseID resolves on the platform. Transport
// failures are returned as errors; a clean non-200 means "does not exist".
func (c *Client) CourseExists(ctx context.Context, courseID string) (bool, error) {
	resp, err := c.do(ctx, http.MethodGet, fmt.Sprintf(coursePath, courseID), nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK, nil
}

// IsDuplicateUID reports whether err is a course-creation rejection caused
// by an already-taken cohort UID. Callers retry those with a fresh UID.
func IsDuplicateUID(err error) bool {
	if err == nil || apperr.KindOf(err) != apperr.KindPlatformAPI {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "already exist")
}

// --- Internals ---

// do sends an authenticated JSON request. Transport failures come back as
// transient platform errors.
func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindPlatformAPI, "encode request body", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPlatformAPI, "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Transient(apperr.KindPlatformAPI, fmt.Sprintf("%s %s", method, path), err)
	}
	return resp, nil
}

// classifyStatus maps an error status to the right error kind: 401/403 are
// authentication errors, 5xx and 429 are transient platform errors, any
// other non-2xx is a permanent platform error.
func classifyStatus(resp *http.Response, op string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	preview, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := fmt.Sprintf("%s failed with status %d: %s", op, resp.StatusCode, truncate(string(preview), 200))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return apperr.New(apperr.KindAuth, msg)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return apperr.Transient(apperr.KindPlatformAPI, msg, nil)
	default:
		return apperr.New(apperr.KindPlatformAPI, msg)
	}
}

// truncate shortens s for log and error output.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
