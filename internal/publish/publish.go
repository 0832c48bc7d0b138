// Package publish pushes an assembled course to the remote platform: the
// token is validated first, the course is created once, then every module
// becomes one section-creation job in a bounded fan-out. A failed section
// never aborts the run; the report records each module's outcome so failed
// indices can be republished against the same remote course.
package publish

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"courseforge/internal/apperr"
	"courseforge/internal/course"
	"courseforge/internal/fanout"
	"courseforge/internal/metrics"
	"courseforge/internal/platform"
)

// maxUIDAttempts bounds fresh-UID retries when the platform reports the
// cohort UID as already taken.
const maxUIDAttempts = 3

// API is the slice of the platform client the publisher drives.
type API interface {
	ValidateToken(ctx context.Context) error
	CreateCourse(ctx context.Context, req platform.CourseRequest) (string, error)
	CreateSection(ctx context.Context, courseID string, req platform.SectionRequest) (string, error)
}

// Publisher publishes structured courses through a platform API client.
type Publisher struct {
	api    API
	cfg    fanout.Config
	newUID func() string
}

func New(api API, cfg fanout.Config) *Publisher {
	return &Publisher{
		api: api,
		cfg: cfg,
		newUID: func() string {
			return fmt.Sprintf("C-%s-%s", time.Now().UTC().Format("20060102150405"), uuid.NewString()[:8])
		},
	}
}

// Publish validates the token, creates the remote course, and fans out one
// section per module. Token validation failure halts before any remote
// state exists; course creation failure is fatal with no partial report.
// Section failures are recorded per module and never fail the call.
func (p *Publisher) Publish(ctx context.Context, c *course.StructuredCourse) (*course.PublishReport, error) {
	if err := c.Validate(); err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidInput, "cannot publish invalid course", err)
	}
	if c.CoverImage == nil || c.CoverImage.DurableURL == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "course has no durable cover image")
	}

	if err := p.api.ValidateToken(ctx); err != nil {
		return nil, err
	}

	courseID, err := p.createCourse(ctx, c)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	indices := make([]int, len(c.Modules))
	for i := range c.Modules {
		indices[i] = i
	}
	report := p.createSections(ctx, courseID, indices, c)

	metrics.ForStage("publish").
		Count("SectionsCreated", report.Succeeded).
		Count("SectionsFailed", report.Failed).
		Duration("LatencyMs", time.Since(start)).
		Property("courseId", courseID).
		Flush()

	log.Info().
		Str("courseId", courseID).
		Int("total", report.Total).
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Msg("Course published")
	return report, nil
}

// Republish re-runs section creation for the given module indices against
// an existing remote course. It never creates a course and never touches
// modules outside indices. Out-of-range indices are rejected up front.
func (p *Publisher) Republish(ctx context.Context, courseID string, indices []int, c *course.StructuredCourse) (*course.PublishReport, error) {
	if courseID == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "republish requires a course ID")
	}
	if len(indices) == 0 {
		return nil, apperr.New(apperr.KindInvalidInput, "republish requires at least one module index")
	}
	for _, i := range indices {
		if i < 0 || i >= len(c.Modules) {
			return nil, apperr.New(apperr.KindInvalidInput, fmt.Sprintf("module index %d out of range", i))
		}
	}

	if err := p.api.ValidateToken(ctx); err != nil {
		return nil, err
	}

	sorted := append([]int(nil), indices...)
	sort.Ints(sorted)
	report := p.createSections(ctx, courseID, sorted, c)

	log.Info().
		Str("courseId", courseID).
		Ints("indices", sorted).
		Int("succeeded", report.Succeeded).
		Msg("Course sections republished")
	return report, nil
}

// createCourse creates the remote course, retrying with a fresh UID when
// the platform rejects the current one as taken.
func (p *Publisher) createCourse(ctx context.Context, c *course.StructuredCourse) (string, error) {
	req := platform.CourseRequest{
		Title:       c.Info.Title,
		Description: c.Info.Description,
		UID:         p.newUID(),
		CoverURL:    c.CoverImage.DurableURL,
	}

	for attempt := 1; ; attempt++ {
		id, err := fanout.Single(ctx, p.cfg, func(ctx context.Context) (string, error) {
			return p.api.CreateCourse(ctx, req)
		})
		if err == nil {
			return id, nil
		}
		if platform.IsDuplicateUID(err) && attempt < maxUIDAttempts {
			req.UID = p.newUID()
			log.Warn().Int("attempt", attempt).Str("uid", req.UID).Msg("Cohort UID taken; retrying with a fresh one")
			continue
		}
		return "", err
	}
}

// createSections fans out one section-creation job per listed module index
// and assembles the report in index order.
func (p *Publisher) createSections(ctx context.Context, courseID string, indices []int, c *course.StructuredCourse) *course.PublishReport {
	jobs := make([]fanout.Job[course.RemoteSectionRef], len(indices))
	for slot, idx := range indices {
		m := &c.Modules[idx]
		jobs[slot] = func(ctx context.Context) (course.RemoteSectionRef, error) {
			imageURL := ""
			if m.Image != nil {
				imageURL = m.Image.DurableURL
			}
			if imageURL == "" {
				return course.RemoteSectionRef{}, apperr.New(apperr.KindInvalidInput,
					fmt.Sprintf("module %d has no durable image", m.Number))
			}
			id, err := p.api.CreateSection(ctx, courseID, platform.SectionRequest{
				Title:    m.Title,
				Content:  m.Content,
				ImageURL: imageURL,
			})
			if err != nil {
				return course.RemoteSectionRef{}, err
			}
			return course.RemoteSectionRef{SectionID: id}, nil
		}
	}

	results := fanout.Run(ctx, p.cfg, jobs)

	report := &course.PublishReport{
		CourseID: courseID,
		Total:    len(indices),
	}
	for slot, r := range results {
		idx := indices[slot]
		res := course.SectionResult{
			ModuleIndex: idx,
			ModuleTitle: c.Modules[idx].Title,
		}
		if r.Err != nil {
			report.Failed++
			res.ErrorKind = string(apperr.KindOf(r.Err))
			res.Error = r.Err.Error()
			log.Warn().Err(r.Err).Int("moduleIndex", idx).Msg("Section creation failed")
		} else {
			report.Succeeded++
			ref := r.Value
			res.Section = &ref
		}
		report.Sections = append(report.Sections, res)
	}
	return report
}
