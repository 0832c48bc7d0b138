// Package assemble decorates a drafted course with generated images. The
// cover and every module fan out as independent image jobs; a failed image
// never fails the assembly, the slot simply stays empty.
package assemble

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"courseforge/internal/apperr"
	"courseforge/internal/course"
	"courseforge/internal/fanout"
	"courseforge/internal/metrics"
)

// promptExcerptLen bounds how much module content is folded into a derived
// image prompt when the draft carries none of its own.
const promptExcerptLen = 200

// Materializer produces a durable image for a prompt.
type Materializer interface {
	Materialize(ctx context.Context, prompt string) (*course.ImageAsset, error)
}

// ImageFailure records one image slot that could not be filled.
type ImageFailure struct {
	Slot string      `json:"slot"`
	Kind apperr.Kind `json:"kind"`
	Err  string      `json:"error"`
}

// Report summarizes one assembly run.
type Report struct {
	Attempted int            `json:"attempted"`
	Succeeded int            `json:"succeeded"`
	Failures  []ImageFailure `json:"failures,omitempty"`
	Elapsed   time.Duration  `json:"elapsed"`
}

// Orchestrator runs the image fan-out over a drafted course.
type Orchestrator struct {
	images Materializer
	cfg    fanout.Config
}

func New(images Materializer, cfg fanout.Config) *Orchestrator {
	return &Orchestrator{images: images, cfg: cfg}
}

// Assemble generates the cover image and one image per module, in parallel,
// and writes the successful assets back into draft. It returns an error only
// for a structurally invalid draft; image failures are collected in the
// Report and leave the corresponding slot nil.
func (o *Orchestrator) Assemble(ctx context.Context, draft *course.StructuredCourse) (*Report, error) {
	if err := draft.Validate(); err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidInput, "cannot assemble invalid draft", err)
	}

	start := time.Now()

	// Slot 0 is the cover; slots 1..N are the modules in order.
	jobs := make([]fanout.Job[*course.ImageAsset], 0, len(draft.Modules)+1)
	names := make([]string, 0, len(draft.Modules)+1)

	coverPrompt := draft.CoverImagePrompt
	if coverPrompt == "" {
		coverPrompt = fmt.Sprintf("Professional course cover illustration for a course titled %q", draft.Info.Title)
	}
	jobs = append(jobs, o.job(coverPrompt))
	names = append(names, "cover")

	for i := range draft.Modules {
		m := &draft.Modules[i]
		prompt := m.ImagePrompt
		if prompt == "" {
			prompt = fmt.Sprintf("Educational illustration for a module titled %q: %s",
				m.Title, excerpt(m.Content, promptExcerptLen))
		}
		jobs = append(jobs, o.job(prompt))
		names = append(names, fmt.Sprintf("module %d", m.Number))
	}

	results := fanout.Run(ctx, o.cfg, jobs)

	report := &Report{Attempted: len(results)}
	for _, r := range results {
		if r.Err != nil {
			report.Failures = append(report.Failures, ImageFailure{
				Slot: names[r.Index],
				Kind: apperr.KindOf(r.Err),
				Err:  r.Err.Error(),
			})
			log.Warn().
				Err(r.Err).
				Str("slot", names[r.Index]).
				Msg("Image generation failed; slot left empty")
			continue
		}
		report.Succeeded++
		if r.Index == 0 {
			draft.CoverImage = r.Value
		} else {
			draft.Modules[r.Index-1].Image = r.Value
		}
	}
	report.Elapsed = time.Since(start)

	metrics.ForStage("assembly").
		Count("ImagesAttempted", report.Attempted).
		Count("ImagesSucceeded", report.Succeeded).
		Count("ImagesFailed", len(report.Failures)).
		Duration("LatencyMs", report.Elapsed).
		Flush()

	log.Info().
		Int("attempted", report.Attempted).
		Int("succeeded", report.Succeeded).
		Dur("elapsed", report.Elapsed).
		Msg("Course assembly finished")

	return report, nil
}

func (o *Orchestrator) job(prompt string) fanout.Job[*course.ImageAsset] {
	return func(ctx context.Context) (*course.ImageAsset, error) {
		return o.images.Materialize(ctx, prompt)
	}
}

func excerpt(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
