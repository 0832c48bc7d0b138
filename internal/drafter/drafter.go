// Package drafter turns extracted source text into a structured course
// skeleton: titles, descriptions, content, and image prompts, but no images.
//
// The model's free-form response is parsed in three tiers, first match wins:
// a strict JSON parse, a lenient parse that digs the JSON out of fences or
// prose, and a heuristic fallback that splits the raw text on section
// markers. The fallback is total, so a draft is always produced; tier choice
// is an expected degradation, logged but never an error.
package drafter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"courseforge/internal/apperr"
	"courseforge/internal/course"
	"courseforge/internal/fanout"
	"courseforge/internal/jsonutil"
)

// ParseTier identifies which parsing strategy accepted the model output.
type ParseTier string

const (
	TierStrict    ParseTier = "strict"
	TierLenient   ParseTier = "lenient"
	TierHeuristic ParseTier = "heuristic"
)

// fallbackModuleTitle names the single module produced for a response with
// no recoverable structure at all.
const fallbackModuleTitle = "Course Content"

// excerptLen bounds how much of each raw section is quoted in the prompt.
const excerptLen = 2000

// Audit preserves the unparsed provider response for inspection alongside
// the structured result.
type Audit struct {
	RawResponse string    `json:"raw_response"`
	Tier        ParseTier `json:"parse_tier"`
}

// Drafter drives a TextGenerator and parses its output into a course draft.
type Drafter struct {
	gen   TextGenerator
	retry fanout.Config
}

// New creates a Drafter. retry governs the single provider call (transient
// failures only; malformed output is never a provider failure).
func New(gen TextGenerator, retry fanout.Config) *Drafter {
	return &Drafter{gen: gen, retry: retry}
}

// Draft generates a content-only course skeleton from src. It fails only
// when the provider call itself fails after retries; any response text, no
// matter how malformed, still yields a valid draft.
func (d *Drafter) Draft(ctx context.Context, src course.SourceText) (*course.StructuredCourse, *Audit, error) {
	prompt := buildPrompt(src)

	raw, err := fanout.Single(ctx, d.retry, func(ctx context.Context) (string, error) {
		return d.gen.GenerateText(ctx, prompt)
	})
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.KindGeneration, "curriculum generation failed", err)
	}

	draft, tier := parseCurriculum(raw, src)
	log.Info().
		Str("tier", string(tier)).
		Int("modules", len(draft.Modules)).
		Str("title", draft.Info.Title).
		Msg("Curriculum draft parsed")

	return draft, &Audit{RawResponse: raw, Tier: tier}, nil
}

// --- Prompt construction ---

// buildPrompt pre-splits the source text and enumerates the raw sections so
// the model expands each into a full module rather than inventing its own
// segmentation.
func buildPrompt(src course.SourceText) string {
	sections := SplitSections(src.Content)
	if len(sections) == 0 {
		sections = []Section{{Title: "Module 1", Content: src.Content}}
	}

	var b strings.Builder
	b.WriteString(`You will receive a list of course modules, each with a title and raw content.
For the course as a whole, generate a clear engaging course title, a brief course
description, and a detailed realistic image prompt for the course cover.
For each module, refine the title, write comprehensive educational content
expanding on the raw material, and generate a detailed realistic image prompt
visually representing the module's topic.

Return JSON with this structure:
{
  "course_title": "Course Name (required)",
  "course_description": "Brief course description",
  "course_cover_image_prompt": "Professional course cover image prompt",
  "modules": [
    {
      "module_number": 1,
      "module_title": "Module Title",
      "module_image_prompt": "Detailed educational illustration prompt",
      "module_content": "Detailed text content for this module"
    }
  ]
}

Here are the modules:
`)
	for i, s := range sections {
		fmt.Fprintf(&b, "\nModule %d Title: %s\nModule %d Raw Content: %s\n",
			i+1, s.Title, i+1, excerpt(s.Content, excerptLen))
	}
	return b.String()
}

func excerpt(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// --- Response parsing ---

type curriculumPayload struct {
	CourseTitle       string          `json:"course_title"`
	CourseDescription string          `json:"course_description"`
	CoverImagePrompt  string          `json:"course_cover_image_prompt"`
	Modules           []modulePayload `json:"modules"`
}

type modulePayload struct {
	Number      int    `json:"module_number"`
	Title       string `json:"module_title"`
	ImagePrompt string `json:"module_image_prompt"`
	Content     string `json:"module_content"`
}

// parseCurriculum applies the three tiers in order. A well-formed payload
// with zero modules is treated the same as no structure at all: it falls
// through to the heuristic tier rather than erroring.
func parseCurriculum(raw string, src course.SourceText) (*course.StructuredCourse, ParseTier) {
	var payload curriculumPayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &payload); err == nil && len(payload.Modules) > 0 {
		return fromPayload(payload, src), TierStrict
	}

	if payload, err := jsonutil.ParseJSON[curriculumPayload](raw); err == nil && len(payload.Modules) > 0 {
		return fromPayload(payload, src), TierLenient
	} else if err != nil {
		log.Debug().Err(err).Msg("Lenient curriculum parse declined")
	}

	return fromRawText(raw, src), TierHeuristic
}

func fromPayload(p curriculumPayload, src course.SourceText) *course.StructuredCourse {
	c := &course.StructuredCourse{
		Info: course.CourseInfo{
			Title:          strings.TrimSpace(p.CourseTitle),
			Description:    strings.TrimSpace(p.CourseDescription),
			SourceFilename: src.OriginFilename,
			TextLength:     src.Length,
		},
		CoverImagePrompt: strings.TrimSpace(p.CoverImagePrompt),
	}
	if c.Info.Title == "" {
		c.Info.Title = "Untitled Course"
	}

	for i, m := range p.Modules {
		title := strings.TrimSpace(m.Title)
		if title == "" {
			title = fmt.Sprintf("Module %d", i+1)
		}
		content := strings.TrimSpace(m.Content)
		if content == "" {
			content = title
		}
		c.Modules = append(c.Modules, course.Module{
			Title:       title,
			Content:     content,
			ImagePrompt: strings.TrimSpace(m.ImagePrompt),
		})
	}

	c.Renumber()
	return c
}

// fromRawText is the total fallback: split the raw response on section
// markers, or wrap the whole response in a single placeholder module.
func fromRawText(raw string, src course.SourceText) *course.StructuredCourse {
	c := &course.StructuredCourse{
		Info: course.CourseInfo{
			Title:          "Generated Course",
			Description:    "Course generated from extracted document content",
			SourceFilename: src.OriginFilename,
			TextLength:     src.Length,
		},
	}

	sections := SplitSections(raw)
	if len(sections) == 0 {
		c.Modules = []course.Module{{
			Title:   fallbackModuleTitle,
			Content: raw,
		}}
		c.Renumber()
		return c
	}

	for _, s := range sections {
		c.Modules = append(c.Modules, course.Module{
			Title:   s.Title,
			Content: s.Content,
		})
	}
	c.Renumber()
	return c
}
