// Package course defines the domain model shared by the drafting, assembly,
// and publishing stages: the structured course itself, its image assets, and
// the report produced by a publish run.
package course

import "fmt"

// SourceText is the extracted text of a source document. It is immutable
// once produced by the extraction step.
type SourceText struct {
	Content        string `json:"content"`
	Length         int    `json:"length"`
	OriginFilename string `json:"origin_filename"`
}

// NewSourceText builds a SourceText from extracted content.
func NewSourceText(content, filename string) SourceText {
	return SourceText{
		Content:        content,
		Length:         len(content),
		OriginFilename: filename,
	}
}

// CourseInfo describes the course as a whole.
type CourseInfo struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	SourceFilename string `json:"source_filename"`
	TextLength     int    `json:"text_length"`
}

// ImageAsset is a generated and durably persisted illustration. An asset is
// created all-or-nothing: a value of this type always has both the provider
// reference and the durable reference populated. InlinePayload is an
// optional small preview copy of the image bytes.
type ImageAsset struct {
	Prompt        string `json:"prompt"`
	ProviderURL   string `json:"provider_url"`
	DurableURL    string `json:"durable_url"`
	InlinePayload []byte `json:"inline_payload,omitempty"`
}

// Module is one section of a course. A nil Image is a valid terminal state:
// image generation failed for this module, but the module itself stands.
type Module struct {
	Number      int         `json:"module_number"`
	Title       string      `json:"title"`
	Content     string      `json:"content"`
	ImagePrompt string      `json:"image_prompt,omitempty"`
	Image       *ImageAsset `json:"image,omitempty"`
}

// StructuredCourse is the assembled curriculum.
//
// Invariant: Modules is never empty and module numbers are exactly
// 1..len(Modules) with no gaps. Validate enforces this; the drafter
// guarantees it for every draft it returns.
type StructuredCourse struct {
	Info             CourseInfo  `json:"course_info"`
	CoverImagePrompt string      `json:"cover_image_prompt,omitempty"`
	CoverImage       *ImageAsset `json:"cover_image,omitempty"`
	Modules          []Module    `json:"modules"`
}

// Validate checks the structural invariant on Modules.
func (c *StructuredCourse) Validate() error {
	if len(c.Modules) == 0 {
		return fmt.Errorf("course has no modules")
	}
	for i, m := range c.Modules {
		if m.Number != i+1 {
			return fmt.Errorf("module at position %d has number %d, want %d", i, m.Number, i+1)
		}
		if m.Content == "" {
			return fmt.Errorf("module %d has empty content", m.Number)
		}
	}
	return nil
}

// Renumber rewrites module numbers to the contiguous 1..N sequence in the
// current order, discarding whatever numbers the model produced.
func (c *StructuredCourse) Renumber() {
	for i := range c.Modules {
		c.Modules[i].Number = i + 1
	}
}

// RemoteSectionRef identifies a section created on the remote platform.
type RemoteSectionRef struct {
	SectionID string `json:"section_id"`
}

// SectionResult is the outcome of one module's section-creation call.
// ModuleIndex is the zero-based index into StructuredCourse.Modules, kept
// stable across publish and republish so failed indices can be resubmitted.
type SectionResult struct {
	ModuleIndex int               `json:"module_index"`
	ModuleTitle string            `json:"module_title"`
	Section     *RemoteSectionRef `json:"section,omitempty"`
	ErrorKind   string            `json:"error_kind,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// Succeeded reports whether this module's section was created.
func (r SectionResult) Succeeded() bool { return r.Section != nil }

// PublishReport aggregates the per-module outcomes of a publish run.
//
// Invariant: Succeeded + Failed == Total.
type PublishReport struct {
	CourseID  string          `json:"remote_course_id"`
	Total     int             `json:"total_modules"`
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
	Sections  []SectionResult `json:"per_module"`
}

// FailedIndices returns the module indices that did not publish, in order.
// Feed these to Republish to retry only the failed modules.
func (r *PublishReport) FailedIndices() []int {
	var idxs []int
	for _, s := range r.Sections {
		if !s.Succeeded() {
			idxs = append(idxs, s.ModuleIndex)
		}
	}
	return idxs
}
