package assemble

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"courseforge/internal/apperr"
	"courseforge/internal/course"
	"courseforge/internal/fanout"
)

// fakeMaterializer succeeds unless the prompt contains a poisoned substring.
type fakeMaterializer struct {
	mu      sync.Mutex
	prompts []string
	failOn  string
	delay   time.Duration
}

func (f *fakeMaterializer) Materialize(ctx context.Context, prompt string) (*course.ImageAsset, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.failOn != "" && strings.Contains(prompt, f.failOn) {
		return nil, apperr.New(apperr.KindImageGeneration, "provider rejected prompt")
	}
	return &course.ImageAsset{
		Prompt:     prompt,
		DurableURL: "https://bucket.s3.amazonaws.com/courses/fake.png",
	}, nil
}

func testConfig() fanout.Config {
	return fanout.Config{
		MaxParallelism: 4,
		PerJobTimeout:  time.Second,
		MaxRetries:     0,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	}
}

func testDraft() *course.StructuredCourse {
	return &course.StructuredCourse{
		Info:             course.CourseInfo{Title: "Go Fundamentals"},
		CoverImagePrompt: "a gopher on a book cover",
		Modules: []course.Module{
			{Number: 1, Title: "Syntax", Content: "Variables.", ImagePrompt: "code listing"},
			{Number: 2, Title: "Concurrency", Content: "Channels.", ImagePrompt: "pipelines"},
			{Number: 3, Title: "Tooling", Content: "Build tags.", ImagePrompt: "terminal"},
		},
	}
}

func TestAssembleFillsAllSlots(t *testing.T) {
	fake := &fakeMaterializer{}
	o := New(fake, testConfig())
	draft := testDraft()

	report, err := o.Assemble(context.Background(), draft)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Attempted != 4 || report.Succeeded != 4 {
		t.Errorf("expected 4/4, got %d/%d", report.Succeeded, report.Attempted)
	}
	if draft.CoverImage == nil {
		t.Error("cover image not set")
	}
	for i, m := range draft.Modules {
		if m.Image == nil {
			t.Errorf("module %d image not set", i+1)
		} else if m.Image.Prompt != m.ImagePrompt {
			t.Errorf("module %d used prompt %q, want %q", i+1, m.Image.Prompt, m.ImagePrompt)
		}
	}
}

func TestAssembleFailureLeavesSlotEmpty(t *testing.T) {
	fake := &fakeMaterializer{failOn: "pipelines"}
	o := New(fake, testConfig())
	draft := testDraft()

	report, err := o.Assemble(context.Background(), draft)
	if err != nil {
		t.Fatalf("image failure must not fail assembly: %v", err)
	}
	if report.Succeeded != 3 {
		t.Errorf("expected 3 successes, got %d", report.Succeeded)
	}
	if len(report.Failures) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(report.Failures))
	}
	if report.Failures[0].Slot != "module 2" {
		t.Errorf("unexpected failed slot: %q", report.Failures[0].Slot)
	}
	if report.Failures[0].Kind != apperr.KindImageGeneration {
		t.Errorf("unexpected failure kind: %q", report.Failures[0].Kind)
	}
	if draft.Modules[1].Image != nil {
		t.Error("failed slot should stay nil")
	}
	if draft.CoverImage == nil || draft.Modules[0].Image == nil || draft.Modules[2].Image == nil {
		t.Error("other slots should be unaffected")
	}
}

func TestAssembleDerivesMissingPrompts(t *testing.T) {
	fake := &fakeMaterializer{}
	o := New(fake, testConfig())
	draft := testDraft()
	draft.CoverImagePrompt = ""
	draft.Modules[0].ImagePrompt = ""

	if _, err := o.Assemble(context.Background(), draft); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(draft.CoverImage.Prompt, "Go Fundamentals") {
		t.Errorf("derived cover prompt should mention the course title: %q", draft.CoverImage.Prompt)
	}
	got := draft.Modules[0].Image.Prompt
	if !strings.Contains(got, "Syntax") || !strings.Contains(got, "Variables.") {
		t.Errorf("derived module prompt should use title and content: %q", got)
	}
}

func TestAssembleRejectsInvalidDraft(t *testing.T) {
	o := New(&fakeMaterializer{}, testConfig())
	draft := &course.StructuredCourse{Info: course.CourseInfo{Title: "Empty"}}

	_, err := o.Assemble(context.Background(), draft)
	if err == nil {
		t.Fatal("expected error for draft without modules")
	}
	if apperr.KindOf(err) != apperr.KindInvalidInput {
		t.Errorf("expected invalid input kind, got %v", err)
	}
}

func TestAssembleTimeoutMarksPendingSlots(t *testing.T) {
	fake := &fakeMaterializer{delay: 50 * time.Millisecond}
	cfg := testConfig()
	cfg.MaxParallelism = 1

	o := New(fake, cfg)
	draft := testDraft()

	ctx, cancel := context.WithTimeout(context.Background(), 75*time.Millisecond)
	defer cancel()

	report, err := o.Assemble(ctx, draft)
	if err != nil {
		t.Fatalf("deadline must not fail assembly: %v", err)
	}
	if report.Succeeded == report.Attempted {
		t.Fatal("expected at least one slot to miss the deadline")
	}
	for _, f := range report.Failures {
		if f.Kind != apperr.KindTimeout {
			t.Errorf("slot %s: expected timeout kind, got %q", f.Slot, f.Kind)
		}
	}
}
