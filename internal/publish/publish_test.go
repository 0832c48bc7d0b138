package publish

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"courseforge/internal/apperr"
	"courseforge/internal/course"
	"courseforge/internal/fanout"
	"courseforge/internal/platform"
)

// fakeAPI counts calls and fails section creation for poisoned titles.
type fakeAPI struct {
	mu              sync.Mutex
	validateErr     error
	courseIDs       []string
	dupUIDRejects   int
	failSections    map[string]error
	validateCalls   int
	createCalls     int
	sectionCalls    int
	sectionsCreated []string
	uids            []string
}

func (f *fakeAPI) ValidateToken(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.validateCalls++
	return f.validateErr
}

func (f *fakeAPI) CreateCourse(ctx context.Context, req platform.CourseRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	f.uids = append(f.uids, req.UID)
	if f.dupUIDRejects > 0 {
		f.dupUIDRejects--
		return "", apperr.New(apperr.KindPlatformAPI, "cohort with this uid already exists")
	}
	if len(f.courseIDs) == 0 {
		return "course-1", nil
	}
	id := f.courseIDs[0]
	f.courseIDs = f.courseIDs[1:]
	return id, nil
}

func (f *fakeAPI) CreateSection(ctx context.Context, courseID string, req platform.SectionRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sectionCalls++
	if err, ok := f.failSections[req.Title]; ok {
		return "", err
	}
	id := fmt.Sprintf("section-%d", f.sectionCalls)
	f.sectionsCreated = append(f.sectionsCreated, req.Title)
	return id, nil
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

func assembledCourse() *course.StructuredCourse {
	c := &course.StructuredCourse{
		Info:       course.CourseInfo{Title: "Go Fundamentals", Description: "A short course."},
		CoverImage: &course.ImageAsset{DurableURL: "https://bucket.s3.amazonaws.com/courses/cover.png"},
		Modules: []course.Module{
			{Number: 1, Title: "Syntax", Content: "Variables."},
			{Number: 2, Title: "Concurrency", Content: "Channels."},
			{Number: 3, Title: "Tooling", Content: "Build tags."},
		},
	}
	for i := range c.Modules {
		c.Modules[i].Image = &course.ImageAsset{
			DurableURL: fmt.Sprintf("https://bucket.s3.amazonaws.com/courses/m%d.png", i+1),
		}
	}
	return c
}

func TestPublishHappyPath(t *testing.T) {
	api := &fakeAPI{}
	p := New(api, testConfig())

	report, err := p.Publish(context.Background(), assembledCourse())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.CourseID != "course-1" {
		t.Errorf("unexpected course ID: %q", report.CourseID)
	}
	if report.Total != 3 || report.Succeeded != 3 || report.Failed != 0 {
		t.Errorf("unexpected counts: %+v", report)
	}
	if report.Succeeded+report.Failed != report.Total {
		t.Error("succeeded and failed must sum to total")
	}
	if api.validateCalls != 1 || api.createCalls != 1 || api.sectionCalls != 3 {
		t.Errorf("unexpected call counts: validate=%d create=%d section=%d",
			api.validateCalls, api.createCalls, api.sectionCalls)
	}
	for i, r := range report.Sections {
		if r.ModuleIndex != i {
			t.Errorf("section %d: unexpected index %d", i, r.ModuleIndex)
		}
		if !r.Succeeded() || r.Section.SectionID == "" {
			t.Errorf("section %d should have succeeded: %+v", i, r)
		}
	}
}

func TestPublishInvalidTokenHaltsBeforeCreation(t *testing.T) {
	api := &fakeAPI{validateErr: apperr.New(apperr.KindAuth, "token rejected")}
	p := New(api, testConfig())

	_, err := p.Publish(context.Background(), assembledCourse())
	if err == nil {
		t.Fatal("expected error")
	}
	if apperr.KindOf(err) != apperr.KindAuth {
		t.Errorf("expected auth kind, got %v", err)
	}
	if api.createCalls != 0 || api.sectionCalls != 0 {
		t.Errorf("no remote state may be created after token rejection: create=%d section=%d",
			api.createCalls, api.sectionCalls)
	}
}

func TestPublishPartialSectionFailure(t *testing.T) {
	api := &fakeAPI{failSections: map[string]error{
		"Concurrency": apperr.New(apperr.KindPlatformAPI, "slide rejected"),
	}}
	p := New(api, testConfig())

	report, err := p.Publish(context.Background(), assembledCourse())
	if err != nil {
		t.Fatalf("section failures must not fail the call: %v", err)
	}
	if report.Total != 3 || report.Succeeded != 2 || report.Failed != 1 {
		t.Errorf("unexpected counts: %+v", report)
	}
	failed := report.FailedIndices()
	if len(failed) != 1 || failed[0] != 1 {
		t.Errorf("unexpected failed indices: %v", failed)
	}
	if report.Sections[1].ErrorKind != string(apperr.KindPlatformAPI) {
		t.Errorf("unexpected error kind: %q", report.Sections[1].ErrorKind)
	}
}

func TestPublishDuplicateUIDRetriesWithFreshUID(t *testing.T) {
	api := &fakeAPI{dupUIDRejects: 1}
	p := New(api, testConfig())

	report, err := p.Publish(context.Background(), assembledCourse())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.CourseID != "course-1" {
		t.Errorf("unexpected course ID: %q", report.CourseID)
	}
	if api.createCalls != 2 {
		t.Fatalf("expected 2 creation attempts, got %d", api.createCalls)
	}
	if api.uids[0] == api.uids[1] {
		t.Error("retry must use a fresh UID")
	}
}

func TestPublishCourseCreationFailureIsFatal(t *testing.T) {
	api := &fakeAPI{dupUIDRejects: maxUIDAttempts + 1}
	p := New(api, testConfig())

	_, err := p.Publish(context.Background(), assembledCourse())
	if err == nil {
		t.Fatal("expected error after UID retry exhaustion")
	}
	if api.createCalls != maxUIDAttempts {
		t.Errorf("expected %d creation attempts, got %d", maxUIDAttempts, api.createCalls)
	}
	if api.sectionCalls != 0 {
		t.Error("no sections may be created without a course")
	}
}

func TestPublishModuleWithoutImageFails(t *testing.T) {
	api := &fakeAPI{}
	p := New(api, testConfig())
	c := assembledCourse()
	c.Modules[2].Image = nil

	report, err := p.Publish(context.Background(), c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Failed != 1 {
		t.Errorf("expected 1 failure, got %d", report.Failed)
	}
	if report.Sections[2].ErrorKind != string(apperr.KindInvalidInput) {
		t.Errorf("unexpected error kind: %q", report.Sections[2].ErrorKind)
	}
	if api.sectionCalls != 2 {
		t.Errorf("imageless module must not reach the API, got %d calls", api.sectionCalls)
	}
}

func TestPublishRejectsCourseWithoutCover(t *testing.T) {
	api := &fakeAPI{}
	p := New(api, testConfig())
	c := assembledCourse()
	c.CoverImage = nil

	_, err := p.Publish(context.Background(), c)
	if err == nil {
		t.Fatal("expected error")
	}
	if apperr.KindOf(err) != apperr.KindInvalidInput {
		t.Errorf("expected invalid input kind, got %v", err)
	}
	if api.validateCalls != 0 {
		t.Error("invalid course must not reach the API")
	}
}

func TestRepublishOnlyListedIndices(t *testing.T) {
	api := &fakeAPI{}
	p := New(api, testConfig())

	report, err := p.Republish(context.Background(), "course-1", []int{1}, assembledCourse())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.CourseID != "course-1" {
		t.Errorf("republish must reuse the course ID, got %q", report.CourseID)
	}
	if api.createCalls != 0 {
		t.Error("republish must never create a course")
	}
	if report.Total != 1 || report.Succeeded != 1 {
		t.Errorf("unexpected counts: %+v", report)
	}
	if len(api.sectionsCreated) != 1 || api.sectionsCreated[0] != "Concurrency" {
		t.Errorf("unexpected sections submitted: %v", api.sectionsCreated)
	}
	if report.Sections[0].ModuleIndex != 1 {
		t.Errorf("unexpected module index: %d", report.Sections[0].ModuleIndex)
	}
}

func TestRepublishRejectsOutOfRangeIndex(t *testing.T) {
	api := &fakeAPI{}
	p := New(api, testConfig())

	_, err := p.Republish(context.Background(), "course-1", []int{7}, assembledCourse())
	if err == nil {
		t.Fatal("expected error")
	}
	if apperr.KindOf(err) != apperr.KindInvalidInput {
		t.Errorf("expected invalid input kind, got %v", err)
	}
	if api.sectionCalls != 0 {
		t.Error("out-of-range index must not reach the API")
	}
}
