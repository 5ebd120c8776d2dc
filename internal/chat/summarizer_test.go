package chat

import (
	"context"
	"strings"
	"testing"
)

func TestSummarizeStoresBothHalves(t *testing.T) {
	reg := newTestRegistry(t)
	generator := &scriptedGenerator{replies: []string{
		"Teacher Summary: Explained recursion with factorial.\nStudent Summary: Worked through the base case.",
	}}
	s := NewSummarizer(generator, reg)
	ctx := context.Background()

	err := s.Summarize(ctx, "s1", "Teacher: recursion calls itself", "Student: like factorial?", "u1")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	summaries, err := reg.FetchRecentSummaries(ctx, "u1", 5)
	if err != nil {
		t.Fatalf("fetch summaries: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected one summary, got %d", len(summaries))
	}
	if summaries[0].TeacherSummary != "Explained recursion with factorial." {
		t.Errorf("unexpected teacher summary %q", summaries[0].TeacherSummary)
	}
	if summaries[0].StudentSummary != "Worked through the base case." {
		t.Errorf("unexpected student summary %q", summaries[0].StudentSummary)
	}

	prompts := generator.calls()
	if len(prompts) != 1 || !strings.Contains(prompts[0], "recursion calls itself") {
		t.Errorf("summary prompt missing transcript: %v", prompts)
	}
}

func TestSummarizeSkipsEmptyTranscript(t *testing.T) {
	reg := newTestRegistry(t)
	generator := &scriptedGenerator{}
	s := NewSummarizer(generator, reg)

	if err := s.Summarize(context.Background(), "s1", "  ", "", "u1"); err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if len(generator.calls()) != 0 {
		t.Error("empty transcript must not reach the model")
	}
}

func TestSummarizeSkipsEmptyCompletion(t *testing.T) {
	reg := newTestRegistry(t)
	generator := &scriptedGenerator{replies: []string{"Teacher Summary:\nStudent Summary:"}}
	s := NewSummarizer(generator, reg)
	ctx := context.Background()

	if err := s.Summarize(ctx, "s1", "some teaching", "some reply", "u1"); err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	summaries, err := reg.FetchRecentSummaries(ctx, "u1", 5)
	if err != nil {
		t.Fatalf("fetch summaries: %v", err)
	}
	if len(summaries) != 0 {
		t.Errorf("empty completion must not be stored: %+v", summaries)
	}
}

func TestSplitSummaryMissingHeadings(t *testing.T) {
	teacher, student := splitSummary("Just one blob of text.")
	if teacher != "Just one blob of text." || student != "" {
		t.Errorf("unexpected split %q / %q", teacher, student)
	}
}

func TestQueueRunsInBackground(t *testing.T) {
	reg := newTestRegistry(t)
	generator := &scriptedGenerator{replies: []string{
		"Teacher Summary: A.\nStudent Summary: B.",
	}}
	s := NewSummarizer(generator, reg)

	s.Queue("s1", "teacher said things", "student replied", "u1")
	s.Wait()

	summaries, err := reg.FetchRecentSummaries(context.Background(), "u1", 5)
	if err != nil {
		t.Fatalf("fetch summaries: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected one summary after Wait, got %d", len(summaries))
	}
}
