package chat

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/scrypster/aibuddy/internal/llm"
	"github.com/scrypster/aibuddy/internal/registry"
	"github.com/scrypster/aibuddy/pkg/types"
)

// summaryTimeout bounds one background summarization call.
const summaryTimeout = 2 * time.Minute

// Summarizer produces the two-part teacher/student session summaries in the
// background so the chat turn never waits on them.
type Summarizer struct {
	generator llm.TextGenerator
	summaries registry.SummaryRegistry
	wg        sync.WaitGroup
}

// NewSummarizer creates a summarizer.
func NewSummarizer(generator llm.TextGenerator, summaries registry.SummaryRegistry) *Summarizer {
	return &Summarizer{generator: generator, summaries: summaries}
}

// Queue fires a summary in the background. Failures are logged, never
// surfaced to the turn that triggered them.
func (s *Summarizer) Queue(sessionID, teacherText, studentText, userID string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), summaryTimeout)
		defer cancel()
		if err := s.Summarize(ctx, sessionID, teacherText, studentText, userID); err != nil {
			log.Printf("summarizer: session %s: %v", sessionID, err)
		}
	}()
}

// Wait blocks until all queued summaries finish. Intended for shutdown.
func (s *Summarizer) Wait() {
	s.wg.Wait()
}

// Summarize generates and stores one summary synchronously. A transcript
// with nothing on either side, or a completion with no usable content, is
// skipped without error.
func (s *Summarizer) Summarize(ctx context.Context, sessionID, teacherText, studentText, userID string) error {
	if strings.TrimSpace(teacherText) == "" && strings.TrimSpace(studentText) == "" {
		return nil
	}

	completion, err := s.generator.Complete(ctx, llm.SummaryPrompt(sessionID, teacherText, studentText))
	if err != nil {
		return err
	}

	teacherSummary, studentSummary := splitSummary(completion)
	if teacherSummary == "" && studentSummary == "" {
		log.Printf("summarizer: session %s produced an empty summary, skipping", sessionID)
		return nil
	}

	return s.summaries.InsertSummary(ctx, types.SessionSummary{
		SessionID:      sessionID,
		TeacherSummary: teacherSummary,
		StudentSummary: studentSummary,
		UserID:         userID,
		CreatedAt:      time.Now().UTC(),
	})
}

// splitSummary separates the model output into its teacher and student
// halves. The prompt asks for "Teacher Summary:" and "Student Summary:"
// headings; missing headings degrade to treating everything as the teacher
// half.
func splitSummary(completion string) (string, string) {
	teacherPart, studentPart, _ := strings.Cut(completion, "Student Summary:")
	teacherPart = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(teacherPart), "Teacher Summary:"))
	return strings.TrimSpace(teacherPart), strings.TrimSpace(studentPart)
}
