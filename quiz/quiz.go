package quiz

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const OptionCount = 4

var (
	ErrNoPrompt       = errors.New("question has no prompt")
	ErrOptionCount    = errors.New("question must have exactly 4 options")
	ErrDuplicate      = errors.New("question options are not distinct")
	ErrAnswerMismatch = errors.New("correct answer must match exactly one option")
)

// Question is immutable once produced by a question source.
type Question struct {
	Category      string   `json:"category"`
	Prompt        string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
}

func (q Question) Validate() error {
	if strings.TrimSpace(q.Prompt) == "" {
		return ErrNoPrompt
	}
	if len(q.Options) != OptionCount {
		return fmt.Errorf("%w: got %d", ErrOptionCount, len(q.Options))
	}

	seen := make(map[string]bool, len(q.Options))
	matches := 0
	for _, opt := range q.Options {
		key := strings.TrimSpace(opt)
		if key == "" || seen[key] {
			return fmt.Errorf("%w: %q", ErrDuplicate, opt)
		}
		seen[key] = true
		if opt == q.CorrectAnswer {
			matches++
		}
	}
	if matches != 1 {
		return fmt.Errorf("%w: %q", ErrAnswerMismatch, q.CorrectAnswer)
	}
	return nil
}

// HasOption reports whether text is exactly one of the options.
func (q Question) HasOption(text string) bool {
	for _, opt := range q.Options {
		if opt == text {
			return true
		}
	}
	return false
}

// Narration is the text the host reads aloud for the question.
func (q Question) Narration() string {
	return fmt.Sprintf(
		"%s ตัวเลือกของคุณคือ: %s.",
		q.Prompt,
		strings.Join(q.Options, ", "),
	)
}

// Evaluation is the judged outcome of a single answer.
type Evaluation struct {
	Correct  bool
	Feedback string
}

// Recording is one active recording attempt: a microphone capture
// feeding a live transcription session. Stop finalizes the transcript
// and must be safe to call more than once.
type Recording interface {
	ID() string
	Stop(ctx context.Context) (string, error)
}
