package game

import (
	"context"
	"errors"
	"testing"

	"node.town/trivia/audio"
	"node.town/trivia/quiz"
	"node.town/trivia/stt"
)

var letters = quiz.Question{
	Category:      "ทดสอบ",
	Prompt:        "ตัวอักษรที่สองคืออะไร",
	Options:       []string{"A", "B", "C", "D"},
	CorrectAnswer: "B",
}

type stubRecording string

func (r stubRecording) ID() string { return string(r) }

func (r stubRecording) Stop(ctx context.Context) (string, error) { return "", nil }

// waiting returns a machine that has read the first of qs and awaits
// an answer.
func waiting(t *testing.T, qs ...quiz.Question) State {
	t.Helper()
	s, _ := Begin()
	s, effects := Step(s, QuestionsLoaded{Questions: qs})
	if s.Phase != ReadingQuestion || len(effects) != 1 {
		t.Fatalf("after load: phase %v, effects %v", s.Phase, effects)
	}
	n, ok := effects[0].(Narrate)
	if !ok || n.Text != qs[0].Narration() {
		t.Fatalf("expected question narration, got %#v", effects[0])
	}
	s, _ = Step(s, n.Done)
	if s.Phase != WaitingForAnswer {
		t.Fatalf("after narration: phase %v", s.Phase)
	}
	return s
}

func onlyEffect[T Effect](t *testing.T, effects []Effect) T {
	t.Helper()
	if len(effects) != 1 {
		t.Fatalf("effects = %#v, want one", effects)
	}
	e, ok := effects[0].(T)
	if !ok {
		t.Fatalf("effect = %#v", effects[0])
	}
	return e
}

func TestSelectCorrectOption(t *testing.T) {
	s := waiting(t, letters)

	s, effects := Step(s, OptionSelected{Text: "B"})
	eval := onlyEffect[Evaluate](t, effects)
	if s.Phase != EvaluatingAnswer || eval.Answer != "B" {
		t.Fatalf("phase %v, evaluate %#v", s.Phase, eval)
	}

	s, effects = Step(s, Evaluated{Index: 0, Result: quiz.Evaluation{Correct: true, Feedback: "เก่งมาก"}})
	if s.Score != 1 {
		t.Errorf("score = %d, want 1", s.Score)
	}
	n := onlyEffect[Narrate](t, effects)
	if n.Text != "เก่งมาก" || s.Phase != EvaluatingAnswer {
		t.Errorf("feedback narration %#v in phase %v", n, s.Phase)
	}

	s, _ = Step(s, n.Done)
	if s.Phase != ShowingResult {
		t.Fatalf("phase = %v, want result", s.Phase)
	}

	s, effects = Step(s, AdvanceRequested{})
	if s.Phase != Terminal || onlyEffect[Finish](t, effects).Score != 1 {
		t.Errorf("phase %v, effects %#v", s.Phase, effects)
	}
}

func TestSelectIncorrectOption(t *testing.T) {
	s := waiting(t, letters)

	s, _ = Step(s, OptionSelected{Text: "C"})
	s, effects := Step(s, Evaluated{Index: 0, Result: quiz.Evaluation{Feedback: "ไม่ถูกต้อง"}})
	s, _ = Step(s, onlyEffect[Narrate](t, effects).Done)

	if s.Phase != ShowingResult || s.Score != 0 {
		t.Fatalf("phase %v, score %d", s.Phase, s.Score)
	}
	if s.Result.Feedback != "ไม่ถูกต้อง" || s.Result.Correct {
		t.Errorf("result = %+v", s.Result)
	}
}

func TestRecordedAnswer(t *testing.T) {
	s := waiting(t, letters)

	s, effects := Step(s, RecordingRequested{})
	onlyEffect[StartRecording](t, effects)
	if s.Phase != RecordingAnswer {
		t.Fatalf("phase = %v", s.Phase)
	}

	rec := stubRecording("r1")
	s, effects = Step(s, RecordingStarted{Recording: rec})
	if len(effects) != 0 || s.Recording != rec {
		t.Fatalf("recording not tracked: %#v", effects)
	}

	s, effects = Step(s, StopRequested{})
	if onlyEffect[StopRecording](t, effects).Recording != rec {
		t.Fatal("stop targets the wrong recording")
	}
	s, effects = Step(s, StopRequested{})
	if len(effects) != 0 {
		t.Error("second stop issued another release")
	}

	s, effects = Step(s, TranscriptReady{ID: "r1", Text: "  สามร้อย "})
	eval := onlyEffect[Evaluate](t, effects)
	if s.Phase != EvaluatingAnswer || eval.Answer != "สามร้อย" || s.Recording != nil {
		t.Errorf("phase %v, answer %q, recording %v", s.Phase, eval.Answer, s.Recording)
	}
}

func TestStopBeforeRecordingStarts(t *testing.T) {
	s := waiting(t, letters)
	s, _ = Step(s, RecordingRequested{})

	s, effects := Step(s, StopRequested{})
	if len(effects) != 0 || !s.Stopping {
		t.Fatalf("stop while starting: %#v", effects)
	}

	rec := stubRecording("r1")
	s, effects = Step(s, RecordingStarted{Recording: rec})
	if onlyEffect[StopRecording](t, effects).Recording != rec {
		t.Error("pending stop not applied once started")
	}
}

func TestRecordingFailures(t *testing.T) {
	t.Run("Device Unavailable", func(t *testing.T) {
		s := waiting(t, letters)
		s, _ = Step(s, RecordingRequested{})
		s, effects := Step(s, RecordingFailed{Err: audio.ErrDeviceUnavailable})

		if s.Phase != WaitingForAnswer || len(effects) != 0 {
			t.Fatalf("phase %v, effects %#v", s.Phase, effects)
		}
		if !errors.Is(s.Err, audio.ErrDeviceUnavailable) {
			t.Errorf("Err = %v", s.Err)
		}
	})

	t.Run("Transport Failure", func(t *testing.T) {
		s := waiting(t, letters)
		s, _ = Step(s, RecordingRequested{})
		s, _ = Step(s, RecordingStarted{Recording: stubRecording("r1")})

		s, effects := Step(s, RecordingFailed{ID: "r1", Err: stt.ErrTranscription})
		if s.Phase != WaitingForAnswer || s.Recording != nil || len(effects) != 0 {
			t.Fatalf("phase %v, recording %v, effects %#v", s.Phase, s.Recording, effects)
		}

		// The stop that raced the failure reports it again.
		s2, _ := Step(s, RecordingFailed{ID: "r1", Err: stt.ErrTranscription})
		if s2.Phase != WaitingForAnswer {
			t.Errorf("stale failure moved to %v", s2.Phase)
		}
	})

	t.Run("Empty Transcript", func(t *testing.T) {
		s := waiting(t, letters)
		s, _ = Step(s, RecordingRequested{})
		s, _ = Step(s, RecordingStarted{Recording: stubRecording("r1")})
		s, _ = Step(s, StopRequested{})
		s, effects := Step(s, TranscriptReady{ID: "r1", Text: "   "})

		if s.Phase != WaitingForAnswer || len(effects) != 0 {
			t.Fatalf("phase %v, effects %#v", s.Phase, effects)
		}
		if !errors.Is(s.Err, ErrEmptyTranscript) {
			t.Errorf("Err = %v", s.Err)
		}
	})

	t.Run("Stale Transcript", func(t *testing.T) {
		s := waiting(t, letters)
		s, _ = Step(s, RecordingRequested{})
		s, _ = Step(s, RecordingStarted{Recording: stubRecording("r2")})
		s, effects := Step(s, TranscriptReady{ID: "r1", Text: "B"})
		if s.Phase != RecordingAnswer || len(effects) != 0 {
			t.Errorf("stale transcript applied: phase %v", s.Phase)
		}
	})
}

func TestStateGating(t *testing.T) {
	t.Run("Selection Ignored While Recording", func(t *testing.T) {
		s := waiting(t, letters)
		s, _ = Step(s, RecordingRequested{})
		next, effects := Step(s, OptionSelected{Text: "B"})
		if next.Phase != RecordingAnswer || len(effects) != 0 || next.Answer != "" {
			t.Errorf("selection applied during recording")
		}
	})

	t.Run("Selection Ignored While Evaluating", func(t *testing.T) {
		s := waiting(t, letters)
		s, _ = Step(s, OptionSelected{Text: "A"})
		next, effects := Step(s, OptionSelected{Text: "B"})
		if next.Answer != "A" || len(effects) != 0 {
			t.Errorf("late selection replaced the pending answer")
		}
	})

	t.Run("Recording Ignored Outside Waiting", func(t *testing.T) {
		s, _ := Begin()
		s, _ = Step(s, QuestionsLoaded{Questions: []quiz.Question{letters}})
		next, effects := Step(s, RecordingRequested{})
		if next.Phase != ReadingQuestion || len(effects) != 0 {
			t.Errorf("recording started while reading")
		}
	})

	t.Run("Unknown Option Ignored", func(t *testing.T) {
		s := waiting(t, letters)
		next, effects := Step(s, OptionSelected{Text: "E"})
		if next.Phase != WaitingForAnswer || len(effects) != 0 {
			t.Errorf("unknown option accepted")
		}
	})

	t.Run("Late Recording Is Released", func(t *testing.T) {
		s := waiting(t, letters)
		rec := stubRecording("late")
		_, effects := Step(s, RecordingStarted{Recording: rec})
		if onlyEffect[StopRecording](t, effects).Recording != rec {
			t.Error("orphaned recording not stopped")
		}
	})

	t.Run("Advance Only From Result", func(t *testing.T) {
		s := waiting(t, letters)
		next, effects := Step(s, AdvanceRequested{})
		if next.Phase != WaitingForAnswer || len(effects) != 0 {
			t.Errorf("advance skipped the question")
		}
	})
}

func TestEvaluationFailureAllowsRetry(t *testing.T) {
	s := waiting(t, letters)
	s, _ = Step(s, OptionSelected{Text: "B"})
	s, _ = Step(s, EvaluationFailed{Index: 0, Err: errors.New("timeout")})
	if s.Phase != WaitingForAnswer || s.Answer != "" || s.Err == nil {
		t.Fatalf("phase %v, answer %q, err %v", s.Phase, s.Answer, s.Err)
	}

	s, effects := Step(s, OptionSelected{Text: "B"})
	onlyEffect[Evaluate](t, effects)
	if s.Err != nil {
		t.Error("retry did not clear the error")
	}
}

func TestBlankFeedbackSkipsNarration(t *testing.T) {
	s := waiting(t, letters)
	s, _ = Step(s, OptionSelected{Text: "B"})
	s, effects := Step(s, Evaluated{Index: 0, Result: quiz.Evaluation{Correct: true, Feedback: " "}})
	if s.Phase != ShowingResult || len(effects) != 0 || s.Score != 1 {
		t.Errorf("phase %v, effects %#v, score %d", s.Phase, effects, s.Score)
	}
}

func TestScoreAcrossQuestions(t *testing.T) {
	other := quiz.Question{Prompt: "Q2", Options: []string{"w", "x", "y", "z"}, CorrectAnswer: "z"}
	s := waiting(t, letters, other)

	verdicts := []bool{true, true}
	for i, correct := range verdicts {
		q, _ := s.Question()
		s, _ = Step(s, OptionSelected{Text: q.CorrectAnswer})
		s, _ = Step(s, Evaluated{Index: i, Result: quiz.Evaluation{Correct: correct}})
		if s.Phase != ShowingResult {
			t.Fatalf("question %d: phase %v", i, s.Phase)
		}

		var effects []Effect
		s, effects = Step(s, AdvanceRequested{})
		if i == len(verdicts)-1 {
			if onlyEffect[Finish](t, effects).Score != 2 {
				t.Errorf("final score = %d", s.Score)
			}
			break
		}
		if s.Index != 1 || s.HasResult || s.Answer != "" {
			t.Fatalf("next question state not reset: %+v", s)
		}
		s, _ = Step(s, onlyEffect[Narrate](t, effects).Done)
	}

	if s.Phase != Terminal {
		t.Errorf("phase = %v, want over", s.Phase)
	}
	if next, effects := Step(s, AdvanceRequested{}); next.Phase != Terminal || effects != nil {
		t.Error("terminal state changed")
	}
}

func TestEmptyQuestionSet(t *testing.T) {
	s, _ := Begin()
	s, effects := Step(s, QuestionsLoaded{})
	if s.Phase != Terminal || onlyEffect[Finish](t, effects).Score != 0 {
		t.Errorf("phase %v, effects %#v", s.Phase, effects)
	}
}
