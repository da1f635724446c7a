package game

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"node.town/trivia/audio"
	"node.town/trivia/quiz"
	"node.town/trivia/stt"
)

type MockSource struct {
	questions []quiz.Question
}

func (m *MockSource) Fetch(ctx context.Context) []quiz.Question {
	return m.questions
}

type MockNarrator struct {
	mu    sync.Mutex
	texts []string
}

func (m *MockNarrator) Narrate(ctx context.Context, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, text)
}

func (m *MockNarrator) spoken() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}

type MockEvaluator struct {
	mu      sync.Mutex
	answers []string
	verdict func(answer string) quiz.Evaluation
}

func (m *MockEvaluator) Evaluate(ctx context.Context, q quiz.Question, answer string) (quiz.Evaluation, error) {
	m.mu.Lock()
	m.answers = append(m.answers, answer)
	m.mu.Unlock()
	return m.verdict(answer), nil
}

func (m *MockEvaluator) evaluated() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.answers...)
}

// MockRecording stands in for a capture plus transcription attempt.
type MockRecording struct {
	id    string
	text  string
	err   error
	mu    sync.Mutex
	stops int
}

func (r *MockRecording) ID() string { return r.id }

func (r *MockRecording) Stop(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
	return r.text, r.err
}

func (r *MockRecording) stopCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stops
}

type MockRecorder struct {
	mu        sync.Mutex
	err       error
	recording *MockRecording
	onFailure func(error)
	starts    int
	// failOnStart reports a failure before Start has returned.
	failOnStart error
}

func (m *MockRecorder) Start(ctx context.Context, onFailure func(error)) (quiz.Recording, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts++
	if m.err != nil {
		return nil, m.err
	}
	m.onFailure = onFailure
	if m.failOnStart != nil {
		done := make(chan struct{})
		go func() {
			close(done)
			onFailure(m.failOnStart)
		}()
		<-done
	}
	return m.recording, nil
}

func (m *MockRecorder) fail(err error) {
	m.mu.Lock()
	f := m.onFailure
	m.mu.Unlock()
	f(err)
}

type harness struct {
	t         *testing.T
	session   *Session
	narrator  *MockNarrator
	evaluator *MockEvaluator
	recorder  *MockRecorder
	cancel    context.CancelFunc
	result    chan runResult
}

type runResult struct {
	score int
	err   error
}

func startSession(t *testing.T, recorder *MockRecorder, questions ...quiz.Question) *harness {
	t.Helper()
	h := &harness{
		t:        t,
		narrator: &MockNarrator{},
		evaluator: &MockEvaluator{verdict: func(answer string) quiz.Evaluation {
			if answer == "B" || answer == "สามร้อย" {
				return quiz.Evaluation{Correct: true, Feedback: "ถูกต้อง"}
			}
			return quiz.Evaluation{Feedback: "ไม่ถูกต้อง"}
		}},
		recorder: recorder,
		result:   make(chan runResult, 1),
	}
	if h.recorder == nil {
		h.recorder = &MockRecorder{}
	}
	h.session = NewSession(
		&MockSource{questions: questions},
		h.narrator,
		h.evaluator,
		h.recorder,
		log.New(io.Discard),
	)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	t.Cleanup(cancel)
	go func() {
		score, err := h.session.Run(ctx)
		h.result <- runResult{score, err}
	}()
	return h
}

func (h *harness) await(phase Phase) State {
	h.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		s := h.session.Snapshot()
		if s.Phase == phase {
			return s
		}
		if time.Now().After(deadline) {
			h.t.Fatalf("timed out waiting for %v, stuck in %v", phase, s.Phase)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func (h *harness) finish() runResult {
	h.t.Helper()
	select {
	case r := <-h.result:
		return r
	case <-time.After(2 * time.Second):
		h.t.Fatal("Run did not return")
	}
	return runResult{}
}

func TestSessionDirectSelection(t *testing.T) {
	h := startSession(t, nil, letters)
	h.await(WaitingForAnswer)

	h.session.SelectOption("B")
	s := h.await(ShowingResult)
	if s.Score != 1 || !s.Result.Correct {
		t.Errorf("result state = %+v", s)
	}

	h.session.Advance()
	r := h.finish()
	if r.err != nil || r.score != 1 {
		t.Errorf("Run() = %d, %v, want 1, nil", r.score, r.err)
	}
	if score, ok := <-h.session.Done(); !ok || score != 1 {
		t.Errorf("Done() = %d, %v", score, ok)
	}

	spoken := h.narrator.spoken()
	if len(spoken) != 2 || spoken[0] != letters.Narration() || spoken[1] != "ถูกต้อง" {
		t.Errorf("narrated %q", spoken)
	}
}

func TestSessionIncorrectSelection(t *testing.T) {
	h := startSession(t, nil, letters)
	h.await(WaitingForAnswer)

	h.session.SelectOption("C")
	s := h.await(ShowingResult)
	if s.Score != 0 || s.Result.Feedback != "ไม่ถูกต้อง" {
		t.Errorf("result state = %+v", s)
	}
}

func TestSessionRecordedAnswer(t *testing.T) {
	rec := &MockRecording{id: "attempt-1", text: "สามร้อย"}
	h := startSession(t, &MockRecorder{recording: rec}, letters)
	h.await(WaitingForAnswer)

	h.session.StartRecording()
	h.await(RecordingAnswer)
	for h.session.Snapshot().Recording == nil {
		time.Sleep(2 * time.Millisecond)
	}

	h.session.SelectOption("C")
	h.session.StopRecording()
	h.session.StopRecording()

	s := h.await(ShowingResult)
	if s.Score != 1 {
		t.Errorf("score = %d, want 1", s.Score)
	}
	if answers := h.evaluator.evaluated(); len(answers) != 1 || answers[0] != "สามร้อย" {
		t.Errorf("evaluated %q, want only the transcript", answers)
	}
	if rec.stopCount() != 1 {
		t.Errorf("recording stopped %d times", rec.stopCount())
	}
}

func TestSessionDeviceUnavailable(t *testing.T) {
	recorder := &MockRecorder{err: audio.ErrDeviceUnavailable}
	h := startSession(t, recorder, letters)
	h.await(WaitingForAnswer)

	h.session.StartRecording()
	deadline := time.Now().Add(2 * time.Second)
	for {
		s := h.session.Snapshot()
		if s.Phase == WaitingForAnswer && s.Err != nil {
			if !errors.Is(s.Err, audio.ErrDeviceUnavailable) {
				t.Errorf("Err = %v", s.Err)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("stuck in %v", s.Phase)
		}
		time.Sleep(2 * time.Millisecond)
	}
	if len(h.evaluator.evaluated()) != 0 {
		t.Error("evaluated without an answer")
	}
}

func TestSessionTranscriptionFailure(t *testing.T) {
	rec := &MockRecording{id: "attempt-1", err: stt.ErrTranscription}
	recorder := &MockRecorder{recording: rec}
	h := startSession(t, recorder, letters)
	h.await(WaitingForAnswer)

	h.session.StartRecording()
	h.await(RecordingAnswer)
	for h.session.Snapshot().Recording == nil {
		time.Sleep(2 * time.Millisecond)
	}

	recorder.fail(stt.ErrTranscription)
	s := h.await(WaitingForAnswer)
	if !errors.Is(s.Err, stt.ErrTranscription) || s.Recording != nil {
		t.Errorf("state after failure = %+v", s)
	}
	if len(h.evaluator.evaluated()) != 0 {
		t.Error("failed recording reached evaluation")
	}

	// Retry with a direct answer.
	h.session.SelectOption("B")
	h.await(ShowingResult)
}

func TestSessionFailureBeforeStartReturns(t *testing.T) {
	rec := &MockRecording{id: "attempt-1"}
	recorder := &MockRecorder{recording: rec, failOnStart: stt.ErrConnection}
	h := startSession(t, recorder, letters)
	h.await(WaitingForAnswer)

	h.session.StartRecording()

	deadline := time.Now().Add(2 * time.Second)
	s := h.session.Snapshot()
	for s.Err == nil {
		if time.Now().After(deadline) {
			t.Fatalf("failure was dropped, stuck in %v", s.Phase)
		}
		time.Sleep(2 * time.Millisecond)
		s = h.session.Snapshot()
	}
	if s.Phase != WaitingForAnswer || !errors.Is(s.Err, stt.ErrConnection) {
		t.Errorf("state after failure = %v, %v", s.Phase, s.Err)
	}
	if s.Recording != nil {
		t.Error("failed attempt still held as the current recording")
	}

	// The player can try again.
	recorder.mu.Lock()
	recorder.failOnStart = nil
	recorder.mu.Unlock()
	h.session.StartRecording()
	h.await(RecordingAnswer)
}

func TestSessionCancelReleasesRecording(t *testing.T) {
	rec := &MockRecording{id: "attempt-1"}
	h := startSession(t, &MockRecorder{recording: rec}, letters)
	h.await(WaitingForAnswer)

	h.session.StartRecording()
	for h.session.Snapshot().Recording == nil {
		time.Sleep(2 * time.Millisecond)
	}

	h.cancel()
	r := h.finish()
	if !errors.Is(r.err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", r.err)
	}
	if rec.stopCount() != 1 {
		t.Errorf("recording stopped %d times, want 1", rec.stopCount())
	}

	// Calls after the session ended do not block.
	h.session.SelectOption("B")
	h.session.Advance()
}

func TestSessionUpdates(t *testing.T) {
	h := startSession(t, nil, letters)
	h.await(WaitingForAnswer)

	select {
	case s := <-h.session.Updates():
		if s.Phase.String() == "unknown" {
			t.Errorf("bad update %d", s.Phase)
		}
	case <-time.After(time.Second):
		t.Fatal("no state update published")
	}
}
