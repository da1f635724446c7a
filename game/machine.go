package game

import (
	"errors"
	"strings"

	"node.town/trivia/quiz"
)

type Phase int

const (
	LoadingQuestions Phase = iota
	ReadingQuestion
	WaitingForAnswer
	RecordingAnswer
	EvaluatingAnswer
	ShowingResult
	Terminal
)

func (p Phase) String() string {
	switch p {
	case LoadingQuestions:
		return "loading"
	case ReadingQuestion:
		return "reading"
	case WaitingForAnswer:
		return "waiting"
	case RecordingAnswer:
		return "recording"
	case EvaluatingAnswer:
		return "evaluating"
	case ShowingResult:
		return "result"
	case Terminal:
		return "over"
	}
	return "unknown"
}

var ErrEmptyTranscript = errors.New("no speech was recognized")

// State is one snapshot of a session. Step never mutates its input.
type State struct {
	Phase     Phase
	Questions []quiz.Question
	Index     int
	Score     int

	// Answer is the pending answer while it is evaluated.
	Answer    string
	Result    quiz.Evaluation
	HasResult bool

	// Recording is the active attempt, nil while it is still starting.
	Recording quiz.Recording
	Stopping  bool

	// Err is the last recoverable failure, cleared by the next action.
	Err error
}

func (s State) Question() (quiz.Question, bool) {
	if s.Index < 0 || s.Index >= len(s.Questions) {
		return quiz.Question{}, false
	}
	return s.Questions[s.Index], true
}

func (s State) Total() int {
	return len(s.Questions)
}

type Event interface {
	isEvent()
}

type QuestionsLoaded struct{ Questions []quiz.Question }

type NarrationFinished struct{ Index int }

type OptionSelected struct{ Text string }

type RecordingRequested struct{}

type RecordingStarted struct{ Recording quiz.Recording }

// RecordingFailed with an empty ID means the attempt never started.
type RecordingFailed struct {
	ID  string
	Err error
}

type StopRequested struct{}

type TranscriptReady struct {
	ID   string
	Text string
}

type Evaluated struct {
	Index  int
	Result quiz.Evaluation
}

type EvaluationFailed struct {
	Index int
	Err   error
}

type FeedbackNarrated struct{ Index int }

type AdvanceRequested struct{}

func (QuestionsLoaded) isEvent()    {}
func (NarrationFinished) isEvent()  {}
func (OptionSelected) isEvent()     {}
func (RecordingRequested) isEvent() {}
func (RecordingStarted) isEvent()   {}
func (RecordingFailed) isEvent()    {}
func (StopRequested) isEvent()      {}
func (TranscriptReady) isEvent()    {}
func (Evaluated) isEvent()          {}
func (EvaluationFailed) isEvent()   {}
func (FeedbackNarrated) isEvent()   {}
func (AdvanceRequested) isEvent()   {}

// Effect is work the driver performs on behalf of the machine. Its
// outcome comes back as an Event.
type Effect interface {
	isEffect()
}

type LoadQuestions struct{}

// Narrate reads text aloud, then delivers Done.
type Narrate struct {
	Text string
	Done Event
}

type StartRecording struct{}

type StopRecording struct{ Recording quiz.Recording }

type Evaluate struct {
	Index    int
	Question quiz.Question
	Answer   string
}

type Finish struct{ Score int }

func (LoadQuestions) isEffect()  {}
func (Narrate) isEffect()        {}
func (StartRecording) isEffect() {}
func (StopRecording) isEffect()  {}
func (Evaluate) isEffect()       {}
func (Finish) isEffect()         {}

// Begin is the initial state of every session.
func Begin() (State, []Effect) {
	return State{Phase: LoadingQuestions}, []Effect{LoadQuestions{}}
}

// Step applies one event. Events that do not apply to the current phase
// leave the state unchanged.
func Step(s State, ev Event) (State, []Effect) {
	if s.Phase == Terminal {
		return s, nil
	}

	// An attempt that finishes starting after its phase is gone still
	// owns the microphone.
	if e, ok := ev.(RecordingStarted); ok && (s.Phase != RecordingAnswer || s.Recording != nil) {
		return s, []Effect{StopRecording{Recording: e.Recording}}
	}

	switch s.Phase {
	case LoadingQuestions:
		if e, ok := ev.(QuestionsLoaded); ok {
			return load(s, e.Questions)
		}

	case ReadingQuestion:
		if e, ok := ev.(NarrationFinished); ok && e.Index == s.Index {
			s.Phase = WaitingForAnswer
			return s, nil
		}

	case WaitingForAnswer:
		switch e := ev.(type) {
		case OptionSelected:
			q, _ := s.Question()
			if !q.HasOption(e.Text) {
				return s, nil
			}
			return evaluate(s, e.Text)
		case RecordingRequested:
			s.Phase = RecordingAnswer
			s.Recording = nil
			s.Stopping = false
			s.Err = nil
			return s, []Effect{StartRecording{}}
		}

	case RecordingAnswer:
		return stepRecording(s, ev)

	case EvaluatingAnswer:
		switch e := ev.(type) {
		case Evaluated:
			if e.Index != s.Index || s.HasResult {
				return s, nil
			}
			s.Result = e.Result
			s.HasResult = true
			if e.Result.Correct {
				s.Score++
			}
			if strings.TrimSpace(e.Result.Feedback) == "" {
				s.Phase = ShowingResult
				return s, nil
			}
			return s, []Effect{Narrate{
				Text: e.Result.Feedback,
				Done: FeedbackNarrated{Index: s.Index},
			}}
		case EvaluationFailed:
			if e.Index != s.Index || s.HasResult {
				return s, nil
			}
			s.Phase = WaitingForAnswer
			s.Answer = ""
			s.Err = e.Err
			return s, nil
		case FeedbackNarrated:
			if e.Index == s.Index && s.HasResult {
				s.Phase = ShowingResult
			}
			return s, nil
		}

	case ShowingResult:
		if _, ok := ev.(AdvanceRequested); ok {
			if s.Index+1 >= len(s.Questions) {
				s.Phase = Terminal
				return s, []Effect{Finish{Score: s.Score}}
			}
			s.Index++
			return read(s)
		}
	}

	return s, nil
}

func load(s State, questions []quiz.Question) (State, []Effect) {
	s.Questions = questions
	s.Index = 0
	s.Score = 0
	if len(questions) == 0 {
		s.Phase = Terminal
		return s, []Effect{Finish{Score: 0}}
	}
	return read(s)
}

func read(s State) (State, []Effect) {
	s.Phase = ReadingQuestion
	s.Answer = ""
	s.Result = quiz.Evaluation{}
	s.HasResult = false
	s.Err = nil
	q, _ := s.Question()
	return s, []Effect{Narrate{
		Text: q.Narration(),
		Done: NarrationFinished{Index: s.Index},
	}}
}

func evaluate(s State, answer string) (State, []Effect) {
	q, _ := s.Question()
	s.Phase = EvaluatingAnswer
	s.Answer = answer
	s.Err = nil
	return s, []Effect{Evaluate{Index: s.Index, Question: q, Answer: answer}}
}

func stepRecording(s State, ev Event) (State, []Effect) {
	switch e := ev.(type) {
	case RecordingStarted:
		s.Recording = e.Recording
		if s.Stopping {
			return s, []Effect{StopRecording{Recording: e.Recording}}
		}
		return s, nil

	case StopRequested:
		if s.Stopping {
			return s, nil
		}
		s.Stopping = true
		if s.Recording == nil {
			return s, nil
		}
		return s, []Effect{StopRecording{Recording: s.Recording}}

	case RecordingFailed:
		if !s.owns(e.ID) {
			return s, nil
		}
		s = s.dropRecording()
		s.Err = e.Err
		return s, nil

	case TranscriptReady:
		if s.Recording == nil || e.ID != s.Recording.ID() {
			return s, nil
		}
		s = s.dropRecording()
		text := strings.TrimSpace(e.Text)
		if text == "" {
			s.Err = ErrEmptyTranscript
			return s, nil
		}
		return evaluate(s, text)
	}
	return s, nil
}

// owns reports whether a failure refers to the current attempt.
func (s State) owns(id string) bool {
	if s.Recording == nil {
		return id == ""
	}
	return id == s.Recording.ID()
}

func (s State) dropRecording() State {
	s.Phase = WaitingForAnswer
	s.Recording = nil
	s.Stopping = false
	return s
}
