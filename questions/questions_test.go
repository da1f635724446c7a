package questions

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"node.town/trivia/llm"
)

type MockLanguageModel struct {
	response string
	err      error
	block    bool
	requests []*llm.ChatCompletionRequest
}

func (m *MockLanguageModel) ChatCompletion(
	ctx context.Context,
	req *llm.ChatCompletionRequest,
) (chan *llm.ChatCompletionResponse, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	out := make(chan *llm.ChatCompletionResponse, 1)
	if m.block {
		go func() {
			<-ctx.Done()
			out <- &llm.ChatCompletionResponse{Err: ctx.Err()}
			close(out)
		}()
		return out, nil
	}
	out <- &llm.ChatCompletionResponse{Content: m.response}
	close(out)
	return out, nil
}

const twoQuestions = `[
 {"category":"กีฬา","question":"ฟุตบอลโลก 2022 จัดที่ประเทศใด","options":["กาตาร์","รัสเซีย","บราซิล","ญี่ปุ่น"],"correctAnswer":"กาตาร์"},
 {"category":"อาหาร","question":"ต้มยำกุ้งเป็นอาหารของประเทศใด","options":["ไทย","ลาว","เวียดนาม","จีน"],"correctAnswer":"ไทย"}
]`

func newTestGenerator(m *MockLanguageModel) *Generator {
	return NewGenerator(m, log.New(io.Discard))
}

func TestFetch(t *testing.T) {
	t.Run("Valid Response", func(t *testing.T) {
		m := &MockLanguageModel{response: twoQuestions}
		qs := newTestGenerator(m).Fetch(context.Background())
		if len(qs) != 2 || qs[0].Category != "กีฬา" {
			t.Fatalf("Fetch() = %+v", qs)
		}
		if !m.requests[0].JSON {
			t.Error("question request did not ask for JSON")
		}
	})

	t.Run("Fenced Response", func(t *testing.T) {
		m := &MockLanguageModel{response: "```json\n" + twoQuestions + "\n```\n"}
		if qs := newTestGenerator(m).Fetch(context.Background()); len(qs) != 2 {
			t.Errorf("Fetch() returned %d questions, want 2", len(qs))
		}
	})

	t.Run("Truncated To Count", func(t *testing.T) {
		g := newTestGenerator(&MockLanguageModel{response: twoQuestions})
		g.Count = 1
		if qs := g.Fetch(context.Background()); len(qs) != 1 {
			t.Errorf("Fetch() returned %d questions, want 1", len(qs))
		}
	})

	t.Run("Model Error Falls Back", func(t *testing.T) {
		g := newTestGenerator(&MockLanguageModel{err: errors.New("503")})
		qs := g.Fetch(context.Background())
		if len(qs) != len(Fallback()) || qs[0].CorrectAnswer != "300,000 กม./วินาที" {
			t.Errorf("Fetch() = %+v, want fallback", qs)
		}
	})

	t.Run("Garbage Falls Back", func(t *testing.T) {
		g := newTestGenerator(&MockLanguageModel{response: "ขอโทษ ฉันทำไม่ได้"})
		if qs := g.Fetch(context.Background()); len(qs) != len(Fallback()) {
			t.Errorf("Fetch() = %+v, want fallback", qs)
		}
	})

	t.Run("Timeout Falls Back", func(t *testing.T) {
		g := newTestGenerator(&MockLanguageModel{block: true})
		g.Timeout = 10 * time.Millisecond
		if qs := g.Fetch(context.Background()); len(qs) != len(Fallback()) {
			t.Errorf("Fetch() = %+v, want fallback", qs)
		}
	})
}

func TestParse(t *testing.T) {
	logger := log.New(io.Discard)

	t.Run("Drops Invalid And Duplicate", func(t *testing.T) {
		text := `[
 {"category":"a","question":"Q1","options":["1","2","3","4"],"correctAnswer":"1"},
 {"category":"b","question":"Q2","options":["1","2","3"],"correctAnswer":"1"},
 {"category":"c","question":"Q3","options":["1","1","3","4"],"correctAnswer":"3"},
 {"category":"d","question":"Q4","options":["1","2","3","4"],"correctAnswer":"5"},
 {"category":"e","question":" Q1 ","options":["1","2","3","4"],"correctAnswer":"2"},
 {"category":"f","question":"Q6","options":[" x ","y","z","w"],"correctAnswer":"x"}
]`
		qs, err := Parse(text, logger)
		if err != nil {
			t.Fatalf("Parse() = %v", err)
		}
		if len(qs) != 2 || qs[0].Prompt != "Q1" || qs[1].Prompt != "Q6" {
			t.Errorf("Parse() = %+v", qs)
		}
		if qs[1].Options[0] != "x" {
			t.Errorf("options not trimmed: %q", qs[1].Options)
		}
	})

	t.Run("Wrapped Object", func(t *testing.T) {
		qs, err := Parse(`{"questions":`+twoQuestions+`}`, logger)
		if err != nil || len(qs) != 2 {
			t.Errorf("Parse() = %d questions, %v", len(qs), err)
		}
	})

	t.Run("Nothing Valid", func(t *testing.T) {
		if _, err := Parse(`[]`, logger); !errors.Is(err, ErrNoQuestions) {
			t.Errorf("Parse() = %v, want ErrNoQuestions", err)
		}
	})
}

func TestFallback(t *testing.T) {
	categories := make(map[string]bool)
	for _, q := range Fallback() {
		if err := q.Validate(); err != nil {
			t.Errorf("fallback question %q invalid: %v", q.Prompt, err)
		}
		categories[q.Category] = true
	}
	if len(categories) != len(Fallback()) {
		t.Error("fallback categories are not distinct")
	}
}
