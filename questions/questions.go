package questions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"node.town/trivia/llm"
	"node.town/trivia/quiz"
)

const (
	DefaultCount   = 5
	DefaultTimeout = 60 * time.Second
)

var ErrNoQuestions = errors.New("no valid questions in response")

const promptTemplate = `สร้างคำถามทายปัญหาที่ไม่ซ้ำกันและท้าทาย %d ข้อเกี่ยวกับข่าวสารล่าสุดของโลกหรือข้อเท็จจริงที่น่าสนใจในภาษาไทย
ส่งคืนการตอบกลับเป็นอาร์เรย์ JSON ที่ถูกต้องของอ็อบเจกต์
แต่ละอ็อบเจกต์ต้องมีคีย์ต่อไปนี้: "category", "question", "options" (อาร์เรย์ของสตริง 4 ค่า), และ "correctAnswer" (สตริงที่ตรงกับหนึ่งในตัวเลือกทุกประการ)
อย่าใส่ข้อความอื่นหรือการจัดรูปแบบมาร์กดาวน์ในการตอบกลับของคุณ`

// Generator asks a language model for a fresh question set.
type Generator struct {
	model   llm.LanguageModel
	logger  *log.Logger
	Count   int
	Timeout time.Duration
}

func NewGenerator(model llm.LanguageModel, logger *log.Logger) *Generator {
	return &Generator{
		model:   model,
		logger:  logger,
		Count:   DefaultCount,
		Timeout: DefaultTimeout,
	}
}

// Fetch always returns at least one well-formed question. Any failure
// to generate falls back to the built-in set.
func (g *Generator) Fetch(ctx context.Context) []quiz.Question {
	count := g.Count
	if count <= 0 {
		count = DefaultCount
	}

	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}

	start := time.Now()
	req := (&llm.ChatCompletionRequest{JSON: true}).
		WithUserMessage(fmt.Sprintf(promptTemplate, count))

	text, err := llm.Complete(ctx, g.model, req)
	if err != nil {
		g.logger.Error("question generation failed", "error", err)
		return Fallback()
	}

	qs, err := Parse(text, g.logger)
	if err != nil {
		g.logger.Error("unusable questions", "error", err)
		return Fallback()
	}
	if len(qs) > count {
		qs = qs[:count]
	}

	g.logger.Info("questions", "count", len(qs), "took", time.Since(start))
	return qs
}

// Parse decodes a model response into valid, distinct questions.
// Invalid entries are dropped; an error means none survived.
func Parse(text string, logger *log.Logger) ([]quiz.Question, error) {
	raw := stripFence(text)

	var candidates []quiz.Question
	if err := json.Unmarshal([]byte(raw), &candidates); err != nil {
		var wrapped struct {
			Questions []quiz.Question `json:"questions"`
		}
		if err2 := json.Unmarshal([]byte(raw), &wrapped); err2 != nil || wrapped.Questions == nil {
			return nil, fmt.Errorf("decode questions: %w", err)
		}
		candidates = wrapped.Questions
	}

	seen := make(map[string]bool)
	var out []quiz.Question
	for i, q := range candidates {
		q = normalize(q)
		if err := q.Validate(); err != nil {
			logger.Warn("dropping question", "index", i, "error", err)
			continue
		}
		if seen[q.Prompt] {
			logger.Warn("dropping duplicate question", "index", i)
			continue
		}
		seen[q.Prompt] = true
		out = append(out, q)
	}

	if len(out) == 0 {
		return nil, ErrNoQuestions
	}
	return out, nil
}

func stripFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

func normalize(q quiz.Question) quiz.Question {
	q.Category = strings.TrimSpace(q.Category)
	q.Prompt = strings.TrimSpace(q.Prompt)
	q.CorrectAnswer = strings.TrimSpace(q.CorrectAnswer)
	opts := make([]string, len(q.Options))
	for i, o := range q.Options {
		opts[i] = strings.TrimSpace(o)
	}
	q.Options = opts
	return q
}
