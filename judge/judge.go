package judge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"node.town/trivia/llm"
	"node.town/trivia/quiz"
)

const DefaultTimeout = 30 * time.Second

const promptTemplate = `คุณคือพิธีกรทายปัญหาที่มีบุคลิกแบบ %s
คำถามคือ: "%s"
คำตอบที่ถูกต้องคือ: "%s"
คำตอบที่ผู้ใช้พูดคือ: "%s"

จากคำตอบของผู้ใช้ ให้พิจารณาก่อนว่าถูกต้องหรือไม่ คำตอบของผู้ใช้อาจแตกต่างเล็กน้อยแต่มีความหมายเหมือนกัน
จากนั้น ในบรรทัดใหม่ ให้เขียนว่า "CORRECT" หรือ "INCORRECT"
สุดท้าย ในบรรทัดถัดไป ให้ตอบกลับผู้ใช้สั้นๆ เป็นภาษาไทยตามบุคลิกของคุณโดยอิงจากคำตอบของพวกเขา`

// Judge grades answers in the voice of a host personality.
type Judge struct {
	model   llm.LanguageModel
	host    string
	logger  *log.Logger
	Timeout time.Duration
}

func New(model llm.LanguageModel, host string, logger *log.Logger) *Judge {
	if strings.TrimSpace(host) == "" {
		host = quiz.DefaultHost
	}
	return &Judge{
		model:   model,
		host:    host,
		logger:  logger,
		Timeout: DefaultTimeout,
	}
}

func (j *Judge) Host() string {
	return j.host
}

func Prompt(host string, q quiz.Question, answer string) string {
	return fmt.Sprintf(promptTemplate, host, q.Prompt, q.CorrectAnswer, answer)
}

// Evaluate returns an error only when the model could not be reached.
// A response that does not follow the format counts as incorrect.
func (j *Judge) Evaluate(
	ctx context.Context,
	q quiz.Question,
	answer string,
) (quiz.Evaluation, error) {
	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}

	req := (&llm.ChatCompletionRequest{}).
		WithUserMessage(Prompt(j.host, q, answer))

	text, err := llm.Complete(ctx, j.model, req)
	if err != nil {
		return quiz.Evaluation{}, fmt.Errorf("evaluate answer: %w", err)
	}

	eval := ParseVerdict(text)
	j.logger.Info("verdict", "answer", answer, "correct", eval.Correct)
	return eval, nil
}

// ParseVerdict reads the first non-blank line as the verdict and the
// rest as feedback.
func ParseVerdict(text string) quiz.Evaluation {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return quiz.Evaluation{}
	}

	return quiz.Evaluation{
		Correct:  strings.ToUpper(strings.TrimSpace(lines[0])) == "CORRECT",
		Feedback: strings.Join(lines[1:], "\n"),
	}
}
