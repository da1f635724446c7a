package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"node.town/trivia/audio"
	"node.town/trivia/game"
	"node.town/trivia/recorder"
	"node.town/trivia/stt"
)

// Controller is the part of a game session the screen drives.
type Controller interface {
	Snapshot() game.State
	Updates() <-chan game.State
	SelectOption(text string)
	StartRecording()
	StopRecording()
	Advance()
}

// Starter begins a new session that runs until ctx is cancelled.
type Starter func(ctx context.Context) Controller

const micPermissionMessage = "จำเป็นต้องเข้าถึงไมโครโฟนเพื่อเล่น กรุณาอนุญาตการเข้าถึงและรีเฟรช"

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1)
	categoryStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff8800")).Bold(true)
	promptStyle   = lipgloss.NewStyle().Bold(true).MarginBottom(1)
	optionStyle   = lipgloss.NewStyle().PaddingLeft(2)
	chosenStyle   = optionStyle.Foreground(lipgloss.Color("#25A065")).Bold(true)
	correctStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#25A065")).Bold(true)
	wrongStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#E0115F")).Bold(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#E0115F"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginTop(1)
)

type stateMsg struct {
	session Controller
	state   game.State
}

func waitForUpdate(session Controller) tea.Cmd {
	return func() tea.Msg {
		return stateMsg{session: session, state: <-session.Updates()}
	}
}

type model struct {
	start   Starter
	host    string
	parent  context.Context
	cancel  context.CancelFunc
	session Controller
	state   game.State
	spinner spinner.Model
}

func New(ctx context.Context, host string, start Starter) tea.Model {
	m := model{
		start:   start,
		host:    host,
		parent:  ctx,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
	m.begin()
	return m
}

func (m *model) begin() {
	if m.cancel != nil {
		m.cancel()
	}
	ctx, cancel := context.WithCancel(m.parent)
	m.cancel = cancel
	m.session = m.start(ctx)
	m.state = m.session.Snapshot()
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForUpdate(m.session))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg.String())

	case stateMsg:
		if msg.session != m.session {
			return m, nil
		}
		m.state = msg.state
		if m.state.Phase == game.Terminal {
			return m, nil
		}
		return m, waitForUpdate(m.session)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) handleKey(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "ctrl+c", "q", "esc":
		m.cancel()
		return m, tea.Quit
	case "r":
		m.session.StartRecording()
	case "s":
		m.session.StopRecording()
	case "enter", "n":
		m.session.Advance()
	case "p":
		if m.state.Phase == game.Terminal {
			m.begin()
			return m, waitForUpdate(m.session)
		}
	default:
		if i, ok := optionIndex(key); ok && m.state.Phase == game.WaitingForAnswer {
			if q, ok := m.state.Question(); ok && i < len(q.Options) {
				m.session.SelectOption(q.Options[i])
			}
		}
	}
	return m, nil
}

// optionIndex maps 1-4 and a-d to an option position.
func optionIndex(key string) (int, bool) {
	if len(key) != 1 {
		return 0, false
	}
	switch c := key[0]; {
	case c >= '1' && c <= '4':
		return int(c - '1'), true
	case c >= 'a' && c <= 'd':
		return int(c - 'a'), true
	}
	return 0, false
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(m.headerView())
	b.WriteString("\n\n")

	if m.state.Phase == game.Terminal {
		b.WriteString(m.gameOverView())
		return b.String()
	}
	if m.state.Phase == game.LoadingQuestions {
		b.WriteString(m.spinner.View() + " กำลังสร้างคำถาม...\n")
		return b.String()
	}

	b.WriteString(m.questionView())
	b.WriteString("\n")
	b.WriteString(m.statusView())
	if m.state.Err != nil {
		b.WriteString("\n" + errorStyle.Render(ErrorText(m.state.Err)) + "\n")
	}
	b.WriteString(helpStyle.Render(m.helpText()))
	b.WriteString("\n")
	return b.String()
}

func (m model) headerView() string {
	title := titleStyle.Render("ทายปัญหา")
	score := fmt.Sprintf(" คะแนน: %d", m.state.Score)
	if total := m.state.Total(); total > 0 && m.state.Phase != game.Terminal {
		score += fmt.Sprintf("  ข้อ %d/%d", m.state.Index+1, total)
	}
	return lipgloss.JoinHorizontal(lipgloss.Center, title, score, "  พิธีกร: "+m.host)
}

func (m model) questionView() string {
	q, ok := m.state.Question()
	if !ok {
		return ""
	}
	var b strings.Builder
	b.WriteString(categoryStyle.Render(q.Category) + "\n")
	b.WriteString(promptStyle.Render(q.Prompt) + "\n")
	for i, opt := range q.Options {
		line := fmt.Sprintf("%c. %s", 'A'+i, opt)
		if m.state.Answer != "" && opt == m.state.Answer {
			b.WriteString(chosenStyle.Render(line))
		} else {
			b.WriteString(optionStyle.Render(line))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m model) statusView() string {
	switch m.state.Phase {
	case game.ReadingQuestion:
		return "🔊 กำลังอ่านคำถาม...\n"
	case game.WaitingForAnswer:
		return "เลือกคำตอบ หรือพูดคำตอบของคุณ\n"
	case game.RecordingAnswer:
		if m.state.Stopping {
			return m.spinner.View() + " กำลังถอดเสียง...\n"
		}
		return "🎙️ กำลังฟัง...\n"
	case game.EvaluatingAnswer:
		if m.state.HasResult {
			return m.resultView()
		}
		return m.spinner.View() + " กำลังตรวจคำตอบ: " + m.state.Answer + "\n"
	case game.ShowingResult:
		return m.resultView()
	}
	return ""
}

func (m model) resultView() string {
	var verdict string
	if m.state.Result.Correct {
		verdict = correctStyle.Render("✅ ถูกต้อง!")
	} else {
		verdict = wrongStyle.Render("❌ ไม่ถูกต้อง")
	}
	q, _ := m.state.Question()
	out := fmt.Sprintf("คำตอบของคุณ: %s\n%s  คำตอบที่ถูกต้อง: %s\n", m.state.Answer, verdict, q.CorrectAnswer)
	if fb := strings.TrimSpace(m.state.Result.Feedback); fb != "" {
		out += fb + "\n"
	}
	return out
}

func (m model) gameOverView() string {
	return fmt.Sprintf(
		"%s\nคะแนนสุดท้ายของคุณ: %d/%d\n%s\n",
		titleStyle.Render("จบเกม!"),
		m.state.Score,
		m.state.Total(),
		helpStyle.Render("p เล่นอีกครั้ง • q ออก"),
	)
}

func (m model) helpText() string {
	switch m.state.Phase {
	case game.WaitingForAnswer:
		return "1-4 เลือกคำตอบ • r พูดคำตอบ • q ออก"
	case game.RecordingAnswer:
		return "s หยุดและส่งคำตอบ • q ออก"
	case game.ShowingResult:
		if m.state.Index+1 >= m.state.Total() {
			return "enter ดูคะแนน • q ออก"
		}
		return "enter ข้อต่อไป • q ออก"
	}
	return "q ออก"
}

// ErrorText is the message shown to the player for a recoverable error.
func ErrorText(err error) string {
	switch {
	case errors.Is(err, audio.ErrDeviceUnavailable):
		return micPermissionMessage
	case errors.Is(err, stt.ErrConnection):
		return "เชื่อมต่อบริการถอดเสียงไม่สำเร็จ กรุณาลองอีกครั้ง"
	case errors.Is(err, stt.ErrTranscription), errors.Is(err, recorder.ErrCaptureEnded):
		return "การถอดเสียงขัดข้อง กรุณาลองอีกครั้ง"
	case errors.Is(err, game.ErrEmptyTranscript):
		return "ไม่ได้ยินคำตอบ กรุณาลองพูดอีกครั้ง"
	}
	return "ตรวจคำตอบไม่สำเร็จ กรุณาลองอีกครั้ง"
}
