package stt

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"node.town/trivia/audio"
)

const (
	GeminiLiveEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"
	GeminiLiveModel    = "gemini-2.5-flash-native-audio-preview-09-2025"
	PingInterval       = 30 * time.Second
	PongTimeout        = 60 * time.Second
	SetupTimeout       = 10 * time.Second
	DrainTimeout       = 2 * time.Second
)

// GeminiLive transcribes through the Gemini Live API by asking for
// input audio transcription on a bidirectional websocket.
type GeminiLive struct {
	APIKey       string
	Model        string
	Endpoint     string
	DrainTimeout time.Duration
	Dialer       *websocket.Dialer
	logger       *log.Logger
}

func NewGeminiLive(apiKey, model string, logger *log.Logger) *GeminiLive {
	if model == "" {
		model = GeminiLiveModel
	}
	return &GeminiLive{
		APIKey:       apiKey,
		Model:        model,
		Endpoint:     GeminiLiveEndpoint,
		DrainTimeout: DrainTimeout,
		Dialer:       websocket.DefaultDialer,
		logger:       logger,
	}
}

type liveSetup struct {
	Setup liveSetupConfig `json:"setup"`
}

type liveSetupConfig struct {
	Model                   string               `json:"model"`
	GenerationConfig        liveGenerationConfig `json:"generationConfig"`
	InputAudioTranscription *struct{}            `json:"inputAudioTranscription"`
}

type liveGenerationConfig struct {
	ResponseModalities []string `json:"responseModalities"`
}

type liveBlob struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}

type liveRealtimeInput struct {
	RealtimeInput liveRealtimeContent `json:"realtimeInput"`
}

type liveRealtimeContent struct {
	Audio          *liveBlob `json:"audio,omitempty"`
	AudioStreamEnd bool      `json:"audioStreamEnd,omitempty"`
}

type liveServerMessage struct {
	SetupComplete *struct{} `json:"setupComplete,omitempty"`
	ServerContent *struct {
		InputTranscription *struct {
			Text string `json:"text"`
		} `json:"inputTranscription,omitempty"`
		TurnComplete bool `json:"turnComplete,omitempty"`
	} `json:"serverContent,omitempty"`
	GoAway *struct {
		TimeLeft string `json:"timeLeft"`
	} `json:"goAway,omitempty"`
}

// events converts one server message into transcription events.
func (m liveServerMessage) events() []Event {
	if m.ServerContent == nil {
		return nil
	}
	var evs []Event
	if t := m.ServerContent.InputTranscription; t != nil && t.Text != "" {
		evs = append(evs, Partial{Text: t.Text})
	}
	if m.ServerContent.TurnComplete {
		evs = append(evs, TurnComplete{})
	}
	return evs
}

func (g *GeminiLive) Open(ctx context.Context) (Session, error) {
	endpoint := fmt.Sprintf("%s?key=%s", g.Endpoint, url.QueryEscape(g.APIKey))

	conn, _, err := g.Dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial: %v", ErrConnection, err)
	}

	setup := liveSetup{Setup: liveSetupConfig{
		Model:                   "models/" + g.Model,
		GenerationConfig:        liveGenerationConfig{ResponseModalities: []string{"AUDIO"}},
		InputAudioTranscription: &struct{}{},
	}}
	if err := conn.WriteJSON(setup); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: send setup: %v", ErrConnection, err)
	}

	if err := awaitSetup(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	s := &geminiSession{
		stream:       newStream(g.logger),
		conn:         conn,
		drainTimeout: g.DrainTimeout,
		readerDone:   make(chan struct{}),
	}

	go s.readLoop()
	go s.writeLoop(s.writeFrame, s.writeEndOfStream)
	go s.keepAlive()

	g.logger.Info("open", "kind", "gemini", "model", g.Model)
	return s, nil
}

func awaitSetup(ctx context.Context, conn *websocket.Conn) error {
	deadline := time.Now().Add(SetupTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetReadDeadline(deadline)
	defer conn.SetReadDeadline(time.Time{})

	// Closing the connection unblocks the read when ctx ends first.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("await setup: %w", ctx.Err())
			}
			return fmt.Errorf("await setup: %w", err)
		}
		var msg liveServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("decode setup reply: %w", err)
		}
		if msg.SetupComplete != nil {
			if !stop() {
				return fmt.Errorf("await setup: %w", ctx.Err())
			}
			return nil
		}
	}
}

type geminiSession struct {
	*stream
	conn         *websocket.Conn
	drainTimeout time.Duration
	readerDone   chan struct{}
}

func (s *geminiSession) Send(frame audio.Frame) error {
	msg, err := json.Marshal(liveRealtimeInput{RealtimeInput: liveRealtimeContent{
		Audio: &liveBlob{
			Data:     base64.StdEncoding.EncodeToString(frame.PCM),
			MimeType: audio.MimeType,
		},
	}})
	if err != nil {
		return fmt.Errorf("encode frame %d: %w", frame.Seq, err)
	}
	return s.enqueue(msg)
}

func (s *geminiSession) writeFrame(data []byte) error {
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *geminiSession) writeEndOfStream() error {
	return s.conn.WriteJSON(liveRealtimeInput{RealtimeInput: liveRealtimeContent{AudioStreamEnd: true}})
}

func (s *geminiSession) readLoop() {
	defer close(s.readerDone)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.isClosing() {
				s.finish()
				return
			}
			s.fail(err)
			return
		}

		var msg liveServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn("unhandled event", "data", string(data))
			continue
		}
		if msg.GoAway != nil {
			s.logger.Warn("server going away", "timeLeft", msg.GoAway.TimeLeft)
		}
		for _, ev := range msg.events() {
			s.apply(ev)
		}
	}
}

func (s *geminiSession) keepAlive() {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(PongTimeout)); err != nil {
				s.logger.Error("Failed to send ping", "error", err)
				return
			}
		}
	}
}

// Close flushes queued audio, tells the service the stream ended, then
// waits briefly for trailing transcription before releasing the
// connection.
func (s *geminiSession) Close(ctx context.Context) (string, error) {
	s.closeOnce.Do(func() {
		s.beginClose(ctx)

		err := s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		if err != nil {
			s.logger.Debug("close message", "error", err)
		}

		drain := time.NewTimer(s.drainTimeout)
		select {
		case <-s.readerDone:
		case <-drain.C:
		case <-ctx.Done():
		}
		drain.Stop()

		s.conn.Close()
		<-s.readerDone
		s.settle()
	})
	return s.result, s.resultErr
}
