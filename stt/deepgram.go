package stt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/listen"
	"node.town/trivia/audio"
)

type DeepgramClient struct {
	token    string
	language string
	logger   *log.Logger
}

func NewDeepgramClient(
	token string,
	language string,
	logger *log.Logger,
) *DeepgramClient {
	if language == "" {
		language = "th"
	}
	return &DeepgramClient{
		token:    token,
		language: language,
		logger:   logger,
	}
}

func (c *DeepgramClient) Open(ctx context.Context) (Session, error) {
	cOptions := &interfaces.ClientOptions{
		EnableKeepAlive: true,
	}
	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          "nova-2",
		Language:       c.language,
		Punctuate:      true,
		Encoding:       "linear16",
		Channels:       1,
		SampleRate:     audio.SampleRate,
		SmartFormat:    true,
		InterimResults: true,
		UtteranceEndMs: "1000",
		VadEvents:      true,
	}

	session := newDeepgramSession(c.logger)

	client, err := listen.NewWSUsingCallback(
		ctx,
		c.token,
		cOptions,
		tOptions,
		session.handler,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	session.client = client

	if !client.Connect() {
		return nil, fmt.Errorf("%w: deepgram connect failed", ErrConnection)
	}

	go session.writeLoop(client.WriteBinary, nil)

	return session, nil
}

type DeepgramSession struct {
	*stream
	client       *listen.WSCallback
	handler      *deepgramHandler
	drainTimeout time.Duration
}

func newDeepgramSession(logger *log.Logger) *DeepgramSession {
	st := newStream(logger)
	return &DeepgramSession{
		stream:       st,
		handler:      &deepgramHandler{stream: st, finalized: make(chan struct{})},
		drainTimeout: DrainTimeout,
	}
}

func (s *DeepgramSession) Send(frame audio.Frame) error {
	return s.enqueue(frame.PCM)
}

// Close flushes queued audio and asks the service to finalize what it
// has buffered, waiting briefly for those results before hanging up.
func (s *DeepgramSession) Close(ctx context.Context) (string, error) {
	s.closeOnce.Do(func() {
		s.beginClose(ctx)
		if err := s.client.Finalize(); err != nil {
			s.logger.Debug("finalize", "error", err)
		} else {
			s.awaitFinal(ctx)
		}
		s.client.Stop()
		s.settle()
	})
	return s.result, s.resultErr
}

// awaitFinal waits for the results of a Finalize request, the end of the
// transport, or the drain timeout.
func (s *DeepgramSession) awaitFinal(ctx context.Context) {
	drain := time.NewTimer(s.drainTimeout)
	defer drain.Stop()

	select {
	case <-s.handler.finalized:
	case <-s.done:
	case <-drain.C:
		s.logger.Debug("finalize timed out")
	case <-ctx.Done():
	}
}

// deepgramHandler receives the SDK callbacks for one live connection.
// Only final results are accumulated; interim results are revised by
// the service and would duplicate text.
type deepgramHandler struct {
	*stream
	finalized chan struct{}
	finalOnce sync.Once
}

func (h *deepgramHandler) Message(mr *api.MessageResponse) error {
	if len(mr.Channel.Alternatives) > 0 && mr.IsFinal {
		transcript := strings.TrimSpace(mr.Channel.Alternatives[0].Transcript)
		if len(transcript) > 0 {
			h.apply(Partial{Text: transcript + " "})
		}
	}

	if mr.FromFinalize {
		h.finalOnce.Do(func() { close(h.finalized) })
	}
	return nil
}

func (h *deepgramHandler) Open(ocr *api.OpenResponse) error {
	h.logger.Info("open", "kind", "deepgram")
	return nil
}

func (h *deepgramHandler) Metadata(md *api.MetadataResponse) error {
	h.logger.Debug("metadata", "metadata", md)
	return nil
}

func (h *deepgramHandler) SpeechStarted(
	ssr *api.SpeechStartedResponse,
) error {
	h.logger.Debug("speech start", "timestamp", ssr.Timestamp)
	return nil
}

func (h *deepgramHandler) UtteranceEnd(ur *api.UtteranceEndResponse) error {
	h.logger.Debug("utterance end", "timestamp", ur.LastWordEnd)
	h.apply(TurnComplete{})
	return nil
}

func (h *deepgramHandler) Close(ocr *api.CloseResponse) error {
	h.logger.Info("closed", "reason", ocr.Type)
	h.finish()
	return nil
}

func (h *deepgramHandler) Error(er *api.ErrorResponse) error {
	h.fail(errors.New(er.Type + ": " + er.Description))
	return nil
}

func (h *deepgramHandler) UnhandledEvent(byData []byte) error {
	h.logger.Warn("unhandled event", "data", string(byData))
	return nil
}
