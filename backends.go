package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"node.town/trivia/audio"
	"node.town/trivia/config"
	"node.town/trivia/judge"
	"node.town/trivia/llm"
	"node.town/trivia/questions"
	"node.town/trivia/recorder"
	"node.town/trivia/stt"
	"node.town/trivia/tts"
)

// backends are the services a game session talks to, built once per run
// and shared by every play-through.
type backends struct {
	questions *questions.Generator
	judge     *judge.Judge
	narrator  *tts.Narrator
	recorder  *recorder.Recorder
	closers   []io.Closer
}

func openBackends(ctx context.Context, cfg config.Config, host string, logs loggers) (*backends, error) {
	b := &backends{}

	model, err := newLanguageModel(ctx, cfg, logs.host)
	if err != nil {
		return nil, err
	}
	if c, ok := model.(io.Closer); ok {
		b.closers = append(b.closers, c)
	}

	b.questions = questions.NewGenerator(model, logs.game)
	if cfg.QuestionCount > 0 {
		b.questions.Count = cfg.QuestionCount
	}
	if cfg.QuestionTimeout > 0 {
		b.questions.Timeout = cfg.QuestionTimeout
	}

	b.judge = judge.New(model, host, logs.host)
	if cfg.EvaluationTimeout > 0 {
		b.judge.Timeout = cfg.EvaluationTimeout
	}

	synth, err := newSynthesizer(ctx, cfg)
	if err != nil {
		b.Close()
		return nil, err
	}
	player, ok := tts.NewPlayer()
	if !ok && synth != nil {
		logs.talk.Warn("ffplay not found, narration will be silent")
	}
	b.narrator = tts.NewNarrator(synth, player, logs.talk)
	if cfg.NarrationTimeout > 0 {
		b.narrator.Timeout = cfg.NarrationTimeout
	}

	transcriber, err := newTranscriber(cfg, logs.hear)
	if err != nil {
		b.Close()
		return nil, err
	}
	capture := audio.NewCapture(audio.NewFFmpegDevice(cfg.MicInput, cfg.MicChannels), logs.mic)
	b.recorder = recorder.New(capture, transcriber, logs.mic)

	return b, nil
}

func (b *backends) Close() error {
	var errs []error
	for _, c := range b.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

func newLanguageModel(ctx context.Context, cfg config.Config, logger *log.Logger) (llm.LanguageModel, error) {
	switch cfg.LanguageModel {
	case config.BackendOpenAI:
		return llm.NewOpenAILanguageModel(cfg.OpenAIAPIKey, cfg.TextModel, logger), nil
	case config.BackendGemini:
		model, err := llm.NewGeminiLanguageModel(ctx, cfg.GeminiAPIKey, cfg.TextModel, logger)
		if err != nil {
			return nil, err
		}
		return model, nil
	}
	return nil, fmt.Errorf("%w: language model %q", config.ErrBackend, cfg.LanguageModel)
}

func newTranscriber(cfg config.Config, logger *log.Logger) (stt.Transcriber, error) {
	switch cfg.Transcriber {
	case config.BackendDeepgram:
		return stt.NewDeepgramClient(cfg.DeepgramAPIKey, cfg.Language, logger), nil
	case config.BackendGemini:
		return stt.NewGeminiLive(cfg.GeminiAPIKey, cfg.LiveModel, logger), nil
	}
	return nil, fmt.Errorf("%w: transcriber %q", config.ErrBackend, cfg.Transcriber)
}

func newSynthesizer(ctx context.Context, cfg config.Config) (tts.Synthesizer, error) {
	if cfg.Mute {
		return nil, nil
	}
	switch cfg.Narrator {
	case config.BackendElevenLabs:
		return tts.NewElevenLabsSpeech(cfg.ElevenLabsAPIKey, cfg.ElevenLabsVoice), nil
	case config.BackendGemini:
		speech, err := tts.NewGeminiSpeech(ctx, cfg.GeminiAPIKey, cfg.SpeechModel)
		if err != nil {
			return nil, err
		}
		return speech, nil
	}
	return nil, fmt.Errorf("%w: narrator %q", config.ErrBackend, cfg.Narrator)
}

func narratorName(cfg config.Config) string {
	if cfg.Mute {
		return "muted"
	}
	return cfg.Narrator
}
