package tts

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const DefaultNarrationTimeout = 45 * time.Second

type Format string

const (
	// FormatPCM24k is signed 16-bit little-endian mono at 24 kHz.
	FormatPCM24k Format = "s16le-24000"
	FormatMP3    Format = "mp3"
)

// Clip is one synthesized utterance.
type Clip struct {
	Data   []byte
	Format Format
}

type Synthesizer interface {
	Speak(ctx context.Context, text string) (Clip, error)
}

// Player plays a clip and returns when playback has finished.
type Player interface {
	Play(ctx context.Context, clip Clip) error
}

// Narrator reads text aloud. Narration is best effort: failures are
// logged and the game carries on. A nil synthesizer only logs the text.
type Narrator struct {
	synth   Synthesizer
	player  Player
	logger  *log.Logger
	Timeout time.Duration
}

func NewNarrator(synth Synthesizer, player Player, logger *log.Logger) *Narrator {
	return &Narrator{
		synth:   synth,
		player:  player,
		logger:  logger,
		Timeout: DefaultNarrationTimeout,
	}
}

func (n *Narrator) Narrate(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if n.synth == nil {
		n.logger.Info("talk", "txt", text, "muted", true)
		return
	}

	if n.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.Timeout)
		defer cancel()
	}

	start := time.Now()
	clip, err := n.synth.Speak(ctx, text)
	if err != nil {
		n.logger.Error("speech synthesis failed", "error", err)
		return
	}
	if len(clip.Data) == 0 {
		n.logger.Warn("no audio", "txt", text)
		return
	}
	n.logger.Info("talk", "txt", text, "bytes", len(clip.Data), "took", time.Since(start))

	if err := n.player.Play(ctx, clip); err != nil {
		n.logger.Error("playback failed", "error", err)
	}
}
