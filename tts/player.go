package tts

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// FFplayPlayer pipes clips to an ffplay subprocess.
type FFplayPlayer struct {
	Path string
}

func NewFFplayPlayer() *FFplayPlayer {
	return &FFplayPlayer{Path: "ffplay"}
}

// NewPlayer returns an ffplay player, or a silent one when ffplay is
// not installed.
func NewPlayer() (Player, bool) {
	path, err := exec.LookPath("ffplay")
	if err != nil {
		return SilentPlayer{}, false
	}
	return &FFplayPlayer{Path: path}, true
}

func ffplayArgs(format Format) []string {
	args := []string{"-nodisp", "-autoexit", "-loglevel", "error"}
	switch format {
	case FormatPCM24k:
		args = append(args, "-f", "s16le", "-ar", "24000", "-ac", "1")
	case FormatMP3:
		args = append(args, "-f", "mp3")
	}
	return append(args, "-")
}

func (p *FFplayPlayer) Play(ctx context.Context, clip Clip) error {
	cmd := exec.CommandContext(ctx, p.Path, ffplayArgs(clip.Format)...)
	cmd.Stdin = bytes.NewReader(clip.Data)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffplay: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	return nil
}

// SilentPlayer discards audio.
type SilentPlayer struct{}

func (SilentPlayer) Play(ctx context.Context, clip Clip) error {
	return nil
}
