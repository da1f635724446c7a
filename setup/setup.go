package setup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
	"node.town/trivia/config"
	"node.town/trivia/quiz"
)

// Answers holds what the setup form collects.
type Answers struct {
	GeminiAPIKey     string
	DeepgramAPIKey   string
	OpenAIAPIKey     string
	ElevenLabsAPIKey string
	Transcriber      string
	Narrator         string
	LanguageModel    string
	Host             string
}

func current(v *viper.Viper) Answers {
	return Answers{
		GeminiAPIKey:     v.GetString(config.KeyGeminiAPIKey),
		DeepgramAPIKey:   v.GetString(config.KeyDeepgramAPIKey),
		OpenAIAPIKey:     v.GetString(config.KeyOpenAIAPIKey),
		ElevenLabsAPIKey: v.GetString(config.KeyElevenLabsAPIKey),
		Transcriber:      v.GetString(config.KeyTranscriber),
		Narrator:         v.GetString(config.KeyNarrator),
		LanguageModel:    v.GetString(config.KeyLanguageModel),
		Host:             v.GetString(config.KeyHost),
	}
}

func form(a *Answers) *huh.Form {
	hosts := huh.NewOptions(quiz.HostNames()...)

	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Enter your Google (Gemini) API Key").
				EchoMode(huh.EchoModePassword).
				Value(&a.GeminiAPIKey),
			huh.NewSelect[string]().
				Title("Speech recognition").
				Options(
					huh.NewOption("Gemini Live", config.BackendGemini),
					huh.NewOption("Deepgram", config.BackendDeepgram),
				).
				Value(&a.Transcriber),
			huh.NewSelect[string]().
				Title("Host voice").
				Options(
					huh.NewOption("Gemini TTS", config.BackendGemini),
					huh.NewOption("ElevenLabs", config.BackendElevenLabs),
				).
				Value(&a.Narrator),
			huh.NewSelect[string]().
				Title("Questions and judging").
				Options(
					huh.NewOption("Gemini", config.BackendGemini),
					huh.NewOption("OpenAI", config.BackendOpenAI),
				).
				Value(&a.LanguageModel),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Enter your Deepgram API Key").
				EchoMode(huh.EchoModePassword).
				Value(&a.DeepgramAPIKey),
		).WithHideFunc(func() bool { return a.Transcriber != config.BackendDeepgram }),
		huh.NewGroup(
			huh.NewInput().
				Title("Enter your ElevenLabs API Key").
				EchoMode(huh.EchoModePassword).
				Value(&a.ElevenLabsAPIKey),
		).WithHideFunc(func() bool { return a.Narrator != config.BackendElevenLabs }),
		huh.NewGroup(
			huh.NewInput().
				Title("Enter your OpenAI API Key").
				EchoMode(huh.EchoModePassword).
				Value(&a.OpenAIAPIKey),
		).WithHideFunc(func() bool { return a.LanguageModel != config.BackendOpenAI }),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Default host personality").
				Options(hosts...).
				Value(&a.Host),
		),
	)
}

// Apply stores the answers in v.
func Apply(v *viper.Viper, a Answers) {
	v.Set(config.KeyGeminiAPIKey, a.GeminiAPIKey)
	v.Set(config.KeyTranscriber, a.Transcriber)
	v.Set(config.KeyNarrator, a.Narrator)
	v.Set(config.KeyLanguageModel, a.LanguageModel)
	v.Set(config.KeyHost, a.Host)
	if a.DeepgramAPIKey != "" {
		v.Set(config.KeyDeepgramAPIKey, a.DeepgramAPIKey)
	}
	if a.ElevenLabsAPIKey != "" {
		v.Set(config.KeyElevenLabsAPIKey, a.ElevenLabsAPIKey)
	}
	if a.OpenAIAPIKey != "" {
		v.Set(config.KeyOpenAIAPIKey, a.OpenAIAPIKey)
	}
}

// Write saves v to its config file, creating dir/config.yaml when none
// was read.
func Write(v *viper.Viper, dir string) (string, error) {
	if path := v.ConfigFileUsed(); path != "" {
		return path, v.WriteConfig()
	}
	path := filepath.Join(dir, "config.yaml")
	if err := v.WriteConfigAs(path); err != nil {
		return "", err
	}
	return path, nil
}

func RunSetup(v *viper.Viper, dir string, logger *log.Logger) error {
	logger.Info("Starting trivia setup...")

	answers := current(v)
	if answers.Host == "" {
		answers.Host = quiz.DefaultHost
	}

	if err := form(&answers).Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			logger.Info("Setup cancelled")
			return nil
		}
		return fmt.Errorf("error during setup: %w", err)
	}

	Apply(v, answers)
	path, err := Write(v, dir)
	if err != nil {
		return fmt.Errorf("error saving configuration: %w", err)
	}
	if err := os.Chmod(path, 0600); err != nil {
		logger.Warn("could not restrict config permissions", "path", path, "error", err)
	}

	logger.Info("Setup completed successfully!", "path", path)
	return nil
}
