package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var (
	ErrMissingKey = errors.New("missing API key")
	ErrBackend    = errors.New("unknown backend")
)

const (
	BackendGemini     = "gemini"
	BackendDeepgram   = "deepgram"
	BackendOpenAI     = "openai"
	BackendElevenLabs = "elevenlabs"
)

// Keys as they appear in config.yaml. Environment variables use the
// upper-case form.
const (
	KeyGeminiAPIKey      = "gemini_api_key"
	KeyDeepgramAPIKey    = "deepgram_api_key"
	KeyOpenAIAPIKey      = "openai_api_key"
	KeyElevenLabsAPIKey  = "elevenlabs_api_key"
	KeyTranscriber       = "transcriber"
	KeyNarrator          = "narrator"
	KeyLanguageModel     = "language_model"
	KeyTextModel         = "text_model"
	KeySpeechModel       = "speech_model"
	KeyLiveModel         = "live_model"
	KeyElevenLabsVoice   = "elevenlabs_voice"
	KeyLanguage          = "language"
	KeyMicInput          = "mic_input"
	KeyMicChannels       = "mic_channels"
	KeyQuestionCount     = "question_count"
	KeyHost              = "host"
	KeyMute              = "mute"
	KeyLogFile           = "log_file"
	KeyQuestionTimeout   = "question_timeout"
	KeyEvaluationTimeout = "evaluation_timeout"
	KeyNarrationTimeout  = "narration_timeout"
	KeyStopTimeout       = "stop_timeout"
)

type Config struct {
	GeminiAPIKey     string
	DeepgramAPIKey   string
	OpenAIAPIKey     string
	ElevenLabsAPIKey string

	Transcriber   string
	Narrator      string
	LanguageModel string

	TextModel       string
	SpeechModel     string
	LiveModel       string
	ElevenLabsVoice string
	Language        string

	MicInput    string
	MicChannels int

	QuestionCount int
	Host          string
	Mute          bool
	LogFile       string

	QuestionTimeout   time.Duration
	EvaluationTimeout time.Duration
	NarrationTimeout  time.Duration
	StopTimeout       time.Duration
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyTranscriber, BackendGemini)
	v.SetDefault(KeyNarrator, BackendGemini)
	v.SetDefault(KeyLanguageModel, BackendGemini)
	v.SetDefault(KeyLanguage, "th")
	v.SetDefault(KeyMicChannels, 1)
	v.SetDefault(KeyQuestionCount, 5)
	v.SetDefault(KeyLogFile, "trivia.log")
	v.SetDefault(KeyQuestionTimeout, 60*time.Second)
	v.SetDefault(KeyEvaluationTimeout, 30*time.Second)
	v.SetDefault(KeyNarrationTimeout, 45*time.Second)
	v.SetDefault(KeyStopTimeout, 10*time.Second)
}

// Init reads .env and config.yaml from dir, then lets the environment
// override both. Missing files are not an error.
func Init(v *viper.Viper, dir string) error {
	envFile := dir + string(os.PathSeparator) + ".env"
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", envFile, err)
	}

	SetDefaults(v)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	v.AutomaticEnv()
	v.BindEnv(KeyGeminiAPIKey, "GEMINI_API_KEY", "API_KEY")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		GeminiAPIKey:      v.GetString(KeyGeminiAPIKey),
		DeepgramAPIKey:    v.GetString(KeyDeepgramAPIKey),
		OpenAIAPIKey:      v.GetString(KeyOpenAIAPIKey),
		ElevenLabsAPIKey:  v.GetString(KeyElevenLabsAPIKey),
		Transcriber:       strings.ToLower(v.GetString(KeyTranscriber)),
		Narrator:          strings.ToLower(v.GetString(KeyNarrator)),
		LanguageModel:     strings.ToLower(v.GetString(KeyLanguageModel)),
		TextModel:         v.GetString(KeyTextModel),
		SpeechModel:       v.GetString(KeySpeechModel),
		LiveModel:         v.GetString(KeyLiveModel),
		ElevenLabsVoice:   v.GetString(KeyElevenLabsVoice),
		Language:          v.GetString(KeyLanguage),
		MicInput:          v.GetString(KeyMicInput),
		MicChannels:       v.GetInt(KeyMicChannels),
		QuestionCount:     v.GetInt(KeyQuestionCount),
		Host:              v.GetString(KeyHost),
		Mute:              v.GetBool(KeyMute),
		LogFile:           v.GetString(KeyLogFile),
		QuestionTimeout:   v.GetDuration(KeyQuestionTimeout),
		EvaluationTimeout: v.GetDuration(KeyEvaluationTimeout),
		NarrationTimeout:  v.GetDuration(KeyNarrationTimeout),
		StopTimeout:       v.GetDuration(KeyStopTimeout),
	}
	return cfg, cfg.Validate()
}

// Validate checks that every selected backend is known and has a key.
func (c Config) Validate() error {
	check := func(what, backend string, allowed map[string]string) error {
		key, ok := allowed[backend]
		if !ok {
			return fmt.Errorf("%w: %s %q", ErrBackend, what, backend)
		}
		if key == "" {
			return fmt.Errorf("%w: %s backend %q needs %s", ErrMissingKey, what, backend, keyName(backend))
		}
		return nil
	}

	if err := check(KeyTranscriber, c.Transcriber, map[string]string{
		BackendGemini:   c.GeminiAPIKey,
		BackendDeepgram: c.DeepgramAPIKey,
	}); err != nil {
		return err
	}
	if err := check(KeyLanguageModel, c.LanguageModel, map[string]string{
		BackendGemini: c.GeminiAPIKey,
		BackendOpenAI: c.OpenAIAPIKey,
	}); err != nil {
		return err
	}
	if c.Mute {
		return nil
	}
	return check(KeyNarrator, c.Narrator, map[string]string{
		BackendGemini:     c.GeminiAPIKey,
		BackendElevenLabs: c.ElevenLabsAPIKey,
	})
}

func keyName(backend string) string {
	switch backend {
	case BackendDeepgram:
		return strings.ToUpper(KeyDeepgramAPIKey)
	case BackendOpenAI:
		return strings.ToUpper(KeyOpenAIAPIKey)
	case BackendElevenLabs:
		return strings.ToUpper(KeyElevenLabsAPIKey)
	}
	return strings.ToUpper(KeyGeminiAPIKey)
}
