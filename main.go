package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"node.town/trivia/config"
	"node.town/trivia/game"
	"node.town/trivia/quiz"
	"node.town/trivia/setup"
	"node.town/trivia/ui"
)

var logger *log.Logger

func init() {
	cobra.OnInitialize(initConfig)

	playCmd.Flags().String("host", "", "Host personality")
	playCmd.Flags().Bool("pick-host", false, "Choose the host personality before playing")
	playCmd.Flags().Bool("mute", false, "Do not read anything aloud")
	viper.BindPFlag(config.KeyHost, playCmd.Flags().Lookup("host"))
	viper.BindPFlag(config.KeyMute, playCmd.Flags().Lookup("mute"))

	questionsCmd.Flags().Int("count", 0, "Number of questions to generate")
	viper.BindPFlag(config.KeyQuestionCount, questionsCmd.Flags().Lookup("count"))

	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(questionsCmd)
	rootCmd.AddCommand(hostsCmd)
	rootCmd.AddCommand(setupCmd)

	rootCmd.PersistentFlags().String("gemini-api-key", "", "Google Gemini API key")
	rootCmd.PersistentFlags().String("deepgram-api-key", "", "Deepgram API key")
	rootCmd.PersistentFlags().String("openai-api-key", "", "OpenAI API key")
	rootCmd.PersistentFlags().String("elevenlabs-api-key", "", "ElevenLabs API key")
	rootCmd.PersistentFlags().String("transcriber", "", "Speech recognition backend (gemini, deepgram)")
	rootCmd.PersistentFlags().String("narrator", "", "Speech synthesis backend (gemini, elevenlabs)")
	rootCmd.PersistentFlags().String("language-model", "", "Text generation backend (gemini, openai)")
	rootCmd.PersistentFlags().Bool("debug", false, "Log at debug level")

	viper.BindPFlag(
		config.KeyGeminiAPIKey,
		rootCmd.PersistentFlags().Lookup("gemini-api-key"),
	)
	viper.BindPFlag(
		config.KeyDeepgramAPIKey,
		rootCmd.PersistentFlags().Lookup("deepgram-api-key"),
	)
	viper.BindPFlag(
		config.KeyOpenAIAPIKey,
		rootCmd.PersistentFlags().Lookup("openai-api-key"),
	)
	viper.BindPFlag(
		config.KeyElevenLabsAPIKey,
		rootCmd.PersistentFlags().Lookup("elevenlabs-api-key"),
	)
	viper.BindPFlag(config.KeyTranscriber, rootCmd.PersistentFlags().Lookup("transcriber"))
	viper.BindPFlag(config.KeyNarrator, rootCmd.PersistentFlags().Lookup("narrator"))
	viper.BindPFlag(config.KeyLanguageModel, rootCmd.PersistentFlags().Lookup("language-model"))
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
}

func initConfig() {
	logger = log.New(os.Stderr)
	if err := config.Init(viper.GetViper(), "."); err != nil {
		logger.Warn("config", "error", err)
	}
}

var rootCmd = &cobra.Command{
	Use:   "trivia",
	Short: "Trivia is a spoken Thai quiz game",
	Long:  `Trivia generates Thai multiple-choice questions, reads them aloud, and judges answers you click or speak.`,
}

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Play a round of trivia",
	RunE:  runPlay,
}

var questionsCmd = &cobra.Command{
	Use:   "questions",
	Short: "Generate a question set and print it as a table",
	RunE:  runQuestions,
}

var hostsCmd = &cobra.Command{
	Use:   "hosts",
	Short: "List the host personalities",
	Run:   runHosts,
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Choose backends and store API keys in config.yaml",
	RunE: func(cmd *cobra.Command, args []string) error {
		return setup.RunSetup(viper.GetViper(), ".", logger.WithPrefix("setup"))
	},
}

func runPlay(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return fmt.Errorf("%w (run `trivia setup`)", err)
	}

	host := cfg.Host
	if pick, _ := cmd.Flags().GetBool("pick-host"); pick {
		if host, err = pickHost(host); err != nil {
			return err
		}
	}
	if host == "" {
		host = quiz.DefaultHost
	}
	if !slices.Contains(quiz.HostNames(), host) {
		logger.Warn("unknown host personality, using it as written", "host", host)
	}

	fileLogger, logFile, err := ui.OpenLogFile(cfg.LogFile, logLevel())
	if err != nil {
		return err
	}
	defer logFile.Close()
	logs := createLoggers(fileLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := openBackends(ctx, cfg, host, logs)
	if err != nil {
		return err
	}
	defer b.Close()

	start := func(ctx context.Context) ui.Controller {
		s := game.NewSession(b.questions, b.narrator, b.judge, b.recorder, logs.game)
		s.StopTimeout = cfg.StopTimeout
		go func() {
			score, err := s.Run(ctx)
			if err != nil {
				logs.main.Info("session ended", "score", score, "reason", err)
				return
			}
			logs.main.Info("session finished", "score", score)
		}()
		return s
	}

	logs.main.Info("starting", "host", host, "transcriber", cfg.Transcriber, "narrator", narratorName(cfg), "model", cfg.LanguageModel)

	p := tea.NewProgram(ui.New(ctx, host, start), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("error running UI: %w", err)
	}
	return nil
}

func pickHost(current string) (string, error) {
	if current == "" {
		current = quiz.DefaultHost
	}
	options := []huh.Option[string]{huh.NewOption("🎙️ "+quiz.DefaultHost, quiz.DefaultHost)}
	for _, h := range quiz.Hosts {
		options = append(options, huh.NewOption(h.Emoji+" "+h.Name, h.Name))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("เลือกบุคลิกพิธีกร").
				Options(options...).
				Value(&current),
		),
	)
	if err := form.Run(); err != nil {
		return "", fmt.Errorf("host selection: %w", err)
	}
	return current, nil
}

func runQuestions(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return fmt.Errorf("%w (run `trivia setup`)", err)
	}
	cfg.Mute = true

	logger.SetLevel(logLevel())
	logs := createLoggers(logger)

	b, err := openBackends(cmd.Context(), cfg, quiz.DefaultHost, logs)
	if err != nil {
		return err
	}
	defer b.Close()

	qs := b.questions.Fetch(cmd.Context())
	printQuestions(qs)
	return nil
}

func printQuestions(qs []quiz.Question) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"#", "Category", "Question", "Options", "Answer"})
	table.SetBorder(false)
	table.SetCenterSeparator("|")
	table.SetColumnSeparator("|")
	table.SetRowSeparator("-")
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)

	for i, q := range qs {
		options := make([]string, len(q.Options))
		for j, opt := range q.Options {
			options[j] = fmt.Sprintf("%c. %s", 'A'+j, opt)
		}
		table.Append([]string{
			fmt.Sprintf("%d", i+1),
			q.Category,
			q.Prompt,
			strings.Join(options, "  "),
			q.CorrectAnswer,
		})
	}

	table.Render()
}

func runHosts(cmd *cobra.Command, args []string) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"", "Host"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)

	table.Append([]string{"🎙️", quiz.DefaultHost + " (default)"})
	for _, h := range quiz.Hosts {
		table.Append([]string{h.Emoji, h.Name})
	}
	table.Render()
}

func logLevel() log.Level {
	if viper.GetBool("debug") {
		return log.DebugLevel
	}
	return log.InfoLevel
}

type loggers struct {
	main *log.Logger
	mic  *log.Logger
	hear *log.Logger
	talk *log.Logger
	host *log.Logger
	game *log.Logger
}

func createLoggers(base *log.Logger) loggers {
	base.SetReportCaller(true)
	base.SetCallerFormatter(
		func(file string, line int, funcName string) string {
			path, err := filepath.Rel(".", file)
			if err != nil {
				path = file
			}
			return fmt.Sprintf("%s:%d", path, line)
		},
	)

	styles := log.DefaultStyles()
	styles.Prefix = styles.Prefix.MarginTop(1).
		Bold(false).Transform(func(s string) string {
		return strings.TrimSuffix(s, ":")
	})
	styles.Levels[log.InfoLevel] = styles.Levels[log.InfoLevel].
		MaxWidth(6).
		MarginRight(1).
		Bold(false)
	styles.Levels[log.ErrorLevel] = styles.Levels[log.ErrorLevel].
		MaxWidth(6).
		MarginRight(1).
		Bold(false)
	styles.Message = styles.Message.Bold(true).Width(24)
	styles.Key = styles.Key.MarginLeft(1).
		Bold(false).
		Foreground(lipgloss.Color("#ff8800"))

	base.SetStyles(styles)

	return loggers{
		main: base.With().WithPrefix("main"),
		mic:  base.With().WithPrefix("mic"),
		hear: base.With().WithPrefix("hear"),
		talk: base.With().WithPrefix("talk"),
		host: base.With().WithPrefix("host"),
		game: base.With().WithPrefix("game"),
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
