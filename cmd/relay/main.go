package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/devricklin/discord-relay/internal/api"
	"github.com/devricklin/discord-relay/internal/biz/domain"
	"github.com/devricklin/discord-relay/internal/biz/usecase"
	"github.com/devricklin/discord-relay/internal/conf"
	"github.com/devricklin/discord-relay/internal/data"
	"github.com/devricklin/discord-relay/internal/infra/discord"
	"github.com/devricklin/discord-relay/internal/infra/gemini"
	"github.com/devricklin/discord-relay/internal/server"
	"github.com/devricklin/discord-relay/internal/service"
	"github.com/devricklin/discord-relay/internal/telemetry"
)

const (
	serviceName     = "discord-relay"
	shutdownTimeout = 10 * time.Second
)

var version = "dev"

var (
	cfgFile     string
	debug       bool
	channelID   string
	replyDelay  string
	settleDelay string
)

var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "Single-channel Discord auto-reply bot backed by Gemini",
	Long: `relay listens to one Discord channel and answers messages there with a
short generated reply, at most once per reply delay.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	defaultCfg := os.Getenv("RELAY_CONFIG")
	if defaultCfg == "" {
		defaultCfg = "relay.yaml"
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", defaultCfg, "config file path")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "debug logging")
	rootCmd.Flags().StringVar(&channelID, "channel-id", "", "channel to reply in (skips the prompt)")
	rootCmd.Flags().StringVar(&replyDelay, "reply-delay", "", "seconds between automatic replies (skips the prompt)")
	rootCmd.Flags().StringVar(&settleDelay, "settle-delay", "", "seconds to wait after a message before replying (skips the prompt)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg, err := conf.Load(cfgFile)
	if err != nil {
		return err
	}
	if debug {
		cfg.Debug = true
	}
	setupLogging(cfg.Debug)

	if err := cfg.Validate(); err != nil {
		return err
	}

	prompts, err := conf.LoadPromptsConfig(cfg.PromptsPath)
	if err != nil {
		return err
	}

	// Startup values
	values, err := conf.ReadStartup(conf.PromptAsker{}, presetFromFlags(cmd))
	if err != nil {
		return err
	}
	bot := values.BotConfig()

	// Telemetry
	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing(serviceName, version)
	if err != nil {
		return err
	}
	defer shutdownTracing()

	// Initialize clients
	discordClient, err := discord.NewClient(cfg.DiscordToken)
	if err != nil {
		return err
	}
	geminiClient := gemini.NewClient(cfg.GoogleAPIKey, cfg.Model, cfg.BaseURL, cfg.GenerateTimeout())

	// Initialize repository layer
	repos, err := data.NewRepositories(discordClient, geminiClient, cfg.JournalPath)
	if err != nil {
		return err
	}
	defer repos.Close()
	if repos.Journal != nil {
		slog.Info("reply journal enabled", "path", cfg.JournalPath)
		if cfg.JournalRetentionDays > 0 {
			janitor := service.NewJournalJanitor(repos.Journal, cfg.JournalRetention(), service.DefaultJanitorInterval)
			janitor.Start(context.Background())
			defer janitor.Stop()
		}
	}

	// Initialize usecase layer
	replyUC := usecase.NewReplyUsecase(
		domain.NewReplyGate(bot.ReplyDelay),
		repos.Chat,
		repos.Generator,
		repos.Journal,
		usecase.ReplyConfig{
			Bot:               bot,
			Model:             cfg.Model,
			SystemInstruction: prompts.Persona.SystemInstruction,
			GenerateTimeout:   cfg.GenerateTimeout(),
		},
	)

	// Initialize service layer
	relaySvc := service.NewRelayService(replyUC, cfg.SupersedePending)

	// Status API
	var apiServer *api.Server
	if cfg.StatusAddr != "" {
		apiServer = api.NewServer(relaySvc, repos.Journal, cfg.StatusAddr)
		if err := apiServer.Start(); err != nil {
			return fmt.Errorf("failed to start status API: %w", err)
		}
	}

	// Initialize server
	srv := server.NewDiscordServer(discordClient, relaySvc, bot)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(); err != nil {
		return err
	}

	<-ctx.Done()
	fmt.Println("\nShutting down...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Stop(); err != nil {
		slog.Warn("failed to close discord session", "err", err)
	}
	if err := relaySvc.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("reply tasks still running at shutdown", "err", err)
	}
	if apiServer != nil {
		if err := apiServer.Stop(shutdownCtx); err != nil {
			slog.Warn("failed to stop status API", "err", err)
		}
	}
	return nil
}

func presetFromFlags(cmd *cobra.Command) conf.Preset {
	var p conf.Preset
	if cmd.Flags().Changed("channel-id") {
		p.ChannelID = &channelID
	}
	if cmd.Flags().Changed("reply-delay") {
		p.ReplyDelay = &replyDelay
	}
	if cmd.Flags().Changed("settle-delay") {
		p.SettleDelay = &settleDelay
	}
	return p
}

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
