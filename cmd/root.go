package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/augument/impulsecommunicator/internal/auth"
	"github.com/augument/impulsecommunicator/internal/bots"
	"github.com/augument/impulsecommunicator/internal/config"
	"github.com/augument/impulsecommunicator/internal/reddit"
	"github.com/augument/impulsecommunicator/internal/server"
)

var (
	authPath  string
	runPath   string
	envFile   string
	logLevel  string
	logFormat string

	noNotify     bool
	metricsAddr  string
	skipExisting bool

	// loginOptions points the login and API calls at other endpoints.
	loginOptions auth.Options
)

var rootCmd = &cobra.Command{
	Use:   "impulsecommunicator",
	Short: "Reply to other bots' comments on a subreddit",
	Long: `impulsecommunicator watches the comment stream of a subreddit and answers
comments written by the accounts listed in the run file, with an answer
picked at random from the first rule that matches.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runBot,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&authPath, "auth", "a", config.DefaultAuthPath, "auth settings file")
	rootCmd.PersistentFlags().StringVarP(&runPath, "run", "r", config.DefaultRunPath, "run settings file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the settings (ignored when missing)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	rootCmd.Flags().BoolVarP(&noNotify, "no-notify", "n", false, "don't log a line for every reply")
	rootCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics and /healthz on this address (disabled when empty)")
	rootCmd.Flags().BoolVar(&skipExisting, "skip-existing", false, "ignore comments posted before startup")
}

// loadEnvFile reads KEY=VALUE pairs into the environment without overriding
// variables that are already set.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

func runBot(cmd *cobra.Command, args []string) error {
	if err := loadEnvFile(envFile); err != nil {
		return err
	}
	logger := setupLogger(logLevel, logFormat, cmd.OutOrStdout())
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("started")

	logger.Info("loading auth settings", "file", authPath)
	settings, err := config.LoadAuthSettings(authPath)
	if err != nil {
		return err
	}
	logger.Info("loading run settings", "file", runPath)
	rules, err := config.LoadRunSettings(runPath)
	if err != nil {
		return err
	}
	warnUnreachable(logger, rules)

	sess, err := auth.Login(ctx, settings, loginOptions)
	if err != nil {
		if ctx.Err() != nil {
			return terminated(logger)
		}
		return err
	}
	logger.Info("authenticated", "user", sess.User)
	logger.Info("watching subreddit", "subreddit", settings.Subreddit)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := bots.NewMetrics(reg)
	if err != nil {
		return err
	}
	if metricsAddr != "" {
		srv := server.New(server.Config{Addr: metricsAddr}, reg, logger)
		go func() {
			if err := srv.Start(); err != nil {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	client := reddit.NewClient(sess, reddit.WithLogger(logger))
	stream := client.Comments(settings.Subreddit, reddit.WithSkipExisting(skipExisting))
	runner := bots.NewRunner(stream, client, rules,
		bots.WithNotify(!noNotify),
		bots.WithSelfName(sess.User),
		bots.WithLogger(logger),
		bots.WithMetrics(metrics),
	)

	err = runner.Run(ctx)
	if ctx.Err() != nil {
		return terminated(logger)
	}
	return err
}

func terminated(logger *slog.Logger) error {
	logger.Info("terminated")
	return nil
}

func warnUnreachable(logger *slog.Logger, rules []config.ReplyRule) {
	for i, r := range rules {
		if r.Unreachable() {
			logger.Warn("rule can never match: a post has no invoker to reply to",
				"rule", i, "bot_name", r.BotName)
		}
	}
}
