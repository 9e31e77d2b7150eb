package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/telecopilot/internal/aiorch"
	"github.com/hrygo/telecopilot/internal/apperr"
	"github.com/hrygo/telecopilot/internal/ipc"
	"github.com/hrygo/telecopilot/internal/llmclient"
	"github.com/hrygo/telecopilot/internal/metrics"
	"github.com/hrygo/telecopilot/internal/model"
	"github.com/hrygo/telecopilot/internal/offboard"
	"github.com/hrygo/telecopilot/internal/outreach"
	"github.com/hrygo/telecopilot/internal/ratelimit"
	"github.com/hrygo/telecopilot/internal/store"
	"github.com/hrygo/telecopilot/internal/tgclient"
)

var rootCmd = &cobra.Command{
	Use:   "telecopilot",
	Short: `A Telegram desktop copilot: durable outreach, AI triage and drafting, and one-click contact offboarding.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !isRunningAsSystemdService() {
			_ = godotenv.Load()
		}
		return nil
	},
	RunE: runServe,
}

func init() {
	viper.SetDefault("data", defaultDataDir())
	viper.SetDefault("metrics-addr", "127.0.0.1:9091")
	viper.SetDefault("min-interval", 3*time.Second)

	rootCmd.PersistentFlags().String("data", viper.GetString("data"), "application data directory (holds the session file and SQLite database)")
	rootCmd.PersistentFlags().String("metrics-addr", viper.GetString("metrics-addr"), "address the Prometheus metrics server listens on")
	rootCmd.PersistentFlags().Duration("min-interval", 3*time.Second, "minimum interval between outreach sends to the same recipient")

	for _, name := range []string{"data", "metrics-addr", "min-interval"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("telecopilot")
	viper.AutomaticEnv()
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".telecopilot"
	}
	return filepath.Join(home, ".telecopilot")
}

func isRunningAsSystemdService() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("WATCHDOG_USEC") != ""
}

func runServe(cmd *cobra.Command, args []string) error {
	dataDir := viper.GetString("data")
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Open(filepath.Join(dataDir, "telecopilot.db"))
	if err != nil {
		slog.Error("failed to open store", "error", err)
		return err
	}
	defer st.Close()

	exporter := metrics.New(metrics.DefaultConfig())

	appID, appHash, haveCreds := telegramCredentials()
	if !haveCreds {
		slog.Error("missing Telegram credentials", "error", apperr.MissingTelegramCredentials())
	}

	sessionPath := filepath.Join(dataDir, "telecopilot.session")
	newTransport := func(ctx context.Context) (tgclient.Transport, error) {
		return tgclient.NewGotdTransport(appID, appHash, sessionPath), nil
	}
	transport := tgclient.NewGotdTransport(appID, appHash, sessionPath)
	client := tgclient.New(transport, newTransport, tgclient.WithSessionPath(sessionPath), tgclient.WithMetrics(exporter))

	if haveCreds {
		if err := client.Connect(ctx); err != nil {
			slog.Error("failed to connect to Telegram", "error", err)
		}
	}

	limiter := ratelimit.New(viper.GetDuration("min-interval"))
	scheduler := outreach.New(st, client, limiter, outreach.WithMetrics(exporter))
	if restored, err := scheduler.RestoreFromStore(ctx); err != nil {
		slog.Error("failed to restore outreach queues", "error", err)
	} else if len(restored) > 0 {
		slog.Info("restored outreach queues without resuming", "count", len(restored))
	}

	llm := llmclient.New(resolveLLMConfig(ctx, st), llmclient.WithMetrics(exporter))
	defer llm.Shutdown()

	orchestrator := aiorch.New(client, llm, aiorch.WithMetrics(exporter))
	offboardTool := offboard.New(client)
	// The embedding UI process drives service over its own transport; this
	// binary only stands the collaborators up.
	service := ipc.New(client, scheduler, orchestrator, offboardTool, st, llm, ipc.WithMetrics(exporter))
	_ = service

	metricsServer := &http.Server{
		Addr:    viper.GetString("metrics-addr"),
		Handler: exporter.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server failed", "error", err)
		}
	}()

	printGreetings(dataDir, viper.GetString("metrics-addr"))

	c := make(chan os.Signal, 1)
	signal.Notify(c, terminationSignals...)
	<-c

	slog.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = metricsServer.Shutdown(shutdownCtx)
	cancel()
	return nil
}

// telegramCredentials reads TELEGRAM_API_ID/TELEGRAM_API_HASH from the
// process environment. Absence is a fatal configuration error that the
// caller logs but does not panic on: the process still starts so the UI
// can report the problem rather than the binary refusing to run at all.
func telegramCredentials() (appID int, appHash string, ok bool) {
	idStr := os.Getenv("TELEGRAM_API_ID")
	appHash = os.Getenv("TELEGRAM_API_HASH")
	if idStr == "" || appHash == "" {
		return 0, "", false
	}
	id, err := strconv.Atoi(idStr)
	if err != nil {
		return 0, "", false
	}
	return id, appHash, true
}

// resolveLLMConfig loads a persisted LLM config if one exists; otherwise
// it falls back to an OpenAI remote default seeded from the environment,
// per the persisted-config-overrides-environment rule.
func resolveLLMConfig(ctx context.Context, st *store.Store) model.LLMConfig {
	if cfg, ok, err := st.GetLLMConfig(ctx); err == nil && ok {
		return cfg
	}
	return model.LLMConfig{
		Provider: model.ProviderOpenAI,
		APIKey:   os.Getenv("OPENAI_API_KEY"),
		Model:    "gpt-4o-mini",
	}
}

func printGreetings(dataDir, metricsAddr string) {
	fmt.Println("telecopilot started")
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Printf("Metrics: http://%s/metrics\n", metricsAddr)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}
