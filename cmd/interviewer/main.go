package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/interviewer/internal/handler"
	appI18n "github.com/pavelanni/interviewer/internal/i18n"
	"github.com/pavelanni/interviewer/internal/interview"
	"github.com/pavelanni/interviewer/internal/llm"
	"github.com/pavelanni/interviewer/internal/llm/prompts"
	"github.com/pavelanni/interviewer/internal/model"
	"github.com/pavelanni/interviewer/internal/store"
)

const appName = "Excel Mock Interviewer"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "interviewer",
		Short: "Excel mock interview server powered by LLMs",
	}
	root.PersistentFlags().String("env-file", ".env", "Dotenv file loaded before reading configuration")
	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		return loadEnvFile(cmd)
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `interviewer --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the interview server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "interviewer.db", "SQLite report archive path (empty disables the archive)")
	f.String("llm-url", "https://api.openai.com/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "", "API key for LLM (or set INTERVIEWER_LLM_KEY)")
	f.String("llm-model", "gpt-4o-mini", "LLM model name")
	f.Duration("llm-timeout", 30*time.Second, "Timeout for each LLM call")
	f.Bool("llm-check", true, "Check the LLM endpoint at startup")
	f.Bool("offline", false, "Run without an LLM; all scoring and reports use built-in fallbacks")
	f.IntP("num-questions", "n", 5, "Number of questions per interview")
	f.String("prompt-variant", string(prompts.PromptStandard), "Grading prompt variant (strict, standard, lenient)")
	f.StringP("lang", "l", "en", "Default language for client messages (en, ru)")
	f.Float64("rate-limit", 5, "Inbound events per second per connection (0 disables)")
	f.Int("rate-burst", 10, "Burst size for the per-connection rate limit")
	f.StringSlice("allowed-origins", nil, "Allowed websocket origins (empty allows any)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export archived interview reports as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "interviewer.db", "SQLite report archive path")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

// loadEnvFile loads the dotenv file named by --env-file. A missing default file is not an error.
func loadEnvFile(cmd *cobra.Command) error {
	path, _ := cmd.Flags().GetString("env-file")
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("env-file") {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("INTERVIEWER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("interviewer")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/interviewer")
	v.AddConfigPath("/etc/interviewer")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	promptVariant := strings.ToLower(strings.TrimSpace(v.GetString("prompt-variant")))
	if !prompts.IsValidVariant(promptVariant) {
		slog.Warn("invalid prompt-variant, using standard", "variant", promptVariant)
		promptVariant = string(prompts.PromptStandard)
	}

	numQuestions := v.GetInt("num-questions")
	if numQuestions <= 0 {
		return fmt.Errorf("num-questions must be positive, got %d", numQuestions)
	}

	cfg := model.InterviewConfig{
		NumQuestions:   numQuestions,
		CallTimeout:    v.GetDuration("llm-timeout"),
		PromptVariant:  promptVariant,
		Lang:           lang,
		RateLimit:      v.GetFloat64("rate-limit"),
		RateBurst:      v.GetInt("rate-burst"),
		AllowedOrigins: v.GetStringSlice("allowed-origins"),
	}

	collab, err := newCollaborators(v, promptVariant)
	if err != nil {
		return err
	}

	// Interfaces stay nil when the archive is disabled.
	var (
		sink    interview.ReportSink
		reports handler.ReportReader
	)
	if dbPath := v.GetString("db"); dbPath != "" {
		db, err := store.New(dbPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()

		modelName := v.GetString("llm-model")
		if v.GetBool("offline") {
			modelName = ""
		}
		if err := db.SetArchiveInfo(model.ArchiveInfo{
			LLMModel:      modelName,
			PromptVariant: promptVariant,
			NumQuestions:  numQuestions,
		}); err != nil {
			return fmt.Errorf("record archive info: %w", err)
		}
		sink, reports = db, db
	}

	engine := interview.NewEngine(collab, cfg, sink)
	h := handler.New(engine, reports, cfg)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.Handler())
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"offline", v.GetBool("offline"),
		"model", v.GetString("llm-model"),
		"llm_url", v.GetString("llm-url"),
		"lang", lang,
		"num_questions", cfg.NumQuestions,
		"prompt_variant", cfg.PromptVariant,
		"archive", reports != nil,
	)
	return http.ListenAndServe(addr, r)
}

// newCollaborators builds the LLM-backed collaborators. In offline mode they are all
// left nil and the engine uses its fallbacks.
func newCollaborators(v *viper.Viper, promptVariant string) (interview.Collaborators, error) {
	if v.GetBool("offline") {
		slog.Info("offline mode, LLM disabled")
		return interview.Collaborators{}, nil
	}

	client, err := llm.New(
		v.GetString("llm-url"),
		v.GetString("llm-key"),
		v.GetString("llm-model"),
		promptVariant,
	)
	if err != nil {
		return interview.Collaborators{}, fmt.Errorf("create LLM client: %w", err)
	}

	if v.GetBool("llm-check") {
		ctx, cancel := context.WithTimeout(context.Background(), v.GetDuration("llm-timeout"))
		defer cancel()
		if err := client.Ping(ctx); err != nil {
			slog.Warn("LLM health check failed, fallbacks will be used while it is unavailable",
				"url", v.GetString("llm-url"), "error", err)
		} else {
			slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))
		}
	}

	return interview.Collaborators{
		Generator:   client,
		Scorer:      client,
		Narrator:    client,
		Recommender: client,
	}, nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	reports, err := db.ExportAllReports()
	if err != nil {
		return fmt.Errorf("export reports: %w", err)
	}
	info, err := db.GetArchiveInfo()
	if err != nil {
		return fmt.Errorf("read archive info: %w", err)
	}

	export := model.ReportExport{
		Application:   appName,
		GeneratedDate: time.Now().UTC(),
		Archive:       info,
		Count:         len(reports),
		Reports:       reports,
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	_, _ = fmt.Fprintln(w)

	slog.Info("exported reports", "count", len(reports), "output", outPath)
	return nil
}
