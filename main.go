package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"danmakuflow/internal/app"
	"danmakuflow/internal/comment"
	"danmakuflow/internal/engine"
	"danmakuflow/internal/render"
	"danmakuflow/internal/settings"
	"danmakuflow/internal/sim"
	"danmakuflow/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "danmakuflow",
	Short: "Scrolls time-coded comments over a shared video",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		lvl, err := zerolog.ParseLevel(flagLogLevel)
		if err != nil {
			return err
		}
		zerolog.SetGlobalLevel(lvl)
		if flagPretty {
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
		}
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and websocket server",
	RunE:  runServe,
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Play a comment file against a scripted clock and report what appeared",
	RunE:  runSimulate,
}

var (
	flagLogLevel string
	flagPretty   bool

	flagPort     string
	flagNGWords  string
	flagSettings string
	flagDataDir  string
	flagComments string
	flagAwait    time.Duration

	flagDuration time.Duration
	flagStep     time.Duration
	flagEvents   []string
	flagWidth    float64
	flagHeight   float64
)

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func init() {
	// Load .env before flag defaults read the environment.
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("[main] no .env file, using process environment")
	} else {
		log.Info().Msg("[main] loaded environment from .env")
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagLogLevel, "log-level", envOr("LOG_LEVEL", "info"), "trace, debug, info, warn or error")
	pf.BoolVar(&flagPretty, "pretty", false, "human-readable console logs")
	pf.StringVar(&flagSettings, "settings", envOr("SETTINGS_PATH", ""), "YAML settings file (empty keeps settings in memory)")
	pf.StringVar(&flagComments, "comments", envOr("COMMENTS_FILE", ""), "YAML or JSON comment list")

	sf := serveCmd.Flags()
	sf.StringVar(&flagPort, "port", envOr("PORT", "8080"), "HTTP port")
	sf.StringVar(&flagNGWords, "ng-words", os.Getenv("NG_WORDS"), "comma-separated NG words (default list when empty)")
	sf.StringVar(&flagDataDir, "data", envOr("DATA_DIR", ""), "comment store directory (empty keeps comments in memory)")
	sf.DurationVar(&flagAwait, "await", engine.DefaultAwait, "how long to wait for a watch page's player")

	mf := simulateCmd.Flags()
	mf.DurationVar(&flagDuration, "duration", time.Minute, "simulated run length")
	mf.DurationVar(&flagStep, "step", engine.DefaultTickInterval, "clock report interval")
	mf.StringSliceVar(&flagEvents, "event", nil, "playback events: pause@30s, play@45s, seek@1m=12.5")
	mf.Float64Var(&flagWidth, "width", 1280, "surface width in pixels")
	mf.Float64Var(&flagHeight, "height", 720, "surface height in pixels")

	rootCmd.AddCommand(serveCmd, simulateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("execute danmakuflow command")
	}
}

func loadComments() ([]comment.Comment, error) {
	if flagComments == "" {
		return nil, nil
	}
	comments, skipped, err := comment.ReadFile(flagComments)
	if err != nil {
		return nil, fmt.Errorf("read comments: %w", err)
	}
	log.Info().Str("file", flagComments).Int("loaded", len(comments)).Int("skipped", skipped).Msg("[main] comments loaded")
	return comments, nil
}

func loadMetrics() *render.Metrics {
	m, err := render.NewMetrics()
	if err != nil {
		log.Warn().Err(err).Msg("[main] font metrics unavailable, estimating text widths")
		return nil
	}
	return m
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := settings.Open(flagSettings)
	if err != nil {
		return fmt.Errorf("open settings: %w", err)
	}
	db, err := store.Open(flagDataDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error().Err(err).Msg("[main] close store")
		}
	}()
	seed, err := loadComments()
	if err != nil {
		return err
	}

	ng := app.ParseNGWords(flagNGWords)
	srv := app.NewServer(app.Config{
		NGWords:      ng,
		Settings:     st,
		Store:        db,
		Metrics:      loadMetrics(),
		Seed:         seed,
		AwaitTimeout: flagAwait,
	})
	defer srv.Close()

	httpSrv := &http.Server{
		Addr:              ":" + flagPort,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", httpSrv.Addr).Str("data", flagDataDir).Int("ngWords", len(ng)).Msg("[main] listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(sctx); err != nil {
			log.Error().Err(err).Msg("[main] http server shutdown error")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("[main] shutdown complete")
	return nil
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if flagComments == "" {
		return errors.New("--comments is required")
	}
	comments, err := loadComments()
	if err != nil {
		return err
	}
	st, err := settings.Open(flagSettings)
	if err != nil {
		return fmt.Errorf("open settings: %w", err)
	}
	events := make([]sim.Event, 0, len(flagEvents))
	for _, raw := range flagEvents {
		ev, err := sim.ParseEvent(raw)
		if err != nil {
			return err
		}
		events = append(events, ev)
	}

	rep, err := sim.Run(sim.Config{
		Comments: comments,
		Settings: st.Snapshot(),
		Size:     engine.Size{W: flagWidth, H: flagHeight},
		Duration: flagDuration,
		Step:     flagStep,
		Events:   events,
		Metrics:  loadMetrics(),
		Logger:   log.Logger,
	})
	if err != nil {
		return err
	}
	log.Info().
		Int("steps", rep.Steps).
		Int("scheduled", rep.Scheduled).
		Int("spawned", rep.Spawned).
		Int("removed", rep.Removed).
		Int("pins", rep.Pins).
		Int("maxLive", rep.MaxLive).
		Int("live", rep.Live).
		Msg("[sim] done")
	return nil
}
