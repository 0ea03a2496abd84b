// Wayfinder replays recorded perception output through the hazard pipeline
// and speaks the announcements it decides on.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-wayfinder/internal/config"
	"github.com/teslashibe/go-wayfinder/internal/log"
	"github.com/teslashibe/go-wayfinder/pkg/announce"
	"github.com/teslashibe/go-wayfinder/pkg/audio"
	"github.com/teslashibe/go-wayfinder/pkg/hub"
	"github.com/teslashibe/go-wayfinder/pkg/journal"
	"github.com/teslashibe/go-wayfinder/pkg/perception"
	"github.com/teslashibe/go-wayfinder/pkg/pipeline"
	"github.com/teslashibe/go-wayfinder/pkg/risk"
	"github.com/teslashibe/go-wayfinder/pkg/scene"
	"github.com/teslashibe/go-wayfinder/pkg/tts"
	"github.com/teslashibe/go-wayfinder/pkg/web"
	"github.com/teslashibe/go-wayfinder/pkg/worldmodel"
)

// drainTimeout bounds how long queued announcements may play after the
// recording ends.
const drainTimeout = 30 * time.Second

type options struct {
	cfg      config.File
	replay   string
	ask      string
	keepOpen bool
}

func main() {
	opts, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "wayfinder: %v\n", err)
		os.Exit(2)
	}

	logger := log.Init(opts.cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("wayfinder failed", "error", err)
		os.Exit(1)
	}
}

// parseFlags loads the config file and applies command line overrides.
func parseFlags() (options, error) {
	configPath := flag.String("config", "", "TOML config file")
	replay := flag.String("replay", "", "Perception recording to replay (JSON lines)")
	fps := flag.Float64("fps", 0, "Replay frame rate, 0 keeps the config value")
	mode := flag.String("mode", "", "Output mode: navigation or description")
	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	dashboard := flag.Bool("web", false, "Serve the dashboard")
	addr := flag.String("addr", "", "Dashboard listen address")
	journalPath := flag.String("journal", "", "Record announcements to this SQLite file")
	speech := flag.Bool("tts", false, "Speak through OpenAI TTS instead of the console")
	ask := flag.String("ask", "", "Ask a question about the last frame after the replay")
	keepOpen := flag.Bool("keep-open", false, "Keep running after the replay ends (with -web)")
	printConfig := flag.Bool("print-config", false, "Print the effective config and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return options{}, err
	}

	if *fps > 0 {
		cfg.Pipeline.FPS = *fps
	}
	if *mode != "" {
		cfg.Announce.Mode = *mode
	}
	if *debug {
		cfg.LogLevel = "debug"
	}
	if *dashboard {
		cfg.Web.Enabled = true
	}
	if *addr != "" {
		cfg.Web.Addr = *addr
	}
	if *journalPath != "" {
		cfg.Journal.Enabled = true
		cfg.Journal.Path = *journalPath
	}
	if *speech {
		cfg.TTS.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		return options{}, err
	}

	if *printConfig {
		data, err := cfg.Encode()
		if err != nil {
			return options{}, err
		}
		os.Stdout.Write(data)
		os.Exit(0)
	}

	if *replay == "" {
		return options{}, errors.New("-replay is required")
	}
	return options{cfg: cfg, replay: *replay, ask: *ask, keepOpen: *keepOpen}, nil
}

func run(ctx context.Context, opts options, logger *slog.Logger) error {
	cfg := opts.cfg

	src, err := perception.OpenReplay(opts.replay)
	if err != nil {
		return err
	}
	defer src.Close()

	var schedOpts []announce.Option
	schedOpts = append(schedOpts, announce.WithLogger(logger))
	if cfg.Announce.Cue {
		schedOpts = append(schedOpts, announce.WithCue(announce.NewConsoleCue(os.Stdout)))
	}
	scheduler := announce.NewScheduler(cfg.AnnounceConfig(), newSpeaker(cfg, logger), schedOpts...)

	p := pipeline.New(cfg.PipelineConfig(),
		risk.NewScorer(cfg.RiskConfig(), logger),
		worldmodel.NewGate(cfg.GateConfig(), logger),
		scheduler,
		pipeline.WithDescriber(newDescriber(cfg, logger)),
		pipeline.WithLogger(logger),
	)

	var history web.History
	if cfg.Journal.Enabled {
		j, err := journal.Open(cfg.JournalConfig(), logger)
		if err != nil {
			return err
		}
		defer j.Close()
		scheduler.OnOutcome(j.Observer(2 * time.Second))
		history = j
	}

	serverCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()
	var serverDone chan error
	if cfg.Web.Enabled {
		h := hub.New(logger)
		scheduler.OnOutcome(func(o announce.Outcome) {
			h.Publish(hub.KindAnnouncement, o)
		})
		p.OnFrame(func(r pipeline.FrameResult) {
			h.Publish(hub.KindFrame, r)
		})

		srv := web.NewServer(cfg.WebConfig(), p, h, history, logger)
		serverDone = make(chan error, 1)
		go func() { serverDone <- srv.Run(serverCtx) }()
	}

	schedCtx, stopScheduler := context.WithCancel(ctx)
	defer stopScheduler()
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		scheduler.Run(schedCtx)
	}()

	logger.Info("replay started", "file", opts.replay, "mode", scheduler.Mode(), "fps", cfg.Pipeline.FPS)
	if err := p.Run(ctx, src); err != nil {
		return err
	}

	waitForQueue(ctx, scheduler, logger)

	if opts.ask != "" {
		fmt.Printf("Q: %s\nA: %s\n", opts.ask, p.AnswerQuestion(ctx, opts.ask))
	}

	st := p.Status()
	logger.Info("replay finished", "frames", st.Frames, "world", st.World)

	if opts.keepOpen && serverDone != nil {
		logger.Info("replay done, dashboard still serving; press Ctrl+C to exit")
		<-ctx.Done()
	}

	stopScheduler()
	<-schedDone
	if serverDone != nil {
		stopServer()
		return <-serverDone
	}
	return nil
}

// waitForQueue lets queued announcements finish after the last frame.
func waitForQueue(ctx context.Context, s *announce.Scheduler, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(ctx, drainTimeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for s.Pending() > 0 || s.State() != announce.Idle {
		select {
		case <-ctx.Done():
			logger.Warn("announcements still pending", "pending", s.Pending())
			return
		case <-ticker.C:
		}
	}
}

// newSpeaker returns OpenAI TTS played through a local player, or the
// console when speech is disabled or unavailable.
func newSpeaker(cfg config.File, logger *slog.Logger) announce.Speaker {
	if !cfg.TTS.Enabled {
		return announce.NewConsoleSpeaker(os.Stdout)
	}
	if cfg.APIKey == "" {
		logger.Warn("tts enabled but no API key, using console", "env", config.EnvAPIKey)
		return announce.NewConsoleSpeaker(os.Stdout)
	}

	player := audio.NewFFPlay(logger)
	if cfg.TTS.Player != "ffplay" {
		player = audio.NewCommandPlayer(logger, cfg.TTS.Player, audio.FFPlayArgs)
	}
	if err := player.Available(); err != nil {
		logger.Warn("no audio player, using console", "error", err)
		return announce.NewConsoleSpeaker(os.Stdout)
	}

	chain, err := tts.NewOpenAIChain(logger, cfg.TTS.FallbackModels, append(cfg.TTSOptions(), tts.WithLogger(logger))...)
	if err != nil {
		logger.Warn("tts unavailable, using console", "error", err)
		return announce.NewConsoleSpeaker(os.Stdout)
	}
	logger.Info("speaking through OpenAI TTS",
		"voice", cfg.TTS.Voice,
		"model", cfg.TTS.Model,
		"fallbacks", cfg.TTS.FallbackModels,
		"player", cfg.TTS.Player,
	)
	return tts.NewSpeaker(chain, player, logger)
}

// newDescriber chains the LLM describer, when configured, ahead of the
// rule-based one.
func newDescriber(cfg config.File, logger *slog.Logger) scene.Describer {
	rules := scene.RuleBased{FrameWidth: cfg.Announce.FrameWidth}
	if !cfg.Scene.Enabled || cfg.APIKey == "" {
		return rules
	}

	llm, err := scene.NewOpenAI(append(cfg.SceneOptions(), scene.WithLogger(logger))...)
	if err != nil {
		logger.Warn("scene describer unavailable, using rules", "error", err)
		return rules
	}
	chain, err := scene.NewChain(logger, llm, rules)
	if err != nil {
		return rules
	}
	return chain
}
