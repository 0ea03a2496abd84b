// Package config loads go-wayfinder settings from a TOML file and the
// environment, and converts them into each package's Config.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/teslashibe/go-wayfinder/pkg/announce"
	"github.com/teslashibe/go-wayfinder/pkg/journal"
	"github.com/teslashibe/go-wayfinder/pkg/pipeline"
	"github.com/teslashibe/go-wayfinder/pkg/risk"
	"github.com/teslashibe/go-wayfinder/pkg/scene"
	"github.com/teslashibe/go-wayfinder/pkg/tts"
	"github.com/teslashibe/go-wayfinder/pkg/web"
	"github.com/teslashibe/go-wayfinder/pkg/worldmodel"
)

// Environment variables that override the file.
const (
	EnvAPIKey   = "OPENAI_API_KEY"
	EnvBaseURL  = "OPENAI_BASE_URL"
	EnvMode     = "WAYFINDER_MODE"
	EnvLogLevel = "WAYFINDER_LOG_LEVEL"
)

// Duration is a time.Duration written as a Go duration string ("1.5s").
type Duration time.Duration

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration {
	return time.Duration(d)
}

// File is the on-disk configuration.
type File struct {
	LogLevel string `toml:"log_level"`
	APIKey   string `toml:"-"`

	Pipeline Pipeline `toml:"pipeline"`
	Risk     Risk     `toml:"risk"`
	Gate     Gate     `toml:"gate"`
	Announce Announce `toml:"announce"`
	Scene    Scene    `toml:"scene"`
	TTS      TTS      `toml:"tts"`
	Journal  Journal  `toml:"journal"`
	Web      Web      `toml:"web"`
}

// Pipeline is the [pipeline] section.
type Pipeline struct {
	FPS             float64  `toml:"fps"`
	DescribeEvery   int      `toml:"describe_every"`
	DescribeTimeout Duration `toml:"describe_timeout"`
	AnswerTimeout   Duration `toml:"answer_timeout"`
	StatusEvery     int      `toml:"status_every"`
}

// Risk is the [risk] section.
type Risk struct {
	MaxItems           int                `toml:"max_items"`
	ClassWeights       map[string]float64 `toml:"class_weights"`
	DefaultClassWeight float64            `toml:"default_class_weight"`
	ProximityWeight    float64            `toml:"proximity_weight"`
	ApproachThreshold  float64            `toml:"approach_threshold"`
	ApproachWeight     float64            `toml:"approach_weight"`
	PathOverlapRatio   float64            `toml:"path_overlap_ratio"`
	PathOverlapBonus   float64            `toml:"path_overlap_bonus"`
	ObstacleOverlap    float64            `toml:"obstacle_overlap_ratio"`
	ObstaclePriority   float64            `toml:"obstacle_priority"`
	TextBase           float64            `toml:"text_base"`
	KeywordBonus       float64            `toml:"keyword_bonus"`
	Keywords           []string           `toml:"keywords"`
}

// Gate is the [gate] section.
type Gate struct {
	Cooldown          Duration `toml:"cooldown"`
	TrackTTL          Duration `toml:"track_ttl"`
	TextTTL           Duration `toml:"text_ttl"`
	DangerDistance    float64  `toml:"danger_distance"`
	DangerPriority    float64  `toml:"danger_priority"`
	ApproachThreshold float64  `toml:"approach_threshold"`
	TextPriority      float64  `toml:"text_priority"`
	DistanceDelta     float64  `toml:"distance_delta"`
	LocationDelta     float64  `toml:"location_delta"`
	HeadingDelta      float64  `toml:"heading_delta"`
}

// Announce is the [announce] section.
type Announce struct {
	Mode           string   `toml:"mode"`
	InterruptWait  Duration `toml:"interrupt_wait"`
	FrameWidth     int      `toml:"frame_width"`
	HighPriority   float64  `toml:"high_priority"`
	NormalPriority float64  `toml:"normal_priority"`
	Cue            bool     `toml:"cue"`
}

// Scene is the [scene] section. The LLM describer is used when enabled and
// an API key is set; the rule-based describer is always the fallback.
type Scene struct {
	Enabled     bool     `toml:"enabled"`
	BaseURL     string   `toml:"base_url"`
	Model       string   `toml:"model"`
	Temperature float64  `toml:"temperature"`
	Timeout     Duration `toml:"timeout"`
}

// TTS is the [tts] section.
type TTS struct {
	Enabled bool     `toml:"enabled"`
	BaseURL string   `toml:"base_url"`
	Voice   string   `toml:"voice"`
	Model   string   `toml:"model"`
	Speed   float64  `toml:"speed"`
	Format  string   `toml:"format"`
	Timeout Duration `toml:"timeout"`
	Player  string   `toml:"player"`

	// FallbackModels are tried in order when Model fails.
	FallbackModels []string `toml:"fallback_models"`
}

// Journal is the [journal] section.
type Journal struct {
	Enabled    bool   `toml:"enabled"`
	Path       string `toml:"path"`
	MaxEntries int    `toml:"max_entries"`
}

// Web is the [web] section.
type Web struct {
	Enabled      bool   `toml:"enabled"`
	Addr         string `toml:"addr"`
	AllowOrigins string `toml:"allow_origins"`
	StaticDir    string `toml:"static_dir"`
}

// Default returns the configuration used when no file is given.
func Default() File {
	pc := pipeline.DefaultConfig()
	rc := risk.DefaultConfig()
	gc := worldmodel.DefaultConfig()
	ac := announce.DefaultConfig()
	sc := scene.DefaultOpenAIConfig()
	tc := tts.DefaultConfig()
	jc := journal.DefaultConfig()
	wc := web.DefaultConfig()

	return File{
		LogLevel: "info",
		Pipeline: Pipeline{
			FPS:             10,
			DescribeEvery:   pc.DescribeEvery,
			DescribeTimeout: Duration(pc.DescribeTimeout),
			AnswerTimeout:   Duration(pc.AnswerTimeout),
			StatusEvery:     pc.StatusEvery,
		},
		Risk: Risk{
			MaxItems:           rc.MaxItems,
			ClassWeights:       rc.ClassWeights,
			DefaultClassWeight: rc.DefaultClassWeight,
			ProximityWeight:    rc.ProximityWeight,
			ApproachThreshold:  rc.ApproachThreshold,
			ApproachWeight:     rc.ApproachWeight,
			PathOverlapRatio:   rc.PathOverlapRatio,
			PathOverlapBonus:   rc.PathOverlapBonus,
			ObstacleOverlap:    rc.ObstacleOverlapRatio,
			ObstaclePriority:   rc.ObstaclePriority,
			TextBase:           rc.TextBase,
			KeywordBonus:       rc.KeywordBonus,
			Keywords:           rc.Keywords,
		},
		Gate: Gate{
			Cooldown:          Duration(gc.Cooldown),
			TrackTTL:          Duration(gc.TrackTTL),
			TextTTL:           Duration(gc.TextTTL),
			DangerDistance:    gc.DangerDistance,
			DangerPriority:    gc.DangerPriority,
			ApproachThreshold: gc.ApproachThreshold,
			TextPriority:      gc.TextPriority,
			DistanceDelta:     gc.DistanceDelta,
			LocationDelta:     gc.LocationDelta,
			HeadingDelta:      gc.HeadingDelta,
		},
		Announce: Announce{
			Mode:           string(ac.Mode),
			InterruptWait:  Duration(ac.InterruptWait),
			FrameWidth:     ac.FrameWidth,
			HighPriority:   ac.HighPriority,
			NormalPriority: ac.NormalPriority,
			Cue:            true,
		},
		Scene: Scene{
			Enabled:     true,
			BaseURL:     sc.BaseURL,
			Model:       sc.Model,
			Temperature: sc.Temperature,
			Timeout:     Duration(sc.Timeout),
		},
		TTS: TTS{
			BaseURL: tc.BaseURL,
			Voice:   tc.Voice,
			Model:   tc.Model,
			Speed:   tc.Speed,
			Format:  string(tc.OutputFormat),
			Timeout: Duration(tc.Timeout),
			Player:  "ffplay",

			FallbackModels: []string{tts.ModelTTS1HD},
		},
		Journal: Journal{
			Path:       jc.Path,
			MaxEntries: jc.MaxEntries,
		},
		Web: Web{
			Addr:         wc.Addr,
			AllowOrigins: wc.AllowOrigins,
			StaticDir:    wc.StaticDir,
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path loads the defaults only.
func Load(path string) (File, error) {
	f := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return File{}, fmt.Errorf("config: %w", err)
		}
		if err := f.decode(data); err != nil {
			return File{}, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	f.ApplyEnv()
	if err := f.Validate(); err != nil {
		return File{}, err
	}
	return f, nil
}

// Parse decodes TOML over the defaults without touching the environment.
func Parse(data []byte) (File, error) {
	f := Default()
	if err := f.decode(data); err != nil {
		return File{}, fmt.Errorf("config: %w", err)
	}
	return f, f.Validate()
}

func (f *File) decode(data []byte) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(f); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return errors.New(strict.String())
		}
		var de *toml.DecodeError
		if errors.As(err, &de) {
			row, col := de.Position()
			return fmt.Errorf("line %d column %d: %w", row, col, err)
		}
		return err
	}
	return nil
}

// ApplyEnv overrides file values with environment variables.
func (f *File) ApplyEnv() {
	f.APIKey = getEnv(EnvAPIKey, f.APIKey)
	f.Scene.BaseURL = getEnv(EnvBaseURL, f.Scene.BaseURL)
	f.Announce.Mode = getEnv(EnvMode, f.Announce.Mode)
	f.LogLevel = getEnv(EnvLogLevel, f.LogLevel)
}

// getEnv returns the value of key, or fallback when it is unset or blank.
func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// Encode renders f as TOML.
func (f File) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(f); err != nil {
		return nil, fmt.Errorf("config: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Validate checks every section through its package's validation.
func (f File) Validate() error {
	if f.Pipeline.FPS < 0 {
		return errors.New("config: pipeline.fps must be >= 0")
	}
	var errs []error
	errs = append(errs,
		f.PipelineConfig().Validate(),
		f.RiskConfig().Validate(),
		f.GateConfig().Validate(),
	)
	if _, err := scene.ParseMode(f.Announce.Mode); err != nil {
		errs = append(errs, err)
	} else {
		errs = append(errs, f.AnnounceConfig().Validate())
	}
	if f.Journal.Enabled {
		errs = append(errs, f.JournalConfig().Validate())
	}
	if f.Web.Enabled {
		errs = append(errs, f.WebConfig().Validate())
	}
	return errors.Join(errs...)
}

// PipelineConfig converts the [pipeline] section.
func (f File) PipelineConfig() pipeline.Config {
	cfg := pipeline.Config{
		DescribeEvery:   f.Pipeline.DescribeEvery,
		DescribeTimeout: f.Pipeline.DescribeTimeout.D(),
		AnswerTimeout:   f.Pipeline.AnswerTimeout.D(),
		StatusEvery:     f.Pipeline.StatusEvery,
	}
	if f.Pipeline.FPS > 0 {
		cfg.FrameInterval = time.Duration(float64(time.Second) / f.Pipeline.FPS)
	}
	return cfg
}

// RiskConfig converts the [risk] section.
func (f File) RiskConfig() risk.Config {
	return risk.Config{
		MaxItems:             f.Risk.MaxItems,
		ClassWeights:         f.Risk.ClassWeights,
		DefaultClassWeight:   f.Risk.DefaultClassWeight,
		ProximityWeight:      f.Risk.ProximityWeight,
		ApproachThreshold:    f.Risk.ApproachThreshold,
		ApproachWeight:       f.Risk.ApproachWeight,
		PathOverlapRatio:     f.Risk.PathOverlapRatio,
		PathOverlapBonus:     f.Risk.PathOverlapBonus,
		ObstacleOverlapRatio: f.Risk.ObstacleOverlap,
		ObstaclePriority:     f.Risk.ObstaclePriority,
		TextBase:             f.Risk.TextBase,
		KeywordBonus:         f.Risk.KeywordBonus,
		Keywords:             f.Risk.Keywords,
	}
}

// GateConfig converts the [gate] section.
func (f File) GateConfig() worldmodel.Config {
	return worldmodel.Config{
		Cooldown:          f.Gate.Cooldown.D(),
		TrackTTL:          f.Gate.TrackTTL.D(),
		TextTTL:           f.Gate.TextTTL.D(),
		DangerDistance:    f.Gate.DangerDistance,
		DangerPriority:    f.Gate.DangerPriority,
		ApproachThreshold: f.Gate.ApproachThreshold,
		TextPriority:      f.Gate.TextPriority,
		DistanceDelta:     f.Gate.DistanceDelta,
		LocationDelta:     f.Gate.LocationDelta,
		HeadingDelta:      f.Gate.HeadingDelta,
	}
}

// AnnounceConfig converts the [announce] section. The mode must already
// have been validated.
func (f File) AnnounceConfig() announce.Config {
	mode, _ := scene.ParseMode(f.Announce.Mode)
	return announce.Config{
		InterruptWait:  f.Announce.InterruptWait.D(),
		FrameWidth:     f.Announce.FrameWidth,
		Mode:           mode,
		HighPriority:   f.Announce.HighPriority,
		NormalPriority: f.Announce.NormalPriority,
	}
}

// SceneOptions returns describer options for the [scene] section.
func (f File) SceneOptions() []scene.Option {
	return []scene.Option{
		scene.WithAPIKey(f.APIKey),
		scene.WithBaseURL(f.Scene.BaseURL),
		scene.WithModel(f.Scene.Model),
		scene.WithTemperature(f.Scene.Temperature),
		scene.WithTimeout(f.Scene.Timeout.D()),
	}
}

// TTSOptions returns provider options for the [tts] section.
func (f File) TTSOptions() []tts.Option {
	return []tts.Option{
		tts.WithAPIKey(f.APIKey),
		tts.WithBaseURL(f.TTS.BaseURL),
		tts.WithVoice(f.TTS.Voice),
		tts.WithModel(f.TTS.Model),
		tts.WithSpeed(f.TTS.Speed),
		tts.WithOutputFormat(tts.Encoding(f.TTS.Format)),
		tts.WithTimeout(f.TTS.Timeout.D()),
	}
}

// JournalConfig converts the [journal] section.
func (f File) JournalConfig() journal.Config {
	cfg := journal.DefaultConfig()
	cfg.Path = f.Journal.Path
	cfg.MaxEntries = f.Journal.MaxEntries
	return cfg
}

// WebConfig converts the [web] section.
func (f File) WebConfig() web.Config {
	cfg := web.DefaultConfig()
	cfg.Addr = f.Web.Addr
	cfg.AllowOrigins = f.Web.AllowOrigins
	cfg.StaticDir = f.Web.StaticDir
	return cfg
}
