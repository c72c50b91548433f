// Package config reads FLOWTRAIN_* environment variables and lets command
// line flags override them.
package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/alecthomas/kingpin.v2"

	"git.lost.host/meutraa/flowtrain/internal/clock"
	"git.lost.host/meutraa/flowtrain/internal/game"
	"git.lost.host/meutraa/flowtrain/internal/log"
)

const Version = "0.3.0"

type Config struct {
	Sequence    string        `env:"FLOWTRAIN_SEQUENCE"`
	Database    string        `env:"FLOWTRAIN_DB"           envDefault:"flowtrain.db"`
	FramePeriod time.Duration `env:"FLOWTRAIN_FRAME_PERIOD" envDefault:"16ms"`
	Policy      string        `env:"FLOWTRAIN_DRIFT_POLICY" envDefault:"reset"`
	Countdown   int           `env:"FLOWTRAIN_COUNTDOWN"    envDefault:"0"`
	StaleAfter  time.Duration `env:"FLOWTRAIN_STALE_AFTER"  envDefault:"500ms"`
	GridMode    string        `env:"FLOWTRAIN_GRID_MODE"    envDefault:"diamond"`
	Mirror      bool          `env:"FLOWTRAIN_MIRROR"`
	Debounce    time.Duration `env:"FLOWTRAIN_DEBOUNCE"     envDefault:"150ms"`

	Challenge       string `env:"FLOWTRAIN_CHALLENGE"`
	ChallengeTarget int    `env:"FLOWTRAIN_CHALLENGE_TARGET" envDefault:"5"`
	Timed           bool   `env:"FLOWTRAIN_TIMED"`

	LogLevel string  `env:"FLOWTRAIN_LOG_LEVEL" envDefault:"info"`
	LogFile  string  `env:"FLOWTRAIN_LOG_FILE"  envDefault:"flowtrain.log"`
	Audio    bool    `env:"FLOWTRAIN_AUDIO"     envDefault:"true"`
	Volume   float64 `env:"FLOWTRAIN_VOLUME"    envDefault:"0.3"`

	DryRun    bool `env:"FLOWTRAIN_DRY_RUN"`
	MissEvery int  `env:"FLOWTRAIN_MISS_EVERY" envDefault:"4"`

	OtelEndpoint string `env:"FLOWTRAIN_OTEL_ENDPOINT"`
}

// Parse loads the environment, then applies args (without the program
// name) on top.
func Parse(args []string) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); nil != err {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	app := kingpin.New("flowtrain", "Beat-synchronised hand position trainer")
	app.Version(Version)
	app.Arg("sequence", "Sequence file, the built-in sequence when omitted").Default(cfg.Sequence).StringVar(&cfg.Sequence)
	app.Flag("db", "History database").Default(cfg.Database).StringVar(&cfg.Database)
	app.Flag("frame-period", "Render frame period").Default(cfg.FramePeriod.String()).Short('p').DurationVar(&cfg.FramePeriod)
	app.Flag("drift", "Beat drift policy, reset or accumulate").Default(cfg.Policy).EnumVar(&cfg.Policy, "reset", "accumulate")
	app.Flag("countdown", "Countdown seconds, 0 to start immediately").Default(strconv.Itoa(cfg.Countdown)).Short('c').IntVar(&cfg.Countdown)
	app.Flag("stale-after", "Age after which a sample counts as nothing detected").Default(cfg.StaleAfter.String()).DurationVar(&cfg.StaleAfter)
	app.Flag("grid", "Grid mode, diamond or box").Default(cfg.GridMode).Short('g').EnumVar(&cfg.GridMode, "diamond", "box")
	app.Flag("mirror", "Mirror the camera horizontally").Default(strconv.FormatBool(cfg.Mirror)).BoolVar(&cfg.Mirror)
	app.Flag("debounce", "Delay before detection restarts after a grid change").Default(cfg.Debounce.String()).DurationVar(&cfg.Debounce)
	app.Flag("challenge", "Challenge to record progress for").Default(cfg.Challenge).StringVar(&cfg.Challenge)
	app.Flag("challenge-target", "Sessions needed to complete the challenge").Default(strconv.Itoa(cfg.ChallengeTarget)).IntVar(&cfg.ChallengeTarget)
	app.Flag("timed", "Play against the clock").Default(strconv.FormatBool(cfg.Timed)).Short('t').BoolVar(&cfg.Timed)
	app.Flag("log-level", "debug, info, warn, error or none").Default(cfg.LogLevel).StringVar(&cfg.LogLevel)
	app.Flag("log-file", "Log destination").Default(cfg.LogFile).StringVar(&cfg.LogFile)
	app.Flag("audio", "Audio cues").Default(strconv.FormatBool(cfg.Audio)).BoolVar(&cfg.Audio)
	app.Flag("volume", "Audio cue volume").Default(strconv.FormatFloat(cfg.Volume, 'f', -1, 64)).Float64Var(&cfg.Volume)
	app.Flag("dry-run", "Let a scripted performer play").Default(strconv.FormatBool(cfg.DryRun)).Short('n').BoolVar(&cfg.DryRun)
	app.Flag("miss-every", "Scripted performer misses every nth beat, 0 never").Default(strconv.Itoa(cfg.MissEvery)).IntVar(&cfg.MissEvery)
	app.Flag("otel-endpoint", "OTLP/HTTP endpoint for traces").Default(cfg.OtelEndpoint).StringVar(&cfg.OtelEndpoint)

	if _, err := app.Parse(args); nil != err {
		return nil, err
	}
	if err := cfg.validate(); nil != err {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.FramePeriod <= 0 {
		return fmt.Errorf("frame period must be positive, got %v", c.FramePeriod)
	}
	if c.Countdown < 0 {
		return fmt.Errorf("countdown cannot be negative, got %d", c.Countdown)
	}
	if c.Volume < 0 || c.Volume > 1 {
		return fmt.Errorf("volume must be between 0 and 1, got %v", c.Volume)
	}
	if _, err := clock.ParsePolicy(c.Policy); nil != err {
		return err
	}
	if _, err := game.ParseGridMode(c.GridMode); nil != err {
		return err
	}
	return nil
}

func (c *Config) ClockPolicy() clock.Policy {
	p, _ := clock.ParsePolicy(c.Policy)
	return p
}

func (c *Config) Grid() game.GridMode {
	m, _ := game.ParseGridMode(c.GridMode)
	return m
}

func (c *Config) Level() log.Level {
	return log.LevelFromString(c.LogLevel)
}
