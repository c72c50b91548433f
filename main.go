package main

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"

	"github.com/eiannone/keyboard"

	"git.lost.host/meutraa/flowtrain/internal/config"
	"git.lost.host/meutraa/flowtrain/internal/log"
	"git.lost.host/meutraa/flowtrain/internal/loop"
	"git.lost.host/meutraa/flowtrain/internal/otel"
	"git.lost.host/meutraa/flowtrain/internal/render"
)

func main() {
	if err := run(os.Args[1:]); nil != err {
		stdlog.Fatalln(err)
	}
}

func run(args []string) error {
	cfg, err := config.Parse(args)
	if nil != err {
		return err
	}

	// The terminal belongs to the renderer, so logs go to a file.
	logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if nil != err {
		return fmt.Errorf("unable to open log file: %w", err)
	}
	defer logFile.Close()
	logger := log.New(logFile, cfg.Level())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdown, err := otel.Setup(ctx, "flowtrain", cfg.OtelEndpoint)
	if nil != err {
		logger.Warnf("tracing disabled: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); nil != err {
			logger.Warnf("unable to flush traces: %v", err)
		}
	}()

	l := loop.New(cfg.FramePeriod)
	p := &Program{Config: cfg, Log: logger, Renderer: render.NewRenderer()}
	if err := p.Init(ctx, l); nil != err {
		p.Deinit()
		return err
	}
	defer p.Deinit()

	keys, err := keyboard.GetKeys(128)
	if nil != err {
		return fmt.Errorf("unable to open keyboard: %w", err)
	}
	defer func() {
		if err := keyboard.Close(); nil != err {
			logger.Warnf("unable to close keyboard: %v", err)
		}
	}()

	// Clear the screen and hide the cursor
	if err := p.Renderer.Init(); nil != err {
		return fmt.Errorf("unable to prepare terminal: %w", err)
	}
	defer func() {
		// Restore the terminal state
		if err := p.Renderer.Deinit(); nil != err {
			logger.Warnf("unable to restore terminal: %v", err)
		}
	}()
	p.Resize()

	go p.Keys(keys, cancel)
	l.RequestFrame(p.Frame)

	logger.Infof("flowtrain %s started, frame period %v, %s drift", config.Version, cfg.FramePeriod, cfg.ClockPolicy())
	if err := l.Run(ctx); nil != err && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
