package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/pflag"

	"ogameapi/captcha"
	"ogameapi/config"
	"ogameapi/core"
	"ogameapi/ocr"
	"ogameapi/routes"
	"ogameapi/store"
	utils "ogameapi/utils"
)

func main() {
	flags := config.Flags()
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := utils.NewLogger(cfg.Log.Level, cfg.Log.File)
	for _, missing := range utils.MissingPresetFields(utils.Presets) {
		log.Warn().Str("field", missing).Msg("preset field is missing a value")
	}

	// Captcha
	solver := captcha.NewSolver(
		captcha.NewRecognizer(captcha.DefaultLabels(), cfg.Captcha.MaxDistance),
		ocr.NewReader(cfg.OCR.Language),
		cfg.Captcha.DumpDir,
		log,
	)

	tokens, err := store.New(cfg.Store)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open token store")
	}

	timezones, err := core.OpenTimezoneResolver(cfg.GeoIP.Database, cfg.Fingerprint.Timezone)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open geoip database")
	}
	defer timezones.Close()

	env := &core.Environment{
		Config:    cfg,
		Answers:   solver,
		Tokens:    tokens,
		Timezones: timezones,
		Log:       log,
	}
	handlers := routes.NewHandlers(env, solver, cfg.Login.Timeout)

	e := echo.New()

	// Debug Setting
	e.Logger.SetOutput(io.Discard)
	e.HideBanner = true
	e.Debug = false

	// Middleware
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"*"},
		AllowHeaders:     []string{"*"},
		AllowCredentials: true,
	}))

	handlers.Register(e, routes.NewIPLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst))

	go func() {
		log.Info().Int("port", cfg.Port).Str("store", cfg.Store.Backend).Msg("server is running")
		if err := e.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
	}
	handlers.Wait()
	log.Info().Msg("server stopped")
}
