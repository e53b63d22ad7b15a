package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Brownie44l1/leaf-api/internal/config"
	"github.com/Brownie44l1/leaf-api/internal/handlers"
	"github.com/Brownie44l1/leaf-api/internal/labels"
	"github.com/Brownie44l1/leaf-api/internal/logging"
	"github.com/Brownie44l1/leaf-api/internal/metrics"
	"github.com/Brownie44l1/leaf-api/internal/model"
	"github.com/Brownie44l1/leaf-api/internal/preprocess"
	"github.com/Brownie44l1/leaf-api/internal/service"
	"github.com/Brownie44l1/leaf-api/internal/telegram"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "leaf-api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(config.Path())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, logCloser, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	set, err := labels.ForVariant(labels.Variant(cfg.Model.Variant))
	if err != nil {
		return err
	}
	var catalog *labels.Catalog
	if cfg.Present.DiseaseInfo {
		if catalog, err = labels.DefaultCatalog(set); err != nil {
			return fmt.Errorf("disease catalog: %w", err)
		}
	}

	layout, err := preprocess.ParseLayout(cfg.Model.Layout)
	if err != nil {
		return err
	}
	interp, err := preprocess.ParseInterpolation(cfg.Preprocess.Interpolation)
	if err != nil {
		return err
	}
	prep, err := preprocess.New(preprocess.Options{
		Resolution:    cfg.InputResolution(),
		Layout:        layout,
		Interpolation: interp,
		Contrast: preprocess.Contrast{
			ClipLimit: cfg.Preprocess.ClipLimit,
			TileGrid:  cfg.Preprocess.TileGrid,
		},
	})
	if err != nil {
		return fmt.Errorf("preprocessor: %w", err)
	}

	output, err := model.ParseOutput(cfg.Model.Output)
	if err != nil {
		return err
	}

	reg := metrics.New()

	sig := model.Signature{Resolution: prep.Resolution(), Layout: layout, OutputSize: set.OutputSize()}
	source := model.SourceFromConfig(cfg.Remote, &http.Client{Timeout: cfg.Remote.Timeout.Duration})
	accessor := model.NewAccessor(model.AccessorConfig{
		Path:         cfg.Model.Path,
		Source:       source,
		Load:         model.Opener(sig, cfg.Model.RuntimeLibrary),
		FetchTimeout: cfg.Remote.Timeout.Duration,
		Logger:       logger,
		Observer:     reg,
	})
	defer func() {
		if err := accessor.Close(); err != nil {
			logger.Warn("failed to release model", "error", err)
		}
		if err := model.ShutdownRuntime(); err != nil {
			logger.Warn("failed to release onnx runtime", "error", err)
		}
	}()

	svc := service.NewDiagnosisService(accessor, prep, set, service.Options{
		Enhance:  cfg.Preprocess.Enhance,
		Output:   output,
		TopK:     cfg.Present.TopK,
		Catalog:  catalog,
		Logger:   logger,
		Observer: reg,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	if cfg.Model.Preload {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Failures are not cached; requests retry the load.
			if _, err := accessor.Get(ctx); err != nil {
				logger.Warn("model preload failed; will retry on first request", "error", err)
			}
		}()
	}

	if cfg.Telegram.Token != "" {
		bot, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			logger.Error("telegram bot disabled", "error", err)
		} else {
			tb := telegram.New(bot, svc, telegram.Options{
				MaxFileBytes: int64(cfg.Telegram.MaxFileMB) << 20,
				Client:       &http.Client{Timeout: cfg.Telegram.Timeout.Duration},
				Logger:       logger,
			})
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := telegram.Run(ctx, bot, tb, cfg.Telegram.PollTimeout); err != nil {
					logger.Error("telegram bot stopped", "error", err)
				}
			}()
		}
	}

	gin.SetMode(gin.ReleaseMode)
	h := handlers.NewHandler(svc, cfg.MaxUploadBytes(), cfg.Preprocess.Enhance, logger)
	router := handlers.NewRouter(h, handlers.RouterOptions{
		CORSOrigins:    cfg.Server.CORSOrigins,
		Metrics:        reg,
		MetricsHandler: reg.Handler(),
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			"port", cfg.Server.Port,
			"variant", set.Variant(),
			"labels", set.Len(),
			"resolution", prep.Resolution(),
			"model_path", cfg.Model.Path,
			"remote_source", cfg.HasRemoteSource(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			stop()
			wg.Wait()
			return fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	wg.Wait()
	logger.Info("server stopped")
	return nil
}
