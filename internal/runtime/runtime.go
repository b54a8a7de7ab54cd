package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hirewire/interview-core/internal/bus"
	"github.com/hirewire/interview-core/internal/config"
	"github.com/hirewire/interview-core/internal/evaluate"
	"github.com/hirewire/interview-core/internal/natsserver"
	"github.com/hirewire/interview-core/internal/pipeline"
	"github.com/hirewire/interview-core/internal/questions"
	"github.com/hirewire/interview-core/internal/store"
	"github.com/hirewire/interview-core/internal/transcribe"
)

// Runtime wires the interview pipeline together and serves the HTTP API
// until the context is canceled.
type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	coordinator *pipeline.Coordinator
	events      *bus.Client
	httpServer  *http.Server
	telemetry   *telemetry
	ready       atomic.Bool
	wg          sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tel, err := initTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.telemetry = tel

	var embedded *natsserver.EmbeddedServer
	if r.cfg.Bus.Enabled {
		busCfg := r.cfg.Bus
		if busCfg.Embedded {
			embedded, err = natsserver.Start(busCfg, r.logger)
			if err != nil {
				return fmt.Errorf("failed to start embedded NATS server: %w", err)
			}
			busCfg.Servers = []string{fmt.Sprintf("nats://127.0.0.1:%d", busCfg.Port)}
		}
		r.events, err = bus.Connect(ctx, busCfg, r.logger)
		if err != nil {
			embedded.Shutdown()
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
	}

	st, err := store.Open(ctx, r.cfg.Store, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}

	adapter, err := transcribe.NewAdapter(r.cfg.Transcription, r.logger)
	if err != nil {
		return fmt.Errorf("failed to build transcription adapter: %w", err)
	}

	completer, err := evaluate.NewCompleter(r.cfg.Evaluation)
	if err != nil {
		return fmt.Errorf("failed to build evaluation backend: %w", err)
	}
	engine := evaluate.NewEngine(r.cfg.Evaluation, completer, r.logger)

	generator, err := questions.NewGenerator(r.cfg.Questions, completer)
	if err != nil {
		return fmt.Errorf("failed to build question generator: %w", err)
	}

	r.coordinator, err = pipeline.New(r.cfg, st, adapter, engine, generator, r.events, r.logger)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r.routes(tel.metricsHandler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("store_mode", r.cfg.Store.Mode),
		slog.Int("transcription_providers", len(r.cfg.Transcription.Providers)),
		slog.String("evaluation_mode", r.cfg.Evaluation.Mode))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	r.coordinator.Close()
	r.events.Close()
	embedded.Shutdown()
	if err := st.Close(); err != nil {
		r.logger.Error("store close error", slog.String("error", err.Error()))
	}

	if r.telemetry != nil {
		if err := r.telemetry.shutdown(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !r.ready.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	if r.cfg.Bus.Enabled && !r.events.Healthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("bus disconnected"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
