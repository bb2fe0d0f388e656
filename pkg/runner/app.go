package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/loomengine/loom/flow"
	"github.com/loomengine/loom/inspect"
	"github.com/loomengine/loom/internal/configsvc"
	"github.com/loomengine/loom/metatype/composed"
	"github.com/loomengine/loom/nodes"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/dig"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

// Config configures one runner process.
type Config struct {
	// FlowConfig is the path of the flow definition file.
	FlowConfig string `json:"flowConfig"`

	// MetricsAddr serves Prometheus metrics when non-empty.
	MetricsAddr string `json:"metricsAddr"`

	// Inspect installs the logging inspector.
	Inspect bool `json:"inspect"`

	Debug bool `json:"debug"`
}

// App wires the runner's services together: logging, config watching, the
// node type registry, inspectors, metrics and the flow service itself.
type App struct {
	config    Config
	log       *zap.Logger
	configSvc *configsvc.Service
	registry  *nodes.NodeRegistry
	service   *Service
	metrics   *prometheus.Registry
	stream    *inspect.StreamInspector
}

var registerMetatypes = sync.OnceValue(composed.Register)

// RegisterMetatypes installs the builtin metatypes into the process-wide
// registry. Safe to call more than once.
func RegisterMetatypes() error {
	return registerMetatypes()
}

// NewApp assembles a runner from config.
func NewApp(config Config) (*App, error) {
	if err := registerMetatypes(); err != nil {
		return nil, fmt.Errorf("register metatypes: %w", err)
	}

	c := dig.New()
	provides := []any{
		func() Config { return config },
		newLogger,
		func(log *zap.Logger) *configsvc.Service { return configsvc.New(log.Named("config")) },
		func() *nodes.NodeRegistry { return nodes.NewRegistry() },
		prometheus.NewRegistry,
		func(cfg Config, log *zap.Logger, svc *configsvc.Service, reg *nodes.NodeRegistry) *Service {
			return New(log.Named("flow"), svc, cfg.FlowConfig, reg)
		},
	}
	for _, p := range provides {
		if err := c.Provide(p); err != nil {
			return nil, fmt.Errorf("assemble runner: %w", err)
		}
	}

	var app *App
	err := c.Invoke(func(log *zap.Logger, cfgSvc *configsvc.Service, reg *nodes.NodeRegistry, svc *Service, metrics *prometheus.Registry) {
		app = &App{
			config:    config,
			log:       log,
			configSvc: cfgSvc,
			registry:  reg,
			service:   svc,
			metrics:   metrics,
		}
	})
	if err != nil {
		return nil, fmt.Errorf("assemble runner: %w", err)
	}

	flow.SetLogger(app.log)
	nodes.SetLogger(app.log)

	observers := inspect.Multi{inspect.NewMetricsInspector(app.metrics)}
	if config.Inspect {
		observers = append(observers, inspect.NewLogInspector(app.log))
	}
	if config.MetricsAddr != "" {
		app.stream = inspect.NewStreamInspector()
		observers = append(observers, app.stream)
	}
	flow.SetInspector(observers)

	return app, nil
}

func newLogger(cfg Config) (*zap.Logger, error) {
	loggerConfig := zap.NewProductionConfig()
	if cfg.Debug {
		loggerConfig = zap.NewDevelopmentConfig()
		loggerConfig.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000000000")
		loggerConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	logger, err := loggerConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return logger, nil
}

// Registry exposes the node type registry so embedders can add their own
// types before Run.
func (a *App) Registry() *nodes.NodeRegistry {
	return a.registry
}

// Run starts every service and blocks until the context is cancelled or one
// of them fails.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return a.configSvc.Start(groupCtx)
	})
	if a.config.MetricsAddr != "" {
		group.Go(func() error {
			return a.serveMetrics(groupCtx)
		})
	}
	group.Go(func() error {
		defer cancel()
		return a.service.Start(groupCtx)
	})

	if err := group.Wait(); err != nil {
		return fmt.Errorf("runner failed: %w", err)
	}
	return nil
}

func (a *App) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.metrics, promhttp.HandlerOpts{}))
	mux.HandleFunc("/events", a.serveEvents)
	server := &http.Server{Addr: a.config.MetricsAddr, Handler: mux}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	a.log.Info("metrics listening", zap.String("addr", a.config.MetricsAddr))
	err := server.ListenAndServe()
	<-done
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// serveEvents streams runtime events as server-sent events until the client
// goes away.
func (a *App) serveEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events := a.stream.Subscribe(r.Context())
	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-events:
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, payload)
			flusher.Flush()
		}
	}
}
