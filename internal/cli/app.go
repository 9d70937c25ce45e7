package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ppiankov/lupa/internal/cache"
	"github.com/ppiankov/lupa/internal/federation"
	"github.com/ppiankov/lupa/internal/investigation"
	"github.com/ppiankov/lupa/internal/llm"
	"github.com/ppiankov/lupa/internal/logging"
	"github.com/ppiankov/lupa/internal/metrics"
	"github.com/ppiankov/lupa/internal/model"
	"github.com/ppiankov/lupa/internal/network"
	"github.com/ppiankov/lupa/internal/planner"
	"github.com/ppiankov/lupa/internal/query"
	"github.com/ppiankov/lupa/internal/registry"
	"github.com/ppiankov/lupa/internal/source"
	"github.com/ppiankov/lupa/internal/util"
	"github.com/ppiankov/lupa/internal/worker"
)

// app wires the components one command run needs
type app struct {
	cfg          model.Config
	logger       *log.Logger
	metrics      *metrics.Registry
	registry     *registry.Registry
	graph        *network.Graph // nil when the graph is disabled
	orchestrator *investigation.Orchestrator
}

func newLogger(cfg model.Config) *log.Logger {
	return logging.New(logging.Options{Verbose: verbose, JSON: cfg.Output.JSONLogs})
}

// newRegistry builds the capability registry with shared HTTP infrastructure
func newRegistry(cfg model.Config, logger *log.Logger) (*registry.Registry, error) {
	proxy := util.NewProxyFunc(cfg.HTTP.HTTPProxy, cfg.HTTP.HTTPSProxy, cfg.HTTP.NoProxy)
	if proxy == nil {
		proxy = util.EnvProxyFunc()
	}

	var robots *util.RobotsChecker
	if cfg.HTTP.RespectRobots {
		client := &http.Client{Timeout: 10 * time.Second, Transport: &http.Transport{Proxy: proxy}}
		robots = util.NewRobotsChecker(client, cfg.HTTP.UserAgent, 10*time.Second)
	}

	return registry.Build(cfg, registry.Options{
		HTTP: source.HTTPOptions{
			Limiter:   worker.NewLimiter(cfg.RateLimiting.RequestsPerSecond, cfg.RateLimiting.Burst),
			Robots:    robots,
			Proxy:     proxy,
			Insecure:  cfg.HTTP.InsecureTLS,
			UserAgent: cfg.HTTP.UserAgent,
			MaxBytes:  cfg.HTTP.MaxBytes,
			Logger:    logger,
		},
		Logger: logger,
	})
}

// openGraph opens the persistent graph, or returns nil when it is disabled
func openGraph(cfg model.Config, m *metrics.Registry, logger *log.Logger) (*network.Graph, error) {
	if !cfg.Graph.Enabled {
		return nil, nil
	}

	var store network.Store
	if cfg.Graph.Path == ":memory:" {
		store = network.NewMemoryStore()
	} else {
		if err := os.MkdirAll(filepath.Dir(cfg.Graph.Path), 0755); err != nil {
			return nil, fmt.Errorf("create graph directory: %w", err)
		}
		s, err := network.OpenSQLite(cfg.Graph.Path)
		if err != nil {
			return nil, err
		}
		store = s
	}

	return network.New(store, network.Options{
		Detector: cfg.Detector,
		Metrics:  m,
		Logger:   logger.WithPrefix("graph"),
	}), nil
}

func newCache(cfg model.Config) cache.Cache {
	if !cfg.Cache.Enabled {
		return nil
	}
	if cfg.Cache.Dir != "" {
		return cache.NewLayeredCache(cfg.Cache.DefaultTTL, cfg.Cache.Dir, cfg.Cache.DefaultTTL)
	}
	return cache.NewMemoryCache(cfg.Cache.DefaultTTL, 10*time.Minute)
}

// llmAPIKey reads the provider key from the environment; the core never does
func llmAPIKey(provider string) (string, error) {
	var env string
	switch provider {
	case "openai":
		env = "OPENAI_API_KEY"
	case "anthropic", "claude":
		env = "ANTHROPIC_API_KEY"
	default:
		return "", nil
	}
	key := os.Getenv(env)
	if key == "" {
		return "", fmt.Errorf("%s environment variable not set", env)
	}
	return key, nil
}

func newClassifier(cfg model.Config, logger *log.Logger) (*query.Classifier, error) {
	if !cfg.LLM.Enabled {
		return query.NewClassifier(nil, logger), nil
	}

	apiKey, err := llmAPIKey(cfg.LLM.Provider)
	if err != nil {
		return nil, err
	}
	llmCfg := llm.ConfigFromModel(cfg.LLM, apiKey)
	if cfg.LLM.Provider == "ollama" && llmCfg.BaseURL == "" {
		llmCfg.BaseURL = os.Getenv("OLLAMA_BASE_URL")
	}
	llmCfg.HTTPProxy = cfg.HTTP.HTTPProxy
	llmCfg.HTTPSProxy = cfg.HTTP.HTTPSProxy
	llmCfg.NoProxy = cfg.HTTP.NoProxy

	provider, err := llm.NewProvider(llmCfg)
	if err != nil {
		return nil, fmt.Errorf("create LLM provider: %w", err)
	}
	return query.NewClassifier(provider, logger), nil
}

func newSink(ctx context.Context, cfg model.Config) (investigation.Sink, error) {
	var sinks investigation.MultiSink
	if cfg.Output.Dir != "" {
		sinks = append(sinks, investigation.NewFileSink(cfg.Output.Dir))
	}
	if cfg.Sink.S3Bucket != "" {
		client, err := investigation.NewS3Client(ctx, cfg.Sink)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, investigation.NewS3Sink(client, cfg.Sink.S3Bucket, cfg.Sink.S3Prefix))
	}
	if len(sinks) == 0 {
		return nil, nil
	}
	return sinks, nil
}

// newApp loads the configuration and builds the full investigation stack
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg)
	m := metrics.NewRegistry()

	reg, err := newRegistry(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("build source registry: %w", err)
	}
	classifier, err := newClassifier(cfg, logger)
	if err != nil {
		return nil, err
	}
	sink, err := newSink(ctx, cfg)
	if err != nil {
		return nil, err
	}
	graph, err := openGraph(cfg, m, logger)
	if err != nil {
		return nil, err
	}

	plan := planner.New(reg, planner.Options{
		Retries: cfg.Concurrency.DefaultRetries,
		Logger:  logger,
	})
	executor := federation.New(reg, federation.Options{
		Cache:       newCache(cfg),
		DefaultTTL:  cfg.Cache.DefaultTTL,
		MaxParallel: cfg.Concurrency.CallsPerStage,
		Metrics:     m,
		Logger:      logger,
	})

	orchestrator := investigation.New(classifier, query.NewExtractor(), plan, executor, investigation.Options{
		Sink:     sink,
		Graph:    graph,
		Detector: cfg.Detector,
		Metrics:  m,
		Logger:   logger,
	})

	return &app{
		cfg:          cfg,
		logger:       logger,
		metrics:      m,
		registry:     reg,
		graph:        graph,
		orchestrator: orchestrator,
	}, nil
}

// newGraphApp opens only what the network commands need
func newGraphApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.Graph.Enabled {
		return nil, errors.New("the persistent graph is disabled (graph.enabled: false)")
	}
	logger := newLogger(cfg)
	m := metrics.NewRegistry()
	graph, err := openGraph(cfg, m, logger)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, metrics: m, graph: graph}, nil
}

// Close closes the graph and writes the metrics file when one is configured
func (a *app) Close() error {
	var errs []error
	if a.graph != nil {
		errs = append(errs, a.graph.Close())
	}
	if path := a.cfg.Output.MetricsFile; path != "" {
		if err := a.metrics.WriteToTextfile(path); err != nil {
			errs = append(errs, fmt.Errorf("write metrics: %w", err))
		}
	}
	return errors.Join(errs...)
}
