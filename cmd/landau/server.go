package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/landau/api/handlers"
	"github.com/BaSui01/landau/config"
	"github.com/BaSui01/landau/conversation"
	"github.com/BaSui01/landau/internal/cache"
	"github.com/BaSui01/landau/internal/database"
	"github.com/BaSui01/landau/internal/metrics"
	"github.com/BaSui01/landau/internal/server"
	"github.com/BaSui01/landau/internal/telemetry"
	"github.com/BaSui01/landau/llm"
	"github.com/BaSui01/landau/llm/embedding"
	llmfactory "github.com/BaSui01/landau/llm/factory"
	"github.com/BaSui01/landau/llm/rerank"
	"github.com/BaSui01/landau/llm/tokenizer"
	"github.com/BaSui01/landau/llm/tools"
	"github.com/BaSui01/landau/rag"
	"github.com/BaSui01/landau/reference"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 Landau 的主服务器，持有全部组件并负责按序关闭
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	telemetry *telemetry.Providers
	registry  *prometheus.Registry
	collector *metrics.Collector

	provider llm.Provider
	store    rag.PassageStore
	pool     *database.PoolManager
	cache    *cache.Manager
	searcher rag.Searcher
	library  *rag.Library

	loop     *conversation.Loop
	sessions *conversation.Registry
	limiter  *handlers.SessionLimiter
	health   *handlers.HealthHandler

	httpManager    *server.Manager
	metricsManager *server.Manager

	cancel context.CancelFunc
}

// MetricsHandler 暴露本 Server 的指标
func (s *Server) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
}

// NewServer 依次构建全部组件；任何一步失败都会释放已创建的资源
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	s := &Server{cfg: cfg, logger: logger}

	tp, err := telemetry.Init(cfg.Telemetry, Version, logger)
	if err != nil {
		// 遥测不可用不影响服务
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	s.telemetry = tp
	// 每个 Server 使用独立的 Registry
	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.collector = metrics.NewCollector("landau", s.registry, logger)
	s.health = handlers.NewHealthHandler(logger)

	steps := []struct {
		name string
		fn   func() error
	}{
		{"llm provider", s.initProvider},
		{"passage store", s.initStore},
		{"retrieval pipeline", s.initPipeline},
		{"conversation loop", s.initLoop},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			s.Close()
			return nil, fmt.Errorf("init %s: %w", step.name, err)
		}
	}
	return s, nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

func (s *Server) initProvider() error {
	c := s.cfg.LLM
	pc := llmfactory.ProviderConfig{
		APIKey:  c.APIKey,
		BaseURL: c.BaseURL,
		Model:   c.Model,
		Timeout: c.Timeout,
		Extra:   map[string]any{},
	}
	if c.APIVersion != "" {
		pc.Extra["api_version"] = c.APIVersion
	}
	if c.MaxTokens > 0 {
		pc.Extra["max_tokens"] = c.MaxTokens
	}

	provider, err := llmfactory.NewProviderFromConfig(c.Provider, pc, s.logger)
	if err != nil {
		return err
	}
	s.provider = provider
	s.logger.Info("LLM provider initialized",
		zap.String("provider", provider.Name()),
		zap.String("model", c.Model))
	return nil
}

func (s *Server) newEmbedder() *embedding.OpenAIProvider {
	c := s.cfg.Embedding
	ec := embedding.DefaultOpenAIConfig()
	ec.APIKey = c.APIKey
	if c.BaseURL != "" {
		ec.BaseURL = c.BaseURL
	}
	if c.Model != "" {
		ec.Model = c.Model
	}
	if c.Dimensions > 0 {
		ec.Dimensions = c.Dimensions
	}
	if c.Timeout > 0 {
		ec.Timeout = c.Timeout
	}
	ec.APIVersion = c.APIVersion
	return embedding.NewOpenAIProvider(ec)
}

func (s *Server) initStore() error {
	c := s.cfg.Store
	embedder := s.newEmbedder()

	switch strings.ToLower(c.Type) {
	case "", "memory":
		s.store = rag.NewMemoryStore(embedder, s.logger)
		s.logger.Warn("using in-memory passage store, nothing is persisted")

	case "chroma":
		store, err := rag.NewChromaStore(rag.ChromaConfig{
			BaseURL:            c.ChromaURL,
			Timeout:            c.Timeout,
			EmbeddingCacheSize: c.EmbeddingCacheSize,
		}, embedder, s.logger)
		if err != nil {
			return err
		}
		s.store = store
		s.health.RegisterCheck(handlers.NewPingCheck("chroma", store.Ping))

	case "postgres", "sqlite":
		db, err := database.Open(c.Type, c.DSN, s.logger)
		if err != nil {
			return err
		}
		poolCfg := database.DefaultPoolConfig()
		if c.MaxOpenConns > 0 {
			poolCfg.MaxOpenConns = c.MaxOpenConns
		}
		if c.MaxIdleConns > 0 {
			poolCfg.MaxIdleConns = c.MaxIdleConns
		}
		if poolCfg.MaxIdleConns > poolCfg.MaxOpenConns {
			poolCfg.MaxIdleConns = poolCfg.MaxOpenConns
		}
		if c.ConnMaxLifetime > 0 {
			poolCfg.ConnMaxLifetime = c.ConnMaxLifetime
		}
		pool, err := database.NewPoolManager(c.Type, db, poolCfg, s.collector, s.logger)
		if err != nil {
			return err
		}
		s.pool = pool

		store := rag.NewSQLStore(pool.DB(), embedder, s.logger)
		if c.AutoMigrate {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := store.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}
		s.store = store
		s.health.RegisterCheck(handlers.NewPingCheck("database", pool.Ping))

	default:
		return fmt.Errorf("unsupported store type %q", c.Type)
	}

	s.logger.Info("passage store initialized", zap.String("type", c.Type))
	return nil
}

func (s *Server) initPipeline() error {
	r := s.cfg.Retrieval
	opts := []rag.PipelineOption{
		rag.WithTokenizer(tokenizer.Default(s.logger)),
		rag.WithRecorder(s.collector),
		rag.WithLogger(s.logger),
	}
	if len(r.LongFormMarkers) > 0 {
		opts = append(opts, rag.WithLongFormMarkers(r.LongFormMarkers...))
	}
	if r.ExtendRadius > 0 {
		opts = append(opts, rag.WithExtendRadius(r.ExtendRadius))
	}

	if r.UseRerank && s.cfg.Rerank.APIKey != "" {
		rc := rerank.DefaultCohereConfig()
		rc.APIKey = s.cfg.Rerank.APIKey
		if s.cfg.Rerank.BaseURL != "" {
			rc.BaseURL = s.cfg.Rerank.BaseURL
		}
		if s.cfg.Rerank.Model != "" {
			rc.Model = s.cfg.Rerank.Model
		}
		if s.cfg.Rerank.Timeout > 0 {
			rc.Timeout = s.cfg.Rerank.Timeout
		}
		opts = append(opts, rag.WithReranker(rerank.NewCohereProvider(rc)))
	} else if r.UseRerank {
		s.logger.Warn("rerank enabled but no rerank api key configured, ranking by distance")
	}

	if r.NumMultiquery >= 2 {
		opts = append(opts, rag.WithQueryExpander(rag.NewLLMQueryExpander(s.provider, s.cfg.LLM.Model, s.logger)))
	}

	pipeline := rag.NewPipeline(s.store, opts...)
	s.searcher = pipeline
	s.library = rag.NewLibrary(s.store)

	if s.cfg.Cache.Enabled {
		cc := cache.DefaultConfig()
		cc.Addr = s.cfg.Cache.Addr
		cc.Password = s.cfg.Cache.Password
		cc.DB = s.cfg.Cache.DB
		if s.cfg.Cache.TTL > 0 {
			cc.DefaultTTL = s.cfg.Cache.TTL
		}
		manager, err := cache.NewManager(cc, s.logger)
		if err != nil {
			s.logger.Warn("retrieval cache unavailable, continuing without it", zap.Error(err))
		} else {
			s.cache = manager
			s.searcher = rag.NewCachedSearcher(pipeline, manager, cc.DefaultTTL, s.collector, s.logger)
			s.health.RegisterCheck(handlers.NewPingCheck("cache", manager.Ping))
		}
	}
	return nil
}

func (s *Server) defaults() rag.RetrievalDefaults {
	r := s.cfg.Retrieval
	return rag.RetrievalDefaults{
		CollectionName:       r.CollectionName,
		TopK:                 r.TopK,
		TopN:                 r.TopN,
		NumMultiquery:        r.NumMultiquery,
		RerankScoreThreshold: r.RerankScoreThreshold,
		UseRerank:            r.UseRerank,
		ExtendResults:        r.ExtendResults,
	}
}

func (s *Server) catalog() *conversation.Catalog {
	if len(s.cfg.Documents) == 0 {
		return conversation.DefaultCatalog()
	}
	docs := make([]conversation.Document, 0, len(s.cfg.Documents))
	for _, d := range s.cfg.Documents {
		docs = append(docs, conversation.Document{
			ID:          d.ID,
			Name:        d.Name,
			Description: d.Description,
			Default:     d.Default,
		})
	}
	return conversation.NewCatalog(docs...)
}

func (s *Server) initLoop() error {
	registry := tools.NewDefaultRegistry(s.logger)

	lecture := conversation.NewLectureTools(s.searcher, s.library, s.defaults(), s.logger)
	if err := lecture.Register(registry); err != nil {
		return err
	}

	catalog := s.catalog()
	loopOpts := []conversation.LoopOption{
		conversation.WithCatalog(catalog),
		conversation.WithRecorder(s.collector),
		conversation.WithExecutor(tools.NewDefaultExecutor(registry, s.logger).WithObserver(s.collector)),
		conversation.WithLogger(s.logger),
	}
	if s.cfg.App.ExamTrainer {
		exam := conversation.NewExamTrainer(lecture, s.logger)
		if err := exam.Register(registry); err != nil {
			return err
		}
		loopOpts = append(loopOpts, conversation.WithExamTrainer(exam))
	}

	lc := conversation.DefaultConfig()
	lc.Model = s.cfg.LLM.Model
	lc.Temperature = float32(s.cfg.LLM.Temperature)
	lc.TopP = float32(s.cfg.LLM.TopP)
	lc.MaxTokens = s.cfg.LLM.MaxTokens
	lc.MaxToolRecursion = s.cfg.App.MaxToolRecursion
	lc.MaxMessages = s.cfg.App.MaxMessages
	if s.cfg.App.MaxParallelToolCalls > 0 {
		lc.MaxParallelToolCalls = s.cfg.App.MaxParallelToolCalls
	}

	loop, err := conversation.NewLoop(s.provider, registry, lc, loopOpts...)
	if err != nil {
		return err
	}
	s.loop = loop

	ttl := s.cfg.Server.SessionTTL
	sessions, err := conversation.NewRegistry(ttl, ttl/2, catalog, s.logger).
		WithDefaultLanguage(reference.Language(s.cfg.App.Language))
	if err != nil {
		return err
	}
	s.sessions = sessions
	s.limiter = handlers.NewSessionLimiter(s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst)

	s.logger.Info("conversation loop initialized",
		zap.Int("tools", len(registry.List())),
		zap.Int("documents", len(catalog.Documents())),
		zap.Bool("exam_trainer", s.cfg.App.ExamTrainer))
	return nil
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// Handler 构建带中间件链的 API handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.health.HandleHealth)
	mux.HandleFunc("GET /healthz", s.health.HandleHealth)
	mux.HandleFunc("GET /ready", s.health.HandleReady)
	mux.HandleFunc("GET /readyz", s.health.HandleReady)
	mux.HandleFunc("GET /version", s.health.HandleVersion(Version, BuildTime, GitCommit))

	handlers.NewRetrievalHandler(s.searcher, s.library, s.logger).Register(mux)
	handlers.NewChatHandler(s.loop, s.sessions, s.logger,
		handlers.WithSessionLimiter(s.limiter),
		handlers.WithOriginPatterns(s.cfg.Server.AllowedOrigins...),
	).Register(mux)

	return Chain(mux,
		Recovery(s.logger),
		RequestID(),
		OTelTracing(),
		MetricsMiddleware(s.collector),
		SecurityHeaders(),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.AllowedOrigins),
	)
}

// Start 启动 API 与 Metrics 服务器（非阻塞）
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.limiter.Run(ctx, s.cfg.Server.SessionTTL)

	sc := s.cfg.Server
	s.httpManager = server.NewManager("api", s.Handler(), server.Config{
		Addr:         fmt.Sprintf(":%d", sc.HTTPPort),
		ReadTimeout:  sc.ReadTimeout,
		// WebSocket 连接由 handler 自行控制写超时
		WriteTimeout:    0,
		IdleTimeout:     2 * sc.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: sc.ShutdownTimeout,
	}, s.logger)
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", s.MetricsHandler())
	s.metricsManager = server.NewManager("metrics", metricsMux, server.Config{
		Addr:            fmt.Sprintf(":%d", sc.MetricsPort),
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     time.Minute,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: sc.ShutdownTimeout,
	}, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("All servers started",
		zap.String("api_addr", s.httpManager.Addr()),
		zap.String("metrics_addr", s.metricsManager.Addr()))
	return nil
}

// WaitForShutdown 阻塞直到收到退出信号或服务器出错，然后关闭全部资源
func (s *Server) WaitForShutdown() error {
	err := server.WaitForShutdown(context.Background(), s.logger, s.httpManager, s.metricsManager)
	s.Close()
	return err
}

// Close 释放后台资源，可重复调用
func (s *Server) Close() {
	if s.cancel != nil {
		s.cancel()
	}
	var errs []error
	if s.cache != nil {
		errs = append(errs, s.cache.Close())
		s.cache = nil
	}
	if s.pool != nil {
		errs = append(errs, s.pool.Close())
		s.pool = nil
	}
	if s.telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, s.telemetry.Shutdown(ctx))
		cancel()
		s.telemetry = nil
	}
	if err := errors.Join(errs...); err != nil {
		s.logger.Warn("error while releasing resources", zap.Error(err))
	}
}
