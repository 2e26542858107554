package bootstrap

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"hybridrag/internal/ai"
	"hybridrag/internal/app"
	"hybridrag/internal/cache"
	"hybridrag/internal/config"
	"hybridrag/internal/engine"
	"hybridrag/internal/kg"
	"hybridrag/internal/metrics"
	"hybridrag/internal/model"
	mysqlClient "hybridrag/internal/platform/mysql"
	rabbitmqClient "hybridrag/internal/platform/rabbitmq"
	redisClient "hybridrag/internal/platform/redis"
	sqliteClient "hybridrag/internal/platform/sqlite"
	"hybridrag/internal/repository"
	"hybridrag/internal/retrieval"
	"hybridrag/internal/watcher"
	"hybridrag/internal/worker"
)

// App wires configuration, infrastructure and services. Redis, RabbitMQ and
// the inbox watcher are optional and nil when not configured.
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *metrics.Collector

	DB            *gorm.DB
	Redis         *redis.Client
	MQConn        *amqp.Connection
	Publisher     *rabbitmqClient.MessagePublisher
	MessageWorker *worker.MessagePersistWorker
	Watcher       *watcher.Watcher

	Engine    *engine.Engine
	Auth      *app.AuthService
	Chat      *app.ChatService
	Documents *app.DocumentService
	Answers   *app.AnswerService

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	logger, err := NewLogger(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("build logger failed: %w", err)
	}

	a := &App{
		Config:    cfg,
		Logger:    logger,
		Metrics:   metrics.NewCollector("hybridrag"),
		StartedAt: time.Now(),
	}
	if err := a.init(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	a.DB = db
	if err := db.AutoMigrate(model.AllModels()...); err != nil {
		return fmt.Errorf("auto migrate tables failed: %w", err)
	}

	var (
		historyCache app.HistoryCache
		promptStore  app.PromptStore
	)
	retryTTL := time.Duration(cfg.Redis.RetryTTLSeconds) * time.Second
	if cfg.Redis.Addr != "" {
		redisCli, err := redisClient.New(ctx, redisClient.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		a.Redis = redisCli
		historyCache = cache.NewHistoryCache(
			redisCli,
			cfg.Chat.HistoryExchanges*2,
			time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second,
			time.Duration(cfg.Redis.HistoryDirtyTTLSeconds)*time.Second,
		)
		promptStore = cache.NewPromptCache(redisCli, retryTTL)
	} else {
		a.Logger.Info("redis disabled, history is read from the database and retries are kept in memory")
		promptStore = cache.NewMemoryPromptCache(retryTTL)
	}

	messageRepo := repository.NewMessageRepository(db)
	var publisher app.AsyncMessagePublisher
	if cfg.RabbitMQ.URL != "" {
		mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
		if err != nil {
			return err
		}
		a.MQConn = mqConn
		a.MessageWorker = worker.NewMessagePersistWorker(mqConn, messageRepo, cfg.RabbitMQ.MessagePersistQueue, a.Logger)
		if err := a.MessageWorker.Start(ctx); err != nil {
			return fmt.Errorf("start message worker failed: %w", err)
		}
		a.Publisher = rabbitmqClient.NewMessagePublisher(mqConn, cfg.RabbitMQ.MessagePersistQueue)
		publisher = a.Publisher
	} else {
		a.Logger.Info("rabbitmq disabled, chat turns are persisted synchronously")
		publisher = worker.NewInlinePublisher(messageRepo)
	}

	opts, err := engineOptions(cfg)
	if err != nil {
		return err
	}
	a.Engine, err = engine.New(opts, a.Logger, a.Metrics)
	if err != nil {
		return fmt.Errorf("create engine failed: %w", err)
	}

	generator, err := ai.NewGenerator(ai.GeneratorConfig{
		Provider:    cfg.LLM.Provider,
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		TopP:        cfg.LLM.TopP,
		NumCtx:      cfg.LLM.NumCtx,
		Timeout:     time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("create generator failed: %w", err)
	}

	a.Auth = app.NewAuthService(
		repository.NewUserRepository(db),
		cfg.Auth.JWTSecret,
		time.Duration(cfg.Auth.JWTExpireMinute)*time.Minute,
		a.Logger,
	)
	a.Chat = app.NewChatService(
		repository.NewSessionRepository(db),
		messageRepo,
		publisher,
		historyCache,
		cfg.Chat.HistoryExchanges,
		a.Logger,
	)
	a.Documents = app.NewDocumentService(
		repository.NewRAGDocumentRepository(db),
		repository.NewRAGPageRepository(db),
		repository.NewKGTripleRepository(db),
		a.Engine,
		app.PDFExtractor{},
		int64(cfg.Ingest.MaxUploadMB)<<20,
		a.Metrics,
		a.Logger,
	)
	a.Answers = app.NewAnswerService(a.Engine, a.Chat, generator, promptStore, a.Metrics, a.Logger)

	stats, err := a.Documents.Restore(ctx)
	if err != nil {
		return fmt.Errorf("restore index failed: %w", err)
	}
	a.Logger.Info("index ready", zap.Int("chunks", stats.Chunks), zap.Int("kg_triples", stats.KGTriples))

	if cfg.Ingest.WatchDir != "" {
		a.Watcher = watcher.New(cfg.Ingest.WatchDir, a.Documents, 0, a.Logger)
		if err := a.Watcher.Start(ctx); err != nil {
			return fmt.Errorf("start inbox watcher failed: %w", err)
		}
	}
	return nil
}

func openDatabase(ctx context.Context, cfg *config.Config) (*gorm.DB, error) {
	switch cfg.Database.Driver {
	case "sqlite":
		return sqliteClient.New(ctx, cfg.Database.SQLitePath)
	default:
		return mysqlClient.New(ctx, mysqlClient.Options{DSN: cfg.MySQLDSN()})
	}
}

func engineOptions(cfg *config.Config) (engine.Options, error) {
	gazetteer, err := cfg.KGGazetteer()
	if err != nil {
		return engine.Options{}, err
	}
	rules, err := cfg.KGRules()
	if err != nil {
		return engine.Options{}, err
	}
	r := cfg.Retrieval
	return engine.Options{
		Chunk:      retrieval.ChunkConfig{Size: r.ChunkSize, Overlap: r.ChunkOverlap},
		BM25:       retrieval.BM25Params{K1: r.BM25K1, B: r.BM25B},
		TopK:       r.TopK,
		Weights:    retrieval.FusionWeights{Sparse: r.SparseWeight, Dense: r.DenseWeight},
		IndexDir:   r.IndexDir,
		Recognizer: kg.NewRecognizer(gazetteer, rules),
		Fallback:   retrieval.NewFallbackMatcher(r.FallbackTriggers, r.FallbackCallSyntax),
	}, nil
}

// NewLogger builds a JSON production logger for prod and a console
// development logger otherwise.
func NewLogger(env string) (*zap.Logger, error) {
	if env == "prod" || env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func (a *App) Close() error {
	var closeErr error
	if a.Watcher != nil {
		if err := a.Watcher.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MessageWorker != nil {
		a.MessageWorker.Close()
	}
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.DB != nil {
		sqlDB, err := a.DB.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
	return closeErr
}
