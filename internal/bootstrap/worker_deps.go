package bootstrap

import (
	"context"
	"fmt"
	"time"

	"sponsor_worker/adapter/out/llm"
	"sponsor_worker/adapter/out/mongodb"
	"sponsor_worker/adapter/out/persistence"
	"sponsor_worker/adapter/out/provider"
	"sponsor_worker/config"
	"sponsor_worker/core/port/out"
	"sponsor_worker/core/service/identity"
	"sponsor_worker/core/service/keyword"
	"sponsor_worker/core/service/participant"
	"sponsor_worker/core/service/pipeline"
	"sponsor_worker/core/service/priority"
	"sponsor_worker/infra/database"
	"sponsor_worker/pkg/cache"
	"sponsor_worker/pkg/logger"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
)

// Dependencies holds every wired collaborator. Optional backends (Redis,
// MongoDB, Gmail, LLM) are nil when not configured.
type Dependencies struct {
	Config *config.Config

	SQLDB   *sqlx.DB
	Redis   *redis.Client
	MongoDB *mongo.Client

	// Store is the SQL adapter, or an in-memory store for dry runs without
	// a database.
	Store   out.ThreadStore
	Archive *mongodb.MessageBodyArchive
	Reports *mongodb.RunReportAdapter
	Cache   *cache.RedisCache
	Lock    *cache.RedisLock

	Gmail     *provider.GmailAdapter
	LLMClient *llm.Client
	Extractor *llm.SponsorExtractor

	Pipeline *pipeline.Service
}

// NewDependencies connects the configured backends and builds the pipeline.
// The returned cleanup closes every opened connection.
func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	log := logger.Component("bootstrap")
	base := logger.Default().Zerolog()
	deps := &Dependencies{Config: cfg}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	// PostgreSQL
	if cfg.DatabaseURL != "" {
		db, err := database.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		closers = append(closers, func() { db.Close() })
		deps.SQLDB = db
		deps.Store = persistence.NewSponsorThreadAdapter(db)
		log.Info().Msg("postgres connected")
	} else {
		deps.Store = persistence.NewMemoryStore()
		log.Warn().Msg("DATABASE_URL not set, using in-memory store")
	}

	// Redis (선택) - 실행 락 및 API 캐시
	if cfg.RedisURL != "" {
		rdb, err := database.NewRedis(cfg.RedisURL)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, running without run lock and cache")
		} else {
			closers = append(closers, func() { rdb.Close() })
			deps.Redis = rdb
			deps.Cache = cache.NewRedisCache(rdb, "sponsor:")
			deps.Lock = cache.NewRedisLock(rdb, "sponsor:lock:")
			log.Info().Msg("redis connected")
		}
	}

	// MongoDB (선택) - 본문 아카이브 및 실행 기록
	if cfg.MongoDBURL != "" {
		client, err := mongodb.NewClient(cfg.MongoDBURL)
		if err != nil {
			log.Warn().Err(err).Msg("mongodb unavailable, running without body archive and run reports")
		} else {
			closers = append(closers, func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = client.Disconnect(ctx)
			})
			db := client.Database(cfg.MongoDBName)
			deps.MongoDB = client
			deps.Archive = mongodb.NewMessageBodyArchive(db)
			deps.Reports = mongodb.NewRunReportAdapter(db)
			log.Info().Str("database", cfg.MongoDBName).Msg("mongodb connected")
		}
	}

	if cfg.GoogleRefreshToken != "" {
		deps.Gmail = provider.NewGmailAdapter(&provider.GmailConfig{
			ClientID:       cfg.GoogleClientID,
			ClientSecret:   cfg.GoogleClientSecret,
			RefreshToken:   cfg.GoogleRefreshToken,
			MaxConcurrency: cfg.GmailMaxConcurrency,
		}, base)
	}

	if cfg.OpenAIAPIKey != "" {
		deps.LLMClient = llm.NewClientWithConfig(llm.ClientConfig{
			APIKey:      cfg.OpenAIAPIKey,
			BaseURL:     cfg.LLMBaseURL,
			Model:       cfg.LLMModel,
			MaxTokens:   cfg.LLMMaxTokens,
			Temperature: cfg.LLMTemperature,
			Timeout:     time.Duration(cfg.LLMTimeoutSec) * time.Second,
		}, base)
		deps.Extractor = llm.NewSponsorExtractor(deps.LLMClient, base)
	}

	deps.Pipeline = newPipeline(cfg, deps, base)
	return deps, cleanup, nil
}

// newPipeline wires the pipeline service. Nil adapters stay out of the
// interfaces so the service sees them as absent.
func newPipeline(cfg *config.Config, deps *Dependencies, log zerolog.Logger) *pipeline.Service {
	pd := pipeline.Deps{
		Store:      deps.Store,
		Filter:     keyword.NewFilter(cfg.Vocabulary),
		Calculator: priority.NewCalculator(cfg.Priority, time.Now),
	}

	var source out.MailSource
	if deps.Gmail != nil {
		source = deps.Gmail
		pd.Source = source
	}
	if deps.Extractor != nil {
		pd.Extractor = deps.Extractor
	}
	if deps.Archive != nil {
		pd.Archive = deps.Archive
	}
	if deps.Reports != nil {
		pd.Reporter = deps.Reports
	}
	if deps.Lock != nil {
		pd.Lock = deps.Lock
	}

	normalizer := participant.NewNormalizer(participant.Owner{
		Email: cfg.OwnerEmail,
		Name:  cfg.OwnerName,
	})
	pd.Resolver = identity.NewResolver(source, normalizer, identity.ResolverConfig{
		AccountIndex: cfg.GmailAccountIndex,
	}, logger.Component("resolver"))
	pd.Normalizer = normalizer

	return pipeline.NewService(pd, pipeline.Config{
		Keywords:     cfg.Vocabulary.Keywords,
		StartDate:    cfg.CollectionStartDate,
		MaxResults:   cfg.MaxResults,
		ProcessLimit: cfg.ProcessLimit,
		Workers:      cfg.ProcessWorkers,
		LockTTL:      cfg.RunLockTTL,
	}, log)
}
