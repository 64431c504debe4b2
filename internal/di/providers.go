package di

import (
	"fmt"

	"go.uber.org/dig"

	"github.com/solarisops/assistant-go/internal/config"
	"github.com/solarisops/assistant-go/internal/database"
	"github.com/solarisops/assistant-go/internal/knowledge"
	"github.com/solarisops/assistant-go/internal/llm"
	"github.com/solarisops/assistant-go/internal/logger"
	"github.com/solarisops/assistant-go/internal/pipeline"
	"github.com/solarisops/assistant-go/internal/safety"
	"github.com/solarisops/assistant-go/internal/services"
	"github.com/solarisops/assistant-go/internal/storage"
	"github.com/solarisops/assistant-go/internal/telemetry"
)

// RegisterProviders 注册所有依赖提供者
func RegisterProviders(container *dig.Container) error {
	providers := []interface{}{
		// 配置
		func() (*config.Config, error) {
			cfg := config.GetAppConfig()
			if cfg == nil {
				return nil, fmt.Errorf("config not loaded")
			}
			return cfg, nil
		},

		// 检索侧依赖
		func(cfg *config.Config) (knowledge.Embedder, error) {
			if cfg.AI.OpenAIAPIKey == "" {
				logger.Warn("Embedding API key not configured, semantic search disabled")
				return &knowledge.NoopEmbedder{}, nil
			}
			return knowledge.NewOpenAIEmbedder(&cfg.AI)
		},
		func(cfg *config.Config) (knowledge.VectorStore, error) {
			return knowledge.NewMilvusVectorStore(&cfg.Milvus)
		},
		func(cfg *config.Config) (knowledge.LexicalSearcher, error) {
			return knowledge.NewElasticsearchSearcher(&cfg.Elasticsearch)
		},
		func() knowledge.ChunkStore {
			return knowledge.NewDBChunkStore(database.DB, database.RedisClient)
		},
		func(
			embedder knowledge.Embedder,
			vectorStore knowledge.VectorStore,
			lexical knowledge.LexicalSearcher,
			chunkStore knowledge.ChunkStore,
			cfg *config.Config,
		) *knowledge.Retriever {
			return knowledge.NewRetriever(embedder, vectorStore, lexical, chunkStore, &cfg.Pipeline)
		},
		func(r *knowledge.Retriever) pipeline.ContextRetriever { return r },

		// 遥测与审核
		func(cfg *config.Config) telemetry.Fetcher {
			return telemetry.NewHTTPFetcher(&cfg.Telemetry, cfg.Pipeline.Timeouts.Telemetry)
		},
		func(cfg *config.Config) safety.Checker {
			return safety.NewHTTPChecker(&cfg.Safety, cfg.Pipeline.Timeouts.Safety)
		},

		// 大模型主备供应商
		func(cfg *config.Config) *llm.OpenAIProvider {
			return llm.NewOpenAIProvider(&cfg.AI)
		},
		func(cfg *config.Config) *llm.DashScopeProvider {
			return llm.NewDashScopeProvider(&cfg.AI)
		},

		// 流水线各阶段
		func(cfg *config.Config) *pipeline.Normalizer {
			return pipeline.NewNormalizer(cfg.Pipeline.EquipmentAliases, cfg.Pipeline.HistoryTurns)
		},
		func(primary *llm.OpenAIProvider, fallback *llm.DashScopeProvider, cfg *config.Config) *pipeline.Reasoner {
			return pipeline.NewReasoner(primary, fallback, cfg)
		},
		func(checker safety.Checker, cfg *config.Config) *pipeline.Validator {
			return pipeline.NewValidator(checker, cfg)
		},
		func(
			normalizer *pipeline.Normalizer,
			retriever pipeline.ContextRetriever,
			fetcher telemetry.Fetcher,
			reasoner *pipeline.Reasoner,
			validator *pipeline.Validator,
			cfg *config.Config,
		) *pipeline.Pipeline {
			return pipeline.NewPipeline(normalizer, retriever, fetcher, reasoner, validator, cfg)
		},

		// 应用服务
		func(cfg *config.Config) *services.SessionStore {
			return services.NewSessionStore(database.RedisClient, cfg.Redis.SessionTTL, cfg.Pipeline.HistoryTurns)
		},
		func() *storage.ObjectStore {
			return storage.GetObjectStore()
		},
		func(p *pipeline.Pipeline, sessions *services.SessionStore, store *storage.ObjectStore) *services.ChatService {
			return services.NewChatService(p, sessions, store)
		},
	}

	for _, provider := range providers {
		if err := container.Provide(provider); err != nil {
			return err
		}
	}
	return nil
}
