package bootstrap

import (
	"log"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/solarisops/assistant-go/internal/config"
	"github.com/solarisops/assistant-go/internal/database"
	"github.com/solarisops/assistant-go/internal/di"
	"github.com/solarisops/assistant-go/internal/kafka"
	"github.com/solarisops/assistant-go/internal/knowledge"
	"github.com/solarisops/assistant-go/internal/logger"
	"github.com/solarisops/assistant-go/internal/services"
	"github.com/solarisops/assistant-go/internal/storage"
)

// App encapsulates lifecycle resources that need to be cleaned up on shutdown.
type App struct {
	cleanupTasks []func() error
	chatService  *services.ChatService
	healthProbes map[string]func() bool
}

// ChatService returns the fully wired chat service.
func (a *App) ChatService() *services.ChatService {
	return a.chatService
}

// HealthProbes 返回各检索组件的就绪探针
func (a *App) HealthProbes() map[string]func() bool {
	return a.healthProbes
}

// Global app instance for controllers to access
var globalApp *App

// GetApp returns the global app instance
func GetApp() *App {
	return globalApp
}

// SetGlobalApp sets the global app instance
func SetGlobalApp(app *App) {
	globalApp = app
}

// Init bootstraps configuration, logger, database connections and other shared
// infrastructure components required by the Beego application.
func Init() (*App, error) {
	// Load environment variables from .env if present (non-fatal if missing).
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	// Initialize structured logger.
	if err := logger.InitLogger(); err != nil {
		return nil, err
	}

	// Load dynamic configuration.
	if err := config.LoadConfig(); err != nil {
		return nil, err
	}

	app := &App{}

	// Initialize database.
	if _, err := database.InitDB(); err != nil {
		return nil, err
	}
	app.cleanupTasks = append(app.cleanupTasks, func() error {
		return database.CloseDB()
	})

	// Initialize Redis (optional). Failure shouldn't block the app.
	if _, err := database.InitRedis(); err != nil {
		logger.Warn("Failed to initialize Redis, sessions and chunk cache disabled", zap.Error(err))
	} else {
		app.cleanupTasks = append(app.cleanupTasks, func() error {
			return database.CloseRedis()
		})
	}

	// Initialize object storage (optional). Failure shouldn't block the app.
	if _, err := storage.InitObjectStore(); err != nil {
		logger.Warn("Failed to initialize object storage, citations will not carry links", zap.Error(err))
	}

	// Initialize Kafka producer (optional). Failure shouldn't block the app.
	if config.AppConfig.Kafka.Enabled {
		if err := kafka.InitProducer(config.AppConfig.Kafka.Brokers, config.AppConfig.Kafka.Topic); err != nil {
			logger.Warn("Failed to initialize Kafka producer, answer audit disabled", zap.Error(err))
		} else {
			app.cleanupTasks = append(app.cleanupTasks, func() error {
				producer := kafka.GetProducer()
				if producer != nil {
					return producer.Close()
				}
				return nil
			})
		}
	}

	// 通过依赖注入容器装配问答流水线和服务
	container, err := di.BuildContainer()
	if err != nil {
		return nil, err
	}
	if err := container.Invoke(func(
		svc *services.ChatService,
		embedder knowledge.Embedder,
		vectorStore knowledge.VectorStore,
		lexical knowledge.LexicalSearcher,
	) {
		app.chatService = svc
		app.healthProbes = map[string]func() bool{
			"embedder":       embedder.Ready,
			"vector_store":   vectorStore.Ready,
			"lexical_search": lexical.Ready,
		}
	}); err != nil {
		return nil, err
	}

	logger.Info("✅ Chat pipeline assembled successfully")

	SetGlobalApp(app)
	return app, nil
}

// Shutdown flushes/logs and closes resources gracefully.
func (a *App) Shutdown() {
	// Execute cleanup tasks in reverse order (best effort).
	for i := len(a.cleanupTasks) - 1; i >= 0; i-- {
		if err := a.cleanupTasks[i](); err != nil {
			log.Printf("Cleanup error: %v\n", err)
		}
	}

	// Flush logger buffers.
	logger.Sync()
}
