package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/condoql/internal/ai"
	"github.com/xxxsen/condoql/internal/chunker"
	"github.com/xxxsen/condoql/internal/chunkstore"
	"github.com/xxxsen/condoql/internal/config"
	"github.com/xxxsen/condoql/internal/db"
	"github.com/xxxsen/condoql/internal/embedcache"
	"github.com/xxxsen/condoql/internal/filestore"
	"github.com/xxxsen/condoql/internal/handler"
	"github.com/xxxsen/condoql/internal/hints"
	"github.com/xxxsen/condoql/internal/job"
	"github.com/xxxsen/condoql/internal/middleware"
	"github.com/xxxsen/condoql/internal/pkg/jwt"
	"github.com/xxxsen/condoql/internal/repo"
	"github.com/xxxsen/condoql/internal/schedule"
	"github.com/xxxsen/condoql/internal/service"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "condoql",
		Short: "condoql financial records retrieval server",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run the condoql server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return runServer(cfg)
		},
	}

	var ingestFile string
	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "ingest a record file into the index",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if ingestFile == "" {
				return fmt.Errorf("--file is required")
			}
			env, err := buildEnv(cfg)
			if err != nil {
				return err
			}
			defer env.close()
			result, err := env.ingest.IngestFile(context.Background(), ingestFile)
			if err != nil {
				return err
			}
			fmt.Printf("ingested %d records (%d skipped), %d chunks written\n", result.Records, result.Skipped, result.Chunks)
			return nil
		},
	}
	ingestCmd.Flags().StringVar(&ingestFile, "file", "", "path to a JSON record file")

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "clear the chunk index and document registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			env, err := buildEnv(cfg)
			if err != nil {
				return err
			}
			defer env.close()
			if err := env.ingest.Reset(context.Background()); err != nil {
				return err
			}
			fmt.Println("index reset")
			return nil
		},
	}

	var tokenSubject string
	var tokenRole string
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "issue an admin token for the ingestion endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwt_secret is not configured")
			}
			token, err := jwt.GenerateToken(tokenSubject, tokenRole,
				[]byte(cfg.Auth.JWTSecret), time.Hour*time.Duration(cfg.Auth.JWTTTLHours))
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "admin", "token subject")
	tokenCmd.Flags().StringVar(&tokenRole, "role", "admin", "token role")

	rootCmd.AddCommand(runCmd, ingestCmd, resetCmd, tokenCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", path))
	return cfg, nil
}

// env bundles the wired pipeline shared by the server and the one shot
// CLI commands.
type env struct {
	database *sql.DB
	store    chunkstore.Store
	ingest   *service.IngestService
	query    *service.QueryService
	files    filestore.Store
}

func (e *env) close() {
	if e.database != nil {
		_ = e.database.Close()
	}
}

func buildEmbedder(cfg config.EmbedConfig) (ai.IEmbedder, error) {
	provider, err := ai.NewEmbedProvider(cfg.Provider, cfg.Data)
	if err != nil {
		return nil, err
	}
	embedder := ai.NewEmbedder(provider, cfg.Model)
	if len(cfg.Fallbacks) > 0 {
		entries := []ai.EmbedderEntry{{Name: cfg.Provider, Embedder: embedder}}
		for _, ref := range cfg.Fallbacks {
			p, err := ai.NewEmbedProvider(ref.Provider, ref.Data)
			if err != nil {
				return nil, err
			}
			entries = append(entries, ai.EmbedderEntry{Name: ref.Provider, Embedder: ai.NewEmbedder(p, ref.Model)})
		}
		embedder = ai.NewGroupEmbedder(entries)
	}
	if cfg.CacheSize > 0 {
		embedder = embedcache.WrapLruCacheToEmbedder(embedder,
			cfg.CacheSize,
			time.Hour*time.Duration(cfg.CacheTTLHours))
	}
	return embedder, nil
}

func buildGenerator(cfg config.ProviderConfig) (ai.IGenerator, error) {
	if cfg.Provider == "" {
		return nil, nil
	}
	provider, err := ai.NewProvider(cfg.Provider, cfg.Data)
	if err != nil {
		return nil, err
	}
	generator := ai.NewGenerator(provider, cfg.Model)
	if len(cfg.Fallbacks) == 0 {
		return generator, nil
	}
	entries := []ai.GeneratorEntry{{Name: cfg.Provider, Generator: generator}}
	for _, ref := range cfg.Fallbacks {
		p, err := ai.NewProvider(ref.Provider, ref.Data)
		if err != nil {
			return nil, err
		}
		entries = append(entries, ai.GeneratorEntry{Name: ref.Provider, Generator: ai.NewGenerator(p, ref.Model)})
	}
	return ai.NewGroupGenerator(entries), nil
}

func buildEnv(cfg *config.Config) (*env, error) {
	embedder, err := buildEmbedder(cfg.AI.Embed)
	if err != nil {
		return nil, fmt.Errorf("init embed provider: %w", err)
	}
	generator, err := buildGenerator(cfg.AI.Generate)
	if err != nil {
		return nil, fmt.Errorf("init generate provider: %w", err)
	}

	var database *sql.DB
	var docs *repo.SourceDocumentRepo
	if cfg.ChunkStore.Type == "postgres" {
		database, err = db.Open(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		if err := db.ApplyMigrations(database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
		docs = repo.NewSourceDocumentRepo(database)
	}

	store, err := chunkstore.New(cfg.ChunkStore.Type, cfg.ChunkStore.Data, chunkstore.Deps{
		Embedder: embedder,
		DB:       database,
	})
	if err != nil {
		if database != nil {
			_ = database.Close()
		}
		return nil, fmt.Errorf("init chunk store: %w", err)
	}

	files, err := filestore.New(cfg.FileStore)
	if err != nil {
		if database != nil {
			_ = database.Close()
		}
		return nil, fmt.Errorf("init file store: %w", err)
	}

	ingestService := service.NewIngestService(chunker.NewBuilder(), store, docs)
	queryService := service.NewQueryService(store, hints.NewKeywordExtractor(), generator, service.RetrievalConfig{
		TopK:            cfg.Retrieval.TopK,
		Oversample:      cfg.Retrieval.Oversample,
		Epsilon:         float32(cfg.Retrieval.Epsilon),
		MaxContextChars: cfg.Retrieval.MaxContextChars,
		Timeout:         cfg.AI.Generate.TimeoutSeconds,
	})

	return &env{
		database: database,
		store:    store,
		ingest:   ingestService,
		query:    queryService,
		files:    files,
	}, nil
}

func runServer(cfg *config.Config) error {
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("chunk_store", cfg.ChunkStore.Type),
		zap.String("file_store", cfg.FileStore.Type),
	)

	env, err := buildEnv(cfg)
	if err != nil {
		return err
	}
	defer env.close()

	deps := handler.RouterDeps{
		Query:       handler.NewQueryHandler(env.query),
		Ingest:      handler.NewIngestHandler(env.ingest, env.files),
		Statements:  handler.NewStatementHandler(env.ingest, env.files),
		AuthEnabled: cfg.Auth.Enabled,
		JWTSecret:   []byte(cfg.Auth.JWTSecret),
		QueryWindow: time.Second,
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(cfg.CORSHosts),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.NewCronScheduler()
	if cfg.Ingest.InboxDir != "" {
		inboxJob := job.NewIngestInboxJob(env.ingest, cfg.Ingest.InboxDir, cfg.Ingest.DoneDir)
		if err := scheduler.AddJob(inboxJob, cfg.Ingest.Cron); err != nil {
			return fmt.Errorf("schedule inbox job: %w", err)
		}
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}
