package admin

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docquery-ai/docquery/internal/api/handlers"
	"github.com/docquery-ai/docquery/internal/config"
	"github.com/docquery-ai/docquery/internal/database"
	"github.com/docquery-ai/docquery/internal/domain"
	"github.com/docquery-ai/docquery/internal/extract"
	"github.com/docquery-ai/docquery/internal/jobs"
	"github.com/docquery-ai/docquery/internal/openai"
	"github.com/docquery-ai/docquery/internal/repository"
	"github.com/docquery-ai/docquery/internal/server"
	"github.com/docquery-ai/docquery/internal/service"
	"github.com/docquery-ai/docquery/internal/storage"
	"github.com/docquery-ai/docquery/internal/telemetry"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the docquery API server on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize Sentry with tracing if SENTRY_DSN is set
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

		// Default to 10% sampling in production, 100% in development
		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              dsn,
			Environment:      environment,
			TracesSampleRate: sampleRate,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	log.Println("connected to database")

	// Run migrations unless --no-migrate flag is set
	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	docRepo := repository.NewDocumentRepository(pool)
	chunkRepo := repository.NewChunkRepository(pool)
	jobRepo := repository.NewProcessingJobRepository(pool)
	workspaceRepo := repository.NewWorkspaceRepository(pool)
	apiKeyRepo := repository.NewAPIKeyRepository(pool)

	if cfg.InitWorkspaceName != "" {
		if err := bootstrapInitialWorkspace(ctx, cfg, workspaceRepo, apiKeyRepo); err != nil {
			return fmt.Errorf("failed to bootstrap initial workspace: %w", err)
		}
	}

	var storageClient *storage.S3Client
	if cfg.HasS3() {
		s3Config := storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		}
		storageClient, err = storage.NewS3Client(ctx, s3Config)
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := storageClient.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Printf("S3 bucket '%s' ready", cfg.S3Bucket)
	}

	var openaiClient *openai.Client
	if cfg.HasOpenAI() {
		openaiClient = openai.NewClient(cfg.OpenAIAPIKey)
	}

	var processingSvc *service.ProcessingService
	var processingWorker *jobs.Worker
	if storageClient != nil && openaiClient != nil {
		embeddingSvc := service.NewEmbeddingService(openaiClient, chunkRepo)
		processingSvc = service.NewProcessingService(
			docRepo, chunkRepo, &S3StorageAdapter{client: storageClient},
			extract.NewPDFExtractor(), buildChunker(cfg.ChunkStrategy), embeddingSvc)
		processor := jobs.NewProcessingWorker(jobRepo, processingSvc)
		processingWorker = jobs.NewWorker(processor, 10*time.Second)
		go processingWorker.Start(ctx)
		log.Println("processing worker started")
	}

	uuidGen := &service.DefaultUUIDGenerator{}
	authSvc := service.NewAuthService(workspaceRepo, apiKeyRepo, uuidGen)

	var docSvcStorage service.StorageClientInterface
	if storageClient != nil {
		docSvcStorage = &S3StorageAdapter{client: storageClient}
	} else {
		docSvcStorage = &noOpStorageClient{}
	}
	docSvc := service.NewDocumentServiceWithTx(
		docRepo, chunkRepo, jobRepo, docSvcStorage, repository.NewTxRunner(pool))

	var reembedSvc handlers.ReembedService
	var querySvc handlers.QueryService
	if processingSvc != nil {
		reembedSvc = processingSvc
	} else {
		reembedSvc = &noOpReembedService{}
	}
	if openaiClient != nil {
		answerSvc := service.NewAnswerService(openaiClient)
		querySvc = service.NewQueryService(openaiClient, answerSvc, docRepo, chunkRepo)
	} else {
		querySvc = &noOpQueryService{}
	}

	queryLogRepo := repository.NewQueryLogRepository(pool)

	routerCfg := server.RouterConfig{
		AuthValidator:   authSvc,
		DocumentHandler: handlers.NewDocumentHandler(docSvc, reembedSvc),
		QueryHandler:    handlers.NewQueryHandlerWithLog(querySvc, queryLogRepo),
		AuthHandler:     handlers.NewAuthHandler(authSvc),
	}

	router := server.NewRouter(routerCfg)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	if processingWorker != nil {
		processingWorker.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

func buildChunker(strategy string) service.ChunkStrategy {
	if strategy == "sentence" {
		return service.NewSentenceChunker(service.DefaultSentencesPerChunk, service.DefaultOverlapSentences)
	}
	return service.NewWordChunker(service.DefaultChunkSize, service.DefaultChunkOverlap)
}

// S3StorageAdapter bridges the storage client to the service interfaces.
type S3StorageAdapter struct {
	client *storage.S3Client
}

func (a *S3StorageAdapter) GenerateUploadURL(ctx context.Context, key string, contentType string) (string, error) {
	return a.client.GenerateUploadURL(ctx, key, contentType)
}

func (a *S3StorageAdapter) GenerateDownloadURL(ctx context.Context, key string) (string, error) {
	return a.client.GenerateDownloadURL(ctx, key)
}

func (a *S3StorageAdapter) DeleteObject(ctx context.Context, key string) error {
	return a.client.DeleteObject(ctx, key)
}

func (a *S3StorageAdapter) HeadObject(ctx context.Context, key string) (*service.ObjectMetadata, error) {
	meta, err := a.client.HeadObject(ctx, key)
	if err != nil {
		return nil, err
	}
	return &service.ObjectMetadata{
		ContentLength: meta.ContentLength,
		ContentType:   meta.ContentType,
		ETag:          meta.ETag,
	}, nil
}

func (a *S3StorageAdapter) Download(ctx context.Context, key string) ([]byte, error) {
	return a.client.Download(ctx, key)
}

type noOpStorageClient struct{}

func (c *noOpStorageClient) GenerateUploadURL(ctx context.Context, key string, contentType string) (string, error) {
	return "", fmt.Errorf("storage not configured: S3_ENDPOINT required")
}

func (c *noOpStorageClient) GenerateDownloadURL(ctx context.Context, key string) (string, error) {
	return "", fmt.Errorf("storage not configured: S3_ENDPOINT required")
}

func (c *noOpStorageClient) DeleteObject(ctx context.Context, key string) error {
	return fmt.Errorf("storage not configured: S3_ENDPOINT required")
}

func (c *noOpStorageClient) HeadObject(ctx context.Context, key string) (*service.ObjectMetadata, error) {
	return nil, fmt.Errorf("storage not configured: S3_ENDPOINT required")
}

type noOpReembedService struct{}

func (s *noOpReembedService) Reembed(ctx context.Context, documentID string) (service.EmbedReport, error) {
	return service.EmbedReport{}, fmt.Errorf("processing not configured: S3_ENDPOINT and OPENAI_API_KEY required")
}

type noOpQueryService struct{}

func (s *noOpQueryService) Query(ctx context.Context, input service.QueryInput) (*service.QueryOutput, error) {
	return nil, fmt.Errorf("query not configured: OPENAI_API_KEY required")
}

func bootstrapInitialWorkspace(ctx context.Context, cfg *config.Config, workspaceRepo *repository.WorkspaceRepository, apiKeyRepo *repository.APIKeyRepository) error {
	ws, err := workspaceRepo.GetByName(ctx, cfg.InitWorkspaceName)
	if err != nil && err != domain.ErrWorkspaceNotFound {
		return fmt.Errorf("failed to check existing workspace: %w", err)
	}

	uuidGen := &service.DefaultUUIDGenerator{}
	authSvc := service.NewAuthService(workspaceRepo, apiKeyRepo, uuidGen)

	if ws == nil {
		ws, err = authSvc.CreateWorkspace(ctx, cfg.InitWorkspaceName)
		if err != nil {
			return fmt.Errorf("failed to create workspace: %w", err)
		}
		log.Printf("bootstrap: created workspace '%s' (id: %s)", ws.Name, ws.ID)
	} else {
		log.Printf("bootstrap: workspace '%s' already exists (id: %s)", ws.Name, ws.ID)
	}

	if cfg.InitAPIKey != "" {
		if !service.IsValidAPIToken(cfg.InitAPIKey) {
			return fmt.Errorf("invalid DOCQUERY_INIT_API_KEY format (expected 'dq_<64 hex chars>')")
		}

		existingKey, err := authSvc.GetAPIKeyByHash(ctx, cfg.InitAPIKey)
		if err == nil && existingKey != nil {
			log.Printf("bootstrap: API key already exists (id: %s)", existingKey.ID)
			return nil
		}

		if err := authSvc.CreateAPIKeyWithToken(ctx, ws.ID, "bootstrap", cfg.InitAPIKey); err != nil {
			return fmt.Errorf("failed to create API key: %w", err)
		}
		log.Printf("bootstrap: created API key")
	}

	return nil
}

func runMigrations(databaseURL string) error {
	// Create a sql.DB connection for golang-migrate
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
	} else if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	} else if err == migrate.ErrNoChange {
		log.Printf("migrations: database is up to date (version %d)", version)
	} else {
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}
