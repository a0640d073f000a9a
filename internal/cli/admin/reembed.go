package admin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/docquery-ai/docquery/internal/config"
	"github.com/docquery-ai/docquery/internal/extract"
	"github.com/docquery-ai/docquery/internal/openai"
	"github.com/docquery-ai/docquery/internal/repository"
	"github.com/docquery-ai/docquery/internal/service"
	"github.com/docquery-ai/docquery/internal/storage"
	"github.com/spf13/cobra"
)

func ReembedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reembed <document-id>",
		Short: "Retry embedding for a document",
		Long:  "Re-run the embedding pass over a document's chunks that have no vector yet",
		Args:  cobra.ExactArgs(1),
		RunE:  runReembed,
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runReembed(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	documentID := args[0]
	outputFormat, _ := cmd.Flags().GetString("output")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.HasOpenAI() {
		return fmt.Errorf("OPENAI_API_KEY required for reembed")
	}
	if !cfg.HasS3() {
		return fmt.Errorf("S3 configuration required for reembed")
	}

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        cfg.S3Endpoint,
		Region:          cfg.S3Region,
		AccessKeyID:     cfg.S3AccessKey,
		SecretAccessKey: cfg.S3SecretKey,
		Bucket:          cfg.S3Bucket,
		UsePathStyle:    true,
	})
	if err != nil {
		return fmt.Errorf("failed to create S3 client: %w", err)
	}

	docRepo := repository.NewDocumentRepository(pool)
	chunkRepo := repository.NewChunkRepository(pool)
	openaiClient := openai.NewClient(cfg.OpenAIAPIKey)
	embeddingSvc := service.NewEmbeddingService(openaiClient, chunkRepo)

	processingSvc := service.NewProcessingService(
		docRepo, chunkRepo, &S3StorageAdapter{client: s3Client},
		extract.NewPDFExtractor(), buildChunker(cfg.ChunkStrategy), embeddingSvc)

	report, err := processingSvc.Reembed(ctx, documentID)
	if err != nil {
		return fmt.Errorf("failed to reembed document: %w", err)
	}

	if outputFormat == "json" {
		data := map[string]interface{}{
			"document_id":      documentID,
			"processed_chunks": report.ProcessedCount,
			"failed_chunks":    report.FailedCount,
		}
		jsonBytes, _ := json.MarshalIndent(data, "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		fmt.Printf("Reembedded document %s: %d chunks embedded, %d failed\n",
			documentID, report.ProcessedCount, report.FailedCount)
	}

	return nil
}
