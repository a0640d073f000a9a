//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/docquery-ai/docquery/internal/api/handlers"
	"github.com/docquery-ai/docquery/internal/jobs"
	"github.com/docquery-ai/docquery/internal/repository"
	"github.com/docquery-ai/docquery/internal/server"
	"github.com/docquery-ai/docquery/internal/service"
	"github.com/docquery-ai/docquery/internal/storage"
	"github.com/docquery-ai/docquery/internal/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
)

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T            *testing.T
	Ctx          context.Context
	PostgresC    *testutil.PostgresContainer
	RustFSC      *testutil.RustFSContainer
	Pool         *pgxpool.Pool
	ServerURL    string
	ServerCloser func()
	S3Client     *storage.S3Client
	WorkspaceID  string
	APIKeyID     string
	AuthToken    string
	HTTPClient   *http.Client
}

// SetupE2EEnv creates a full E2E test environment with containers and server
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	s3C := testutil.NewRustFSContainer(ctx, t)

	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        s3C.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     "rustfsadmin",
		SecretAccessKey: "rustfsadmin",
		Bucket:          "test-documents",
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create S3 client: %v", err)
	}

	if err := s3Client.EnsureBucket(ctx); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}

	serverURL, serverCloser := startServer(t, pool, s3Client, port)

	return &E2ETestEnv{
		T:            t,
		Ctx:          ctx,
		PostgresC:    pgC,
		RustFSC:      s3C,
		Pool:         pool,
		ServerURL:    serverURL,
		ServerCloser: serverCloser,
		S3Client:     s3Client,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.ServerCloser != nil {
		e.ServerCloser()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.RustFSC != nil {
		e.RustFSC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
}

// Bootstrap creates a workspace and API key for testing
func (e *E2ETestEnv) Bootstrap() {
	wsResp, err := e.Post("/workspaces", map[string]string{"name": "E2E Test Workspace"}, "")
	if err != nil {
		e.T.Fatalf("failed to create workspace: %v", err)
	}

	var wsData struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(wsResp.Data, &wsData); err != nil {
		e.T.Fatalf("failed to parse workspace response: %v", err)
	}
	e.WorkspaceID = wsData.ID

	keyResp, err := e.Post("/apikeys", map[string]string{
		"workspace_id": e.WorkspaceID,
		"name":         "e2e-test-key",
	}, "")
	if err != nil {
		e.T.Fatalf("failed to create API key: %v", err)
	}

	var keyData struct {
		ID    string `json:"id"`
		Token string `json:"token"`
	}
	if err := json.Unmarshal(keyResp.Data, &keyData); err != nil {
		e.T.Fatalf("failed to parse key response: %v", err)
	}
	e.APIKeyID = keyData.ID
	e.AuthToken = keyData.Token
}

// UploadDocument runs init, presigned upload, and complete for one document,
// returning the document ID.
func (e *E2ETestEnv) UploadDocument(filename string, content []byte) string {
	initResp, err := e.Post("/documents/init", map[string]string{
		"filename":     filename,
		"content_type": "application/pdf",
	}, e.AuthToken)
	if err != nil {
		e.T.Fatalf("failed to init upload: %v", err)
	}

	var initData struct {
		DocumentID string `json:"document_id"`
		StorageKey string `json:"storage_key"`
		UploadURL  string `json:"upload_url"`
	}
	if err := json.Unmarshal(initResp.Data, &initData); err != nil {
		e.T.Fatalf("failed to parse init response: %v", err)
	}

	if err := e.UploadFile(initData.UploadURL, content, "application/pdf"); err != nil {
		e.T.Fatalf("failed to upload file: %v", err)
	}

	_, err = e.Post("/documents/complete", map[string]string{
		"document_id": initData.DocumentID,
		"filename":    filename,
		"storage_key": initData.StorageKey,
	}, e.AuthToken)
	if err != nil {
		e.T.Fatalf("failed to complete upload: %v", err)
	}

	return initData.DocumentID
}

// WaitForDocumentStatus polls until the document reaches the wanted status.
func (e *E2ETestEnv) WaitForDocumentStatus(documentID, status string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	var last string
	for time.Now().Before(deadline) {
		resp, err := e.Get("/documents/"+documentID, e.AuthToken)
		if err == nil {
			var doc struct {
				Status       string `json:"status"`
				ErrorMessage string `json:"error_message"`
			}
			if err := json.Unmarshal(resp.Data, &doc); err == nil {
				last = doc.Status
				if doc.Status == status {
					return
				}
				if doc.Status == "failed" && status != "failed" {
					e.T.Fatalf("document %s failed: %s", documentID, doc.ErrorMessage)
				}
			}
		}
		time.Sleep(200 * time.Millisecond)
	}
	e.T.Fatalf("document %s did not reach status %q within %v (last: %q)", documentID, status, timeout, last)
}

// APIResponse represents a standard API response
type APIResponse struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error,omitempty"`
}

// Get performs a GET request
func (e *E2ETestEnv) Get(path, authToken string) (*APIResponse, error) {
	return e.doRequest("GET", path, nil, authToken)
}

// Post performs a POST request
func (e *E2ETestEnv) Post(path string, body interface{}, authToken string) (*APIResponse, error) {
	return e.doRequest("POST", path, body, authToken)
}

// Delete performs a DELETE request
func (e *E2ETestEnv) Delete(path, authToken string) (*APIResponse, error) {
	return e.doRequest("DELETE", path, nil, authToken)
}

func (e *E2ETestEnv) doRequest(method, path string, body interface{}, authToken string) (*APIResponse, error) {
	url := e.ServerURL + path

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return nil, err
	}

	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if len(respBody) == 0 && resp.StatusCode < 400 {
		return &APIResponse{}, nil
	}

	var apiResp APIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
		}
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, apiResp.Error)
	}

	return &apiResp, nil
}

// UploadFile uploads a file to the presigned URL
func (e *E2ETestEnv) UploadFile(uploadURL string, content []byte, contentType string) error {
	req, err := http.NewRequest("PUT", uploadURL, bytes.NewReader(content))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, body)
	}

	return nil
}

// startServer starts the HTTP server with all handlers and a processing worker
func startServer(t *testing.T, pool *pgxpool.Pool, s3Client *storage.S3Client, port int) (string, func()) {
	docRepo := repository.NewDocumentRepository(pool)
	chunkRepo := repository.NewChunkRepository(pool)
	jobRepo := repository.NewProcessingJobRepository(pool)
	workspaceRepo := repository.NewWorkspaceRepository(pool)
	apiKeyRepo := repository.NewAPIKeyRepository(pool)
	queryLogRepo := repository.NewQueryLogRepository(pool)

	uuidGen := &service.DefaultUUIDGenerator{}
	authSvc := service.NewAuthService(workspaceRepo, apiKeyRepo, uuidGen)

	adapter := &s3StorageAdapter{client: s3Client}
	docSvc := service.NewDocumentServiceWithTx(
		docRepo, chunkRepo, jobRepo, adapter, repository.NewTxRunner(pool))

	embeddingClient := &stubEmbeddingClient{}
	embeddingSvc := service.NewEmbeddingService(embeddingClient, chunkRepo)
	chunker := service.NewWordChunker(50, 5)
	processingSvc := service.NewProcessingService(
		docRepo, chunkRepo, adapter, &plainTextExtractor{}, chunker, embeddingSvc)

	worker := jobs.NewWorker(jobs.NewProcessingWorker(jobRepo, processingSvc), 200*time.Millisecond)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	go worker.Start(workerCtx)

	answerSvc := service.NewAnswerService(&stubGenerationClient{})
	querySvc := service.NewQueryService(embeddingClient, answerSvc, docRepo, chunkRepo)

	cfg := server.RouterConfig{
		AuthValidator:   authSvc,
		DocumentHandler: handlers.NewDocumentHandler(docSvc, processingSvc),
		QueryHandler:    handlers.NewQueryHandlerWithLog(querySvc, queryLogRepo),
		AuthHandler:     handlers.NewAuthHandler(authSvc),
	}

	router := server.NewRouter(cfg)
	addr := fmt.Sprintf(":%d", port)

	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.Logf("server error: %v", err)
		}
	}()

	serverURL := fmt.Sprintf("http://localhost:%d", port)
	waitForServer(t, serverURL, 10*time.Second)

	return serverURL, func() {
		workerCancel()
		worker.Stop()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

func waitForServer(t *testing.T, url string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server did not start within %v", timeout)
}

func getFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// s3StorageAdapter adapts S3Client to the service storage interfaces
type s3StorageAdapter struct {
	client *storage.S3Client
}

func (a *s3StorageAdapter) GenerateUploadURL(ctx context.Context, key string, contentType string) (string, error) {
	return a.client.GenerateUploadURL(ctx, key, contentType)
}

func (a *s3StorageAdapter) GenerateDownloadURL(ctx context.Context, key string) (string, error) {
	return a.client.GenerateDownloadURL(ctx, key)
}

func (a *s3StorageAdapter) DeleteObject(ctx context.Context, key string) error {
	return a.client.DeleteObject(ctx, key)
}

func (a *s3StorageAdapter) HeadObject(ctx context.Context, key string) (*service.ObjectMetadata, error) {
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

func (a *s3StorageAdapter) Download(ctx context.Context, key string) ([]byte, error) {
	return a.client.Download(ctx, key)
}

// plainTextExtractor treats uploaded bytes as plain text, one page per
// form-feed separated block. E2E tests exercise the pipeline without
// depending on real PDF fixtures.
type plainTextExtractor struct{}

func (e *plainTextExtractor) Extract(ctx context.Context, data []byte) ([]service.ExtractedPage, error) {
	blocks := strings.Split(string(data), "\f")
	pages := make([]service.ExtractedPage, 0, len(blocks))
	for i, block := range blocks {
		pages = append(pages, service.ExtractedPage{
			PageNumber: i + 1,
			Text:       block,
		})
	}
	return pages, nil
}

// stubEmbeddingClient produces deterministic bag-of-words vectors so cosine
// similarity reflects term overlap between question and chunk text.
type stubEmbeddingClient struct{}

const stubDimensions = 1536

func (c *stubEmbeddingClient) embed(text string) service.EmbeddingVector {
	vec := make([]float32, stubDimensions)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(word))
		vec[h.Sum32()%stubDimensions] += 1
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return service.EmbeddingVector{Embedding: vec, Model: "stub-embedding"}
}

func (c *stubEmbeddingClient) GenerateEmbedding(ctx context.Context, text string) (service.EmbeddingVector, error) {
	return c.embed(text), nil
}

func (c *stubEmbeddingClient) GenerateBatchEmbeddings(ctx context.Context, texts []string) ([]service.EmbeddingVector, error) {
	vectors := make([]service.EmbeddingVector, len(texts))
	for i, text := range texts {
		vectors[i] = c.embed(text)
	}
	return vectors, nil
}

// stubGenerationClient returns a canned answer built from the prompt.
type stubGenerationClient struct{}

func (c *stubGenerationClient) GenerateAnswer(ctx context.Context, prompt string) (service.GenerationResult, error) {
	return service.GenerationResult{
		Text: "Based on the document, the answer is derived from the retrieved context.",
		Usage: &service.GenerationUsage{
			PromptTokens:     len(strings.Fields(prompt)),
			CompletionTokens: 12,
			TotalTokens:      len(strings.Fields(prompt)) + 12,
		},
	}, nil
}
