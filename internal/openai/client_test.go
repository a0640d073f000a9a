package openai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/docquery-ai/docquery/internal/service"
)

// MockEmbeddingAPI is a mock for the embedding API
type MockEmbeddingAPI struct {
	mock.Mock
}

func (m *MockEmbeddingAPI) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, string, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, "", args.Error(2)
	}
	return args.Get(0).([][]float32), args.String(1), args.Error(2)
}

// MockChatAPI is a mock for the chat API
type MockChatAPI struct {
	mock.Mock
}

func (m *MockChatAPI) CreateChatCompletion(ctx context.Context, prompt string) (string, *service.GenerationUsage, error) {
	args := m.Called(ctx, prompt)
	var usage *service.GenerationUsage
	if args.Get(1) != nil {
		usage = args.Get(1).(*service.GenerationUsage)
	}
	return args.String(0), usage, args.Error(2)
}

func makeVector(dims int) []float32 {
	v := make([]float32, dims)
	for i := range v {
		v[i] = float32(i) * 0.001
	}
	return v
}

func TestClient_GenerateEmbedding_Success(t *testing.T) {
	mockAPI := new(MockEmbeddingAPI)
	client := &Client{embeddings: mockAPI, dimensions: 1536}

	ctx := context.Background()
	text := "This is a test document about Go programming."
	expected := makeVector(1536)

	mockAPI.On("CreateEmbeddings", ctx, []string{text}).
		Return([][]float32{expected}, "text-embedding-3-small", nil)

	vector, err := client.GenerateEmbedding(ctx, text)

	require.NoError(t, err)
	assert.Len(t, vector.Embedding, 1536)
	assert.Equal(t, expected, vector.Embedding)
	assert.Equal(t, "text-embedding-3-small", vector.Model)
	mockAPI.AssertExpectations(t)
}

func TestClient_GenerateEmbedding_EmptyText(t *testing.T) {
	client := NewClient("")

	_, err := client.GenerateEmbedding(context.Background(), "")

	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestClient_GenerateBatchEmbeddings_Success(t *testing.T) {
	mockAPI := new(MockEmbeddingAPI)
	client := &Client{embeddings: mockAPI, dimensions: 3}

	ctx := context.Background()
	texts := []string{"first", "second", "third"}
	mockAPI.On("CreateEmbeddings", ctx, texts).
		Return([][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}, "text-embedding-3-small", nil)

	vectors, err := client.GenerateBatchEmbeddings(ctx, texts)

	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, []float32{0, 1, 0}, vectors[1].Embedding)
	assert.Equal(t, "text-embedding-3-small", vectors[2].Model)
}

func TestClient_GenerateBatchEmbeddings_TooLarge(t *testing.T) {
	client := &Client{embeddings: new(MockEmbeddingAPI), dimensions: 3}

	texts := make([]string, service.MaxEmbedBatchSize+1)
	for i := range texts {
		texts[i] = "text"
	}

	_, err := client.GenerateBatchEmbeddings(context.Background(), texts)

	assert.ErrorIs(t, err, ErrBatchTooLarge)
}

func TestClient_GenerateBatchEmbeddings_CountMismatch(t *testing.T) {
	mockAPI := new(MockEmbeddingAPI)
	client := &Client{embeddings: mockAPI, dimensions: 3}

	ctx := context.Background()
	texts := []string{"first", "second"}
	mockAPI.On("CreateEmbeddings", ctx, texts).
		Return([][]float32{{1, 0, 0}}, "text-embedding-3-small", nil)

	_, err := client.GenerateBatchEmbeddings(ctx, texts)

	assert.ErrorIs(t, err, ErrCountMismatch)
}

func TestClient_GenerateBatchEmbeddings_WrongDimensions(t *testing.T) {
	mockAPI := new(MockEmbeddingAPI)
	client := &Client{embeddings: mockAPI, dimensions: 1536}

	ctx := context.Background()
	texts := []string{"text"}
	mockAPI.On("CreateEmbeddings", ctx, texts).
		Return([][]float32{makeVector(512)}, "text-embedding-3-small", nil)

	_, err := client.GenerateBatchEmbeddings(ctx, texts)

	assert.ErrorIs(t, err, ErrWrongDimensions)
}

func TestClient_GenerateBatchEmbeddings_APIError(t *testing.T) {
	mockAPI := new(MockEmbeddingAPI)
	client := &Client{embeddings: mockAPI, dimensions: 3}

	ctx := context.Background()
	mockAPI.On("CreateEmbeddings", ctx, mock.Anything).
		Return(nil, "", errors.New("API rate limit exceeded"))

	_, err := client.GenerateBatchEmbeddings(ctx, []string{"text"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create embeddings")
}

func TestClient_GenerateAnswer_Success(t *testing.T) {
	mockChat := new(MockChatAPI)
	client := &Client{chat: mockChat}

	ctx := context.Background()
	usage := &service.GenerationUsage{PromptTokens: 200, CompletionTokens: 40, TotalTokens: 240}
	mockChat.On("CreateChatCompletion", ctx, "some prompt").
		Return("a grounded answer", usage, nil)

	result, err := client.GenerateAnswer(ctx, "some prompt")

	require.NoError(t, err)
	assert.Equal(t, "a grounded answer", result.Text)
	require.NotNil(t, result.Usage)
	assert.Equal(t, 240, result.Usage.TotalTokens)
}

func TestClient_GenerateAnswer_APIError(t *testing.T) {
	mockChat := new(MockChatAPI)
	client := &Client{chat: mockChat}

	ctx := context.Background()
	mockChat.On("CreateChatCompletion", ctx, mock.Anything).
		Return("", nil, errors.New("model overloaded"))

	_, err := client.GenerateAnswer(ctx, "some prompt")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create completion")
}

func newTestAdapter(t *testing.T, responseBody string) *OpenAIAdapter {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(responseBody))
	}))
	t.Cleanup(srv.Close)

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	return &OpenAIAdapter{client: openai.NewClientWithConfig(cfg), chatModel: DefaultChatModel}
}

func TestOpenAIAdapter_CreateChatCompletion_WithUsage(t *testing.T) {
	adapter := newTestAdapter(t, `{
		"choices": [{"message": {"role": "assistant", "content": "a grounded answer"}}],
		"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
	}`)

	text, usage, err := adapter.CreateChatCompletion(context.Background(), "prompt")

	require.NoError(t, err)
	assert.Equal(t, "a grounded answer", text)
	require.NotNil(t, usage)
	assert.Equal(t, 10, usage.PromptTokens)
	assert.Equal(t, 5, usage.CompletionTokens)
	assert.Equal(t, 15, usage.TotalTokens)
}

func TestOpenAIAdapter_CreateChatCompletion_NoUsageReported(t *testing.T) {
	adapter := newTestAdapter(t, `{
		"choices": [{"message": {"role": "assistant", "content": "a grounded answer"}}]
	}`)

	text, usage, err := adapter.CreateChatCompletion(context.Background(), "prompt")

	require.NoError(t, err)
	assert.Equal(t, "a grounded answer", text)
	assert.Nil(t, usage, "no usage block in the response means nil usage")
}

func TestNewClientFromEnv_NoAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	client, err := NewClientFromEnv()

	assert.Nil(t, client)
	assert.Equal(t, ErrNoAPIKey, err)
}

func TestNewClientFromEnv_WithAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-api-key")

	client, err := NewClientFromEnv()

	require.NoError(t, err)
	assert.NotNil(t, client)
}
