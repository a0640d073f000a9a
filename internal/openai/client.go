package openai

import (
	"context"
	"errors"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"

	"github.com/docquery-ai/docquery/internal/service"
)

const (
	// DefaultEmbeddingModel is the OpenAI model used for generating embeddings
	DefaultEmbeddingModel = openai.SmallEmbedding3
	// DefaultEmbeddingDimensions is the expected dimension of embeddings from text-embedding-3-small
	DefaultEmbeddingDimensions = 1536
	// DefaultChatModel is the OpenAI model used for answer synthesis
	DefaultChatModel = openai.GPT4oMini
)

var (
	// ErrEmptyText is returned when text is empty
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrWrongDimensions is returned when an embedding has unexpected dimensions
	ErrWrongDimensions = errors.New("embedding has wrong dimensions")
	// ErrNoAPIKey is returned when OpenAI API key is not set
	ErrNoAPIKey = errors.New("OPENAI_API_KEY environment variable not set")
	// ErrBatchTooLarge is returned when a batch exceeds the provider input limit
	ErrBatchTooLarge = errors.New("embedding batch exceeds provider input limit")
	// ErrCountMismatch is returned when the provider returns a different number of vectors than inputs
	ErrCountMismatch = errors.New("embedding count does not match input count")
)

// EmbeddingAPI defines the interface for embedding generation
type EmbeddingAPI interface {
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, string, error)
}

// ChatAPI defines the interface for chat completion
type ChatAPI interface {
	CreateChatCompletion(ctx context.Context, prompt string) (string, *service.GenerationUsage, error)
}

// Client wraps the OpenAI API for embedding and generation calls. It satisfies
// both service.EmbeddingClient and service.GenerationClient.
type Client struct {
	embeddings EmbeddingAPI
	chat       ChatAPI
	dimensions int
}

// OpenAIAdapter backs EmbeddingAPI and ChatAPI with the real OpenAI client.
type OpenAIAdapter struct {
	client         *openai.Client
	embeddingModel openai.EmbeddingModel
	chatModel      string
}

func NewOpenAIAdapter(apiKey string, embeddingModel openai.EmbeddingModel, chatModel string) *OpenAIAdapter {
	if embeddingModel == "" {
		embeddingModel = DefaultEmbeddingModel
	}
	if chatModel == "" {
		chatModel = DefaultChatModel
	}
	return &OpenAIAdapter{
		client:         openai.NewClient(apiKey),
		embeddingModel: embeddingModel,
		chatModel:      chatModel,
	}
}

// CreateEmbeddings calls the OpenAI API to create embeddings for a batch of texts
func (a *OpenAIAdapter) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, string, error) {
	resp, err := a.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: a.embeddingModel,
	})
	if err != nil {
		return nil, "", err
	}

	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vectors[i] = d.Embedding
	}
	return vectors, string(resp.Model), nil
}

// CreateChatCompletion calls the OpenAI chat API with a single user prompt
func (a *OpenAIAdapter) CreateChatCompletion(ctx context.Context, prompt string) (string, *service.GenerationUsage, error) {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", nil, err
	}
	if len(resp.Choices) == 0 {
		return "", nil, errors.New("no completion choices returned")
	}

	// Callers treat nil usage as "provider reported nothing".
	var usage *service.GenerationUsage
	if resp.Usage.PromptTokens != 0 || resp.Usage.CompletionTokens != 0 || resp.Usage.TotalTokens != 0 {
		usage = &service.GenerationUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return resp.Choices[0].Message.Content, usage, nil
}

type Config struct {
	APIKey              string
	EmbeddingModel      openai.EmbeddingModel
	EmbeddingDimensions int
	ChatModel           string
}

// NewClient creates a new OpenAI client using defaults.
func NewClient(apiKey string) *Client {
	return NewClientWithConfig(Config{APIKey: apiKey})
}

// NewClientWithConfig creates a new OpenAI client with explicit configuration.
func NewClientWithConfig(cfg Config) *Client {
	dimensions := cfg.EmbeddingDimensions
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}
	adapter := NewOpenAIAdapter(cfg.APIKey, cfg.EmbeddingModel, cfg.ChatModel)
	return &Client{
		embeddings: adapter,
		chat:       adapter,
		dimensions: dimensions,
	}
}

// NewClientFromEnv creates a new OpenAI client using OPENAI_API_KEY environment variable
func NewClientFromEnv() (*Client, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	return NewClient(apiKey), nil
}

// GenerateEmbedding generates an embedding for the given text
func (c *Client) GenerateEmbedding(ctx context.Context, text string) (service.EmbeddingVector, error) {
	if text == "" {
		return service.EmbeddingVector{}, ErrEmptyText
	}

	vectors, err := c.GenerateBatchEmbeddings(ctx, []string{text})
	if err != nil {
		return service.EmbeddingVector{}, err
	}
	return vectors[0], nil
}

// GenerateBatchEmbeddings generates embeddings for a batch of texts in one
// provider call. Callers are responsible for keeping batches within
// service.MaxEmbedBatchSize; exceeding it is a programming error.
func (c *Client) GenerateBatchEmbeddings(ctx context.Context, texts []string) ([]service.EmbeddingVector, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyText
	}
	if len(texts) > service.MaxEmbedBatchSize {
		return nil, fmt.Errorf("%w: %d inputs, max %d", ErrBatchTooLarge, len(texts), service.MaxEmbedBatchSize)
	}

	raw, model, err := c.embeddings.CreateEmbeddings(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}
	if len(raw) != len(texts) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrCountMismatch, len(raw), len(texts))
	}

	vectors := make([]service.EmbeddingVector, len(raw))
	for i, v := range raw {
		if len(v) != c.dimensions {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrWrongDimensions, len(v), c.dimensions)
		}
		vectors[i] = service.EmbeddingVector{Embedding: v, Model: model}
	}
	return vectors, nil
}

// GenerateAnswer generates an answer for the given prompt
func (c *Client) GenerateAnswer(ctx context.Context, prompt string) (service.GenerationResult, error) {
	if prompt == "" {
		return service.GenerationResult{}, ErrEmptyText
	}

	text, usage, err := c.chat.CreateChatCompletion(ctx, prompt)
	if err != nil {
		return service.GenerationResult{}, fmt.Errorf("failed to create completion: %w", err)
	}
	return service.GenerationResult{Text: text, Usage: usage}, nil
}
