package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/docquery-ai/docquery/internal/telemetry"
)

// FallbackAnswer is returned when generation fails or no source clears the
// relevance floor. The provider is never invoked with zero context.
const FallbackAnswer = "I couldn't find enough relevant information in this document."

// GenerationUsage carries the provider's token accounting when reported.
type GenerationUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// GenerationResult is the generative provider's response.
type GenerationResult struct {
	Text  string
	Usage *GenerationUsage
}

// GenerationClient defines the interface for the generative provider
type GenerationClient interface {
	GenerateAnswer(ctx context.Context, prompt string) (GenerationResult, error)
}

// AnswerService assembles retrieved chunks into a grounded prompt and invokes
// the generative provider.
type AnswerService struct {
	client GenerationClient
}

// NewAnswerService creates a new AnswerService instance
func NewAnswerService(client GenerationClient) *AnswerService {
	return &AnswerService{client: client}
}

// SynthesisResult is a generated answer plus optional usage stats.
type SynthesisResult struct {
	Answer string
	Usage  *GenerationUsage
}

// Synthesize builds a context-grounded prompt from the ranked sources and asks
// the provider for an answer. An empty source list or a provider error both
// yield the fallback answer without usage stats; generation failures never
// propagate as hard errors of the whole query.
func (s *AnswerService) Synthesize(ctx context.Context, question string, sources []RankedSource, documentTitle string) SynthesisResult {
	if len(sources) == 0 {
		return SynthesisResult{Answer: FallbackAnswer}
	}

	prompt := buildAnswerPrompt(question, sources, documentTitle)

	result, err := s.client.GenerateAnswer(ctx, prompt)
	if err != nil {
		log.Printf("answer generation failed: %v", err)
		telemetry.CaptureError(ctx, err)
		return SynthesisResult{Answer: FallbackAnswer}
	}

	return SynthesisResult{Answer: result.Text, Usage: result.Usage}
}

// buildAnswerPrompt labels each source with a 1-based index and, when known,
// a page number, then appends the literal question.
func buildAnswerPrompt(question string, sources []RankedSource, documentTitle string) string {
	var b strings.Builder

	b.WriteString("You are a helpful assistant answering based only on this PDF's content.\n\n")
	b.WriteString("CONTEXT:\n")

	for i, source := range sources {
		label := fmt.Sprintf("[From: %s]", documentTitle)
		if source.Chunk.PageNumber != nil {
			label = fmt.Sprintf("[From: %s, Page %d]", documentTitle, *source.Chunk.PageNumber)
		}
		fmt.Fprintf(&b, "---SOURCE %d %s---\n%s\n\n", i+1, label, source.Chunk.Text)
	}

	fmt.Fprintf(&b, "QUESTION: %s\n\nANSWER:", question)

	return b.String()
}
