package service

import (
	"strings"
	"unicode/utf8"
)

// Chunking defaults. A window of DefaultChunkSize words advances by
// DefaultChunkSize - DefaultChunkOverlap words per step.
const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50

	DefaultSentencesPerChunk = 5
	DefaultOverlapSentences  = 1
)

// TextChunk is a chunk produced by a chunking strategy, before persistence.
// StartIndex and EndIndex are indices into the unit sequence the strategy
// windows over (words for WordChunker, sentences for SentenceChunker), except
// on the single-chunk fallback path where EndIndex is the text length.
type TextChunk struct {
	Text        string
	ChunkNumber int
	StartIndex  int
	EndIndex    int
	TokenCount  int
	PageNumber  *int
}

// ChunkStrategy splits normalized text into ordered, overlapping chunks.
// Strategies are interchangeable: both produce contiguous zero-based chunk
// numbers and return no chunks for empty input.
type ChunkStrategy interface {
	Chunk(text string) []TextChunk
}

// normalizeText collapses all whitespace runs (including non-breaking spaces)
// to a single ASCII space and trims the ends.
func normalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// WordChunker slides a fixed-size word window across the text.
type WordChunker struct {
	ChunkSize int
	Overlap   int
}

// NewWordChunker creates a WordChunker, applying defaults for non-positive
// values. ChunkSize must exceed Overlap for the window to make progress.
func NewWordChunker(chunkSize, overlap int) *WordChunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = DefaultChunkOverlap
		if overlap >= chunkSize {
			overlap = chunkSize / 10
		}
	}
	return &WordChunker{ChunkSize: chunkSize, Overlap: overlap}
}

func (c *WordChunker) Chunk(rawText string) []TextChunk {
	text := normalizeText(rawText)
	if text == "" {
		return nil
	}

	words := splitWords(text)
	if len(words) == 0 {
		return []TextChunk{wholeTextChunk(text)}
	}

	var chunks []TextChunk
	chunkNumber := 0
	start := 0

	for start < len(words) {
		end := start + c.ChunkSize
		if end > len(words) {
			end = len(words)
		}

		window := words[start:end]
		chunkText := strings.TrimSpace(strings.Join(window, " "))
		if chunkText != "" {
			chunks = append(chunks, TextChunk{
				Text:        chunkText,
				ChunkNumber: chunkNumber,
				StartIndex:  start,
				EndIndex:    end,
				TokenCount:  len(window),
			})
			chunkNumber++
		}

		if end == len(words) {
			break
		}
		next := end - c.Overlap
		if next < 0 {
			next = 0
		}
		start = next
	}

	return chunks
}

// SentenceChunker windows over sentences instead of words. Sentences end at
// '.', '!' or '?' followed by whitespace.
type SentenceChunker struct {
	SentencesPerChunk int
	OverlapSentences  int
}

// NewSentenceChunker creates a SentenceChunker, applying defaults for
// non-positive values.
func NewSentenceChunker(sentencesPerChunk, overlapSentences int) *SentenceChunker {
	if sentencesPerChunk <= 0 {
		sentencesPerChunk = DefaultSentencesPerChunk
	}
	if overlapSentences < 0 || overlapSentences >= sentencesPerChunk {
		overlapSentences = 0
	}
	return &SentenceChunker{
		SentencesPerChunk: sentencesPerChunk,
		OverlapSentences:  overlapSentences,
	}
}

func (c *SentenceChunker) Chunk(rawText string) []TextChunk {
	text := normalizeText(rawText)
	if text == "" {
		return nil
	}

	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return []TextChunk{wholeTextChunk(text)}
	}

	var chunks []TextChunk
	chunkNumber := 0
	start := 0

	for start < len(sentences) {
		end := start + c.SentencesPerChunk
		if end > len(sentences) {
			end = len(sentences)
		}

		chunkText := strings.TrimSpace(strings.Join(sentences[start:end], " "))
		if chunkText != "" {
			chunks = append(chunks, TextChunk{
				Text:        chunkText,
				ChunkNumber: chunkNumber,
				StartIndex:  start,
				EndIndex:    end,
				TokenCount:  len(splitWords(chunkText)),
			})
			chunkNumber++
		}

		if end == len(sentences) {
			break
		}
		next := end - c.OverlapSentences
		if next < 0 {
			next = 0
		}
		start = next
	}

	return chunks
}

// wholeTextChunk covers the pathological case where normalized text has no
// splittable units: the whole text becomes chunk 0.
func wholeTextChunk(text string) TextChunk {
	return TextChunk{
		Text:        text,
		ChunkNumber: 0,
		StartIndex:  0,
		EndIndex:    utf8.RuneCountInString(text),
		TokenCount:  len(splitWords(text)),
	}
}

func splitWords(text string) []string {
	parts := strings.Split(text, " ")
	words := parts[:0]
	for _, p := range parts {
		if p != "" {
			words = append(words, p)
		}
	}
	return words
}

// splitSentences splits normalized text after sentence-ending punctuation
// followed by a space. A trailing fragment without terminal punctuation still
// counts as a sentence.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i := 0; i+1 < len(text); i++ {
		c := text[i]
		if (c == '.' || c == '!' || c == '?') && text[i+1] == ' ' {
			s := strings.TrimSpace(text[start : i+1])
			if s != "" {
				sentences = append(sentences, s)
			}
			start = i + 2
			i++
		}
	}
	if start < len(text) {
		s := strings.TrimSpace(text[start:])
		if s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}
