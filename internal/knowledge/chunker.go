package knowledge

import (
	"regexp"
	"strings"
)

// Chunking defaults. Sizes are measured in bytes of UTF-8 text, which for the
// mostly-Latin corpora this system ingests tracks character counts closely.
const (
	// DefaultMaxChunkSize is the soft upper bound on chunk length.
	DefaultMaxChunkSize = 500

	// DefaultOverlapWords is the number of trailing words carried from one
	// chunk into the start of the next to preserve context across boundaries.
	DefaultOverlapWords = 50

	// fallbackSizeFactor bounds the single emergency chunk produced for input
	// with no paragraph structure. That branch is not a general long-text
	// chunker; content beyond the bound is not indexed.
	fallbackSizeFactor = 4
)

// paragraphSep splits text on blank-line boundaries.
var paragraphSep = regexp.MustCompile(`\n{2,}`)

// Chunker splits document text into overlapping segments sized for embedding.
//
// Paragraphs are accumulated into a buffer; when the next paragraph would push
// the buffer past MaxChunkSize the buffer is flushed as a chunk and the next
// buffer is seeded with the last OverlapWords words of the flushed text.
// Chunk order is significant: it becomes the persisted chunk index.
type Chunker struct {
	MaxChunkSize int
	OverlapWords int
}

// NewChunker returns a Chunker with default sizing.
func NewChunker() *Chunker {
	return &Chunker{
		MaxChunkSize: DefaultMaxChunkSize,
		OverlapWords: DefaultOverlapWords,
	}
}

// Split chunks text into ordered overlapping segments.
// Empty or whitespace-only input yields no chunks. Input with content but no
// blank-line structure yields a single truncated chunk.
func (c *Chunker) Split(text string) []string {
	maxSize := c.MaxChunkSize
	if maxSize <= 0 {
		maxSize = DefaultMaxChunkSize
	}
	overlap := c.OverlapWords
	if overlap <= 0 {
		overlap = DefaultOverlapWords
	}

	var chunks []string
	var current string

	for _, paragraph := range paragraphSep.Split(text, -1) {
		trimmed := strings.TrimSpace(paragraph)
		if trimmed == "" {
			continue
		}

		if len(current)+len(trimmed) > maxSize && len(current) > 0 {
			chunks = append(chunks, strings.TrimSpace(current))

			// Seed the next buffer with the tail of the flushed chunk.
			words := strings.Split(current, " ")
			if len(words) > overlap {
				words = words[len(words)-overlap:]
			}
			current = strings.Join(words, " ") + "\n\n" + trimmed
		} else {
			if current != "" {
				current += "\n\n"
			}
			current += trimmed
		}
	}

	if current = strings.TrimSpace(current); current != "" {
		// A buffer that never overflowed means the input had no usable
		// paragraph boundaries. Bound that single emergency chunk so the
		// document is at least partially searchable; the remainder is not
		// indexed.
		if len(chunks) == 0 {
			current = truncate(current, maxSize*fallbackSizeFactor)
		}
		chunks = append(chunks, current)
	}

	return chunks
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && s[n]&0xC0 == 0x80 {
		n--
	}
	return s[:n]
}
