// Package chunk splits document text into overlapping, size-bounded segments
// for embedding and retrieval.
//
// Three strategies are available:
//   - fixed: sliding character window, may cut mid-word
//   - sentence: greedy sentence packing, preserves sentence boundaries
//   - recursive: separator-hierarchy splitting (paragraph -> line ->
//     sentence -> word -> character), the default
package chunk

import (
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Strategy selects the splitting algorithm.
type Strategy string

const (
	StrategyFixed     Strategy = "fixed"
	StrategySentence  Strategy = "sentence"
	StrategyRecursive Strategy = "recursive"
)

// Defaults when the caller passes zero values.
const (
	DefaultSize    = 512
	DefaultOverlap = 50
)

// defaultSeparators is the recursive splitting hierarchy, widest boundary
// first. The trailing empty string is the character-level fallback that
// guarantees termination on separator-free input.
var defaultSeparators = []string{"\n\n", "\n", ". ", "! ", "? ", "; ", ", ", " ", ""}

var whitespaceRun = regexp.MustCompile(`\s+`)

// Chunk is a bounded contiguous slice of a document's text plus metadata.
// Metadata always carries chunk_index, chunk_size, and total_chunks in
// addition to caller-supplied fields. Chunks are immutable once produced.
type Chunk struct {
	Content  string
	Metadata map[string]any
}

// Options configures a Chunker.
type Options struct {
	// Size is the target chunk size in characters.
	Size int
	// Overlap is the overlap between consecutive chunks in characters.
	Overlap int
	// Strategy selects the splitter (default: recursive).
	Strategy Strategy
}

// Chunker splits text into chunks. It is stateless after construction and
// safe for concurrent use.
type Chunker struct {
	size     int
	overlap  int
	strategy Strategy
}

// New creates a Chunker, applying defaults and clamping overlap below size.
func New(opts Options) *Chunker {
	if opts.Size <= 0 {
		opts.Size = DefaultSize
	}
	if opts.Overlap < 0 {
		opts.Overlap = DefaultOverlap
	}
	if opts.Overlap >= opts.Size {
		opts.Overlap = opts.Size - 1
	}
	if opts.Strategy == "" {
		opts.Strategy = StrategyRecursive
	}
	return &Chunker{size: opts.Size, overlap: opts.Overlap, strategy: opts.Strategy}
}

// Chunk splits text into chunks carrying the given base metadata. Blank or
// whitespace-only input yields an empty slice. The text is normalized first:
// whitespace runs collapse to single spaces, NUL bytes are stripped, and
// invalid UTF-8 is dropped.
func (c *Chunker) Chunk(text string, metadata map[string]any) []Chunk {
	if strings.TrimSpace(text) == "" {
		return []Chunk{}
	}

	text = cleanText(text)

	var raw []string
	switch c.strategy {
	case StrategyFixed:
		raw = c.chunkFixed(text)
	case StrategySentence:
		raw = c.chunkSentences(text)
	default:
		raw = c.chunkRecursive(text, defaultSeparators)
	}

	chunks := make([]Chunk, 0, len(raw))
	for i, content := range raw {
		content = strings.TrimSpace(content)
		if content == "" {
			continue
		}

		md := make(map[string]any, len(metadata)+3)
		for k, v := range metadata {
			md[k] = v
		}
		md["chunk_index"] = i
		md["chunk_size"] = len(content)
		md["total_chunks"] = len(raw)

		chunks = append(chunks, Chunk{Content: content, Metadata: md})
	}

	slog.Debug("document chunked",
		slog.Int("original_length", len(text)),
		slog.Int("chunks", len(chunks)),
		slog.String("strategy", string(c.strategy)))

	return chunks
}

// cleanText normalizes whitespace, strips NUL bytes, and coerces the text to
// valid UTF-8.
func cleanText(text string) string {
	text = whitespaceRun.ReplaceAllString(text, " ")
	text = strings.ReplaceAll(text, "\x00", "")
	text = strings.ToValidUTF8(text, "")
	return strings.TrimSpace(text)
}

// chunkFixed splits into fixed-size chunks stepping by size-overlap.
// Simple but may break mid-word.
func (c *Chunker) chunkFixed(text string) []string {
	var chunks []string

	start := 0
	for start < len(text) {
		end := start + c.size
		if end > len(text) {
			end = len(text)
		}
		if chunk := text[start:end]; chunk != "" {
			chunks = append(chunks, chunk)
		}

		start = start + c.size - c.overlap
		if start >= len(text) {
			break
		}
	}

	return chunks
}

// chunkSentences packs whole sentences into a running buffer until adding the
// next sentence would exceed the chunk size, then flushes. A single sentence
// longer than the chunk size is split with the fixed strategy, its tail
// becoming the start of the next buffer.
func (c *Chunker) chunkSentences(text string) []string {
	sentences := splitSentences(text)

	var chunks []string
	current := ""

	for _, sentence := range sentences {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}

		if len(current)+len(sentence) > c.size {
			if current != "" {
				chunks = append(chunks, current)
			}

			if len(sentence) > c.size {
				sub := c.chunkFixed(sentence)
				if len(sub) > 0 {
					chunks = append(chunks, sub[:len(sub)-1]...)
					current = sub[len(sub)-1]
				} else {
					current = ""
				}
			} else {
				current = sentence
			}
		} else {
			if current != "" {
				current += " " + sentence
			} else {
				current = sentence
			}
		}
	}

	if current != "" {
		chunks = append(chunks, current)
	}

	return chunks
}

// splitSentences splits text after sentence-ending punctuation followed by
// whitespace, keeping the punctuation with its sentence.
func splitSentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?':
			j := i + 1
			for j < len(text) && isSpace(text[j]) {
				j++
			}
			if j > i+1 {
				out = append(out, text[start:i+1])
				start = j
				i = j - 1
			}
		}
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// chunkRecursive splits text on the first separator of the hierarchy, then
// recurses with the remaining (narrower) separators into any piece that still
// exceeds the chunk size. The empty-string separator at the end of the
// hierarchy falls through to a character-level split, so recursion always
// terminates. Overlap is injected between the resulting chunks when
// configured.
func (c *Chunker) chunkRecursive(text string, separators []string) []string {
	if len(text) <= c.size {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []string{text}
	}

	separator := ""
	if len(separators) > 0 {
		separator = separators[0]
	}
	var remaining []string
	if len(separators) > 1 {
		remaining = separators[1:]
	}

	var splits []string
	if separator != "" {
		splits = strings.Split(text, separator)
	} else {
		splits = strings.Split(text, "") // character-level fallback
	}

	var chunks []string
	current := ""

	for _, split := range splits {
		withSep := split + separator

		if len(current)+len(withSep) > c.size {
			if current != "" {
				if len(current) <= c.size {
					chunks = append(chunks, trimTrailingSeparator(current, separator))
				} else {
					chunks = append(chunks, c.chunkRecursive(current, remaining)...)
				}
			}

			if len(withSep) > c.size {
				// This split alone is too large; descend into it.
				sub := c.chunkRecursive(split, remaining)
				if len(sub) > 0 {
					chunks = append(chunks, sub[:len(sub)-1]...)
					current = sub[len(sub)-1] + separator
				} else {
					current = ""
				}
			} else {
				current = withSep
			}
		} else {
			current += withSep
		}
	}

	if strings.TrimSpace(current) != "" {
		final := strings.TrimSpace(trimTrailingSeparator(current, separator))
		if len(final) <= c.size {
			chunks = append(chunks, final)
		} else {
			chunks = append(chunks, c.chunkRecursive(final, remaining)...)
		}
	}

	if c.overlap > 0 && len(chunks) > 1 {
		chunks = c.addOverlap(chunks)
	}

	return chunks
}

func trimTrailingSeparator(s, separator string) string {
	if separator == "" {
		return s
	}
	return strings.TrimRight(s, separator)
}

// addOverlap prepends to each chunk (except the first) the tail of its
// predecessor, trimmed forward to the nearest word boundary so no word is
// split in half.
func (c *Chunker) addOverlap(chunks []string) []string {
	if len(chunks) <= 1 {
		return chunks
	}

	overlapped := make([]string, 0, len(chunks))
	overlapped = append(overlapped, chunks[0])

	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1]

		start := len(prev) - c.overlap
		if start < 0 {
			start = 0
		}
		// Keep the slice on a rune boundary.
		for start < len(prev) && !utf8.RuneStart(prev[start]) {
			start++
		}
		overlap := prev[start:]

		if overlap == "" {
			overlapped = append(overlapped, chunks[i])
			continue
		}

		if idx := strings.Index(overlap, " "); idx > 0 {
			overlap = overlap[idx+1:]
		}
		overlapped = append(overlapped, overlap+" "+chunks[i])
	}

	return overlapped
}
