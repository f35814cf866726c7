package core

import (
	"regexp"
	"strings"
)

const (
	DefaultChunkSize    = 800
	DefaultChunkOverlap = 100

	// Chunks below this length carry too little signal and would pollute
	// similarity ranking. Clamped to chunkSize/2 so tiny chunk sizes
	// still produce output.
	minChunkChars = 50
)

var (
	spaceRun   = regexp.MustCompile(`[ \t]+`)
	blankLines = regexp.MustCompile(`\n{3,}`)
)

// NormalizeText collapses whitespace runs and caps consecutive blank lines so
// segmentation is stable across sloppy input.
func NormalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = spaceRun.ReplaceAllString(text, " ")
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// Segment splits text into overlapping chunks by accumulating whole sentences
// until the running chunk would exceed chunkSize, then seeding the next chunk
// with the word-aligned trailing overlap of the previous one. Output is
// deterministic: identical input always yields identical chunks.
func Segment(text string, chunkSize, overlap int) []string {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	norm := NormalizeText(text)
	if norm == "" {
		return nil
	}

	var chunks []string
	var cur strings.Builder
	for _, sentence := range splitSentences(norm) {
		// A single sentence longer than the window gets hard-split;
		// there is no boundary inside it to respect.
		if len(sentence) > chunkSize {
			if cur.Len() > 0 {
				chunks = append(chunks, cur.String())
				cur.Reset()
			}
			pieces := fixedSplit(sentence, chunkSize, overlap)
			if len(pieces) > 0 {
				chunks = append(chunks, pieces[:len(pieces)-1]...)
				cur.WriteString(pieces[len(pieces)-1])
			}
			continue
		}
		if cur.Len() > 0 && cur.Len()+1+len(sentence) > chunkSize {
			chunks = append(chunks, cur.String())
			tail := overlapTail(cur.String(), overlap)
			cur.Reset()
			cur.WriteString(tail)
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(sentence)
	}
	if strings.TrimSpace(cur.String()) != "" {
		chunks = append(chunks, cur.String())
	}

	minLen := minChunkChars
	if half := chunkSize / 2; half < minLen {
		minLen = half
	}
	kept := chunks[:0]
	for _, c := range chunks {
		if len(c) >= minLen && strings.TrimSpace(c) != "" {
			kept = append(kept, c)
		}
	}
	return kept
}

// SegmentFixed is the fixed-size sliding-window strategy. Segment is what the
// indexer uses; this variant exists for content with no usable sentence
// structure.
func SegmentFixed(text string, chunkSize, overlap int) []string {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}
	norm := NormalizeText(text)
	if norm == "" {
		return nil
	}
	return fixedSplit(norm, chunkSize, overlap)
}

func fixedSplit(text string, chunkSize, overlap int) []string {
	step := chunkSize - overlap
	if step <= 0 {
		step = chunkSize
	}
	var chunks []string
	for start := 0; start < len(text); start += step {
		end := start + chunkSize
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, text[start:end])
		if end == len(text) {
			break
		}
	}
	return chunks
}

// splitSentences breaks normalized text after terminal punctuation or a
// newline. Trailing text without punctuation becomes a final sentence.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?', '\n':
			s := strings.TrimSpace(text[start : i+1])
			if s != "" {
				sentences = append(sentences, s)
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// overlapTail returns the last overlap-ish characters of s, aligned to a word
// boundary so adjacent chunks never share a half word.
func overlapTail(s string, overlap int) string {
	if overlap <= 0 {
		return ""
	}
	if len(s) <= overlap {
		return s
	}
	tail := s[len(s)-overlap:]
	if i := strings.IndexByte(tail, ' '); i >= 0 {
		tail = tail[i+1:]
	}
	return strings.TrimSpace(tail)
}
