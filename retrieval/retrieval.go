package retrieval

import (
	"context"
	"regexp"
	"strings"
)

// DefaultCollection is used when a caller does not name a collection.
const DefaultCollection = "default"

// Chunk is one ranked passage.
type Chunk struct {
	ID         uint32  `json:"id"`
	Collection string  `json:"collection"`
	Source     string  `json:"source"`
	Text       string  `json:"text"`
	Score      float64 `json:"score,omitempty"`
}

// IndexReport summarises an Index call.
type IndexReport struct {
	Collection string   `json:"collection"`
	Files      []string `json:"files"`
	Chunks     int      `json:"chunks"`
	// Skipped lists paths that could not be read, with the reason.
	Skipped []string `json:"skipped,omitempty"`
}

// Service is the contract the retrieval tools depend on.
type Service interface {
	// Index reads the given files (or directories, recursively) into collection.
	Index(ctx context.Context, paths []string, collection string) (IndexReport, error)
	// Retrieve returns at most k chunks ranked by relevance to query. An empty
	// collections list searches every collection.
	Retrieve(ctx context.Context, query string, collections []string, k int) ([]Chunk, error)
}

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// Tokenize splits text into lowercase alphanumeric tokens, discarding tokens
// shorter than two characters.
func Tokenize(text string) []string {
	matches := tokenPattern.FindAllString(strings.ToLower(text), -1)
	tokens := matches[:0]
	for _, m := range matches {
		if len(m) >= 2 {
			tokens = append(tokens, m)
		}
	}
	return tokens
}

// Split breaks text into chunks of roughly size characters, keeping
// paragraphs together where possible. A paragraph longer than size is cut on
// word boundaries.
func Split(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	var (
		chunks []string
		cur    strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			chunks = append(chunks, s)
		}
		cur.Reset()
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if cur.Len() > 0 && cur.Len()+len(para)+2 > size {
			flush()
		}
		if len(para) <= size {
			if cur.Len() > 0 {
				cur.WriteString("\n\n")
			}
			cur.WriteString(para)
			continue
		}
		for _, word := range strings.Fields(para) {
			if cur.Len() > 0 && cur.Len()+len(word)+1 > size {
				flush()
			}
			if cur.Len() > 0 {
				cur.WriteByte(' ')
			}
			cur.WriteString(word)
		}
	}
	flush()
	return chunks
}
