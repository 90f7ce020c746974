package retrieval

import (
	"context"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/sourcegraph/conc/pool"
)

// BM25 parameters (Okapi variant, standard values).
const (
	paramK1      = 1.2
	paramB       = 0.75
	paramEpsilon = 0.25
)

// DefaultChunkSize is the target chunk length in characters.
const DefaultChunkSize = 800

// Options configures an Index.
type Options struct {
	// ChunkSize is the target chunk length in characters.
	ChunkSize int
	// Workers bounds concurrent file reads during Index.
	Workers int
	// MaxFileBytes skips files larger than this.
	MaxFileBytes int64
	// Exclude holds filepath.Match patterns tested against base names.
	Exclude []string
	Logger  logging.Logger
}

type chunkEntry struct {
	chunk  Chunk
	terms  map[string]int
	length int
}

// Index is an in-memory BM25 index implementing Service. It is safe for
// concurrent use; file reads happen outside the lock.
type Index struct {
	opts Options

	mu          sync.RWMutex
	entries     []chunkEntry
	live        *roaring.Bitmap
	postings    map[string]*roaring.Bitmap
	collections map[string]*roaring.Bitmap
	sources     map[string]*roaring.Bitmap
	totalLength int
}

var _ Service = (*Index)(nil)

// NewIndex creates an empty index.
func NewIndex(optFns ...func(o *Options)) *Index {
	opts := Options{
		ChunkSize:    DefaultChunkSize,
		Workers:      4,
		MaxFileBytes: 4 << 20,
		Exclude:      []string{".*"},
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Index{
		opts:        opts,
		live:        roaring.New(),
		postings:    make(map[string]*roaring.Bitmap),
		collections: make(map[string]*roaring.Bitmap),
		sources:     make(map[string]*roaring.Bitmap),
	}
}

type fileResult struct {
	path string
	text string
	err  error
}

// Index reads paths into collection. Directories are walked recursively.
// Unreadable, oversized or excluded files are reported in Skipped rather than
// failing the whole call; only a cancelled context is an error.
func (x *Index) Index(ctx context.Context, paths []string, collection string) (IndexReport, error) {
	if collection == "" {
		collection = DefaultCollection
	}
	report := IndexReport{Collection: collection, Files: []string{}}

	files, skipped := x.expand(paths)
	report.Skipped = append(report.Skipped, skipped...)

	p := pool.NewWithResults[fileResult]().WithMaxGoroutines(x.opts.Workers)
	for _, path := range files {
		p.Go(func() fileResult {
			if err := ctx.Err(); err != nil {
				return fileResult{path: path, err: err}
			}
			return x.read(path)
		})
	}
	results := p.Wait()
	if err := ctx.Err(); err != nil {
		return IndexReport{}, err
	}
	sort.Slice(results, func(i, j int) bool { return results[i].path < results[j].path })

	for _, r := range results {
		if r.err != nil {
			report.Skipped = append(report.Skipped, fmt.Sprintf("%s: %v", r.path, r.err))
			continue
		}
		report.Chunks += x.IndexText(collection, r.path, r.text)
		report.Files = append(report.Files, r.path)
	}

	x.opts.Logger.Info("retrieval.index", "collection", collection, "files", len(report.Files), "chunks", report.Chunks, "skipped", len(report.Skipped))
	return report, nil
}

func (x *Index) excluded(name string) bool {
	for _, pattern := range x.opts.Exclude {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// expand resolves directories into their regular files.
func (x *Index) expand(paths []string) (files, skipped []string) {
	seen := make(map[string]struct{})
	add := func(p string) {
		if _, dup := seen[p]; !dup {
			seen[p] = struct{}{}
			files = append(files, p)
		}
	}
	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			skipped = append(skipped, fmt.Sprintf("%s: %v", root, err))
			continue
		}
		if !info.IsDir() {
			add(root)
			continue
		}
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				skipped = append(skipped, fmt.Sprintf("%s: %v", path, err))
				return nil
			}
			if path != root && x.excluded(d.Name()) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.Type().IsRegular() {
				add(path)
			}
			return nil
		})
		if err != nil {
			skipped = append(skipped, fmt.Sprintf("%s: %v", root, err))
		}
	}
	return files, skipped
}

func (x *Index) read(path string) fileResult {
	info, err := os.Stat(path)
	if err != nil {
		return fileResult{path: path, err: err}
	}
	if x.opts.MaxFileBytes > 0 && info.Size() > x.opts.MaxFileBytes {
		return fileResult{path: path, err: fmt.Errorf("file too large: %d bytes (max %d)", info.Size(), x.opts.MaxFileBytes)}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fileResult{path: path, err: err}
	}
	return fileResult{path: path, text: string(data)}
}

// IndexText chunks text and adds it under source, replacing whatever was
// previously indexed for the same source in the same collection. It returns
// the number of chunks added.
func (x *Index) IndexText(collection, source, text string) int {
	if collection == "" {
		collection = DefaultCollection
	}
	pieces := Split(text, x.opts.ChunkSize)

	// Tokenize before taking the lock.
	prepared := make([]chunkEntry, 0, len(pieces))
	for _, piece := range pieces {
		tokens := Tokenize(piece)
		terms := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			terms[tok]++
		}
		prepared = append(prepared, chunkEntry{
			chunk:  Chunk{Collection: collection, Source: source, Text: piece},
			terms:  terms,
			length: len(tokens),
		})
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	key := collection + "\x00" + source
	if old, ok := x.sources[key]; ok {
		x.removeLocked(old)
	}
	ids := roaring.New()
	coll := x.collections[collection]
	if coll == nil {
		coll = roaring.New()
		x.collections[collection] = coll
	}
	for _, e := range prepared {
		id := uint32(len(x.entries))
		e.chunk.ID = id
		x.entries = append(x.entries, e)
		for term := range e.terms {
			posting := x.postings[term]
			if posting == nil {
				posting = roaring.New()
				x.postings[term] = posting
			}
			posting.Add(id)
		}
		coll.Add(id)
		ids.Add(id)
		x.live.Add(id)
		x.totalLength += e.length
	}
	x.sources[key] = ids
	return len(prepared)
}

func (x *Index) removeLocked(ids *roaring.Bitmap) {
	it := ids.Iterator()
	for it.HasNext() {
		id := it.Next()
		e := x.entries[id]
		for term := range e.terms {
			if posting := x.postings[term]; posting != nil {
				posting.Remove(id)
				if posting.IsEmpty() {
					delete(x.postings, term)
				}
			}
		}
		if coll := x.collections[e.chunk.Collection]; coll != nil {
			coll.Remove(id)
		}
		x.live.Remove(id)
		x.totalLength -= e.length
		x.entries[id] = chunkEntry{}
	}
}

// Retrieve ranks the live chunks of collections against query.
func (x *Index) Retrieve(ctx context.Context, query string, collections []string, k int) ([]Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tokens := Tokenize(query)
	if len(tokens) == 0 || k <= 0 {
		return []Chunk{}, nil
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	n := x.live.GetCardinality()
	if n == 0 {
		return []Chunk{}, nil
	}
	avgLength := float64(x.totalLength) / float64(n)

	var scope *roaring.Bitmap
	if len(collections) > 0 {
		var sets []*roaring.Bitmap
		for _, c := range collections {
			if bm := x.collections[c]; bm != nil {
				sets = append(sets, bm)
			}
		}
		if len(sets) == 0 {
			return []Chunk{}, nil
		}
		scope = roaring.FastOr(sets...)
	}

	idf := make(map[string]float64, len(tokens))
	var matching []*roaring.Bitmap
	for _, tok := range tokens {
		posting := x.postings[tok]
		if posting == nil {
			continue
		}
		if _, done := idf[tok]; done {
			continue
		}
		df := float64(posting.GetCardinality())
		v := math.Log(1 + (float64(n)-df+0.5)/(df+0.5))
		if v <= 0 {
			v = paramEpsilon
		}
		idf[tok] = v
		matching = append(matching, posting)
	}
	if len(matching) == 0 {
		return []Chunk{}, nil
	}
	candidates := roaring.FastOr(matching...)
	if scope != nil {
		candidates = roaring.And(candidates, scope)
	}

	hits := make([]Chunk, 0, candidates.GetCardinality())
	it := candidates.Iterator()
	for it.HasNext() {
		e := x.entries[it.Next()]
		var score float64
		for _, tok := range tokens {
			tf := float64(e.terms[tok])
			if tf == 0 {
				continue
			}
			num := tf * (paramK1 + 1)
			den := tf + paramK1*(1-paramB+paramB*float64(e.length)/avgLength)
			score += idf[tok] * num / den
		}
		if score > 0 {
			c := e.chunk
			c.Score = score
			hits = append(hits, c)
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Collections lists every collection that holds at least one chunk.
func (x *Index) Collections() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	var out []string
	for name, bm := range x.collections {
		if !bm.IsEmpty() {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Len returns the number of live chunks.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return int(x.live.GetCardinality())
}
