// Package knowledge implements the retrieval-augmented knowledge base: documents are split into
// overlapping word windows, embedded, and appended to a persistent exact-L2 index; questions are
// answered by retrieving the nearest chunks and handing them to a text generator.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"docsentry/internal/document"
	"docsentry/internal/embedding"
	"docsentry/internal/extract"
	"docsentry/internal/llm"
	"docsentry/internal/logger"
	"docsentry/internal/metastore"
	"docsentry/internal/metrics"
	"docsentry/internal/vectorstore"
)

// Fixed user-facing replies
const (
	MsgNothingLearned   = "I haven't learned any documents yet. Please upload one first!"
	MsgNoRelevantInfo   = "I couldn't find any relevant information in the uploaded documents."
	MsgApology          = "Sorry, I encountered an error while processing your request."
	MsgExtractionFailed = "Failed to extract text."
)

var (
	ErrEmptyQuestion = errors.New("question is empty")
	ErrNoText        = errors.New("document has no text")
)

// ChunkRecord is the metadata stored for every embedded chunk
type ChunkRecord struct {
	DocumentID string    `json:"document_id"`
	Filename   string    `json:"filename"`
	Content    string    `json:"content"`
	Snippet    string    `json:"full_text_snippet"`
	ChunkIndex int       `json:"chunk_index"`
	IngestedAt time.Time `json:"ingested_at"`
}

// Options configures a Base
type Options struct {
	Dimension    int
	ChunkWords   int
	OverlapWords int
	TopK         int
	SnippetChars int
	// Timeout bounds each embedding or generation call
	Timeout      time.Duration
	VectorsPath  string
	MetadataPath string
}

// Result reports the outcome of learning one document
type Result struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	Chunks  int    `json:"chunks"`
	Failed  int    `json:"failed"`
	Err     error  `json:"-"`
}

// Source is a retrieved chunk that contributed to an answer
type Source struct {
	ID       uint64      `json:"id"`
	Distance float32     `json:"distance"`
	Record   ChunkRecord `json:"record"`
}

// Answer is the reply to a question. Collaborator failures are folded into Text and Err.
type Answer struct {
	Text    string   `json:"answer"`
	Sources []Source `json:"sources,omitempty"`
	Err     error    `json:"-"`
}

// Stats describes the current index
type Stats struct {
	Vectors   int `json:"vectors"`
	Dimension int `json:"dimension"`
	Records   int `json:"records"`
}

// Base is the knowledge base handle. Mutations hold the write lock for their full
// duration, including embedding calls; queries share the read lock.
type Base struct {
	mu   sync.RWMutex
	opts Options

	chunker   document.Chunker
	embedder  embedding.Embedder
	generator llm.Generator
	coll      *metastore.Collection[ChunkRecord]

	promptTemplate string
	now            func() time.Time
	newID          func() string
}

// New validates opts and returns an uninitialised handle
func New(opts Options, embedder embedding.Embedder, generator llm.Generator) (*Base, error) {
	if opts.Dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", opts.Dimension)
	}
	if opts.VectorsPath == "" || opts.MetadataPath == "" {
		return nil, errors.New("vectors and metadata paths are required")
	}
	chunker, err := document.NewChunker(opts.ChunkWords, opts.OverlapWords)
	if err != nil {
		return nil, err
	}
	if opts.TopK < 1 {
		opts.TopK = 3
	}
	if opts.SnippetChars <= 0 {
		opts.SnippetChars = 200
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}

	return &Base{
		opts:           opts,
		chunker:        chunker,
		embedder:       embedder,
		generator:      generator,
		promptTemplate: defaultPromptTemplate,
		now:            time.Now,
		newID:          uuid.NewString,
	}, nil
}

// Initialize loads the persisted index, or starts empty when it has never been saved.
// It is a no-op once the handle is initialised.
func (b *Base) Initialize(ctx context.Context) error {
	b.mu.RLock()
	ready := b.coll != nil
	b.mu.RUnlock()
	if ready {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.initLocked(ctx)
}

func (b *Base) initLocked(ctx context.Context) error {
	if b.coll != nil {
		return nil
	}
	ctx = logger.WithContext(ctx, logger.ComponentKey, "knowledge")

	coll, err := metastore.OpenCollection[ChunkRecord](b.opts.VectorsPath, b.opts.MetadataPath, b.opts.Dimension)
	if err != nil {
		logger.Error(ctx, "failed to open knowledge index", err, "path", b.opts.VectorsPath)
		return fmt.Errorf("open knowledge index: %w", err)
	}
	b.coll = coll
	metrics.IndexVectors.WithLabelValues(metrics.IndexKnowledge).Set(float64(coll.Index.Size()))

	if coll.Index.Dim() != b.opts.Dimension {
		logger.Warn(ctx, "persisted dimension differs from configuration; using persisted",
			"persisted", coll.Index.Dim(), "configured", b.opts.Dimension)
	}
	logger.Info(ctx, "knowledge index ready", "vectors", coll.Index.Size(), "dimension", coll.Index.Dim())
	return nil
}

// AddDocument learns text under name. Chunks whose embedding fails are skipped; the document
// counts as learned if at least one chunk was stored. State is persisted once at the end.
func (b *Base) AddDocument(ctx context.Context, text, name string) Result {
	ctx = logger.WithContext(ctx, logger.ComponentKey, "knowledge")
	ctx = logger.WithContext(ctx, logger.DocumentKey, name)

	if err := b.Initialize(ctx); err != nil {
		return failure(err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return Result{Message: MsgExtractionFailed, Err: ErrNoText}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	docID := b.newID()
	snippet := document.Snippet(text, b.opts.SnippetChars)
	ingestedAt := b.now().UTC()

	mark := b.coll.Index.Size()
	var res Result
	var lastErr error
	for i, chunk := range b.chunker.Chunks(text) {
		vec, err := b.embed(ctx, chunk.Content)
		if err == nil {
			_, err = b.coll.Add(vec, ChunkRecord{
				DocumentID: docID,
				Filename:   name,
				Content:    chunk.Content,
				Snippet:    snippet,
				ChunkIndex: i,
				IngestedAt: ingestedAt,
			})
		}
		if err != nil {
			res.Failed++
			lastErr = err
			metrics.KnowledgeChunks.WithLabelValues("failed").Inc()
			if errors.Is(err, vectorstore.ErrDimensionMismatch) {
				logger.Error(ctx, "embedding dimension does not match index", err, "chunk", i, "index_dimension", b.coll.Index.Dim())
			} else {
				logger.Warn(ctx, "skipping chunk", "chunk", i, "error", err.Error())
			}
			continue
		}
		res.Chunks++
		metrics.KnowledgeChunks.WithLabelValues("embedded").Inc()
	}

	if res.Chunks == 0 {
		if lastErr == nil {
			lastErr = ErrNoText
		}
		res.Err = lastErr
		res.Message = "Failed to learn content. Error: " + lastErr.Error()
		return res
	}

	if err := b.coll.Commit(); err != nil {
		logger.Error(ctx, "failed to persist knowledge index", err)
		if rbErr := b.coll.Rollback(mark); rbErr != nil {
			err = errors.Join(err, rbErr)
		}
		res.Chunks = 0
		res.Err = err
		res.Message = "Failed to learn content. Error: " + err.Error()
		return res
	}
	metrics.IndexVectors.WithLabelValues(metrics.IndexKnowledge).Set(float64(b.coll.Index.Size()))

	res.OK = true
	res.Message = fmt.Sprintf("Successfully learned %d chunks from %s.", res.Chunks, name)
	logger.Info(ctx, "document learned", "chunks", res.Chunks, "failed", res.Failed, "document_id", docID)
	return res
}

// AddFile extracts the text of path and learns it. An empty name defaults to the file's base name.
func (b *Base) AddFile(ctx context.Context, ex extract.Extractor, path, name string) Result {
	if name == "" {
		name = filepath.Base(path)
	}
	text, err := ex.Extract(ctx, path)
	if err != nil {
		return Result{Message: MsgExtractionFailed, Err: err}
	}
	return b.AddDocument(ctx, text, name)
}

// Query answers question from the k nearest chunks; k < 1 uses the configured top k.
// Only a blank question or an unreadable index is returned as an error.
func (b *Base) Query(ctx context.Context, question string, k int) (Answer, error) {
	ctx = logger.WithContext(ctx, logger.ComponentKey, "knowledge")
	ctx = logger.WithContext(ctx, logger.OperationKey, "query")

	if strings.TrimSpace(question) == "" {
		return Answer{}, ErrEmptyQuestion
	}
	if err := b.Initialize(ctx); err != nil {
		return Answer{}, err
	}
	if k < 1 {
		k = b.opts.TopK
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.coll.Index.Size() == 0 {
		metrics.KnowledgeQueries.WithLabelValues("empty_index").Inc()
		return Answer{Text: MsgNothingLearned}, nil
	}

	vec, err := b.embed(ctx, question)
	if err != nil {
		return b.apologize(ctx, "failed to embed question", err), nil
	}

	start := time.Now()
	hits, err := b.coll.Index.Search(vec, k)
	metrics.IndexSearchDuration.WithLabelValues(metrics.IndexKnowledge).Observe(time.Since(start).Seconds())
	if err != nil {
		return b.apologize(ctx, "search failed", err), nil
	}

	sources := make([]Source, 0, len(hits))
	for _, h := range hits {
		rec, ok := b.coll.Get(h.ID)
		if !ok {
			logger.Debug(ctx, "dropping hit without metadata", "id", h.ID)
			continue
		}
		sources = append(sources, Source{ID: h.ID, Distance: h.Distance, Record: rec})
	}
	if len(sources) == 0 {
		metrics.KnowledgeQueries.WithLabelValues("no_context").Inc()
		return Answer{Text: MsgNoRelevantInfo}, nil
	}

	prompt := buildPrompt(b.promptTemplate, question, buildContext(sources))
	genCtx, cancel := context.WithTimeout(ctx, b.opts.Timeout)
	defer cancel()
	text, err := b.generator.Generate(genCtx, prompt)
	if err != nil {
		ans := b.apologize(ctx, "failed to generate answer", err)
		ans.Sources = sources
		return ans, nil
	}

	metrics.KnowledgeQueries.WithLabelValues("answered").Inc()
	return Answer{Text: text, Sources: sources}, nil
}

// Clear empties the knowledge base and persists the empty state
func (b *Base) Clear(ctx context.Context) error {
	ctx = logger.WithContext(ctx, logger.ComponentKey, "knowledge")
	if err := b.Initialize(ctx); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.coll.Reset(b.opts.Dimension); err != nil {
		logger.Error(ctx, "failed to clear knowledge index", err)
		return fmt.Errorf("clear knowledge index: %w", err)
	}
	metrics.IndexVectors.WithLabelValues(metrics.IndexKnowledge).Set(0)
	logger.Info(ctx, "knowledge base cleared")
	return nil
}

// Stats reports the index size. An uninitialised handle reports zeros.
func (b *Base) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.coll == nil {
		return Stats{Dimension: b.opts.Dimension}
	}
	return Stats{
		Vectors:   b.coll.Index.Size(),
		Dimension: b.coll.Index.Dim(),
		Records:   b.coll.Meta.Len(),
	}
}

// Close releases the metadata database
func (b *Base) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.coll == nil {
		return nil
	}
	err := b.coll.Close()
	b.coll = nil
	return err
}

func (b *Base) embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, b.opts.Timeout)
	defer cancel()
	return b.embedder.Embed(ctx, text)
}

func (b *Base) apologize(ctx context.Context, msg string, err error) Answer {
	metrics.KnowledgeQueries.WithLabelValues("error").Inc()
	logger.Error(ctx, msg, err)
	return Answer{Text: MsgApology, Err: err}
}

func failure(err error) Result {
	return Result{Message: "Failed to learn content. Error: " + err.Error(), Err: err}
}
