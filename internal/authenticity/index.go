// Package authenticity scores identity documents against a library of trained authentic
// exemplars. Each document is reduced to a features vector; a candidate is authentic when
// its mean distance to the nearest exemplars maps to a confidence at or above the threshold.
package authenticity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"docsentry/internal/extract"
	"docsentry/internal/features"
	"docsentry/internal/logger"
	"docsentry/internal/metastore"
	"docsentry/internal/metrics"
)

const (
	ReasonAuthentic        = "Document appears authentic"
	ReasonSuspect          = "Document shows signs of being fake or altered"
	ReasonExtractionFailed = "Failed to extract text from document"
	ReasonNotTrained       = "No authentic documents in database. Please train the model first."
)

// ErrUnknownDocType is returned when no document type is given
var ErrUnknownDocType = errors.New("document type is required")

// TrainingRecord describes one trained exemplar
type TrainingRecord struct {
	FilePath   string           `json:"filepath"`
	DocType    features.DocType `json:"doc_type"`
	TextLength int              `json:"text_length"`
	WordCount  int              `json:"word_count"`
	Indicators []string         `json:"indicators,omitempty"`
	TrainedAt  time.Time        `json:"trained_at"`
}

// Verdict is the outcome of verifying one document
type Verdict struct {
	File             string           `json:"file,omitempty"`
	IsAuthentic      bool             `json:"is_authentic"`
	Confidence       float64          `json:"confidence"`
	AvgDistance      float64          `json:"avg_distance"`
	Threshold        float64          `json:"threshold"`
	MatchedDocuments []TrainingRecord `json:"matched_documents"`
	Reason           string           `json:"reason"`
}

// Sample is a file and the document type it claims to be
type Sample struct {
	Path    string
	DocType features.DocType
}

// Failure is one sample a batch could not process
type Failure struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// BatchSummary aggregates a TrainAll run
type BatchSummary struct {
	Trained int       `json:"trained"`
	Failed  []Failure `json:"failed,omitempty"`
	// Succeeded is aligned with the input samples
	Succeeded []bool `json:"-"`
}

type Stats struct {
	Vectors   int     `json:"vectors"`
	Dimension int     `json:"dimension"`
	Records   int     `json:"records"`
	Threshold float64 `json:"threshold"`
}

// Options configures an Index
type Options struct {
	Neighbors    int
	Threshold    float64
	VectorsPath  string
	MetadataPath string
}

// Index is the authenticity index handle. Training and clearing hold the write lock;
// verification shares the read lock.
type Index struct {
	mu        sync.RWMutex
	opts      Options
	extractor extract.Extractor
	coll      *metastore.Collection[TrainingRecord]
	now       func() time.Time
}

// New returns an uninitialised index
func New(opts Options, extractor extract.Extractor) (*Index, error) {
	if opts.VectorsPath == "" || opts.MetadataPath == "" {
		return nil, errors.New("vectors and metadata paths are required")
	}
	if opts.Neighbors < 1 {
		opts.Neighbors = 3
	}
	if opts.Threshold <= 0 || opts.Threshold > 1 {
		return nil, fmt.Errorf("threshold must be in (0, 1], got %g", opts.Threshold)
	}
	return &Index{opts: opts, extractor: extractor, now: time.Now}, nil
}

// Initialize loads the persisted exemplars or starts empty. Repeated calls are no-ops.
func (x *Index) Initialize(ctx context.Context) error {
	x.mu.RLock()
	ready := x.coll != nil
	x.mu.RUnlock()
	if ready {
		return nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if x.coll != nil {
		return nil
	}

	ctx = logger.WithContext(ctx, logger.ComponentKey, "authenticity")
	coll, err := metastore.OpenCollection[TrainingRecord](x.opts.VectorsPath, x.opts.MetadataPath, features.Dimension)
	if err != nil {
		logger.Error(ctx, "failed to open authenticity index", err, "path", x.opts.VectorsPath)
		return fmt.Errorf("open authenticity index: %w", err)
	}
	if coll.Index.Dim() != features.Dimension {
		coll.Close()
		return fmt.Errorf("authenticity index has dimension %d, want %d", coll.Index.Dim(), features.Dimension)
	}
	x.coll = coll
	metrics.IndexVectors.WithLabelValues(metrics.IndexAuthenticity).Set(float64(coll.Index.Size()))
	logger.Info(ctx, "authenticity index ready", "exemplars", coll.Index.Size())
	return nil
}

// Train extracts the text of path and stores it as an authentic exemplar of docType
func (x *Index) Train(ctx context.Context, path string, docType features.DocType) (uint64, error) {
	text, err := x.extractor.Extract(ctx, path)
	if err != nil {
		metrics.AuthenticityTrainings.WithLabelValues("failed").Inc()
		return 0, fmt.Errorf("train on %s: %w", path, err)
	}
	return x.TrainText(ctx, text, docType, path)
}

// TrainText stores already-extracted text as an exemplar. source is recorded as the file path.
func (x *Index) TrainText(ctx context.Context, text string, docType features.DocType, source string) (uint64, error) {
	ctx = logger.WithContext(ctx, logger.ComponentKey, "authenticity")
	ctx = logger.WithContext(ctx, logger.DocumentKey, source)

	id, err := x.train(ctx, text, docType, source)
	if err != nil {
		metrics.AuthenticityTrainings.WithLabelValues("failed").Inc()
		return 0, err
	}
	metrics.AuthenticityTrainings.WithLabelValues("trained").Inc()
	return id, nil
}

func (x *Index) train(ctx context.Context, text string, docType features.DocType, source string) (uint64, error) {
	if docType == "" {
		return 0, ErrUnknownDocType
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, fmt.Errorf("train on %s: %w", source, extract.ErrNoText)
	}
	if err := x.Initialize(ctx); err != nil {
		return 0, err
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	mark := x.coll.Index.Size()
	vec := features.Extract(text, docType)
	id, err := x.coll.Add(vec, TrainingRecord{
		FilePath:   source,
		DocType:    docType,
		TextLength: len([]rune(text)),
		WordCount:  len(strings.Fields(text)),
		Indicators: features.Describe(vec, docType),
		TrainedAt:  x.now().UTC(),
	})
	if err != nil {
		return 0, err
	}
	if err := x.coll.Commit(); err != nil {
		logger.Error(ctx, "failed to persist authenticity index", err)
		if rbErr := x.coll.Rollback(mark); rbErr != nil {
			err = errors.Join(err, rbErr)
		}
		return 0, fmt.Errorf("persist authenticity index: %w", err)
	}
	metrics.IndexVectors.WithLabelValues(metrics.IndexAuthenticity).Set(float64(x.coll.Index.Size()))
	logger.Info(ctx, "trained exemplar", "id", id, "doc_type", string(docType))
	return id, nil
}

// Verify extracts the text of path and scores it. The error is reserved for an
// index that cannot be opened; unreadable documents produce a negative verdict.
func (x *Index) Verify(ctx context.Context, path string, docType features.DocType) (Verdict, error) {
	text, err := x.extractor.Extract(ctx, path)
	if err != nil {
		logger.Warn(ctx, "verification extraction failed", "path", path, "error", err.Error())
		v := x.unreadable()
		v.File = path
		return v, nil
	}
	v, err := x.VerifyText(ctx, text, docType)
	v.File = path
	return v, err
}

// VerifyText scores already-extracted text
func (x *Index) VerifyText(ctx context.Context, text string, docType features.DocType) (Verdict, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return x.unreadable(), nil
	}
	if err := x.Initialize(ctx); err != nil {
		return Verdict{}, err
	}

	vec := features.Extract(text, docType)

	x.mu.RLock()
	defer x.mu.RUnlock()

	size := x.coll.Index.Size()
	if size == 0 {
		metrics.AuthenticityVerifications.WithLabelValues("untrained").Inc()
		return Verdict{Threshold: x.opts.Threshold, Reason: ReasonNotTrained}, nil
	}

	start := time.Now()
	hits, err := x.coll.Index.Search(vec, min(x.opts.Neighbors, size))
	metrics.IndexSearchDuration.WithLabelValues(metrics.IndexAuthenticity).Observe(time.Since(start).Seconds())
	if err != nil {
		return Verdict{}, fmt.Errorf("search authenticity index: %w", err)
	}

	var sum float64
	matched := make([]TrainingRecord, 0, len(hits))
	for _, h := range hits {
		sum += float64(h.Distance)
		if rec, ok := x.coll.Get(h.ID); ok {
			matched = append(matched, rec)
		}
	}
	mean := sum / float64(len(hits))
	confidence := 1 / (1 + mean)

	v := Verdict{
		IsAuthentic:      confidence >= x.opts.Threshold,
		Confidence:       confidence,
		AvgDistance:      mean,
		Threshold:        x.opts.Threshold,
		MatchedDocuments: matched,
		Reason:           ReasonSuspect,
	}
	if v.IsAuthentic {
		v.Reason = ReasonAuthentic
		metrics.AuthenticityVerifications.WithLabelValues("authentic").Inc()
	} else {
		metrics.AuthenticityVerifications.WithLabelValues("suspect").Inc()
	}
	return v, nil
}

// TrainAll trains every sample, collecting failures instead of stopping at the first
func (x *Index) TrainAll(ctx context.Context, samples []Sample) BatchSummary {
	sum := BatchSummary{Succeeded: make([]bool, len(samples))}
	for i, s := range samples {
		if _, err := x.Train(ctx, s.Path, s.DocType); err != nil {
			logger.Warn(ctx, "training sample failed", "path", s.Path, "error", err.Error())
			sum.Failed = append(sum.Failed, Failure{Path: s.Path, Error: err.Error()})
			continue
		}
		sum.Succeeded[i] = true
		sum.Trained++
	}
	return sum
}

// VerifyAll verifies samples with up to parallelism concurrent readers.
// Verdicts are returned in input order.
func (x *Index) VerifyAll(ctx context.Context, samples []Sample, parallelism int) ([]Verdict, error) {
	if err := x.Initialize(ctx); err != nil {
		return nil, err
	}
	if parallelism < 1 {
		parallelism = 1
	}

	verdicts := make([]Verdict, len(samples))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i, s := range samples {
		g.Go(func() error {
			v, err := x.Verify(gctx, s.Path, s.DocType)
			if err != nil {
				return err
			}
			verdicts[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return verdicts, nil
}

// Clear drops every exemplar and persists the empty index
func (x *Index) Clear(ctx context.Context) error {
	if err := x.Initialize(ctx); err != nil {
		return err
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.coll.Reset(features.Dimension); err != nil {
		return fmt.Errorf("clear authenticity index: %w", err)
	}
	metrics.IndexVectors.WithLabelValues(metrics.IndexAuthenticity).Set(0)
	return nil
}

func (x *Index) Stats() Stats {
	x.mu.RLock()
	defer x.mu.RUnlock()
	s := Stats{Dimension: features.Dimension, Threshold: x.opts.Threshold}
	if x.coll != nil {
		s.Vectors = x.coll.Index.Size()
		s.Records = x.coll.Meta.Len()
	}
	return s
}

func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.coll == nil {
		return nil
	}
	err := x.coll.Close()
	x.coll = nil
	return err
}

func (x *Index) unreadable() Verdict {
	metrics.AuthenticityVerifications.WithLabelValues("unreadable").Inc()
	return Verdict{Threshold: x.opts.Threshold, Reason: ReasonExtractionFailed}
}
