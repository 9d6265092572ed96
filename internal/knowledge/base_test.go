package knowledge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"docsentry/internal/vectorstore"
)

const testDim = 8

type fakeEmbedder struct {
	dim   int
	mu    sync.Mutex
	calls int
	fail  func(text string) error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.fail != nil {
		if err := f.fail(text); err != nil {
			return nil, err
		}
	}
	v := make([]float32, f.dim)
	for i, r := range text {
		v[i%f.dim] += float32(r%31) / 31
	}
	return v, nil
}

func (f *fakeEmbedder) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeGenerator struct {
	mu      sync.Mutex
	prompts []string
	reply   string
	err     error
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

func testOptions(dir string) Options {
	return Options{
		Dimension:    testDim,
		ChunkWords:   500,
		OverlapWords: 50,
		TopK:         3,
		SnippetChars: 200,
		Timeout:      time.Second,
		VectorsPath:  filepath.Join(dir, "vectors.bin"),
		MetadataPath: filepath.Join(dir, "metadata.db"),
	}
}

func newBase(t *testing.T, opts Options, emb *fakeEmbedder, gen *fakeGenerator) *Base {
	t.Helper()
	b, err := New(opts, emb, gen)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := b.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestAddDocument_PANRoundTrip(t *testing.T) {
	emb := &fakeEmbedder{dim: testDim}
	gen := &fakeGenerator{reply: "AAAAA1234A"}
	b := newBase(t, testOptions(t.TempDir()), emb, gen)
	ctx := context.Background()

	res := b.AddDocument(ctx, "AAAAA1234A is the PAN", "pan.txt")
	if !res.OK || res.Chunks != 1 || res.Failed != 0 {
		t.Fatalf("AddDocument = %+v", res)
	}
	if res.Message != "Successfully learned 1 chunks from pan.txt." {
		t.Errorf("message = %q", res.Message)
	}
	if s := b.Stats(); s.Vectors != 1 || s.Records != 1 {
		t.Fatalf("Stats = %+v", s)
	}

	ans, err := b.Query(ctx, "AAAAA1234A is the PAN", 3)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if ans.Text != "AAAAA1234A" {
		t.Errorf("answer = %q", ans.Text)
	}
	if len(ans.Sources) != 1 || ans.Sources[0].ID != 0 || ans.Sources[0].Distance != 0 {
		t.Fatalf("sources = %+v", ans.Sources)
	}
	rec := ans.Sources[0].Record
	if rec.Filename != "pan.txt" || rec.Content != "AAAAA1234A is the PAN" || rec.DocumentID == "" {
		t.Errorf("record = %+v", rec)
	}
}

func TestQuery_EmptyBaseSkipsEmbedding(t *testing.T) {
	emb := &fakeEmbedder{dim: testDim}
	b := newBase(t, testOptions(t.TempDir()), emb, &fakeGenerator{})

	ans, err := b.Query(context.Background(), "What is the PAN?", 3)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if ans.Text != MsgNothingLearned {
		t.Fatalf("answer = %q", ans.Text)
	}
	if emb.Calls() != 0 {
		t.Fatalf("embedder called %d times", emb.Calls())
	}
}

func TestQuery_EmptyQuestion(t *testing.T) {
	b := newBase(t, testOptions(t.TempDir()), &fakeEmbedder{dim: testDim}, &fakeGenerator{})
	if _, err := b.Query(context.Background(), "  ", 3); !errors.Is(err, ErrEmptyQuestion) {
		t.Fatalf("err = %v, want ErrEmptyQuestion", err)
	}
}

func TestQuery_PromptContext(t *testing.T) {
	gen := &fakeGenerator{reply: "ok"}
	opts := testOptions(t.TempDir())
	opts.ChunkWords, opts.OverlapWords = 3, 0
	b := newBase(t, opts, &fakeEmbedder{dim: testDim}, gen)
	ctx := context.Background()

	b.AddDocument(ctx, "alpha beta gamma delta epsilon zeta", "greek.txt")
	ans, err := b.Query(ctx, "alpha beta gamma", 2)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(ans.Sources) != 2 {
		t.Fatalf("got %d sources, want 2", len(ans.Sources))
	}
	if ans.Sources[0].Record.Content != "alpha beta gamma" {
		t.Errorf("nearest = %q", ans.Sources[0].Record.Content)
	}

	prompt := gen.prompts[0]
	wantContext := ans.Sources[0].Record.Content + ContextDelimiter + ans.Sources[1].Record.Content + ContextDelimiter
	if !strings.Contains(prompt, wantContext) {
		t.Errorf("prompt missing ordered context %q:\n%s", wantContext, prompt)
	}
	if !strings.Contains(prompt, "User Question: alpha beta gamma") {
		t.Errorf("prompt missing question:\n%s", prompt)
	}
}

func TestAddDocument_PartialSuccess(t *testing.T) {
	emb := &fakeEmbedder{dim: testDim, fail: func(text string) error {
		if strings.Contains(text, "broken") {
			return errors.New("model unavailable")
		}
		return nil
	}}
	opts := testOptions(t.TempDir())
	opts.ChunkWords, opts.OverlapWords = 3, 0
	b := newBase(t, opts, emb, &fakeGenerator{})

	res := b.AddDocument(context.Background(), "one two three broken five six seven", "mixed.txt")
	if !res.OK || res.Chunks != 2 || res.Failed != 1 {
		t.Fatalf("AddDocument = %+v, want 2 stored and 1 failed", res)
	}
	if b.Stats().Vectors != 2 {
		t.Fatalf("vectors = %d", b.Stats().Vectors)
	}
}

func TestAddDocument_AllChunksFail(t *testing.T) {
	emb := &fakeEmbedder{dim: testDim, fail: func(string) error { return errors.New("connection refused") }}
	b := newBase(t, testOptions(t.TempDir()), emb, &fakeGenerator{})

	res := b.AddDocument(context.Background(), "some text", "x.txt")
	if res.OK {
		t.Fatal("AddDocument succeeded with every embedding failing")
	}
	if res.Message != "Failed to learn content. Error: connection refused" {
		t.Errorf("message = %q", res.Message)
	}
	if b.Stats().Vectors != 0 {
		t.Fatal("vectors appended on total failure")
	}
	if idx, err := vectorstore.Load(b.opts.VectorsPath); err != nil || idx.Size() != 0 {
		t.Errorf("persisted vectors after total failure: %v", err)
	}
}

func TestAddDocument_Blank(t *testing.T) {
	emb := &fakeEmbedder{dim: testDim}
	b := newBase(t, testOptions(t.TempDir()), emb, &fakeGenerator{})

	res := b.AddDocument(context.Background(), " \n\t", "blank.txt")
	if res.OK || res.Message != MsgExtractionFailed || !errors.Is(res.Err, ErrNoText) {
		t.Fatalf("AddDocument = %+v", res)
	}
	if emb.Calls() != 0 {
		t.Fatalf("embedder called for blank text")
	}
}

func TestAddDocument_DimensionMismatch(t *testing.T) {
	b := newBase(t, testOptions(t.TempDir()), &fakeEmbedder{dim: testDim + 1}, &fakeGenerator{})
	res := b.AddDocument(context.Background(), "hello world", "x.txt")
	if res.OK || !errors.Is(res.Err, vectorstore.ErrDimensionMismatch) {
		t.Fatalf("AddDocument = %+v, want ErrDimensionMismatch", res)
	}
}

func TestQuery_CollaboratorFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("generation", func(t *testing.T) {
		gen := &fakeGenerator{err: errors.New("generation failed")}
		b := newBase(t, testOptions(t.TempDir()), &fakeEmbedder{dim: testDim}, gen)
		b.AddDocument(ctx, "some facts", "f.txt")
		ans, err := b.Query(ctx, "facts?", 3)
		if err != nil || ans.Text != MsgApology || ans.Err == nil {
			t.Fatalf("Query = %+v, %v", ans, err)
		}
	})

	t.Run("embedding timeout", func(t *testing.T) {
		emb := &fakeEmbedder{dim: testDim}
		opts := testOptions(t.TempDir())
		opts.Timeout = 20 * time.Millisecond
		b := newBase(t, opts, emb, &fakeGenerator{})
		b.AddDocument(ctx, "some facts", "f.txt")

		emb.fail = func(string) error {
			time.Sleep(50 * time.Millisecond)
			return context.DeadlineExceeded
		}
		ans, err := b.Query(ctx, "facts?", 3)
		if err != nil || ans.Text != MsgApology {
			t.Fatalf("Query = %+v, %v", ans, err)
		}
	})
}

func TestClear_Persists(t *testing.T) {
	dir := t.TempDir()
	opts := testOptions(dir)
	emb := &fakeEmbedder{dim: testDim}
	ctx := context.Background()

	b, err := New(opts, emb, &fakeGenerator{})
	if err != nil {
		t.Fatal(err)
	}
	b.AddDocument(ctx, "remember this", "r.txt")
	if err := b.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if b.Stats().Vectors != 0 {
		t.Fatalf("vectors after clear = %d", b.Stats().Vectors)
	}
	b.Close()

	idx, err := vectorstore.Load(opts.VectorsPath)
	if err != nil {
		t.Fatalf("Load after clear: %v", err)
	}
	if idx.Size() != 0 {
		t.Fatalf("persisted size = %d, want 0", idx.Size())
	}
}

func TestAddDocument_PersistFailureRollsBack(t *testing.T) {
	dir := t.TempDir()
	opts := testOptions(dir)
	vecDir := filepath.Join(dir, "vectors")
	opts.VectorsPath = filepath.Join(vecDir, "vectors.bin")
	gen := &fakeGenerator{reply: "ok"}
	b := newBase(t, opts, &fakeEmbedder{dim: testDim}, gen)
	ctx := context.Background()

	// a plain file where the vector directory belongs makes the save fail
	if err := os.RemoveAll(vecDir); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(vecDir, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if res := b.AddDocument(ctx, "secret failed document", "failed.txt"); res.OK || res.Err == nil {
		t.Fatalf("AddDocument = %+v, want failure", res)
	}
	if s := b.Stats(); s.Vectors != 0 || s.Records != 0 {
		t.Fatalf("stats after failed persist = %+v", s)
	}

	if err := os.Remove(vecDir); err != nil {
		t.Fatal(err)
	}
	if res := b.AddDocument(ctx, "bronze package oil change", "ok.txt"); !res.OK {
		t.Fatalf("AddDocument = %+v", res)
	}
	if s := b.Stats(); s.Vectors != 1 || s.Records != 1 {
		t.Fatalf("stats = %+v, want one vector and one record", s)
	}

	ans, err := b.Query(ctx, "secret failed document", 5)
	if err != nil {
		t.Fatal(err)
	}
	for _, src := range ans.Sources {
		if src.Record.Filename == "failed.txt" {
			t.Fatalf("rolled back document retrieved: %+v", src)
		}
	}
	if len(ans.Sources) != 1 || ans.Sources[0].Record.Filename != "ok.txt" {
		t.Fatalf("sources = %+v", ans.Sources)
	}
}

func TestInitialize_Reload(t *testing.T) {
	dir := t.TempDir()
	opts := testOptions(dir)
	ctx := context.Background()

	b, _ := New(opts, &fakeEmbedder{dim: testDim}, &fakeGenerator{})
	b.AddDocument(ctx, "persisted words", "p.txt")
	b.Close()

	b2 := newBase(t, opts, &fakeEmbedder{dim: testDim}, &fakeGenerator{reply: "yes"})
	if s := b2.Stats(); s.Vectors != 1 || s.Records != 1 {
		t.Fatalf("reloaded stats = %+v", s)
	}
	// second call is a no-op
	if err := b2.Initialize(ctx); err != nil || b2.Stats().Vectors != 1 {
		t.Fatalf("re-Initialize changed state: %v", err)
	}
}

func TestInitialize_Corrupt(t *testing.T) {
	dir := t.TempDir()
	opts := testOptions(dir)

	b, _ := New(opts, &fakeEmbedder{dim: testDim}, &fakeGenerator{})
	b.AddDocument(context.Background(), "persisted words", "p.txt")
	b.Close()
	if err := os.WriteFile(opts.VectorsPath, []byte("DSVEC001 but truncated"), 0o644); err != nil {
		t.Fatal(err)
	}

	b2, _ := New(opts, &fakeEmbedder{dim: testDim}, &fakeGenerator{})
	defer b2.Close()
	if err := b2.Initialize(context.Background()); !errors.Is(err, vectorstore.ErrCorruptIndex) {
		t.Fatalf("err = %v, want ErrCorruptIndex", err)
	}
}

func TestAddFile_ExtractionFailure(t *testing.T) {
	b := newBase(t, testOptions(t.TempDir()), &fakeEmbedder{dim: testDim}, &fakeGenerator{})
	res := b.AddFile(context.Background(), failingExtractor{}, "/nowhere/scan.png", "")
	if res.OK || res.Message != MsgExtractionFailed {
		t.Fatalf("AddFile = %+v", res)
	}
	if b.Stats().Vectors != 0 {
		t.Fatal("state changed on extraction failure")
	}
}

func TestConcurrentQueriesAndWrites(t *testing.T) {
	b := newBase(t, testOptions(t.TempDir()), &fakeEmbedder{dim: testDim}, &fakeGenerator{reply: "ok"})
	ctx := context.Background()
	b.AddDocument(ctx, "seed document", "seed.txt")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := b.Query(ctx, "seed", 2); err != nil {
				t.Errorf("Query failed: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if res := b.AddDocument(ctx, "more words here", "more.txt"); !res.OK {
				t.Errorf("AddDocument failed: %+v", res)
			}
		}()
	}
	wg.Wait()

	if got := b.Stats().Vectors; got != 9 {
		t.Fatalf("vectors = %d, want 9", got)
	}
}

type failingExtractor struct{}

func (failingExtractor) Extract(context.Context, string) (string, error) {
	return "", errors.New("tesseract: exit status 1")
}
