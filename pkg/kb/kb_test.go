package kb

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitTextOverlap(t *testing.T) {
	t.Parallel()

	chunks := SplitText("abcdefghij", 4, 2)
	require.Equal(t, []string{"abcd", "cdef", "efgh", "ghij"}, chunks)
}

func TestSplitTextShortTail(t *testing.T) {
	t.Parallel()

	chunks := SplitText("abcdefgh", 4, 1)
	require.Equal(t, []string{"abcd", "defg", "gh"}, chunks)
}

func TestSplitTextNoRedundantTail(t *testing.T) {
	t.Parallel()

	// A chunk ending exactly at the text end terminates the walk: a stepped
	// tail here would be a strict suffix of the previous chunk.
	chunks := SplitText("abcdefg", 4, 1)
	require.Equal(t, []string{"abcd", "defg"}, chunks)
}

func TestSplitTextEmpty(t *testing.T) {
	t.Parallel()

	assert.Nil(t, SplitText("", 4, 1))
}

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"https://WWW.Example.com/Docs/":                       "https://example.com/Docs",
		"https://example.com/page#section":                    "https://example.com/page",
		"https://example.com/page?utm_source=x&q=1":           "https://example.com/page?q=1",
		"https://example.com":                                 "https://example.com/",
		"https://example.com/a?fbclid=abc&utm_campaign=promo": "https://example.com/a",
	}
	for raw, want := range cases {
		got, err := NormalizeURL(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	_, err := NormalizeURL("ftp://example.com/file")
	assert.Error(t, err)
}

func TestHasSkippedExtension(t *testing.T) {
	t.Parallel()

	assert.True(t, hasSkippedExtension("https://example.com/logo.png"))
	assert.True(t, hasSkippedExtension("https://example.com/styles.css"))
	assert.False(t, hasSkippedExtension("https://example.com/pricing"))
	assert.False(t, hasSkippedExtension("https://example.com/about.html"))
}

func TestCrawlVisitedOnceAndHostBound(t *testing.T) {
	t.Parallel()

	var fetchesA atomic.Int64
	var externalHit atomic.Bool

	external := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		externalHit.Store(true)
	}))
	defer external.Close()

	mux := http.NewServeMux()
	site := httptest.NewServer(mux)
	defer site.Close()

	longText := func(label string) string {
		out := ""
		for i := 0; i < 30; i++ {
			out += label + " body text for the crawler threshold. "
		}
		return out
	}
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		fetchesA.Add(1)
		fmt.Fprintf(w, `<html><head><title>A</title></head><body><p>%s</p><a href="/b">b</a></body></html>`, longText("a"))
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><head><title>B</title></head><body><p>%s</p><a href="/a">back</a><a href="%s/evil">c</a><a href="/c">c</a></body></html>`, longText("b"), external.URL)
	})
	mux.HandleFunc("/c", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><head><title>C</title></head><body><p>%s</p></body></html>`, longText("c"))
	})

	crawler := NewCrawler(testLogger())
	pages, err := crawler.Crawl(context.Background(), []string{site.URL + "/a"}, CrawlLimits{MaxPages: 10, MinTextChars: 100})
	require.NoError(t, err)

	require.Len(t, pages, 3)
	assert.Equal(t, int64(1), fetchesA.Load(), "page A must be fetched at most once")
	assert.False(t, externalHit.Load(), "external host must never be fetched")
}

func TestCrawlThinPageLinksStillFollowed(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	site := httptest.NewServer(mux)
	defer site.Close()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><a href="/deep">deep</a></body></html>`)
	})
	mux.HandleFunc("/deep", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><head><title>Deep</title></head><body>%s</body></html>`,
			"plenty of real document text repeated enough times to pass the threshold easily. "+
				"plenty of real document text repeated enough times to pass the threshold easily.")
	})

	crawler := NewCrawler(testLogger())
	pages, err := crawler.Crawl(context.Background(), []string{site.URL}, CrawlLimits{MaxPages: 5, MinTextChars: 100})
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "Deep", pages[0].Title)
}

func TestCrawlMaxPages(t *testing.T) {
	t.Parallel()

	var fetches atomic.Int64
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := fetches.Add(1)
		fmt.Fprintf(w, `<html><body><a href="/p%d">next</a></body></html>`, n)
	}))
	defer site.Close()

	crawler := NewCrawler(testLogger())
	_, err := crawler.Crawl(context.Background(), []string{site.URL}, CrawlLimits{MaxPages: 3, MinTextChars: 10_000})
	require.NoError(t, err)
	assert.Equal(t, int64(3), fetches.Load())
}

type fakeEmbedder struct {
	vectors map[string][]float32
	fail    bool
}

func (f *fakeEmbedder) Configured() bool { return true }
func (f *fakeEmbedder) Model() string    { return "fake-embed" }
func (f *fakeEmbedder) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	if f.fail {
		return nil, fmt.Errorf("embed backend down")
	}
	out := make([][]float32, len(inputs))
	for i, input := range inputs {
		if v, ok := f.vectors[input]; ok {
			out[i] = append([]float32(nil), v...)
			continue
		}
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

type notConfiguredEmbedder struct{}

func (notConfiguredEmbedder) Configured() bool { return false }
func (notConfiguredEmbedder) Model() string    { return "" }
func (notConfiguredEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, fmt.Errorf("missing api key")
}

func unitIndex() *Index {
	chunks := []Chunk{
		{ID: "1", URL: "https://example.com/a", Title: "A", Text: "alpha", Embedding: []float32{1, 0, 0}},
		{ID: "2", URL: "https://example.com/b", Title: "B", Text: "beta", Embedding: []float32{0, 1, 0}},
		{ID: "3", URL: "https://example.com/c", Title: "C", Text: "gamma", Embedding: []float32{0.6, 0.8, 0}},
	}
	return &Index{CreatedAt: time.Now(), EmbeddingModel: "fake-embed", ChunkSize: 100, ChunkOverlap: 10, Chunks: chunks}
}

func TestSearchScoresAreCosine(t *testing.T) {
	t.Parallel()

	embedder := &fakeEmbedder{vectors: map[string][]float32{"q": {2, 0, 0}}} // normalized to (1,0,0)
	res := Search(context.Background(), unitIndex(), embedder, "q", 10, -1)
	require.True(t, res.OK)
	require.Len(t, res.Matches, 3)

	assert.Equal(t, "A", res.Matches[0].Title)
	assert.InDelta(t, 1.0, res.Matches[0].Score, 1e-6)
	assert.Equal(t, "C", res.Matches[1].Title)
	assert.InDelta(t, 0.6, res.Matches[1].Score, 1e-6)
	assert.Equal(t, "B", res.Matches[2].Title)
	assert.InDelta(t, 0.0, res.Matches[2].Score, 1e-6)
}

func TestSearchMinScoreAndTopK(t *testing.T) {
	t.Parallel()

	embedder := &fakeEmbedder{vectors: map[string][]float32{"q": {1, 0, 0}}}
	res := Search(context.Background(), unitIndex(), embedder, "q", 1, 0.5)
	require.True(t, res.OK)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, "A", res.Matches[0].Title)
}

func TestSearchEmptyResultIsSuccess(t *testing.T) {
	t.Parallel()

	embedder := &fakeEmbedder{vectors: map[string][]float32{"q": {0, 0, 1}}}
	res := Search(context.Background(), unitIndex(), embedder, "q", 5, 0.9)
	require.True(t, res.OK)
	assert.Empty(t, res.Matches)
	assert.Empty(t, res.Reason)
}

func TestSearchFailureReasons(t *testing.T) {
	t.Parallel()

	embedder := &fakeEmbedder{}
	assert.Equal(t, ReasonNotReady, Search(context.Background(), nil, embedder, "q", 5, 0).Reason)
	assert.Equal(t, ReasonEmptyQuery, Search(context.Background(), unitIndex(), embedder, "   ", 5, 0).Reason)
	assert.Equal(t, ReasonMissingAPIKey, Search(context.Background(), unitIndex(), notConfiguredEmbedder{}, "q", 5, 0).Reason)
	assert.Equal(t, ReasonEmbedFailed, Search(context.Background(), unitIndex(), &fakeEmbedder{fail: true}, "q", 5, 0).Reason)
}

func TestSearchTiesKeepChunkOrder(t *testing.T) {
	t.Parallel()

	idx := &Index{Chunks: []Chunk{
		{ID: "first", Title: "First", Embedding: []float32{1, 0}},
		{ID: "second", Title: "Second", Embedding: []float32{1, 0}},
		{ID: "third", Title: "Third", Embedding: []float32{1, 0}},
	}}
	embedder := &fakeEmbedder{vectors: map[string][]float32{"q": {1, 0}}}
	res := Search(context.Background(), idx, embedder, "q", 3, 0.5)
	require.True(t, res.OK)
	require.Len(t, res.Matches, 3)
	assert.Equal(t, []string{"First", "Second", "Third"},
		[]string{res.Matches[0].Title, res.Matches[1].Title, res.Matches[2].Title})
}

func TestNormalizeVector(t *testing.T) {
	t.Parallel()

	v := []float32{3, 4}
	normalizeVector(v)
	assert.InDelta(t, 1.0, math.Sqrt(float64(v[0]*v[0]+v[1]*v[1])), 1e-6)

	zero := []float32{0, 0}
	normalizeVector(zero)
	assert.Equal(t, []float32{0, 0}, zero)
}

func TestSaveAndLoadIndexRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "kb", "index.json")
	idx := unitIndex()
	require.NoError(t, SaveIndex(path, idx))

	loaded, err := LoadIndex(path)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, idx.EmbeddingModel, loaded.EmbeddingModel)
	assert.Len(t, loaded.Chunks, 3)
}

func TestLoadIndexAbsent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	loaded, err := LoadIndex(filepath.Join(dir, "missing.json"))
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestLoadIndexStructurallyInvalid(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	garbage := filepath.Join(dir, "garbage.json")
	require.NoError(t, writeFile(garbage, "{not json"))
	loaded, err := LoadIndex(garbage)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	noChunks := filepath.Join(dir, "nochunks.json")
	require.NoError(t, writeFile(noChunks, `{"embedding_model":"m"}`))
	loaded, err = LoadIndex(noChunks)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestStorePublishAndSnapshot(t *testing.T) {
	t.Parallel()

	store := NewStore(filepath.Join(t.TempDir(), "index.json"))
	require.NoError(t, store.Reload())
	assert.Nil(t, store.Snapshot())

	idx := unitIndex()
	store.Publish(idx)
	assert.Same(t, idx, store.Snapshot())

	replacement := unitIndex()
	store.Publish(replacement)
	assert.Same(t, replacement, store.Snapshot())
	// Old snapshot remains usable by readers that already hold it.
	assert.Len(t, idx.Chunks, 3)
}

func TestIngestBuildsNormalizedIndex(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	site := httptest.NewServer(mux)
	defer site.Close()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		body := ""
		for i := 0; i < 40; i++ {
			body += "useful knowledge base content about hours pricing and service areas. "
		}
		fmt.Fprintf(w, `<html><head><title>Home</title></head><body><p>%s</p></body></html>`, body)
	})

	embedder := &fakeEmbedder{}
	idx, err := Ingest(context.Background(), NewCrawler(testLogger()), embedder, []string{site.URL}, IngestOptions{
		ChunkSize:    500,
		ChunkOverlap: 50,
		Limits:       CrawlLimits{MaxPages: 3, MinTextChars: 100},
	}, testLogger())
	require.NoError(t, err)
	require.NotEmpty(t, idx.Chunks)
	assert.Equal(t, "fake-embed", idx.EmbeddingModel)
	assert.Equal(t, 500, idx.ChunkSize)

	for _, chunk := range idx.Chunks {
		require.NotEmpty(t, chunk.ID)
		var norm float64
		for _, x := range chunk.Embedding {
			norm += float64(x) * float64(x)
		}
		assert.InDelta(t, 1.0, norm, 1e-6)
	}
}
