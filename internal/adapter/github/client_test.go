package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixture wires an httptest server with scripted GitHub API responses.
type fixture struct {
	mux    *http.ServeMux
	server *httptest.Server
	client *Client
	slept  []time.Duration

	remaining int
	reset     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{mux: http.NewServeMux(), remaining: 5000, reset: time.Now().Add(time.Hour)}
	f.mux.HandleFunc("/rate_limit", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(f.remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(f.reset.Unix(), 10))
		fmt.Fprint(w, `{}`)
	})
	f.server = httptest.NewServer(f.mux)
	t.Cleanup(f.server.Close)

	f.client = NewClient(f.server.URL, "test-token")
	f.client.sleep = func(d time.Duration) { f.slept = append(f.slept, d) }
	return f
}

func b64(code string) string {
	return base64.StdEncoding.EncodeToString([]byte(code))
}

func TestFetchFilesHappyPath(t *testing.T) {
	f := newFixture(t)

	f.mux.HandleFunc("/repos/acme/widgets/commits", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "dev@example.com", r.URL.Query().Get("author"))
		assert.Equal(t, "100", r.URL.Query().Get("per_page"))
		assert.NotEmpty(t, r.URL.Query().Get("since"))
		assert.NotEmpty(t, r.URL.Query().Get("until"))
		fmt.Fprint(w, `[
			{"sha": "abc123", "commit": {"author": {"email": "dev@example.com", "date": "2024-03-01T10:00:00Z"}}},
			{"sha": "def456", "commit": {"author": {"email": "other@example.com", "date": "2024-03-02T10:00:00Z"}}}
		]`)
	})
	f.mux.HandleFunc("/repos/acme/widgets/commits/abc123", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"files": [
			{"filename": "main.go"},
			{"filename": "README.md"},
			{"filename": "assets/logo.png"}
		]}`)
	})
	f.mux.HandleFunc("/repos/acme/widgets/contents/main.go", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "abc123", r.URL.Query().Get("ref"))
		fmt.Fprintf(w, `{"content": %q}`, b64("package main\n"))
	})

	start, _ := time.Parse("2006-01-02", "2024-03-01")
	end, _ := time.Parse("2006-01-02", "2024-03-31")
	records, err := f.client.FetchFiles(context.Background(),
		"https://github.com/acme/widgets", start, end, "dev@example.com")
	require.NoError(t, err)

	// Only the allow-listed file from the matching author's commit survives.
	require.Len(t, records, 1)
	assert.Equal(t, "main.go", records[0].Filename)
	assert.Equal(t, "dev@example.com", records[0].AuthorEmail)
	assert.Equal(t, "2024-03-01T10:00:00Z", records[0].CommitDate)
	assert.Equal(t, "package main\n", records[0].Code)
	assert.Empty(t, f.slept)
}

func TestFetchFilesWaitsWhenQuotaLow(t *testing.T) {
	f := newFixture(t)
	f.remaining = 3
	f.reset = time.Now().Add(5 * time.Second)

	f.mux.HandleFunc("/repos/acme/widgets/commits", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `[]`)
	})

	_, err := f.client.FetchFiles(context.Background(),
		"https://github.com/acme/widgets", time.Now().Add(-time.Hour), time.Now(), "dev@example.com")
	require.NoError(t, err)

	// reset in ~5s plus the 10s margin.
	require.Len(t, f.slept, 1)
	assert.InDelta(t, 15*time.Second, f.slept[0], float64(2*time.Second))
}

func TestFetchFilesCommitListFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.mux.HandleFunc("/repos/acme/widgets/commits", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := f.client.FetchFiles(context.Background(),
		"https://github.com/acme/widgets", time.Now().Add(-time.Hour), time.Now(), "dev@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list commits")
}

func TestFetchFilesSkipsFailingContentFetch(t *testing.T) {
	f := newFixture(t)
	f.mux.HandleFunc("/repos/acme/widgets/commits", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `[{"sha": "abc123", "commit": {"author": {"email": "dev@example.com", "date": "2024-03-01T10:00:00Z"}}}]`)
	})
	f.mux.HandleFunc("/repos/acme/widgets/commits/abc123", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"files": [{"filename": "broken.py"}, {"filename": "fine.py"}]}`)
	})
	f.mux.HandleFunc("/repos/acme/widgets/contents/broken.py", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusInternalServerError)
	})
	f.mux.HandleFunc("/repos/acme/widgets/contents/fine.py", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `{"content": %q}`, b64("print('ok')\n"))
	})

	records, err := f.client.FetchFiles(context.Background(),
		"https://github.com/acme/widgets", time.Now().Add(-time.Hour), time.Now(), "dev@example.com")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "fine.py", records[0].Filename)
}

func TestSplitRepoURL(t *testing.T) {
	owner, repo, err := splitRepoURL("https://github.com/acme/widgets")
	require.NoError(t, err)
	assert.Equal(t, "acme", owner)
	assert.Equal(t, "widgets", repo)

	owner, repo, err = splitRepoURL("https://github.com/acme/widgets.git")
	require.NoError(t, err)
	assert.Equal(t, "acme", owner)
	assert.Equal(t, "widgets", repo)

	_, _, err = splitRepoURL("https://gitlab.com/acme/widgets")
	assert.Error(t, err)

	_, _, err = splitRepoURL("https://github.com/acme")
	assert.Error(t, err)
}

func TestAllowedExtension(t *testing.T) {
	assert.True(t, allowedExtension("main.go"))
	assert.True(t, allowedExtension("src/App.TSX"))
	assert.False(t, allowedExtension("README.md"))
	assert.False(t, allowedExtension("Makefile"))
	assert.False(t, allowedExtension("logo.png"))
}

func TestDecodeBlob(t *testing.T) {
	// GitHub wraps base64 content with embedded newlines.
	wrapped := b64("hello world")[:6] + "\n" + b64("hello world")[6:]
	assert.Equal(t, "hello world", decodeBlob(wrapped))

	assert.Equal(t, "error decoding file content", decodeBlob("!!not base64!!"))

	invalid := base64.StdEncoding.EncodeToString([]byte{0xff, 0xfe, 'h', 'i'})
	decoded := decodeBlob(invalid)
	assert.Contains(t, decoded, "hi")
}
