package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/arturoeanton/go-commit-auditor/internal/domain"
)

// Extensions eligible for analysis. Everything else is silently skipped.
var allowedExtensions = map[string]bool{
	".py": true, ".js": true, ".ts": true, ".tsx": true,
	".html": true, ".css": true, ".java": true, ".cpp": true,
	".c": true, ".cs": true, ".go": true, ".php": true,
	".rb": true, ".swift": true, ".kt": true, ".scala": true,
}

// Remaining-quota threshold below which the client waits for the reset.
const rateLimitLowWater = 10

// Extra wait beyond the server-reported reset timestamp.
const rateLimitMargin = 10 * time.Second

const commitsPerPage = 100

// Client implements port.SourceProvider against the GitHub REST v3 API.
// Before listing commits it checks remaining-quota telemetry and, when the
// quota is nearly exhausted, sleeps until the reported reset time.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	sleep      func(time.Duration) // replaced in tests
}

// NewClient creates a GitHub API client. baseURL is normally
// "https://api.github.com"; token may be empty for unauthenticated access.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		sleep:      time.Sleep,
	}
}

// apiCommit is the subset of the commit-list response we read.
type apiCommit struct {
	SHA    string `json:"sha"`
	Commit struct {
		Author struct {
			Email string `json:"email"`
			Date  string `json:"date"`
		} `json:"author"`
	} `json:"commit"`
}

// apiCommitDetail is the subset of the single-commit response we read.
type apiCommitDetail struct {
	Files []struct {
		Filename string `json:"filename"`
	} `json:"files"`
}

// apiContent is the subset of the contents response we read.
type apiContent struct {
	Content string `json:"content"`
}

// FetchFiles lists commits authored by authorEmail within [start, end],
// fetches each commit's changed files, and returns the decoded contents of
// every allow-listed file at that commit.
//
// A failure to fetch a single commit or file is logged and skipped; only a
// failure of the commit-list call itself is fatal.
func (c *Client) FetchFiles(ctx context.Context, repoURL string, start, end time.Time, authorEmail string) ([]domain.FileRecord, error) {
	owner, repo, err := splitRepoURL(repoURL)
	if err != nil {
		return nil, err
	}

	c.waitForQuota(ctx)

	params := url.Values{}
	params.Set("since", start.UTC().Format(time.RFC3339))
	params.Set("until", end.UTC().Format(time.RFC3339))
	params.Set("author", authorEmail)
	params.Set("per_page", strconv.Itoa(commitsPerPage))

	var commits []apiCommit
	commitsPath := fmt.Sprintf("/repos/%s/%s/commits?%s", owner, repo, params.Encode())
	if err := c.getJSON(ctx, commitsPath, &commits); err != nil {
		return nil, fmt.Errorf("list commits for %s/%s: %w", owner, repo, err)
	}

	var records []domain.FileRecord
	for _, commit := range commits {
		if commit.SHA == "" {
			continue
		}
		// The upstream author filter is not fully trusted; re-check.
		if commit.Commit.Author.Email != authorEmail {
			continue
		}

		var detail apiCommitDetail
		detailPath := fmt.Sprintf("/repos/%s/%s/commits/%s", owner, repo, commit.SHA)
		if err := c.getJSON(ctx, detailPath, &detail); err != nil {
			slog.Warn("skipping commit: detail fetch failed", "sha", commit.SHA, "error", err)
			continue
		}

		for _, file := range detail.Files {
			if file.Filename == "" || !allowedExtension(file.Filename) {
				continue
			}

			var content apiContent
			contentPath := fmt.Sprintf("/repos/%s/%s/contents/%s?ref=%s",
				owner, repo, escapePath(file.Filename), commit.SHA)
			if err := c.getJSON(ctx, contentPath, &content); err != nil {
				slog.Warn("skipping file: content fetch failed",
					"file", file.Filename, "sha", commit.SHA, "error", err)
				continue
			}
			if content.Content == "" {
				continue
			}

			records = append(records, domain.FileRecord{
				Filename:    file.Filename,
				CommitDate:  commit.Commit.Author.Date,
				AuthorEmail: authorEmail,
				Code:        decodeBlob(content.Content),
			})
		}
	}

	return records, nil
}

// waitForQuota queries the rate-limit telemetry endpoint and, when remaining
// capacity is below the low-water mark, blocks until the reported reset time
// plus a safety margin. Telemetry failure is logged and ignored.
func (c *Client) waitForQuota(ctx context.Context) {
	resp, err := c.get(ctx, "/rate_limit")
	if err != nil {
		slog.Warn("rate limit check failed", "error", err)
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	remaining, err := strconv.Atoi(resp.Header.Get("X-RateLimit-Remaining"))
	if err != nil {
		slog.Warn("rate limit check: missing remaining header")
		return
	}
	if remaining >= rateLimitLowWater {
		return
	}

	resetEpoch, err := strconv.ParseInt(resp.Header.Get("X-RateLimit-Reset"), 10, 64)
	if err != nil {
		slog.Warn("rate limit check: missing reset header")
		return
	}

	wait := time.Until(time.Unix(resetEpoch, 0)) + rateLimitMargin
	if wait > 0 {
		slog.Warn("approaching GitHub rate limit, waiting for reset",
			"remaining", remaining, "wait", wait.Round(time.Second))
		c.sleep(wait)
	}
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}
	return c.httpClient.Do(req)
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	resp, err := c.get(ctx, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("github API error (%d): %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// splitRepoURL extracts owner and repo from https://github.com/<owner>/<repo>[...].
func splitRepoURL(repoURL string) (string, string, error) {
	rest, ok := strings.CutPrefix(repoURL, "https://github.com/")
	if !ok {
		return "", "", fmt.Errorf("unsupported repository URL: %s", repoURL)
	}
	parts := strings.Split(rest, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("unsupported repository URL: %s", repoURL)
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), nil
}

func allowedExtension(filename string) bool {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 {
		return false
	}
	return allowedExtensions[strings.ToLower(filename[idx:])]
}

// decodeBlob base64-decodes GitHub blob content (which contains embedded
// newlines) and replaces invalid UTF-8 bytes with the replacement rune.
func decodeBlob(content string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' {
			return -1
		}
		return r
	}, content)

	raw, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		return "error decoding file content"
	}
	return strings.ToValidUTF8(string(raw), string(utf8.RuneError))
}

// escapePath URL-escapes each segment of a repository file path.
func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
