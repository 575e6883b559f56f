// Package github discovers and reads public repositories through the GitHub REST API.
package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/muhammadolammi/proofbriefworker/internal/logger"
	"github.com/muhammadolammi/proofbriefworker/internal/retry"
)

const (
	DefaultBaseURL = "https://api.github.com"
	apiVersion     = "2022-11-28"
	userAgent      = "proofbrief-worker"
	maxBodyBytes   = 8 << 20

	defaultCallTimeout = 8 * time.Second
	treeCallTimeout    = 12 * time.Second
	fileCallTimeout    = 10 * time.Second
)

// TokenSource supplies the API token, typically a secrets.Lazy scoped to one run.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StatusError is a non-success response other than a rate limit.
type StatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("github %s: bad status %d: %s", e.URL, e.StatusCode, logger.TruncateForLog(e.Body, 120))
}

// RateLimitError is a 403/429 whose body reports an exhausted rate limit.
type RateLimitError struct {
	URL   string
	Reset time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("github %s: rate limited until %s", e.URL, e.Reset.Format(time.RFC3339))
}

type Repo struct {
	Name          string    `json:"name"`
	FullName      string    `json:"full_name"`
	HTMLURL       string    `json:"html_url"`
	Stars         int       `json:"stargazers_count"`
	DefaultBranch string    `json:"default_branch"`
	PushedAt      time.Time `json:"pushed_at"`
	Language      string    `json:"language"`
	Fork          bool      `json:"fork"`
}

type TreeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

type treeResponse struct {
	Tree      []TreeEntry `json:"tree"`
	Truncated bool        `json:"truncated"`
}

type contentResponse struct {
	Type     string `json:"type"`
	Encoding string `json:"encoding"`
	Content  string `json:"content"`
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenSource
	logger     *zap.Logger

	Policy retry.Policy
	Now    func() time.Time
}

func NewClient(httpClient *http.Client, baseURL string, tokens TokenSource, log *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		logger:     logger.OrNop(log),
		Policy:     retry.Default(),
		Now:        time.Now,
	}
	return c
}

// ListRepos returns one page of a user's public repositories, most recently pushed first.
func (c *Client) ListRepos(ctx context.Context, user string, page, perPage int) ([]Repo, error) {
	q := url.Values{}
	q.Set("sort", "pushed")
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("page", strconv.Itoa(page))

	var repos []Repo
	endpoint := "/users/" + url.PathEscape(user) + "/repos?" + q.Encode()
	if err := c.getJSON(ctx, endpoint, defaultCallTimeout, &repos); err != nil {
		return nil, err
	}
	return repos, nil
}

// DefaultBranch falls back to "main" when the repository does not report one.
func (c *Client) DefaultBranch(ctx context.Context, owner, repo string) (string, error) {
	var r Repo
	if err := c.getJSON(ctx, repoPath(owner, repo), defaultCallTimeout, &r); err != nil {
		return "", err
	}
	if r.DefaultBranch == "" {
		return "main", nil
	}
	return r.DefaultBranch, nil
}

// Tree lists every entry of the repository at ref.
func (c *Client) Tree(ctx context.Context, owner, repo, ref string) ([]TreeEntry, error) {
	var tree treeResponse
	endpoint := repoPath(owner, repo) + "/git/trees/" + url.PathEscape(ref) + "?recursive=1"
	if err := c.getJSON(ctx, endpoint, treeCallTimeout, &tree); err != nil {
		return nil, err
	}
	if tree.Truncated {
		c.logger.Warn("git tree is truncated", zap.String("repo", owner+"/"+repo), zap.String("ref", ref))
	}
	return tree.Tree, nil
}

// Readme returns the repository readme as resolved by the dedicated endpoint.
func (c *Client) Readme(ctx context.Context, owner, repo string) (string, error) {
	body, err := c.content(ctx, repoPath(owner, repo)+"/readme", defaultCallTimeout)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// FileContent returns the decoded bytes of a file at ref.
func (c *Client) FileContent(ctx context.Context, owner, repo, filePath, ref string) ([]byte, error) {
	segments := strings.Split(strings.Trim(filePath, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	endpoint := repoPath(owner, repo) + "/contents/" + strings.Join(segments, "/") + "?ref=" + url.QueryEscape(ref)
	return c.content(ctx, endpoint, fileCallTimeout)
}

func (c *Client) content(ctx context.Context, endpoint string, timeout time.Duration) ([]byte, error) {
	var payload contentResponse
	if err := c.getJSON(ctx, endpoint, timeout, &payload); err != nil {
		return nil, err
	}
	if payload.Type != "file" || payload.Encoding != "base64" || payload.Content == "" {
		return nil, fmt.Errorf("github %s: not a base64 file", endpoint)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(payload.Content, "\n", ""))
	if err != nil {
		return nil, fmt.Errorf("github %s: decode content: %w", endpoint, err)
	}
	return raw, nil
}

func repoPath(owner, repo string) string {
	return "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(repo)
}

func (c *Client) getJSON(ctx context.Context, endpoint string, timeout time.Duration, target any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("github token: %w", err)
	}

	policy := c.Policy
	policy.Classify = c.classify

	_, err = retry.Do(ctx, policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.fetch(ctx, endpoint, token, timeout, target)
	})
	return err
}

func (c *Client) fetch(ctx context.Context, endpoint, token string, timeout time.Duration, target any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	req.Header.Set("User-Agent", userAgent)

	c.logger.Debug("github request", zap.String("url", req.URL.String()))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return err
	}

	if (resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests) &&
		strings.Contains(strings.ToLower(string(data)), "rate limit") {
		return &RateLimitError{URL: endpoint, Reset: parseReset(resp.Header.Get("X-RateLimit-Reset"))}
	}
	if resp.StatusCode != http.StatusOK {
		return &StatusError{StatusCode: resp.StatusCode, URL: endpoint, Body: string(data)}
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("github %s: decode response: %w", endpoint, err)
	}
	return nil
}

// classify waits out rate limits and retries every other failure until the
// attempts run out.
func (c *Client) classify(err error) retry.Decision {
	var rateLimited *RateLimitError
	if errors.As(err, &rateLimited) {
		wait := time.Second
		if !rateLimited.Reset.IsZero() {
			if d := rateLimited.Reset.Sub(c.Now()); d > wait {
				wait = d
			}
		}
		c.logger.Warn("github rate limited", zap.String("url", rateLimited.URL), zap.Duration("sleep", wait))
		return retry.Decision{Action: retry.Wait, Delay: wait}
	}

	if errors.Is(err, context.Canceled) {
		return retry.Decision{Action: retry.Fatal}
	}
	return retry.Decision{Action: retry.Retry}
}

func parseReset(value string) time.Time {
	secs, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || secs <= 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var status *StatusError
	return errors.As(err, &status) && status.StatusCode == http.StatusNotFound
}
