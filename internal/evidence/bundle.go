package evidence

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/muhammadolammi/proofbriefworker/internal/domain"
	"github.com/muhammadolammi/proofbriefworker/internal/github"
	"github.com/muhammadolammi/proofbriefworker/internal/logger"
	"github.com/muhammadolammi/proofbriefworker/internal/storage"
)

const (
	DefaultMaxFiles       = 5
	DefaultMaxFileBytes   = 64 * 1024
	DefaultMaxBundleBytes = 256 * 1024
	DefaultConcurrency    = 3
)

var codeExtensions = map[string]bool{
	".py": true, ".ipynb": true, ".js": true, ".jsx": true, ".ts": true, ".tsx": true,
	".java": true, ".kt": true, ".scala": true, ".go": true, ".rs": true, ".rb": true,
	".php": true, ".c": true, ".h": true, ".cpp": true, ".cc": true, ".hpp": true, ".cs": true,
	".swift": true, ".m": true, ".mm": true, ".sql": true, ".sh": true, ".bash": true, ".ps1": true,
}

var skipPath = regexp.MustCompile(`(?i)(^|/)(\.|(node_modules|dist|build|venv|__pycache__|target|bin|obj|coverage|site-packages|vendor|docs?|tests?|examples?)(/|$))`)

var readmeNames = []string{"README.md", "README.MD", "Readme.md", "readme.md", "README", "readme"}

// RepoSource reads repository contents.
type RepoSource interface {
	DefaultBranch(ctx context.Context, owner, repo string) (string, error)
	Tree(ctx context.Context, owner, repo, ref string) ([]github.TreeEntry, error)
	Readme(ctx context.Context, owner, repo string) (string, error)
	FileContent(ctx context.Context, owner, repo, filePath, ref string) ([]byte, error)
}

type Bundler struct {
	source RepoSource
	store  storage.Store
	logger *zap.Logger

	MaxFiles       int
	MaxFileBytes   int
	MaxBundleBytes int
	Concurrency    int
}

func NewBundler(source RepoSource, store storage.Store, log *zap.Logger) *Bundler {
	return &Bundler{
		source:         source,
		store:          store,
		logger:         logger.OrNop(log),
		MaxFiles:       DefaultMaxFiles,
		MaxFileBytes:   DefaultMaxFileBytes,
		MaxBundleBytes: DefaultMaxBundleBytes,
		Concurrency:    DefaultConcurrency,
	}
}

// Bundle fetches and stores one bundle per repository URL. The result keeps
// the order of repoURLs and leaves out empty bundles. Only storage failures
// are returned; unreadable repositories are skipped.
func (b *Bundler) Bundle(ctx context.Context, briefID uuid.UUID, repoURLs []string) ([]domain.EvidenceBundle, error) {
	results := make([]*domain.EvidenceBundle, len(repoURLs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(b.Concurrency, 1))

	for i, repoURL := range repoURLs {
		g.Go(func() error {
			text, files := b.repoText(gctx, repoURL)
			if text == "" {
				b.logger.Info("empty bundle", zap.String("repo", repoURL))
				return nil
			}

			key := storage.RepoBundleKey(briefID, repoURL)
			if err := b.store.Put(gctx, key, []byte(text), "text/plain; charset=utf-8"); err != nil {
				return fmt.Errorf("save bundle for %s: %w", repoURL, err)
			}
			results[i] = &domain.EvidenceBundle{
				RepoURL: repoURL,
				Files:   files,
				Key:     key,
				Size:    len(text),
				Text:    text,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	bundles := make([]domain.EvidenceBundle, 0, len(results))
	for _, r := range results {
		if r != nil {
			bundles = append(bundles, *r)
		}
	}
	return bundles, nil
}

func (b *Bundler) repoText(ctx context.Context, repoURL string) (string, []string) {
	owner, repo, err := github.OwnerRepo(repoURL)
	if err != nil {
		b.logger.Warn("skipping repository", zap.String("repo", repoURL), zap.Error(err))
		return "", nil
	}

	ref, err := b.source.DefaultBranch(ctx, owner, repo)
	if err != nil {
		b.logger.Warn("failed to bundle repository", zap.String("repo", repoURL), zap.Error(err))
		return "", nil
	}
	tree, err := b.source.Tree(ctx, owner, repo, ref)
	if err != nil {
		b.logger.Warn("failed to bundle repository", zap.String("repo", repoURL), zap.Error(err))
		return "", nil
	}
	paths := ChooseCodePaths(tree, b.MaxFiles)

	var parts []string
	if readme := b.readme(ctx, owner, repo, ref); readme != "" {
		parts = append(parts, fmt.Sprintf("# README (%s/%s)\n%s\n", owner, repo, readme))
	}

	var files []string
	for _, p := range paths {
		raw, err := b.source.FileContent(ctx, owner, repo, p, ref)
		if err != nil {
			b.logger.Warn("failed to fetch file", zap.String("repo", repoURL), zap.String("path", p), zap.Error(err))
			continue
		}
		content := clip(raw, b.MaxFileBytes)
		if strings.TrimSpace(content) == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("\n# FILE: %s\n%s\n", p, content))
		files = append(files, p)
	}

	text := strings.TrimSpace(strings.Join(parts, "\n"))
	return clip([]byte(text), b.MaxBundleBytes), files
}

// readme prefers the dedicated endpoint and then probes conventional names.
func (b *Bundler) readme(ctx context.Context, owner, repo, ref string) string {
	if text, err := b.source.Readme(ctx, owner, repo); err == nil && strings.TrimSpace(text) != "" {
		return text
	}
	for _, name := range readmeNames {
		raw, err := b.source.FileContent(ctx, owner, repo, name, ref)
		if err == nil && len(raw) > 0 {
			return clip(raw, b.MaxFileBytes)
		}
	}
	return ""
}

// ChooseCodePaths returns up to limit source files from tree, largest first.
func ChooseCodePaths(tree []github.TreeEntry, limit int) []string {
	type candidate struct {
		path string
		size int64
	}
	var files []candidate
	for _, node := range tree {
		if node.Type != "blob" || node.Path == "" || skipPath.MatchString(node.Path) {
			continue
		}
		if codeExtensions[strings.ToLower(path.Ext(node.Path))] {
			files = append(files, candidate{node.Path, node.Size})
		}
	}
	sort.SliceStable(files, func(i, j int) bool { return files[i].size > files[j].size })

	if len(files) > limit {
		files = files[:limit]
	}
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.path)
	}
	return out
}

func clip(raw []byte, limit int) string {
	if limit > 0 && len(raw) > limit {
		raw = raw[:limit]
	}
	return strings.ToValidUTF8(string(raw), "\uFFFD")
}
