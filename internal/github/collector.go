package github

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/muhammadolammi/proofbriefworker/internal/domain"
	"github.com/muhammadolammi/proofbriefworker/internal/logger"
)

const DefaultPerPage = 5

// RepoLister is the listing call the collector paginates.
type RepoLister interface {
	ListRepos(ctx context.Context, user string, page, perPage int) ([]Repo, error)
}

type Collector struct {
	lister  RepoLister
	logger  *zap.Logger
	PerPage int
}

func NewCollector(lister RepoLister, log *zap.Logger) *Collector {
	return &Collector{lister: lister, logger: logger.OrNop(log), PerPage: DefaultPerPage}
}

// UsernameFromProfile accepts a bare account id or a profile URL and returns
// the last path segment.
func UsernameFromProfile(profile string) string {
	p := strings.TrimSpace(profile)
	if u, err := url.Parse(p); err == nil && u.Host != "" {
		p = u.Path
	}
	p = strings.Trim(p, "/")
	if i := strings.LastIndex(p, "/"); i >= 0 {
		p = p[i+1:]
	}
	return p
}

// Collect returns up to max repositories for profile, most recently pushed first.
func (c *Collector) Collect(ctx context.Context, profile string, max int) ([]domain.Artifact, error) {
	user := UsernameFromProfile(profile)
	if user == "" || max <= 0 {
		return nil, nil
	}
	perPage := c.PerPage
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	maxPages := (max + perPage - 1) / perPage

	var artifacts []domain.Artifact
	for page := 1; page <= maxPages && len(artifacts) < max; page++ {
		repos, err := c.lister.ListRepos(ctx, user, page, perPage)
		if err != nil {
			return artifacts, fmt.Errorf("list repositories for %s page %d: %w", user, page, err)
		}
		if len(repos) == 0 {
			break
		}
		for _, r := range repos {
			artifacts = append(artifacts, toArtifact(r))
		}
	}

	if len(artifacts) > max {
		artifacts = artifacts[:max]
	}
	c.logger.Info("repositories collected", zap.String("user", user), zap.Int("count", len(artifacts)))
	return artifacts, nil
}

func toArtifact(r Repo) domain.Artifact {
	return domain.Artifact{
		Kind:          domain.ArtifactRepo,
		URL:           r.HTMLURL,
		Title:         r.Name,
		Status:        fmt.Sprintf("%d stars", r.Stars),
		DefaultBranch: r.DefaultBranch,
		PushedAt:      r.PushedAt,
		Language:      r.Language,
		Stars:         r.Stars,
	}
}

// OwnerRepo splits https://github.com/owner/repo into its parts.
func OwnerRepo(repoURL string) (owner, repo string, err error) {
	u, err := url.Parse(strings.TrimSpace(repoURL))
	if err != nil {
		return "", "", fmt.Errorf("parse repository url: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("not a repository url: %q", repoURL)
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), nil
}
