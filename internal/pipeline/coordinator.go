// Package pipeline sequences the stages that turn a brief's résumé and job
// description into a scored final brief.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/muhammadolammi/proofbriefworker/internal/domain"
	"github.com/muhammadolammi/proofbriefworker/internal/evidence"
	"github.com/muhammadolammi/proofbriefworker/internal/github"
	"github.com/muhammadolammi/proofbriefworker/internal/heuristics"
	"github.com/muhammadolammi/proofbriefworker/internal/ingest"
	"github.com/muhammadolammi/proofbriefworker/internal/logger"
	"github.com/muhammadolammi/proofbriefworker/internal/secrets"
	"github.com/muhammadolammi/proofbriefworker/internal/storage"
	"github.com/muhammadolammi/proofbriefworker/internal/synth"
)

const (
	DefaultTimeout     = 10 * time.Minute
	DefaultMaxRepos    = 20
	DefaultMaxSelected = evidence.DefaultMaxPick

	statusWriteTimeout = 10 * time.Second
)

type Ingester interface {
	Ingest(ctx context.Context, sourceKey string) (*ingest.Result, error)
}

type SkillExtractor interface {
	Extract(ctx context.Context, jobDescription string) (domain.SkillMap, bool)
}

type RepoSelector interface {
	Select(ctx context.Context, resumeText, jobDescription string, repoURLs []string, k int) evidence.Selection
}

type BriefSynthesizer interface {
	Synthesize(ctx context.Context, in synth.Input) (*domain.FinalBrief, error)
}

// Publisher announces status transitions to listeners outside the worker.
type Publisher interface {
	PublishUpdate(ctx context.Context, update domain.StatusUpdate) error
}

// GitHubAPI is everything the collect and bundle stages read from GitHub.
type GitHubAPI interface {
	github.RepoLister
	evidence.RepoSource
}

// GitHubFactory builds a client bound to one run's token holder.
type GitHubFactory func(tokens github.TokenSource) GitHubAPI

type Deps struct {
	Repo      Repository
	Objects   storage.Store
	Ingester  Ingester
	GitHub    GitHubFactory
	Token     secrets.Fetcher
	Skills    SkillExtractor
	Selector  RepoSelector
	Synth     BriefSynthesizer
	Publisher Publisher
}

type Coordinator struct {
	deps   Deps
	logger *zap.Logger

	Timeout     time.Duration
	MaxRepos    int
	MaxSelected int
	Now         func() time.Time
}

func NewCoordinator(deps Deps, log *zap.Logger) *Coordinator {
	return &Coordinator{
		deps:        deps,
		logger:      logger.OrNop(log),
		Timeout:     DefaultTimeout,
		MaxRepos:    DefaultMaxRepos,
		MaxSelected: DefaultMaxSelected,
		Now:         time.Now,
	}
}

type stage struct {
	name string
	run  func(ctx context.Context, r *execution) error
}

// execution is one run plus the collaborators scoped to it.
type execution struct {
	*Run
	repos           GitHubAPI
	skillsFromModel bool
}

// Run executes every stage for briefID under the pipeline deadline. Any stage
// error marks the brief FAILED; objects and rows already written are kept.
func (c *Coordinator) Run(ctx context.Context, briefID uuid.UUID) error {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	log := c.logger.With(zap.String("brief_id", briefID.String()))

	in, err := c.deps.Repo.LoadInputs(ctx, briefID)
	if err != nil {
		log.Error("failed to load brief", zap.Error(err))
		return err
	}
	if in.Status.Terminal() {
		log.Info("brief already finished, skipping run", zap.String("status", string(in.Status)))
		return nil
	}

	run, err := NewRun(in)
	if err != nil {
		c.fail(ctx, briefID, "invalid brief inputs", err)
		return err
	}

	if err := c.setStatus(ctx, briefID, domain.StatusProcessing, "brief processing started"); err != nil {
		c.fail(ctx, briefID, "could not start brief", err)
		return err
	}

	exec := &execution{
		Run:   run,
		repos: c.deps.GitHub(secrets.NewLazy("github token", c.deps.Token)),
	}
	stages := []stage{
		{"ingest", c.ingest},
		{"collect", c.collect},
		{"select", c.selectEvidence},
		{"score", c.score},
		{"synthesize", c.synthesize},
	}

	started := c.Now()
	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			c.fail(ctx, briefID, "pipeline deadline exceeded", err)
			return fmt.Errorf("before %s: %w", s.name, err)
		}
		stageStart := c.Now()
		if err := s.run(ctx, exec); err != nil {
			c.fail(ctx, briefID, "brief processing failed", fmt.Errorf("%s: %w", s.name, err))
			return fmt.Errorf("%s stage: %w", s.name, err)
		}
		log.Info("stage finished", zap.String("stage", s.name), zap.Duration("took", c.Now().Sub(stageStart)))
	}

	c.publish(ctx, briefID, domain.StatusDone, "brief completed")
	log.Info("brief completed",
		zap.String("output_key", run.OutputKey),
		zap.Int("final_score", run.Brief.FinalScore),
		zap.Duration("took", c.Now().Sub(started)),
	)
	return nil
}

func (c *Coordinator) ingest(ctx context.Context, r *execution) error {
	res, err := c.deps.Ingester.Ingest(ctx, r.ResumeKey)
	if err != nil {
		return err
	}
	r.ResumeText = res.Text
	r.ProcessedKey = res.TextKey
	r.ProfileURL = res.ProfileURL

	if err := c.deps.Repo.SetProcessedResume(ctx, r.CandidateID, res.TextKey); err != nil {
		return fmt.Errorf("record processed resume: %w", err)
	}

	jd, err := c.deps.Objects.Get(ctx, r.JobKey)
	if err != nil {
		return fmt.Errorf("load job description: %w", err)
	}
	r.JobDescription = strings.TrimSpace(string(jd))
	return nil
}

// collect discovers repositories and extracts the skill map concurrently.
// A failed discovery leaves the artifact list as far as it got.
func (c *Coordinator) collect(ctx context.Context, r *execution) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if r.ProfileURL == "" {
			c.logger.Info("no profile link in resume", zap.String("brief_id", r.BriefID.String()))
			return nil
		}
		artifacts, err := github.NewCollector(r.repos, c.logger).Collect(gctx, r.ProfileURL, c.MaxRepos)
		if err != nil {
			c.logger.Warn("repository discovery failed",
				zap.String("brief_id", r.BriefID.String()),
				zap.Int("collected", len(artifacts)),
				zap.Error(err),
			)
		}
		r.Artifacts = artifacts
		return nil
	})
	g.Go(func() error {
		r.Skills, r.skillsFromModel = c.deps.Skills.Extract(gctx, r.JobDescription)
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if err := c.deps.Repo.InsertArtifacts(ctx, r.CandidateID, r.Artifacts); err != nil {
		return fmt.Errorf("record artifacts: %w", err)
	}
	return nil
}

func (c *Coordinator) selectEvidence(ctx context.Context, r *execution) error {
	sel := c.deps.Selector.Select(ctx, r.ResumeText, r.JobDescription, r.RepoURLs(), c.MaxSelected)
	r.Selected = sel.URLs
	if !r.skillsFromModel && len(sel.SkillMap) > 0 {
		r.Skills = sel.SkillMap
	}

	selected := make([]domain.Artifact, 0, len(sel.URLs))
	for _, u := range sel.URLs {
		selected = append(selected, domain.Artifact{
			Kind:   domain.ArtifactRepoSelected,
			URL:    u,
			Title:  path.Base(strings.TrimRight(u, "/")),
			Status: "selected",
		})
	}
	if err := c.deps.Repo.InsertArtifacts(ctx, r.CandidateID, selected); err != nil {
		return fmt.Errorf("record selected artifacts: %w", err)
	}

	bundles, err := evidence.NewBundler(r.repos, c.deps.Objects, c.logger).Bundle(ctx, r.BriefID, r.Selected)
	if err != nil {
		return err
	}
	r.Bundles = bundles
	return nil
}

func (c *Coordinator) score(_ context.Context, r *execution) error {
	corpus := heuristics.BuildCorpus(r.ResumeText, r.Artifacts, r.Bundles)
	r.Scores = heuristics.Score(corpus, r.Skills)
	return nil
}

func (c *Coordinator) synthesize(ctx context.Context, r *execution) error {
	brief, err := c.deps.Synth.Synthesize(ctx, synth.Input{
		BriefID:        r.BriefID,
		ResumeText:     r.ResumeText,
		JobDescription: r.JobDescription,
		Artifacts:      r.Artifacts,
		Bundles:        r.Bundles,
		Skills:         r.Skills,
		Heuristics:     r.Scores,
	})
	if err != nil {
		return err
	}

	body, err := json.MarshalIndent(brief, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal final brief: %w", err)
	}
	key := storage.FinalBriefKey(r.BriefID)
	if err := c.deps.Objects.Put(ctx, key, body, "application/json"); err != nil {
		return fmt.Errorf("save final brief: %w", err)
	}
	if err := c.deps.Repo.Complete(ctx, r.BriefID, key); err != nil {
		return fmt.Errorf("complete brief: %w", err)
	}
	r.Brief = brief
	r.OutputKey = key
	return nil
}

func (c *Coordinator) setStatus(ctx context.Context, briefID uuid.UUID, status domain.Status, message string) error {
	if err := c.deps.Repo.SetStatus(ctx, briefID, status); err != nil {
		return fmt.Errorf("set status %s: %w", status, err)
	}
	c.publish(ctx, briefID, status, message)
	return nil
}

// fail records FAILED even when ctx is already done.
func (c *Coordinator) fail(ctx context.Context, briefID uuid.UUID, message string, cause error) {
	c.logger.Error(message, zap.String("brief_id", briefID.String()), zap.Error(cause))

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
	defer cancel()
	if err := c.setStatus(ctx, briefID, domain.StatusFailed, message); err != nil {
		c.logger.Error("failed to mark brief failed", zap.String("brief_id", briefID.String()), zap.Error(err))
	}
}

func (c *Coordinator) publish(ctx context.Context, briefID uuid.UUID, status domain.Status, message string) {
	if c.deps.Publisher == nil {
		return
	}
	update := domain.StatusUpdate{BriefID: briefID, Status: status, Message: message, Timestamp: c.Now().UTC()}
	if err := c.deps.Publisher.PublishUpdate(context.WithoutCancel(ctx), update); err != nil {
		c.logger.Warn("failed to publish update", zap.String("brief_id", briefID.String()), zap.Error(err))
	}
}
