// Package ingest turns an uploaded résumé into plain text and a candidate profile link.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"
	"go.uber.org/zap"

	"github.com/muhammadolammi/proofbriefworker/internal/logger"
	"github.com/muhammadolammi/proofbriefworker/internal/retry"
	"github.com/muhammadolammi/proofbriefworker/internal/storage"
)

var (
	// ErrDocumentAnalysisFailed means the analysis job itself reported failure. It is not retried.
	ErrDocumentAnalysisFailed = errors.New("document analysis failed")
	ErrAnalysisTimeout        = errors.New("document analysis did not finish in time")
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultMaxWait      = 5 * time.Minute
)

// TextDetector is the subset of the Textract API the ingestor drives.
type TextDetector interface {
	StartDocumentTextDetection(ctx context.Context, params *textract.StartDocumentTextDetectionInput, optFns ...func(*textract.Options)) (*textract.StartDocumentTextDetectionOutput, error)
	GetDocumentTextDetection(ctx context.Context, params *textract.GetDocumentTextDetectionInput, optFns ...func(*textract.Options)) (*textract.GetDocumentTextDetectionOutput, error)
}

// Result points at the stored outputs of one ingestion.
type Result struct {
	TextKey     string
	SnapshotKey string
	// ProfileURL is empty when the document links to no profile.
	ProfileURL string
	Text       string
}

type Ingestor struct {
	detector TextDetector
	store    storage.Store
	logger   *zap.Logger

	PollInterval time.Duration
	MaxWait      time.Duration
	Sleep        retry.SleepFunc
	Now          func() time.Time
	CallPolicy   retry.Policy
}

func New(detector TextDetector, store storage.Store, log *zap.Logger) *Ingestor {
	return &Ingestor{
		detector:     detector,
		store:        store,
		logger:       logger.OrNop(log),
		PollInterval: DefaultPollInterval,
		MaxWait:      DefaultMaxWait,
		Sleep:        retry.SleepContext,
		Now:          time.Now,
		CallPolicy:   retry.Default(),
	}
}

type snapshot struct {
	JobID  string        `json:"JobId,omitempty"`
	Source string        `json:"Source"`
	Blocks []types.Block `json:"Blocks,omitempty"`
	Links  []string      `json:"Links,omitempty"`
}

// Ingest processes the document stored at sourceKey. Outputs are written under
// keys derived from sourceKey, so a repeated run overwrites the same objects.
func (i *Ingestor) Ingest(ctx context.Context, sourceKey string) (*Result, error) {
	data, err := i.store.Get(ctx, sourceKey)
	if err != nil {
		return nil, fmt.Errorf("load source document: %w", err)
	}

	var (
		text  string
		links []string
		snap  snapshot
	)

	if IsDocx(data) {
		text, links, err = DocxText(data)
		if err != nil {
			return nil, err
		}
		snap = snapshot{Source: "docx", Links: links}
	} else {
		jobID, blocks, err := i.detectText(ctx, sourceKey)
		if err != nil {
			return nil, err
		}
		text = joinLines(blocks)
		links, err = PDFLinks(data)
		if err != nil {
			i.logger.Warn("could not read link annotations", zap.String("key", sourceKey), zap.Error(err))
		}
		snap = snapshot{JobID: jobID, Source: "textract", Blocks: blocks, Links: links}
	}

	candidates := MergeURLs(links, TextURLs(text))
	profile := FirstProfileURL(candidates)

	textKey, snapshotKey := storage.ProcessedKeys(sourceKey)
	if err := i.store.Put(ctx, textKey, []byte(text), "text/plain; charset=utf-8"); err != nil {
		return nil, fmt.Errorf("save processed text: %w", err)
	}
	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal analysis snapshot: %w", err)
	}
	if err := i.store.Put(ctx, snapshotKey, raw, "application/json"); err != nil {
		return nil, fmt.Errorf("save analysis snapshot: %w", err)
	}

	i.logger.Info("document ingested",
		zap.String("key", sourceKey),
		zap.Int("text_length", len(text)),
		zap.Int("links", len(candidates)),
		zap.String("profile_url", profile),
	)

	return &Result{
		TextKey:     textKey,
		SnapshotKey: snapshotKey,
		ProfileURL:  profile,
		Text:        text,
	}, nil
}

func (i *Ingestor) detectText(ctx context.Context, key string) (string, []types.Block, error) {
	start, err := retry.Do(ctx, i.CallPolicy, func(ctx context.Context) (*textract.StartDocumentTextDetectionOutput, error) {
		return i.detector.StartDocumentTextDetection(ctx, &textract.StartDocumentTextDetectionInput{
			DocumentLocation: &types.DocumentLocation{
				S3Object: &types.S3Object{
					Bucket: aws.String(i.store.Bucket()),
					Name:   aws.String(key),
				},
			},
		})
	})
	if err != nil {
		return "", nil, fmt.Errorf("start text detection: %w", err)
	}
	jobID := aws.ToString(start.JobId)
	i.logger.Info("text detection started", zap.String("job_id", jobID), zap.String("key", key))

	first, err := i.waitForJob(ctx, jobID)
	if err != nil {
		return jobID, nil, err
	}

	blocks := append([]types.Block(nil), first.Blocks...)
	next := first.NextToken
	for next != nil && *next != "" {
		token := next
		page, err := retry.Do(ctx, i.CallPolicy, func(ctx context.Context) (*textract.GetDocumentTextDetectionOutput, error) {
			return i.detector.GetDocumentTextDetection(ctx, &textract.GetDocumentTextDetectionInput{
				JobId:     aws.String(jobID),
				NextToken: token,
			})
		})
		if err != nil {
			return jobID, nil, fmt.Errorf("read text detection page: %w", err)
		}
		blocks = append(blocks, page.Blocks...)
		next = page.NextToken
	}
	return jobID, blocks, nil
}

// waitForJob polls until the job reaches a terminal status or MaxWait elapses.
func (i *Ingestor) waitForJob(ctx context.Context, jobID string) (*textract.GetDocumentTextDetectionOutput, error) {
	deadline := i.Now().Add(i.MaxWait)
	for {
		if err := i.Sleep(ctx, i.PollInterval); err != nil {
			return nil, err
		}

		out, err := retry.Do(ctx, i.CallPolicy, func(ctx context.Context) (*textract.GetDocumentTextDetectionOutput, error) {
			return i.detector.GetDocumentTextDetection(ctx, &textract.GetDocumentTextDetectionInput{
				JobId: aws.String(jobID),
			})
		})
		if err != nil {
			return nil, fmt.Errorf("poll text detection: %w", err)
		}

		i.logger.Debug("text detection status", zap.String("job_id", jobID), zap.String("status", string(out.JobStatus)))

		switch out.JobStatus {
		case types.JobStatusSucceeded:
			return out, nil
		case types.JobStatusPartialSuccess:
			i.logger.Warn("text detection partially succeeded", zap.String("job_id", jobID), zap.String("message", aws.ToString(out.StatusMessage)))
			return out, nil
		case types.JobStatusFailed:
			return nil, fmt.Errorf("%w: job %s: %s", ErrDocumentAnalysisFailed, jobID, aws.ToString(out.StatusMessage))
		}

		if !i.Now().Before(deadline) {
			return nil, fmt.Errorf("%w: job %s after %s", ErrAnalysisTimeout, jobID, i.MaxWait)
		}
	}
}

func joinLines(blocks []types.Block) string {
	var lines []string
	for _, b := range blocks {
		if b.BlockType == types.BlockTypeLine && b.Text != nil {
			lines = append(lines, *b.Text)
		}
	}
	return strings.Join(lines, "\n")
}
