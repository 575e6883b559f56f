package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muhammadolammi/proofbriefworker/internal/storage"
)

type fakeDetector struct {
	statuses []types.JobStatus
	pages    [][]string
	started  []string
	polls    int
}

func (f *fakeDetector) StartDocumentTextDetection(_ context.Context, in *textract.StartDocumentTextDetectionInput, _ ...func(*textract.Options)) (*textract.StartDocumentTextDetectionOutput, error) {
	f.started = append(f.started, aws.ToString(in.DocumentLocation.S3Object.Name))
	return &textract.StartDocumentTextDetectionOutput{JobId: aws.String("job-1")}, nil
}

func (f *fakeDetector) GetDocumentTextDetection(_ context.Context, in *textract.GetDocumentTextDetectionInput, _ ...func(*textract.Options)) (*textract.GetDocumentTextDetectionOutput, error) {
	page := 0
	if in.NextToken != nil {
		fmt.Sscanf(*in.NextToken, "page-%d", &page)
	} else {
		status := f.statuses[min(f.polls, len(f.statuses)-1)]
		f.polls++
		if status != types.JobStatusSucceeded {
			return &textract.GetDocumentTextDetectionOutput{JobStatus: status, StatusMessage: aws.String("unsupported document")}, nil
		}
	}

	out := &textract.GetDocumentTextDetectionOutput{JobStatus: types.JobStatusSucceeded}
	for _, line := range f.pages[page] {
		out.Blocks = append(out.Blocks,
			types.Block{BlockType: types.BlockTypePage},
			types.Block{BlockType: types.BlockTypeLine, Text: aws.String(line)},
			types.Block{BlockType: types.BlockTypeWord, Text: aws.String("ignored")},
		)
	}
	if page+1 < len(f.pages) {
		out.NextToken = aws.String(fmt.Sprintf("page-%d", page+1))
	}
	return out, nil
}

type fakeClock struct {
	now   time.Time
	slept []time.Duration
}

func (c *fakeClock) sleep(_ context.Context, d time.Duration) error {
	c.slept = append(c.slept, d)
	c.now = c.now.Add(d)
	return nil
}

func newTestIngestor(det TextDetector, store storage.Store) (*Ingestor, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	ing := New(det, store, nil)
	ing.Sleep = clock.sleep
	ing.Now = func() time.Time { return clock.now }
	ing.CallPolicy.Sleep = clock.sleep
	return ing, clock
}

// buildPDF assembles a one-page PDF whose page carries the given annotation dictionaries.
func buildPDF(annots ...string) []byte {
	var objects []string
	objects = append(objects,
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
	)
	refs := ""
	for i := range annots {
		refs += fmt.Sprintf("%d 0 R ", 4+i)
	}
	objects = append(objects, fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Annots [%s] >>", refs))
	objects = append(objects, annots...)

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestNormalizeProfileURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"https://github.com/ octocat/../Junk)", "https://github.com/octocat", true},
		{"https://github.com/octocat", "https://github.com/octocat", true},
		{"http://www.github.com/octocat/repo-name?tab=repositories", "https://github.com/octocat", true},
		{"https://github.com/octo-cat).", "https://github.com/octo-cat", true},
		{"  https://GitHub.com/o c t o  ", "https://github.com/octo", true},
		{"https://gist.github.com/octocat", "", false},
		{"https://github.com", "", false},
		{"https://github.com/", "", false},
		{"github.com/octocat", "", false},
		{"https://linkedin.com/in/octocat", "", false},
		{"https://example.com/?next=github.com/octocat", "", false},
		{"https://github.community/t/1", "", false},
	}
	for _, tc := range cases {
		got, ok := NormalizeProfileURL(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestMergeURLsPrefersStructuralOrder(t *testing.T) {
	structural := []string{"https://github.com/real-account", "https://example.com"}
	scraped := []string{"https://github.com/displayed-text", "https://example.com"}

	merged := MergeURLs(structural, scraped)
	assert.Equal(t, []string{"https://github.com/real-account", "https://example.com", "https://github.com/displayed-text"}, merged)
	assert.Equal(t, "https://github.com/real-account", FirstProfileURL(merged))
}

func TestTextURLs(t *testing.T) {
	text := "Portfolio (https://jane.dev) and code at https://github.com/jane]."
	assert.Equal(t, []string{"https://jane.dev", "https://github.com/jane"}, TextURLs(text))
}

func TestPDFLinks(t *testing.T) {
	data := buildPDF(
		"<< /Type /Annot /Subtype /Link /Rect [0 0 10 10] /A << /S /URI /URI (https://github.com/octocat) >> >>",
		"<< /Type /Annot /Subtype /Link /Rect [0 0 10 10] /A << /S /GoTo /D [3 0 R /Fit] >> >>",
		"<< /Type /Annot /Subtype /Text /Rect [0 0 10 10] /Contents (note) >>",
	)

	links, err := PDFLinks(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://github.com/octocat"}, links)
}

func TestPDFLinksMalformed(t *testing.T) {
	_, err := PDFLinks([]byte("not a pdf"))
	assert.Error(t, err)
}

func TestIngestPollsPaginatesAndStoresUnderStableKeys(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	src := "candidates/c1/resume_original.pdf"
	require.NoError(t, store.Put(ctx, src, buildPDF(
		"<< /Type /Annot /Subtype /Link /Rect [0 0 10 10] /A << /S /URI /URI (https://github.com/true-target) >> >>",
	), "application/pdf"))

	det := &fakeDetector{
		statuses: []types.JobStatus{types.JobStatusInProgress, types.JobStatusInProgress, types.JobStatusSucceeded},
		pages: [][]string{
			{"Jane Doe", "Go engineer"},
			{"github: https://github.com/displayed"},
		},
	}
	ing, clock := newTestIngestor(det, store)

	res, err := ing.Ingest(ctx, src)
	require.NoError(t, err)

	assert.Equal(t, []string{src}, det.started)
	assert.Equal(t, 3, det.polls)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second}, clock.slept)
	assert.Equal(t, "Jane Doe\nGo engineer\ngithub: https://github.com/displayed", res.Text)
	assert.Equal(t, "https://github.com/true-target", res.ProfileURL)
	assert.Equal(t, "candidates/c1/resume_processed.txt", res.TextKey)
	assert.Equal(t, "candidates/c1/resume_textract.json", res.SnapshotKey)

	stored, err := store.Get(ctx, res.TextKey)
	require.NoError(t, err)
	assert.Equal(t, res.Text, string(stored))

	var snap map[string]any
	raw, err := store.Get(ctx, res.SnapshotKey)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &snap))
	assert.Equal(t, "job-1", snap["JobId"])

	keysBefore := store.Keys()
	det.polls = 0
	again, err := ing.Ingest(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, res.TextKey, again.TextKey)
	assert.Equal(t, res.SnapshotKey, again.SnapshotKey)
	assert.Equal(t, keysBefore, store.Keys())
}

func TestIngestFailedJobIsFatal(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	require.NoError(t, store.Put(ctx, "candidates/c1/resume_original.pdf", []byte("%PDF-1.4"), "application/pdf"))

	det := &fakeDetector{statuses: []types.JobStatus{types.JobStatusInProgress, types.JobStatusFailed}}
	ing, _ := newTestIngestor(det, store)

	_, err := ing.Ingest(ctx, "candidates/c1/resume_original.pdf")
	require.ErrorIs(t, err, ErrDocumentAnalysisFailed)
	assert.Equal(t, 2, det.polls)
	assert.Equal(t, []string{"candidates/c1/resume_original.pdf"}, store.Keys())
}

func TestIngestBoundedWait(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	require.NoError(t, store.Put(ctx, "cv.pdf", []byte("%PDF-1.4"), "application/pdf"))

	det := &fakeDetector{statuses: []types.JobStatus{types.JobStatusInProgress}}
	ing, _ := newTestIngestor(det, store)
	ing.MaxWait = 20 * time.Second

	_, err := ing.Ingest(ctx, "cv.pdf")
	require.ErrorIs(t, err, ErrAnalysisTimeout)
	assert.Equal(t, 4, det.polls)
}

func buildDocx(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	files := map[string]string{
		"[Content_Types].xml":          `<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"></Types>`,
		"word/_rels/document.xml.rels": `<?xml version="1.0" encoding="UTF-8"?><Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"></Relationships>`,
		"word/document.xml":            `<?xml version="1.0" encoding="UTF-8"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` + body + `</w:body></w:document>`,
	}
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestIngestDocxSkipsTextDetection(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	body := `<w:p><w:r><w:t>Jane Doe</w:t></w:r></w:p>` +
		`<w:p><w:r><w:instrText> HYPERLINK "https://github.com/jane-doe" </w:instrText></w:r><w:r><w:t>my code</w:t></w:r></w:p>`
	data := buildDocx(t, body)
	require.True(t, IsDocx(data))
	require.NoError(t, store.Put(ctx, "candidates/c2/resume_original.docx", data, "application/vnd.openxmlformats-officedocument.wordprocessingml.document"))

	det := &fakeDetector{}
	ing, _ := newTestIngestor(det, store)

	res, err := ing.Ingest(ctx, "candidates/c2/resume_original.docx")
	require.NoError(t, err)
	assert.Empty(t, det.started)
	assert.Equal(t, "Jane Doe\nmy code", res.Text)
	assert.Equal(t, "https://github.com/jane-doe", res.ProfileURL)
}
