package storage

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	processedTextName     = "resume_processed.txt"
	processedSnapshotName = "resume_textract.json"
)

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func ResumeOriginalKey(candidateID uuid.UUID, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return fmt.Sprintf("candidates/%s/resume_original%s", candidateID, ext)
}

func JobDescriptionKey(jobID uuid.UUID) string {
	return fmt.Sprintf("jobs/%s/jd.txt", jobID)
}

func BriefPrefix(briefID uuid.UUID) string {
	return fmt.Sprintf("briefs/%s/", briefID)
}

func FinalBriefKey(briefID uuid.UUID) string {
	return BriefPrefix(briefID) + "final.json"
}

func RepoBundleKey(briefID uuid.UUID, repoURL string) string {
	return BriefPrefix(briefID) + "repos/" + RepoSlug(repoURL) + ".txt"
}

// RepoSlug turns https://github.com/owner/repo into owner__repo.
func RepoSlug(repoURL string) string {
	p := strings.TrimSpace(repoURL)
	if u, err := url.Parse(p); err == nil && u.Host != "" {
		p = u.Path
	}
	p = strings.Trim(p, "/")
	p = strings.ReplaceAll(p, "/", "__")
	p = unsafeKeyChars.ReplaceAllString(p, "-")
	if p == "" {
		return "unknown"
	}
	return p
}

// ProcessedKeys derives the text and raw-snapshot keys for a source document:
// ".../resume_original.pdf" becomes ".../resume_processed.txt" and
// ".../resume_textract.json"; any other name keeps its stem.
func ProcessedKeys(sourceKey string) (textKey, snapshotKey string) {
	dir := path.Dir(sourceKey)
	base := path.Base(sourceKey)
	stem := strings.TrimSuffix(base, path.Ext(base))

	if strings.Contains(stem, "original") {
		return path.Join(dir, processedTextName), path.Join(dir, processedSnapshotName)
	}

	textKey = path.Join(dir, stem+".txt")
	if textKey == path.Clean(sourceKey) {
		textKey = path.Join(dir, stem+"_processed.txt")
	}
	return textKey, path.Join(dir, stem+".json")
}
