// Package artifact manages the per-job directory tree on disk: the audio,
// transcript, metadata, and paragraph files each stage reads and writes.
// All structured writes go through WriteJSONAtomic so a crash mid-write
// never leaves a corrupt file for the next stage to trip over.
package artifact

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jo-hoe/sermonforge/internal/common"
)

// Layout resolves paths within one job's working directory.
type Layout struct {
	jobDir string
}

// NewLayout returns a Layout rooted at rootDir/jobs/jobID, creating the
// directory if it does not already exist.
func NewLayout(rootDir, jobID string) (Layout, error) {
	dir := filepath.Join(rootDir, common.JobsDirName, jobID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return Layout{}, fmt.Errorf("ensure job dir %s: %w", dir, err)
	}
	return Layout{jobDir: dir}, nil
}

// Dir returns the job's root directory.
func (l Layout) Dir() string { return l.jobDir }

func (l Layout) Path(name string) string { return filepath.Join(l.jobDir, name) }

func (l Layout) AudioFull(ext string) string {
	return l.Path(common.AudioFullBase + ext)
}

func (l Layout) AudioSegment() string       { return l.Path(common.AudioSegmentName) }
func (l Layout) WhisperTranscript() string  { return l.Path(common.WhisperTranscriptName) }
func (l Layout) FormattedTranscript() string { return l.Path(common.FormattedTranscriptName) }
func (l Layout) Metadata() string           { return l.Path(common.MetadataFileName) }
func (l Layout) Paragraphs() string         { return l.Path(common.ParagraphsFileName) }
func (l Layout) FinishedDocument() string   { return l.Path(common.FinishedDocumentName) }

// WriteJSONAtomic marshals v and writes it to path by writing to a sibling
// temp file first and renaming over the destination, so a reader never
// observes a partially-written file.
func WriteJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	return WriteFileAtomic(path, data, 0o640)
}

// WriteFileAtomic writes data to path via a temp-file-plus-rename, making
// the write atomic from any concurrent reader's perspective.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, "."+filepath.Base(path)+"."+randomSuffix()+".tmp")

	if err := os.WriteFile(tmp, data, perm); err != nil {
		return fmt.Errorf("write temp file %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s to %s: %w", tmp, path, err)
	}
	return nil
}

// ReadJSON reads and unmarshals the JSON file at path into v.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path) // #nosec G304 - path is built from job-directory layout, not user input
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", path, err)
	}
	return nil
}

// Exists reports whether path names an existing entry that is not a directory.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func randomSuffix() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
