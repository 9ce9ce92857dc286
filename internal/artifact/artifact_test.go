package artifact

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLayout_CreatesJobDir(t *testing.T) {
	root := t.TempDir()
	layout, err := NewLayout(root, "job-1")
	require.NoError(t, err)

	info, err := os.Stat(layout.Dir())
	require.NoError(t, err)
	require.True(t, info.IsDir())
	require.Equal(t, filepath.Join(root, "jobs", "job-1"), layout.Dir())
}

func TestLayout_PathHelpers(t *testing.T) {
	root := t.TempDir()
	layout, err := NewLayout(root, "job-2")
	require.NoError(t, err)

	require.Equal(t, filepath.Join(layout.Dir(), "audio_full.mp3"), layout.AudioFull(".mp3"))
	require.Equal(t, filepath.Join(layout.Dir(), "audio_segment.mp3"), layout.AudioSegment())
	require.Equal(t, filepath.Join(layout.Dir(), "whisper_transcript.txt"), layout.WhisperTranscript())
	require.Equal(t, filepath.Join(layout.Dir(), "formatted_transcript.txt"), layout.FormattedTranscript())
	require.Equal(t, filepath.Join(layout.Dir(), "metadata.json"), layout.Metadata())
	require.Equal(t, filepath.Join(layout.Dir(), "paragraphs.json"), layout.Paragraphs())
	require.Equal(t, filepath.Join(layout.Dir(), "finished_document.txt"), layout.FinishedDocument())
}

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestWriteJSONAtomic_RoundTrips(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "sample.json")

	in := sample{Name: "paragraph", Count: 3}
	require.NoError(t, WriteJSONAtomic(path, in))

	var out sample
	require.NoError(t, ReadJSON(path, &out))
	require.Equal(t, in, out)
}

func TestWriteJSONAtomic_OverwritesWithoutLeavingTempFiles(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "sample.json")

	require.NoError(t, WriteJSONAtomic(path, sample{Name: "a", Count: 1}))
	require.NoError(t, WriteJSONAtomic(path, sample{Name: "b", Count: 2}))

	var out sample
	require.NoError(t, ReadJSON(path, &out))
	require.Equal(t, sample{Name: "b", Count: 2}, out)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no stray temp files should remain")
}

func TestExists(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "file.txt")
	require.False(t, Exists(path))

	require.NoError(t, WriteFileAtomic(path, []byte("hi"), 0o640))
	require.True(t, Exists(path))
}

func TestReadJSON_MissingFileReturnsError(t *testing.T) {
	root := t.TempDir()
	var out sample
	err := ReadJSON(filepath.Join(root, "missing.json"), &out)
	require.Error(t, err)
}
