package stage

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jo-hoe/sermonforge/internal/artifact"
	"github.com/jo-hoe/sermonforge/internal/common"
	"github.com/jo-hoe/sermonforge/internal/config"
	"github.com/jo-hoe/sermonforge/internal/model"
	"github.com/jo-hoe/sermonforge/internal/remote"
)

func newTranscribeTestFixture(t *testing.T, mux *http.ServeMux) (*fakeStore, string, *remote.Coordinator) {
	t.Helper()
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	rootDir := t.TempDir()
	segmentPath := filepath.Join(t.TempDir(), "audio_segment.mp3")
	require.NoError(t, os.WriteFile(segmentPath, []byte("fake-mp3"), 0o640))

	store := newFakeStore()
	store.jwr = newTestJWR()
	store.setStage(model.StageExtractSegment, model.StateSuccess, 1)
	store.stages[model.StageExtractSegment].OutputPath = segmentPath
	store.setStage(model.StageTranscribe, model.StatePending, 0)

	coordinator := remote.New(config.RemoteConfig{BaseURL: ts.URL, WhisperModel: "large"})
	return store, rootDir, coordinator
}

func TestTranscribeExecutor_DeploysOnceThenRetrieves(t *testing.T) {
	deployCalls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/new-job", func(w http.ResponseWriter, r *http.Request) {
		deployCalls++
		fmt.Fprint(w, `{"status":"deployed"}`)
	})
	mux.HandleFunc("/report-job-status/job-1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"completed"}`)
	})
	mux.HandleFunc("/retrieve-job/job-1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "the transcript")
	})

	store, rootDir, coordinator := newTranscribeTestFixture(t, mux)
	exec := NewTranscribeExecutor(store, rootDir, coordinator)

	err := exec.Advance(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, 1, deployCalls)
	require.Equal(t, model.StateSuccess, store.stages[model.StageTranscribe].State)

	layout, err := artifact.NewLayout(rootDir, "job-1")
	require.NoError(t, err)
	data, err := os.ReadFile(layout.WhisperTranscript())
	require.NoError(t, err)
	require.Equal(t, "the transcript", string(data))
}

// TestTranscribeExecutor_RestartAfterCrashSkipsRedeploy covers spec.md §8
// scenario #2: a crash between Deploy and Retrieve must not cause the next
// Advance call to redeploy a duplicate remote job.
func TestTranscribeExecutor_RestartAfterCrashSkipsRedeploy(t *testing.T) {
	deployCalls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/new-job", func(w http.ResponseWriter, r *http.Request) {
		deployCalls++
		fmt.Fprint(w, `{"status":"deployed"}`)
	})
	mux.HandleFunc("/report-job-status/job-1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"completed"}`)
	})
	mux.HandleFunc("/retrieve-job/job-1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "the transcript")
	})

	store, rootDir, coordinator := newTranscribeTestFixture(t, mux)

	// Simulate a crash after a prior attempt's Deploy succeeded but before
	// Retrieve ran: ReclaimAbandoned would have reset the stage back to
	// pending with no sub-state, but the deploy marker survives on disk.
	layout, err := artifact.NewLayout(rootDir, "job-1")
	require.NoError(t, err)
	require.NoError(t, artifact.WriteFileAtomic(layout.Path(common.TranscribeDeployMarkerName), []byte("job-1"), 0o640))

	exec := NewTranscribeExecutor(store, rootDir, coordinator)
	err = exec.Advance(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, 0, deployCalls, "restart with an existing deploy marker must not redeploy")
	require.Equal(t, model.StateSuccess, store.stages[model.StageTranscribe].State)
}
