package stage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jo-hoe/sermonforge/internal/artifact"
	"github.com/jo-hoe/sermonforge/internal/common"
	"github.com/jo-hoe/sermonforge/internal/llm"
	"github.com/jo-hoe/sermonforge/internal/model"
	"github.com/jo-hoe/sermonforge/internal/paragraph"
)

func TestParseEvaluation_PassingRatingNoCritique(t *testing.T) {
	rating, critique, ok := parseEvaluation("Rating: 9\n\nLooks great, no changes needed.")
	require.True(t, ok)
	require.Equal(t, 9, rating)
	require.Empty(t, critique)
}

func TestParseEvaluation_FailingRatingWithCritique(t *testing.T) {
	response := "Rating: 4\nCRITIQUE FOR REDO:\nThe paragraph rambles and loses the original point.\n\nSome trailing commentary."
	rating, critique, ok := parseEvaluation(response)
	require.True(t, ok)
	require.Equal(t, 4, rating)
	require.Equal(t, "The paragraph rambles and loses the original point.", critique)
}

func TestParseEvaluation_CritiqueRunsToEndOfText(t *testing.T) {
	response := "Rating: 2\nCRITIQUE FOR REDO:\nEntirely off topic."
	rating, critique, ok := parseEvaluation(response)
	require.True(t, ok)
	require.Equal(t, 2, rating)
	require.Equal(t, "Entirely off topic.", critique)
}

func TestParseEvaluation_NoRatingLine(t *testing.T) {
	_, _, ok := parseEvaluation("I have no opinion on this paragraph.")
	require.False(t, ok)
}

func TestBuildEvaluationPrompt_IncludesNeighborsAndMetadata(t *testing.T) {
	edited := "the edited text"
	r := paragraph.Record{Original: "the original text", Edited: &edited}

	prompt := buildEvaluationPrompt(r, "previous paragraph edited", "next paragraph edited", "the thesis", "warm")

	require.Contains(t, prompt, "the original text")
	require.Contains(t, prompt, "the edited text")
	require.Contains(t, prompt, "previous paragraph edited")
	require.Contains(t, prompt, "next paragraph edited")
	require.Contains(t, prompt, "the thesis")
	require.Contains(t, prompt, "warm")
}

func TestBuildEvaluationPrompt_BoundaryParagraphsUseMarkerFallback(t *testing.T) {
	r := paragraph.Record{Original: "only paragraph"}

	prompt := buildEvaluationPrompt(r, firstParagraphMarker, lastParagraphMarker, "", "")

	require.Contains(t, prompt, firstParagraphMarker)
	require.Contains(t, prompt, lastParagraphMarker)
}

func newEvaluateTestFixture(t *testing.T) (*fakeStore, string) {
	t.Helper()
	rootDir := t.TempDir()

	store := newFakeStore()
	store.jwr = newTestJWR()
	store.setStage(model.StageEditParagraphs, model.StateSuccess, 1)
	store.setStage(model.StageEvaluateParagraphs, model.StatePending, 0)
	return store, rootDir
}

// TestEvaluateExecutor_PromptThreadsNeighborsAndMetadata covers spec.md
// §4.D: the submitted prompt must carry the neighboring paragraphs' edited
// text plus the sermon's thesis/tone, not just this paragraph in isolation.
func TestEvaluateExecutor_PromptThreadsNeighborsAndMetadata(t *testing.T) {
	store, rootDir := newEvaluateTestFixture(t)

	layout, err := artifact.NewLayout(rootDir, "job-1")
	require.NoError(t, err)
	require.NoError(t, artifact.WriteJSONAtomic(layout.Metadata(), map[string]string{
		"thesis": "grace abounds",
		"tone":   "urgent and exhortative",
	}))

	first := "first paragraph edited"
	second := "second paragraph edited"
	records := []paragraph.Record{
		{Index: 0, Original: "first original", Edited: &first, EvaluationStatus: common.EvalStatusPending},
		{Index: 1, Original: "second original", Edited: &second, EvaluationStatus: common.EvalStatusPending},
	}
	require.NoError(t, paragraph.Save(layout.Paragraphs(), records))

	var capturedPrompts []string
	client := &capturingLLMClient{
		onSubmit: func(prompt string) (llm.Result, error) {
			capturedPrompts = append(capturedPrompts, prompt)
			return llm.Result{OK: true, Output: "Rating: 9\n\nGood as is."}, nil
		},
	}

	exec := NewEvaluateExecutor(store, rootDir, client)
	err = exec.Advance(context.Background(), "job-1")
	require.NoError(t, err)
	require.Len(t, capturedPrompts, 2)

	require.Contains(t, capturedPrompts[0], firstParagraphMarker)
	require.Contains(t, capturedPrompts[0], "second paragraph edited")
	require.Contains(t, capturedPrompts[0], "grace abounds")
	require.Contains(t, capturedPrompts[0], "urgent and exhortative")

	require.Contains(t, capturedPrompts[1], "first paragraph edited")
	require.Contains(t, capturedPrompts[1], lastParagraphMarker)
}

type capturingLLMClient struct {
	onSubmit func(prompt string) (llm.Result, error)
}

func (c *capturingLLMClient) SubmitPrompt(ctx context.Context, prompt string) (llm.Result, error) {
	return c.onSubmit(prompt)
}
