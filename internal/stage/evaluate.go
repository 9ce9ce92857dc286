package stage

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/jo-hoe/sermonforge/internal/artifact"
	"github.com/jo-hoe/sermonforge/internal/common"
	"github.com/jo-hoe/sermonforge/internal/llm"
	"github.com/jo-hoe/sermonforge/internal/model"
	"github.com/jo-hoe/sermonforge/internal/paragraph"
	"github.com/jo-hoe/sermonforge/internal/stageerr"
)

// EvaluateExecutor runs the evaluate_paragraphs stage: score every edited
// paragraph that has not yet passed, and regenerate (at most once per
// paragraph per run) any that fall below the pass threshold.
type EvaluateExecutor struct {
	base
	rootDir string
	client  llm.Client
}

// NewEvaluateExecutor builds the evaluate_paragraphs executor.
func NewEvaluateExecutor(store model.Store, rootDir string, client llm.Client) *EvaluateExecutor {
	return &EvaluateExecutor{
		base:    newBase(store, model.StageEvaluateParagraphs),
		rootDir: rootDir,
		client:  client,
	}
}

// Advance runs one attempt of evaluate_paragraphs for jobID.
func (e *EvaluateExecutor) Advance(ctx context.Context, jobID string) error {
	return e.run(ctx, jobID, func(ctx context.Context, jwr *model.JobWithRecording) (string, error) {
		layout, err := artifact.NewLayout(e.rootDir, jobID)
		if err != nil {
			return "", stageerr.New(stageerr.KindBug, "create job layout", err)
		}
		paragraphsPath := layout.Paragraphs()
		if !artifact.Exists(paragraphsPath) {
			return "", stageerr.Precondition("paragraphs.json does not exist yet")
		}

		records, err := paragraph.Load(paragraphsPath)
		if err != nil {
			return "", stageerr.Corruption("load paragraphs.json", err)
		}

		thesis, tone := "", ""
		if artifact.Exists(layout.Metadata()) {
			var metadata map[string]string
			if err := artifact.ReadJSON(layout.Metadata(), &metadata); err == nil {
				thesis = metadata["thesis"]
				tone = metadata["tone"]
			}
		}

		allPassed := true
		for i := range records {
			r := &records[i]
			if r.Passed() {
				continue
			}
			if r.NeedsEdit() {
				allPassed = false
				continue // edit_paragraphs owes this one a pass first
			}

			prevEdited := firstParagraphMarker
			if i > 0 && records[i-1].Edited != nil {
				prevEdited = *records[i-1].Edited
			}
			nextEdited := lastParagraphMarker
			if i < len(records)-1 && records[i+1].Edited != nil {
				nextEdited = *records[i+1].Edited
			}

			result, submitErr := e.client.SubmitPrompt(ctx, buildEvaluationPrompt(*r, prevEdited, nextEdited, thesis, tone))
			if submitErr != nil || !result.OK {
				allPassed = false
				continue
			}

			rating, critique, ok := parseEvaluation(result.Output)
			if !ok {
				allPassed = false
				continue
			}
			r.Rating = &rating

			if rating >= common.EvaluationPassRating {
				r.EvaluationStatus = common.EvalStatusPassed
				continue
			}

			allPassed = false
			critiqueCopy := critique
			r.Critique = &critiqueCopy

			regenPrompt := buildRegenerationPrompt(*r, critique)
			promptCopy := regenPrompt
			r.RegenerationPrompt = &promptCopy

			regenResult, regenErr := e.client.SubmitPrompt(ctx, regenPrompt)
			if regenErr == nil && regenResult.OK {
				edited := regenResult.Output
				r.Edited = &edited
				r.EvaluationStatus = common.EvalStatusRegenerated
			} else {
				r.EvaluationStatus = common.EvalStatusFailed
			}
		}

		if err := paragraph.Save(paragraphsPath, records); err != nil {
			return "", stageerr.New(stageerr.KindBug, "save paragraphs.json", err)
		}
		if !allPassed {
			return "", stageerr.Transient("not all paragraphs passed evaluation this run", nil)
		}
		return paragraphsPath, nil
	})
}

var ratingRe = regexp.MustCompile(`Rating:\s*(\d+)`)

const critiqueMarker = "CRITIQUE FOR REDO:"

// parseEvaluation extracts the "Rating: <int>" line and the critique block
// that follows a "CRITIQUE FOR REDO:" marker up to the next blank line,
// reimplementing the original's `(?=\n\n|\Z)` lookahead without RE2
// lookahead support.
func parseEvaluation(response string) (rating int, critique string, ok bool) {
	m := ratingRe.FindStringSubmatch(response)
	if m == nil {
		return 0, "", false
	}
	rating, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, "", false
	}

	idx := strings.Index(response, critiqueMarker)
	if idx == -1 {
		return rating, "", true
	}
	rest := strings.TrimPrefix(response[idx+len(critiqueMarker):], "\n")
	if end := strings.Index(rest, "\n\n"); end != -1 {
		rest = rest[:end]
	}
	return rating, strings.TrimSpace(rest), true
}

const (
	firstParagraphMarker = "This is the first paragraph."
	lastParagraphMarker  = "This is the last paragraph."
)

// buildEvaluationPrompt mirrors evaluator.py's _build_evaluation_prompt:
// the paragraph's own original/edited text plus its neighbors' edited text
// (falling back to a boundary marker at the start/end of the sequence) and
// the sermon's thesis/tone from metadata.json, so the rating reflects
// continuity with the surrounding paragraphs, not just this one in isolation.
func buildEvaluationPrompt(r paragraph.Record, prevEdited, nextEdited, thesis, tone string) string {
	edited := ""
	if r.Edited != nil {
		edited = *r.Edited
	}
	var b strings.Builder
	b.WriteString("Evaluate the edited version of this sermon paragraph against the original. ")
	b.WriteString("Reply with a line 'Rating: <0-10>' and, if the rating is below 8, a 'CRITIQUE FOR REDO:' block explaining what to fix.\n\n")
	b.WriteString("### ORIGINAL\n")
	b.WriteString(r.Original)
	b.WriteString("\n\n### EDITED\n")
	b.WriteString(edited)
	b.WriteString("\n\n### PREVIOUS PARAGRAPH (EDITED)\n")
	b.WriteString(prevEdited)
	b.WriteString("\n\n### NEXT PARAGRAPH (EDITED)\n")
	b.WriteString(nextEdited)
	b.WriteString("\n\n### THESIS\n")
	b.WriteString(thesis)
	b.WriteString("\n\n### SPEAKER TONE\n")
	b.WriteString(tone)
	return b.String()
}

func buildRegenerationPrompt(r paragraph.Record, critique string) string {
	var b strings.Builder
	b.WriteString("Revise this sermon paragraph edit to address the critique below. Keep the original meaning and tone.\n\n")
	b.WriteString("### ORIGINAL\n")
	b.WriteString(r.Original)
	b.WriteString("\n\n### PREVIOUS EDIT\n")
	if r.Edited != nil {
		b.WriteString(*r.Edited)
	}
	b.WriteString("\n\n### CRITIQUE\n")
	b.WriteString(critique)
	b.WriteString("\n\nRespond with the revised paragraph only.")
	return b.String()
}
