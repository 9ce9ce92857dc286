package stage

import (
	"context"
	"os"
	"regexp"
	"strings"

	"github.com/jo-hoe/sermonforge/internal/artifact"
	"github.com/jo-hoe/sermonforge/internal/common"
	"github.com/jo-hoe/sermonforge/internal/llm"
	"github.com/jo-hoe/sermonforge/internal/model"
	"github.com/jo-hoe/sermonforge/internal/paragraph"
	"github.com/jo-hoe/sermonforge/internal/stageerr"
)

// EditExecutor runs the edit_paragraphs stage: on first run, split the
// formatted transcript into paragraphs.json entries with a prompt built
// from each paragraph's neighbors; on every run, send the entries still
// missing a usable edit to the language model.
type EditExecutor struct {
	base
	store   model.Store
	rootDir string
	client  llm.Client
}

// NewEditExecutor builds the edit_paragraphs executor.
func NewEditExecutor(store model.Store, rootDir string, client llm.Client) *EditExecutor {
	return &EditExecutor{
		base:    newBase(store, model.StageEditParagraphs),
		store:   store,
		rootDir: rootDir,
		client:  client,
	}
}

// Advance runs one attempt of edit_paragraphs for jobID.
func (e *EditExecutor) Advance(ctx context.Context, jobID string) error {
	return e.run(ctx, jobID, func(ctx context.Context, jwr *model.JobWithRecording) (string, error) {
		layout, err := artifact.NewLayout(e.rootDir, jobID)
		if err != nil {
			return "", stageerr.New(stageerr.KindBug, "create job layout", err)
		}
		paragraphsPath := layout.Paragraphs()

		var records []paragraph.Record
		if artifact.Exists(paragraphsPath) {
			records, err = paragraph.Load(paragraphsPath)
			if err != nil {
				return "", stageerr.Corruption("load paragraphs.json", err)
			}
		} else {
			records, err = e.buildInitialRecords(ctx, jobID, layout)
			if err != nil {
				return "", err
			}
			if err := paragraph.Save(paragraphsPath, records); err != nil {
				return "", stageerr.New(stageerr.KindBug, "save paragraphs.json", err)
			}
		}

		for i := range records {
			if !records[i].NeedsEdit() {
				continue
			}
			result, submitErr := e.client.SubmitPrompt(ctx, records[i].Prompt)
			if submitErr != nil || !result.OK {
				marker := common.ErrorMarker
				records[i].Edited = &marker
			} else {
				out := result.Output
				records[i].Edited = &out
			}
			if err := paragraph.Save(paragraphsPath, records); err != nil {
				return "", stageerr.New(stageerr.KindBug, "save paragraphs.json", err)
			}
		}

		for i := range records {
			if records[i].NeedsEdit() {
				return "", stageerr.Transient("not all paragraphs edited this run", nil)
			}
		}
		return paragraphsPath, nil
	})
}

func (e *EditExecutor) buildInitialRecords(ctx context.Context, jobID string, layout artifact.Layout) ([]paragraph.Record, error) {
	formatStage, err := e.store.GetStage(ctx, jobID, model.StageFormatParagraphs)
	if err != nil {
		return nil, stageerr.New(stageerr.KindBug, "read format_paragraphs stage", err)
	}
	if formatStage.OutputPath == "" {
		return nil, stageerr.Precondition("format_paragraphs has no output path")
	}
	raw, err := os.ReadFile(formatStage.OutputPath) // #nosec G304 - path is our own job-directory layout
	if err != nil {
		return nil, stageerr.Corruption("read formatted transcript", err)
	}

	tone := "neutral"
	if artifact.Exists(layout.Metadata()) {
		var metadata map[string]string
		if err := artifact.ReadJSON(layout.Metadata(), &metadata); err == nil {
			if t, ok := metadata["tone"]; ok && t != "" {
				tone = t
			}
		}
	}

	texts := splitBlankLineParagraphs(string(raw))
	if len(texts) == 0 {
		return nil, stageerr.Permanent("formatted transcript produced no paragraphs to edit", nil)
	}
	return paragraph.NewFromParagraphs(texts, buildEditPrompt(tone)), nil
}

var blankLineSplitRe = regexp.MustCompile(`\n\s*\n`)

// splitBlankLineParagraphs splits text on blank lines, dropping empty
// entries, matching the original pipeline's paragraph segmentation.
func splitBlankLineParagraphs(text string) []string {
	parts := blankLineSplitRe.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func buildEditPrompt(tone string) func(index int, prev, target, next string) string {
	return func(index int, prev, target, next string) string {
		switch {
		case prev == "" && next != "":
			return fillEditTemplate(editFirstTemplate, tone, prev, target, next)
		case next == "" && prev != "":
			return fillEditTemplate(editLastTemplate, tone, prev, target, next)
		default:
			return fillEditTemplate(editStandardTemplate, tone, prev, target, next)
		}
	}
}

func fillEditTemplate(template, tone, prev, target, next string) string {
	r := strings.NewReplacer(
		"{{SPEAKER_TONE}}", tone,
		"{{PARAGRAPH_PREV}}", prev,
		"{{PARAGRAPH_TARGET}}", target,
		"{{PARAGRAPH_NEXT}}", next,
	)
	return r.Replace(template)
}

const editFirstTemplate = `You are editing the opening paragraph of a sermon transcript for publication. Speaker tone: {{SPEAKER_TONE}}.
Lightly polish grammar and clarity without changing the meaning or removing content.

### PARAGRAPH
{{PARAGRAPH_TARGET}}

### FOLLOWED BY
{{PARAGRAPH_NEXT}}

Respond with the edited paragraph only.`

const editLastTemplate = `You are editing the closing paragraph of a sermon transcript for publication. Speaker tone: {{SPEAKER_TONE}}.
Lightly polish grammar and clarity without changing the meaning or removing content.

### PRECEDED BY
{{PARAGRAPH_PREV}}

### PARAGRAPH
{{PARAGRAPH_TARGET}}

Respond with the edited paragraph only.`

const editStandardTemplate = `You are editing a paragraph of a sermon transcript for publication. Speaker tone: {{SPEAKER_TONE}}.
Lightly polish grammar and clarity without changing the meaning or removing content.

### PRECEDED BY
{{PARAGRAPH_PREV}}

### PARAGRAPH
{{PARAGRAPH_TARGET}}

### FOLLOWED BY
{{PARAGRAPH_NEXT}}

Respond with the edited paragraph only.`
