package stage

import (
	"context"
	"os"
	"strings"

	"github.com/jo-hoe/sermonforge/internal/artifact"
	"github.com/jo-hoe/sermonforge/internal/common"
	"github.com/jo-hoe/sermonforge/internal/llm"
	"github.com/jo-hoe/sermonforge/internal/model"
	"github.com/jo-hoe/sermonforge/internal/stageerr"
)

// MetadataExecutor runs the extract_metadata stage: fill in each configured
// metadata category that is still missing from metadata.json, one language
// model call (or, for thesis, several) per category.
type MetadataExecutor struct {
	base
	store   model.Store
	rootDir string
	client  llm.Client // language-model endpoint; a quota-exhausted result halts the stage
}

// NewMetadataExecutor builds the extract_metadata executor.
func NewMetadataExecutor(store model.Store, rootDir string, client llm.Client) *MetadataExecutor {
	return &MetadataExecutor{
		base:    newBase(store, model.StageExtractMetadata),
		store:   store,
		rootDir: rootDir,
		client:  client,
	}
}

// Advance runs one attempt of extract_metadata for jobID.
func (e *MetadataExecutor) Advance(ctx context.Context, jobID string) error {
	return e.run(ctx, jobID, func(ctx context.Context, jwr *model.JobWithRecording) (string, error) {
		formatStage, err := e.store.GetStage(ctx, jobID, model.StageFormatParagraphs)
		if err != nil {
			return "", stageerr.New(stageerr.KindBug, "read format_paragraphs stage", err)
		}
		if formatStage.OutputPath == "" {
			return "", stageerr.Precondition("format_paragraphs has no output path")
		}
		raw, err := os.ReadFile(formatStage.OutputPath) // #nosec G304 - path is our own job-directory layout
		if err != nil {
			return "", stageerr.Corruption("read formatted transcript", err)
		}
		transcriptText := string(raw)

		layout, err := artifact.NewLayout(e.rootDir, jobID)
		if err != nil {
			return "", stageerr.New(stageerr.KindBug, "create job layout", err)
		}
		metaPath := layout.Metadata()

		metadata := map[string]string{}
		if artifact.Exists(metaPath) {
			if err := artifact.ReadJSON(metaPath, &metadata); err != nil {
				return "", stageerr.Corruption("read metadata.json", err)
			}
		}

		for _, category := range common.MetadataCategories {
			if !categoryNeedsWork(metadata, category) {
				continue
			}

			gen, ok := metadataGenerators[category]
			if !ok {
				return "", stageerr.Bug("no generator registered for metadata category " + category)
			}

			result, err := gen(ctx, e.client, transcriptText)
			if err != nil {
				metadata[category] = common.ErrorMarker
				if werr := artifact.WriteJSONAtomic(metaPath, metadata); werr != nil {
					return "", stageerr.New(stageerr.KindBug, "save metadata.json", werr)
				}
				continue
			}
			if result.Kind == llm.KindQuotaExhausted {
				return "", stageerr.Quota("quota exhausted generating category " + category)
			}
			if !result.OK {
				metadata[category] = common.ErrorMarker
				if werr := artifact.WriteJSONAtomic(metaPath, metadata); werr != nil {
					return "", stageerr.New(stageerr.KindBug, "save metadata.json", werr)
				}
				continue
			}

			metadata[category] = result.Output
			if err := artifact.WriteJSONAtomic(metaPath, metadata); err != nil {
				return "", stageerr.New(stageerr.KindBug, "save metadata.json", err)
			}
		}

		for _, category := range common.MetadataCategories {
			if categoryNeedsWork(metadata, category) {
				return "", stageerr.Transient("not all metadata categories generated this run", nil)
			}
		}

		return metaPath, nil
	})
}

// categoryNeedsWork reports whether category still owes generation work:
// never attempted, empty, or left holding an error marker from a failed
// attempt. Mirrors paragraph.Record.NeedsEdit()'s error-marker-aware check.
func categoryNeedsWork(metadata map[string]string, category string) bool {
	v, ok := metadata[category]
	return !ok || v == "" || v == common.ErrorMarker
}

type metadataGenerator func(ctx context.Context, client llm.Client, transcript string) (llm.Result, error)

var metadataGenerators = map[string]metadataGenerator{
	"title":     simpleCategoryGenerator(titlePromptTemplate),
	"summary":   simpleCategoryGenerator(summaryPromptTemplate),
	"outline":   simpleCategoryGenerator(outlinePromptTemplate),
	"tone":      simpleCategoryGenerator(tonePromptTemplate),
	"main_text": simpleCategoryGenerator(mainTextPromptTemplate),
	"thesis":    generateThesis,
}

func simpleCategoryGenerator(template string) metadataGenerator {
	return func(ctx context.Context, client llm.Client, transcript string) (llm.Result, error) {
		prompt := strings.ReplaceAll(template, "{{SERMON_TEXT}}", transcript)
		return client.SubmitPrompt(ctx, prompt)
	}
}

// generateThesis drafts three independent candidate theses, then asks the
// model to pick (or synthesize) the best one, trading one extra call for
// more stable output on a category with a lot of variance.
func generateThesis(ctx context.Context, client llm.Client, transcript string) (llm.Result, error) {
	prompt := strings.ReplaceAll(thesisPromptTemplate, "{{SERMON_TEXT}}", transcript)

	drafts := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		r, err := client.SubmitPrompt(ctx, prompt)
		if err != nil || !r.OK {
			return r, err
		}
		drafts = append(drafts, r.Output)
	}

	decision := thesisDecisionTemplate
	decision = strings.ReplaceAll(decision, "{{T1}}", drafts[0])
	decision = strings.ReplaceAll(decision, "{{T2}}", drafts[1])
	decision = strings.ReplaceAll(decision, "{{T3}}", drafts[2])
	decision = strings.ReplaceAll(decision, "{{SERMON_TEXT}}", transcript)
	return client.SubmitPrompt(ctx, decision)
}

const titlePromptTemplate = `Read the following sermon transcript and propose a short, descriptive title for it.

### SERMON
{{SERMON_TEXT}}

Respond with the title only, no quotation marks.`

const summaryPromptTemplate = `Summarize the following sermon transcript in two to three sentences.

### SERMON
{{SERMON_TEXT}}`

const outlinePromptTemplate = `Produce a short bullet-point outline of the main points covered in this sermon transcript.

### SERMON
{{SERMON_TEXT}}`

const tonePromptTemplate = `Describe the speaker's tone in this sermon transcript in a few words (e.g. "warm and conversational", "urgent and exhortative").

### SERMON
{{SERMON_TEXT}}`

const mainTextPromptTemplate = `Identify the primary scripture passage(s) referenced as the main text of this sermon transcript, if any.

### SERMON
{{SERMON_TEXT}}`

const thesisPromptTemplate = `State the single central thesis of this sermon transcript in one sentence.

### SERMON
{{SERMON_TEXT}}`

const thesisDecisionTemplate = `Three candidate thesis statements were drafted independently for the same sermon. Choose the one that most faithfully captures the sermon's central point, or synthesize a better single sentence from them if none is quite right. Respond with one sentence only.

### CANDIDATE 1
{{T1}}

### CANDIDATE 2
{{T2}}

### CANDIDATE 3
{{T3}}

### SERMON
{{SERMON_TEXT}}`
