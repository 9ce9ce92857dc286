package stage

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jo-hoe/sermonforge/internal/artifact"
	"github.com/jo-hoe/sermonforge/internal/llm"
	"github.com/jo-hoe/sermonforge/internal/model"
	"github.com/jo-hoe/sermonforge/internal/paragraph"
	"github.com/jo-hoe/sermonforge/internal/stageerr"
)

// ChapterExecutor runs the build_chapter stage: assemble the edited
// paragraphs into the final document, run a final-polish pass (primary
// endpoint with a fallback to the secondary on failure), and attach
// informational fidelity/publication-readiness audit notes.
type ChapterExecutor struct {
	base
	rootDir   string
	primary   llm.Client
	secondary llm.Client
}

// NewChapterExecutor builds the build_chapter executor.
func NewChapterExecutor(store model.Store, rootDir string, primary, secondary llm.Client) *ChapterExecutor {
	return &ChapterExecutor{
		base:      newBase(store, model.StageBuildChapter),
		rootDir:   rootDir,
		primary:   primary,
		secondary: secondary,
	}
}

// Advance runs one attempt of build_chapter for jobID.
func (e *ChapterExecutor) Advance(ctx context.Context, jobID string) error {
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

		edited := make([]string, 0, len(records))
		for _, r := range records {
			if r.NeedsEdit() {
				return "", stageerr.Precondition("paragraph " + strconv.Itoa(r.Index) + " is not fully edited")
			}
			edited = append(edited, *r.Edited)
		}
		cleaned := cleanChapterText(strings.Join(edited, "\n"))

		metadata := map[string]string{}
		if artifact.Exists(layout.Metadata()) {
			if err := artifact.ReadJSON(layout.Metadata(), &metadata); err != nil {
				return "", stageerr.Corruption("read metadata.json", err)
			}
		}
		title, thesis, summary, tone, outline := metadata["title"], metadata["thesis"], metadata["summary"], metadata["tone"], metadata["outline"]
		if title == "" {
			title = "Untitled Chapter"
		}

		polished := e.polish(ctx, cleaned, tone, thesis, outline)
		polished = cleanChapterText(polished)

		notes := e.reviewNotes(ctx, cleaned, polished, tone, thesis, summary, outline)
		_ = artifact.WriteFileAtomic(layout.Path("review_notes.log"), []byte(notes), 0o640) // informational only; failure here must not block the chapter

		var doc strings.Builder
		doc.WriteString(title + "\n")
		if jwr.Recording.UploadDate != "" {
			if formatted, ferr := time.Parse("20060102", jwr.Recording.UploadDate); ferr == nil {
				doc.WriteString(formatted.Format("02 January, 2006") + "\n")
			} else {
				doc.WriteString("Upload Date: " + jwr.Recording.UploadDate + "\n")
			}
		}
		doc.WriteString("Thesis: " + thesis + "\n")
		doc.WriteString("Summary: " + summary + "\n")
		doc.WriteString("Sermon\n")
		doc.WriteString(polished)

		outPath := layout.FinishedDocument()
		if err := artifact.WriteFileAtomic(outPath, []byte(doc.String()), 0o640); err != nil {
			return "", stageerr.New(stageerr.KindBug, "write finished document", err)
		}

		return outPath, nil
	})
}

// polish runs the final-pass prompt on the primary (cloud) endpoint,
// falling back to the secondary (local) endpoint on any failure, and to the
// unpolished text if both fail.
func (e *ChapterExecutor) polish(ctx context.Context, text, tone, thesis, outline string) string {
	prompt := buildFinalPolishPrompt(text, tone, thesis, outline)

	if result, err := e.primary.SubmitPrompt(ctx, prompt); err == nil && result.OK {
		return result.Output
	}
	if result, err := e.secondary.SubmitPrompt(ctx, prompt); err == nil && result.OK {
		return result.Output
	}
	return text
}

// reviewNotes runs the fidelity and publication-readiness audit prompts and
// renders their output as a sidecar log. Like the original, these are
// informational: their content never gates whether the chapter is saved.
func (e *ChapterExecutor) reviewNotes(ctx context.Context, original, polished, tone, thesis, summary, outline string) string {
	fidelity, _ := e.secondary.SubmitPrompt(ctx, buildFidelityPrompt(original, polished))
	audit, _ := e.secondary.SubmitPrompt(ctx, buildPublicationAuditPrompt(polished, tone, thesis, summary, outline))

	var b strings.Builder
	b.WriteString("=== Fidelity and Drift Evaluation ===\n")
	b.WriteString(fidelity.Output)
	b.WriteString("\n\n=== Publication Readiness Audit ===\n")
	b.WriteString(audit.Output)
	b.WriteString("\n")
	return b.String()
}

var blankLineRunRe = regexp.MustCompile(`\n{3,}`)

func cleanChapterText(text string) string {
	text = strings.ReplaceAll(text, "[...]", "")
	return blankLineRunRe.ReplaceAllString(text, "\n\n")
}

func buildFinalPolishPrompt(text, tone, thesis, outline string) string {
	var b strings.Builder
	b.WriteString("Perform a final editorial polish pass on this assembled sermon chapter. ")
	b.WriteString("Preserve its length and meaning; only tighten prose and fix flow issues.\n\n")
	b.WriteString("Speaker tone: " + tone + "\n")
	b.WriteString("Thesis: " + thesis + "\n")
	b.WriteString("Outline: " + outline + "\n\n")
	b.WriteString("### TEXT\n")
	b.WriteString(text)
	return b.String()
}

func buildFidelityPrompt(original, polished string) string {
	var b strings.Builder
	b.WriteString("Compare the polished sermon chapter below against the original and report whether the polish introduced any drift in meaning.\n\n")
	b.WriteString("### ORIGINAL\n")
	b.WriteString(original)
	b.WriteString("\n\n### POLISHED\n")
	b.WriteString(polished)
	return b.String()
}

func buildPublicationAuditPrompt(text, tone, thesis, summary, outline string) string {
	var b strings.Builder
	b.WriteString("Audit this sermon chapter for publication readiness: clarity, completeness, and consistency with its stated thesis and outline.\n\n")
	b.WriteString("Thesis: " + thesis + "\n")
	b.WriteString("Summary: " + summary + "\n")
	b.WriteString("Outline: " + outline + "\n")
	b.WriteString("Speaker tone: " + tone + "\n\n")
	b.WriteString("### TEXT\n")
	b.WriteString(text)
	return b.String()
}
