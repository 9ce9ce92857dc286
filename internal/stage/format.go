package stage

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/jo-hoe/sermonforge/internal/artifact"
	"github.com/jo-hoe/sermonforge/internal/common"
	"github.com/jo-hoe/sermonforge/internal/llm"
	"github.com/jo-hoe/sermonforge/internal/model"
	"github.com/jo-hoe/sermonforge/internal/stageerr"
)

// FormatExecutor runs the format_paragraphs stage: clean the raw
// transcript, split it into sentences, and ask a language model where each
// paragraph should break, chunk by chunk.
type FormatExecutor struct {
	base
	store   model.Store
	rootDir string
	client  llm.Client
}

// NewFormatExecutor builds the format_paragraphs executor. client is
// expected to be the local (Ollama-style) endpoint; this stage runs once
// per sentence chunk and is too chatty for a quota-limited cloud endpoint.
func NewFormatExecutor(store model.Store, rootDir string, client llm.Client) *FormatExecutor {
	return &FormatExecutor{
		base:    newBase(store, model.StageFormatParagraphs),
		store:   store,
		rootDir: rootDir,
		client:  client,
	}
}

// Advance runs one attempt of format_paragraphs for jobID.
func (e *FormatExecutor) Advance(ctx context.Context, jobID string) error {
	return e.run(ctx, jobID, func(ctx context.Context, jwr *model.JobWithRecording) (string, error) {
		transcribeStage, err := e.store.GetStage(ctx, jobID, model.StageTranscribe)
		if err != nil {
			return "", stageerr.New(stageerr.KindBug, "read transcribe stage", err)
		}
		if transcribeStage.OutputPath == "" {
			return "", stageerr.Precondition("transcribe has no output path")
		}

		raw, err := os.ReadFile(transcribeStage.OutputPath) // #nosec G304 - path is our own job-directory layout
		if err != nil {
			return "", stageerr.Corruption("read whisper transcript", err)
		}

		sentences := splitSentences(cleanText(string(raw)))
		if len(sentences) == 0 {
			return "", stageerr.Permanent("transcript produced no sentences to paragraph", nil)
		}

		var paragraphs []string
		idx := 0
		for idx < len(sentences) {
			end := idx + common.DefaultSentenceChunkSize
			if end > len(sentences) {
				end = len(sentences)
			}
			chunk := sentences[idx:end]

			ctxStart := len(paragraphs) - common.DefaultContextParagraphs
			if ctxStart < 0 {
				ctxStart = 0
			}

			result, err := e.client.SubmitPrompt(ctx, buildFormatPrompt(paragraphs[ctxStart:], chunk))
			if err != nil {
				return "", stageerr.Transient("ask model for paragraph break", err)
			}
			if result.Kind == llm.KindQuotaExhausted {
				return "", stageerr.Quota("quota exhausted during paragraph formatting")
			}

			moveBy := len(chunk)
			if result.OK {
				if offset, ok := parseBreakOffset(result.Output, len(chunk)); ok {
					switch {
					case offset < common.ParagraphBreakGuardMinimum && idx+offset < len(sentences):
						moveBy = len(chunk) // break too close to the start of the chunk; keep it together
					case offset > 0:
						moveBy = offset
					}
				}
			}

			paragraphs = append(paragraphs, strings.TrimSpace(strings.Join(sentences[idx:idx+moveBy], " ")))
			idx += moveBy
		}

		layout, err := artifact.NewLayout(e.rootDir, jobID)
		if err != nil {
			return "", stageerr.New(stageerr.KindBug, "create job layout", err)
		}
		out := layout.FormattedTranscript()
		if err := artifact.WriteFileAtomic(out, []byte(strings.Join(paragraphs, "\n\n")), 0o640); err != nil {
			return "", stageerr.New(stageerr.KindBug, "write formatted transcript", err)
		}
		return out, nil
	})
}

// whitespaceRunRe collapses runs of spaces and tabs only; newlines are left
// to the stutter pass, which rejoins all words with single spaces.
var whitespaceRunRe = regexp.MustCompile(`[ \t]+`)

// cleanText fixes hard line breaks, collapses whitespace runs, and
// deduplicates stuttered phrases that whisper-style transcripts sometimes
// produce on repeated words.
func cleanText(text string) string {
	joined := joinHardBreaks(text)
	collapsed := strings.TrimSpace(whitespaceRunRe.ReplaceAllString(joined, " "))
	return dedupeStutters(collapsed)
}

// joinHardBreaks replaces single newlines (those not adjacent to another
// newline) with a space, leaving blank-line paragraph breaks intact.
func joinHardBreaks(text string) string {
	runes := []rune(text)
	var b strings.Builder
	b.Grow(len(runes))
	for i, c := range runes {
		if c != '\n' {
			b.WriteRune(c)
			continue
		}
		prevNL := i > 0 && runes[i-1] == '\n'
		nextNL := i+1 < len(runes) && runes[i+1] == '\n'
		if prevNL || nextNL {
			b.WriteRune(c)
		} else {
			b.WriteRune(' ')
		}
	}
	return b.String()
}

// dedupeStutters collapses a phrase (one or more whitespace-separated
// words) that repeats immediately back-to-back down to a single
// occurrence. Go's RE2 engine has no backreferences, so this reimplements
// the intent of the original `(.+?)\1+` regex at word granularity.
func dedupeStutters(text string) string {
	words := strings.Fields(text)
	out := make([]string, 0, len(words))
	i := 0
	for i < len(words) {
		matched := false
		for l := (len(words) - i) / 2; l >= 1; l-- {
			if !wordRunEqual(words, i, i+l, l) {
				continue
			}
			out = append(out, words[i:i+l]...)
			j := i + l
			for j+l <= len(words) && wordRunEqual(words, i, j, l) {
				j += l
			}
			i = j
			matched = true
			break
		}
		if !matched {
			out = append(out, words[i])
			i++
		}
	}
	return strings.Join(out, " ")
}

func wordRunEqual(words []string, a, b, l int) bool {
	for k := 0; k < l; k++ {
		if words[a+k] != words[b+k] {
			return false
		}
	}
	return true
}

// splitSentences splits text after a '.', '?', or '!' run followed by
// whitespace or end-of-text, reimplementing `(?<=[.?!])\s+` without
// lookbehind support.
func splitSentences(text string) []string {
	runes := []rune(text)
	var sentences []string
	start := 0
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		if c != '.' && c != '?' && c != '!' {
			continue
		}
		j := i + 1
		for j < len(runes) && (runes[j] == '.' || runes[j] == '?' || runes[j] == '!') {
			j++
		}
		if j < len(runes) && !isSpace(runes[j]) {
			continue
		}
		if sentence := strings.TrimSpace(string(runes[start:j])); sentence != "" {
			sentences = append(sentences, sentence)
		}
		start = j
		i = j - 1
	}
	if trailing := strings.TrimSpace(string(runes[start:])); trailing != "" {
		sentences = append(sentences, trailing)
	}
	return sentences
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

var breakOffsetRe = regexp.MustCompile(`\d+`)

// parseBreakOffset extracts the first integer in s, clamped to [0, maxVal].
func parseBreakOffset(s string, maxVal int) (int, bool) {
	m := breakOffsetRe.FindString(s)
	if m == "" {
		return 0, false
	}
	v, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	if v < 0 {
		v = 0
	}
	if v > maxVal {
		v = maxVal
	}
	return v, true
}

func buildFormatPrompt(context []string, chunk []string) string {
	var b strings.Builder
	b.WriteString("### INSTRUCTION\n")
	b.WriteString("You are an editor. Identify the best index to start a NEW paragraph based on topic shifts.\n")
	b.WriteString("Avoid creating very short paragraphs (less than 3 sentences) unless the topic completely changes.\n\n")
	if len(context) > 0 {
		b.WriteString("### PREVIOUS CONTEXT\n")
		b.WriteString(context[len(context)-1])
		b.WriteString("\n---\n")
	}
	b.WriteString("### SENTENCES\n")
	for i, s := range chunk {
		fmt.Fprintf(&b, "%d: %s\n", i, s)
	}
	b.WriteString("\n### RESPONSE\n")
	fmt.Fprintf(&b, "Respond ONLY with the index number (0-%d).\n", len(chunk)-1)
	fmt.Fprintf(&b, "If no break is needed, respond with %d.\n", len(chunk))
	return b.String()
}
