// Package paragraph manages paragraphs.json: the per-paragraph record the
// edit_paragraphs and evaluate_paragraphs stages read and progressively
// fill in across one or more runs.
package paragraph

import (
	"fmt"

	"github.com/jo-hoe/sermonforge/internal/artifact"
	"github.com/jo-hoe/sermonforge/internal/common"
)

// Record is one paragraph's state as it moves through editing and
// evaluation. Edited, Critique, RegenerationPrompt, and Rating stay nil
// until the corresponding stage has produced them.
type Record struct {
	Index              int     `json:"index"`
	Original           string  `json:"original"`
	Prompt             string  `json:"prompt"`
	Edited             *string `json:"edited"`
	EvaluationStatus   string  `json:"evaluation_status"`
	Critique           *string `json:"critique"`
	Rating             *int    `json:"rating"`
	RegenerationPrompt *string `json:"regeneration_prompt"`
}

// IsEdited reports whether the edit_paragraphs stage has produced output
// (success or marked error) for this paragraph.
func (r Record) IsEdited() bool {
	return r.Edited != nil
}

// NeedsEdit reports whether edit_paragraphs still owes this paragraph a
// pass: never attempted, or previously failed with the error marker.
func (r Record) NeedsEdit() bool {
	return r.Edited == nil || *r.Edited == common.ErrorMarker
}

// Passed reports whether the paragraph cleared evaluation.
func (r Record) Passed() bool {
	return r.EvaluationStatus == common.EvalStatusPassed
}

// Load reads paragraphs.json from path.
func Load(path string) ([]Record, error) {
	var records []Record
	if err := artifact.ReadJSON(path, &records); err != nil {
		return nil, fmt.Errorf("load paragraphs: %w", err)
	}
	return records, nil
}

// Save atomically overwrites paragraphs.json at path with records.
func Save(path string, records []Record) error {
	if err := artifact.WriteJSONAtomic(path, records); err != nil {
		return fmt.Errorf("save paragraphs: %w", err)
	}
	return nil
}

// NewFromParagraphs builds the initial record set for one paragraph per
// entry in texts, each carrying the prompt buildPrompt produced for it
// given its neighbors.
func NewFromParagraphs(texts []string, buildPrompt func(index int, prev, target, next string) string) []Record {
	records := make([]Record, len(texts))
	for i, text := range texts {
		var prev, next string
		if i > 0 {
			prev = texts[i-1]
		}
		if i < len(texts)-1 {
			next = texts[i+1]
		}
		records[i] = Record{
			Index:            i,
			Original:         text,
			Prompt:           buildPrompt(i, prev, text, next),
			EvaluationStatus: common.EvalStatusPending,
		}
	}
	return records
}
