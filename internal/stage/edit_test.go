package stage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitBlankLineParagraphs(t *testing.T) {
	in := "First paragraph.\n\nSecond paragraph spans\ntwo lines.\n\n\nThird paragraph."
	got := splitBlankLineParagraphs(in)
	require.Equal(t, []string{
		"First paragraph.",
		"Second paragraph spans\ntwo lines.",
		"Third paragraph.",
	}, got)
}

func TestSplitBlankLineParagraphs_DropsEmptyEntries(t *testing.T) {
	got := splitBlankLineParagraphs("\n\nonly one\n\n")
	require.Equal(t, []string{"only one"}, got)
}

func TestBuildEditPrompt_SelectsTemplateByPosition(t *testing.T) {
	build := buildEditPrompt("warm")

	first := build(0, "", "target", "next")
	require.Contains(t, first, "opening paragraph")

	last := build(2, "prev", "target", "")
	require.Contains(t, last, "closing paragraph")

	middle := build(1, "prev", "target", "next")
	require.NotContains(t, middle, "opening paragraph")
	require.NotContains(t, middle, "closing paragraph")
}
