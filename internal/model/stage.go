package model

// StageName identifies one named phase of a Job's processing.
type StageName string

const (
	StageDownloadAudio      StageName = "download_audio"
	StageExtractSegment     StageName = "extract_segment"
	StageTranscribe         StageName = "transcribe"
	StageFormatParagraphs   StageName = "format_paragraphs"
	StageExtractMetadata    StageName = "extract_metadata"
	StageEditParagraphs     StageName = "edit_paragraphs"
	StageEvaluateParagraphs StageName = "evaluate_paragraphs"
	StageBuildChapter       StageName = "build_chapter"
)

// StageState is one of the lifecycle states a Stage record can occupy.
type StageState string

const (
	StatePending   StageState = "pending"
	StateRunning   StageState = "running"
	StateBlocked   StageState = "blocked"
	StateSuccess   StageState = "success"
	StateFailed    StageState = "failed"
)

// StageDef describes one entry in the fixed stage catalog: its predecessor,
// whether the Dispatcher may retry it automatically, and the attempt cap
// after which it stops doing so. The catalog is closed at build time —
// adding a stage is a code change, never configuration.
type StageDef struct {
	Name        StageName
	Prev        StageName // empty for the first stage
	AutoRetry   bool
	MaxAttempts int
}

// StageCatalog is the ordered, fixed list of stages every Job passes
// through. Index order is catalog order.
var StageCatalog = []StageDef{
	{Name: StageDownloadAudio, Prev: "", AutoRetry: true, MaxAttempts: 5},
	{Name: StageExtractSegment, Prev: StageDownloadAudio, AutoRetry: true, MaxAttempts: 5},
	{Name: StageTranscribe, Prev: StageExtractSegment, AutoRetry: true, MaxAttempts: 5},
	{Name: StageFormatParagraphs, Prev: StageTranscribe, AutoRetry: true, MaxAttempts: 5},
	{Name: StageExtractMetadata, Prev: StageFormatParagraphs, AutoRetry: true, MaxAttempts: 5},
	{Name: StageEditParagraphs, Prev: StageExtractMetadata, AutoRetry: true, MaxAttempts: 5},
	{Name: StageEvaluateParagraphs, Prev: StageEditParagraphs, AutoRetry: true, MaxAttempts: 5},
	{Name: StageBuildChapter, Prev: StageEvaluateParagraphs, AutoRetry: false, MaxAttempts: 3},
}

// StageIndex maps a stage name to its position in StageCatalog.
var StageIndex = func() map[StageName]int {
	m := make(map[StageName]int, len(StageCatalog))
	for i, d := range StageCatalog {
		m[d.Name] = i
	}
	return m
}()

// StageDefFor returns the catalog entry for name, or false if name is not a
// known stage.
func StageDefFor(name StageName) (StageDef, bool) {
	i, ok := StageIndex[name]
	if !ok {
		return StageDef{}, false
	}
	return StageCatalog[i], true
}

// FirstStage is the catalog's first stage.
func FirstStage() StageName { return StageCatalog[0].Name }

// IsFirstStage reports whether name has no predecessor.
func IsFirstStage(name StageName) bool {
	d, ok := StageDefFor(name)
	return ok && d.Prev == ""
}

// BackoffSchedule is the default retry delay schedule, keyed by attempt
// count (1-indexed). An attempt beyond the table length uses the last
// entry.
var BackoffSchedule = []int{0, 30, 120, 600, 3600} // seconds: 0, 30s, 2min, 10min, 1h

// BackoffSeconds returns the number of seconds to wait before attempt
// attemptCount becomes eligible again.
func BackoffSeconds(attemptCount int) int {
	if attemptCount <= 0 {
		return 0
	}
	idx := attemptCount - 1
	if idx >= len(BackoffSchedule) {
		idx = len(BackoffSchedule) - 1
	}
	return BackoffSchedule[idx]
}
