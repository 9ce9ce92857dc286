package common

// Shared constants to enforce DRY and avoid magic strings/numbers.

// Content types
const (
	ContentTypeJSON = "application/json"
	ContentTypeMPEG = "audio/mpeg"
)

// Transcription worker wire protocol paths.
const (
	PathNewJob          = "/new-job"
	PathReportJobStatus = "/report-job-status"
	PathRetrieveJob     = "/retrieve-job"
)

// Transcription worker multipart form field names.
const (
	FieldFile         = "file"
	FieldWhisperModel = "whisper_model"
	FieldULID         = "ulid_"
)

// Transcription worker status strings.
const (
	WorkerStatusDeployed  = "deployed"
	WorkerStatusCompleted = "completed"
	WorkerStatusRunning   = "running"
	WorkerStatusFailed    = "failed"
)

// Defaults and limits
const (
	DefaultWorkerCount  = 4
	SQLiteBusyTimeoutMS = 5000
	DefaultMaxAttempts  = 5
)

// Job directory artifact filenames, per the artifact layout.
const (
	AudioFullBase              = "audio_full"
	AudioSegmentName           = "audio_segment.mp3"
	WhisperTranscriptName      = "whisper_transcript.txt"
	FormattedTranscriptName    = "formatted_transcript.txt"
	MetadataFileName           = "metadata.json"
	ParagraphsFileName         = "paragraphs.json"
	FinishedDocumentName       = "finished_document.txt"
	TranscribeDeployMarkerName = "transcribe_deployed.marker"
)

// Subdirectory names under the configured root.
const (
	JobsDirName = "jobs"
	LogsDirName = "logs"
)

// Paragraph evaluation status strings.
const (
	EvalStatusPending     = "pending"
	EvalStatusPassed      = "passed"
	EvalStatusFailed      = "failed"
	EvalStatusRegenerated = "regenerated"
)

// MetadataCategories lists the metadata categories in generation order.
var MetadataCategories = []string{"title", "thesis", "summary", "outline", "tone", "main_text"}

// ErrorMarker is stored in a metadata or paragraph field when generation
// failed for a non-quota reason, so the field is non-null but recognizably
// unusable and eligible for a future retry.
const ErrorMarker = "[ERROR] - see logs"

// EvaluationPassRating is the minimum rating (inclusive) for a paragraph to
// be marked passed instead of triggering regeneration.
const EvaluationPassRating = 8

// Formatter defaults.
const (
	DefaultSentenceChunkSize   = 25
	DefaultContextParagraphs   = 1
	ParagraphBreakGuardMinimum = 3
)
