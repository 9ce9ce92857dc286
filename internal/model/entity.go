package model

import "time"

// Recording holds metadata about a source media item. Created once per
// distinct source identifier and never mutated afterward (aside from an
// explicit metadata refresh, which is outside the core's scope).
type Recording struct {
	ID          int64
	SourceID    string // platform-assigned identifier, e.g. an 11-char video id
	Title       string
	Uploader    string
	Duration    int // seconds
	UploadDate  string
	URL         string
	Description string
	CreatedAt   time.Time
}

// Job is one processing run of a Recording over a time window.
type Job struct {
	ID           string // 26-character ULID
	RecordingID  int64
	StartSeconds int
	EndSeconds   int // 0 means "until end of audio"
	Directory    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Stage is the execution record of one named phase of one Job.
type Stage struct {
	JobID         string
	Name          StageName
	State         StageState
	AttemptCount  int
	LastError     string
	StartedAt     *time.Time
	FinishedAt    *time.Time
	NextEligibleAt time.Time
	OutputPath    string
}

// JobWithRecording bundles a Job with its parent Recording, the shape the
// Store's combined-fetch query returns.
type JobWithRecording struct {
	Job       Job
	Recording Recording
}
