package domain

import "time"

// Status is the lifecycle state of a processing job.
type Status string

const (
	StatusUploaded   Status = "uploaded"
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// MaxRetries bounds how many times the DLQ monitor re-drives a failed job.
const MaxRetries = 3

// transitions is the closed set of legal status edges. The error -> queued
// edge is the DLQ re-drive and queued -> uploaded undoes a failed enqueue;
// everything else moves strictly forward.
var transitions = map[Status][]Status{
	StatusUploaded:   {StatusQueued},
	StatusQueued:     {StatusProcessing, StatusUploaded},
	StatusProcessing: {StatusCompleted, StatusError},
	StatusError:      {StatusQueued, StatusProcessing},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status ends the client polling loop.
// error is terminal from the client's point of view; the DLQ monitor may
// still re-drive it while the retry budget lasts.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

// MediaType distinguishes uploads that need audio extraction from those
// that are already audio.
type MediaType string

const (
	MediaTypeAudio MediaType = "audio"
	MediaTypeVideo MediaType = "video"
)

// Job is one tracked unit of work from upload to transcript completion.
type Job struct {
	JobID         string    `db:"job_id"`
	Filename      string    `db:"filename"`
	SourceBucket  string    `db:"source_bucket"`
	SourceKey     string    `db:"source_key"`
	MediaType     MediaType `db:"media_type"`
	Status        Status    `db:"status"`
	AttemptCount  int       `db:"attempt_count"`
	TranscriptKey string    `db:"transcript_key"`
	Summary       string    `db:"summary"`
	ErrorDetail   string    `db:"error_detail"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// WorkMessage is the queue payload correlating to a Job. source bucket/key
// are denormalized so a worker can fetch without a store read.
type WorkMessage struct {
	JobID        string    `json:"job_id"`
	SourceBucket string    `json:"source_bucket"`
	SourceKey    string    `json:"source_key"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
}

// audioExtensions are upload formats that skip audio extraction.
var audioExtensions = map[string]bool{
	"mp3": true, "wav": true, "aac": true, "ogg": true,
	"flac": true, "m4a": true, "wma": true,
}

// videoExtensions are the accepted video upload formats.
var videoExtensions = map[string]bool{
	"mp4": true, "avi": true, "mov": true, "wmv": true,
	"flv": true, "webm": true,
}

// MediaTypeForExtension classifies a lowercased file extension (without dot)
// as audio or video. The second return is false for unsupported formats.
func MediaTypeForExtension(ext string) (MediaType, bool) {
	switch {
	case audioExtensions[ext]:
		return MediaTypeAudio, true
	case videoExtensions[ext]:
		return MediaTypeVideo, true
	default:
		return "", false
	}
}
