package blobstore

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Key layout, fixed at presign time:
//
//	videos/{job_id}_{filename}            source upload
//	transcripts/{job_id}/transcript.txt   transcript artifact

const (
	sourcePrefix     = "videos/"
	transcriptPrefix = "transcripts/"
)

// SourceKey builds the upload key for a new job
func SourceKey(jobID, filename string) string {
	return fmt.Sprintf("%s%s_%s", sourcePrefix, jobID, filename)
}

// TranscriptKey builds the transcript artifact key for a job
func TranscriptKey(jobID string) string {
	return fmt.Sprintf("%s%s/transcript.txt", transcriptPrefix, jobID)
}

// ParseSourceKey extracts the job id and original filename from a source
// key. ok is false when the key does not follow the upload layout.
func ParseSourceKey(key string) (jobID, filename string, ok bool) {
	rest, found := strings.CutPrefix(key, sourcePrefix)
	if !found {
		return "", "", false
	}

	id, name, found := strings.Cut(rest, "_")
	if !found || name == "" {
		return "", "", false
	}

	if _, err := uuid.Parse(id); err != nil {
		return "", "", false
	}

	return id, name, true
}
