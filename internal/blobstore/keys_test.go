package blobstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSourceKeyRoundTrip(t *testing.T) {
	key := SourceKey("b0c9dd70-9f3a-4f38-9b2f-6a70be7e9c10", "lecture.mp4")
	assert.Equal(t, "videos/b0c9dd70-9f3a-4f38-9b2f-6a70be7e9c10_lecture.mp4", key)

	jobID, filename, ok := ParseSourceKey(key)
	assert.True(t, ok)
	assert.Equal(t, "b0c9dd70-9f3a-4f38-9b2f-6a70be7e9c10", jobID)
	assert.Equal(t, "lecture.mp4", filename)
}

func TestParseSourceKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
		ok   bool
	}{
		{name: "valid key", key: "videos/b0c9dd70-9f3a-4f38-9b2f-6a70be7e9c10_a.mp3", ok: true},
		{name: "filename with underscores", key: "videos/b0c9dd70-9f3a-4f38-9b2f-6a70be7e9c10_my_talk.mp4", ok: true},
		{name: "wrong prefix", key: "uploads/b0c9dd70-9f3a-4f38-9b2f-6a70be7e9c10_a.mp3", ok: false},
		{name: "no separator", key: "videos/b0c9dd70-9f3a-4f38-9b2f-6a70be7e9c10", ok: false},
		{name: "not a uuid", key: "videos/whatever_a.mp3", ok: false},
		{name: "empty filename", key: "videos/b0c9dd70-9f3a-4f38-9b2f-6a70be7e9c10_", ok: false},
		{name: "empty key", key: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, ok := ParseSourceKey(tt.key)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestTranscriptKey(t *testing.T) {
	assert.Equal(t,
		"transcripts/b0c9dd70-9f3a-4f38-9b2f-6a70be7e9c10/transcript.txt",
		TranscriptKey("b0c9dd70-9f3a-4f38-9b2f-6a70be7e9c10"),
	)
}
