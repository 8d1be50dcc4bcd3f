package handler

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trannm/mediascribe/internal/api/storage"
)

// List pagination cursor: base64("{created_at_unixnano}|{video_id}").
// Opaque to clients; both halves are validated on decode so a tampered
// cursor fails fast instead of producing a silent empty page.

// DecodeVideoCursor parses a client-supplied cursor. An empty string means
// the first page and decodes to nil.
func DecodeVideoCursor(cursorStr string) (*storage.JobCursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor encoding: %w", err)
	}

	tsPart, idPart, found := strings.Cut(string(decoded), "|")
	if !found {
		return nil, fmt.Errorf("invalid cursor format")
	}

	createdAt, err := strconv.ParseInt(tsPart, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor timestamp: %w", err)
	}

	if _, err := uuid.Parse(idPart); err != nil {
		return nil, fmt.Errorf("invalid cursor video id: %w", err)
	}

	return &storage.JobCursor{
		CreatedAt: time.Unix(0, createdAt),
		JobID:     idPart,
	}, nil
}

// EncodeVideoCursor builds the cursor pointing past the given row.
func EncodeVideoCursor(cursor *storage.JobCursor) string {
	raw := strconv.FormatInt(cursor.CreatedAt.UnixNano(), 10) + "|" + cursor.JobID
	return base64.StdEncoding.EncodeToString([]byte(raw))
}
