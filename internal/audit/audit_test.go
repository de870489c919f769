package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func logLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	return entry
}

func TestSlogLogger_Log(t *testing.T) {
	tests := []struct {
		name  string
		event Event
	}{
		{
			name: "reference enrolled",
			event: Event{
				EventType: EventReferenceEnrolled,
				UserID:    "emp-1",
				Success:   true,
				Metadata:  map[string]string{"samples": "3"},
			},
		},
		{
			name: "verification rejected",
			event: Event{
				EventType: EventFaceVerified,
				UserID:    "emp-2",
				Success:   false,
				ErrorCode: "NO_FACE_DETECTED",
			},
		},
		{
			name: "reference deleted",
			event: Event{
				EventType: EventReferenceDeleted,
				UserID:    "emp-3",
				Success:   true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			auditLogger := NewSlogLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

			require.NoError(t, auditLogger.Log(context.Background(), tt.event))

			entry := logLine(t, &buf)
			assert.Equal(t, "audit_event", entry["msg"])
			assert.Equal(t, "audit", entry["component"])
			assert.Equal(t, string(tt.event.EventType), entry["event_type"])
			assert.Equal(t, tt.event.UserID, entry["user_id"])
			assert.Equal(t, tt.event.Success, entry["success"])

			var data Event
			require.NoError(t, json.Unmarshal([]byte(entry["event_data"].(string)), &data))
			assert.Equal(t, tt.event.ErrorCode, data.ErrorCode)
			assert.Equal(t, tt.event.Metadata, data.Metadata)
		})
	}
}

func TestSlogLogger_Log_GeneratesIDAndTimestamp(t *testing.T) {
	var buf bytes.Buffer
	auditLogger := NewSlogLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	before := time.Now().UTC()
	require.NoError(t, auditLogger.Log(context.Background(), Event{
		EventType: EventFaceVerified,
		UserID:    "emp-1",
		Success:   true,
	}))

	entry := logLine(t, &buf)
	_, err := uuid.Parse(entry["event_id"].(string))
	assert.NoError(t, err)

	var data Event
	require.NoError(t, json.Unmarshal([]byte(entry["event_data"].(string)), &data))
	assert.False(t, data.Timestamp.Before(before.Truncate(time.Second)))
}

func TestSlogLogger_Log_UsesProvidedIDAndTimestamp(t *testing.T) {
	var buf bytes.Buffer
	auditLogger := NewSlogLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	id := uuid.New()
	ts := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)

	require.NoError(t, auditLogger.Log(context.Background(), Event{
		ID:        id,
		Timestamp: ts,
		EventType: EventReferenceEnrolled,
		UserID:    "emp-1",
		Success:   true,
	}))

	entry := logLine(t, &buf)
	assert.Equal(t, id.String(), entry["event_id"])

	var data Event
	require.NoError(t, json.Unmarshal([]byte(entry["event_data"].(string)), &data))
	assert.True(t, ts.Equal(data.Timestamp))
}

func TestNoOpLogger_Log(t *testing.T) {
	var logger Logger = &NoOpLogger{}

	assert.NoError(t, logger.Log(context.Background(), Event{EventType: EventFaceVerified}))
}

func TestEvent_JSONSerialization_OmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(Event{EventType: EventReferenceDeleted, UserID: "emp-1", Success: true})
	require.NoError(t, err)

	assert.NotContains(t, string(data), "error_code")
	assert.NotContains(t, string(data), "metadata")
}
