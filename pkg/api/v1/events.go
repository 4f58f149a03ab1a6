package v1

import (
	"encoding/json"
	"time"
)

// Push-event names emitted by the service over the WebSocket channel.
// These names are an external contract and must be kept stable.
const (
	EventConnected      = "connected"
	EventDisconnected   = "disconnected"
	EventExportProgress = "export_progress"
	EventExportComplete = "export_complete"
	EventExportError    = "export_error"
	EventSearchResult   = "search_result"
	EventSearchProgress = "search_progress"
	EventSearchComplete = "search_complete"
	EventSearchError    = "search_error"
	EventNotification   = "notification"
	EventError          = "error"
)

// EventEnvelope is the frame exchanged over the push-event channel.
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ExportProgressEvent is the payload of an export_progress event.
type ExportProgressEvent struct {
	TaskID       string `json:"taskId"`
	Progress     int    `json:"progress"`
	Message      string `json:"message,omitempty"`
	MessageCount int    `json:"messageCount,omitempty"`
}

// ExportCompleteEvent is the payload of an export_complete event.
type ExportCompleteEvent struct {
	TaskID       string `json:"taskId"`
	FileName     string `json:"fileName"`
	FilePath     string `json:"filePath,omitempty"`
	DownloadURL  string `json:"downloadUrl,omitempty"`
	MessageCount int    `json:"messageCount,omitempty"`
}

// ExportErrorEvent is the payload of an export_error event.
type ExportErrorEvent struct {
	TaskID string `json:"taskId"`
	Error  string `json:"error"`
}

// DisconnectedEvent is the payload of a disconnected event.
type DisconnectedEvent struct {
	StatusCode int    `json:"status_code,omitempty"`
	Message    string `json:"message,omitempty"`
}

// StreamSearchRequest is sent by clients to start a streaming search.
type StreamSearchRequest struct {
	SearchID    string         `json:"searchId"`
	Peer        Peer           `json:"peer"`
	SearchQuery string         `json:"searchQuery"`
	Filter      *MessageFilter `json:"filter,omitempty"`
}

// LastDays returns a MessageFilter covering the last n days.
func LastDays(n int) *MessageFilter {
	now := time.Now()
	return &MessageFilter{
		StartTime:     now.AddDate(0, 0, -n).UnixMilli(),
		EndTime:       now.UnixMilli(),
		IncludeSystem: true,
	}
}
