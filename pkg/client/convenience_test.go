package client

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	v1 "github.com/shuakami/napcat-qce-go/pkg/api/v1"
)

// exportFixture wires a server that accepts an export for one peer and
// immediately reports the created task as completed.
func exportFixture(t *testing.T, capture *v1.Peer) *Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/friends", func(w http.ResponseWriter, r *http.Request) {
		ok(w, map[string]any{"friends": []v1.Friend{
			{UID: "u_abc", UIN: "111222333", Nick: "Alice"},
			{UID: "u_def", UIN: "444555666", Nick: "Bob"},
		}})
	})
	mux.HandleFunc("/api/messages/export", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Peer v1.Peer `json:"peer"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		*capture = req.Peer
		ok(w, v1.ExportTask{ID: "task-1", Status: v1.TaskStatusPending})
	})
	mux.HandleFunc("/api/tasks/task-1", func(w http.ResponseWriter, r *http.Request) {
		ok(w, v1.ExportTask{ID: "task-1", Status: v1.TaskStatusCompleted, Progress: 100, MessageCount: 7})
	})
	return newTestClient(t, mux, "")
}

func TestExportFriendResolvesUIN(t *testing.T) {
	var peer v1.Peer
	c := exportFixture(t, &peer)

	task, err := c.ExportFriend(context.Background(), "111222333", ExportConvenienceOptions{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("ExportFriend failed: %v", err)
	}
	if peer.PeerUID != "u_abc" {
		t.Errorf("expected uin resolved to u_abc, got %s", peer.PeerUID)
	}
	if peer.ChatType != v1.ChatTypePrivate {
		t.Errorf("expected private chat type, got %d", peer.ChatType)
	}
	if task.MessageCount != 7 {
		t.Errorf("expected 7 messages, got %d", task.MessageCount)
	}
}

func TestExportFriendKeepsUID(t *testing.T) {
	var peer v1.Peer
	c := exportFixture(t, &peer)

	if _, err := c.ExportFriend(context.Background(), "u_def", ExportConvenienceOptions{
		Timeout: 5 * time.Second,
	}); err != nil {
		t.Fatalf("ExportFriend failed: %v", err)
	}
	if peer.PeerUID != "u_def" {
		t.Errorf("uid input should pass through unchanged, got %s", peer.PeerUID)
	}
}

func TestExportGroupDefaults(t *testing.T) {
	var gotFormat string
	var peer v1.Peer
	mux := http.NewServeMux()
	mux.HandleFunc("/api/messages/export", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Peer   v1.Peer `json:"peer"`
			Format string  `json:"format"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		peer = req.Peer
		gotFormat = req.Format
		ok(w, v1.ExportTask{ID: "task-1", Status: v1.TaskStatusPending})
	})
	mux.HandleFunc("/api/tasks/task-1", func(w http.ResponseWriter, r *http.Request) {
		ok(w, v1.ExportTask{ID: "task-1", Status: v1.TaskStatusCompleted})
	})
	c := newTestClient(t, mux, "")

	if _, err := c.ExportGroup(context.Background(), "123456789", ExportConvenienceOptions{
		Timeout: 5 * time.Second,
	}); err != nil {
		t.Fatalf("ExportGroup failed: %v", err)
	}
	if gotFormat != "HTML" {
		t.Errorf("expected default format HTML, got %s", gotFormat)
	}
	if peer.ChatType != v1.ChatTypeGroup || peer.PeerUID != "123456789" {
		t.Errorf("unexpected peer: %+v", peer)
	}
}
