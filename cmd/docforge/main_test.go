package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"docforge/internal/gateway"
	"docforge/internal/queue"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCommand()
	want := []string{"submit", "batch", "status", "cancel", "retry", "queue", "watch", "health", "config"}
	for _, name := range want {
		found := false
		for _, cmd := range root.Commands() {
			if cmd.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("missing %q subcommand", name)
		}
	}
}

func TestFormatSeconds(t *testing.T) {
	cases := map[int]string{
		0:   "none",
		45:  "45s",
		60:  "1m00s",
		125: "2m05s",
	}
	for input, want := range cases {
		if got := formatSeconds(input); got != want {
			t.Errorf("formatSeconds(%d) = %q, want %q", input, got, want)
		}
	}
}

func TestRenderCounts(t *testing.T) {
	got := renderCounts(map[queue.Status]int{
		queue.StatusPending:   2,
		queue.StatusCompleted: 1,
	})
	if !strings.Contains(got, "pending=2") || !strings.Contains(got, "completed=1") {
		t.Fatalf("counts line = %q", got)
	}
	if renderCounts(nil) != "queue is empty" {
		t.Fatal("empty counts should say so")
	}
}

func TestClientDecodesClassifiedErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("authorization header = %q", got)
		}
		if got := r.Header.Get("X-DocForge-User"); got != "user-1" {
			t.Errorf("user header = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":"QUOTA_EXCEEDED","message":"monthly quota exhausted"}}`))
	}))
	defer server.Close()

	client := newAPIClient(server.URL, "tok", "user-1")
	_, err := client.Submit(context.Background(), gateway.SubmitRequest{
		UserID: "user-1", Tier: "free", DocumentID: "doc",
	})
	if err == nil || !strings.Contains(err.Error(), "QUOTA_EXCEEDED") {
		t.Fatalf("error = %v, want classified quota message", err)
	}
}

func TestClientSubmitRoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/jobs" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"jobId":"j1","queuePosition":3,"estimatedWaitSeconds":120}`))
	}))
	defer server.Close()

	client := newAPIClient(server.URL, "", "user-1")
	resp, err := client.Submit(context.Background(), gateway.SubmitRequest{
		UserID: "user-1", Tier: "free", DocumentID: "doc",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if resp.JobID != "j1" || resp.QueuePosition != 3 {
		t.Fatalf("response = %+v", resp)
	}
}
