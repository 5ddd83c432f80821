package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"docforge/internal/batch"
	"docforge/internal/daemon"
	"docforge/internal/gateway"
	"docforge/internal/progress"
	"docforge/internal/queue"
	"docforge/internal/services"
)

// apiClient talks to the daemon's HTTP API.
type apiClient struct {
	baseURL string
	token   string
	user    string
	http    *http.Client
}

func newAPIClient(server, token, user string) *apiClient {
	server = strings.TrimSpace(server)
	if server == "" {
		server = "127.0.0.1:7718"
	}
	if !strings.HasPrefix(server, "http://") && !strings.HasPrefix(server, "https://") {
		server = "http://" + server
	}
	return &apiClient{
		baseURL: strings.TrimRight(server, "/"),
		token:   token,
		user:    user,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *apiClient) Submit(ctx context.Context, req gateway.SubmitRequest) (*gateway.SubmitResponse, error) {
	var resp gateway.SubmitResponse
	if err := c.do(ctx, http.MethodPost, "/api/jobs", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *apiClient) SubmitBatch(ctx context.Context, req gateway.BatchRequest) (*gateway.BatchResponse, error) {
	var resp gateway.BatchResponse
	if err := c.do(ctx, http.MethodPost, "/api/batches", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *apiClient) Status(ctx context.Context, jobID string) (*gateway.StatusResponse, error) {
	var resp gateway.StatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/jobs/"+jobID, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *apiClient) BatchStatus(ctx context.Context, batchID string) (*batch.Status, error) {
	var resp batch.Status
	if err := c.do(ctx, http.MethodGet, "/api/batches/"+batchID, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *apiClient) Cancel(ctx context.Context, jobID string) (*gateway.CancelResponse, error) {
	var resp gateway.CancelResponse
	if err := c.do(ctx, http.MethodDelete, "/api/jobs/"+jobID, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *apiClient) Retry(ctx context.Context, jobID string) (*gateway.RetryResponse, error) {
	var resp gateway.RetryResponse
	if err := c.do(ctx, http.MethodPost, "/api/jobs/"+jobID+"/retry", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *apiClient) ClearQueue(ctx context.Context) (*gateway.ClearResponse, error) {
	var resp gateway.ClearResponse
	if err := c.do(ctx, http.MethodPost, "/api/queue/clear", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueView mirrors the daemon's queue listing payload.
type QueueView struct {
	Jobs   []*queue.Job         `json:"jobs"`
	Counts map[queue.Status]int `json:"counts"`
}

func (c *apiClient) Queue(ctx context.Context, statuses []string) (*QueueView, error) {
	path := "/api/queue"
	if len(statuses) > 0 {
		path += "?status=" + strings.Join(statuses, "&status=")
	}
	var resp QueueView
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *apiClient) Health(ctx context.Context) (*daemon.Status, error) {
	var resp daemon.Status
	if err := c.do(ctx, http.MethodGet, "/api/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Watch streams progress events for a job until it reaches a terminal
// state or the context ends.
func (c *apiClient) Watch(ctx context.Context, jobID string, fn func(progress.Event)) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/jobs/"+jobID+"/events", nil)
	if err != nil {
		return err
	}
	// The streaming client carries no overall timeout; the context
	// bounds the watch instead.
	stream := &http.Client{}
	resp, err := stream.Do(req)
	if err != nil {
		return fmt.Errorf("connect to daemon at %s: %w (is docforged running?)", c.baseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeFailure(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "{}" {
			return nil
		}
		var event progress.Event
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			continue
		}
		fn(event)
		if event.Terminal() {
			return nil
		}
	}
	return scanner.Err()
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(encoded)
	}
	req, err := c.newRequest(ctx, method, path, payload)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("connect to daemon at %s: %w (is docforged running?)", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeFailure(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *apiClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.user != "" {
		req.Header.Set("X-DocForge-User", c.user)
	}
	return req, nil
}

func decodeFailure(resp *http.Response) error {
	var payload struct {
		Error services.Classified `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error.Code != "" {
		return fmt.Errorf("%s: %s", payload.Error.Code, payload.Error.Message)
	}
	return fmt.Errorf("daemon returned %s", resp.Status)
}
