package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"docforge/internal/services"
)

func TestHTTPAnalyzeSendsAuthAndDecodes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/analyze" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("auth header = %q", got)
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		_ = json.NewEncoder(w).Encode(Analysis{DocumentType: "report", SectionCount: 3, QualityScore: 55})
	}))
	defer server.Close()

	p, err := NewHTTP(HTTPOptions{BaseURL: server.URL, APIKey: "secret"})
	if err != nil {
		t.Fatalf("new http provider: %v", err)
	}

	analysis, err := p.Analyze(context.Background(), Request{JobID: "j1", DocumentID: "d1"})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if analysis.SectionCount != 3 || analysis.QualityScore != 55 {
		t.Fatalf("analysis = %+v", analysis)
	}
}

func TestHTTPStatusClassification(t *testing.T) {
	cases := []struct {
		status int
		marker error
	}{
		{http.StatusTooManyRequests, services.ErrProvider},
		{http.StatusInternalServerError, services.ErrProvider},
		{http.StatusGatewayTimeout, services.ErrTimeout},
		{http.StatusUnauthorized, services.ErrPermission},
		{http.StatusBadRequest, services.ErrValidation},
	}
	for _, tc := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		p, err := NewHTTP(HTTPOptions{BaseURL: server.URL})
		if err != nil {
			t.Fatalf("new http provider: %v", err)
		}
		_, err = p.Analyze(context.Background(), Request{DocumentID: "d"})
		server.Close()
		if !errors.Is(err, tc.marker) {
			t.Errorf("status %d classified as %v, want %v", tc.status, err, tc.marker)
		}
	}
}

func TestHTTPTimeoutMapsToTimeoutMarker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer server.Close()

	p, err := NewHTTP(HTTPOptions{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("new http provider: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := p.Analyze(ctx, Request{DocumentID: "d"}); !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("deadline error = %v, want timeout marker", err)
	}
}

func TestStubIsDeterministic(t *testing.T) {
	stub := NewStub()
	ctx := context.Background()
	req := Request{JobID: "j", DocumentID: "doc-42"}

	first, err := stub.Analyze(ctx, req)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	second, err := stub.Analyze(ctx, req)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if first.SectionCount != second.SectionCount || first.QualityScore != second.QualityScore {
		t.Fatalf("stub not deterministic: %+v vs %+v", first, second)
	}

	plan, err := stub.Plan(ctx, req, first)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(plan.Actions) != first.SectionCount {
		t.Fatalf("plan actions = %d, want %d", len(plan.Actions), first.SectionCount)
	}
}
