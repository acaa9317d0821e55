package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"costseg/pkg/apperror"
)

func TestStartWorkflow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/workflow/start" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req StartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.StudyID != "s1" || len(req.StudyDocIDs) != 2 {
			t.Errorf("request payload = %+v", req)
		}
		json.NewEncoder(w).Encode(RunResponse{
			Status:       "running",
			CurrentStage: "analyzing_rooms",
		})
	}))
	defer srv.Close()

	c, err := NewClient(ClientOptions{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	out, err := c.StartWorkflow(context.Background(), StartRequest{
		StudyID:     "s1",
		StudyDocIDs: []string{"d1", "d2"},
	})
	if err != nil {
		t.Fatalf("StartWorkflow: %v", err)
	}
	if out.Status != "running" || out.CurrentStage != "analyzing_rooms" {
		t.Errorf("response = %+v", out)
	}
}

func TestNon2xxCarriesStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"detail":"study has no documents"}`))
	}))
	defer srv.Close()

	c, _ := NewClient(ClientOptions{BaseURL: srv.URL})
	_, err := c.Status(context.Background(), "s1")
	var ext *apperror.ExternalServiceError
	if !errors.As(err, &ext) {
		t.Fatalf("err = %v, want ExternalServiceError", err)
	}
	if ext.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d", ext.StatusCode)
	}
	if ext.Body != `{"detail":"study has no documents"}` {
		t.Errorf("body = %q", ext.Body)
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient(ClientOptions{}); !errors.Is(err, apperror.ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
}

func TestPollClassificationStopsAtMaxAttempts(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		json.NewEncoder(w).Encode(StatusResponse{CurrentStage: "analyzing_rooms"})
	}))
	defer srv.Close()

	c, _ := NewClient(ClientOptions{BaseURL: srv.URL})
	last, err := c.PollClassification(context.Background(), "s1", time.Millisecond, 3)
	if err != nil {
		t.Fatalf("PollClassification: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", got)
	}
	if last == nil || last.CurrentStage != "analyzing_rooms" {
		t.Errorf("last status = %+v", last)
	}
}

func TestPollClassificationReturnsEarlyWhenStageAdvances(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		stage := "analyzing_rooms"
		if n >= 2 {
			stage = "resource_extraction"
		}
		json.NewEncoder(w).Encode(StatusResponse{CurrentStage: stage})
	}))
	defer srv.Close()

	c, _ := NewClient(ClientOptions{BaseURL: srv.URL})
	last, err := c.PollClassification(context.Background(), "s1", time.Millisecond, 10)
	if err != nil {
		t.Fatalf("PollClassification: %v", err)
	}
	if last == nil || last.CurrentStage != "resource_extraction" {
		t.Errorf("last status = %+v", last)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("expected 2 attempts, got %d", got)
	}
}
