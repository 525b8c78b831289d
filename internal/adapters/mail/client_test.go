package mail_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"portfolio_reviews/internal/adapters/mail"
	"portfolio_reviews/internal/domain"
)

func TestClient_Send_RetriesThenSuccess(t *testing.T) {
	var hits int32
	var got map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer key")
		}
		switch atomic.AddInt32(&hits, 1) {
		case 1, 2:
			// two transient failures
			w.WriteHeader(503)
		default:
			_ = json.NewDecoder(r.Body).Decode(&got)
			w.WriteHeader(200)
			_, _ = w.Write([]byte(`{"id":"m_1"}`))
		}
	}))
	defer ts.Close()

	cl, err := mail.New(ts.URL, "test-key", "reviews@example.dev", 100)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err = cl.Send(ctx, domain.Message{To: "ada@example.com", Subject: "Verify", Text: "hi", Tags: map[string]string{"kind": "verification"}})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if atomic.LoadInt32(&hits) < 3 {
		t.Fatalf("expected at least 3 calls due to retries, got %d", hits)
	}
	if got["from"] != "reviews@example.dev" || got["subject"] != "Verify" {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestClient_Send_Unauthorized(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	cl, _ := mail.New(ts.URL, "bad", "reviews@example.dev", 100)
	err := cl.Send(context.Background(), domain.Message{To: "x@example.com"})
	if !errors.Is(err, mail.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestClient_Send_Rejected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"invalid to"}`))
	}))
	defer ts.Close()

	cl, _ := mail.New(ts.URL, "k", "reviews@example.dev", 100)
	err := cl.Send(context.Background(), domain.Message{To: "nope"})
	if !errors.Is(err, mail.ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
}

func TestNew_RequiresKeyAndSender(t *testing.T) {
	if _, err := mail.New("http://x", "", "a@b.c", 1); err == nil {
		t.Fatalf("expected error for missing key")
	}
	if _, err := mail.New("http://x", "k", "", 1); err == nil {
		t.Fatalf("expected error for missing sender")
	}
}
