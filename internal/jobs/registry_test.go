package jobs_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mtr002/jobcore/internal/interfaces"
	"github.com/mtr002/jobcore/internal/jobs"
)

type documentPayload struct {
	DocumentID string `json:"document_id"`
	Container  string `json:"container"`
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	var got documentPayload
	h := jobs.TypedHandler("upload-finalization", func(_ context.Context, _ *interfaces.JobContract, p documentPayload) error {
		got = p
		return nil
	})

	r, err := jobs.NewRegistry(h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	handler, ok := r.Get("upload-finalization")
	if !ok {
		t.Fatal("expected handler to be registered")
	}

	payload, _ := json.Marshal(documentPayload{DocumentID: "doc-1", Container: "c-9"})
	out, err := handler.Process(context.Background(), &interfaces.JobContract{Payload: payload})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Status != interfaces.StatusCompleted {
		t.Errorf("Status = %q, want %q", out.Status, interfaces.StatusCompleted)
	}
	if got.DocumentID != "doc-1" || got.Container != "c-9" {
		t.Errorf("payload = %+v", got)
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	r, _ := jobs.NewRegistry()
	if _, ok := r.Get("Orphan"); ok {
		t.Fatal("expected no handler for unregistered job type")
	}
	if r.Has("Orphan") {
		t.Fatal("Has() = true for unregistered job type")
	}
}

func TestRegistry_RejectsDuplicatesAndEmptyTypes(t *testing.T) {
	noop := func(context.Context, *interfaces.JobContract) error { return nil }

	if _, err := jobs.NewRegistry(jobs.HandlerFunc("a", noop), jobs.HandlerFunc("a", noop)); err == nil {
		t.Error("expected duplicate job type to be rejected")
	}
	if _, err := jobs.NewRegistry(jobs.HandlerFunc("", noop)); err == nil {
		t.Error("expected empty job type to be rejected")
	}
	if _, err := jobs.NewRegistry(nil); err == nil {
		t.Error("expected nil handler to be rejected")
	}
}

func TestRegistry_TypesSorted(t *testing.T) {
	noop := func(context.Context, *interfaces.JobContract) error { return nil }
	r, err := jobs.NewRegistry(jobs.HandlerFunc("c", noop), jobs.HandlerFunc("a", noop), jobs.HandlerFunc("b", noop))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	types := r.Types()
	want := []string{"a", "b", "c"}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("types[%d] = %q, want %q", i, types[i], want[i])
		}
	}
}

func TestTypedHandler_InvalidJSON(t *testing.T) {
	h := jobs.TypedHandler("typed", func(context.Context, *interfaces.JobContract, documentPayload) error {
		t.Fatal("handler should not be called with invalid JSON")
		return nil
	})

	_, err := h.Process(context.Background(), &interfaces.JobContract{Payload: []byte(`{invalid`)})
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestHandlerFunc_PropagatesError(t *testing.T) {
	want := errors.New("graph unavailable")
	h := jobs.HandlerFunc("failing", func(context.Context, *interfaces.JobContract) error { return want })

	_, err := h.Process(context.Background(), &interfaces.JobContract{})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}
