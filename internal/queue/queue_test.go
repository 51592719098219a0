package queue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/eventface/internal/models"
)

func TestSubjects(t *testing.T) {
	id := uuid.MustParse("6f1c1a52-2f39-4b8e-9d7c-0b7f8a3e1d22")
	if got := BatchSubject(id); got != "batches.6f1c1a52-2f39-4b8e-9d7c-0b7f8a3e1d22" {
		t.Errorf("BatchSubject = %q", got)
	}
	if got := ProgressSubject(id); got != "progress.6f1c1a52-2f39-4b8e-9d7c-0b7f8a3e1d22" {
		t.Errorf("ProgressSubject = %q", got)
	}
}

func TestDecodeBatchJob(t *testing.T) {
	job := models.BatchJob{
		ID:      uuid.New(),
		EventID: uuid.New(),
		Items: []models.BatchItem{
			{Index: 0, ObjectKey: "events/x/batches/y/0000-a.jpg", PhotoRef: "events/x/batches/y/0000-a.jpg", Filename: "a.jpg"},
		},
		SubmittedAt: time.Now().UTC().Truncate(time.Second),
	}
	data, _ := json.Marshal(job)

	got, err := DecodeBatchJob(data)
	if err != nil {
		t.Fatalf("DecodeBatchJob: %v", err)
	}
	if got.ID != job.ID || got.EventID != job.EventID || len(got.Items) != 1 {
		t.Errorf("decoded job mismatch: %+v", got)
	}

	if _, err := DecodeBatchJob([]byte(`{"id":"` + uuid.NewString() + `","items":[]}`)); err == nil {
		t.Error("expected error for job without items")
	}
	if _, err := DecodeBatchJob([]byte("{")); err == nil {
		t.Error("expected error for malformed json")
	}
}

func TestDecodeProgress(t *testing.T) {
	prog := models.BatchProgress{
		BatchID:   uuid.New(),
		Completed: 2,
		Total:     3,
		Succeeded: 1,
		Failed:    []models.ItemFailure{{Index: 1, PhotoRef: "b.jpg", Stage: "embed", Reason: "bad"}},
	}
	data, _ := json.Marshal(prog)

	got, err := DecodeProgress(data)
	if err != nil {
		t.Fatalf("DecodeProgress: %v", err)
	}
	if got.Completed != 2 || got.Total != 3 || len(got.Failed) != 1 || got.Failed[0].Stage != "embed" {
		t.Errorf("decoded progress mismatch: %+v", got)
	}
}
