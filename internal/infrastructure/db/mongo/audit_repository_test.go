package mongo

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/surveyhub/portal/internal/core/domain"
)

func TestEventDocRoundTrip(t *testing.T) {
	at := time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)
	in := &domain.SessionEvent{
		SessionID: "ab12",
		Kind:      domain.EventRefreshFailed,
		SubjectID: "u-1",
		Role:      domain.RoleCoordinator,
		TenantID:  "inst-1",
		Reason:    "token not valid",
		At:        at,
	}

	raw, err := bson.Marshal(toEventDoc(in, at.Add(time.Second)))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var doc sessionEventDoc
	if err := bson.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc.Kind != "refresh_failed" || doc.TenantID != "inst-1" {
		t.Fatalf("unexpected document: %+v", doc)
	}
	got := doc.toDomain()
	if !got.At.Equal(at) {
		t.Fatalf("timestamp mismatch: %v", got.At)
	}
	got.At = in.At
	if got != *in {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, *in)
	}
}

func TestEventDocOmitsEmptyFields(t *testing.T) {
	raw, err := bson.Marshal(toEventDoc(&domain.SessionEvent{SessionID: "x", Kind: domain.EventSessionEnded}, time.Now()))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, k := range []string{"subject_id", "role", "tenant_id", "reason"} {
		if _, ok := m[k]; ok {
			t.Fatalf("expected %s to be omitted", k)
		}
	}
}
