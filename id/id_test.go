package id_test

import (
	"strings"
	"testing"
	"time"

	"github.com/trbojevicstefan/taskwise/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"JobID", id.NewJobID, "job_"},
		{"EventID", id.NewEventID, "evt_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	original := id.NewEventID()
	parsed, err := id.ParseEventID(original.String())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if parsed.String() != original.String() {
		t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
	}
}

func TestCrossTypeRejection(t *testing.T) {
	jobID := id.NewJobID().String()
	if _, err := id.ParseEventID(jobID); err == nil {
		t.Fatalf("expected error parsing %q as event id", jobID)
	}
}

func TestParseInvalid(t *testing.T) {
	for _, in := range []string{
		"",
		"job",
		"job_not-a-typeid",
		"JOB_01h2xcejqtf2nbrexx3vqjhp41",
		"_01h2xcejqtf2nbrexx3vqjhp41",
		"01h2xcejqtf2nbrexx3vqjhp41",
		"job_0190c1a4-8f1e-7c55-a9e4-5d9f0c1b2a33",
	} {
		if _, err := id.Parse(in); err == nil {
			t.Errorf("Parse(%q): expected error", in)
		}
	}
}

func TestSortable(t *testing.T) {
	a := id.NewJobID()
	time.Sleep(2 * time.Millisecond)
	b := id.NewJobID()
	if a.String() >= b.String() {
		t.Errorf("expected %q < %q", a.String(), b.String())
	}
}

func TestTextRoundTrip(t *testing.T) {
	original := id.NewJobID()
	text, err := original.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}

	var got id.ID
	if err := got.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if got.String() != original.String() {
		t.Errorf("got %q, want %q", got.String(), original.String())
	}

	var empty id.ID
	if err := empty.UnmarshalText(nil); err != nil {
		t.Fatalf("UnmarshalText(nil): %v", err)
	}
	if !empty.IsNil() {
		t.Error("expected Nil after empty unmarshal")
	}
}

func TestScan(t *testing.T) {
	original := id.NewEventID()

	var fromString id.ID
	if err := fromString.Scan(original.String()); err != nil {
		t.Fatalf("Scan(string): %v", err)
	}
	if fromString.String() != original.String() {
		t.Errorf("Scan(string) = %q, want %q", fromString.String(), original.String())
	}

	var fromNil id.ID
	if err := fromNil.Scan(nil); err != nil {
		t.Fatalf("Scan(nil): %v", err)
	}
	if !fromNil.IsNil() {
		t.Error("expected Nil")
	}

	var bad id.ID
	if err := bad.Scan(42); err == nil {
		t.Error("expected error scanning int")
	}
}
