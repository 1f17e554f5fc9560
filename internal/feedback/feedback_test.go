package feedback

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/corpusqa/corpusqa/internal/fingerprint"
	"github.com/corpusqa/corpusqa/internal/storage"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New(store, 30*24*time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRecord(t *testing.T) {
	svc := newTestService(t)

	entry, err := svc.Record(Submission{
		Query:   "How do refunds work?",
		Answer:  "Refunds are issued within 5 days.",
		Vote:    "positive",
		Comment: "  clear answer  ",
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if entry.ID == "" {
		t.Error("entry has no id")
	}
	if entry.Fingerprint != fingerprint.Fingerprint("How do refunds work?") {
		t.Errorf("fingerprint = %s", entry.Fingerprint)
	}
	if entry.Comment != "clear answer" {
		t.Errorf("comment = %q, want trimmed", entry.Comment)
	}
	if got := entry.ExpiresAt.Sub(entry.SubmittedAt); got != 30*24*time.Hour {
		t.Errorf("ttl = %v", got)
	}
}

func TestRecordNormalizesVote(t *testing.T) {
	svc := newTestService(t)
	entry, err := svc.Record(Submission{Query: "q?", Answer: "a", Vote: " Negative "})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if entry.Vote != storage.VoteNegative {
		t.Errorf("vote = %q", entry.Vote)
	}
}

func TestRecordRejectsInvalid(t *testing.T) {
	svc := newTestService(t)

	if _, err := svc.Record(Submission{Query: "q?", Vote: "meh"}); !errors.Is(err, ErrInvalidVote) {
		t.Errorf("vote=meh err = %v, want ErrInvalidVote", err)
	}
	if _, err := svc.Record(Submission{Query: "   ", Vote: "positive"}); err == nil {
		t.Error("blank query accepted")
	}
}

func TestDistribution(t *testing.T) {
	svc := newTestService(t)

	for _, vote := range []string{"positive", "positive", "negative"} {
		if _, err := svc.Record(Submission{Query: "same question?", Answer: "a", Vote: vote}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if _, err := svc.Record(Submission{Query: "other question?", Answer: "b", Vote: "negative"}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	d, err := svc.DistributionFor(fingerprint.Fingerprint("same question?"))
	if err != nil {
		t.Fatalf("DistributionFor: %v", err)
	}
	if d.Positive != 2 || d.Negative != 1 || d.Total != 3 {
		t.Errorf("distribution = %+v", d)
	}
	if want := 2.0 / 3.0; d.PositiveRatio != want {
		t.Errorf("ratio = %v, want %v", d.PositiveRatio, want)
	}

	all, err := svc.DistributionFor("")
	if err != nil {
		t.Fatalf("DistributionFor(all): %v", err)
	}
	if all.Total != 4 || all.Negative != 2 {
		t.Errorf("corpus distribution = %+v", all)
	}
}

func TestDistributionEmpty(t *testing.T) {
	svc := newTestService(t)
	d, err := svc.DistributionFor("")
	if err != nil {
		t.Fatalf("DistributionFor: %v", err)
	}
	if d.Total != 0 || d.PositiveRatio != 0 {
		t.Errorf("empty distribution = %+v", d)
	}
}

func TestForQueryMatchesPhrasings(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.Record(Submission{Query: "Where is the manual?", Answer: "a", Vote: "positive"}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	entries, err := svc.ForQuery("  where IS the   manual? ")
	if err != nil {
		t.Fatalf("ForQuery: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
}

func TestRecent(t *testing.T) {
	svc := newTestService(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		offset := time.Duration(i) * time.Minute
		svc.now = func() time.Time { return base.Add(offset) }
		if _, err := svc.Record(Submission{Query: "q?", Answer: "a", Vote: "positive"}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	entries, err := svc.Recent(2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if !entries[0].SubmittedAt.After(entries[1].SubmittedAt) {
		t.Errorf("not newest first: %v then %v", entries[0].SubmittedAt, entries[1].SubmittedAt)
	}
}

func TestSweepExpired(t *testing.T) {
	svc := newTestService(t)
	past := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return past }
	if _, err := svc.Record(Submission{Query: "old?", Answer: "a", Vote: "positive"}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	svc.now = func() time.Time { return past.Add(31 * 24 * time.Hour) }
	if _, err := svc.Record(Submission{Query: "new?", Answer: "a", Vote: "positive"}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	removed, err := svc.SweepExpired()
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	entries, err := svc.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 1 || entries[0].QueryText != "new?" {
		t.Errorf("surviving entries = %+v", entries)
	}
}
