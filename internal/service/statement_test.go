package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"kyde/internal/core"
	"kyde/internal/models"
)

func TestStatement_GroupsBySource(t *testing.T) {
	ctx := context.Background()
	repo := newStubRepo()
	svc := &StatementService{Repo: repo}

	p1 := seedParticipant(t, repo, "c-1", core.RoleConsumer, "")
	cycle, _ := repo.GetOrCreateCycle(ctx, "2025-08")
	ts := time.Date(2025, 8, 15, 10, 0, 0, 0, time.UTC)

	seed := func(amount, source string) {
		t.Helper()
		err := repo.InsertLedgerEntries(ctx, []models.LedgerEntry{{
			CycleID:       cycle.ID,
			ParticipantID: p1,
			AmountEUR:     mustDecimal(t, amount),
			Source:        source,
			EventTS:       ts,
		}})
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	seed("-8.00", "meter")
	seed("-4.50", "meter")
	seed("-1.52", "grid_fee")

	res, err := svc.ForParticipant(ctx, "2025-08", "c-1")
	if err != nil {
		t.Fatalf("ForParticipant: %v", err)
	}
	want := map[string]string{"meter": "-12.50", "grid_fee": "-1.52"}
	if len(res.Lines) != len(want) {
		t.Fatalf("lines = %+v", res.Lines)
	}
	for _, line := range res.Lines {
		if want[line.Source] != line.TotalEUR {
			t.Fatalf("source %s = %s, want %s", line.Source, line.TotalEUR, want[line.Source])
		}
	}
	if res.TotalEUR != "-14.02" {
		t.Fatalf("total = %s, want -14.02", res.TotalEUR)
	}
}

func TestStatement_UnknownCycle(t *testing.T) {
	repo := newStubRepo()
	svc := &StatementService{Repo: repo}
	seedParticipant(t, repo, "c-1", core.RoleConsumer, "")

	if _, err := svc.ForParticipant(context.Background(), "2025-09", "c-1"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
