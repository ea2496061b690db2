package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"kyde/internal/core"
	"kyde/internal/models"
)

func newClosingService(repo *stubRepo) *ClosingService {
	return &ClosingService{
		Repo:             repo,
		Policies:         &PolicyService{Repo: repo},
		FixedCostEUR:     decimal.Zero,
		VariableCostRate: decimal.Zero,
	}
}

func seedParticipant(t *testing.T, repo *stubRepo, externalID, role, iban string) uint64 {
	t.Helper()
	p := &models.Participant{ExternalID: externalID, Name: externalID, Role: role, IBAN: iban}
	if err := repo.UpsertParticipant(context.Background(), p); err != nil {
		t.Fatalf("seed participant %s: %v", externalID, err)
	}
	return p.ID
}

func seedPolicy(t *testing.T, repo *stubRepo, version, feePct string) {
	t.Helper()
	doc := json.RawMessage(`{"operator_fee_pct":"` + feePct + `","rules":[]}`)
	svc := &PolicyService{Repo: repo}
	if _, err := svc.Put(context.Background(), version, doc, ""); err != nil {
		t.Fatalf("seed policy %s: %v", version, err)
	}
}

func seedEntry(t *testing.T, repo *stubRepo, cycleID, participantID uint64, amount string, ts time.Time) {
	t.Helper()
	err := repo.InsertLedgerEntries(context.Background(), []models.LedgerEntry{{
		CycleID:       cycleID,
		ParticipantID: participantID,
		AmountEUR:     mustDecimal(t, amount),
		Source:        "meter",
		EventTS:       ts,
	}})
	if err != nil {
		t.Fatalf("seed ledger entry: %v", err)
	}
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("decimal %q: %v", s, err)
	}
	return d
}

func TestCloseDay(t *testing.T) {
	ctx := context.Background()
	repo := newStubRepo()
	svc := newClosingService(repo)

	p1 := seedParticipant(t, repo, "c-1", core.RoleConsumer, "DE01")
	p2 := seedParticipant(t, repo, "p-1", core.RoleProsumer, "DE02")
	seedPolicy(t, repo, "v1", "0")

	cycle, _ := repo.GetOrCreateCycle(ctx, "2025-08")
	ts := time.Date(2025, 8, 15, 10, 0, 0, 0, time.UTC)
	seedEntry(t, repo, cycle.ID, p1, "-30.00", ts)
	seedEntry(t, repo, cycle.ID, p2, "30.00", ts)

	res, err := svc.CloseDay(ctx, "2025-08-15", CloseOptions{PolicyVersion: "v1"})
	if err != nil {
		t.Fatalf("CloseDay: %v", err)
	}
	if res.AlreadyClosed {
		t.Fatal("first close reported as replay")
	}
	if len(res.Nets) != 2 {
		t.Fatalf("nets = %d, want 2", len(res.Nets))
	}
	if len(res.Transfers) != 1 {
		t.Fatalf("transfers = %d, want 1", len(res.Transfers))
	}
	tr := res.Transfers[0]
	if tr.FromParticipantID != p1 || tr.ToParticipantID != p2 || tr.AmountEUR != "30.00" {
		t.Fatalf("transfer = %+v", tr)
	}
	if len(res.AuditHash) != 64 {
		t.Fatalf("audit hash %q is not a sha256 hex digest", res.AuditHash)
	}

	day, err := repo.GetTradingDay(ctx, cycle.ID, "2025-08-15")
	if err != nil {
		t.Fatalf("GetTradingDay: %v", err)
	}
	if day.Status != core.StatusClosed || day.AuditHash != res.AuditHash {
		t.Fatalf("day after close = %+v", day)
	}
}

func TestCloseDay_Idempotent(t *testing.T) {
	ctx := context.Background()
	repo := newStubRepo()
	svc := newClosingService(repo)

	p1 := seedParticipant(t, repo, "c-1", core.RoleConsumer, "")
	p2 := seedParticipant(t, repo, "p-1", core.RoleProsumer, "")
	seedPolicy(t, repo, "v1", "0")

	cycle, _ := repo.GetOrCreateCycle(ctx, "2025-08")
	ts := time.Date(2025, 8, 15, 10, 0, 0, 0, time.UTC)
	seedEntry(t, repo, cycle.ID, p1, "-12.50", ts)
	seedEntry(t, repo, cycle.ID, p2, "12.50", ts)

	first, err := svc.CloseDay(ctx, "2025-08-15", CloseOptions{PolicyVersion: "v1"})
	if err != nil {
		t.Fatalf("first close: %v", err)
	}
	rows := len(repo.dayNets)

	second, err := svc.CloseDay(ctx, "2025-08-15", CloseOptions{PolicyVersion: "v1"})
	if err != nil {
		t.Fatalf("second close: %v", err)
	}
	if !second.AlreadyClosed {
		t.Fatal("second close did not report replay")
	}
	if second.AuditHash != first.AuditHash {
		t.Fatalf("replay hash %q != original %q", second.AuditHash, first.AuditHash)
	}
	if len(repo.dayNets) != rows {
		t.Fatalf("replay wrote %d extra day net rows", len(repo.dayNets)-rows)
	}
}

func TestCloseDay_OperatorFee(t *testing.T) {
	ctx := context.Background()
	repo := newStubRepo()
	svc := newClosingService(repo)

	p1 := seedParticipant(t, repo, "c-1", core.RoleConsumer, "")
	p2 := seedParticipant(t, repo, "p-1", core.RoleProsumer, "")
	op := seedParticipant(t, repo, "op-1", core.RoleOperator, "")
	seedPolicy(t, repo, "v1", "0.05")

	cycle, _ := repo.GetOrCreateCycle(ctx, "2025-08")
	ts := time.Date(2025, 8, 15, 10, 0, 0, 0, time.UTC)
	seedEntry(t, repo, cycle.ID, p1, "-100.00", ts)
	seedEntry(t, repo, cycle.ID, p2, "100.00", ts)

	res, err := svc.CloseDay(ctx, "2025-08-15", CloseOptions{PolicyVersion: "v1"})
	if err != nil {
		t.Fatalf("CloseDay: %v", err)
	}
	want := map[uint64]string{p1: "-100.00", p2: "95.00", op: "5.00"}
	if len(res.Nets) != len(want) {
		t.Fatalf("nets = %+v", res.Nets)
	}
	for _, n := range res.Nets {
		if want[n.ParticipantID] != n.NetEUR {
			t.Fatalf("net for %d = %s, want %s", n.ParticipantID, n.NetEUR, want[n.ParticipantID])
		}
	}
}

func TestCloseDay_ClosedCycleRejected(t *testing.T) {
	ctx := context.Background()
	repo := newStubRepo()
	svc := newClosingService(repo)
	seedPolicy(t, repo, "v1", "0")

	cycle, _ := repo.GetOrCreateCycle(ctx, "2025-08")
	cycle.Status = core.StatusClosed

	if _, err := svc.CloseDay(ctx, "2025-08-15", CloseOptions{PolicyVersion: "v1"}); !errors.Is(err, core.ErrState) {
		t.Fatalf("err = %v, want ErrState", err)
	}
}

func TestCloseDay_TxFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	repo := newStubRepo()
	svc := newClosingService(repo)

	p1 := seedParticipant(t, repo, "c-1", core.RoleConsumer, "")
	p2 := seedParticipant(t, repo, "p-1", core.RoleProsumer, "")
	seedPolicy(t, repo, "v1", "0")

	cycle, _ := repo.GetOrCreateCycle(ctx, "2025-08")
	ts := time.Date(2025, 8, 15, 10, 0, 0, 0, time.UTC)
	seedEntry(t, repo, cycle.ID, p1, "-5.00", ts)
	seedEntry(t, repo, cycle.ID, p2, "5.00", ts)

	repo.failCloseDay = errors.New("boom")
	if _, err := svc.CloseDay(ctx, "2025-08-15", CloseOptions{PolicyVersion: "v1"}); err == nil {
		t.Fatal("CloseDay succeeded despite failing status flip")
	}
	if len(repo.dayNets) != 0 || len(repo.transfers) != 0 {
		t.Fatalf("partial writes survived: %d nets, %d transfers", len(repo.dayNets), len(repo.transfers))
	}
	day, _ := repo.GetTradingDay(ctx, cycle.ID, "2025-08-15")
	if day.Status != core.StatusOpen {
		t.Fatalf("day status = %s, want open", day.Status)
	}
}

func seedClosedDay(t *testing.T, repo *stubRepo, cycleID uint64, dateStr string, nets map[uint64]string) {
	t.Helper()
	ctx := context.Background()
	day, err := repo.GetOrCreateTradingDay(ctx, cycleID, dateStr)
	if err != nil {
		t.Fatalf("seed day %s: %v", dateStr, err)
	}
	day.Status = core.StatusClosed
	for id, amount := range nets {
		repo.dayNets = append(repo.dayNets, models.DayNet{
			DayID:         day.ID,
			ParticipantID: id,
			NetEUR:        mustDecimal(t, amount),
		})
	}
}

func TestCloseCycle(t *testing.T) {
	ctx := context.Background()
	repo := newStubRepo()
	svc := newClosingService(repo)

	p1 := seedParticipant(t, repo, "c-1", core.RoleConsumer, "DE01")
	p2 := seedParticipant(t, repo, "p-1", core.RoleProsumer, "DE02")
	seedPolicy(t, repo, "v1", "0")

	cycle, _ := repo.GetOrCreateCycle(ctx, "2025-08")
	seedClosedDay(t, repo, cycle.ID, "2025-08-14", map[uint64]string{p1: "-20.00", p2: "20.00"})
	seedClosedDay(t, repo, cycle.ID, "2025-08-15", map[uint64]string{p1: "-10.00", p2: "10.00"})

	res, err := svc.CloseCycle(ctx, "2025-08", CloseOptions{PolicyVersion: "v1"})
	if err != nil {
		t.Fatalf("CloseCycle: %v", err)
	}
	if res.AlreadyClosed {
		t.Fatal("first close reported as replay")
	}
	if len(res.Payouts) != 1 {
		t.Fatalf("payouts = %+v", res.Payouts)
	}
	if p := res.Payouts[0]; p.FromParticipantID != p1 || p.ToParticipantID != p2 || p.AmountEUR != "30.00" {
		t.Fatalf("payout = %+v", p)
	}
	if len(repo.payouts) != 1 || repo.payouts[0].IBAN != "DE02" {
		t.Fatalf("persisted payouts = %+v", repo.payouts)
	}
	if repo.cycles["2025-08"].Status != core.StatusClosed {
		t.Fatal("cycle not flipped to closed")
	}

	replay, err := svc.CloseCycle(ctx, "2025-08", CloseOptions{PolicyVersion: "v1"})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !replay.AlreadyClosed || replay.RunUID != res.RunUID {
		t.Fatalf("replay = %+v, original run %s", replay, res.RunUID)
	}
	if len(repo.runs) != 1 {
		t.Fatalf("replay created a second run, %d runs", len(repo.runs))
	}
}

func TestCloseCycle_ReplayRejectsCorruptSummary(t *testing.T) {
	ctx := context.Background()
	repo := newStubRepo()
	svc := newClosingService(repo)

	p1 := seedParticipant(t, repo, "c-1", core.RoleConsumer, "DE01")
	p2 := seedParticipant(t, repo, "p-1", core.RoleProsumer, "DE02")
	seedPolicy(t, repo, "v1", "0")

	cycle, _ := repo.GetOrCreateCycle(ctx, "2025-08")
	seedClosedDay(t, repo, cycle.ID, "2025-08-15", map[uint64]string{p1: "-7.00", p2: "7.00"})

	if _, err := svc.CloseCycle(ctx, "2025-08", CloseOptions{PolicyVersion: "v1"}); err != nil {
		t.Fatalf("CloseCycle: %v", err)
	}

	repo.runs[0].Summary = []byte("{")
	if _, err := svc.CloseCycle(ctx, "2025-08", CloseOptions{PolicyVersion: "v1"}); err == nil {
		t.Fatal("replay succeeded with a malformed run summary")
	}
}

func TestCloseCycle_OpenDayBlocks(t *testing.T) {
	ctx := context.Background()
	repo := newStubRepo()
	svc := newClosingService(repo)
	seedPolicy(t, repo, "v1", "0")

	cycle, _ := repo.GetOrCreateCycle(ctx, "2025-08")
	if _, err := repo.GetOrCreateTradingDay(ctx, cycle.ID, "2025-08-15"); err != nil {
		t.Fatalf("seed day: %v", err)
	}

	_, err := svc.CloseCycle(ctx, "2025-08", CloseOptions{PolicyVersion: "v1"})
	if !errors.Is(err, core.ErrState) {
		t.Fatalf("err = %v, want ErrState", err)
	}
}

func TestCloseCycle_TxFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	repo := newStubRepo()
	svc := newClosingService(repo)

	p1 := seedParticipant(t, repo, "c-1", core.RoleConsumer, "")
	p2 := seedParticipant(t, repo, "p-1", core.RoleProsumer, "")
	seedPolicy(t, repo, "v1", "0")

	cycle, _ := repo.GetOrCreateCycle(ctx, "2025-08")
	seedClosedDay(t, repo, cycle.ID, "2025-08-15", map[uint64]string{p1: "-7.00", p2: "7.00"})

	repo.failCloseCycle = errors.New("boom")
	if _, err := svc.CloseCycle(ctx, "2025-08", CloseOptions{PolicyVersion: "v1"}); err == nil {
		t.Fatal("CloseCycle succeeded despite failing status flip")
	}
	if len(repo.runs) != 0 || len(repo.payouts) != 0 {
		t.Fatalf("partial writes survived: %d runs, %d payouts", len(repo.runs), len(repo.payouts))
	}
	if repo.cycles["2025-08"].Status != core.StatusOpen {
		t.Fatal("cycle flipped despite rollback")
	}
}
