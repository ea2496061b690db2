package service

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"kyde/internal/core"
	"kyde/internal/models"
	"kyde/internal/repository"
)

// stubRepo is an in-memory Repository for service tests. InTx snapshots the
// mutable tables and restores them when fn fails, matching the rollback
// behavior of the real store.
type stubRepo struct {
	nextID uint64

	participants []models.Participant
	policies     map[string]*models.Policy
	cycles       map[string]*models.BillingCycle
	days         map[string]*models.TradingDay
	ledger       []models.LedgerEntry
	dayNets      []models.DayNet
	transfers    []models.InternalTransfer
	runs         []*models.SettlementRun
	payouts      []models.PayoutInstruction
	traces       []models.ExplainTrace

	failCloseDay   error
	failCloseCycle error
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		policies: make(map[string]*models.Policy),
		cycles:   make(map[string]*models.BillingCycle),
		days:     make(map[string]*models.TradingDay),
	}
}

func (s *stubRepo) id() uint64 {
	s.nextID++
	return s.nextID
}

func dayKey(cycleID uint64, dateStr string) string {
	return fmt.Sprintf("%d|%s", cycleID, dateStr)
}

func (s *stubRepo) InTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	nets := len(s.dayNets)
	transfers := len(s.transfers)
	runs := len(s.runs)
	payouts := len(s.payouts)
	if err := fn(nil); err != nil {
		s.dayNets = s.dayNets[:nets]
		s.transfers = s.transfers[:transfers]
		s.runs = s.runs[:runs]
		s.payouts = s.payouts[:payouts]
		return err
	}
	return nil
}

func (s *stubRepo) UpsertParticipant(_ context.Context, item *models.Participant) error {
	for i := range s.participants {
		if s.participants[i].ExternalID == item.ExternalID {
			s.participants[i].Name = item.Name
			s.participants[i].Role = item.Role
			s.participants[i].IBAN = item.IBAN
			return nil
		}
	}
	item.ID = s.id()
	s.participants = append(s.participants, *item)
	return nil
}

func (s *stubRepo) GetParticipantByExternalID(_ context.Context, externalID string) (*models.Participant, error) {
	for i := range s.participants {
		if s.participants[i].ExternalID == externalID {
			p := s.participants[i]
			return &p, nil
		}
	}
	return nil, core.NotFoundf("participant %q", externalID)
}

func (s *stubRepo) GetParticipantByID(_ context.Context, id uint64) (*models.Participant, error) {
	for i := range s.participants {
		if s.participants[i].ID == id {
			p := s.participants[i]
			return &p, nil
		}
	}
	return nil, core.NotFoundf("participant %d", id)
}

func (s *stubRepo) GetOperator(_ context.Context) (*models.Participant, error) {
	for i := range s.participants {
		if s.participants[i].Role == core.RoleOperator {
			p := s.participants[i]
			return &p, nil
		}
	}
	return nil, core.NotFoundf("no operator registered")
}

func (s *stubRepo) ListParticipantsByIDs(_ context.Context, ids []uint64) ([]models.Participant, error) {
	var out []models.Participant
	for _, id := range ids {
		for i := range s.participants {
			if s.participants[i].ID == id {
				out = append(out, s.participants[i])
			}
		}
	}
	return out, nil
}

func (s *stubRepo) InsertPolicy(_ context.Context, item *models.Policy) error {
	if _, ok := s.policies[item.Version]; ok {
		return core.Conflictf("policy version %q exists", item.Version)
	}
	item.ID = s.id()
	s.policies[item.Version] = item
	return nil
}

func (s *stubRepo) GetPolicyByVersion(_ context.Context, version string) (*models.Policy, error) {
	item, ok := s.policies[version]
	if !ok {
		return nil, core.NotFoundf("policy version %q", version)
	}
	return item, nil
}

func (s *stubRepo) GetOrCreateCycle(_ context.Context, label string) (*models.BillingCycle, error) {
	if c, ok := s.cycles[label]; ok {
		return c, nil
	}
	c := &models.BillingCycle{ID: s.id(), Label: label, Status: core.StatusOpen}
	s.cycles[label] = c
	return c, nil
}

func (s *stubRepo) GetCycleByLabel(_ context.Context, label string) (*models.BillingCycle, error) {
	if c, ok := s.cycles[label]; ok {
		return c, nil
	}
	return nil, core.NotFoundf("cycle %q", label)
}

func (s *stubRepo) CloseCycleTx(_ context.Context, _ *gorm.DB, cycleID uint64) error {
	if s.failCloseCycle != nil {
		return s.failCloseCycle
	}
	for _, c := range s.cycles {
		if c.ID == cycleID {
			c.Status = core.StatusClosed
			return nil
		}
	}
	return core.NotFoundf("cycle %d", cycleID)
}

func (s *stubRepo) GetOrCreateTradingDay(_ context.Context, cycleID uint64, dateStr string) (*models.TradingDay, error) {
	key := dayKey(cycleID, dateStr)
	if d, ok := s.days[key]; ok {
		return d, nil
	}
	d := &models.TradingDay{ID: s.id(), CycleID: cycleID, DateStr: dateStr, Status: core.StatusOpen}
	s.days[key] = d
	return d, nil
}

func (s *stubRepo) GetTradingDay(_ context.Context, cycleID uint64, dateStr string) (*models.TradingDay, error) {
	if d, ok := s.days[dayKey(cycleID, dateStr)]; ok {
		return d, nil
	}
	return nil, core.NotFoundf("trading day %s", dateStr)
}

func (s *stubRepo) CountOpenDays(_ context.Context, cycleID uint64) (int64, error) {
	var n int64
	for _, d := range s.days {
		if d.CycleID == cycleID && d.Status == core.StatusOpen {
			n++
		}
	}
	return n, nil
}

func (s *stubRepo) CloseTradingDayTx(_ context.Context, _ *gorm.DB, dayID uint64, auditHash string, closedAt time.Time) error {
	if s.failCloseDay != nil {
		return s.failCloseDay
	}
	for _, d := range s.days {
		if d.ID == dayID {
			d.Status = core.StatusClosed
			d.AuditHash = auditHash
			d.ClosedAt = &closedAt
			return nil
		}
	}
	return core.NotFoundf("trading day %d", dayID)
}

func (s *stubRepo) InsertLedgerEntries(_ context.Context, items []models.LedgerEntry) error {
	for _, item := range items {
		item.ID = s.id()
		s.ledger = append(s.ledger, item)
	}
	return nil
}

func (s *stubRepo) SumLedgerByParticipant(_ context.Context, cycleID uint64, from, to time.Time) ([]repository.BalanceRow, error) {
	byID := make(map[uint64]repository.BalanceRow)
	var order []uint64
	for _, e := range s.ledger {
		if e.CycleID != cycleID || e.EventTS.Before(from) || !e.EventTS.Before(to) {
			continue
		}
		row, ok := byID[e.ParticipantID]
		if !ok {
			row = repository.BalanceRow{ParticipantID: e.ParticipantID}
			order = append(order, e.ParticipantID)
		}
		row.TotalEUR = row.TotalEUR.Add(e.AmountEUR)
		byID[e.ParticipantID] = row
	}
	out := make([]repository.BalanceRow, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out, nil
}

func (s *stubRepo) SumLedgerBySource(_ context.Context, cycleID, participantID uint64) ([]repository.SourceSum, error) {
	bySource := make(map[string]repository.SourceSum)
	var order []string
	for _, e := range s.ledger {
		if e.CycleID != cycleID || e.ParticipantID != participantID {
			continue
		}
		row, ok := bySource[e.Source]
		if !ok {
			row = repository.SourceSum{Source: e.Source}
			order = append(order, e.Source)
		}
		row.TotalEUR = row.TotalEUR.Add(e.AmountEUR)
		bySource[e.Source] = row
	}
	out := make([]repository.SourceSum, 0, len(order))
	for _, src := range order {
		out = append(out, bySource[src])
	}
	return out, nil
}

func (s *stubRepo) InsertDayNetsTx(_ context.Context, _ *gorm.DB, items []models.DayNet) error {
	for _, item := range items {
		item.ID = s.id()
		s.dayNets = append(s.dayNets, item)
	}
	return nil
}

func (s *stubRepo) ListDayNetsByDay(_ context.Context, dayID uint64) ([]models.DayNet, error) {
	var out []models.DayNet
	for _, n := range s.dayNets {
		if n.DayID == dayID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *stubRepo) SumClosedDayNets(_ context.Context, cycleID uint64) ([]repository.BalanceRow, error) {
	closedDays := make(map[uint64]bool)
	for _, d := range s.days {
		if d.CycleID == cycleID && d.Status == core.StatusClosed {
			closedDays[d.ID] = true
		}
	}
	byID := make(map[uint64]repository.BalanceRow)
	var order []uint64
	for _, n := range s.dayNets {
		if !closedDays[n.DayID] {
			continue
		}
		row, ok := byID[n.ParticipantID]
		if !ok {
			row = repository.BalanceRow{ParticipantID: n.ParticipantID}
			order = append(order, n.ParticipantID)
		}
		row.TotalEUR = row.TotalEUR.Add(n.NetEUR)
		byID[n.ParticipantID] = row
	}
	out := make([]repository.BalanceRow, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out, nil
}

func (s *stubRepo) InsertInternalTransfersTx(_ context.Context, _ *gorm.DB, items []models.InternalTransfer) error {
	for _, item := range items {
		item.ID = s.id()
		s.transfers = append(s.transfers, item)
	}
	return nil
}

func (s *stubRepo) ListInternalTransfersByDay(_ context.Context, dayID uint64) ([]models.InternalTransfer, error) {
	var out []models.InternalTransfer
	for _, t := range s.transfers {
		if t.DayID == dayID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *stubRepo) InsertSettlementRunTx(_ context.Context, _ *gorm.DB, item *models.SettlementRun) error {
	item.ID = s.id()
	s.runs = append(s.runs, item)
	return nil
}

func (s *stubRepo) InsertPayoutInstructionsTx(_ context.Context, _ *gorm.DB, items []models.PayoutInstruction) error {
	for _, item := range items {
		item.ID = s.id()
		s.payouts = append(s.payouts, item)
	}
	return nil
}

func (s *stubRepo) GetSettlementRunByCycle(_ context.Context, cycleID uint64) (*models.SettlementRun, error) {
	for _, r := range s.runs {
		if r.CycleID == cycleID {
			return r, nil
		}
	}
	return nil, core.NotFoundf("settlement run for cycle %d", cycleID)
}

func (s *stubRepo) ListPayoutsByRun(_ context.Context, runID uint64) ([]models.PayoutInstruction, error) {
	var out []models.PayoutInstruction
	for _, p := range s.payouts {
		if p.RunID == runID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *stubRepo) InsertExplainTrace(_ context.Context, item *models.ExplainTrace) error {
	item.ID = s.id()
	s.traces = append(s.traces, *item)
	return nil
}

func (s *stubRepo) ListExplainTraces(_ context.Context, params repository.ListExplainTracesParams) ([]models.ExplainTrace, error) {
	var out []models.ExplainTrace
	for _, t := range s.traces {
		if params.PolicyVersion != nil && t.PolicyVersion != *params.PolicyVersion {
			continue
		}
		if params.ParticipantID != nil && t.ParticipantID != *params.ParticipantID {
			continue
		}
		if params.CycleID != nil && t.CycleID != *params.CycleID {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

var _ repository.Repository = (*stubRepo)(nil)
