package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"kyde/internal/audit"
	"kyde/internal/core"
	"kyde/internal/models"
	"kyde/internal/netting"
	"kyde/internal/payout"
	"kyde/internal/repository"
)

// ClosingService runs the two close operations: day close turns raw ledger
// postings into fee-adjusted day nets plus internal transfers, cycle close
// turns the closed day nets of a month into a settlement run with payout
// instructions. Both are idempotent; re-closing returns the persisted
// result.
type ClosingService struct {
	Repo       repository.Repository
	Policies   *PolicyService
	Dispatcher payout.Dispatcher
	Logger     *zap.Logger

	FixedCostEUR     decimal.Decimal
	VariableCostRate decimal.Decimal

	// Collapses concurrent closes of the same day or cycle into one
	// execution; losers get the winner's result.
	group singleflight.Group
}

// CloseOptions parameterizes one close call. Nil cost fields fall back to
// the service defaults; the policy version is always explicit.
type CloseOptions struct {
	PolicyVersion    string
	FixedCostEUR     *decimal.Decimal
	VariableCostRate *decimal.Decimal
}

func (s *ClosingService) costModel(opts CloseOptions) (fixed, variable decimal.Decimal) {
	fixed, variable = s.FixedCostEUR, s.VariableCostRate
	if opts.FixedCostEUR != nil {
		fixed = *opts.FixedCostEUR
	}
	if opts.VariableCostRate != nil {
		variable = *opts.VariableCostRate
	}
	return fixed, variable
}

// NetLine is one participant's net balance in a close result.
type NetLine struct {
	ParticipantID uint64 `json:"participant_id"`
	NetEUR        string `json:"net_eur"`
}

// TransferLine is one netted transfer in a close result.
type TransferLine struct {
	FromParticipantID uint64 `json:"from_participant_id"`
	ToParticipantID   uint64 `json:"to_participant_id"`
	AmountEUR         string `json:"amount_eur"`
}

// DayCloseResult reports a day close. AlreadyClosed marks an idempotent
// replay of a previously committed close.
type DayCloseResult struct {
	Date          string         `json:"date"`
	CycleLabel    string         `json:"cycle_label"`
	AlreadyClosed bool           `json:"already_closed"`
	Nets          []NetLine      `json:"nets"`
	Transfers     []TransferLine `json:"transfers"`
	AuditHash     string         `json:"audit_hash"`
}

// CycleCloseResult reports a cycle close.
type CycleCloseResult struct {
	CycleLabel    string         `json:"cycle_label"`
	RunUID        string         `json:"run_uid"`
	PolicyVersion string         `json:"policy_version"`
	AlreadyClosed bool           `json:"already_closed"`
	Nets          []NetLine      `json:"nets"`
	Payouts       []TransferLine `json:"payouts"`
	AuditHash     string         `json:"audit_hash"`
}

// CloseDay closes one trading day under the given policy version. Balances
// are aggregated from the raw ledger, the operator fee is skimmed, the net
// positions are reduced to a minimal transfer set and everything lands in
// one transaction together with the status flip. Closing a closed day
// returns the persisted result unchanged.
func (s *ClosingService) CloseDay(ctx context.Context, dateStr string, opts CloseOptions) (*DayCloseResult, error) {
	start, end, err := core.ParseTradingDate(dateStr)
	if err != nil {
		return nil, err
	}
	label, err := core.CycleLabelForDate(dateStr)
	if err != nil {
		return nil, err
	}
	if opts.PolicyVersion == "" {
		return nil, core.Validationf("policy version is required")
	}

	v, err, _ := s.group.Do("day:"+dateStr, func() (any, error) {
		return s.closeDay(ctx, dateStr, label, opts, start, end)
	})
	if err != nil {
		return nil, err
	}
	return v.(*DayCloseResult), nil
}

func (s *ClosingService) closeDay(ctx context.Context, dateStr, label string, opts CloseOptions, start, end time.Time) (*DayCloseResult, error) {
	cycle, err := s.Repo.GetOrCreateCycle(ctx, label)
	if err != nil {
		return nil, err
	}
	if cycle.Status == core.StatusClosed {
		return nil, core.Statef("cycle %s is closed, day %s cannot be closed", label, dateStr)
	}
	day, err := s.Repo.GetOrCreateTradingDay(ctx, cycle.ID, dateStr)
	if err != nil {
		return nil, err
	}
	if day.Status == core.StatusClosed {
		return s.replayDayClose(ctx, dateStr, label, day)
	}

	eng, _, err := s.Policies.Engine(ctx, opts.PolicyVersion)
	if err != nil {
		return nil, err
	}

	rows, err := s.Repo.SumLedgerByParticipant(ctx, cycle.ID, start, end)
	if err != nil {
		return nil, err
	}
	sums := make([]netting.ParticipantSum, 0, len(rows))
	for _, r := range rows {
		sums = append(sums, netting.ParticipantSum{ParticipantID: r.ParticipantID, TotalEUR: r.TotalEUR})
	}
	balances := netting.FromSums(sums)

	if pct := eng.OperatorFeePct(); pct.IsPositive() {
		operator, err := s.Repo.GetOperator(ctx)
		switch {
		case err == nil:
			balances = netting.ApplyOperatorFee(balances, operator.ID, pct)
		case errors.Is(err, core.ErrNotFound):
			// Fee configured but nobody to pay it to, skip the skim.
		default:
			return nil, err
		}
	}
	if err := netting.CheckConservation(balances); err != nil {
		return nil, fmt.Errorf("day %s: %w", dateStr, err)
	}

	fixed, variable := s.costModel(opts)
	transfers, err := netting.Optimize(balances, fixed, variable)
	if err != nil {
		return nil, fmt.Errorf("day %s: %w", dateStr, err)
	}
	auditHash, err := audit.TransferSetHash(transfers)
	if err != nil {
		return nil, err
	}

	netRows := make([]models.DayNet, 0, len(balances))
	for _, id := range sortedBalanceIDs(balances) {
		netRows = append(netRows, models.DayNet{
			DayID:         day.ID,
			ParticipantID: id,
			NetEUR:        balances[id],
		})
	}
	transferRows := make([]models.InternalTransfer, 0, len(transfers))
	for _, t := range transfers {
		transferRows = append(transferRows, models.InternalTransfer{
			DayID:             day.ID,
			FromParticipantID: t.From,
			ToParticipantID:   t.To,
			AmountEUR:         t.AmountEUR,
		})
	}

	closedAt := time.Now().UTC()
	err = s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		if err := s.Repo.InsertDayNetsTx(ctx, tx, netRows); err != nil {
			return err
		}
		if err := s.Repo.InsertInternalTransfersTx(ctx, tx, transferRows); err != nil {
			return err
		}
		return s.Repo.CloseTradingDayTx(ctx, tx, day.ID, auditHash, closedAt)
	})
	if err != nil {
		return nil, err
	}

	if s.Logger != nil {
		s.Logger.Info("trading day closed",
			zap.String("date", dateStr),
			zap.String("cycle", label),
			zap.Int("participants", len(netRows)),
			zap.Int("transfers", len(transferRows)),
			zap.String("audit_hash", auditHash),
		)
	}

	out := &DayCloseResult{Date: dateStr, CycleLabel: label, AuditHash: auditHash}
	for _, n := range netRows {
		out.Nets = append(out.Nets, NetLine{ParticipantID: n.ParticipantID, NetEUR: n.NetEUR.StringFixed(2)})
	}
	for _, t := range transferRows {
		out.Transfers = append(out.Transfers, TransferLine{
			FromParticipantID: t.FromParticipantID,
			ToParticipantID:   t.ToParticipantID,
			AmountEUR:         t.AmountEUR.StringFixed(2),
		})
	}
	return out, nil
}

// replayDayClose rebuilds the close result from persisted rows without
// touching anything.
func (s *ClosingService) replayDayClose(ctx context.Context, dateStr, label string, day *models.TradingDay) (*DayCloseResult, error) {
	nets, err := s.Repo.ListDayNetsByDay(ctx, day.ID)
	if err != nil {
		return nil, err
	}
	transfers, err := s.Repo.ListInternalTransfersByDay(ctx, day.ID)
	if err != nil {
		return nil, err
	}
	out := &DayCloseResult{Date: dateStr, CycleLabel: label, AlreadyClosed: true, AuditHash: day.AuditHash}
	for _, n := range nets {
		out.Nets = append(out.Nets, NetLine{ParticipantID: n.ParticipantID, NetEUR: n.NetEUR.StringFixed(2)})
	}
	for _, t := range transfers {
		out.Transfers = append(out.Transfers, TransferLine{
			FromParticipantID: t.FromParticipantID,
			ToParticipantID:   t.ToParticipantID,
			AmountEUR:         t.AmountEUR.StringFixed(2),
		})
	}
	return out, nil
}

// CloseCycle settles a whole billing cycle from its closed day nets. Every
// trading day of the cycle must already be closed; the run, its payout
// instructions and the cycle status flip commit atomically. Re-closing a
// closed cycle replays the persisted run.
func (s *ClosingService) CloseCycle(ctx context.Context, label string, opts CloseOptions) (*CycleCloseResult, error) {
	if !core.ValidCycleLabel(label) {
		return nil, core.Validationf("invalid cycle label %q, want YYYY-MM", label)
	}
	if opts.PolicyVersion == "" {
		return nil, core.Validationf("policy version is required")
	}

	v, err, _ := s.group.Do("cycle:"+label, func() (any, error) {
		return s.closeCycle(ctx, label, opts)
	})
	if err != nil {
		return nil, err
	}
	return v.(*CycleCloseResult), nil
}

func (s *ClosingService) closeCycle(ctx context.Context, label string, opts CloseOptions) (*CycleCloseResult, error) {
	cycle, err := s.Repo.GetCycleByLabel(ctx, label)
	if err != nil {
		return nil, err
	}
	if cycle.Status == core.StatusClosed {
		return s.replayCycleClose(ctx, label, cycle)
	}

	open, err := s.Repo.CountOpenDays(ctx, cycle.ID)
	if err != nil {
		return nil, err
	}
	if open > 0 {
		return nil, core.Statef("%d trading day(s) in cycle %s still open", open, label)
	}
	// The policy version is recorded on the run; it must exist even though
	// the operator fee was already taken at day scope.
	if _, err := s.Policies.Get(ctx, opts.PolicyVersion); err != nil {
		return nil, err
	}

	rows, err := s.Repo.SumClosedDayNets(ctx, cycle.ID)
	if err != nil {
		return nil, err
	}
	sums := make([]netting.ParticipantSum, 0, len(rows))
	for _, r := range rows {
		sums = append(sums, netting.ParticipantSum{ParticipantID: r.ParticipantID, TotalEUR: r.TotalEUR})
	}
	balances := netting.FromSums(sums)
	if err := netting.CheckConservation(balances); err != nil {
		return nil, fmt.Errorf("cycle %s: %w", label, err)
	}

	fixed, variable := s.costModel(opts)
	transfers, err := netting.Optimize(balances, fixed, variable)
	if err != nil {
		return nil, fmt.Errorf("cycle %s: %w", label, err)
	}
	auditHash, err := audit.TransferSetHash(transfers)
	if err != nil {
		return nil, err
	}

	participants, err := s.participantsFor(ctx, transfers)
	if err != nil {
		return nil, err
	}

	runUID := uuid.NewString()
	total := decimal.Zero
	instructions := make([]models.PayoutInstruction, 0, len(transfers))
	for _, t := range transfers {
		to := participants[t.To]
		instructions = append(instructions, models.PayoutInstruction{
			ParticipantID:     t.To,
			FromParticipantID: t.From,
			IBAN:              to.IBAN,
			AmountEUR:         t.AmountEUR,
			RemittanceInfo:    fmt.Sprintf("Settlement %s %s", label, runUID[:8]),
		})
		total = total.Add(t.AmountEUR)
	}

	summary, err := json.Marshal(map[string]any{
		"participants":       len(balances),
		"payout_count":       len(instructions),
		"total_payout_eur":   total.StringFixed(2),
		"audit_hash":         auditHash,
		"fixed_cost_eur":     fixed.String(),
		"variable_cost_rate": variable.String(),
	})
	if err != nil {
		return nil, err
	}
	run := &models.SettlementRun{
		RunUID:        runUID,
		CycleID:       cycle.ID,
		PolicyVersion: opts.PolicyVersion,
		Summary:       datatypes.JSON(summary),
	}

	err = s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		if err := s.Repo.InsertSettlementRunTx(ctx, tx, run); err != nil {
			return err
		}
		for i := range instructions {
			instructions[i].RunID = run.ID
		}
		if err := s.Repo.InsertPayoutInstructionsTx(ctx, tx, instructions); err != nil {
			return err
		}
		return s.Repo.CloseCycleTx(ctx, tx, cycle.ID)
	})
	if err != nil {
		return nil, err
	}

	if s.Dispatcher != nil {
		if err := s.Dispatcher.Dispatch(ctx, run, instructions); err != nil && s.Logger != nil {
			s.Logger.Error("payout dispatch failed, run is committed",
				zap.String("run_uid", runUID),
				zap.Error(err),
			)
		}
	}
	if s.Logger != nil {
		s.Logger.Info("cycle closed",
			zap.String("cycle", label),
			zap.String("run_uid", runUID),
			zap.Int("payouts", len(instructions)),
			zap.String("audit_hash", auditHash),
		)
	}

	out := &CycleCloseResult{
		CycleLabel:    label,
		RunUID:        runUID,
		PolicyVersion: opts.PolicyVersion,
		AuditHash:     auditHash,
	}
	for _, id := range sortedBalanceIDs(balances) {
		out.Nets = append(out.Nets, NetLine{ParticipantID: id, NetEUR: balances[id].StringFixed(2)})
	}
	for _, t := range transfers {
		out.Payouts = append(out.Payouts, TransferLine{
			FromParticipantID: t.From,
			ToParticipantID:   t.To,
			AmountEUR:         t.AmountEUR.StringFixed(2),
		})
	}
	return out, nil
}

func (s *ClosingService) replayCycleClose(ctx context.Context, label string, cycle *models.BillingCycle) (*CycleCloseResult, error) {
	run, err := s.Repo.GetSettlementRunByCycle(ctx, cycle.ID)
	if err != nil {
		return nil, err
	}
	payouts, err := s.Repo.ListPayoutsByRun(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	var summary struct {
		AuditHash string `json:"audit_hash"`
	}
	if err := json.Unmarshal(run.Summary, &summary); err != nil {
		return nil, fmt.Errorf("run %s: malformed summary: %w", run.RunUID, err)
	}

	rows, err := s.Repo.SumClosedDayNets(ctx, cycle.ID)
	if err != nil {
		return nil, err
	}

	out := &CycleCloseResult{
		CycleLabel:    label,
		RunUID:        run.RunUID,
		PolicyVersion: run.PolicyVersion,
		AlreadyClosed: true,
		AuditHash:     summary.AuditHash,
	}
	balances := make(netting.Balances, len(rows))
	for _, r := range rows {
		balances[r.ParticipantID] = r.TotalEUR.Round(2)
	}
	for _, id := range sortedBalanceIDs(balances) {
		out.Nets = append(out.Nets, NetLine{ParticipantID: id, NetEUR: balances[id].StringFixed(2)})
	}
	for _, p := range payouts {
		out.Payouts = append(out.Payouts, TransferLine{
			FromParticipantID: p.FromParticipantID,
			ToParticipantID:   p.ParticipantID,
			AmountEUR:         p.AmountEUR.StringFixed(2),
		})
	}
	return out, nil
}

func (s *ClosingService) participantsFor(ctx context.Context, transfers []netting.Transfer) (map[uint64]models.Participant, error) {
	seen := make(map[uint64]struct{}, len(transfers)*2)
	ids := make([]uint64, 0, len(transfers)*2)
	for _, t := range transfers {
		for _, id := range [2]uint64{t.From, t.To} {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	items, err := s.Repo.ListParticipantsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[uint64]models.Participant, len(items))
	for _, p := range items {
		out[p.ID] = p
	}
	return out, nil
}

func sortedBalanceIDs(balances netting.Balances) []uint64 {
	ids := make([]uint64, 0, len(balances))
	for id := range balances {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
