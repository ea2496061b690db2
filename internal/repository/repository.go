package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"kyde/internal/models"
)

// BalanceRow is one participant's summed posting total for a scope.
type BalanceRow struct {
	ParticipantID uint64
	TotalEUR      decimal.Decimal
}

// SourceSum is one statement line: postings grouped by source.
type SourceSum struct {
	Source   string
	TotalEUR decimal.Decimal
}

// Repository is the persistence port of the settlement core. The *Tx
// variants run inside the transaction a close operation opened via InTx, so
// nets, transfers and the status flip land atomically.
type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Participants
	UpsertParticipant(ctx context.Context, item *models.Participant) error
	GetParticipantByExternalID(ctx context.Context, externalID string) (*models.Participant, error)
	GetParticipantByID(ctx context.Context, id uint64) (*models.Participant, error)
	GetOperator(ctx context.Context) (*models.Participant, error)
	ListParticipantsByIDs(ctx context.Context, ids []uint64) ([]models.Participant, error)

	// Policies (immutable once written)
	InsertPolicy(ctx context.Context, item *models.Policy) error
	GetPolicyByVersion(ctx context.Context, version string) (*models.Policy, error)

	// Cycles and trading days
	GetOrCreateCycle(ctx context.Context, label string) (*models.BillingCycle, error)
	GetCycleByLabel(ctx context.Context, label string) (*models.BillingCycle, error)
	CloseCycleTx(ctx context.Context, tx *gorm.DB, cycleID uint64) error
	GetOrCreateTradingDay(ctx context.Context, cycleID uint64, dateStr string) (*models.TradingDay, error)
	GetTradingDay(ctx context.Context, cycleID uint64, dateStr string) (*models.TradingDay, error)
	CountOpenDays(ctx context.Context, cycleID uint64) (int64, error)
	CloseTradingDayTx(ctx context.Context, tx *gorm.DB, dayID uint64, auditHash string, closedAt time.Time) error

	// Ledger postings
	InsertLedgerEntries(ctx context.Context, items []models.LedgerEntry) error
	SumLedgerByParticipant(ctx context.Context, cycleID uint64, from, to time.Time) ([]BalanceRow, error)
	SumLedgerBySource(ctx context.Context, cycleID, participantID uint64) ([]SourceSum, error)

	// Day nets (month aggregation input)
	InsertDayNetsTx(ctx context.Context, tx *gorm.DB, items []models.DayNet) error
	ListDayNetsByDay(ctx context.Context, dayID uint64) ([]models.DayNet, error)
	SumClosedDayNets(ctx context.Context, cycleID uint64) ([]BalanceRow, error)

	// Internal transfers (day-scope transparency records)
	InsertInternalTransfersTx(ctx context.Context, tx *gorm.DB, items []models.InternalTransfer) error
	ListInternalTransfersByDay(ctx context.Context, dayID uint64) ([]models.InternalTransfer, error)

	// Settlement runs and payouts (cycle scope)
	InsertSettlementRunTx(ctx context.Context, tx *gorm.DB, item *models.SettlementRun) error
	InsertPayoutInstructionsTx(ctx context.Context, tx *gorm.DB, items []models.PayoutInstruction) error
	GetSettlementRunByCycle(ctx context.Context, cycleID uint64) (*models.SettlementRun, error)
	ListPayoutsByRun(ctx context.Context, runID uint64) ([]models.PayoutInstruction, error)

	// Explain traces
	InsertExplainTrace(ctx context.Context, item *models.ExplainTrace) error
	ListExplainTraces(ctx context.Context, params ListExplainTracesParams) ([]models.ExplainTrace, error)
}

type ListExplainTracesParams struct {
	PolicyVersion *string
	ParticipantID *uint64
	CycleID       *uint64
	Limit         int
	Offset        int
}
