package gormrepository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"kyde/internal/core"
	"kyde/internal/models"
	"kyde/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- Participants -----------------------------------------------------------

func (s *Store) UpsertParticipant(ctx context.Context, item *models.Participant) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name",
			"role",
			"iban",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetParticipantByExternalID(ctx context.Context, externalID string) (*models.Participant, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Participant
	err := s.db.WithContext(ctx).Where("external_id = ?", externalID).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, core.NotFoundf("participant %q", externalID)
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetParticipantByID(ctx context.Context, id uint64) (*models.Participant, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Participant
	err := s.db.WithContext(ctx).First(&item, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, core.NotFoundf("participant id %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetOperator(ctx context.Context) (*models.Participant, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Participant
	err := s.db.WithContext(ctx).Where("role = ?", core.RoleOperator).Order("id asc").First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, core.NotFoundf("no operator participant")
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListParticipantsByIDs(ctx context.Context, ids []uint64) ([]models.Participant, error) {
	if s == nil || s.db == nil || len(ids) == 0 {
		return nil, nil
	}
	var items []models.Participant
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Policies ---------------------------------------------------------------

func (s *Store) InsertPolicy(ctx context.Context, item *models.Policy) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	err := s.db.WithContext(ctx).Create(item).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return core.Conflictf("policy version %q exists", item.Version)
	}
	return err
}

func (s *Store) GetPolicyByVersion(ctx context.Context, version string) (*models.Policy, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Policy
	err := s.db.WithContext(ctx).Where("version = ?", version).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, core.NotFoundf("policy %q", version)
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// --- Cycles and trading days ------------------------------------------------

func (s *Store) GetOrCreateCycle(ctx context.Context, label string) (*models.BillingCycle, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	item := models.BillingCycle{Label: label, Status: core.StatusOpen}
	err := s.db.WithContext(ctx).
		Where("label = ?", label).
		Attrs(models.BillingCycle{Status: core.StatusOpen}).
		FirstOrCreate(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetCycleByLabel(ctx context.Context, label string) (*models.BillingCycle, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.BillingCycle
	err := s.db.WithContext(ctx).Where("label = ?", label).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, core.NotFoundf("cycle %q", label)
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) CloseCycleTx(ctx context.Context, tx *gorm.DB, cycleID uint64) error {
	if s == nil || tx == nil {
		return nil
	}
	return tx.WithContext(ctx).
		Model(&models.BillingCycle{}).
		Where("id = ? AND status = ?", cycleID, core.StatusOpen).
		Update("status", core.StatusClosed).Error
}

func (s *Store) GetOrCreateTradingDay(ctx context.Context, cycleID uint64, dateStr string) (*models.TradingDay, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	item := models.TradingDay{CycleID: cycleID, DateStr: dateStr, Status: core.StatusOpen}
	err := s.db.WithContext(ctx).
		Where("cycle_id = ? AND date_str = ?", cycleID, dateStr).
		Attrs(models.TradingDay{Status: core.StatusOpen}).
		FirstOrCreate(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetTradingDay(ctx context.Context, cycleID uint64, dateStr string) (*models.TradingDay, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.TradingDay
	err := s.db.WithContext(ctx).Where("cycle_id = ? AND date_str = ?", cycleID, dateStr).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, core.NotFoundf("trading day %s", dateStr)
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) CountOpenDays(ctx context.Context, cycleID uint64) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.TradingDay{}).
		Where("cycle_id = ? AND status = ?", cycleID, core.StatusOpen).
		Count(&count).Error
	return count, err
}

func (s *Store) CloseTradingDayTx(ctx context.Context, tx *gorm.DB, dayID uint64, auditHash string, closedAt time.Time) error {
	if s == nil || tx == nil {
		return nil
	}
	return tx.WithContext(ctx).
		Model(&models.TradingDay{}).
		Where("id = ? AND status = ?", dayID, core.StatusOpen).
		Updates(map[string]any{
			"status":     core.StatusClosed,
			"audit_hash": auditHash,
			"closed_at":  closedAt,
		}).Error
}

// --- Ledger postings --------------------------------------------------------

func (s *Store) InsertLedgerEntries(ctx context.Context, items []models.LedgerEntry) error {
	if s == nil || s.db == nil || len(items) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Create(&items).Error
}

func (s *Store) SumLedgerByParticipant(ctx context.Context, cycleID uint64, from, to time.Time) ([]repository.BalanceRow, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var rows []repository.BalanceRow
	err := s.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Select("participant_id, COALESCE(SUM(amount_eur), 0) AS total_eur").
		Where("cycle_id = ? AND event_ts >= ? AND event_ts < ?", cycleID, from, to).
		Group("participant_id").
		Order("participant_id asc").
		Scan(&rows).Error
	return rows, err
}

func (s *Store) SumLedgerBySource(ctx context.Context, cycleID, participantID uint64) ([]repository.SourceSum, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var rows []repository.SourceSum
	err := s.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Select("source, COALESCE(SUM(amount_eur), 0) AS total_eur").
		Where("cycle_id = ? AND participant_id = ?", cycleID, participantID).
		Group("source").
		Order("source asc").
		Scan(&rows).Error
	return rows, err
}

// --- Day nets ---------------------------------------------------------------

func (s *Store) InsertDayNetsTx(ctx context.Context, tx *gorm.DB, items []models.DayNet) error {
	if s == nil || tx == nil || len(items) == 0 {
		return nil
	}
	return tx.WithContext(ctx).Create(&items).Error
}

func (s *Store) ListDayNetsByDay(ctx context.Context, dayID uint64) ([]models.DayNet, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.DayNet
	err := s.db.WithContext(ctx).
		Where("day_id = ?", dayID).
		Order("participant_id asc").
		Find(&items).Error
	return items, err
}

func (s *Store) SumClosedDayNets(ctx context.Context, cycleID uint64) ([]repository.BalanceRow, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var rows []repository.BalanceRow
	err := s.db.WithContext(ctx).
		Model(&models.DayNet{}).
		Select("day_nets.participant_id, COALESCE(SUM(day_nets.net_eur), 0) AS total_eur").
		Joins("JOIN trading_days ON trading_days.id = day_nets.day_id").
		Where("trading_days.cycle_id = ? AND trading_days.status = ?", cycleID, core.StatusClosed).
		Group("day_nets.participant_id").
		Order("day_nets.participant_id asc").
		Scan(&rows).Error
	return rows, err
}

// --- Internal transfers -----------------------------------------------------

func (s *Store) InsertInternalTransfersTx(ctx context.Context, tx *gorm.DB, items []models.InternalTransfer) error {
	if s == nil || tx == nil || len(items) == 0 {
		return nil
	}
	return tx.WithContext(ctx).Create(&items).Error
}

func (s *Store) ListInternalTransfersByDay(ctx context.Context, dayID uint64) ([]models.InternalTransfer, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.InternalTransfer
	err := s.db.WithContext(ctx).
		Where("day_id = ?", dayID).
		Order("from_participant_id asc, to_participant_id asc, amount_eur asc").
		Find(&items).Error
	return items, err
}

// --- Settlement runs and payouts --------------------------------------------

func (s *Store) InsertSettlementRunTx(ctx context.Context, tx *gorm.DB, item *models.SettlementRun) error {
	if s == nil || tx == nil || item == nil {
		return nil
	}
	return tx.WithContext(ctx).Create(item).Error
}

func (s *Store) InsertPayoutInstructionsTx(ctx context.Context, tx *gorm.DB, items []models.PayoutInstruction) error {
	if s == nil || tx == nil || len(items) == 0 {
		return nil
	}
	return tx.WithContext(ctx).Create(&items).Error
}

func (s *Store) GetSettlementRunByCycle(ctx context.Context, cycleID uint64) (*models.SettlementRun, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.SettlementRun
	err := s.db.WithContext(ctx).
		Where("cycle_id = ?", cycleID).
		Order("id desc").
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, core.NotFoundf("no settlement run for cycle id %d", cycleID)
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListPayoutsByRun(ctx context.Context, runID uint64) ([]models.PayoutInstruction, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.PayoutInstruction
	err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("participant_id asc, from_participant_id asc").
		Find(&items).Error
	return items, err
}

// --- Explain traces ---------------------------------------------------------

func (s *Store) InsertExplainTrace(ctx context.Context, item *models.ExplainTrace) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListExplainTraces(ctx context.Context, params repository.ListExplainTracesParams) ([]models.ExplainTrace, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.ExplainTrace{})
	if params.PolicyVersion != nil && *params.PolicyVersion != "" {
		query = query.Where("policy_version = ?", *params.PolicyVersion)
	}
	if params.ParticipantID != nil && *params.ParticipantID != 0 {
		query = query.Where("participant_id = ?", *params.ParticipantID)
	}
	if params.CycleID != nil && *params.CycleID != 0 {
		query = query.Where("cycle_id = ?", *params.CycleID)
	}
	limit := params.Limit
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	offset := params.Offset
	if offset < 0 {
		offset = 0
	}
	var items []models.ExplainTrace
	err := query.Order("id desc").Limit(limit).Offset(offset).Find(&items).Error
	return items, err
}
