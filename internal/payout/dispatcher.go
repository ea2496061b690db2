package payout

import (
	"context"

	"go.uber.org/zap"

	"kyde/internal/models"
)

// Dispatcher hands settled payout instructions to an external payment rail.
// Dispatch runs after the settlement run is committed; a failure here must
// not undo the run, retries happen against the persisted instructions.
type Dispatcher interface {
	Dispatch(ctx context.Context, run *models.SettlementRun, instructions []models.PayoutInstruction) error
}

// LogDispatcher records each instruction and moves no money. Stands in until
// a bank or PSP integration is wired up.
type LogDispatcher struct {
	Logger *zap.Logger
}

func (d *LogDispatcher) Dispatch(_ context.Context, run *models.SettlementRun, instructions []models.PayoutInstruction) error {
	if d.Logger == nil {
		return nil
	}
	for _, in := range instructions {
		d.Logger.Info("payout instruction",
			zap.String("run_uid", run.RunUID),
			zap.Uint64("participant_id", in.ParticipantID),
			zap.String("iban", in.IBAN),
			zap.String("amount_eur", in.AmountEUR.StringFixed(2)),
			zap.String("remittance", in.RemittanceInfo),
		)
	}
	return nil
}
