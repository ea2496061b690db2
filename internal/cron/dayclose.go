package cronrunner

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"kyde/internal/core"
	"kyde/internal/service"
)

// DayCloseJob closes the previous trading day under the configured policy
// version. Scheduled shortly after midnight UTC; a day already closed by an
// operator call is a no-op thanks to idempotent re-close.
func DayCloseJob(closing *service.ClosingService, policyVersion string, logger *zap.Logger) func(context.Context) {
	return func(ctx context.Context) {
		dateStr := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
		res, err := closing.CloseDay(ctx, dateStr, service.CloseOptions{PolicyVersion: policyVersion})
		if err != nil {
			// A day without any policy or inside a closed cycle is left
			// for the operator to resolve.
			if errors.Is(err, core.ErrState) || errors.Is(err, core.ErrNotFound) {
				logger.Warn("auto day close skipped",
					zap.String("date", dateStr),
					zap.Error(err),
				)
				return
			}
			logger.Error("auto day close failed",
				zap.String("date", dateStr),
				zap.Error(err),
			)
			return
		}
		logger.Info("auto day close done",
			zap.String("date", dateStr),
			zap.Bool("already_closed", res.AlreadyClosed),
			zap.String("audit_hash", res.AuditHash),
		)
	}
}
