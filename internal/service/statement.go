package service

import (
	"context"

	"github.com/shopspring/decimal"

	"kyde/internal/core"
	"kyde/internal/repository"
)

// StatementService renders a participant's per-source breakdown for one
// billing cycle out of the raw ledger.
type StatementService struct {
	Repo repository.Repository
}

type StatementLine struct {
	Source   string `json:"source"`
	TotalEUR string `json:"total_eur"`
}

type Statement struct {
	CycleLabel            string          `json:"cycle_label"`
	ParticipantExternalID string          `json:"participant_external_id"`
	Lines                 []StatementLine `json:"lines"`
	TotalEUR              string          `json:"total_eur"`
}

func (s *StatementService) ForParticipant(ctx context.Context, label, externalID string) (*Statement, error) {
	if !core.ValidCycleLabel(label) {
		return nil, core.Validationf("invalid cycle label %q, want YYYY-MM", label)
	}
	cycle, err := s.Repo.GetCycleByLabel(ctx, label)
	if err != nil {
		return nil, err
	}
	participant, err := s.Repo.GetParticipantByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}

	rows, err := s.Repo.SumLedgerBySource(ctx, cycle.ID, participant.ID)
	if err != nil {
		return nil, err
	}
	out := &Statement{CycleLabel: label, ParticipantExternalID: externalID}
	total := decimal.Zero
	for _, r := range rows {
		out.Lines = append(out.Lines, StatementLine{Source: r.Source, TotalEUR: r.TotalEUR.Round(2).StringFixed(2)})
		total = total.Add(r.TotalEUR)
	}
	out.TotalEUR = total.Round(2).StringFixed(2)
	return out, nil
}
