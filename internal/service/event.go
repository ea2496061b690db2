package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"kyde/internal/audit"
	"kyde/internal/core"
	"kyde/internal/models"
	"kyde/internal/policy"
	"kyde/internal/repository"
)

// EventService takes metering and billing events into the ledger, either as
// raw pre-priced postings or through a policy evaluation.
type EventService struct {
	Repo     repository.Repository
	Policies *PolicyService
	Logger   *zap.Logger
}

// RawEvent is an already-priced posting handed in from outside.
type RawEvent struct {
	ParticipantExternalID string
	AmountEUR             decimal.Decimal
	Source                string
	Account               string
	Meta                  map[string]any
	EventTS               time.Time
}

// EvaluateInput is one event to price through a policy version.
type EvaluateInput struct {
	PolicyVersion         string
	ParticipantExternalID string
	Source                string
	AmountEUR             decimal.Decimal
	Meta                  map[string]any
	EventTS               time.Time
}

// EvaluateResult carries the postings written, the explain trace and its
// hash.
type EvaluateResult struct {
	Postings  []policy.Posting
	Trace     policy.Trace
	TraceHash string
}

// Ingest writes a raw posting into the open cycle covering the event date.
func (s *EventService) Ingest(ctx context.Context, ev RawEvent) (*models.LedgerEntry, error) {
	if ev.Source == "" {
		return nil, core.Validationf("event source is required")
	}
	if ev.EventTS.IsZero() {
		ev.EventTS = time.Now().UTC()
	}
	label, err := core.CycleLabelForDate(ev.EventTS.UTC().Format("2006-01-02"))
	if err != nil {
		return nil, err
	}
	cycle, err := s.Repo.GetOrCreateCycle(ctx, label)
	if err != nil {
		return nil, err
	}
	if cycle.Status == core.StatusClosed {
		return nil, core.Statef("cycle %s is closed, no further postings accepted", label)
	}
	participant, err := s.Repo.GetParticipantByExternalID(ctx, ev.ParticipantExternalID)
	if err != nil {
		return nil, err
	}

	entry := models.LedgerEntry{
		CycleID:       cycle.ID,
		ParticipantID: participant.ID,
		AmountEUR:     ev.AmountEUR.Round(4),
		Source:        ev.Source,
		Account:       ev.Account,
		Meta:          marshalMeta(ev.Meta),
		EventTS:       ev.EventTS.UTC(),
	}
	if err := s.Repo.InsertLedgerEntries(ctx, []models.LedgerEntry{entry}); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Evaluate prices one event through a policy version, persists the resulting
// postings and the explain trace, and returns both. Beneficiary redirections
// land on the beneficiary's ledger rows.
func (s *EventService) Evaluate(ctx context.Context, in EvaluateInput) (*EvaluateResult, error) {
	eng, _, err := s.Policies.Engine(ctx, in.PolicyVersion)
	if err != nil {
		return nil, err
	}
	participant, err := s.Repo.GetParticipantByExternalID(ctx, in.ParticipantExternalID)
	if err != nil {
		return nil, err
	}

	var operatorID uint64
	operator, err := s.Repo.GetOperator(ctx)
	switch {
	case err == nil:
		operatorID = operator.ID
	case errors.Is(err, core.ErrNotFound):
		// No operator registered, redirections fall back to the event's
		// own participant.
	default:
		return nil, err
	}

	if in.EventTS.IsZero() {
		in.EventTS = time.Now().UTC()
	}
	label, err := core.CycleLabelForDate(in.EventTS.UTC().Format("2006-01-02"))
	if err != nil {
		return nil, err
	}
	cycle, err := s.Repo.GetOrCreateCycle(ctx, label)
	if err != nil {
		return nil, err
	}
	if cycle.Status == core.StatusClosed {
		return nil, core.Statef("cycle %s is closed, no further postings accepted", label)
	}

	postings, trace, err := eng.EvaluateEvent(policy.Event{
		Source:    in.Source,
		AmountEUR: in.AmountEUR,
		Meta:      in.Meta,
		TS:        in.EventTS,
	}, participant.Role, operatorID)
	if err != nil {
		return nil, err
	}

	entries := make([]models.LedgerEntry, 0, len(postings))
	for _, p := range postings {
		target := participant.ID
		if p.BeneficiaryID != 0 {
			target = p.BeneficiaryID
		}
		entries = append(entries, models.LedgerEntry{
			CycleID:       cycle.ID,
			ParticipantID: target,
			AmountEUR:     p.AmountEUR,
			Source:        in.Source,
			Account:       p.Account,
			RuleID:        p.RuleID,
			Meta:          marshalMeta(in.Meta),
			EventTS:       in.EventTS.UTC(),
		})
	}
	if len(entries) > 0 {
		if err := s.Repo.InsertLedgerEntries(ctx, entries); err != nil {
			return nil, err
		}
	}

	traceJSON, err := json.Marshal(trace)
	if err != nil {
		return nil, err
	}
	traceHash, err := audit.CanonicalHash(trace)
	if err != nil {
		return nil, err
	}
	if err := s.Repo.InsertExplainTrace(ctx, &models.ExplainTrace{
		PolicyVersion: in.PolicyVersion,
		ParticipantID: participant.ID,
		CycleID:       cycle.ID,
		Trace:         datatypes.JSON(traceJSON),
		TraceHash:     traceHash,
	}); err != nil {
		return nil, err
	}

	if s.Logger != nil {
		s.Logger.Info("event evaluated",
			zap.String("participant", in.ParticipantExternalID),
			zap.String("policy", in.PolicyVersion),
			zap.Int("postings", len(postings)),
		)
	}
	return &EvaluateResult{Postings: postings, Trace: trace, TraceHash: traceHash}, nil
}

// Traces lists persisted explain traces, newest first.
func (s *EventService) Traces(ctx context.Context, params repository.ListExplainTracesParams) ([]models.ExplainTrace, error) {
	return s.Repo.ListExplainTraces(ctx, params)
}

func marshalMeta(meta map[string]any) datatypes.JSON {
	if len(meta) == 0 {
		return nil
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}
