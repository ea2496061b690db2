package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"go.uber.org/zap"

	"kyde/internal/core"
	"kyde/internal/models"
	"kyde/internal/repository"
)

// ParticipantService registers participants and derives their API keys.
// Re-registering an external id updates the mutable fields and keeps the id.
type ParticipantService struct {
	Repo    repository.Repository
	KeySeed string
	Logger  *zap.Logger
}

// DeriveAPIKey produces the deterministic key handed to a participant on
// registration. Same external id and seed always give the same key.
func DeriveAPIKey(externalID, seed string) string {
	sum := sha256.Sum256([]byte(externalID + seed))
	return hex.EncodeToString(sum[:])[:32]
}

func (s *ParticipantService) Upsert(ctx context.Context, externalID, name, role, iban string) (*models.Participant, error) {
	if externalID == "" {
		return nil, core.Validationf("participant external id is required")
	}
	switch role {
	case core.RoleConsumer, core.RoleProsumer, core.RoleOperator:
	default:
		return nil, core.Validationf("unknown role %q", role)
	}

	item := &models.Participant{
		ExternalID: externalID,
		Name:       name,
		Role:       role,
		IBAN:       iban,
		APIKey:     DeriveAPIKey(externalID, s.KeySeed),
	}
	if err := s.Repo.UpsertParticipant(ctx, item); err != nil {
		return nil, err
	}
	// The upsert does not report the row id on conflict, read it back.
	stored, err := s.Repo.GetParticipantByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if s.Logger != nil {
		s.Logger.Info("participant upserted",
			zap.String("external_id", externalID),
			zap.String("role", role),
		)
	}
	return stored, nil
}

func (s *ParticipantService) Get(ctx context.Context, externalID string) (*models.Participant, error) {
	return s.Repo.GetParticipantByExternalID(ctx, externalID)
}
