package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"kyde/internal/audit"
	"kyde/internal/core"
	"kyde/internal/models"
	"kyde/internal/policy"
	"kyde/internal/repository"
)

// PolicyService stores and loads immutable policy versions. A version is
// validated and content-hashed before it is written; writing an existing
// version is rejected.
type PolicyService struct {
	Repo   repository.Repository
	Logger *zap.Logger
}

func (s *PolicyService) Put(ctx context.Context, version string, data json.RawMessage, signature string) (*models.Policy, error) {
	if version == "" {
		return nil, core.Validationf("policy version is required")
	}
	// Reject malformed documents before anything is persisted.
	if _, err := policy.Parse(data); err != nil {
		return nil, err
	}
	if existing, err := s.Repo.GetPolicyByVersion(ctx, version); err == nil && existing != nil {
		return nil, core.Conflictf("policy version %q exists", version)
	}

	hash, err := audit.CanonicalHash(data)
	if err != nil {
		return nil, err
	}
	item := &models.Policy{
		Version:   version,
		HashHex:   hash,
		Data:      datatypes.JSON(data),
		Signature: signature,
	}
	if err := s.Repo.InsertPolicy(ctx, item); err != nil {
		return nil, err
	}
	if s.Logger != nil {
		s.Logger.Info("policy stored",
			zap.String("version", version),
			zap.String("hash", hash),
		)
	}
	return item, nil
}

func (s *PolicyService) Get(ctx context.Context, version string) (*models.Policy, error) {
	return s.Repo.GetPolicyByVersion(ctx, version)
}

// Engine loads a version and parses it into an evaluation engine.
func (s *PolicyService) Engine(ctx context.Context, version string) (*policy.Engine, *models.Policy, error) {
	item, err := s.Repo.GetPolicyByVersion(ctx, version)
	if err != nil {
		return nil, nil, err
	}
	eng, err := policy.Parse(item.Data)
	if err != nil {
		return nil, nil, err
	}
	return eng, item, nil
}
