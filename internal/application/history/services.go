package history

import (
	"context"

	"github.com/paperlens/paperlens/internal/domain/analysis"
)

// Service exposes the persisted analysis history
type Service struct {
	repo analysis.Repository
}

func NewService(repo analysis.Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, page, pageSize int) ([]*analysis.Analysis, error) {
	return s.repo.Paginate(ctx, page, pageSize)
}
