package locations

import (
	"context"
	"fmt"
	"strings"

	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/staffops/services/booking-service/internal/workflow"
)

// Base is the plain location capability that Enhanced decorates.
type Base interface {
	Create(ctx context.Context, in model.Location) (model.Location, error)
	Update(ctx context.Context, in model.Location) (model.Location, error)
	Approve(ctx context.Context, id, reviewerID, notes string) (model.Location, error)
	Reject(ctx context.Context, id, reviewerID, notes string) (model.Location, error)
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (model.Location, error)
}

// Repository is implemented by storage.LocationRepository.
type Repository interface {
	Create(ctx context.Context, l model.Location) (model.Location, error)
	Update(ctx context.Context, l model.Location) (model.Location, error)
	Review(ctx context.Context, id string, status model.LocationStatus, reviewerID, notes string) (model.Location, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (model.Location, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, in model.Location) (model.Location, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Address = strings.TrimSpace(in.Address)
	if in.Name == "" || in.Address == "" {
		return model.Location{}, fmt.Errorf("name and address are required: %w", workflow.ErrValidation)
	}
	in.Status = model.LocationPending
	return s.repo.Create(ctx, in)
}

func (s *Service) Update(ctx context.Context, in model.Location) (model.Location, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Address = strings.TrimSpace(in.Address)
	if in.Name == "" || in.Address == "" {
		return model.Location{}, fmt.Errorf("name and address are required: %w", workflow.ErrValidation)
	}
	out, err := s.repo.Update(ctx, in)
	if err != nil {
		return model.Location{}, fmt.Errorf("location %s: %w", in.ID, err)
	}
	return out, nil
}

func (s *Service) Approve(ctx context.Context, id, reviewerID, notes string) (model.Location, error) {
	return s.review(ctx, id, model.LocationApproved, reviewerID, notes)
}

func (s *Service) Reject(ctx context.Context, id, reviewerID, notes string) (model.Location, error) {
	return s.review(ctx, id, model.LocationRejected, reviewerID, notes)
}

func (s *Service) review(ctx context.Context, id string, status model.LocationStatus, reviewerID, notes string) (model.Location, error) {
	cur, err := s.repo.Get(ctx, id)
	if err != nil {
		return model.Location{}, fmt.Errorf("location %s: %w", id, err)
	}
	if cur.Status != model.LocationPending {
		return model.Location{}, fmt.Errorf("location %s is %s: %w", id, cur.Status, workflow.ErrInvalidTransition)
	}
	out, err := s.repo.Review(ctx, id, status, reviewerID, notes)
	if err != nil {
		return model.Location{}, fmt.Errorf("location %s: %w", id, err)
	}
	return out, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("location %s: %w", id, err)
	}
	return nil
}

func (s *Service) GetByID(ctx context.Context, id string) (model.Location, error) {
	l, err := s.repo.Get(ctx, id)
	if err != nil {
		return model.Location{}, fmt.Errorf("location %s: %w", id, err)
	}
	return l, nil
}

var _ Base = (*Service)(nil)
