package hospital

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/telemed-api/internal/model"
	"github.com/jwalitptl/telemed-api/internal/repository"
	"github.com/jwalitptl/telemed-api/internal/service/audit"
	apperrors "github.com/jwalitptl/telemed-api/pkg/errors"
)

const (
	listAllKey       = "hospitals:all"
	listEmergencyKey = "hospitals:emergency"
)

// Service is the hospital directory. Reads go through an in-process cache.
type Service struct {
	txm     repository.TxManager
	repo    repository.HospitalRepository
	auditor *audit.Service
	cache   *cache.Cache
	now     func() time.Time
}

func NewService(txm repository.TxManager, repo repository.HospitalRepository, auditor *audit.Service, ttl, cleanup time.Duration) *Service {
	return &Service{
		txm:     txm,
		repo:    repo,
		auditor: auditor,
		cache:   cache.New(ttl, cleanup),
		now:     time.Now,
	}
}

func hospitalKey(id uuid.UUID) string {
	return "hospital:" + id.String()
}

func (s *Service) Create(ctx context.Context, actor model.Actor, req *model.CreateHospitalRequest) (*model.Hospital, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.Unauthorized("only admins can add hospitals")
	}
	name := strings.TrimSpace(req.Name)
	address := strings.TrimSpace(req.Address)
	if name == "" || address == "" {
		return nil, apperrors.Validation("hospital name and address are required")
	}

	now := s.now().UTC()
	h := &model.Hospital{
		ID:               uuid.New(),
		Name:             name,
		Address:          address,
		Phone:            optional(req.Phone),
		Email:            optional(req.Email),
		EmergencyCapable: req.EmergencyCapable,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err := s.txm.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, h); err != nil {
			return err
		}
		return s.auditor.Log(ctx, actor.ID, model.AuditActionCreate, model.AuditEntityHospital, h.ID, nil)
	})
	if err != nil {
		return nil, err
	}

	s.cache.Delete(listAllKey)
	s.cache.Delete(listEmergencyKey)
	return h, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Hospital, error) {
	if cached, ok := s.cache.Get(hospitalKey(id)); ok {
		h := cached.(model.Hospital)
		return &h, nil
	}

	h, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Set(hospitalKey(id), *h, cache.DefaultExpiration)
	return h, nil
}

func (s *Service) List(ctx context.Context, emergencyOnly bool) ([]*model.Hospital, error) {
	key := listAllKey
	if emergencyOnly {
		key = listEmergencyKey
	}
	if cached, ok := s.cache.Get(key); ok {
		return clone(cached.([]model.Hospital)), nil
	}

	hospitals, err := s.repo.List(ctx, emergencyOnly)
	if err != nil {
		return nil, err
	}
	values := make([]model.Hospital, 0, len(hospitals))
	for _, h := range hospitals {
		values = append(values, *h)
	}
	s.cache.Set(key, values, cache.DefaultExpiration)
	return clone(values), nil
}

func clone(values []model.Hospital) []*model.Hospital {
	out := make([]*model.Hospital, 0, len(values))
	for i := range values {
		h := values[i]
		out = append(out, &h)
	}
	return out
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
