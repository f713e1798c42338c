package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/telemed-api/internal/model"
	"github.com/jwalitptl/telemed-api/internal/repository"
	"github.com/jwalitptl/telemed-api/internal/service/audit"
	"github.com/jwalitptl/telemed-api/pkg/auth"
	apperrors "github.com/jwalitptl/telemed-api/pkg/errors"
	"github.com/jwalitptl/telemed-api/pkg/security"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type Service struct {
	txm      repository.TxManager
	userRepo repository.UserRepository
	doctors  repository.DoctorRepository
	jwtSvc   auth.JWTService
	hasher   security.PasswordHasher
	auditor  *audit.Service
	now      func() time.Time
}

func NewService(
	txm repository.TxManager,
	userRepo repository.UserRepository,
	doctors repository.DoctorRepository,
	jwtSvc auth.JWTService,
	hasher security.PasswordHasher,
	auditor *audit.Service,
) *Service {
	return &Service{
		txm:      txm,
		userRepo: userRepo,
		doctors:  doctors,
		jwtSvc:   jwtSvc,
		hasher:   hasher,
		auditor:  auditor,
		now:      time.Now,
	}
}

// Register creates a patient or doctor account. Doctors get a capacity profile in the same transaction.
func (s *Service) Register(ctx context.Context, req *model.RegisterRequest) (*model.User, error) {
	role := model.Role(req.Role)
	if role != model.RolePatient && role != model.RoleDoctor {
		return nil, apperrors.Validation("role must be patient or doctor")
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	name := strings.TrimSpace(req.Name)
	if email == "" || name == "" {
		return nil, apperrors.Validation("email and name are required")
	}

	switch err := security.CheckPassword(req.Password); {
	case errors.Is(err, security.ErrPasswordTooShort):
		return nil, apperrors.Validation("password must be at least %d characters", security.MinPasswordLen)
	case errors.Is(err, security.ErrPasswordTooLong):
		return nil, apperrors.Validation("password must be at most %d bytes", security.MaxPasswordBytes)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	user := &model.User{
		ID:           uuid.New(),
		Email:        email,
		Name:         name,
		Role:         role,
		PasswordHash: hash,
		Status:       model.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.txm.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.userRepo.Create(ctx, user); err != nil {
			return err
		}
		if role == model.RoleDoctor {
			if err := s.doctors.Create(ctx, &model.DoctorProfile{
				UserID:         user.ID,
				Specialization: strings.TrimSpace(req.Specialization),
				MaxConcurrent:  req.MaxConcurrent,
				Accepting:      true,
				CreatedAt:      now,
				UpdatedAt:      now,
			}); err != nil {
				return err
			}
		}
		return s.auditor.Log(ctx, user.ID, model.AuditActionCreate, model.AuditEntityUser, user.ID, &audit.LogOptions{
			Metadata: map[string]interface{}{"role": role},
		})
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (*model.TokenResponse, error) {
	user, err := s.userRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if apperrors.IsNotFound(err) {
		return nil, apperrors.Unauthenticated(ErrInvalidCredentials)
	}
	if err != nil {
		return nil, err
	}
	if user.Status != model.UserStatusActive {
		return nil, apperrors.Unauthenticated(ErrInvalidCredentials)
	}
	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		return nil, apperrors.Unauthenticated(ErrInvalidCredentials)
	}

	token, expiresAt, err := s.jwtSvc.GenerateAccessToken(user)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	if err := s.auditor.Log(ctx, user.ID, model.AuditActionLogin, model.AuditEntityUser, user.ID, nil); err != nil {
		return nil, err
	}

	return &model.TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
		User:        user,
	}, nil
}
