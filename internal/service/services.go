// Package service wires the domain services over one set of repositories.
package service

import (
	"github.com/jwalitptl/telemed-api/internal/config"
	"github.com/jwalitptl/telemed-api/internal/model"
	"github.com/jwalitptl/telemed-api/internal/repository"
	"github.com/jwalitptl/telemed-api/internal/service/audit"
	authsvc "github.com/jwalitptl/telemed-api/internal/service/auth"
	"github.com/jwalitptl/telemed-api/internal/service/consultation"
	"github.com/jwalitptl/telemed-api/internal/service/emergency"
	"github.com/jwalitptl/telemed-api/internal/service/event"
	"github.com/jwalitptl/telemed-api/internal/service/hospital"
	"github.com/jwalitptl/telemed-api/internal/service/message"
	"github.com/jwalitptl/telemed-api/internal/service/prescription"
	"github.com/jwalitptl/telemed-api/internal/service/relationship"
	"github.com/jwalitptl/telemed-api/pkg/auth"
	"github.com/jwalitptl/telemed-api/pkg/metrics"
	"github.com/jwalitptl/telemed-api/pkg/security"
)

type Services struct {
	Auth          *authsvc.Service
	Audit         *audit.Service
	Events        *event.Service
	Relationships *relationship.Service
	Consultations *consultation.Service
	Emergencies   *emergency.Service
	Hospitals     *hospital.Service
	Messages      *message.Service
	Prescriptions *prescription.Service
}

// New builds every service. m may be nil.
func New(
	repos repository.Repositories,
	cfg *config.Config,
	m *metrics.Metrics,
	jwtSvc auth.JWTService,
	hasher security.PasswordHasher,
) *Services {
	auditor := audit.NewService(repos.Audit)
	events := event.NewService(repos.Outbox)

	var reestablish []model.EstablishmentMethod
	if cfg.Relationship.ReestablishMethods != nil {
		reestablish = make([]model.EstablishmentMethod, 0, len(cfg.Relationship.ReestablishMethods))
		for _, method := range cfg.Relationship.ReestablishMethods {
			reestablish = append(reestablish, model.EstablishmentMethod(method))
		}
	}

	relationships := relationship.NewService(repos.Tx, repos.Relationships, repos.Users, auditor, events, m,
		relationship.Config{ReestablishMethods: reestablish})

	consultations := consultation.NewService(repos.Tx, repos.Consultations, repos.Doctors, repos.Users,
		relationships, auditor, events, m, consultation.Config{
			DefaultMaxConcurrent: cfg.Consultation.DefaultMaxConcurrent,
			RejectPolicy:         consultation.RejectPolicy(cfg.Consultation.RejectPolicy),
		})

	hospitals := hospital.NewService(repos.Tx, repos.Hospitals, auditor,
		cfg.HospitalCache.TTL, cfg.HospitalCache.CleanupInterval)

	emergencies := emergency.NewService(repos.Tx, emergency.Repositories{
		Emergencies:   repos.Emergencies,
		Contacts:      repos.Contacts,
		Logs:          repos.EscalationLogs,
		Consultations: repos.Consultations,
		Users:         repos.Users,
		Doctors:       repos.Doctors,
	}, hospitals, relationships, auditor, events, m, emergency.Config{
		RecentWindow: cfg.Emergency.RecentWindow,
	})

	return &Services{
		Auth:          authsvc.NewService(repos.Tx, repos.Users, repos.Doctors, jwtSvc, hasher, auditor),
		Audit:         auditor,
		Events:        events,
		Relationships: relationships,
		Consultations: consultations,
		Emergencies:   emergencies,
		Hospitals:     hospitals,
		Messages:      message.NewService(repos.Tx, repos.Messages, repos.Consultations, relationships, auditor, events),
		Prescriptions: prescription.NewService(repos.Tx, repos.Prescriptions, repos.Consultations, relationships, auditor, events),
	}
}
