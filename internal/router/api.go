package router

import (
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/telemed-api/internal/config"
	"github.com/jwalitptl/telemed-api/internal/handler/audit"
	authh "github.com/jwalitptl/telemed-api/internal/handler/auth"
	"github.com/jwalitptl/telemed-api/internal/handler/consultation"
	"github.com/jwalitptl/telemed-api/internal/handler/emergency"
	"github.com/jwalitptl/telemed-api/internal/handler/health"
	"github.com/jwalitptl/telemed-api/internal/handler/hospital"
	"github.com/jwalitptl/telemed-api/internal/handler/message"
	"github.com/jwalitptl/telemed-api/internal/handler/prescription"
	"github.com/jwalitptl/telemed-api/internal/handler/prometheus"
	"github.com/jwalitptl/telemed-api/internal/handler/relationship"
	"github.com/jwalitptl/telemed-api/internal/service"
	"github.com/jwalitptl/telemed-api/pkg/auth"
)

// NewAPI builds the fully routed API over svcs.
func NewAPI(
	cfg *config.Config,
	logger zerolog.Logger,
	svcs *service.Services,
	jwtSvc auth.JWTService,
	metrics *prometheus.Handler,
	healthH *health.Handler,
) *Router {
	r := NewRouter(Config{
		Mode:           cfg.Server.Mode,
		RateLimit:      rate.Limit(cfg.RateLimit.Rate),
		RateBurst:      cfg.RateLimit.Burst,
		CORSOrigins:    cfg.CORS.AllowedOrigins,
		RequestTimeout: requestTimeout(cfg.Server.WriteTimeout),
	}, logger, jwtSvc, metrics, healthH)

	r.Setup(
		[]Handler{
			authh.NewHandler(svcs.Auth),
		},
		[]Handler{
			consultation.NewHandler(svcs.Consultations),
			message.NewHandler(svcs.Messages),
			prescription.NewHandler(svcs.Prescriptions),
			emergency.NewHandler(svcs.Emergencies),
			relationship.NewHandler(svcs.Relationships),
			hospital.NewHandler(svcs.Hospitals),
			audit.NewHandler(svcs.Audit),
		},
	)
	return r
}

// requestTimeout leaves headroom under the server write timeout for the error response.
func requestTimeout(write time.Duration) time.Duration {
	if write <= time.Second {
		return 0
	}
	return write - time.Second
}
