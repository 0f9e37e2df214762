package authgin

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/open-rails/recoverykit/adapters/gin/handlers"
	"github.com/open-rails/recoverykit/adapters/ginutil"
	core "github.com/open-rails/recoverykit/core"
	memorylimiter "github.com/open-rails/recoverykit/ratelimit/memory"
	redisl "github.com/open-rails/recoverykit/ratelimit/redis"
	memorystore "github.com/open-rails/recoverykit/storage/memory"
	redisstore "github.com/open-rails/recoverykit/storage/redis"
)

// Service wraps core.Service with Gin mounting helpers.
type Service struct {
	svc         *core.Service
	rd          redis.UniversalClient
	rl          ginutil.RateLimiter
	adminSecret []byte
}

// NewService constructs a core.Service and wraps it for Gin mounting.
func NewService(cfg core.Config) *Service {
	coreSvc := core.NewService(cfg).WithEphemeralStore(memorystore.NewKV(), core.EphemeralMemory)
	return &Service{svc: coreSvc}
}

// Wrap mounts an already configured core.Service.
func Wrap(svc *core.Service) *Service { return &Service{svc: svc} }

func (s *Service) WithStore(st core.Store) *Service { s.svc = s.svc.WithStore(st); return s }

// WithRedis moves the ephemeral store and the default rate limiter to Redis.
func (s *Service) WithRedis(rd redis.UniversalClient) *Service {
	s.rd = rd
	if rd != nil {
		s.svc = s.svc.WithEphemeralStore(redisstore.NewKV(rd), core.EphemeralRedis)
	}
	return s
}
func (s *Service) WithRateLimiter(rl ginutil.RateLimiter) *Service { s.rl = rl; return s }
func (s *Service) WithEmailSender(es core.EmailSender) *Service {
	s.svc = s.svc.WithEmailSender(es)
	return s
}

// WithEventLogger wires a recovery event sink (e.g., the AMQP publisher).
func (s *Service) WithEventLogger(l core.EventLogger) *Service {
	s.svc = s.svc.WithEventLogger(l)
	return s
}

// WithAdminSecret sets the HS256 secret accepted by GinRegisterAdmin.
func (s *Service) WithAdminSecret(secret string) *Service {
	s.adminSecret = []byte(secret)
	return s
}

// GinRegisterAPI mounts the recovery endpoints under the given router/group.
func (s *Service) GinRegisterAPI(api gin.IRouter) *Service {
	rl := s.ensureLimiter()
	g := api.Group("", ginutil.RequestMeta())

	// Account activation
	g.POST("/auth/register-request", handlers.HandleRegisterRequestPOST(s.svc, rl))
	g.GET("/auth/confirm", handlers.HandleConfirmGET(s.svc, rl))

	// Password recovery
	g.POST("/auth/forgot", handlers.HandleForgotPOST(s.svc, rl))
	g.POST("/auth/verify-otp", handlers.HandleVerifyOTPPOST(s.svc, rl))
	g.POST("/auth/reset-password", handlers.HandleResetPasswordPOST(s.svc, rl))

	return s
}

// GinRegisterAdmin mounts maintenance endpoints behind AdminRequired. It is a
// no-op when no admin secret is configured.
func (s *Service) GinRegisterAdmin(api gin.IRouter) *Service {
	if len(s.adminSecret) == 0 {
		log.Debug("recoverykit: admin secret not configured; admin routes disabled")
		return s
	}
	rl := s.ensureLimiter()
	admin := api.Group("/auth/admin", ginutil.RequestMeta(), AdminRequired(s.adminSecret))
	admin.POST("/sweep", handlers.HandleAdminSweepPOST(s.svc, rl))
	return s
}

// RegisterGin mounts the API and admin routes.
func (s *Service) RegisterGin(r gin.IRouter) *Service {
	return s.GinRegisterAPI(r).GinRegisterAdmin(r)
}

func (s *Service) Core() *core.Service { return s.svc }

func (s *Service) ensureLimiter() ginutil.RateLimiter {
	if s.rl != nil {
		return s.rl
	}
	if s.rd != nil {
		s.rl = redisl.New(s.rd, defaultLimits())
		return s.rl
	}
	log.Info("recoverykit: Redis client not configured; using in-memory rate limiter (single-node only)")
	s.rl = memorylimiter.New(defaultMemoryLimits())
	return s.rl
}

// defaultLimits provides default rate limits for recovery endpoints.
func defaultLimits() map[string]redisl.Limit {
	return map[string]redisl.Limit{
		"default":                 {Limit: 120, Window: time.Minute},
		ginutil.RLRegisterRequest: {Limit: 10, Window: time.Hour},
		ginutil.RLConfirm:         {Limit: 30, Window: 10 * time.Minute},
		ginutil.RLForgot:          {Limit: 6, Window: 10 * time.Minute},
		ginutil.RLVerifyOTP:       {Limit: 10, Window: 10 * time.Minute},
		ginutil.RLResetPassword:   {Limit: 10, Window: 10 * time.Minute},
		ginutil.RLAdminSweep:      {Limit: 30, Window: time.Hour},
	}
}

// defaultMemoryLimits mirrors defaultLimits but for the in-memory limiter type.
func defaultMemoryLimits() map[string]memorylimiter.Limit {
	out := make(map[string]memorylimiter.Limit, len(defaultLimits()))
	for k, v := range defaultLimits() {
		out[k] = memorylimiter.Limit{Limit: v.Limit, Window: v.Window}
	}
	return out
}
