package authhttp

import (
	"net/http"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/open-rails/recoverykit/core"
	memorylimiter "github.com/open-rails/recoverykit/ratelimit/memory"
	redislimiter "github.com/open-rails/recoverykit/ratelimit/redis"
	memorystore "github.com/open-rails/recoverykit/storage/memory"
	redisstore "github.com/open-rails/recoverykit/storage/redis"
)

// Service wraps core.Service with net/http mounting helpers.
type Service struct {
	svc         *core.Service
	rl          RateLimiter
	clientIP    ClientIPFunc
	adminSecret []byte
	log         logrus.FieldLogger
}

func (s *Service) allow(r *http.Request, bucket string) bool {
	if s == nil || s.rl == nil {
		return true
	}
	ipFn := s.clientIP
	if ipFn == nil {
		ipFn = DefaultClientIP()
	}
	ip := ipFn(r)
	if strings.TrimSpace(ip) == "" {
		return true
	}
	key := "recovery:" + bucket + ":ip:" + ip
	ok, err := s.rl.AllowNamed(bucket, key)
	if err != nil {
		s.logger().WithError(err).WithField("bucket", bucket).Warn("rate limiter unavailable")
		return true
	}
	return ok
}

// NewService constructs a core.Service and wraps it for net/http mounting.
// It starts with an in-memory ephemeral store and rate limiter; call
// WithRedis for multi-instance deployments.
func NewService(cfg core.Config) *Service {
	coreSvc := core.NewService(cfg).WithEphemeralStore(memorystore.NewKV(), core.EphemeralMemory)
	return Wrap(coreSvc)
}

// Wrap mounts an already configured core.Service.
func Wrap(svc *core.Service) *Service {
	return &Service{
		svc:      svc,
		rl:       memorylimiter.New(ToMemoryLimits(DefaultRateLimits())),
		clientIP: DefaultClientIP(),
		log:      logrus.StandardLogger(),
	}
}

func (s *Service) WithStore(st core.Store) *Service { s.svc = s.svc.WithStore(st); return s }

// WithRedis moves the ephemeral store and the rate limiter to Redis.
func (s *Service) WithRedis(rd redis.UniversalClient) *Service {
	if rd == nil {
		return s
	}
	s.svc = s.svc.WithEphemeralStore(redisstore.NewKV(rd), core.EphemeralRedis)
	s.rl = redislimiter.New(rd, ToRedisLimits(DefaultRateLimits()))
	return s
}
func (s *Service) WithRateLimiter(rl RateLimiter) *Service { s.rl = rl; return s }
func (s *Service) DisableRateLimiter() *Service            { s.rl = nil; return s }
func (s *Service) WithClientIPFunc(fn ClientIPFunc) *Service {
	if fn == nil {
		s.clientIP = DefaultClientIP()
		return s
	}
	s.clientIP = fn
	return s
}
func (s *Service) WithEmailSender(es core.EmailSender) *Service {
	s.svc = s.svc.WithEmailSender(es)
	return s
}
func (s *Service) WithEventLogger(l core.EventLogger) *Service {
	s.svc = s.svc.WithEventLogger(l)
	return s
}
func (s *Service) WithEphemeralStore(store core.EphemeralStore, mode core.EphemeralMode) *Service {
	s.svc = s.svc.WithEphemeralStore(store, mode)
	return s
}

// WithAdminSecret enables the admin routes, authenticated by HS256 bearer
// tokens signed with secret.
func (s *Service) WithAdminSecret(secret string) *Service {
	s.adminSecret = []byte(secret)
	return s
}

// WithLogger sets the request and error logger for the adapter and the core.
func (s *Service) WithLogger(l logrus.FieldLogger) *Service {
	s.log = l
	s.svc = s.svc.WithLogger(l)
	return s
}

func (s *Service) logger() logrus.FieldLogger {
	if s == nil || s.log == nil {
		return logrus.StandardLogger()
	}
	return s.log
}

func (s *Service) Core() *core.Service { return s.svc }
