package grpc

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/piyushhsainii/rugs.fun/internal/adapter/metrics"
)

// AuthInterceptor returns a gRPC unary server interceptor that validates
// the authorization token from request metadata.
// If the token is missing or invalid, it returns status.Unauthenticated.
// If valid, it calls the handler with the original context.
func AuthInterceptor(validToken string) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}

		authHeaders := md.Get("authorization")
		if len(authHeaders) == 0 {
			return nil, status.Error(codes.Unauthenticated, "missing authorization header")
		}

		if authHeaders[0] != validToken {
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}

		return handler(ctx, req)
	}
}

// Limiter table bounds
const (
	maxLimiters = 10000
	limiterIdle = 10 * time.Minute
)

// clientLimiter tracks a per-key rate limiter and when it was last seen
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per key. When the table is full, idle
// entries are evicted first, then the least recently seen one.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientLimiter
	rate    rate.Limit
	burst   int
	max     int
	now     func() time.Time
}

// NewRateLimiter creates a limiter allowing rps requests per second per key
// with the given burst
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*clientLimiter),
		rate:    rate.Limit(rps),
		burst:   burst,
		max:     maxLimiters,
		now:     time.Now,
	}
}

// Allow reports whether key may proceed now
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cl, exists := rl.clients[key]
	if !exists {
		if len(rl.clients) >= rl.max {
			rl.evict(now)
		}
		cl = &clientLimiter{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.clients[key] = cl
	}
	cl.lastSeen = now

	return cl.limiter.AllowN(now, 1)
}

// evict drops idle entries, or the least recently seen one when none is idle
func (rl *RateLimiter) evict(now time.Time) {
	var oldestKey string
	var oldest time.Time
	for key, cl := range rl.clients {
		if now.Sub(cl.lastSeen) > limiterIdle {
			delete(rl.clients, key)
			continue
		}
		if oldestKey == "" || cl.lastSeen.Before(oldest) {
			oldestKey, oldest = key, cl.lastSeen
		}
	}
	if len(rl.clients) >= rl.max && oldestKey != "" {
		delete(rl.clients, oldestKey)
	}
}

// RateLimitInterceptor rejects requests with ResourceExhausted once the
// calling peer exceeds its budget. Request fields are not trusted here;
// signers are limited after their signature is verified. m may be nil.
func RateLimitInterceptor(rl *RateLimiter, m *metrics.Metrics) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if !rl.Allow(peerKey(ctx)) {
			if m != nil {
				m.ObserveRateLimited(metrics.ScopePeer)
			}
			return nil, status.Error(codes.ResourceExhausted, "rate limit exceeded")
		}
		return handler(ctx, req)
	}
}

func peerKey(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return "peer:" + p.Addr.String()
	}
	return "anonymous"
}

// callerKey names the caller in logs: the claimed signer when present,
// otherwise the peer
func callerKey(ctx context.Context, req interface{}) string {
	if s, ok := req.(*structpb.Struct); ok {
		if signer := s.GetFields()["signer"].GetStringValue(); signer != "" {
			return "signer:" + signer
		}
	}
	return peerKey(ctx)
}

// MetricsInterceptor records the count and latency of every RPC
func MetricsInterceptor(m *metrics.Metrics) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		m.ObserveRequest(info.FullMethod, status.Code(err).String(), time.Since(start))
		return resp, err
	}
}

// LoggingInterceptor logs one line per RPC. Server-side failures are logged
// at error level, rejected requests at info.
func LoggingInterceptor(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("caller", callerKey(ctx, req)),
		}

		switch code {
		case codes.OK:
			log.Info("rpc completed", fields...)
		case codes.Internal, codes.Unknown, codes.DataLoss:
			log.Error("rpc failed", append(fields, zap.Error(err))...)
		default:
			log.Info("rpc rejected", append(fields, zap.Error(err))...)
		}

		return resp, err
	}
}
