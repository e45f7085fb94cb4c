package middleware

import (
	"context"
	"errors"
	"math"
	"strconv"
	"sync"
	"time"

	"connectrpc.com/connect"
	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when an operator submits mutations too quickly.
var ErrRateLimited = errors.New("too many settlement requests, slow down")

// operatorIdleTTL is how long an operator's bucket survives without requests.
const operatorIdleTTL = 10 * time.Minute

// OperatorLimiter throttles ledger mutations per authenticated operator.
// Procedures that do not change the ledger pass through untouched.
type OperatorLimiter struct {
	limit   rate.Limit
	burst   int
	limited func(procedure string) bool

	mu        sync.Mutex
	operators map[string]*operatorBucket
	lastSweep time.Time
}

type operatorBucket struct {
	tokens   *rate.Limiter
	lastSeen time.Time
}

// NewOperatorLimiter allows each operator rps mutations per second with the
// given burst. limited selects the procedures that count as mutations.
// A nil limiter is returned, and nothing is throttled, when rps or burst is
// not positive.
func NewOperatorLimiter(rps float64, burst int, limited func(procedure string) bool) *OperatorLimiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	return &OperatorLimiter{
		limit:     rate.Limit(rps),
		burst:     burst,
		limited:   limited,
		operators: make(map[string]*operatorBucket),
	}
}

// Allow reports whether operatorID may call procedure at now. When it may
// not, wait is how long until a token frees up.
func (l *OperatorLimiter) Allow(operatorID, procedure string, now time.Time) (ok bool, wait time.Duration) {
	if l == nil || operatorID == "" || (l.limited != nil && !l.limited(procedure)) {
		return true, 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweep(now)
	b, found := l.operators[operatorID]
	if !found {
		b = &operatorBucket{tokens: rate.NewLimiter(l.limit, l.burst)}
		l.operators[operatorID] = b
	}
	b.lastSeen = now

	r := b.tokens.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// sweep drops buckets of operators idle for longer than operatorIdleTTL.
// It runs at most once per TTL.
func (l *OperatorLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < operatorIdleTTL {
		return
	}
	l.lastSweep = now
	cutoff := now.Add(-operatorIdleTTL)
	for id, b := range l.operators {
		if b.lastSeen.Before(cutoff) {
			delete(l.operators, id)
		}
	}
}

// Interceptor rejects throttled mutations with ResourceExhausted and a
// Retry-After hint in seconds. It must run after RequireAuth.
func (l *OperatorLimiter) Interceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			ok, wait := l.Allow(GetOperatorID(ctx), req.Spec().Procedure, time.Now())
			if !ok {
				cerr := connect.NewError(connect.CodeResourceExhausted, ErrRateLimited)
				cerr.Meta().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				return nil, cerr
			}
			return next(ctx, req)
		}
	}
}
