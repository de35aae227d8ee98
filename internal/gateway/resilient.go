package gateway

import (
	"context"
	"time"

	"github.com/eapache/go-resiliency/breaker"
	"github.com/eapache/go-resiliency/retrier"
)

// resilientGateway wraps a Gateway with a circuit breaker and bounded
// retries. Only transport errors are retried; a definitive decline from
// the provider passes straight through. When the breaker is open, calls
// fail fast with breaker.ErrBreakerOpen instead of piling onto a sick
// provider.
type resilientGateway struct {
	inner   Gateway
	breaker *breaker.Breaker
	retries int
	backoff time.Duration
}

// NewResilient wraps inner. retries counts additional attempts after the
// first; the breaker opens after 3 consecutive failures and probes again
// after 30 seconds.
func NewResilient(inner Gateway, retries int) Gateway {
	if retries < 0 {
		retries = 0
	}
	return &resilientGateway{
		inner:   inner,
		breaker: breaker.New(3, 1, 30*time.Second),
		retries: retries,
		backoff: 500 * time.Millisecond,
	}
}

func (g *resilientGateway) run(ctx context.Context, call func(ctx context.Context) error) error {
	r := retrier.New(retrier.ConstantBackoff(g.retries+1, g.backoff), nil)
	return r.RunCtx(ctx, func(ctx context.Context) error {
		return g.breaker.Run(func() error {
			return call(ctx)
		})
	})
}

func (g *resilientGateway) Process(ctx context.Context, req *ProcessRequest) (*Result, error) {
	var result *Result
	err := g.run(ctx, func(ctx context.Context) error {
		var callErr error
		result, callErr = g.inner.Process(ctx, req)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (g *resilientGateway) Refund(ctx context.Context, req *RefundRequest) (*Result, error) {
	var result *Result
	err := g.run(ctx, func(ctx context.Context) error {
		var callErr error
		result, callErr = g.inner.Refund(ctx, req)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (g *resilientGateway) Status(ctx context.Context, transactionID string) (*Status, error) {
	var status *Status
	err := g.run(ctx, func(ctx context.Context) error {
		var callErr error
		status, callErr = g.inner.Status(ctx, transactionID)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return status, nil
}
