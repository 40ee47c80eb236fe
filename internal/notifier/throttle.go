package notifier

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// Throttled caps the delivery rate of the wrapped notifier across all jobs
type Throttled struct {
	next    Notifier
	limiter *rate.Limiter
}

func NewThrottled(next Notifier, perSecond float64, burst int) *Throttled {
	return &Throttled{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), max(1, burst)),
	}
}

// Send waits for a token, giving up when ctx ends
func (t *Throttled) Send(ctx context.Context, d *Delivery) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return &DeliveryError{Temporary: true, Message: "rate limit wait: " + err.Error()}
	}
	return t.next.Send(ctx, d)
}

func (t *Throttled) Close() error {
	if c, ok := t.next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
