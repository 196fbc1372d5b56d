package messaging

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const publishTimeout = 5 * time.Second

// PublisherInterface is what the emitter needs from a broker connection.
// *Publisher and the test mock satisfy it.
type PublisherInterface interface {
	Publish(ctx context.Context, routingKey string, eventData interface{}) error
	Close() error
}

var _ PublisherInterface = (*Publisher)(nil)

// Emitter publishes events in the background so a slow or absent broker
// never holds up a user action. Failures are logged and dropped.
type Emitter struct {
	pub    PublisherInterface
	logger *zap.Logger
	wg     sync.WaitGroup
}

// NewEmitter wraps pub. A nil pub makes Emit a no-op.
func NewEmitter(pub PublisherInterface, logger *zap.Logger) *Emitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Emitter{pub: pub, logger: logger}
}

// Emit publishes event under routingKey without waiting for the broker.
func (e *Emitter) Emit(ctx context.Context, routingKey string, event interface{}) {
	if e == nil || e.pub == nil {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()
		if err := e.pub.Publish(ctx, routingKey, event); err != nil {
			e.logger.Warn("event publish failed", zap.String("routing_key", routingKey), zap.Error(err))
		}
	}()
}

// Wait blocks until every pending publish finished.
func (e *Emitter) Wait() {
	if e == nil {
		return
	}
	e.wg.Wait()
}
