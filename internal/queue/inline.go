package queue

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// InlinePublisher runs the handler in a goroutine of the current process.
// It is used when no broker is configured; pending work is lost on restart.
type InlinePublisher struct {
	ctx     context.Context
	handler Handler
	logger  zerolog.Logger
	wg      sync.WaitGroup
}

// NewInlinePublisher binds handler runs to ctx, usually the process lifetime.
func NewInlinePublisher(ctx context.Context, h Handler, logger zerolog.Logger) *InlinePublisher {
	return &InlinePublisher{ctx: ctx, handler: h, logger: logger}
}

func (p *InlinePublisher) PublishTask(_ context.Context, msg TaskMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.handler(p.ctx, msg); err != nil {
			p.logger.Error().Err(err).Str("task_id", msg.TaskID).Msg("queue: inline task failed")
		}
	}()
	return nil
}

// Wait blocks until every started handler returned.
func (p *InlinePublisher) Wait() {
	p.wg.Wait()
}
