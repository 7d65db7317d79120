package orchestration

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const eventQueueCapacity = 32

type queueItem struct {
	name string
	// live items are dropped once the stage stops being live.
	live     bool
	process  func(ctx context.Context)
	queuedAt time.Time
}

func (o *Orchestrator) startLoop() {
	o.startOnce.Do(func() {
		go func() {
			defer close(o.done)

			for {
				select {
				case <-o.closeCh:
					return
				case item := <-o.queue:
					if o.isClosed() {
						return
					}
					o.processQueued(item)
				}
			}
		}()
	})
}

func (o *Orchestrator) closeLoop() {
	o.closeOnce.Do(func() { close(o.closeCh) })
}

func (o *Orchestrator) isClosed() bool {
	select {
	case <-o.closeCh:
		return true
	default:
		return false
	}
}

// post queues process for the event loop. It reports false when the item
// was dropped.
func (o *Orchestrator) post(name string, live bool, process func(ctx context.Context)) bool {
	if live && !o.alive.Load() {
		logger.Debug("dropping event after stage end", "event", name)
		return false
	}
	if o.isClosed() {
		return false
	}

	item := queueItem{name: name, live: live, process: process, queuedAt: time.Now()}
	select {
	case <-o.closeCh:
		return false
	case o.queue <- item:
		return true
	}
}

func (o *Orchestrator) processQueued(item queueItem) {
	if item.live && !o.alive.Load() {
		logger.Debug("discarding queued event after stage end", "event", item.name)
		return
	}

	ctx, span := tracer.Start(o.baseContext, "process "+item.name)
	defer span.End()

	queuedTime := time.Since(item.queuedAt).Seconds()
	span.AddEvent("taken out of queue", trace.WithAttributes(attribute.Float64("stage_event.queued_time", queuedTime)))
	span.SetAttributes(
		attribute.Float64("stage_event.queued_time", queuedTime),
		attribute.Int("stage_event.queued_events", len(o.queue)),
	)

	defer func() {
		if recovered := recover(); recovered != nil {
			err := fmt.Errorf("%s handler panicked: %v", item.name, recovered)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Error("stage event handler panicked", "event", item.name, "error", err)
		}
	}()

	item.process(ctx)
}
