package orchestration

import (
	"context"
	"errors"

	"github.com/koscakluka/pitchlive/core/events"
	"github.com/koscakluka/pitchlive/core/scoring"
	"github.com/koscakluka/pitchlive/internal/utils"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// endStage runs on the event loop. Whichever of the countdown, the user or a
// cancellation gets here first ends the stage; later calls do nothing.
func (o *Orchestrator) endStage(reason events.EndReason) {
	o.endOnce.Do(func() {
		defer o.closeLoop()

		o.alive.Store(false)
		ctx, span := tracer.Start(o.baseContext, "end stage")
		defer span.End()
		span.SetAttributes(
			attribute.String("stage.id", o.stage.ID),
			attribute.String("stage.end_reason", string(reason)),
		)

		if err := o.teardown(); err != nil {
			span.RecordError(err)
			logger.Warn("stage teardown finished with errors", "stage", o.stage.ID, "error", err)
		}

		if reason == events.EndReasonCancel {
			o.emit(events.NewStageEnded(scoring.StageResult{}, reason, false))
			o.finish(scoring.StageResult{}, ErrStageCancelled)
			return
		}

		ctx = context.WithoutCancel(ctx)
		_ = sleep(ctx, o.options.ScoringDelay)

		result, err := o.score(ctx)
		scored := err == nil
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Warn("scoring failed, using fallback result", "stage", o.stage.ID, "error", err)
			result = scoring.FallbackResult()
		}
		span.SetAttributes(
			attribute.Int("stage.stars", result.Stars),
			attribute.Bool("stage.scored", scored),
		)

		o.emit(events.NewStageEnded(result, reason, scored))
		o.finish(result, nil)
	})
}

// teardown releases the channels in a fixed order. A failing step does not
// stop the steps after it.
func (o *Orchestrator) teardown() error {
	var errs error

	errs = errors.Join(errs, utils.Safely("stop timer", o.timer.Stop))
	if o.greeting != nil {
		o.greeting.Stop()
	}

	o.mu.Lock()
	o.ended = true
	agent, render, player := o.agent, o.render, o.player
	o.agent, o.render, o.player = nil, nil, nil
	o.mu.Unlock()

	if agent != nil {
		errs = errors.Join(errs, utils.Safely("disconnect agent", agent.Disconnect))
	}
	if render != nil {
		errs = errors.Join(errs,
			utils.Safely("end render sequence", render.EndSequence),
			utils.Safely("disconnect render", render.Disconnect),
		)
	}
	if player != nil {
		errs = errors.Join(errs, utils.Safely("stop fallback player", player.Stop))
	}

	o.cleanedUp.Store(true)
	o.setStatus(StatusDisconnected)
	return errs
}

func (o *Orchestrator) score(ctx context.Context) (result scoring.StageResult, err error) {
	if o.options.Scorer == nil {
		return scoring.StageResult{}, scoring.ErrScoringUnavailable
	}

	req := scoring.Request{
		RunID:      o.options.RunID,
		StageID:    o.stage.ID,
		Transcript: o.transcript.Turns(),
	}
	err = utils.Safely("score stage", func() error {
		var scoreErr error
		result, scoreErr = o.options.Scorer.Score(ctx, req)
		return scoreErr
	})
	return result, err
}

func (o *Orchestrator) finish(result scoring.StageResult, err error) {
	o.result = result
	o.resultErr = err
	close(o.resultReady)
}
