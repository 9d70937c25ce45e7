package federation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ppiankov/lupa/internal/cache"
	"github.com/ppiankov/lupa/internal/model"
)

// call runs one source call of a stage: cache lookup, up to stage.Retries
// attempts with exponential backoff, then a single attempt against the
// registered fallback. Identical concurrent calls (same source, operation,
// params and stage settings) share one execution. The shared execution does
// not inherit any caller's cancellation; each caller stops waiting when its
// own ctx is done.
func (e *Executor) call(ctx context.Context, stage model.Stage, id string, params model.Params, strategy model.CacheStrategy) (res model.SourceCallResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = model.SourceCallResult{
				SourceID:  id,
				Requested: id,
				Status:    model.CallFailed,
				Error:     fmt.Sprintf("panic: %v", r),
				Elapsed:   time.Since(start),
			}
		}
	}()

	key := cache.CallKey(id, string(stage.Operation), params)
	flightKey := fmt.Sprintf("%s|%d|%s|%s", key, stage.Retries, time.Duration(stage.Timeout), strategy)
	shared := context.WithoutCancel(ctx)

	ch := e.flight.DoChan(flightKey, func() (v any, err error) {
		// DoChan cannot recover a panic for its callers
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: %s panicked: %v", model.ErrSourceCallFailed, id, r)
			}
		}()
		return e.callWithRetry(shared, stage, id, key, params, strategy), nil
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			return model.SourceCallResult{
				SourceID:  id,
				Requested: id,
				Status:    model.CallFailed,
				Error:     r.Err.Error(),
				Elapsed:   time.Since(start),
			}
		}
		if r.Shared {
			e.logger.Debug("source call shared", "source", id, "operation", stage.Operation)
		}
		return r.Val.(model.SourceCallResult)
	case <-ctx.Done():
		res = model.SourceCallResult{
			SourceID:  id,
			Requested: id,
			Status:    model.CallFailed,
			Error:     fmt.Sprintf("%s: %v", id, ctx.Err()),
			Elapsed:   time.Since(start),
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			res.Status = model.CallTimeout
		}
		e.metrics.RecordSourceCall(id, string(res.Status), res.Elapsed)
		return res
	}
}

func (e *Executor) callWithRetry(ctx context.Context, stage model.Stage, id, key string, params model.Params, strategy model.CacheStrategy) model.SourceCallResult {
	start := time.Now()
	res := model.SourceCallResult{SourceID: id, Requested: id}

	reg, _ := e.sources.Get(id)
	ttl := e.ttlFor(stage, reg, strategy)
	if payload, ok := e.cached(key, ttl); ok {
		res.Status = model.CallCached
		res.Payload = payload
		res.Elapsed = time.Since(start)
		e.metrics.RecordSourceCall(id, string(res.Status), res.Elapsed)
		return res
	}

	retries := stage.Retries
	if retries <= 0 {
		retries = defaultRetries
	}

	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		res.Attempts++
		payload, err := e.attempt(ctx, stage, id, params)
		if err == nil {
			e.store(key, payload, ttl)
			return e.finish(res, payload, start)
		}
		lastErr = err
		e.logger.Warn("source call failed", "source", id, "operation", stage.Operation, "attempt", attempt+1, "err", err)

		if errors.Is(err, model.ErrCircuitOpen) || ctx.Err() != nil {
			break
		}
		if attempt < retries-1 {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			if err := e.sleep(ctx, backoff); err != nil {
				break
			}
		}
	}

	if fb, ok := e.sources.FallbackFor(id); ok && ctx.Err() == nil {
		res.SourceID = fb
		res.Fallback = true
		res.Attempts++
		payload, err := e.attempt(ctx, stage, fb, params)
		if err == nil {
			fbReg, _ := e.sources.Get(fb)
			e.store(cache.CallKey(fb, string(stage.Operation), params), payload, e.ttlFor(stage, fbReg, strategy))
			e.logger.Info("source failed over", "source", id, "fallback", fb)
			return e.finish(res, payload, start)
		}
		lastErr = err
		e.logger.Warn("fallback call failed", "source", id, "fallback", fb, "err", err)
	}

	res.Status = model.CallFailed
	if errors.Is(lastErr, model.ErrSourceTimeout) || errors.Is(lastErr, context.DeadlineExceeded) {
		res.Status = model.CallTimeout
	}
	res.Error = lastErr.Error()
	res.Elapsed = time.Since(start)
	e.metrics.RecordSourceCall(res.SourceID, string(res.Status), res.Elapsed)
	return res
}

func (e *Executor) finish(res model.SourceCallResult, payload model.Payload, start time.Time) model.SourceCallResult {
	res.Status = model.CallSuccess
	if payload.Kind == model.PayloadRecords && len(payload.Records) == 0 {
		res.Status = model.CallPartial
	}
	res.Payload = payload
	res.Elapsed = time.Since(start)
	e.metrics.RecordSourceCall(res.SourceID, string(res.Status), res.Elapsed)
	return res
}

// attempt makes one call bounded by the stage timeout, or the source default
// when the stage sets none. A panicking handle becomes an error.
func (e *Executor) attempt(ctx context.Context, stage model.Stage, id string, params model.Params) (payload model.Payload, err error) {
	client, err := e.sources.ClientFor(id)
	if err != nil {
		return model.Payload{}, err
	}

	timeout := time.Duration(stage.Timeout)
	if timeout <= 0 {
		if reg, ok := e.sources.Get(id); ok && reg.Timeout > 0 {
			timeout = reg.Timeout
		} else {
			timeout = defaultCallTimeout
		}
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s panicked: %v", model.ErrSourceCallFailed, id, r)
		}
	}()

	payload, err = client.Call(callCtx, stage.Operation, params.Clone())
	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, model.ErrSourceTimeout) {
		err = fmt.Errorf("%w: %s: %v", model.ErrSourceTimeout, id, err)
	}
	return payload, err
}

// ttlFor scales the source TTL by the plan's cache strategy
func (e *Executor) ttlFor(stage model.Stage, reg model.SourceRegistration, strategy model.CacheStrategy) time.Duration {
	ttl := e.defaultTTL
	if reg.CacheTTL > 0 {
		ttl = reg.CacheTTL
	}
	if stage.CacheTTL != nil {
		ttl = time.Duration(*stage.CacheTTL)
	}
	switch strategy {
	case model.CacheAggressive:
		return 2 * ttl
	case model.CacheModerate:
		return ttl
	default:
		return 0
	}
}

func (e *Executor) cached(key string, ttl time.Duration) (model.Payload, bool) {
	if ttl <= 0 {
		return model.Payload{}, false
	}
	b, ok := e.cache.Get(key)
	e.metrics.RecordCacheLookup(ok)
	if !ok {
		return model.Payload{}, false
	}
	var payload model.Payload
	if err := json.Unmarshal(b, &payload); err != nil {
		e.logger.Warn("dropping unreadable cache entry", "key", key, "err", err)
		_ = e.cache.Delete(key)
		return model.Payload{}, false
	}
	return payload, true
}

func (e *Executor) store(key string, payload model.Payload, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := e.cache.Set(key, b, ttl); err != nil {
		e.logger.Warn("cache write failed", "key", key, "err", err)
	}
}
