package pipeline

import (
	"context"
	"sync"
	"time"

	"faultgate/internal/buffer"
	inputredis "faultgate/internal/input/redis"
	"faultgate/internal/logger"
	"faultgate/internal/metrics"
	"faultgate/internal/rules"
	transform "faultgate/internal/transform/fault"
)

// FaultPipeline consumes fault payloads from Redis, runs them through the
// aggregator and drains sendable alerts to a notification sink.
type FaultPipeline struct {
	consumer      *inputredis.Consumer
	engine        rules.Engine
	aggregator    *buffer.Aggregator
	writer        AlertWriter
	workers       int
	drainInterval time.Duration
	sweepInterval time.Duration
}

// NewFaultPipeline creates a pipeline.
func NewFaultPipeline(consumer *inputredis.Consumer, engine rules.Engine, aggregator *buffer.Aggregator, writer AlertWriter, workers int, drainInterval, sweepInterval time.Duration) *FaultPipeline {
	return &FaultPipeline{
		consumer:      consumer,
		engine:        engine,
		aggregator:    aggregator,
		writer:        writer,
		workers:       workers,
		drainInterval: drainInterval,
		sweepInterval: sweepInterval,
	}
}

// Run starts the pipeline loop and blocks until the context is canceled.
func (p *FaultPipeline) Run(ctx context.Context) error {
	logger.Infof("Fault pipeline started")

	if p.workers <= 0 {
		p.workers = 4
	}
	if p.drainInterval <= 0 {
		p.drainInterval = 2 * time.Second
	}
	if p.sweepInterval <= 0 {
		p.sweepInterval = time.Minute
	}

	msgCh := make(chan []byte, p.workers*4)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.readLoop(ctx, msgCh)
		close(msgCh)
	}()

	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.submitLoop(msgCh)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.drainLoop(ctx)
	}()

	<-ctx.Done()
	wg.Wait()

	// Final drain so alerts queued during shutdown are not lost.
	p.flush(context.Background())
	return ctx.Err()
}

// Close releases pipeline resources.
func (p *FaultPipeline) Close() error {
	if p.writer != nil {
		if err := p.writer.Close(); err != nil {
			logger.Errorf("Failed to close alert writer: %v", err)
		}
	}
	if p.consumer != nil {
		return p.consumer.Close()
	}
	return nil
}

func (p *FaultPipeline) readLoop(ctx context.Context, out chan<- []byte) {
	for {
		payload, err := p.consumer.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Errorf("Failed to pop fault payload: %v", err)
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if payload == nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		select {
		case out <- payload:
		case <-ctx.Done():
			return
		}
	}
}

func (p *FaultPipeline) submitLoop(in <-chan []byte) {
	for payload := range in {
		f, err := transform.Parse(payload)
		if err != nil {
			logger.Warnf("Dropping malformed fault payload: %v", err)
			metrics.ObserveRejected()
			continue
		}

		if p.engine != nil {
			f.Tags = p.engine.Apply(f)
		}

		send, alert, err := p.aggregator.Submit(*f)
		if err != nil {
			logger.Warnf("Rejected fault %s: %v", f.ExceptionType, err)
			metrics.ObserveRejected()
			continue
		}
		metrics.ObserveFault(f.Severity.String(), !send)
		if send {
			logger.Debugf("Alert emitted: %s at %s (%s)", alert.ExceptionType, alert.Location, alert.Severity)
		}
	}
}

func (p *FaultPipeline) drainLoop(ctx context.Context) {
	drainTicker := time.NewTicker(p.drainInterval)
	defer drainTicker.Stop()
	sweepTicker := time.NewTicker(p.sweepInterval)
	defer sweepTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-drainTicker.C:
			p.flush(ctx)
		case <-sweepTicker.C:
			if evicted := p.aggregator.Sweep(time.Now()); evicted > 0 {
				logger.Debugf("Swept %d expired buffer entries", evicted)
				metrics.AddSweepEvictions(evicted)
			}
		}
	}
}

// flush drains pending alerts and writes them, retrying until the write
// succeeds or the context ends. Alerts already drained are held locally so
// a transient sink failure cannot lose them.
func (p *FaultPipeline) flush(ctx context.Context) {
	alerts := p.aggregator.DrainPending()
	if len(alerts) == 0 || p.writer == nil {
		return
	}

	for {
		if err := p.writer.WriteAlerts(alerts); err != nil {
			logger.Errorf("Failed to write alerts: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(1 * time.Second):
			}
			continue
		}
		metrics.AddAlertsEmitted(len(alerts))
		return
	}
}
