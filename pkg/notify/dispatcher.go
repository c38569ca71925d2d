package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// Drain asks the dispatcher actor for one drain pass.
type Drain struct{}

// DrainResult is the reply to a requested Drain.
type DrainResult struct {
	Result Result
	Err    error
}

// DispatcherActor runs drains one at a time; its mailbox serializes the
// ticker and on-demand requests.
type DispatcherActor struct {
	drainer *Drainer
	logger  *zap.Logger
	timeout time.Duration
}

func (a *DispatcherActor) Receive(ctx actor.Context) {
	switch ctx.Message().(type) {
	case *Drain:
		dctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		res, err := a.drainer.Drain(dctx)
		cancel()

		if err != nil {
			a.logger.Error("drain failed", zap.Error(err))
		} else if res.Claimed > 0 {
			a.logger.Info("drained notifications",
				zap.Int("claimed", res.Claimed),
				zap.Int("sent", res.Sent),
				zap.Int("retried", res.Retried),
				zap.Int("failed", res.Failed))
		}
		if ctx.Sender() != nil {
			ctx.Respond(&DrainResult{Result: res, Err: err})
		}

	case *actor.Started:
		a.logger.Info("Notification dispatcher started")

	case *actor.Stopping:
		a.logger.Info("Notification dispatcher stopping")
	}
}

// Dispatcher owns the dispatcher actor and its ticker.
type Dispatcher struct {
	system *actor.ActorSystem
	pid    *actor.PID
	logger *zap.Logger
	done   chan struct{}
}

// StartDispatcher spawns the dispatcher actor and, when interval is positive,
// a ticker that requests a drain every interval.
func StartDispatcher(system *actor.ActorSystem, drainer *Drainer, interval time.Duration, logger *zap.Logger) (*Dispatcher, error) {
	props := actor.PropsFromProducer(func() actor.Actor {
		return &DispatcherActor{
			drainer: drainer,
			logger:  logger.Named("dispatcher-actor"),
			timeout: time.Minute,
		}
	})
	pid, err := system.Root.SpawnNamed(props, "notification-dispatcher")
	if err != nil {
		return nil, fmt.Errorf("failed to spawn dispatcher actor: %w", err)
	}

	d := &Dispatcher{system: system, pid: pid, logger: logger, done: make(chan struct{})}
	if interval > 0 {
		go d.tick(interval)
	}
	return d, nil
}

func (d *Dispatcher) tick(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.system.Root.Send(d.pid, &Drain{})
		case <-d.done:
			return
		}
	}
}

// DrainNow requests a drain and waits for its result.
func (d *Dispatcher) DrainNow(timeout time.Duration) (Result, error) {
	future := d.system.Root.RequestFuture(d.pid, &Drain{}, timeout)
	reply, err := future.Result()
	if err != nil {
		return Result{}, fmt.Errorf("drain request failed: %w", err)
	}
	res, ok := reply.(*DrainResult)
	if !ok {
		return Result{}, fmt.Errorf("unexpected drain reply %T", reply)
	}
	return res.Result, res.Err
}

func (d *Dispatcher) Stop() {
	close(d.done)
	d.system.Root.Stop(d.pid)
}
