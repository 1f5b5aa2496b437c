package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mithrel/msgport/internal/present"
	"github.com/mithrel/msgport/internal/wire"
	"github.com/mithrel/msgport/pkg/msgport"
)

// Options configures a listening port.
type Options struct {
	Name string

	// Scheduler is "queue" (worker pool) or "loop" (single run loop
	// serviced by Run's goroutine).
	Scheduler           string
	Workers             int
	EndpointConcurrency bool

	// EchoTo, if set, forwards every delivery to that port.
	EchoTo      string
	SendTimeout time.Duration
	RecvTimeout time.Duration

	// Count stops the service after that many deliveries and rejects any
	// beyond it; 0 means run until ctx is done.
	Count int

	Output present.DeliveryWriter
}

// ErrPortLost is returned by Run when the port was invalidated by anything
// other than Run itself.
var ErrPortLost = errors.New("port invalidated")

// Run registers opts.Name and serves it until ctx is done, opts.Count
// deliveries arrived, or the port is lost. The caller controls the
// lifecycle via ctx.
func Run(ctx context.Context, app *wire.App, opts Options) error {
	sched, loop, err := newScheduler(opts)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		stopping atomic.Bool
		lost     atomic.Bool
		received atomic.Int64
		outMu    sync.Mutex
	)
	log := app.Log.With("port", opts.Name)

	var echo *msgport.Remote
	if opts.EchoTo != "" {
		echo = msgport.NewRemote(opts.EchoTo, msgport.WithFacility(app.Facility), msgport.WithLogger(app.Log))
	}

	callback := func(id int32, payload []byte, _ any) {
		n := received.Add(1)
		if opts.Output != nil {
			d := present.Delivery{Port: opts.Name, ID: id, Size: len(payload), Payload: string(payload), Received: time.Now()}
			outMu.Lock()
			if err := opts.Output.WriteDelivery(d); err != nil {
				log.Warn("failed to write delivery", "id", id, "error", err)
			}
			outMu.Unlock()
		}
		if echo != nil {
			if _, err := echo.Send(id, payload, opts.SendTimeout, opts.RecvTimeout); err != nil {
				log.Warn("echo failed", "id", id, "to", opts.EchoTo, "error", err)
			}
		}
		if opts.Count > 0 && n == int64(opts.Count) {
			cancel()
		}
	}

	ep, err := msgport.Open(opts.Name, callback,
		msgport.WithFacility(app.Facility),
		msgport.WithLogger(app.Log),
		// Messages past Count are rejected rather than acked and dropped.
		msgport.WithDeliveryLimit(opts.Count),
		msgport.WithInvalidationHandler(func(*msgport.LocalEndpoint) {
			if !stopping.Load() {
				lost.Store(true)
			}
			cancel()
		}),
	)
	if err != nil {
		return err
	}
	if !ep.Listen(sched) {
		return fmt.Errorf("listen %q: %w", opts.Name, msgport.ErrInvalid)
	}
	log.Info("listening", "scheduler", opts.Scheduler, "dir", app.Facility.Dir())

	if loop != nil {
		if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("run loop stopped", "error", err)
		}
	} else {
		<-ctx.Done()
	}

	stopping.Store(true)
	ep.Invalidate()
	if loop != nil {
		// Queued deliveries now reject themselves; run each one so its
		// sender hears back before the receive timeout.
		drained := 0
		for loop.RunOnce() {
			drained++
		}
		log.Debug("drained run loop", "tasks", drained)
	}
	<-ep.Done()
	log.Info("stopped", "received", received.Load())

	if lost.Load() {
		return fmt.Errorf("%q: %w", opts.Name, ErrPortLost)
	}
	return nil
}

func newScheduler(opts Options) (msgport.Scheduler, *msgport.RunLoop, error) {
	switch opts.Scheduler {
	case "loop":
		loop := msgport.NewRunLoop()
		return loop, loop, nil
	case "", "queue":
		qopts := []msgport.WorkQueueOption{}
		if opts.Workers > 0 {
			qopts = append(qopts, msgport.WithWorkers(opts.Workers))
		}
		if opts.EndpointConcurrency {
			qopts = append(qopts, msgport.WithEndpointConcurrency())
		}
		return msgport.NewWorkQueue(qopts...), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown scheduler %q", opts.Scheduler)
	}
}
