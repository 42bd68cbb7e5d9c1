package webhook

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/pitabwire/frame/workerpool"
	"github.com/pitabwire/util"

	"github.com/fixmate/fixmate/pkg/events"
)

// Subscriber consumes session events off the queue and fans each one out
// to the endpoints subscribed to its type. Delivery loops run on the
// worker pool so a slow endpoint never stalls the queue.
type Subscriber struct {
	Repo      *Repository
	Deliverer *Deliverer
	Pool      workerpool.WorkerPool
}

// Handle is invoked by the queue for each published event.
func (s *Subscriber) Handle(ctx context.Context, _ map[string]string, message []byte) error {
	var env events.Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		util.Log(ctx).WithError(err).Error("webhook subscriber: bad envelope")
		return err
	}

	endpoints, err := s.Repo.EndpointsForEvent(ctx, env.Type)
	if err != nil {
		util.Log(ctx).WithError(err).Error("webhook subscriber: endpoint lookup")
		return err
	}

	for _, ep := range endpoints {
		ep := ep
		deliver := func() { s.Deliverer.Deliver(ctx, ep, env) }
		if s.Pool == nil {
			go deliver()
			continue
		}
		if err := s.Pool.Submit(ctx, deliver); err != nil {
			slog.WarnContext(ctx, "webhook worker pool full, dropping delivery",
				slog.String("endpoint_id", ep.ID),
				slog.String("event_id", env.ID))
		}
	}
	return nil
}
