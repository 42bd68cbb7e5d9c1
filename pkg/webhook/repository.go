package webhook

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/pitabwire/frame/datastore/pool"

	"github.com/fixmate/fixmate/pkg/events"
)

// Repository persists endpoints, delivery records and dead letters.
type Repository struct {
	pool pool.Pool
}

func NewRepository(pool pool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) db(ctx context.Context, readOnly bool) *gorm.DB {
	return r.pool.DB(ctx, readOnly)
}

// SaveEndpoint creates or updates an endpoint registration.
func (r *Repository) SaveEndpoint(ctx context.Context, ep *Endpoint) error {
	return r.db(ctx, false).Save(ep).Error
}

// Endpoint returns one endpoint by ID.
func (r *Repository) Endpoint(ctx context.Context, id string) (*Endpoint, error) {
	var ep Endpoint
	if err := r.db(ctx, true).Where("id = ?", id).First(&ep).Error; err != nil {
		return nil, err
	}
	return &ep, nil
}

// Endpoints returns every registered endpoint, for admin listings.
func (r *Repository) Endpoints(ctx context.Context) ([]Endpoint, error) {
	var eps []Endpoint
	err := r.db(ctx, true).Find(&eps).Error
	return eps, err
}

// EndpointsForEvent returns the active endpoints subscribed to the event
// type. The JSONB containment match keeps the filtering in the database.
func (r *Repository) EndpointsForEvent(ctx context.Context, et events.EventType) ([]Endpoint, error) {
	var eps []Endpoint
	err := r.db(ctx, true).
		Where("active = ? AND events @> ?", true, fmt.Sprintf(`[%q]`, et)).
		Find(&eps).Error
	return eps, err
}

// RemoveEndpoint soft-deletes an endpoint registration.
func (r *Repository) RemoveEndpoint(ctx context.Context, id string) error {
	return r.db(ctx, false).Where("id = ?", id).Delete(&Endpoint{}).Error
}

// SetBreakerState mirrors the in-memory breaker state onto the endpoint.
func (r *Repository) SetBreakerState(ctx context.Context, endpointID, state string) error {
	return r.db(ctx, false).
		Model(&Endpoint{}).
		Where("id = ?", endpointID).
		Update("breaker_state", state).Error
}

// RecordDelivery persists one delivery attempt's outcome.
func (r *Repository) RecordDelivery(ctx context.Context, d *Delivery) error {
	return r.db(ctx, false).Create(d).Error
}

// Deliveries returns an endpoint's delivery records, newest first.
func (r *Repository) Deliveries(ctx context.Context, endpointID string, limit, offset int) ([]Delivery, error) {
	var ds []Delivery
	q := r.db(ctx, true).
		Where("endpoint_id = ?", endpointID).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	err := q.Find(&ds).Error
	return ds, err
}

// AddDeadLetter parks an undeliverable event for later replay.
func (r *Repository) AddDeadLetter(ctx context.Context, dl *DeadLetter) error {
	return r.db(ctx, false).Create(dl).Error
}

// DeadLetterByID returns a single dead letter.
func (r *Repository) DeadLetterByID(ctx context.Context, id string) (*DeadLetter, error) {
	var dl DeadLetter
	if err := r.db(ctx, true).Where("id = ?", id).First(&dl).Error; err != nil {
		return nil, err
	}
	return &dl, nil
}

// DeadLetters returns an endpoint's unreplayed dead letters, newest first.
func (r *Repository) DeadLetters(ctx context.Context, endpointID string) ([]DeadLetter, error) {
	var dls []DeadLetter
	err := r.db(ctx, true).
		Where("endpoint_id = ? AND replayed = ?", endpointID, false).
		Order("created_at DESC").
		Find(&dls).Error
	return dls, err
}

// MarkReplayed flags a dead letter as replayed.
func (r *Repository) MarkReplayed(ctx context.Context, id string) error {
	return r.db(ctx, false).
		Model(&DeadLetter{}).
		Where("id = ?", id).
		Update("replayed", true).Error
}
