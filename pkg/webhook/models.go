// Package webhook fans session events out to registered HTTP endpoints:
// shop management systems, parts suppliers, anything that wants to follow
// guided repairs as they happen. Deliveries are signed, retried with
// backoff, breaker-guarded per endpoint and dead-lettered on exhaustion.
package webhook

import (
	"encoding/json"

	"github.com/pitabwire/frame/data"

	"github.com/fixmate/fixmate/pkg/events"
)

// Endpoint is one registered event consumer.
type Endpoint struct {
	data.BaseModel

	Name        string      `gorm:"type:varchar(255);not null"  json:"name"`
	URL         string      `gorm:"type:varchar(2048);not null" json:"url"`
	Secret      string      `gorm:"type:varchar(512);not null"  json:"-"`
	Events      EventFilter `gorm:"type:jsonb;default:'[]'"     json:"events"`
	Active      bool        `gorm:"default:true"                json:"active"`
	Description string      `gorm:"type:text"                   json:"description,omitempty"`

	// BreakerState mirrors the in-memory breaker so admin listings show
	// endpoint health across restarts.
	BreakerState string `gorm:"type:varchar(20);default:'closed'" json:"breaker_state"`
}

func (Endpoint) TableName() string { return "webhook_endpoints" }

// EventFilter is the set of event types an endpoint subscribed to,
// stored as a JSONB array. An empty filter matches nothing.
type EventFilter []events.EventType

func (f EventFilter) Value() (interface{}, error) {
	return json.Marshal(f)
}

func (f *EventFilter) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, f)
	case string:
		return json.Unmarshal([]byte(v), f)
	default:
		*f = EventFilter{}
		return nil
	}
}

// Matches reports whether the filter includes the event type.
func (f EventFilter) Matches(et events.EventType) bool {
	for _, t := range f {
		if t == et {
			return true
		}
	}
	return false
}

// Delivery is the audit record of one POST to one endpoint.
type Delivery struct {
	data.BaseModel

	EndpointID string `gorm:"type:varchar(50);not null;index:idx_wd_endpoint" json:"endpoint_id"`
	EventID    string `gorm:"type:varchar(50);not null"                        json:"event_id"`
	EventType  string `gorm:"type:varchar(100);not null"                       json:"event_type"`
	SessionID  string `gorm:"type:varchar(50);index:idx_wd_session"            json:"session_id,omitempty"`
	Attempt    int    `gorm:"default:1"                                        json:"attempt"`
	StatusCode int    `gorm:"default:0"                                        json:"status_code"`
	Delivered  bool   `gorm:"default:false;index:idx_wd_delivered"             json:"delivered"`
	Error      string `gorm:"type:text"                                        json:"error,omitempty"`
	DurationMs int64  `gorm:"default:0"                                        json:"duration_ms"`
}

func (Delivery) TableName() string { return "webhook_deliveries" }

// DeadLetter is an event that exhausted its delivery attempts. It keeps
// the full payload so an operator can replay it once the endpoint
// recovers.
type DeadLetter struct {
	data.BaseModel

	EndpointID string `gorm:"type:varchar(50);not null;index:idx_wdl_endpoint" json:"endpoint_id"`
	EventID    string `gorm:"type:varchar(50);not null"                         json:"event_id"`
	EventType  string `gorm:"type:varchar(100);not null"                        json:"event_type"`
	SessionID  string `gorm:"type:varchar(50)"                                  json:"session_id,omitempty"`
	Payload    string `gorm:"type:text;not null"                                json:"payload"`
	LastError  string `gorm:"type:text"                                         json:"last_error"`
	Attempts   int    `gorm:"default:0"                                         json:"attempts"`
	Replayed   bool   `gorm:"default:false"                                     json:"replayed"`
}

func (DeadLetter) TableName() string { return "webhook_dead_letters" }
