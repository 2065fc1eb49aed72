package notify

import (
	"time"

	"github.com/google/uuid"

	"github.com/autopeer-io/drivermgr/internal/drivermgr/pool"
)

// Operations that produce notifications.
const (
	OpAttach  = "attach"
	OpDetach  = "detach"
	OpEnable  = "enable"
	OpDisable = "disable"
)

// Notification describes one accepted change of a vehicle entry.
// Seq orders the notifications of one vehicle; it is not comparable across vehicles.
type Notification struct {
	ID        uuid.UUID `json:"id"`
	Vehicle   string    `json:"vehicle"`
	Seq       uint64    `json:"seq"`
	Factory   string    `json:"factory"`
	Enabled   bool      `json:"enabled"`
	Attached  bool      `json:"attached"`
	Operation string    `json:"operation"`
	Timestamp time.Time `json:"timestamp"`
}

// FromState builds the notification for an entry state produced by op.
func FromState(op string, st pool.EntryState) Notification {
	return Notification{
		ID:        uuid.New(),
		Vehicle:   st.Vehicle,
		Seq:       st.Seq,
		Factory:   st.Factory,
		Enabled:   st.Enabled,
		Attached:  st.Attached,
		Operation: op,
		Timestamp: time.Now().UTC(),
	}
}
