package persist

import "time"

// CreateStamper is implemented by entities that record their creation time.
// On insert the time is set when CreatedTime reports zero.
type CreateStamper interface {
	CreatedTime() time.Time
	SetCreatedTime(time.Time)
}

// UpdateStamper is implemented by entities that record their last update.
// Every update overwrites it.
type UpdateStamper interface {
	SetUpdatedTime(time.Time)
}

// Timestamps is an embeddable created_at/updated_at pair implementing both
// stampers. NULL columns scan to nil.
type Timestamps struct {
	CreatedAt *time.Time `db:"created_at" json:"createdAt,omitempty"`
	UpdatedAt *time.Time `db:"updated_at" json:"updatedAt,omitempty"`
}

func (t *Timestamps) CreatedTime() time.Time {
	if t == nil || t.CreatedAt == nil {
		return time.Time{}
	}
	return *t.CreatedAt
}

func (t *Timestamps) SetCreatedTime(at time.Time) {
	t.CreatedAt = &at
}

func (t *Timestamps) SetUpdatedTime(at time.Time) {
	t.UpdatedAt = &at
}

var (
	_ CreateStamper = (*Timestamps)(nil)
	_ UpdateStamper = (*Timestamps)(nil)
)
