package model

import (
	"time"

	"telegram-media-downloader/internal/domain"
)

// PriorityTier ranks a user at admission time. Lower rank wins.
type PriorityTier int

const (
	PriorityNone PriorityTier = iota
	PriorityUntil
	PriorityUnbounded
)

// Priority is the tagged variant for a user's queue priority:
// none, active until a concrete instant, or unbounded.
type Priority struct {
	Tier  PriorityTier
	Until time.Time // meaningful only when Tier == PriorityUntil
}

func NoPriority() Priority { return Priority{Tier: PriorityNone} }
func PriorityUntilTime(t time.Time) Priority {
	return Priority{Tier: PriorityUntil, Until: t}
}
func UnboundedPriority() Priority { return Priority{Tier: PriorityUnbounded} }

// ActiveAt reports whether the priority is in effect at the given instant.
// An expired PriorityUntil behaves exactly like PriorityNone.
func (p Priority) ActiveAt(now time.Time) bool {
	switch p.Tier {
	case PriorityUnbounded:
		return true
	case PriorityUntil:
		return p.Until.After(now)
	default:
		return false
	}
}

// Rank orders priority tiers for admission: unbounded before time-bounded
// before none. Expired time-bounded priority ranks like none.
func (p Priority) Rank(now time.Time) int {
	switch {
	case p.Tier == PriorityUnbounded:
		return 0
	case p.Tier == PriorityUntil && p.Until.After(now):
		return 1
	default:
		return 2
	}
}

// Remaining returns how long the priority lasts from now. ok is false for
// PriorityNone or an expired window; an unbounded priority returns ok with a
// zero duration and Unbounded() true.
func (p Priority) Remaining(now time.Time) (time.Duration, bool) {
	switch p.Tier {
	case PriorityUnbounded:
		return 0, true
	case PriorityUntil:
		d := p.Until.Sub(now)
		if d <= 0 {
			return 0, false
		}
		return d, true
	default:
		return 0, false
	}
}

func (p Priority) Unbounded() bool { return p.Tier == PriorityUnbounded }

// User is a domain entity representing a Telegram user in our system.
// The ID is the Telegram chat/user id, mirroring the persisted key.
type User struct {
	ID             int64
	Username       string
	FirstName      string
	JoinedAt       time.Time
	Priority       Priority
	TotalDownloads int64
	TotalBytes     int64
}

func NewUser(tgID int64, username, firstName string) (*User, error) {
	if tgID <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &User{
		ID:        tgID,
		Username:  username,
		FirstName: firstName,
		JoinedAt:  time.Now(),
		Priority:  NoPriority(),
	}, nil
}

func (u *User) IsZero() bool { return u == nil || u.ID == 0 }
