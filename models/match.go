package models

import "time"

type MatchStatus string

const (
	MatchStatusScheduled MatchStatus = "scheduled"
	MatchStatusLive      MatchStatus = "live"
	MatchStatusCompleted MatchStatus = "completed"
	MatchStatusCancelled MatchStatus = "cancelled"
)

// Match is the persisted scheduling entity for a single contest. It references
// its bracket slot through Round and SlotIndex so a recorded result can be
// translated into bracket advancement.
type Match struct {
	ID           int         `json:"id" db:"id"`
	TournamentID int         `json:"tournament_id" db:"tournament_id"`
	Team1ID      int         `json:"team1_id" db:"team1_id"`
	Team2ID      int         `json:"team2_id" db:"team2_id"`
	Round        int         `json:"round" db:"round"`
	SlotIndex    int         `json:"slot_index" db:"slot_index"`
	StartTime    time.Time   `json:"start_time" db:"start_time"`
	Status       MatchStatus `json:"status" db:"status"`
	WinnerTeamID *int        `json:"winner_team_id,omitempty" db:"winner_team_id"`

	Room *RoomCredentials `json:"room,omitempty" db:"-"`
}

// RoomCredentials is the time-scoped connection info for a match room.
// RoomID is globally unique across all matches; the password is not, access
// is authenticated by the (roomId, password) pair.
type RoomCredentials struct {
	RoomID      string    `json:"room_id" db:"room_id"`
	Password    string    `json:"password" db:"room_password"`
	GeneratedAt time.Time `json:"generated_at" db:"room_generated_at"`
	VisibleAt   time.Time `json:"visible_at" db:"room_visible_at"`
	ExpiresAt   time.Time `json:"expires_at" db:"room_expires_at"`
}

// VisibleNow reports whether the credentials may be shown to participants at
// the given instant.
func (c *RoomCredentials) VisibleNow(now time.Time) bool {
	return !now.Before(c.VisibleAt) && now.Before(c.ExpiresAt)
}
