package models

type SlotStatus string

const (
	SlotPending    SlotStatus = "pending"
	SlotInProgress SlotStatus = "in_progress"
	SlotCompleted  SlotStatus = "completed"
)

// Sentinel team names used inside bracket slots.
const (
	TeamBye = "BYE" // padding entry, resolved during bracket construction
	TeamTBD = "TBD" // awaiting the winner of an earlier slot
)

// MatchSlot is one match position inside a round. It is bracket-internal and
// distinct from the persisted Match entity that carries scheduling and room
// credentials.
type MatchSlot struct {
	MatchID string     `json:"match_id" db:"match_id"`
	Team1   string     `json:"team1" db:"team1"`
	Team2   string     `json:"team2" db:"team2"`
	Status  SlotStatus `json:"status" db:"status"`
	Winner  *string    `json:"winner,omitempty" db:"winner"`
}

type Round struct {
	RoundNumber int         `json:"round_number"`
	Matches     []MatchSlot `json:"matches"`
}

// Bracket is the full single-elimination structure for a tournament.
// Rounds[0] is the first round, the last round holds the single final slot.
type Bracket struct {
	TournamentID int     `json:"tournament_id"`
	Rounds       []Round `json:"rounds"`
}

// IsComplete reports whether the final slot has been decided. Completion is
// derived from the final round, never stored redundantly.
func (b *Bracket) IsComplete() bool {
	if len(b.Rounds) == 0 {
		return false
	}
	final := b.Rounds[len(b.Rounds)-1]
	if len(final.Matches) != 1 {
		return false
	}
	return final.Matches[0].Status == SlotCompleted
}

// Winner returns the tournament winner once the final slot is completed.
func (b *Bracket) Winner() (string, bool) {
	if !b.IsComplete() {
		return "", false
	}
	w := b.Rounds[len(b.Rounds)-1].Matches[0].Winner
	if w == nil {
		return "", false
	}
	return *w, true
}
