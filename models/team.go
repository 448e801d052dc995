package models

// SeededTeam is the read contract supplied by the team registry for a
// tournament. Seed ordering drives bracket placement: lower seed, higher
// priority.
type SeededTeam struct {
	TeamID int    `json:"team_id" db:"team_id"`
	Name   string `json:"name" db:"name"`
	Seed   int    `json:"seed" db:"seed"`
}
