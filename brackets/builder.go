package brackets

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/arenagrid/match-engine/models"
)

var (
	ErrInvalidBracketSize    = errors.New("bracket requires at least two registered teams")
	ErrSlotNotFound          = errors.New("bracket slot not found")
	ErrMatchAlreadyCompleted = errors.New("match slot is already completed")
	ErrWinnerNotInSlot       = errors.New("winner does not play in this slot")
	ErrSlotNotReady          = errors.New("slot is still waiting on a feeder result")
)

// BuildBracket constructs the full single-elimination skeleton for the given
// teams. Teams are sorted ascending by seed, padded with BYE entries up to the
// next power of two, and paired consecutively into round 1. Later rounds are
// pre-created with TBD slots so the whole bracket shape exists before any
// match is played. Bye slots are resolved here, once, and never again during
// advancement.
//
// Given the same seed ordering the produced structure is deterministic.
func BuildBracket(tournamentID int, teams []models.SeededTeam) (*models.Bracket, error) {
	n := len(teams)
	if n < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidBracketSize, n)
	}

	seeded := make([]models.SeededTeam, n)
	copy(seeded, teams)
	sort.SliceStable(seeded, func(i, j int) bool {
		return seeded[i].Seed < seeded[j].Seed
	})

	numRounds := int(math.Ceil(math.Log2(float64(n))))
	totalSlots := 1 << uint(numRounds)

	entries := make([]string, 0, totalSlots)
	for _, t := range seeded {
		entries = append(entries, t.Name)
	}
	for len(entries) < totalSlots {
		entries = append(entries, models.TeamBye)
	}

	bracket := &models.Bracket{
		TournamentID: tournamentID,
		Rounds:       make([]models.Round, numRounds),
	}

	slotsInRound := totalSlots / 2
	for r := 0; r < numRounds; r++ {
		round := models.Round{
			RoundNumber: r + 1,
			Matches:     make([]models.MatchSlot, slotsInRound),
		}
		for i := range round.Matches {
			slot := models.MatchSlot{
				MatchID: fmt.Sprintf("R%dM%d", r+1, i+1),
				Team1:   models.TeamTBD,
				Team2:   models.TeamTBD,
				Status:  models.SlotPending,
			}
			if r == 0 {
				slot.Team1 = entries[2*i]
				slot.Team2 = entries[2*i+1]
			}
			round.Matches[i] = slot
		}
		bracket.Rounds[r] = round
		slotsInRound /= 2
	}

	resolveByes(bracket)
	return bracket, nil
}

// resolveByes completes every slot whose opponent is a BYE and pushes the
// advancing name into the next round. Because a bye advancing out of round 1
// can meet another bye product, resolution walks the rounds in order and
// cascades until no bye slot remains undecided.
func resolveByes(b *models.Bracket) {
	for r := range b.Rounds {
		for i := range b.Rounds[r].Matches {
			slot := &b.Rounds[r].Matches[i]
			if slot.Status == models.SlotCompleted {
				continue
			}

			var advancing string
			switch {
			case slot.Team1 == models.TeamBye && slot.Team2 == models.TeamBye:
				advancing = models.TeamBye
			case slot.Team2 == models.TeamBye && slot.Team1 != models.TeamTBD:
				advancing = slot.Team1
			case slot.Team1 == models.TeamBye && slot.Team2 != models.TeamTBD:
				advancing = slot.Team2
			default:
				continue
			}

			winner := advancing
			slot.Winner = &winner
			slot.Status = models.SlotCompleted
			placeInNextRound(b, r, i, advancing)
		}
	}
}

// placeInNextRound writes the advancing name into the feeding slot of the
// following round: slot floor(i/2), team1 for even i, team2 for odd i.
func placeInNextRound(b *models.Bracket, roundIdx, matchIdx int, name string) {
	if roundIdx+1 >= len(b.Rounds) {
		return
	}
	next := &b.Rounds[roundIdx+1].Matches[matchIdx/2]
	if matchIdx%2 == 0 {
		next.Team1 = name
	} else {
		next.Team2 = name
	}
}
