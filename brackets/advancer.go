package brackets

import (
	"fmt"

	"github.com/arenagrid/match-engine/models"
)

// RecordResult marks the slot addressed by roundNumber (1-based) and
// matchIndex (0-based) as completed with the given winner, and places the
// winner into the corresponding slot of the next round. A slot's winner is
// immutable once set: re-recording fails with ErrMatchAlreadyCompleted and
// leaves the bracket unchanged. There is no correction path.
func RecordResult(b *models.Bracket, roundNumber, matchIndex int, winnerName string) error {
	if roundNumber < 1 || roundNumber > len(b.Rounds) {
		return fmt.Errorf("%w: round %d", ErrSlotNotFound, roundNumber)
	}
	round := &b.Rounds[roundNumber-1]
	if matchIndex < 0 || matchIndex >= len(round.Matches) {
		return fmt.Errorf("%w: round %d, match index %d", ErrSlotNotFound, roundNumber, matchIndex)
	}

	slot := &round.Matches[matchIndex]
	if slot.Status == models.SlotCompleted {
		return fmt.Errorf("%w: %s", ErrMatchAlreadyCompleted, slot.MatchID)
	}
	if slot.Team1 == models.TeamTBD || slot.Team2 == models.TeamTBD {
		return fmt.Errorf("%w: %s", ErrSlotNotReady, slot.MatchID)
	}
	if winnerName == "" || winnerName == models.TeamBye || winnerName == models.TeamTBD ||
		(winnerName != slot.Team1 && winnerName != slot.Team2) {
		return fmt.Errorf("%w: %q is not in %s", ErrWinnerNotInSlot, winnerName, slot.MatchID)
	}

	winner := winnerName
	slot.Winner = &winner
	slot.Status = models.SlotCompleted

	placeInNextRound(b, roundNumber-1, matchIndex, winnerName)
	return nil
}
