package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/arenagrid/match-engine/models"
)

var (
	ErrBracketNotFound = errors.New("bracket not found")
	ErrSlotNotFound    = errors.New("bracket slot not found")
	ErrBracketExists   = errors.New("bracket already exists for tournament")
)

// BracketSlotRepository persists a bracket as one row per slot so that
// advancement can update a single slot without rewriting the whole structure.
type BracketSlotRepository interface {
	// CreateBracket inserts every slot of the bracket inside the given
	// transaction. Fails with ErrBracketExists if the tournament already has
	// slots.
	CreateBracket(ctx context.Context, tx *sql.Tx, bracket *models.Bracket) error

	// GetByTournament reassembles the bracket from its slot rows.
	GetByTournament(ctx context.Context, tournamentID int) (*models.Bracket, error)

	// GetSlot returns a single slot. roundNumber is 1-based, matchIndex 0-based.
	GetSlot(ctx context.Context, tournamentID, roundNumber, matchIndex int) (*models.MatchSlot, error)

	// CompleteSlot sets the winner and completed status in one conditional
	// UPDATE guarded on the slot not already being completed, both team
	// fields being concrete (no TBD placeholder), and the winner actually
	// playing in the slot. Returns whether a row was updated.
	CompleteSlot(ctx context.Context, tournamentID, roundNumber, matchIndex int, winner string) (bool, error)

	// SetSlotTeam writes only team1 (slot=1) or team2 (slot=2) of the
	// addressed row. Single-column update; concurrent writes to the other
	// team field of the same row do not conflict.
	SetSlotTeam(ctx context.Context, tournamentID, roundNumber, matchIndex, slot int, team string) error
}

type postgresBracketSlotRepository struct {
	db *sql.DB
}

func NewPostgresBracketSlotRepository(db *sql.DB) BracketSlotRepository {
	return &postgresBracketSlotRepository{db: db}
}

func (r *postgresBracketSlotRepository) CreateBracket(ctx context.Context, tx *sql.Tx, bracket *models.Bracket) error {
	var exists bool
	err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM bracket_slots WHERE tournament_id = $1)`,
		bracket.TournamentID,
	).Scan(&exists)
	if err != nil {
		return err
	}
	if exists {
		return ErrBracketExists
	}

	query := `
		INSERT INTO bracket_slots (tournament_id, round, slot_index, match_id, team1, team2, status, winner)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	for _, round := range bracket.Rounds {
		for i, slot := range round.Matches {
			if _, err := tx.ExecContext(ctx, query,
				bracket.TournamentID,
				round.RoundNumber,
				i,
				slot.MatchID,
				slot.Team1,
				slot.Team2,
				slot.Status,
				slot.Winner,
			); err != nil {
				return fmt.Errorf("inserting slot %s: %w", slot.MatchID, err)
			}
		}
	}
	return nil
}

func (r *postgresBracketSlotRepository) GetByTournament(ctx context.Context, tournamentID int) (*models.Bracket, error) {
	query := `
		SELECT round, slot_index, match_id, team1, team2, status, winner
		FROM bracket_slots
		WHERE tournament_id = $1
		ORDER BY round, slot_index`

	rows, err := r.db.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bracket := &models.Bracket{TournamentID: tournamentID}
	for rows.Next() {
		var (
			round, idx int
			slot       models.MatchSlot
		)
		if err := rows.Scan(&round, &idx, &slot.MatchID, &slot.Team1, &slot.Team2, &slot.Status, &slot.Winner); err != nil {
			return nil, err
		}
		for len(bracket.Rounds) < round {
			bracket.Rounds = append(bracket.Rounds, models.Round{RoundNumber: len(bracket.Rounds) + 1})
		}
		bracket.Rounds[round-1].Matches = append(bracket.Rounds[round-1].Matches, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(bracket.Rounds) == 0 {
		return nil, ErrBracketNotFound
	}
	return bracket, nil
}

func (r *postgresBracketSlotRepository) GetSlot(ctx context.Context, tournamentID, roundNumber, matchIndex int) (*models.MatchSlot, error) {
	query := `
		SELECT match_id, team1, team2, status, winner
		FROM bracket_slots
		WHERE tournament_id = $1 AND round = $2 AND slot_index = $3`

	slot := &models.MatchSlot{}
	err := r.db.QueryRowContext(ctx, query, tournamentID, roundNumber, matchIndex).Scan(
		&slot.MatchID,
		&slot.Team1,
		&slot.Team2,
		&slot.Status,
		&slot.Winner,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}
	return slot, nil
}

func (r *postgresBracketSlotRepository) CompleteSlot(ctx context.Context, tournamentID, roundNumber, matchIndex int, winner string) (bool, error) {
	query := `
		UPDATE bracket_slots
		SET winner = $4, status = 'completed'
		WHERE tournament_id = $1 AND round = $2 AND slot_index = $3
		  AND status <> 'completed'
		  AND team1 <> $5 AND team2 <> $5
		  AND (team1 = $4 OR team2 = $4)`

	result, err := r.db.ExecContext(ctx, query, tournamentID, roundNumber, matchIndex, winner, models.TeamTBD)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *postgresBracketSlotRepository) SetSlotTeam(ctx context.Context, tournamentID, roundNumber, matchIndex, slot int, team string) error {
	column := "team1"
	if slot == 2 {
		column = "team2"
	} else if slot != 1 {
		return fmt.Errorf("slot must be 1 or 2, got %d", slot)
	}

	query := fmt.Sprintf(`
		UPDATE bracket_slots
		SET %s = $4
		WHERE tournament_id = $1 AND round = $2 AND slot_index = $3`, column)

	result, err := r.db.ExecContext(ctx, query, tournamentID, roundNumber, matchIndex, team)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrSlotNotFound)
}
