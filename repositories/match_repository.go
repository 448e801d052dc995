package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/arenagrid/match-engine/models"
	"github.com/lib/pq"
)

var (
	ErrMatchNotFound   = errors.New("match not found")
	ErrRoomIDConflict  = errors.New("room id conflict")
	ErrMatchSlotTaken  = errors.New("match already exists for bracket slot")
	ErrMatchTournament = errors.New("match tournament invalid")
)

// MatchRepository persists the scheduling entity for a contest, including its
// room credentials. A unique index on room_id (matches_room_id_key) backstops
// the allocator's application-level uniqueness check.
type MatchRepository interface {
	// Create inserts the match. A unique violation on the slot constraint
	// (matches_slot_key) maps to ErrMatchSlotTaken so a concurrent schedule
	// of the same slot can be treated as already done.
	Create(ctx context.Context, match *models.Match) error
	GetByID(ctx context.Context, id int) (*models.Match, error)
	ListByTournament(ctx context.Context, tournamentID int) ([]*models.Match, error)

	// RoomIDInUse reports whether any match other than excludeMatchID
	// currently holds the given room id. excludeMatchID 0 excludes nothing.
	RoomIDInUse(ctx context.Context, roomID string, excludeMatchID int) (bool, error)

	// SetRoomCredentials replaces the match's credential columns in a single
	// UPDATE. A unique violation on room_id maps to ErrRoomIDConflict.
	SetRoomCredentials(ctx context.Context, matchID int, creds *models.RoomCredentials) error

	// CompleteMatch records the winner and flips the status to completed,
	// guarded against re-completion. Returns whether a row changed.
	CompleteMatch(ctx context.Context, matchID, winnerTeamID int) (bool, error)

	// DeleteExpiredCredentials clears credential columns for every match
	// whose room has expired, returning the number of rows swept.
	DeleteExpiredCredentials(ctx context.Context) (int64, error)
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

func (r *postgresMatchRepository) Create(ctx context.Context, match *models.Match) error {
	query := `
		INSERT INTO matches (tournament_id, team1_id, team2_id, round, slot_index, start_time, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	err := r.db.QueryRowContext(ctx, query,
		match.TournamentID,
		match.Team1ID,
		match.Team2ID,
		match.Round,
		match.SlotIndex,
		match.StartTime,
		match.Status,
	).Scan(&match.ID)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			switch {
			case pqErr.Code == "23505" && pqErr.Constraint == "matches_slot_key":
				return ErrMatchSlotTaken
			case pqErr.Code == "23503":
				return ErrMatchTournament
			}
		}
		return err
	}
	return nil
}

const matchColumns = `
	id, tournament_id, team1_id, team2_id, round, slot_index, start_time, status, winner_team_id,
	room_id, room_password, room_generated_at, room_visible_at, room_expires_at`

func scanMatch(row interface{ Scan(...interface{}) error }) (*models.Match, error) {
	var (
		match models.Match
		creds models.RoomCredentials

		roomID, roomPassword              sql.NullString
		generatedAt, visibleAt, expiresAt sql.NullTime
	)

	err := row.Scan(
		&match.ID,
		&match.TournamentID,
		&match.Team1ID,
		&match.Team2ID,
		&match.Round,
		&match.SlotIndex,
		&match.StartTime,
		&match.Status,
		&match.WinnerTeamID,
		&roomID,
		&roomPassword,
		&generatedAt,
		&visibleAt,
		&expiresAt,
	)
	if err != nil {
		return nil, err
	}

	if roomID.Valid && roomPassword.Valid {
		creds.RoomID = roomID.String
		creds.Password = roomPassword.String
		creds.GeneratedAt = generatedAt.Time
		creds.VisibleAt = visibleAt.Time
		creds.ExpiresAt = expiresAt.Time
		match.Room = &creds
	}
	return &match, nil
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, id int) (*models.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE id = $1`

	match, err := scanMatch(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}
	return match, nil
}

func (r *postgresMatchRepository) ListByTournament(ctx context.Context, tournamentID int) ([]*models.Match, error) {
	query := `SELECT ` + matchColumns + `
		FROM matches
		WHERE tournament_id = $1
		ORDER BY round, slot_index`

	rows, err := r.db.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	matches := make([]*models.Match, 0)
	for rows.Next() {
		match, scanErr := scanMatch(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		matches = append(matches, match)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return matches, nil
}

func (r *postgresMatchRepository) RoomIDInUse(ctx context.Context, roomID string, excludeMatchID int) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM matches
			WHERE room_id = $1 AND id <> $2
		)`

	var inUse bool
	if err := r.db.QueryRowContext(ctx, query, roomID, excludeMatchID).Scan(&inUse); err != nil {
		return false, err
	}
	return inUse, nil
}

func (r *postgresMatchRepository) SetRoomCredentials(ctx context.Context, matchID int, creds *models.RoomCredentials) error {
	query := `
		UPDATE matches
		SET room_id = $2, room_password = $3, room_generated_at = $4, room_visible_at = $5, room_expires_at = $6
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query,
		matchID,
		creds.RoomID,
		creds.Password,
		creds.GeneratedAt,
		creds.VisibleAt,
		creds.ExpiresAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" && pqErr.Constraint == "matches_room_id_key" {
			return ErrRoomIDConflict
		}
		return err
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) CompleteMatch(ctx context.Context, matchID, winnerTeamID int) (bool, error) {
	query := `
		UPDATE matches
		SET status = 'completed', winner_team_id = $2
		WHERE id = $1
		  AND status <> 'completed'
		  AND (team1_id = $2 OR team2_id = $2)`

	result, err := r.db.ExecContext(ctx, query, matchID, winnerTeamID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *postgresMatchRepository) DeleteExpiredCredentials(ctx context.Context) (int64, error) {
	query := `
		UPDATE matches
		SET room_id = NULL, room_password = NULL, room_generated_at = NULL,
		    room_visible_at = NULL, room_expires_at = NULL
		WHERE room_expires_at IS NOT NULL AND room_expires_at <= NOW()`

	result, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
