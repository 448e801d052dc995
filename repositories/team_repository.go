package repositories

import (
	"context"
	"database/sql"

	"github.com/arenagrid/match-engine/models"
)

// TeamRegistry is the read contract over the external registration store:
// the seeded teams confirmed for a tournament. Registration itself is owned
// by the surrounding platform, not this engine.
type TeamRegistry interface {
	ListByTournament(ctx context.Context, tournamentID int) ([]models.SeededTeam, error)
}

type postgresTeamRegistry struct {
	db *sql.DB
}

func NewPostgresTeamRegistry(db *sql.DB) TeamRegistry {
	return &postgresTeamRegistry{db: db}
}

func (r *postgresTeamRegistry) ListByTournament(ctx context.Context, tournamentID int) ([]models.SeededTeam, error) {
	query := `
		SELECT team_id, name, seed
		FROM team_registrations
		WHERE tournament_id = $1
		ORDER BY seed, team_id`

	rows, err := r.db.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	teams := make([]models.SeededTeam, 0)
	for rows.Next() {
		var team models.SeededTeam
		if scanErr := rows.Scan(&team.TeamID, &team.Name, &team.Seed); scanErr != nil {
			return nil, scanErr
		}
		teams = append(teams, team)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return teams, nil
}
