package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/arenagrid/match-engine/brackets"
	"github.com/arenagrid/match-engine/models"
	"github.com/arenagrid/match-engine/repositories"
)

// MatchService owns the persisted Match lifecycle and the mapping between a
// completed match and bracket advancement. The bracket tracks who plays whom
// and who advances; the Match tracks when and how to connect to a contest.
type MatchService interface {
	// ScheduleRound creates Match records for every slot of the round that
	// has two concrete teams and no match yet.
	ScheduleRound(ctx context.Context, tournamentID, roundNumber int, startTime time.Time) ([]*models.Match, error)

	// CompleteMatch records the winner on the persisted match and translates
	// the result into bracket advancement for the match's slot.
	CompleteMatch(ctx context.Context, matchID, winnerTeamID int) (*models.Match, error)

	GetMatch(ctx context.Context, matchID int) (*models.Match, error)
	ListByTournament(ctx context.Context, tournamentID int) ([]*models.Match, error)
}

type matchService struct {
	matchRepo      repositories.MatchRepository
	registry       repositories.TeamRegistry
	bracketService BracketService
	hub            *brackets.Hub
	logger         *slog.Logger
}

func NewMatchService(
	matchRepo repositories.MatchRepository,
	registry repositories.TeamRegistry,
	bracketService BracketService,
	hub *brackets.Hub,
	logger *slog.Logger,
) MatchService {
	return &matchService{
		matchRepo:      matchRepo,
		registry:       registry,
		bracketService: bracketService,
		hub:            hub,
		logger:         logger,
	}
}

func (s *matchService) ScheduleRound(ctx context.Context, tournamentID, roundNumber int, startTime time.Time) ([]*models.Match, error) {
	bracket, err := s.bracketService.GetBracket(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if roundNumber < 1 || roundNumber > len(bracket.Rounds) {
		return nil, fmt.Errorf("%w: round %d", brackets.ErrSlotNotFound, roundNumber)
	}

	teamIDs, err := s.teamIDsByName(ctx, tournamentID)
	if err != nil {
		return nil, err
	}

	existing, err := s.matchRepo.ListByTournament(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("listing matches for tournament %d: %w", tournamentID, err)
	}
	scheduled := make(map[int]bool, len(existing))
	for _, m := range existing {
		if m.Round == roundNumber {
			scheduled[m.SlotIndex] = true
		}
	}

	created := make([]*models.Match, 0)
	for i, slot := range bracket.Rounds[roundNumber-1].Matches {
		if scheduled[i] || slot.Status == models.SlotCompleted {
			continue
		}
		team1ID, ok1 := teamIDs[slot.Team1]
		team2ID, ok2 := teamIDs[slot.Team2]
		if !ok1 || !ok2 {
			// One side is still TBD or a bye product; nothing to schedule.
			continue
		}

		match := &models.Match{
			TournamentID: tournamentID,
			Team1ID:      team1ID,
			Team2ID:      team2ID,
			Round:        roundNumber,
			SlotIndex:    i,
			StartTime:    startTime,
			Status:       models.MatchStatusScheduled,
		}
		if err := s.matchRepo.Create(ctx, match); err != nil {
			if errors.Is(err, repositories.ErrMatchSlotTaken) {
				// A concurrent schedule won the race for this slot; the
				// unique constraint already holds the row we wanted.
				continue
			}
			return nil, fmt.Errorf("creating match for slot %s: %w", slot.MatchID, err)
		}
		created = append(created, match)
	}

	if len(created) == 0 {
		return nil, ErrNoSchedulableSlots
	}

	s.logger.Info("round scheduled",
		slog.Int("tournament_id", tournamentID),
		slog.Int("round", roundNumber),
		slog.Int("matches", len(created)),
		slog.Time("start_time", startTime))
	return created, nil
}

func (s *matchService) CompleteMatch(ctx context.Context, matchID, winnerTeamID int) (*models.Match, error) {
	match, err := s.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if winnerTeamID != match.Team1ID && winnerTeamID != match.Team2ID {
		return nil, fmt.Errorf("%w: team %d in match %d", ErrWinnerNotInMatch, winnerTeamID, matchID)
	}

	updated, err := s.matchRepo.CompleteMatch(ctx, matchID, winnerTeamID)
	if err != nil {
		return nil, fmt.Errorf("completing match %d: %w", matchID, err)
	}
	if !updated {
		return nil, fmt.Errorf("%w: match %d", ErrMatchAlreadyCompleted, matchID)
	}

	winnerName, err := s.teamNameByID(ctx, match.TournamentID, winnerTeamID)
	if err != nil {
		return nil, err
	}
	if _, err := s.bracketService.RecordResult(ctx, match.TournamentID, match.Round, match.SlotIndex, winnerName); err != nil {
		return nil, fmt.Errorf("advancing bracket for match %d: %w", matchID, err)
	}

	match, err = s.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if s.hub != nil {
		s.hub.BroadcastToTournament(match.TournamentID, brackets.Event{
			Type:         brackets.EventMatchUpdated,
			TournamentID: match.TournamentID,
			Payload:      match,
		})
	}
	return match, nil
}

func (s *matchService) GetMatch(ctx context.Context, matchID int) (*models.Match, error) {
	match, err := s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("fetching match %d: %w", matchID, err)
	}
	return match, nil
}

func (s *matchService) ListByTournament(ctx context.Context, tournamentID int) ([]*models.Match, error) {
	matches, err := s.matchRepo.ListByTournament(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("listing matches for tournament %d: %w", tournamentID, err)
	}
	return matches, nil
}

func (s *matchService) teamIDsByName(ctx context.Context, tournamentID int) (map[string]int, error) {
	teams, err := s.registry.ListByTournament(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("listing registered teams for tournament %d: %w", tournamentID, err)
	}
	byName := make(map[string]int, len(teams))
	for _, t := range teams {
		byName[t.Name] = t.TeamID
	}
	return byName, nil
}

func (s *matchService) teamNameByID(ctx context.Context, tournamentID, teamID int) (string, error) {
	teams, err := s.registry.ListByTournament(ctx, tournamentID)
	if err != nil {
		return "", fmt.Errorf("listing registered teams for tournament %d: %w", tournamentID, err)
	}
	for _, t := range teams {
		if t.TeamID == teamID {
			return t.Name, nil
		}
	}
	return "", fmt.Errorf("%w: team %d not registered for tournament %d", ErrWinnerNotInMatch, teamID, tournamentID)
}
