package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/arenagrid/match-engine/brackets"
	"github.com/arenagrid/match-engine/models"
	"github.com/arenagrid/match-engine/repositories"
	"golang.org/x/sync/errgroup"
)

// TournamentState bundles the bracket structure with the persisted matches of
// the same tournament for read endpoints.
type TournamentState struct {
	Bracket *models.Bracket `json:"bracket"`
	Matches []*models.Match `json:"matches"`
}

type BracketService interface {
	// GenerateBracket builds and persists the single-elimination bracket for
	// the tournament's registered teams. A tournament gets exactly one
	// bracket; re-generation fails with ErrBracketExists.
	GenerateBracket(ctx context.Context, tournamentID int) (*models.Bracket, error)

	// RecordResult completes the addressed slot and advances the winner into
	// the next round. Returns the updated bracket.
	RecordResult(ctx context.Context, tournamentID, roundNumber, matchIndex int, winnerName string) (*models.Bracket, error)

	GetBracket(ctx context.Context, tournamentID int) (*models.Bracket, error)

	// GetTournamentState fetches the bracket and the tournament's matches in
	// parallel.
	GetTournamentState(ctx context.Context, tournamentID int) (*TournamentState, error)
}

type bracketService struct {
	db        *sql.DB
	registry  repositories.TeamRegistry
	slotRepo  repositories.BracketSlotRepository
	matchRepo repositories.MatchRepository
	hub       *brackets.Hub
	logger    *slog.Logger
}

func NewBracketService(
	db *sql.DB,
	registry repositories.TeamRegistry,
	slotRepo repositories.BracketSlotRepository,
	matchRepo repositories.MatchRepository,
	hub *brackets.Hub,
	logger *slog.Logger,
) BracketService {
	return &bracketService{
		db:        db,
		registry:  registry,
		slotRepo:  slotRepo,
		matchRepo: matchRepo,
		hub:       hub,
		logger:    logger,
	}
}

func (s *bracketService) GenerateBracket(ctx context.Context, tournamentID int) (*models.Bracket, error) {
	teams, err := s.registry.ListByTournament(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("listing registered teams for tournament %d: %w", tournamentID, err)
	}

	bracket, err := brackets.BuildBracket(tournamentID, teams)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	if err := s.slotRepo.CreateBracket(ctx, tx, bracket); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("rollback failed after bracket create error",
				slog.Int("tournament_id", tournamentID), slog.Any("error", rbErr))
		}
		if errors.Is(err, repositories.ErrBracketExists) {
			return nil, ErrBracketExists
		}
		return nil, fmt.Errorf("persisting bracket for tournament %d: %w", tournamentID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing bracket for tournament %d: %w", tournamentID, err)
	}

	s.logger.Info("bracket generated",
		slog.Int("tournament_id", tournamentID),
		slog.Int("teams", len(teams)),
		slog.Int("rounds", len(bracket.Rounds)))

	if s.hub != nil {
		s.hub.BroadcastToTournament(tournamentID, brackets.Event{
			Type:         brackets.EventBracketGenerated,
			TournamentID: tournamentID,
			Payload:      bracket,
		})
	}
	return bracket, nil
}

func (s *bracketService) RecordResult(ctx context.Context, tournamentID, roundNumber, matchIndex int, winnerName string) (*models.Bracket, error) {
	bracket, err := s.GetBracket(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if roundNumber < 1 || roundNumber > len(bracket.Rounds) {
		return nil, fmt.Errorf("%w: round %d", brackets.ErrSlotNotFound, roundNumber)
	}
	if winnerName == "" || winnerName == models.TeamBye || winnerName == models.TeamTBD {
		return nil, fmt.Errorf("%w: %q", brackets.ErrWinnerNotInSlot, winnerName)
	}

	// Completion is a single conditional update on the slot row so that
	// concurrent submissions for the same slot cannot both apply. The update
	// also refuses slots still holding a TBD placeholder.
	updated, err := s.slotRepo.CompleteSlot(ctx, tournamentID, roundNumber, matchIndex, winnerName)
	if err != nil {
		return nil, fmt.Errorf("completing slot R%dM%d: %w", roundNumber, matchIndex+1, err)
	}
	if !updated {
		slot, getErr := s.slotRepo.GetSlot(ctx, tournamentID, roundNumber, matchIndex)
		if getErr != nil {
			if errors.Is(getErr, repositories.ErrSlotNotFound) {
				return nil, fmt.Errorf("%w: round %d, match index %d", brackets.ErrSlotNotFound, roundNumber, matchIndex)
			}
			return nil, getErr
		}
		if slot.Status == models.SlotCompleted {
			return nil, fmt.Errorf("%w: %s", brackets.ErrMatchAlreadyCompleted, slot.MatchID)
		}
		if slot.Team1 == models.TeamTBD || slot.Team2 == models.TeamTBD {
			return nil, fmt.Errorf("%w: %s", brackets.ErrSlotNotReady, slot.MatchID)
		}
		return nil, fmt.Errorf("%w: %q is not in %s", brackets.ErrWinnerNotInSlot, winnerName, slot.MatchID)
	}

	if roundNumber < len(bracket.Rounds) {
		// Even index feeds team1, odd feeds team2. Writing only that column
		// keeps two sibling results from clobbering each other's slot.
		teamSlot := 1
		if matchIndex%2 != 0 {
			teamSlot = 2
		}
		if err := s.slotRepo.SetSlotTeam(ctx, tournamentID, roundNumber+1, matchIndex/2, teamSlot, winnerName); err != nil {
			return nil, fmt.Errorf("advancing winner to round %d: %w", roundNumber+1, err)
		}
	}

	bracket, err = s.GetBracket(ctx, tournamentID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("result recorded",
		slog.Int("tournament_id", tournamentID),
		slog.Int("round", roundNumber),
		slog.Int("match_index", matchIndex),
		slog.String("winner", winnerName),
		slog.Bool("tournament_complete", bracket.IsComplete()))

	if s.hub != nil {
		s.hub.BroadcastToTournament(tournamentID, brackets.Event{
			Type:         brackets.EventBracketUpdated,
			TournamentID: tournamentID,
			Payload:      bracket,
		})
	}
	return bracket, nil
}

func (s *bracketService) GetBracket(ctx context.Context, tournamentID int) (*models.Bracket, error) {
	bracket, err := s.slotRepo.GetByTournament(ctx, tournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrBracketNotFound) {
			return nil, ErrBracketNotFound
		}
		return nil, fmt.Errorf("fetching bracket for tournament %d: %w", tournamentID, err)
	}
	return bracket, nil
}

func (s *bracketService) GetTournamentState(ctx context.Context, tournamentID int) (*TournamentState, error) {
	state := &TournamentState{}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		bracket, err := s.GetBracket(gCtx, tournamentID)
		if err != nil {
			return err
		}
		state.Bracket = bracket
		return nil
	})
	g.Go(func() error {
		matches, err := s.matchRepo.ListByTournament(gCtx, tournamentID)
		if err != nil {
			return fmt.Errorf("fetching matches for tournament %d: %w", tournamentID, err)
		}
		state.Matches = matches
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return state, nil
}
