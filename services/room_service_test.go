package services

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/arenagrid/match-engine/models"
	"github.com/arenagrid/match-engine/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMatchRepo is an in-memory MatchRepository for exercising the allocator
// without Postgres. writeConflicts simulates a unique-index violation at
// write time to cover the check-then-act race.
type fakeMatchRepo struct {
	matches        map[int]*models.Match
	allInUse       bool
	writeConflicts int
}

func newFakeMatchRepo(matches ...*models.Match) *fakeMatchRepo {
	repo := &fakeMatchRepo{matches: make(map[int]*models.Match)}
	for _, m := range matches {
		repo.matches[m.ID] = m
	}
	return repo
}

func (f *fakeMatchRepo) Create(ctx context.Context, match *models.Match) error {
	for _, m := range f.matches {
		if m.TournamentID == match.TournamentID && m.Round == match.Round && m.SlotIndex == match.SlotIndex {
			return repositories.ErrMatchSlotTaken
		}
	}
	match.ID = len(f.matches) + 1
	f.matches[match.ID] = match
	return nil
}

func (f *fakeMatchRepo) GetByID(ctx context.Context, id int) (*models.Match, error) {
	match, ok := f.matches[id]
	if !ok {
		return nil, repositories.ErrMatchNotFound
	}
	copied := *match
	if match.Room != nil {
		room := *match.Room
		copied.Room = &room
	}
	return &copied, nil
}

func (f *fakeMatchRepo) ListByTournament(ctx context.Context, tournamentID int) ([]*models.Match, error) {
	matches := make([]*models.Match, 0)
	for _, m := range f.matches {
		if m.TournamentID == tournamentID {
			matches = append(matches, m)
		}
	}
	return matches, nil
}

func (f *fakeMatchRepo) RoomIDInUse(ctx context.Context, roomID string, excludeMatchID int) (bool, error) {
	if f.allInUse {
		return true, nil
	}
	for id, m := range f.matches {
		if id != excludeMatchID && m.Room != nil && m.Room.RoomID == roomID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeMatchRepo) SetRoomCredentials(ctx context.Context, matchID int, creds *models.RoomCredentials) error {
	if f.writeConflicts > 0 {
		f.writeConflicts--
		return repositories.ErrRoomIDConflict
	}
	match, ok := f.matches[matchID]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	for id, m := range f.matches {
		if id != matchID && m.Room != nil && m.Room.RoomID == creds.RoomID {
			return repositories.ErrRoomIDConflict
		}
	}
	room := *creds
	match.Room = &room
	return nil
}

func (f *fakeMatchRepo) CompleteMatch(ctx context.Context, matchID, winnerTeamID int) (bool, error) {
	match, ok := f.matches[matchID]
	if !ok || match.Status == models.MatchStatusCompleted {
		return false, nil
	}
	match.Status = models.MatchStatusCompleted
	match.WinnerTeamID = &winnerTeamID
	return true, nil
}

func (f *fakeMatchRepo) DeleteExpiredCredentials(ctx context.Context) (int64, error) {
	var swept int64
	for _, m := range f.matches {
		if m.Room != nil && !m.Room.ExpiresAt.After(time.Now()) {
			m.Room = nil
			swept++
		}
	}
	return swept, nil
}

var testStart = time.Date(2026, time.March, 14, 18, 0, 0, 0, time.UTC)

func newTestRoomService(repo repositories.MatchRepository, now time.Time) RoomService {
	return NewRoomService(repo, RoomServiceConfig{
		Rand: rand.New(rand.NewSource(42)),
		Now:  func() time.Time { return now },
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func scheduledMatch(id int) *models.Match {
	return &models.Match{
		ID:           id,
		TournamentID: 1,
		Team1ID:      10,
		Team2ID:      20,
		Round:        1,
		SlotIndex:    0,
		StartTime:    testStart,
		Status:       models.MatchStatusScheduled,
	}
}

func TestEnsureUniqueRoomIDGeneratesDistinctCodes(t *testing.T) {
	svc := newTestRoomService(newFakeMatchRepo(), testStart)

	seen := make(map[string]bool, 1000)
	for i := 0; i < 1000; i++ {
		roomID, err := svc.EnsureUniqueRoomID(context.Background(), "", 0)
		require.NoError(t, err)
		require.Len(t, roomID, 6)
		for _, ch := range roomID {
			assert.Contains(t, roomIDAlphabet, string(ch))
		}
		assert.False(t, seen[roomID], "duplicate code %q at draw %d", roomID, i)
		seen[roomID] = true
	}
}

func TestEnsureUniqueRoomIDCandidate(t *testing.T) {
	taken := scheduledMatch(1)
	taken.Room = &models.RoomCredentials{RoomID: "AAAAAA", Password: "secretpw"}
	repo := newFakeMatchRepo(taken, scheduledMatch(2))
	svc := newTestRoomService(repo, testStart)

	t.Run("normalizes and accepts a free candidate", func(t *testing.T) {
		roomID, err := svc.EnsureUniqueRoomID(context.Background(), "  ab2cd3 ", 2)
		require.NoError(t, err)
		assert.Equal(t, "AB2CD3", roomID)
	})

	t.Run("rejects a candidate held by another match", func(t *testing.T) {
		_, err := svc.EnsureUniqueRoomID(context.Background(), "aaaaaa", 2)
		assert.ErrorIs(t, err, ErrRoomIDTaken)
	})

	t.Run("excludes the match's own id when re-issuing", func(t *testing.T) {
		roomID, err := svc.EnsureUniqueRoomID(context.Background(), "AAAAAA", 1)
		require.NoError(t, err)
		assert.Equal(t, "AAAAAA", roomID)
	})
}

func TestEnsureUniqueRoomIDExhaustsAttempts(t *testing.T) {
	repo := newFakeMatchRepo()
	repo.allInUse = true
	svc := newTestRoomService(repo, testStart)

	_, err := svc.EnsureUniqueRoomID(context.Background(), "", 0)
	assert.ErrorIs(t, err, ErrRoomIDGenerationExhausted)
}

func TestPrepareMatchRoomIsIdempotent(t *testing.T) {
	repo := newFakeMatchRepo(scheduledMatch(1))
	svc := newTestRoomService(repo, testStart)

	first, err := svc.PrepareMatchRoom(context.Background(), 1, PrepareRoomOptions{})
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.False(t, first.Updated)
	require.NotNil(t, first.Match.Room)
	assert.Len(t, first.Match.Room.RoomID, 6)
	assert.Len(t, first.Match.Room.Password, 8)
	assert.Equal(t, strings.ToLower(first.Match.Room.Password), first.Match.Room.Password)

	second, err := svc.PrepareMatchRoom(context.Background(), 1, PrepareRoomOptions{})
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.False(t, second.Updated)
	assert.Equal(t, first.Match.Room, second.Match.Room, "credentials must survive re-invocation unchanged")
}

func TestPrepareMatchRoomForceReissues(t *testing.T) {
	repo := newFakeMatchRepo(scheduledMatch(1))
	svc := newTestRoomService(repo, testStart)

	first, err := svc.PrepareMatchRoom(context.Background(), 1, PrepareRoomOptions{})
	require.NoError(t, err)

	second, err := svc.PrepareMatchRoom(context.Background(), 1, PrepareRoomOptions{Force: true})
	require.NoError(t, err)
	assert.True(t, second.Created)
	assert.True(t, second.Updated)
	assert.NotEqual(t, first.Match.Room.RoomID, second.Match.Room.RoomID)
	assert.NotEqual(t, first.Match.Room.Password, second.Match.Room.Password)
}

func TestPrepareMatchRoomWindowDefaults(t *testing.T) {
	repo := newFakeMatchRepo(scheduledMatch(1))
	now := testStart.Add(-time.Hour)
	svc := newTestRoomService(repo, now)

	result, err := svc.PrepareMatchRoom(context.Background(), 1, PrepareRoomOptions{})
	require.NoError(t, err)

	room := result.Match.Room
	assert.Equal(t, testStart.Add(-5*time.Minute), room.VisibleAt)
	assert.Equal(t, testStart.Add(6*time.Hour), room.ExpiresAt)
	assert.Equal(t, now, room.GeneratedAt)
}

func TestPrepareMatchRoomOperatorOverrides(t *testing.T) {
	repo := newFakeMatchRepo(scheduledMatch(1))
	svc := newTestRoomService(repo, testStart)

	result, err := svc.PrepareMatchRoom(context.Background(), 1, PrepareRoomOptions{
		RoomID:   "scrim7",
		Password: "letmein1",
	})
	require.NoError(t, err)
	assert.Equal(t, "SCRIM7", result.Match.Room.RoomID)
	assert.Equal(t, "letmein1", result.Match.Room.Password)
}

func TestPrepareMatchRoomOperatorCandidateTaken(t *testing.T) {
	holder := scheduledMatch(1)
	holder.Room = &models.RoomCredentials{RoomID: "SCRIM7", Password: "secretpw"}
	repo := newFakeMatchRepo(holder, scheduledMatch(2))
	svc := newTestRoomService(repo, testStart)

	_, err := svc.PrepareMatchRoom(context.Background(), 2, PrepareRoomOptions{RoomID: "SCRIM7"})
	assert.ErrorIs(t, err, ErrRoomIDTaken)
}

func TestPrepareMatchRoomRetriesLateCollision(t *testing.T) {
	repo := newFakeMatchRepo(scheduledMatch(1))
	repo.writeConflicts = 2
	svc := newTestRoomService(repo, testStart)

	result, err := svc.PrepareMatchRoom(context.Background(), 1, PrepareRoomOptions{})
	require.NoError(t, err)
	assert.True(t, result.Created)
	require.NotNil(t, result.Match.Room)
}

func TestPrepareMatchRoomUnknownMatch(t *testing.T) {
	svc := newTestRoomService(newFakeMatchRepo(), testStart)

	_, err := svc.PrepareMatchRoom(context.Background(), 99, PrepareRoomOptions{})
	assert.ErrorIs(t, err, ErrMatchNotFound)
}

func TestSweepExpiredCredentials(t *testing.T) {
	expired := scheduledMatch(1)
	expired.Room = &models.RoomCredentials{
		RoomID:    "EXPIRD",
		Password:  "secretpw",
		VisibleAt: time.Now().Add(-8 * time.Hour),
		ExpiresAt: time.Now().Add(-time.Hour),
	}
	live := scheduledMatch(2)
	live.Room = &models.RoomCredentials{
		RoomID:    "LIVENW",
		Password:  "secretpw",
		VisibleAt: time.Now().Add(-time.Minute),
		ExpiresAt: time.Now().Add(6 * time.Hour),
	}
	repo := newFakeMatchRepo(expired, live)
	svc := newTestRoomService(repo, time.Now())

	swept, err := svc.SweepExpiredCredentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), swept)

	remaining, err := repo.GetByID(context.Background(), 2)
	require.NoError(t, err)
	assert.NotNil(t, remaining.Room)
}
