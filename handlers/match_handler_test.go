package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/arenagrid/match-engine/models"
	"github.com/arenagrid/match-engine/services"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMatchService struct {
	match *models.Match
}

func (s *stubMatchService) ScheduleRound(ctx context.Context, tournamentID, roundNumber int, startTime time.Time) ([]*models.Match, error) {
	return nil, nil
}

func (s *stubMatchService) CompleteMatch(ctx context.Context, matchID, winnerTeamID int) (*models.Match, error) {
	return nil, nil
}

func (s *stubMatchService) GetMatch(ctx context.Context, matchID int) (*models.Match, error) {
	if s.match == nil || s.match.ID != matchID {
		return nil, services.ErrMatchNotFound
	}
	return s.match, nil
}

func (s *stubMatchService) ListByTournament(ctx context.Context, tournamentID int) ([]*models.Match, error) {
	return nil, nil
}

func roomRequest(t *testing.T, matchID string) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, "/tournaments/1/matches/"+matchID+"/room", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("matchID", matchID)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestGetRoomHandlerVisibilityWindow(t *testing.T) {
	visibleAt := time.Date(2026, time.April, 1, 18, 55, 0, 0, time.UTC)
	expiresAt := time.Date(2026, time.April, 2, 1, 0, 0, 0, time.UTC)

	match := &models.Match{
		ID:           7,
		TournamentID: 1,
		StartTime:    time.Date(2026, time.April, 1, 19, 0, 0, 0, time.UTC),
		Status:       models.MatchStatusScheduled,
		Room: &models.RoomCredentials{
			RoomID:    "K7M2XQ",
			Password:  "wqhxkbtm",
			VisibleAt: visibleAt,
			ExpiresAt: expiresAt,
		},
	}

	testCases := []struct {
		name          string
		now           time.Time
		wantVisible   bool
		wantVisibleAt bool
	}{
		{"before window", visibleAt.Add(-time.Minute), false, true},
		{"at visible_at", visibleAt, true, false},
		{"inside window", match.StartTime.Add(30 * time.Minute), true, false},
		{"just before expiry", expiresAt.Add(-time.Second), true, false},
		{"at expiry", expiresAt, false, false},
		{"after expiry", expiresAt.Add(time.Hour), false, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewMatchHandler(&stubMatchService{match: match}, nil)
			h.now = func() time.Time { return tc.now }

			rec := httptest.NewRecorder()
			h.GetRoomHandler(rec, roomRequest(t, "7"))
			require.Equal(t, http.StatusOK, rec.Code)

			body := decodeBody(t, rec)
			assert.Equal(t, tc.wantVisible, body["visible"])
			if tc.wantVisible {
				room, ok := body["room"].(map[string]interface{})
				require.True(t, ok, "visible response must carry the room")
				assert.Equal(t, "K7M2XQ", room["room_id"])
				assert.Equal(t, "wqhxkbtm", room["password"])
			} else {
				assert.NotContains(t, body, "room", "hidden response must not leak credentials")
			}
			if tc.wantVisibleAt {
				assert.Equal(t, visibleAt.Format(time.RFC3339), body["visible_at"])
			} else {
				assert.NotContains(t, body, "visible_at")
			}
		})
	}
}

func TestGetRoomHandlerWithoutCredentials(t *testing.T) {
	match := &models.Match{ID: 7, TournamentID: 1, Status: models.MatchStatusScheduled}
	h := NewMatchHandler(&stubMatchService{match: match}, nil)

	rec := httptest.NewRecorder()
	h.GetRoomHandler(rec, roomRequest(t, "7"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetRoomHandlerUnknownMatch(t *testing.T) {
	h := NewMatchHandler(&stubMatchService{}, nil)

	rec := httptest.NewRecorder()
	h.GetRoomHandler(rec, roomRequest(t, "99"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
