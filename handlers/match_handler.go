package handlers

import (
	"net/http"
	"time"

	"github.com/arenagrid/match-engine/services"
)

type MatchHandler struct {
	matchService services.MatchService
	roomService  services.RoomService
	now          func() time.Time
}

func NewMatchHandler(matchService services.MatchService, roomService services.RoomService) *MatchHandler {
	return &MatchHandler{matchService: matchService, roomService: roomService, now: time.Now}
}

type scheduleRoundRequest struct {
	RoundNumber int       `json:"round_number"`
	StartTime   time.Time `json:"start_time"`
}

func (h *MatchHandler) ScheduleRoundHandler(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input scheduleRoundRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	matches, err := h.matchService.ScheduleRound(r.Context(), tournamentID, input.RoundNumber, input.StartTime)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"matches": matches}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MatchHandler) ListMatchesHandler(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	matches, err := h.matchService.ListByTournament(r.Context(), tournamentID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"matches": matches}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type completeMatchRequest struct {
	WinnerTeamID int `json:"winner_team_id"`
}

func (h *MatchHandler) CompleteMatchHandler(w http.ResponseWriter, r *http.Request) {
	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input completeMatchRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	match, err := h.matchService.CompleteMatch(r.Context(), matchID, input.WinnerTeamID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MatchHandler) PrepareRoomHandler(w http.ResponseWriter, r *http.Request) {
	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var opts services.PrepareRoomOptions
	if err := readJSON(w, r, &opts); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	result, err := h.roomService.PrepareMatchRoom(r.Context(), matchID, opts)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	if err := writeJSON(w, status, result, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetRoomHandler returns room credentials only inside their visibility
// window; outside it the credentials are withheld.
func (h *MatchHandler) GetRoomHandler(w http.ResponseWriter, r *http.Request) {
	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	match, err := h.matchService.GetMatch(r.Context(), matchID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if match.Room == nil {
		notFoundResponse(w, r)
		return
	}

	now := h.now()
	if !match.Room.VisibleNow(now) {
		response := jsonResponse{"visible": false}
		if now.Before(match.Room.VisibleAt) {
			response["visible_at"] = match.Room.VisibleAt
		}
		if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
			serverErrorResponse(w, r, err)
		}
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"visible": true, "room": match.Room}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MatchHandler) SweepExpiredRoomsHandler(w http.ResponseWriter, r *http.Request) {
	swept, err := h.roomService.SweepExpiredCredentials(r.Context())
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"swept": swept}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
