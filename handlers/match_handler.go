package handlers

import (
	"errors"
	"net/http"

	"github.com/KhrulSergey/league-core/models"
	"github.com/KhrulSergey/league-core/services"
)

type MatchHandler struct {
	matchService      services.MatchService
	seriesService     services.SeriesService
	tournamentService services.TournamentService
}

func NewMatchHandler(matchService services.MatchService, seriesService services.SeriesService, tournamentService services.TournamentService) *MatchHandler {
	return &MatchHandler{
		matchService:      matchService,
		seriesService:     seriesService,
		tournamentService: tournamentService,
	}
}

func (h *MatchHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "id")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	match, err := h.matchService.GetMatch(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil)
}

type matchResultInput struct {
	WinnerRivalID *int `json:"winner_rival_id"`
	HasNoWinner   bool `json:"has_no_winner"`
}

// SetResult фиксирует исход матча. Ответ приходит уже после каскадной
// обработки: серия и раунд могли закрыться этим же запросом.
func (h *MatchHandler) SetResult(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "id")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	var input matchResultInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.WinnerRivalID == nil && !input.HasNoWinner {
		badRequestResponse(w, r, errors.New("either winner_rival_id or has_no_winner must be set"))
		return
	}

	match, err := h.matchService.SetMatchResult(r.Context(), id, input.WinnerRivalID, input.HasNoWinner)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil)
}

type matchStatusInput struct {
	Status models.TournamentStatus `json:"status"`
}

func (h *MatchHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "id")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	var input matchStatusInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	match, err := h.matchService.ChangeMatchStatus(r.Context(), id, input.Status)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil)
}

type matchLineupInput struct {
	MatchRivalID       int   `json:"match_rival_id"`
	TeamParticipantIDs []int `json:"team_participant_ids"`
}

func (h *MatchHandler) EditLineup(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "id")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	var input matchLineupInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if err := h.matchService.EditMatchRivalParticipants(r.Context(), id, input.MatchRivalID, input.TeamParticipantIDs); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MatchHandler) GetSeries(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "id")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	series, err := h.seriesService.GetSeries(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"series": series}, nil)
}

type omtInput struct {
	TournamentID int `json:"tournament_id"`
}

// GenerateOmt добавляет серии дополнительный матч для разрешения ничьей.
func (h *MatchHandler) GenerateOmt(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "id")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	var input omtInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	tournament, err := h.tournamentService.GetTournament(r.Context(), input.TournamentID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	match, err := h.seriesService.GenerateOmtForSeries(r.Context(), tournament, id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, jsonResponse{"match": match}, nil)
}

type seriesStatusInput struct {
	Status        models.TournamentStatus `json:"status"`
	WinnerRivalID *int                    `json:"winner_rival_id"`
	HasNoWinner   bool                    `json:"has_no_winner"`
}

func (h *MatchHandler) ChangeSeriesStatus(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "id")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	var input seriesStatusInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	series, err := h.seriesService.ChangeSeriesStatus(r.Context(), id, input.Status, input.WinnerRivalID, input.HasNoWinner)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"series": series}, nil)
}
