package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/KhrulSergey/league-core/middleware"
	"github.com/KhrulSergey/league-core/models"
	"github.com/KhrulSergey/league-core/repositories"
	"github.com/KhrulSergey/league-core/services"
)

type TournamentHandler struct {
	tournamentService services.TournamentService
}

func NewTournamentHandler(tournamentService services.TournamentService) *TournamentHandler {
	return &TournamentHandler{tournamentService: tournamentService}
}

type tournamentInput struct {
	Name             string                       `json:"name"`
	DisciplineID     int                          `json:"discipline_id"`
	SystemType       models.TournamentSystemType  `json:"system_type"`
	AccessType       models.TournamentAccessType  `json:"access_type"`
	SignUpStartDate  time.Time                    `json:"sign_up_start_date"`
	SignUpEndDate    time.Time                    `json:"sign_up_end_date"`
	PlannedStartDate time.Time                    `json:"planned_start_date"`
	IsAutoStart      bool                         `json:"is_auto_start"`
	OrganizerIDs     []int                        `json:"organizer_ids"`
	Settings         *models.TournamentSettings   `json:"settings"`
}

func (in *tournamentInput) toModel() *models.Tournament {
	return &models.Tournament{
		Name:             in.Name,
		DisciplineID:     in.DisciplineID,
		SystemType:       in.SystemType,
		AccessType:       in.AccessType,
		SignUpStartDate:  in.SignUpStartDate,
		SignUpEndDate:    in.SignUpEndDate,
		PlannedStartDate: in.PlannedStartDate,
		IsAutoStart:      in.IsAutoStart,
		OrganizerIDs:     in.OrganizerIDs,
		Settings:         in.Settings,
	}
}

func (h *TournamentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input tournamentInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	tournament := input.toModel()
	tournament.CreatedByID = middleware.UserIDFromContext(r.Context())

	created, err := h.tournamentService.CreateTournament(r.Context(), tournament)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, jsonResponse{"tournament": created}, nil)
}

func (h *TournamentHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repositories.ListTournamentsFilter{
		Limit:  toInt(q.Get("limit"), 20),
		Offset: toInt(q.Get("offset"), 0),
	}
	if disciplineID := toInt(q.Get("discipline_id"), 0); disciplineID > 0 {
		filter.DisciplineID = &disciplineID
	}
	if createdBy := toInt(q.Get("created_by_id"), 0); createdBy > 0 {
		filter.CreatedByID = &createdBy
	}
	if status := q.Get("status"); status != "" {
		s := models.TournamentStatus(status)
		filter.Status = &s
	}

	tournaments, err := h.tournamentService.ListTournaments(r.Context(), filter)
	if err != nil {
		serverErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"tournaments": tournaments}, nil)
}

func (h *TournamentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "id")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	full := r.URL.Query().Get("full") == "true"

	var tournament *models.Tournament
	if full {
		tournament, err = h.tournamentService.GetFullTournament(r.Context(), id)
	} else {
		tournament, err = h.tournamentService.GetTournament(r.Context(), id)
	}
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"tournament": tournament}, nil)
}

func (h *TournamentHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "id")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	var input tournamentInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	tournament := input.toModel()
	tournament.ID = id
	tournament.CreatedByID = middleware.UserIDFromContext(r.Context())

	updated, err := h.tournamentService.EditTournament(r.Context(), tournament)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"tournament": updated}, nil)
}

func (h *TournamentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "id")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if err := h.tournamentService.DeleteTournament(r.Context(), id); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type changeStatusInput struct {
	Status models.TournamentStatus `json:"status"`
	Forced bool                    `json:"forced"`
}

func (h *TournamentHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "id")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	var input changeStatusInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.Status == "" {
		badRequestResponse(w, r, errors.New("status is required"))
		return
	}

	tournament, err := h.tournamentService.ChangeTournamentStatus(r.Context(), id, input.Status, input.Forced)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"tournament": tournament}, nil)
}

func (h *TournamentHandler) InitiateBrackets(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt(r, "id")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	tournament, err := h.tournamentService.InitiateBrackets(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, jsonResponse{"tournament": tournament}, nil)
}

func toInt(s string, def int) int {
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	return def
}
