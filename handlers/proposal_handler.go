package handlers

import (
	"errors"
	"net/http"

	"github.com/KhrulSergey/league-core/middleware"
	"github.com/KhrulSergey/league-core/models"
	"github.com/KhrulSergey/league-core/services"
)

type ProposalHandler struct {
	proposalService services.ProposalService
}

func NewProposalHandler(proposalService services.ProposalService) *ProposalHandler {
	return &ProposalHandler{proposalService: proposalService}
}

type addProposalInput struct {
	TeamID             int   `json:"team_id"`
	ParticipantUserIDs []int `json:"participant_user_ids"`
}

func (h *ProposalHandler) Add(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := urlParamInt(r, "id")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	var input addProposalInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.TeamID <= 0 {
		badRequestResponse(w, r, errors.New("team_id is required"))
		return
	}
	captainUserID := middleware.UserIDFromContext(r.Context())

	proposal, err := h.proposalService.AddProposal(r.Context(), tournamentID, input.TeamID, captainUserID, input.ParticipantUserIDs)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, jsonResponse{"proposal": proposal}, nil)
}

func (h *ProposalHandler) List(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := urlParamInt(r, "id")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	var states []models.ProposalState
	switch r.URL.Query().Get("state") {
	case "active":
		states = models.ActiveProposalStateList
	case "disabled":
		states = models.DisabledProposalStateList
	case "":
	default:
		states = []models.ProposalState{models.ProposalState(r.URL.Query().Get("state"))}
	}

	proposals, err := h.proposalService.ListProposals(r.Context(), tournamentID, states)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"proposals": proposals}, nil)
}

func (h *ProposalHandler) Get(w http.ResponseWriter, r *http.Request) {
	proposalID, err := urlParamInt(r, "proposalID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	proposal, err := h.proposalService.GetProposal(r.Context(), proposalID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"proposal": proposal}, nil)
}

func (h *ProposalHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	proposalID, err := urlParamInt(r, "proposalID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	userID := middleware.UserIDFromContext(r.Context())
	if err := h.proposalService.CheckInProposal(r.Context(), proposalID, userID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProposalHandler) Quit(w http.ResponseWriter, r *http.Request) {
	proposalID, err := urlParamInt(r, "proposalID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	withPenalty := r.URL.Query().Get("with_penalty") == "true"
	userID := middleware.UserIDFromContext(r.Context())

	if err := h.proposalService.QuitProposal(r.Context(), proposalID, userID, withPenalty); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProposalHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	proposalID, err := urlParamInt(r, "proposalID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if err := h.proposalService.CancelProposal(r.Context(), proposalID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProposalHandler) Reject(w http.ResponseWriter, r *http.Request) {
	proposalID, err := urlParamInt(r, "proposalID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if err := h.proposalService.RejectProposal(r.Context(), proposalID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
