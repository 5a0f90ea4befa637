package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/KhrulSergey/league-core/brackets"
	"github.com/KhrulSergey/league-core/clients"
	"github.com/KhrulSergey/league-core/finance"
	"github.com/KhrulSergey/league-core/repositories"
	"github.com/KhrulSergey/league-core/services"
)

type jsonResponse map[string]interface{}

func readJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	maxBytes := 1_048_576 // 1MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil {
		var syntaxError *json.SyntaxError
		var unmarshalTypeError *json.UnmarshalTypeError
		var invalidUnmarshalError *json.InvalidUnmarshalError

		switch {
		case errors.As(err, &syntaxError):
			return fmt.Errorf("body contains badly-formed JSON (at character %d)", syntaxError.Offset)
		case errors.Is(err, io.ErrUnexpectedEOF):
			return errors.New("body contains badly-formed JSON")
		case errors.As(err, &unmarshalTypeError):
			if unmarshalTypeError.Field != "" {
				return fmt.Errorf("body contains incorrect JSON type for field %q", unmarshalTypeError.Field)
			}
			return fmt.Errorf("body contains incorrect JSON type (at character %d)", unmarshalTypeError.Offset)
		case errors.Is(err, io.EOF):
			return errors.New("body must not be empty")
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			fieldName := strings.TrimPrefix(err.Error(), "json: unknown field ")
			return fmt.Errorf("body contains unknown key %s", fieldName)
		case err.Error() == "http: request body too large":
			return fmt.Errorf("body must not be larger than %d bytes", maxBytes)
		case errors.As(err, &invalidUnmarshalError):
			panic(err) // Ошибка программиста: передан не указатель
		default:
			return err
		}
	}

	err = dec.Decode(&struct{}{})
	if !errors.Is(err, io.EOF) {
		return errors.New("body must only contain a single JSON value")
	}

	return nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}, headers http.Header) error {
	js, err := json.MarshalIndent(data, "", "\t")
	if err != nil {
		return err
	}
	js = append(js, '\n')

	for key, value := range headers {
		w.Header()[key] = value
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(js)
	return err
}

func errorResponse(w http.ResponseWriter, r *http.Request, status int, message interface{}) {
	env := jsonResponse{"error": message}
	if err := writeJSON(w, status, env, nil); err != nil {
		slog.Error("failed to write error response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("internal server error", "method", r.Method, "path", r.URL.Path, "error", err)
	errorResponse(w, r, http.StatusInternalServerError, "the server encountered a problem and could not process your request")
}

func badRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	errorResponse(w, r, http.StatusBadRequest, err.Error())
}

func notFoundResponse(w http.ResponseWriter, r *http.Request, message string) {
	if message == "" {
		message = "the requested resource could not be found"
	}
	errorResponse(w, r, http.StatusNotFound, message)
}

func conflictResponse(w http.ResponseWriter, r *http.Request, message string) {
	errorResponse(w, r, http.StatusConflict, message)
}

func forbiddenResponse(w http.ResponseWriter, r *http.Request, message string) {
	errorResponse(w, r, http.StatusForbidden, message)
}

func failedValidationResponse(w http.ResponseWriter, r *http.Request, fields map[string]string) {
	errorResponse(w, r, http.StatusUnprocessableEntity, fields)
}

// mapServiceErrorToHTTP преобразует ошибки сервисного слоя в HTTP-ответы.
func mapServiceErrorToHTTP(w http.ResponseWriter, r *http.Request, err error) {
	var validation *services.ValidationError
	if errors.As(err, &validation) {
		failedValidationResponse(w, r, validation.Fields)
		return
	}

	switch {
	case errors.Is(err, services.ErrNotFound),
		errors.Is(err, repositories.ErrTournamentNotFound),
		errors.Is(err, repositories.ErrRoundNotFound),
		errors.Is(err, repositories.ErrSeriesNotFound),
		errors.Is(err, repositories.ErrMatchNotFound),
		errors.Is(err, repositories.ErrProposalNotFound),
		errors.Is(err, clients.ErrUserNotFound),
		errors.Is(err, clients.ErrTeamNotFound):
		notFoundResponse(w, r, err.Error())

	case errors.Is(err, repositories.ErrTournamentNameConflict),
		errors.Is(err, repositories.ErrProposalConflict),
		errors.Is(err, repositories.ErrProposalStateConflict),
		errors.Is(err, services.ErrProposalAlreadyRegistered),
		errors.Is(err, services.ErrProposalAlreadyDisabled):
		conflictResponse(w, r, err.Error())

	case errors.Is(err, services.ErrUserMustBeCaptain):
		forbiddenResponse(w, r, err.Error())

	case errors.Is(err, services.ErrValidationFailed),
		errors.Is(err, services.ErrRegistrationNotOpen),
		errors.Is(err, services.ErrCheckInWindowClosed),
		errors.Is(err, services.ErrProposalNotActive),
		errors.Is(err, services.ErrSeriesDeleted),
		errors.Is(err, services.ErrSeriesWinnerUndetermined),
		errors.Is(err, services.ErrMatchAlreadyStarted),
		errors.Is(err, services.ErrMatchAlreadyFinished),
		errors.Is(err, services.ErrWinnerRivalUnknown),
		errors.Is(err, services.ErrInvalidStatusTransition),
		errors.Is(err, services.ErrPenaltyNotSupported),
		errors.Is(err, brackets.ErrNotEnoughRivals),
		errors.Is(err, brackets.ErrIncompatibleRivalCount),
		errors.Is(err, brackets.ErrRoundsAlreadyExist),
		errors.Is(err, brackets.ErrTournamentNotActive),
		errors.Is(err, brackets.ErrPreviousRoundNotFinished),
		errors.Is(err, brackets.ErrLastRoundReached):
		badRequestResponse(w, r, err)

	case errors.Is(err, finance.ErrTransactionRejected):
		errorResponse(w, r, http.StatusPaymentRequired, err.Error())

	default:
		serverErrorResponse(w, r, err)
	}
}

func urlParamInt(r *http.Request, name string) (int, error) {
	value, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("invalid %s parameter", name)
	}
	return value, nil
}
