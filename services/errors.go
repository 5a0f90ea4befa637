package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Общие ошибки, используемые в разных сервисах и маппинге HTTP.
var (
	ErrNotFound = errors.New("requested resource not found")

	// Ошибки валидации и бизнес-правил
	ErrValidationFailed    = errors.New("validation failed")
	ErrRegistrationNotOpen = errors.New("tournament registration is not open")
	ErrCheckInWindowClosed = errors.New("check-in window is closed for this tournament")
	ErrUserMustBeCaptain   = errors.New("only the team captain can manage the proposal")

	ErrProposalAlreadyRegistered = errors.New("team already has an active proposal for this tournament")
	ErrProposalAlreadyDisabled   = errors.New("proposal is already cancelled, quit or rejected")
	ErrProposalNotActive         = errors.New("proposal is not in an active state")

	ErrSeriesDeleted             = errors.New("series is deleted and cannot be edited")
	ErrSeriesWinnerUndetermined  = errors.New("series winner cannot be determined while matches are unfinished")
	ErrMatchAlreadyStarted       = errors.New("match roster is locked after the match has started")
	ErrMatchAlreadyFinished      = errors.New("match is already finished")
	ErrWinnerRivalUnknown        = errors.New("winner rival does not belong to the match")
	ErrInvalidStatusTransition   = errors.New("invalid status transition")
	ErrTournamentWinnerUndefined = errors.New("tournament winner cannot be defined from the last round")

	// Явная точка расширения: штраф за выход пока не реализован
	// и обязан падать громко, а не молча пропускаться.
	ErrPenaltyNotSupported = errors.New("quit penalty is not implemented")

	// Фатальные ошибки нижележащих коллабораторов, для клиента — "internal".
	ErrPaymentFailed = errors.New("participation fee payment failed")
	ErrRefundFailed  = errors.New("participation fee refund failed")
)

// ValidationError перечисляет поля, не прошедшие проверку,
// до любых побочных эффектов и записи в БД.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string]string)}
}

func (e *ValidationError) Add(field, problem string) {
	e.Fields[field] = problem
}

func (e *ValidationError) HasErrors() bool {
	return len(e.Fields) > 0
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		names = append(names, field)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("validation failed:")
	for _, field := range names {
		fmt.Fprintf(&b, " %s (%s);", field, e.Fields[field])
	}
	return strings.TrimSuffix(b.String(), ";")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}
