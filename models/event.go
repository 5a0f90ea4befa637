package models

import "time"

// EventEntityType — уровень сущности, сменившей статус.
type EventEntityType string

const (
	EntityTournament EventEntityType = "TOURNAMENT"
	EntityRound      EventEntityType = "TOURNAMENT_ROUND"
	EntitySeries     EventEntityType = "TOURNAMENT_SERIES"
	EntityMatch      EventEntityType = "TOURNAMENT_MATCH"
	EntityProposal   EventEntityType = "TOURNAMENT_TEAM_PROPOSAL"
)

// StatusChangeEvent — уведомление о смене статуса. Доставка best-effort,
// at-most-once: локальное состояние от неё не зависит.
type StatusChangeEvent struct {
	EntityType   EventEntityType `json:"entity_type"`
	EntityID     int             `json:"entity_id"`
	TournamentID int             `json:"tournament_id"`
	NewStatus    string          `json:"new_status"`
	OccurredAt   time.Time       `json:"occurred_at"`
}
