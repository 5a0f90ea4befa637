package models

// TournamentMatch — матч внутри серии, самый нижний источник статусов каскада.
type TournamentMatch struct {
	ID          int              `json:"id" db:"id"`
	SeriesID    int              `json:"series_id" db:"series_id"`
	MatchNumber int              `json:"match_number" db:"match_number"`
	Status      TournamentStatus `json:"status" db:"status"`
	HasNoWinner bool             `json:"has_no_winner" db:"has_no_winner"`

	WinnerRivalID *int `json:"winner_rival_id,omitempty" db:"winner_rival_id"`

	Rivals []*TournamentMatchRival `json:"rivals,omitempty" db:"-"`
}

// WinnerProposalID возвращает заявку-победителя матча или nil,
// если матч не имеет победителя.
func (m *TournamentMatch) WinnerProposalID() *int {
	if m.HasNoWinner || m.WinnerRivalID == nil {
		return nil
	}
	for _, r := range m.Rivals {
		if r.ID == *m.WinnerRivalID {
			id := r.ProposalID
			return &id
		}
	}
	return nil
}

// TournamentMatchRival — заявка, выставленная на конкретный матч.
// Состав изменяем до старта матча.
type TournamentMatchRival struct {
	ID         int              `json:"id" db:"id"`
	MatchID    int              `json:"match_id" db:"match_id"`
	ProposalID int              `json:"proposal_id" db:"proposal_id"`
	Status     TournamentStatus `json:"status" db:"status"`

	Participants []*TournamentMatchRivalParticipant `json:"participants,omitempty" db:"-"`
}

// TournamentMatchRivalParticipant — игрок, заявленный на матч за соперника.
type TournamentMatchRivalParticipant struct {
	ID                 int `json:"id" db:"id"`
	MatchRivalID       int `json:"match_rival_id" db:"match_rival_id"`
	TeamParticipantID  int `json:"team_participant_id" db:"team_participant_id"`
}
