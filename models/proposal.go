package models

import "time"

// ProposalState — жизненный цикл командной заявки на участие.
type ProposalState string

const (
	ProposalCreated   ProposalState = "CREATED"
	ProposalApproved  ProposalState = "APPROVE"
	ProposalCancelled ProposalState = "CANCELLED"
	ProposalQuit      ProposalState = "QUIT"
	ProposalRejected  ProposalState = "REJECTED"
)

// Активные и отключённые состояния не пересекаются и покрывают
// все достижимые состояния заявки.
var (
	ActiveProposalStateList = []ProposalState{
		ProposalCreated, ProposalApproved,
	}
	DisabledProposalStateList = []ProposalState{
		ProposalCancelled, ProposalQuit, ProposalRejected,
	}
)

func proposalStateIn(state ProposalState, list []ProposalState) bool {
	for _, s := range list {
		if s == state {
			return true
		}
	}
	return false
}

func (s ProposalState) IsActive() bool   { return proposalStateIn(s, ActiveProposalStateList) }
func (s ProposalState) IsDisabled() bool { return proposalStateIn(s, DisabledProposalStateList) }

// TournamentTeamProposal — заявка команды (или виртуальной команды
// одиночного игрока) на участие в турнире. Отмена терминальна:
// CANCELLED/QUIT назад не открываются.
type TournamentTeamProposal struct {
	ID            int           `json:"id" db:"id"`
	TournamentID  int           `json:"tournament_id" db:"tournament_id"`
	TeamID        int           `json:"team_id" db:"team_id"`
	CaptainUserID int           `json:"captain_user_id" db:"captain_user_id"`
	State         ProposalState `json:"state" db:"state"`
	PrevState     *ProposalState `json:"prev_state,omitempty" db:"prev_state"`

	// Confirmed — пройден ли check-in.
	Confirmed bool `json:"confirmed" db:"confirmed"`

	// ParticipationFee фиксируется на момент подачи заявки и не пересчитывается
	// при последующих изменениях состава.
	ParticipationFee float64 `json:"participation_fee" db:"participation_fee"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`

	Participants []*TournamentTeamParticipant `json:"participants,omitempty" db:"-"`
	Transactions []*AccountTransaction        `json:"transactions,omitempty" db:"-"`
}

// TournamentTeamParticipant — игрок в составе заявки.
type TournamentTeamParticipant struct {
	ID         int `json:"id" db:"id"`
	ProposalID int `json:"proposal_id" db:"proposal_id"`
	UserID     int `json:"user_id" db:"user_id"`
}
