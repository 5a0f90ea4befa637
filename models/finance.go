package models

// AccountHolderType — тип владельца финансового счёта.
type AccountHolderType string

const (
	HolderUser       AccountHolderType = "USER"
	HolderTeam       AccountHolderType = "TEAM"
	HolderTournament AccountHolderType = "TOURNAMENT"
)

// Account — счёт во внешней финансовой подсистеме.
type Account struct {
	GUID       string            `json:"guid"`
	HolderID   int               `json:"holder_id"`
	HolderType AccountHolderType `json:"holder_type"`
	Name       string            `json:"name,omitempty"`
	Amount     float64           `json:"amount"`
}

// TransactionStatus — состояние финансовой транзакции.
type TransactionStatus string

const (
	TransactionFinished TransactionStatus = "FINISHED"
	TransactionAborted  TransactionStatus = "ABORTED"
)

// TransactionTemplateType различает назначение списания.
type TransactionTemplateType string

const (
	TemplateParticipationFee TransactionTemplateType = "TOURNAMENT_ENTRANCE_FEE"
	TemplateCommissionFee    TransactionTemplateType = "TOURNAMENT_COMMISSION_FEE"
)

// AccountTransaction — перевод между счетами. Суммы всегда положительные.
type AccountTransaction struct {
	ID         int                     `json:"id" db:"id"`
	GUID       string                  `json:"guid" db:"guid"`
	ProposalID int                     `json:"proposal_id" db:"proposal_id"`
	SourceGUID string                  `json:"source_guid" db:"source_guid"`
	TargetGUID string                  `json:"target_guid" db:"target_guid"`
	Amount     float64                 `json:"amount" db:"amount"`
	Template   TransactionTemplateType `json:"template" db:"template"`
	Status     TransactionStatus       `json:"status" db:"status"`
}
