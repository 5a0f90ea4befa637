package models

import "time"

// TournamentStatus — единый словарь статусов для турнира, раунда, серии и матча.
// Соответствует ENUM в БД.
type TournamentStatus string

const (
	StatusCreated    TournamentStatus = "CREATED"
	StatusSignUp     TournamentStatus = "SIGN_UP"
	StatusAdjustment TournamentStatus = "ADJUSTMENT"
	StatusStarted    TournamentStatus = "STARTED"
	StatusPaused     TournamentStatus = "PAUSE"
	StatusFinished   TournamentStatus = "FINISHED"
	StatusCancelled  TournamentStatus = "CANCELLED"
	StatusAborted    TournamentStatus = "ABORTED"
	StatusDeleted    TournamentStatus = "DELETED"
)

// Классификационные наборы статусов. Вычислены один раз,
// каскадная логика всегда обращается сюда, а не выводит заново.
var (
	ActiveStatusList = []TournamentStatus{
		StatusCreated, StatusSignUp, StatusAdjustment, StatusStarted,
	}
	FinishedStatusList = []TournamentStatus{
		StatusFinished,
	}
	CanceledStatusList = []TournamentStatus{
		StatusCancelled, StatusAborted, StatusDeleted,
	}
	// CheckInStatusList — окна, в которых разрешены check-in и выход из турнира.
	CheckInStatusList = []TournamentStatus{
		StatusSignUp, StatusAdjustment,
	}
)

func statusIn(status TournamentStatus, list []TournamentStatus) bool {
	for _, s := range list {
		if s == status {
			return true
		}
	}
	return false
}

func (s TournamentStatus) IsActive() bool   { return statusIn(s, ActiveStatusList) }
func (s TournamentStatus) IsFinished() bool { return statusIn(s, FinishedStatusList) }
func (s TournamentStatus) IsCanceled() bool { return statusIn(s, CanceledStatusList) }

var mainBranchOrder = map[TournamentStatus]int{
	StatusCreated:    1,
	StatusSignUp:     2,
	StatusAdjustment: 3,
	StatusStarted:    4,
	StatusFinished:   5,
}

// Before сравнивает статусы по порядку основной ветки жизненного цикла
// CREATED -> SIGN_UP -> ADJUSTMENT -> STARTED -> FINISHED.
// Для статусов боковой ветки (PAUSE/CANCELLED/...) всегда false.
func (s TournamentStatus) Before(other TournamentStatus) bool {
	a, okA := mainBranchOrder[s]
	b, okB := mainBranchOrder[other]
	return okA && okB && a < b
}

// TournamentSystemType определяет алгоритм генерации сетки.
type TournamentSystemType string

const (
	SystemSingleElimination   TournamentSystemType = "SINGLE_ELIMINATION"
	SystemDoubleElimination   TournamentSystemType = "DOUBLE_ELIMINATION"
	SystemSurvivalElimination TournamentSystemType = "SURVIVAL_ELIMINATION"
)

type systemTypeCapabilities struct {
	AutoFinishSeries bool
	AutoFinishRound  bool
	Generation       bool
}

var systemTypeCaps = map[TournamentSystemType]systemTypeCapabilities{
	SystemSingleElimination:   {AutoFinishSeries: true, AutoFinishRound: true, Generation: true},
	SystemDoubleElimination:   {AutoFinishSeries: true, AutoFinishRound: true, Generation: true},
	SystemSurvivalElimination: {AutoFinishSeries: true, AutoFinishRound: true, Generation: true},
}

func (t TournamentSystemType) AutoFinishSeriesEnabled() bool {
	return systemTypeCaps[t].AutoFinishSeries
}

func (t TournamentSystemType) AutoFinishRoundEnabled() bool {
	return systemTypeCaps[t].AutoFinishRound
}

func (t TournamentSystemType) GenerationEnabled() bool {
	return systemTypeCaps[t].Generation
}

func (t TournamentSystemType) Known() bool {
	_, ok := systemTypeCaps[t]
	return ok
}

// TournamentAccessType — свободный или платный вход.
type TournamentAccessType string

const (
	AccessFree TournamentAccessType = "FREE_ACCESS"
	AccessPaid TournamentAccessType = "PAID_ACCESS"
)

// Tournament представляет турнир. Физически не удаляется,
// статус становится DELETED.
type Tournament struct {
	ID           int                  `json:"id" db:"id"`
	Name         string               `json:"name" db:"name"`
	DisciplineID int                  `json:"discipline_id" db:"discipline_id"`
	SystemType   TournamentSystemType `json:"system_type" db:"system_type"`
	AccessType   TournamentAccessType `json:"access_type" db:"access_type"`
	Status       TournamentStatus     `json:"status" db:"status"`
	CreatedByID  int                  `json:"created_by_id" db:"created_by_id"`

	SignUpStartDate  time.Time  `json:"sign_up_start_date" db:"sign_up_start_date"`
	SignUpEndDate    time.Time  `json:"sign_up_end_date" db:"sign_up_end_date"`
	PlannedStartDate time.Time  `json:"planned_start_date" db:"planned_start_date"`
	FinishedDate     *time.Time `json:"finished_date,omitempty" db:"finished_date"`
	IsAutoStart      bool       `json:"is_auto_start" db:"is_auto_start"`
	IsForcedFinished bool       `json:"is_forced_finished" db:"is_forced_finished"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// Связанные сущности, загружаются отдельно.
	Settings     *TournamentSettings `json:"settings,omitempty" db:"-"`
	Rounds       []*TournamentRound  `json:"rounds,omitempty" db:"-"`
	OrganizerIDs []int               `json:"organizer_ids,omitempty" db:"-"`
	Winners      []*TournamentWinner `json:"winners,omitempty" db:"-"`
}

// IsPaid сообщает, требует ли участие в турнире оплаты взноса.
func (t *Tournament) IsPaid() bool {
	return t.AccessType == AccessPaid
}

// LastRound возвращает раунд с максимальным номером или nil.
func (t *Tournament) LastRound() *TournamentRound {
	var last *TournamentRound
	for _, r := range t.Rounds {
		if last == nil || r.RoundNumber > last.RoundNumber {
			last = r
		}
	}
	return last
}

// RoundByNumber возвращает раунд по номеру или nil.
func (t *Tournament) RoundByNumber(number int) *TournamentRound {
	for _, r := range t.Rounds {
		if r.RoundNumber == number {
			return r
		}
	}
	return nil
}

// SeriesByID ищет серию по всем раундам турнира.
func (t *Tournament) SeriesByID(seriesID int) *TournamentSeries {
	for _, r := range t.Rounds {
		for _, s := range r.Series {
			if s.ID == seriesID {
				return s
			}
		}
	}
	return nil
}

// TournamentSettings — конфигурация турнира. Принадлежит ровно одному турниру.
type TournamentSettings struct {
	ID           int `json:"id" db:"id"`
	TournamentID int `json:"tournament_id" db:"tournament_id"`

	MatchCountPerSeries int     `json:"match_count_per_series" db:"match_count_per_series"`
	MatchRivalCount     int     `json:"match_rival_count" db:"match_rival_count"`
	IsSequentialSeries  bool    `json:"is_sequential_series" db:"is_sequential_series"`
	OrganizerCommission float64 `json:"organizer_commission" db:"organizer_commission"` // percent, 0..100
	ParticipationFee    float64 `json:"participation_fee" db:"participation_fee"`       // per participant

	// RoundSettings: номер раунда -> сколько соперников выбывает из каждой серии.
	// Хранится как JSONB.
	RoundSettings map[int]int `json:"round_settings" db:"-"`
}

// TournamentWinner — итоговое место команды в завершённом турнире.
type TournamentWinner struct {
	ID           int              `json:"id" db:"id"`
	TournamentID int              `json:"tournament_id" db:"tournament_id"`
	ProposalID   int              `json:"proposal_id" db:"proposal_id"`
	Place        SeriesRivalPlace `json:"place" db:"place"`
}
