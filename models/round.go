package models

// TournamentRound — раунд турнира. Номера раундов 1-based и монотонно растут.
// Создаётся генератором сетки, статусом управляет round-компонент.
// После FINISHED раунд неизменяем, кроме административного удаления.
type TournamentRound struct {
	ID           int              `json:"id" db:"id"`
	TournamentID int              `json:"tournament_id" db:"tournament_id"`
	RoundNumber  int              `json:"round_number" db:"round_number"`
	Name         string           `json:"name" db:"name"`
	Status       TournamentStatus `json:"status" db:"status"`
	IsLast       bool             `json:"is_last" db:"is_last"`

	Series []*TournamentSeries `json:"series,omitempty" db:"-"`
}

// IsAllSeriesFinished — true, если статус каждой серии входит в finished-набор.
// Раунд без серий считается незавершённым.
func (r *TournamentRound) IsAllSeriesFinished() bool {
	if len(r.Series) == 0 {
		return false
	}
	for _, s := range r.Series {
		if !s.Status.IsFinished() {
			return false
		}
	}
	return true
}
