package models

import "github.com/lib/pq"

// SeriesBracketType различает верхнюю и нижнюю сетку double elimination.
type SeriesBracketType string

const (
	BracketUpper SeriesBracketType = "UPPER"
	BracketLower SeriesBracketType = "LOWER"
)

// SeriesRivalPlace — занятое место соперника в серии.
type SeriesRivalPlace string

const (
	PlaceFirst  SeriesRivalPlace = "FIRST"
	PlaceSecond SeriesRivalPlace = "SECOND"
	PlaceThird  SeriesRivalPlace = "THIRD"
	PlaceFourth SeriesRivalPlace = "FOURTH"
	PlaceLast   SeriesRivalPlace = "LAST"
)

var placeByRank = []SeriesRivalPlace{PlaceFirst, PlaceSecond, PlaceThird, PlaceFourth}

// PlaceByRank переводит позицию в рейтинге серии (0-based) в место.
// Всё, что ниже четвёртого, считается последним.
func PlaceByRank(rank int) SeriesRivalPlace {
	if rank >= 0 && rank < len(placeByRank) {
		return placeByRank[rank]
	}
	return PlaceLast
}

// Rank возвращает порядковый номер места (0 — первое). Для LAST — len(placeByRank).
func (p SeriesRivalPlace) Rank() int {
	for i, place := range placeByRank {
		if p == place {
			return i
		}
	}
	return len(placeByRank)
}

// TournamentSeries — серия матчей внутри раунда.
// Связи родитель/потомок хранятся списками идентификаторов (arena),
// а не вложенными объектами, чтобы не плодить циклы владения.
type TournamentSeries struct {
	ID          int               `json:"id" db:"id"`
	RoundID     int               `json:"round_id" db:"round_id"`
	Name        string            `json:"name" db:"name"`
	Status      TournamentStatus  `json:"status" db:"status"`
	BracketType SeriesBracketType `json:"bracket_type" db:"bracket_type"`

	// ParentSeriesIDs — серии, победители которых кормят эту.
	// Дочерние связи выводятся обратным обходом и отдельно не хранятся.
	ParentSeriesIDs pq.Int64Array `json:"parent_series_ids" db:"parent_series_ids"`

	HasNoWinner   bool `json:"has_no_winner" db:"has_no_winner"`
	WinnerRivalID *int `json:"winner_rival_id,omitempty" db:"winner_rival_id"`

	Matches []*TournamentMatch      `json:"matches,omitempty" db:"-"`
	Rivals  []*TournamentSeriesRival `json:"rivals,omitempty" db:"-"`

	// Поля генерации, живут только до сохранения. Двухпроходное сохранение
	// сетки превращает UID-ссылки в ParentSeriesIDs/ChildSeriesID.
	GenUID        string   `json:"-" db:"-"`
	ParentGenUIDs []string `json:"-" db:"-"`
}

// IsAllMatchesFinished — true, если все матчи серии завершены.
func (s *TournamentSeries) IsAllMatchesFinished() bool {
	if len(s.Matches) == 0 {
		return false
	}
	for _, m := range s.Matches {
		if !m.Status.IsFinished() {
			return false
		}
	}
	return true
}

// WinnerRival возвращает соперника-победителя серии или nil.
func (s *TournamentSeries) WinnerRival() *TournamentSeriesRival {
	if s.WinnerRivalID == nil {
		return nil
	}
	for _, r := range s.Rivals {
		if r.ID == *s.WinnerRivalID {
			return r
		}
	}
	return nil
}

// RivalByPlace возвращает соперника с указанным местом или nil.
func (s *TournamentSeries) RivalByPlace(place SeriesRivalPlace) *TournamentSeriesRival {
	for _, r := range s.Rivals {
		if r.WonPlace != nil && *r.WonPlace == place {
			return r
		}
	}
	return nil
}

// RivalByProposal возвращает соперника конкретной заявки или nil.
func (s *TournamentSeries) RivalByProposal(proposalID int) *TournamentSeriesRival {
	for _, r := range s.Rivals {
		if r.ProposalID == proposalID {
			return r
		}
	}
	return nil
}

// TournamentSeriesRival — участие одной командной заявки в серии.
// После завершения серии с победителем ровно один соперник держит FIRST.
type TournamentSeriesRival struct {
	ID         int               `json:"id" db:"id"`
	SeriesID   int               `json:"series_id" db:"series_id"`
	ProposalID int               `json:"proposal_id" db:"proposal_id"`
	Status     TournamentStatus  `json:"status" db:"status"`
	WonPlace   *SeriesRivalPlace `json:"won_place,omitempty" db:"won_place"`
}
