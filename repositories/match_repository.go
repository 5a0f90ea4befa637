package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/KhrulSergey/league-core/models"
)

var (
	ErrMatchNotFound      = errors.New("tournament match not found")
	ErrMatchRivalNotFound = errors.New("tournament match rival not found")
)

type MatchRepository interface {
	Create(ctx context.Context, exec SQLExecutor, match *models.TournamentMatch) error
	GetByID(ctx context.Context, id int) (*models.TournamentMatch, error)
	ListBySeries(ctx context.Context, seriesID int) ([]*models.TournamentMatch, error)
	Update(ctx context.Context, exec SQLExecutor, match *models.TournamentMatch) error

	ReplaceRivalParticipants(ctx context.Context, exec SQLExecutor, matchRivalID int, teamParticipantIDs []int) error
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

func (r *postgresMatchRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create сохраняет матч вместе с соперниками и их составами.
func (r *postgresMatchRepository) Create(ctx context.Context, exec SQLExecutor, match *models.TournamentMatch) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO tournament_matches (series_id, match_number, status, has_no_winner)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	if err := executor.QueryRowContext(ctx, query,
		match.SeriesID, match.MatchNumber, match.Status, match.HasNoWinner,
	).Scan(&match.ID); err != nil {
		return err
	}

	for _, rival := range match.Rivals {
		rival.MatchID = match.ID
		rivalQuery := `
			INSERT INTO tournament_match_rivals (match_id, proposal_id, status)
			VALUES ($1, $2, $3)
			RETURNING id`
		if err := executor.QueryRowContext(ctx, rivalQuery,
			rival.MatchID, rival.ProposalID, rival.Status,
		).Scan(&rival.ID); err != nil {
			return err
		}
		for _, participant := range rival.Participants {
			participant.MatchRivalID = rival.ID
			participantQuery := `
				INSERT INTO tournament_match_rival_participants (match_rival_id, team_participant_id)
				VALUES ($1, $2)
				RETURNING id`
			if err := executor.QueryRowContext(ctx, participantQuery,
				participant.MatchRivalID, participant.TeamParticipantID,
			).Scan(&participant.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, id int) (*models.TournamentMatch, error) {
	query := `
		SELECT id, series_id, match_number, status, has_no_winner, winner_rival_id
		FROM tournament_matches
		WHERE id = $1`

	match := &models.TournamentMatch{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&match.ID, &match.SeriesID, &match.MatchNumber, &match.Status, &match.HasNoWinner, &match.WinnerRivalID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}

	rivals, err := r.listRivals(ctx, match.ID)
	if err != nil {
		return nil, err
	}
	match.Rivals = rivals
	return match, nil
}

func (r *postgresMatchRepository) ListBySeries(ctx context.Context, seriesID int) ([]*models.TournamentMatch, error) {
	query := `
		SELECT id, series_id, match_number, status, has_no_winner, winner_rival_id
		FROM tournament_matches
		WHERE series_id = $1
		ORDER BY match_number`
	rows, err := r.db.QueryContext(ctx, query, seriesID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []*models.TournamentMatch
	for rows.Next() {
		match := &models.TournamentMatch{}
		if err := rows.Scan(
			&match.ID, &match.SeriesID, &match.MatchNumber, &match.Status, &match.HasNoWinner, &match.WinnerRivalID,
		); err != nil {
			return nil, err
		}
		matches = append(matches, match)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, match := range matches {
		rivals, err := r.listRivals(ctx, match.ID)
		if err != nil {
			return nil, err
		}
		match.Rivals = rivals
	}
	return matches, nil
}

func (r *postgresMatchRepository) Update(ctx context.Context, exec SQLExecutor, match *models.TournamentMatch) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE tournament_matches SET
			status = $1,
			has_no_winner = $2,
			winner_rival_id = $3
		WHERE id = $4`
	result, err := executor.ExecContext(ctx, query,
		match.Status, match.HasNoWinner, match.WinnerRivalID, match.ID,
	)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

// ReplaceRivalParticipants целиком заменяет заявленный на матч состав.
func (r *postgresMatchRepository) ReplaceRivalParticipants(ctx context.Context, exec SQLExecutor, matchRivalID int, teamParticipantIDs []int) error {
	executor := r.getExecutor(exec)
	if _, err := executor.ExecContext(ctx,
		`DELETE FROM tournament_match_rival_participants WHERE match_rival_id = $1`, matchRivalID,
	); err != nil {
		return err
	}
	for _, participantID := range teamParticipantIDs {
		if _, err := executor.ExecContext(ctx,
			`INSERT INTO tournament_match_rival_participants (match_rival_id, team_participant_id) VALUES ($1, $2)`,
			matchRivalID, participantID,
		); err != nil {
			return err
		}
	}
	return nil
}

func (r *postgresMatchRepository) listRivals(ctx context.Context, matchID int) ([]*models.TournamentMatchRival, error) {
	query := `
		SELECT id, match_id, proposal_id, status
		FROM tournament_match_rivals
		WHERE match_id = $1
		ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rivals []*models.TournamentMatchRival
	for rows.Next() {
		rival := &models.TournamentMatchRival{}
		if err := rows.Scan(&rival.ID, &rival.MatchID, &rival.ProposalID, &rival.Status); err != nil {
			return nil, err
		}
		rivals = append(rivals, rival)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, rival := range rivals {
		participants, err := r.listRivalParticipants(ctx, rival.ID)
		if err != nil {
			return nil, err
		}
		rival.Participants = participants
	}
	return rivals, nil
}

func (r *postgresMatchRepository) listRivalParticipants(ctx context.Context, matchRivalID int) ([]*models.TournamentMatchRivalParticipant, error) {
	query := `
		SELECT id, match_rival_id, team_participant_id
		FROM tournament_match_rival_participants
		WHERE match_rival_id = $1
		ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, matchRivalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var participants []*models.TournamentMatchRivalParticipant
	for rows.Next() {
		p := &models.TournamentMatchRivalParticipant{}
		if err := rows.Scan(&p.ID, &p.MatchRivalID, &p.TeamParticipantID); err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}
