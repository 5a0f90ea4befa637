package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/KhrulSergey/league-core/models"
	"github.com/lib/pq"
)

var (
	ErrTournamentNotFound     = errors.New("tournament not found")
	ErrTournamentNameConflict = errors.New("tournament name conflict for this organizer")
	ErrSettingsNotFound       = errors.New("tournament settings not found")
)

type ListTournamentsFilter struct {
	DisciplineID *int
	CreatedByID  *int
	Status       *models.TournamentStatus
	Limit        int
	Offset       int
}

type TournamentRepository interface {
	Create(ctx context.Context, exec SQLExecutor, t *models.Tournament) error
	GetByID(ctx context.Context, id int) (*models.Tournament, error)
	List(ctx context.Context, filter ListTournamentsFilter) ([]models.Tournament, error)
	Update(ctx context.Context, t *models.Tournament) error
	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.TournamentStatus) error
	MarkFinished(ctx context.Context, exec SQLExecutor, id int, finishedAt time.Time, forced bool) error

	// UnmarkFinished снимает отметки завершения при откате турнира
	// из FINISHED обратно в рабочий статус.
	UnmarkFinished(ctx context.Context, exec SQLExecutor, id int, status models.TournamentStatus) error

	// ListActive возвращает турниры в активных статусах — вход календарного планировщика.
	ListActive(ctx context.Context) ([]*models.Tournament, error)

	SaveSettings(ctx context.Context, exec SQLExecutor, settings *models.TournamentSettings) error
	GetSettings(ctx context.Context, tournamentID int) (*models.TournamentSettings, error)

	AddOrganizer(ctx context.Context, exec SQLExecutor, tournamentID, userID int) error
	ListOrganizerIDs(ctx context.Context, tournamentID int) ([]int, error)

	AddWinner(ctx context.Context, exec SQLExecutor, winner *models.TournamentWinner) error
	ListWinners(ctx context.Context, tournamentID int) ([]*models.TournamentWinner, error)
}

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

func (r *postgresTournamentRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const tournamentColumns = `
	id, name, discipline_id, system_type, access_type, status, created_by_id,
	sign_up_start_date, sign_up_end_date, planned_start_date, finished_date,
	is_auto_start, is_forced_finished, created_at`

func scanTournament(scanner interface{ Scan(...interface{}) error }, t *models.Tournament) error {
	return scanner.Scan(
		&t.ID, &t.Name, &t.DisciplineID, &t.SystemType, &t.AccessType, &t.Status, &t.CreatedByID,
		&t.SignUpStartDate, &t.SignUpEndDate, &t.PlannedStartDate, &t.FinishedDate,
		&t.IsAutoStart, &t.IsForcedFinished, &t.CreatedAt,
	)
}

func (r *postgresTournamentRepository) Create(ctx context.Context, exec SQLExecutor, t *models.Tournament) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO tournaments (
			name, discipline_id, system_type, access_type, status, created_by_id,
			sign_up_start_date, sign_up_end_date, planned_start_date, is_auto_start
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`

	err := executor.QueryRowContext(ctx, query,
		t.Name, t.DisciplineID, t.SystemType, t.AccessType, t.Status, t.CreatedByID,
		t.SignUpStartDate, t.SignUpEndDate, t.PlannedStartDate, t.IsAutoStart,
	).Scan(&t.ID, &t.CreatedAt)

	return r.handleTournamentError(err)
}

func (r *postgresTournamentRepository) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE id = $1`

	t := &models.Tournament{}
	err := scanTournament(r.db.QueryRowContext(ctx, query, id), t)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}

	settings, err := r.GetSettings(ctx, id)
	if err != nil && !errors.Is(err, ErrSettingsNotFound) {
		return nil, err
	}
	t.Settings = settings
	return t, nil
}

func (r *postgresTournamentRepository) List(ctx context.Context, filter ListTournamentsFilter) ([]models.Tournament, error) {
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE 1=1`

	args := []interface{}{}
	argID := 1

	if filter.DisciplineID != nil {
		query += fmt.Sprintf(" AND discipline_id = $%d", argID)
		args = append(args, *filter.DisciplineID)
		argID++
	}
	if filter.CreatedByID != nil {
		query += fmt.Sprintf(" AND created_by_id = $%d", argID)
		args = append(args, *filter.CreatedByID)
		argID++
	}
	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argID)
		args = append(args, *filter.Status)
		argID++
	}

	query += " ORDER BY planned_start_date DESC, created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argID)
		args = append(args, filter.Limit)
		argID++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argID)
		args = append(args, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tournaments := make([]models.Tournament, 0)
	for rows.Next() {
		var t models.Tournament
		if scanErr := scanTournament(rows, &t); scanErr != nil {
			return nil, scanErr
		}
		tournaments = append(tournaments, t)
	}
	return tournaments, rows.Err()
}

func (r *postgresTournamentRepository) Update(ctx context.Context, t *models.Tournament) error {
	query := `
		UPDATE tournaments SET
			name = $1,
			discipline_id = $2,
			system_type = $3,
			access_type = $4,
			sign_up_start_date = $5,
			sign_up_end_date = $6,
			planned_start_date = $7,
			is_auto_start = $8
		WHERE id = $9`

	result, err := r.db.ExecContext(ctx, query,
		t.Name, t.DisciplineID, t.SystemType, t.AccessType,
		t.SignUpStartDate, t.SignUpEndDate, t.PlannedStartDate, t.IsAutoStart,
		t.ID,
	)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.TournamentStatus) error {
	executor := r.getExecutor(exec)
	query := `UPDATE tournaments SET status = $1 WHERE id = $2`
	result, err := executor.ExecContext(ctx, query, status, id)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) MarkFinished(ctx context.Context, exec SQLExecutor, id int, finishedAt time.Time, forced bool) error {
	executor := r.getExecutor(exec)
	query := `UPDATE tournaments SET status = $1, finished_date = $2, is_forced_finished = $3 WHERE id = $4`
	result, err := executor.ExecContext(ctx, query, models.StatusFinished, finishedAt, forced, id)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) UnmarkFinished(ctx context.Context, exec SQLExecutor, id int, status models.TournamentStatus) error {
	executor := r.getExecutor(exec)
	query := `UPDATE tournaments SET status = $1, finished_date = NULL, is_forced_finished = FALSE WHERE id = $2`
	result, err := executor.ExecContext(ctx, query, status, id)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) ListActive(ctx context.Context) ([]*models.Tournament, error) {
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE status = ANY($1) ORDER BY id`

	statuses := make([]string, 0, len(models.ActiveStatusList))
	for _, s := range models.ActiveStatusList {
		statuses = append(statuses, string(s))
	}

	rows, err := r.db.QueryContext(ctx, query, pq.Array(statuses))
	if err != nil {
		return nil, fmt.Errorf("failed to query active tournaments: %w", err)
	}
	defer rows.Close()

	var tournaments []*models.Tournament
	for rows.Next() {
		var t models.Tournament
		if scanErr := scanTournament(rows, &t); scanErr != nil {
			return nil, fmt.Errorf("failed to scan active tournament: %w", scanErr)
		}
		tournaments = append(tournaments, &t)
	}
	return tournaments, rows.Err()
}

func (r *postgresTournamentRepository) SaveSettings(ctx context.Context, exec SQLExecutor, settings *models.TournamentSettings) error {
	executor := r.getExecutor(exec)

	roundSettings, err := json.Marshal(settings.RoundSettings)
	if err != nil {
		return fmt.Errorf("failed to encode round settings: %w", err)
	}

	query := `
		INSERT INTO tournament_settings (
			tournament_id, match_count_per_series, match_rival_count,
			is_sequential_series, organizer_commission, participation_fee, round_settings
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tournament_id) DO UPDATE SET
			match_count_per_series = EXCLUDED.match_count_per_series,
			match_rival_count = EXCLUDED.match_rival_count,
			is_sequential_series = EXCLUDED.is_sequential_series,
			organizer_commission = EXCLUDED.organizer_commission,
			participation_fee = EXCLUDED.participation_fee,
			round_settings = EXCLUDED.round_settings
		RETURNING id`

	return executor.QueryRowContext(ctx, query,
		settings.TournamentID, settings.MatchCountPerSeries, settings.MatchRivalCount,
		settings.IsSequentialSeries, settings.OrganizerCommission, settings.ParticipationFee,
		roundSettings,
	).Scan(&settings.ID)
}

func (r *postgresTournamentRepository) GetSettings(ctx context.Context, tournamentID int) (*models.TournamentSettings, error) {
	query := `
		SELECT id, tournament_id, match_count_per_series, match_rival_count,
			is_sequential_series, organizer_commission, participation_fee, round_settings
		FROM tournament_settings
		WHERE tournament_id = $1`

	s := &models.TournamentSettings{}
	var roundSettings []byte
	err := r.db.QueryRowContext(ctx, query, tournamentID).Scan(
		&s.ID, &s.TournamentID, &s.MatchCountPerSeries, &s.MatchRivalCount,
		&s.IsSequentialSeries, &s.OrganizerCommission, &s.ParticipationFee, &roundSettings,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSettingsNotFound
		}
		return nil, err
	}
	if len(roundSettings) > 0 {
		if err := json.Unmarshal(roundSettings, &s.RoundSettings); err != nil {
			return nil, fmt.Errorf("failed to decode round settings: %w", err)
		}
	}
	return s, nil
}

func (r *postgresTournamentRepository) AddOrganizer(ctx context.Context, exec SQLExecutor, tournamentID, userID int) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO tournament_organizers (tournament_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`
	_, err := executor.ExecContext(ctx, query, tournamentID, userID)
	return err
}

func (r *postgresTournamentRepository) ListOrganizerIDs(ctx context.Context, tournamentID int) ([]int, error) {
	query := `SELECT user_id FROM tournament_organizers WHERE tournament_id = $1 ORDER BY user_id`
	rows, err := r.db.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *postgresTournamentRepository) AddWinner(ctx context.Context, exec SQLExecutor, winner *models.TournamentWinner) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO tournament_winners (tournament_id, proposal_id, place)
		VALUES ($1, $2, $3)
		RETURNING id`
	return executor.QueryRowContext(ctx, query, winner.TournamentID, winner.ProposalID, winner.Place).Scan(&winner.ID)
}

func (r *postgresTournamentRepository) ListWinners(ctx context.Context, tournamentID int) ([]*models.TournamentWinner, error) {
	query := `SELECT id, tournament_id, proposal_id, place FROM tournament_winners WHERE tournament_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var winners []*models.TournamentWinner
	for rows.Next() {
		w := &models.TournamentWinner{}
		if err := rows.Scan(&w.ID, &w.TournamentID, &w.ProposalID, &w.Place); err != nil {
			return nil, err
		}
		winners = append(winners, w)
	}
	return winners, rows.Err()
}

func (r *postgresTournamentRepository) handleTournamentError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		if pqErr.Code == "23505" && pqErr.Constraint == "tournaments_created_by_id_name_key" {
			return ErrTournamentNameConflict
		}
	}
	return err
}
