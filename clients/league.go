package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrTeamNotFound = errors.New("team not found")
)

// User — минимальная проекция пользователя из внешней подсистемы.
type User struct {
	ID       int    `json:"id"`
	LeagueID string `json:"league_id"`
	Username string `json:"username"`
}

// Team — минимальная проекция команды.
type Team struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	CaptainUserID int    `json:"captain_user_id"`
	IsVirtual     bool   `json:"is_virtual"`
}

// UserProvider и TeamProvider — read-only коллабораторы для проверки
// капитанства и сборки составов.
type UserProvider interface {
	GetUserByID(ctx context.Context, userID int) (*User, error)
}

type TeamProvider interface {
	GetTeamByID(ctx context.Context, teamID int) (*Team, error)
}

// LeagueClient — HTTP-клиент пользовательской/командной подсистемы.
type LeagueClient struct {
	baseURL string
	http    *http.Client
}

func NewLeagueClient(baseURL string, timeout time.Duration) (*LeagueClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("league client requires a base URL")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LeagueClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

func (c *LeagueClient) GetUserByID(ctx context.Context, userID int) (*User, error) {
	var user User
	if err := c.get(ctx, "/api/users/"+strconv.Itoa(userID), &user, ErrUserNotFound); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *LeagueClient) GetTeamByID(ctx context.Context, teamID int) (*Team, error) {
	var team Team
	if err := c.get(ctx, "/api/teams/"+strconv.Itoa(teamID), &team, ErrTeamNotFound); err != nil {
		return nil, err
	}
	return &team, nil
}

func (c *LeagueClient) get(ctx context.Context, path string, out interface{}, notFound error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build league request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("league collaborator call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return notFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("league collaborator returned status %d for %s", resp.StatusCode, path)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
