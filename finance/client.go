package finance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/KhrulSergey/league-core/models"
)

// ClientConfig — параметры HTTP-клиента финансовой подсистемы.
type ClientConfig struct {
	BaseURL string
	// Timeout страхует каскад от зависшего платёжного сервиса.
	Timeout time.Duration
}

// Client — HTTP-реализация Provider.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("finance client requires a base URL")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) GetAccountByHolder(ctx context.Context, holderID int, holderType models.AccountHolderType) (*models.Account, error) {
	query := url.Values{
		"holder_id":   {strconv.Itoa(holderID)},
		"holder_type": {string(holderType)},
	}
	var account models.Account
	if err := c.call(ctx, http.MethodGet, "/api/accounts/by-holder?"+query.Encode(), nil, &account); err != nil {
		return nil, err
	}
	if account.GUID == "" {
		return nil, ErrAccountNotFound
	}
	return &account, nil
}

func (c *Client) CreateAccountByHolder(ctx context.Context, holderID int, holderType models.AccountHolderType, name string) (*models.Account, error) {
	body := map[string]interface{}{
		"holder_id":   holderID,
		"holder_type": holderType,
		"name":        name,
	}
	var account models.Account
	if err := c.call(ctx, http.MethodPost, "/api/accounts", body, &account); err != nil {
		return nil, err
	}
	if account.GUID == "" {
		return nil, fmt.Errorf("finance collaborator returned an empty account on create")
	}
	return &account, nil
}

func (c *Client) ApplyPurchaseTransaction(ctx context.Context, txn *models.AccountTransaction) (*models.AccountTransaction, error) {
	var result models.AccountTransaction
	if err := c.call(ctx, http.MethodPost, "/api/transactions/purchase", txn, &result); err != nil {
		return nil, err
	}
	// Пустой результат платёжного вызова — отказ, а не бесплатный успех.
	if result.GUID == "" {
		return nil, ErrTransactionRejected
	}
	return &result, nil
}

func (c *Client) AbortTransaction(ctx context.Context, txn *models.AccountTransaction) (*models.AccountTransaction, error) {
	var result models.AccountTransaction
	path := "/api/transactions/" + url.PathEscape(txn.GUID) + "/abort"
	if err := c.call(ctx, http.MethodPost, path, nil, &result); err != nil {
		return nil, err
	}
	if result.GUID == "" {
		return nil, fmt.Errorf("finance collaborator returned an empty result on abort of %s", txn.GUID)
	}
	return &result, nil
}

func (c *Client) call(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode finance request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build finance request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("finance collaborator call failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrAccountNotFound
	case resp.StatusCode == http.StatusPaymentRequired || resp.StatusCode == http.StatusConflict:
		return ErrTransactionRejected
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("finance collaborator returned status %d for %s %s", resp.StatusCode, method, path)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode finance response: %w", err)
		}
	}
	return nil
}
