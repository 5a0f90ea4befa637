package finance

import (
	"context"
	"errors"

	"github.com/KhrulSergey/league-core/models"
)

var (
	ErrAccountNotFound = errors.New("financial account not found")

	// ErrTransactionRejected — платёж не прошёл. Пустой результат от
	// платёжного вызова трактуется так же: это отказ, а не нулевая операция.
	ErrTransactionRejected = errors.New("financial transaction was rejected")
)

// Provider — граница финансовой подсистемы. Реализуется вне этого сервиса;
// здесь только контракт, который потребляют оплата взносов и возвраты.
type Provider interface {
	GetAccountByHolder(ctx context.Context, holderID int, holderType models.AccountHolderType) (*models.Account, error)
	CreateAccountByHolder(ctx context.Context, holderID int, holderType models.AccountHolderType, name string) (*models.Account, error)

	// ApplyPurchaseTransaction проводит списание. Суммы всегда положительные.
	ApplyPurchaseTransaction(ctx context.Context, txn *models.AccountTransaction) (*models.AccountTransaction, error)

	// AbortTransaction отменяет ранее проведённую транзакцию.
	AbortTransaction(ctx context.Context, txn *models.AccountTransaction) (*models.AccountTransaction, error)
}
