package repository

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"riskguard/internal/models"
)

// Ошибки репозитория аккаунтов
var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")
)

const accountColumns = `id, client_id, api_key, private_key, daily_risk_absolute, daily_risk_percentage,
		initial_balance, current_balance, trading_enabled, is_active, last_risk_check, created_at, updated_at`

// AccountRepository - работа с таблицей accounts
type AccountRepository struct {
	db *sql.DB
}

// NewAccountRepository создает новый экземпляр репозитория
func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// rowScanner - общий интерфейс *sql.Row и *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(s rowScanner) (*models.Account, error) {
	acc := &models.Account{}
	err := s.Scan(
		&acc.ID,
		&acc.ClientID,
		&acc.APIKey,
		&acc.PrivateKey,
		&acc.DailyRiskAbsolute,
		&acc.DailyRiskPercentage,
		&acc.InitialBalance,
		&acc.CurrentBalance,
		&acc.TradingEnabled,
		&acc.IsActive,
		&acc.LastRiskCheck,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// Create создает аккаунт; ID генерируется, если не задан
func (r *AccountRepository) Create(acc *models.Account) error {
	query := `
		INSERT INTO accounts (id, client_id, api_key, private_key, daily_risk_absolute, daily_risk_percentage,
			initial_balance, current_balance, trading_enabled, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	if acc.ID == uuid.Nil {
		acc.ID = uuid.New()
	}
	now := time.Now().UTC()
	acc.CreatedAt = now
	acc.UpdatedAt = now

	_, err := r.db.Exec(
		query,
		acc.ID,
		acc.ClientID,
		acc.APIKey,
		acc.PrivateKey,
		acc.DailyRiskAbsolute,
		acc.DailyRiskPercentage,
		acc.InitialBalance,
		acc.CurrentBalance,
		acc.TradingEnabled,
		acc.IsActive,
		acc.CreatedAt,
		acc.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAccountExists
		}
		return err
	}

	return nil
}

// GetByID возвращает аккаунт по ID
func (r *AccountRepository) GetByID(id uuid.UUID) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	acc, err := scanAccount(r.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return acc, nil
}

// GetByClientID возвращает аккаунт по client_id
func (r *AccountRepository) GetByClientID(clientID string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE client_id = $1`

	acc, err := scanAccount(r.db.QueryRow(query, clientID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return acc, nil
}

// ExistsByClientID проверяет занятость client_id
func (r *AccountRepository) ExistsByClientID(clientID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM accounts WHERE client_id = $1)`

	var exists bool
	if err := r.db.QueryRow(query, clientID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// GetAll возвращает все аккаунты
func (r *AccountRepository) GetAll() ([]*models.Account, error) {
	return r.queryAccounts(`SELECT ` + accountColumns + ` FROM accounts ORDER BY created_at`)
}

// GetActive возвращает активные аккаунты
func (r *AccountRepository) GetActive() ([]*models.Account, error) {
	return r.queryAccounts(`SELECT ` + accountColumns + ` FROM accounts WHERE is_active = true ORDER BY created_at`)
}

// GetActiveTradingDisabled возвращает активные аккаунты с выключенной торговлей
func (r *AccountRepository) GetActiveTradingDisabled() ([]*models.Account, error) {
	return r.queryAccounts(`SELECT ` + accountColumns + ` FROM accounts WHERE is_active = true AND trading_enabled = false ORDER BY created_at`)
}

func (r *AccountRepository) queryAccounts(query string, args ...interface{}) ([]*models.Account, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return accounts, nil
}

// UpdateRiskLimits обновляет лимиты риска и флаг активности
func (r *AccountRepository) UpdateRiskLimits(id uuid.UUID, absolute, percentage decimal.NullDecimal, isActive bool) error {
	query := `
		UPDATE accounts
		SET daily_risk_absolute = $1, daily_risk_percentage = $2, is_active = $3, updated_at = $4
		WHERE id = $5`

	return r.execOne(query, absolute, percentage, isActive, time.Now().UTC(), id)
}

// UpdateTradingEnabled включает/выключает торговлю
func (r *AccountRepository) UpdateTradingEnabled(id uuid.UUID, enabled bool) error {
	query := `UPDATE accounts SET trading_enabled = $1, updated_at = $2 WHERE id = $3`
	return r.execOne(query, enabled, time.Now().UTC(), id)
}

// UpdateCurrentBalance сохраняет последний наблюдаемый баланс
func (r *AccountRepository) UpdateCurrentBalance(id uuid.UUID, balance decimal.Decimal) error {
	query := `UPDATE accounts SET current_balance = $1, updated_at = $2 WHERE id = $3`
	return r.execOne(query, balance, time.Now().UTC(), id)
}

// InitBaseline устанавливает initial_balance, только если он ещё не задан.
// Возвращает false, если базовый баланс уже был установлен.
func (r *AccountRepository) InitBaseline(id uuid.UUID, balance decimal.Decimal) (bool, error) {
	query := `
		UPDATE accounts
		SET initial_balance = $1, updated_at = $2
		WHERE id = $3 AND initial_balance IS NULL`

	result, err := r.db.Exec(query, balance, time.Now().UTC(), id)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected == 1, nil
}

// ResetBaseline явно переустанавливает initial_balance (административный сброс)
func (r *AccountRepository) ResetBaseline(id uuid.UUID, balance decimal.Decimal) error {
	query := `UPDATE accounts SET initial_balance = $1, updated_at = $2 WHERE id = $3`
	return r.execOne(query, balance, time.Now().UTC(), id)
}

// UpdateLastRiskCheck фиксирует время последней проверки риска
func (r *AccountRepository) UpdateLastRiskCheck(id uuid.UUID, at time.Time) error {
	query := `UPDATE accounts SET last_risk_check = $1 WHERE id = $2`
	return r.execOne(query, at, id)
}

// Delete удаляет аккаунт (ордера и события удаляются каскадно)
func (r *AccountRepository) Delete(id uuid.UUID) error {
	return r.execOne(`DELETE FROM accounts WHERE id = $1`, id)
}

// execOne выполняет запрос, затрагивающий ровно один аккаунт
func (r *AccountRepository) execOne(query string, args ...interface{}) error {
	result, err := r.db.Exec(query, args...)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrAccountNotFound
	}

	return nil
}

// isUniqueViolation проверяет нарушение уникальности (PostgreSQL 23505)
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	errStr := err.Error()
	return strings.Contains(errStr, "duplicate key") || strings.Contains(errStr, "23505")
}
