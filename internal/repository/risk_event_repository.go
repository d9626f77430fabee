package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"riskguard/internal/models"
)

// Ошибки репозитория risk-событий
var (
	ErrRiskEventNotFound = errors.New("risk event not found")
)

const riskEventColumns = `id, account_id, event_type, description, current_balance, initial_balance,
		risk_threshold, loss_amount, loss_percentage, orders_closed, trading_disabled_until, created_at`

// RiskEventRepository - журнал risk-событий.
// События только добавляются: методов Update/Delete нет.
type RiskEventRepository struct {
	db *sql.DB
}

// NewRiskEventRepository создает новый экземпляр репозитория
func NewRiskEventRepository(db *sql.DB) *RiskEventRepository {
	return &RiskEventRepository{db: db}
}

func scanRiskEvent(s rowScanner) (*models.RiskEvent, error) {
	ev := &models.RiskEvent{}
	var description sql.NullString

	err := s.Scan(
		&ev.ID,
		&ev.AccountID,
		&ev.EventType,
		&description,
		&ev.CurrentBalance,
		&ev.InitialBalance,
		&ev.RiskThreshold,
		&ev.LossAmount,
		&ev.LossPercentage,
		&ev.OrdersClosed,
		&ev.TradingDisabledUntil,
		&ev.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	ev.Description = description.String
	return ev, nil
}

// Create добавляет событие
func (r *RiskEventRepository) Create(ev *models.RiskEvent) error {
	query := `
		INSERT INTO risk_events (id, account_id, event_type, description, current_balance, initial_balance,
			risk_threshold, loss_amount, loss_percentage, orders_closed, trading_disabled_until, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.Exec(
		query,
		ev.ID,
		ev.AccountID,
		ev.EventType,
		ev.Description,
		ev.CurrentBalance,
		ev.InitialBalance,
		ev.RiskThreshold,
		ev.LossAmount,
		ev.LossPercentage,
		ev.OrdersClosed,
		ev.TradingDisabledUntil,
		ev.CreatedAt,
	)
	return err
}

// GetAll возвращает все события, новые первыми
func (r *RiskEventRepository) GetAll() ([]*models.RiskEvent, error) {
	return r.queryEvents(`SELECT ` + riskEventColumns + ` FROM risk_events ORDER BY created_at DESC`)
}

// GetByAccount возвращает события аккаунта, новые первыми
func (r *RiskEventRepository) GetByAccount(accountID uuid.UUID) ([]*models.RiskEvent, error) {
	query := `SELECT ` + riskEventColumns + ` FROM risk_events WHERE account_id = $1 ORDER BY created_at DESC`
	return r.queryEvents(query, accountID)
}

// FindLatestDisableEvent возвращает последнее событие аккаунта, отключившее торговлю
func (r *RiskEventRepository) FindLatestDisableEvent(accountID uuid.UUID) (*models.RiskEvent, error) {
	query := `
		SELECT ` + riskEventColumns + `
		FROM risk_events
		WHERE account_id = $1 AND trading_disabled_until IS NOT NULL
		ORDER BY created_at DESC
		LIMIT 1`

	ev, err := scanRiskEvent(r.db.QueryRow(query, accountID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRiskEventNotFound
		}
		return nil, err
	}
	return ev, nil
}

func (r *RiskEventRepository) queryEvents(query string, args ...interface{}) ([]*models.RiskEvent, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.RiskEvent
	for rows.Next() {
		ev, err := scanRiskEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}
