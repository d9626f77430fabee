package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"riskguard/internal/models"
)

// Ошибки репозитория ордеров
var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderConflict - статус ордера в БД уже не совпадает с ожидаемым
	ErrOrderConflict = errors.New("order status changed concurrently")
)

const orderColumns = `id, account_id, symbol, strategy, side, quantity, stop_loss_percentage,
		max_risk_per_day_percentage, inverse, pyramid, exchange_order_id, status, error_message,
		created_at, updated_at, executed_at`

// OrderRepository - работа с таблицей orders
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository создает новый экземпляр репозитория
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func scanOrder(s rowScanner) (*models.Order, error) {
	order := &models.Order{}
	var exchangeOrderID, errorMessage sql.NullString

	err := s.Scan(
		&order.ID,
		&order.AccountID,
		&order.Symbol,
		&order.Strategy,
		&order.Side,
		&order.Quantity,
		&order.StopLossPercentage,
		&order.MaxRiskPerDayPercentage,
		&order.Inverse,
		&order.Pyramid,
		&exchangeOrderID,
		&order.Status,
		&errorMessage,
		&order.CreatedAt,
		&order.UpdatedAt,
		&order.ExecutedAt,
	)
	if err != nil {
		return nil, err
	}

	order.ExchangeOrderID = exchangeOrderID.String
	order.ErrorMessage = errorMessage.String
	return order, nil
}

// nullString - пустая строка хранится как NULL
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Create создает запись об ордере
func (r *OrderRepository) Create(order *models.Order) error {
	query := `
		INSERT INTO orders (id, account_id, symbol, strategy, side, quantity, stop_loss_percentage,
			max_risk_per_day_percentage, inverse, pyramid, exchange_order_id, status, error_message,
			created_at, updated_at, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.Status == "" {
		order.Status = models.OrderStatusPending
	}
	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now

	_, err := r.db.Exec(
		query,
		order.ID,
		order.AccountID,
		order.Symbol,
		order.Strategy,
		order.Side,
		order.Quantity,
		order.StopLossPercentage,
		order.MaxRiskPerDayPercentage,
		order.Inverse,
		order.Pyramid,
		nullString(order.ExchangeOrderID),
		order.Status,
		nullString(order.ErrorMessage),
		order.CreatedAt,
		order.UpdatedAt,
		order.ExecutedAt,
	)
	return err
}

// GetByID возвращает ордер по ID
func (r *OrderRepository) GetByID(id uuid.UUID) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(r.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

// GetByAccount возвращает ордера аккаунта, новые первыми
func (r *OrderRepository) GetByAccount(accountID uuid.UUID) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE account_id = $1 ORDER BY created_at DESC`
	return r.queryOrders(query, accountID)
}

// GetOpenByAccount возвращает OPEN ордера аккаунта
func (r *OrderRepository) GetOpenByAccount(accountID uuid.UUID) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE account_id = $1 AND status = $2 ORDER BY created_at`
	return r.queryOrders(query, accountID, models.OrderStatusOpen)
}

// GetByStrategySymbolStatus возвращает ордера аккаунта по (strategy, symbol, status)
func (r *OrderRepository) GetByStrategySymbolStatus(accountID uuid.UUID, strategy, symbol, status string) ([]*models.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE account_id = $1 AND strategy = $2 AND symbol = $3 AND status = $4
		ORDER BY created_at`
	return r.queryOrders(query, accountID, strategy, symbol, status)
}

func (r *OrderRepository) queryOrders(query string, args ...interface{}) ([]*models.Order, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return orders, nil
}

// UpdateStatus сохраняет новый статус ордера вместе с exchange_order_id, error_message, executed_at.
// Обновление применяется только если в БД статус всё ещё равен from.
func (r *OrderRepository) UpdateStatus(order *models.Order, from string) error {
	query := `
		UPDATE orders
		SET status = $1, exchange_order_id = $2, error_message = $3, executed_at = $4, updated_at = $5
		WHERE id = $6 AND status = $7`

	order.UpdatedAt = time.Now().UTC()

	result, err := r.db.Exec(
		query,
		order.Status,
		nullString(order.ExchangeOrderID),
		nullString(order.ErrorMessage),
		order.ExecutedAt,
		order.UpdatedAt,
		order.ID,
		from,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		if _, err := r.GetByID(order.ID); errors.Is(err, ErrOrderNotFound) {
			return ErrOrderNotFound
		}
		return ErrOrderConflict
	}

	return nil
}

// Stats возвращает агрегаты по ордерам аккаунта
func (r *OrderRepository) Stats(accountID uuid.UUID) (*models.OrderStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'OPEN'),
			COUNT(*) FILTER (WHERE status = 'CLOSED'),
			COUNT(*) FILTER (WHERE status = 'CANCELLED'),
			COUNT(*) FILTER (WHERE status = 'FAILED'),
			COUNT(*) FILTER (WHERE status = 'PENDING'),
			COALESCE(SUM(quantity), 0)
		FROM orders
		WHERE account_id = $1`

	stats := &models.OrderStats{}
	var volume decimal.Decimal

	err := r.db.QueryRow(query, accountID).Scan(
		&stats.TotalOrders,
		&stats.OpenOrders,
		&stats.ClosedOrders,
		&stats.CancelledOrders,
		&stats.FailedOrders,
		&stats.PendingOrders,
		&volume,
	)
	if err != nil {
		return nil, err
	}
	stats.TotalVolume = volume

	stats.SymbolsTraded, err = r.distinct(`SELECT DISTINCT symbol FROM orders WHERE account_id = $1 ORDER BY symbol`, accountID)
	if err != nil {
		return nil, err
	}

	stats.StrategiesUsed, err = r.distinct(`SELECT DISTINCT strategy FROM orders WHERE account_id = $1 ORDER BY strategy`, accountID)
	if err != nil {
		return nil, err
	}

	return stats, nil
}

func (r *OrderRepository) distinct(query string, accountID uuid.UUID) ([]string, error) {
	rows, err := r.db.Query(query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}

	return values, rows.Err()
}
