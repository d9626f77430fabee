package exchange

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"

	"riskguard/internal/metrics"
	"riskguard/pkg/ratelimit"
	"riskguard/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Kraken Futures API
const (
	DefaultKrakenBaseURL = "https://demo-futures.kraken.com"
	DefaultAPIVersion    = "v3"

	krakenResultSuccess = "success"
	formContentType     = "application/x-www-form-urlencoded; charset=utf-8"

	// лимит тела ответа, защищает от бесконечного ответа прокси
	maxResponseBody = 4 << 20
)

// KrakenConfig - параметры клиента
type KrakenConfig struct {
	BaseURL    string
	APIVersion string
	RateLimit  float64 // запросов/сек на API ключ
	RateBurst  float64
}

// Kraken реализует Client для деривативного API Kraken Futures.
// Запросы не повторяются: размещение ордера без idempotency key не идемпотентно.
type Kraken struct {
	baseURL    string
	apiVersion string
	httpClient *HTTPClient
	limiter    *ratelimit.KeyedLimiter
	nonces     nonceSource
	log        *utils.Logger
}

var _ Client = (*Kraken)(nil)

// NewKraken создаёт клиент. httpClient == nil - используется общий клиент.
func NewKraken(cfg KrakenConfig, httpClient *HTTPClient, logger *utils.Logger) *Kraken {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultKrakenBaseURL
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if httpClient == nil {
		httpClient = GetGlobalHTTPClient()
	}
	if logger == nil {
		logger = utils.L()
	}

	return &Kraken{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiVersion: cfg.APIVersion,
		httpClient: httpClient,
		limiter:    ratelimit.NewKeyedLimiter(cfg.RateLimit, cfg.RateBurst),
		log:        logger.WithComponent("kraken"),
	}
}

// Name возвращает имя биржи
func (k *Kraken) Name() string {
	return "kraken"
}

// endpointPath - путь, участвующий в подписи
func (k *Kraken) endpointPath(endpoint string) string {
	return "/derivatives/api/" + k.apiVersion + "/" + endpoint
}

// baseResponse - общие поля всех ответов
type baseResponse struct {
	Result     string `json:"result"`
	Error      string `json:"error"`
	ServerTime string `json:"serverTime"`
}

type accountsResponse struct {
	baseResponse
	Accounts []SubAccount `json:"accounts"`
}

type openOrdersResponse struct {
	baseResponse
	OpenOrders []OpenOrder `json:"openOrders"`
}

type sendOrderResponse struct {
	baseResponse
	SendStatus *OrderAck `json:"sendStatus"`
}

type cancelResponse struct {
	baseResponse
	Message string `json:"message"`
}

// ============ Операции ============

// GetAccountInfo получает список субаккаунтов
func (k *Kraken) GetAccountInfo(ctx context.Context, creds Credentials) (*AccountInfo, error) {
	var resp accountsResponse
	if err := k.doRequest(ctx, creds, http.MethodGet, OpAccounts, nil, &resp); err != nil {
		return nil, err
	}

	k.log.Info("account info retrieved",
		utils.String("api_key", utils.MaskSecret(creds.APIKey)),
		utils.Int("accounts", len(resp.Accounts)))

	return &AccountInfo{Accounts: resp.Accounts, ServerTime: resp.ServerTime}, nil
}

// GetBalance суммирует балансы субаккаунтов
func (k *Kraken) GetBalance(ctx context.Context, creds Credentials) (decimal.Decimal, error) {
	info, err := k.GetAccountInfo(ctx, creds)
	if err != nil {
		return decimal.Zero, err
	}
	return info.Total(), nil
}

// GetOpenOrders получает открытые ордера
func (k *Kraken) GetOpenOrders(ctx context.Context, creds Credentials) ([]OpenOrder, error) {
	var resp openOrdersResponse
	if err := k.doRequest(ctx, creds, http.MethodGet, OpOpenOrders, nil, &resp); err != nil {
		return nil, err
	}

	k.log.Debug("open orders retrieved", utils.Int("count", len(resp.OpenOrders)))
	return resp.OpenOrders, nil
}

// PlaceOrder отправляет sendorder
func (k *Kraken) PlaceOrder(ctx context.Context, creds Credentials, req PlaceOrderRequest) (*OrderAck, error) {
	orderType := req.OrderType
	if orderType == "" {
		orderType = OrderTypeMarket
	}

	params := []formParam{
		{"orderType", orderType},
		{"symbol", req.Symbol},
		{"side", strings.ToLower(req.Side)},
		{"size", req.Size.String()},
	}
	if req.StopPrice.Valid {
		params = append(params, formParam{"stopPrice", req.StopPrice.Decimal.String()})
	}

	var resp sendOrderResponse
	if err := k.doRequest(ctx, creds, http.MethodPost, OpSendOrder, params, &resp); err != nil {
		return nil, err
	}

	ack := &OrderAck{}
	if resp.SendStatus != nil {
		ack = resp.SendStatus
	}

	k.log.Info("order placed",
		utils.Symbol(req.Symbol),
		utils.Side(req.Side),
		utils.String("size", req.Size.String()),
		utils.ExchangeOrderID(ack.OrderID),
		utils.String("send_status", ack.Status))

	return ack, nil
}

// CancelOrder отменяет ордер
func (k *Kraken) CancelOrder(ctx context.Context, creds Credentials, orderID string) error {
	params := []formParam{{"order_id", orderID}}

	var resp cancelResponse
	if err := k.doRequest(ctx, creds, http.MethodPost, OpCancelOrder, params, &resp); err != nil {
		return err
	}

	k.log.Info("order cancelled", utils.ExchangeOrderID(orderID))
	return nil
}

// CancelAllOrders отменяет все ордера, опционально по символу
func (k *Kraken) CancelAllOrders(ctx context.Context, creds Credentials, symbol string) error {
	var params []formParam
	if symbol != "" {
		params = append(params, formParam{"symbol", symbol})
	}

	var resp cancelResponse
	if err := k.doRequest(ctx, creds, http.MethodPost, OpCancelAllOrders, params, &resp); err != nil {
		return err
	}

	k.log.Info("all orders cancelled", utils.Symbol(symbol))
	return nil
}

// ============ Транспорт ============

// resultHolder позволяет проверить result/error после декодирования любого ответа
type resultHolder interface {
	base() *baseResponse
}

func (b *baseResponse) base() *baseResponse { return b }

// doRequest подписывает и выполняет запрос, декодирует ответ в out.
// Любая ошибка (транспорт, HTTP статус, result != success) - *OperationError.
func (k *Kraken) doRequest(ctx context.Context, creds Credentials, method, endpoint string, params []formParam, out resultHolder) (err error) {
	start := time.Now()
	defer func() {
		metrics.RecordExchangeCall(endpoint, time.Since(start), err)
	}()

	if strings.TrimSpace(creds.APIKey) == "" || strings.TrimSpace(creds.PrivateKey) == "" {
		return &OperationError{Op: endpoint, Message: "missing credentials", Err: ErrInvalidCredentials}
	}

	if err := k.limiter.Wait(ctx, creds.APIKey); err != nil {
		return &OperationError{Op: endpoint, Message: "rate limit wait aborted", Err: err}
	}

	postData := encodeForm(params)
	nonce := k.nonces.Next()

	signature, err := Sign(k.endpointPath(endpoint), postData, nonce, creds.PrivateKey)
	if err != nil {
		return &OperationError{Op: endpoint, Message: err.Error(), Err: err}
	}

	reqURL := k.baseURL + k.endpointPath(endpoint)
	var body io.Reader
	if method == http.MethodGet {
		if postData != "" {
			reqURL += "?" + postData
		}
	} else {
		body = strings.NewReader(postData)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return &OperationError{Op: endpoint, Err: err}
	}

	req.Header.Set("API-Key", creds.APIKey)
	req.Header.Set("API-Sign", signature)
	req.Header.Set("Nonce", nonce)
	req.Header.Set("Content-Type", formContentType)
	req.Header.Set("Accept", "application/json")

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return &OperationError{Op: endpoint, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return &OperationError{Op: endpoint, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var base baseResponse
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &base) == nil && base.Error != "" {
			msg = base.Error
		}
		return &OperationError{Op: endpoint, Status: resp.StatusCode, Message: truncateMessage(msg, maxErrorMessage)}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &OperationError{Op: endpoint, Status: resp.StatusCode, Message: "invalid response body", Err: err}
	}

	b := out.base()
	if b.Result != krakenResultSuccess {
		msg := b.Error
		if msg == "" {
			msg = fmt.Sprintf("unexpected result %q", b.Result)
		}
		return &OperationError{Op: endpoint, Status: resp.StatusCode, Message: msg}
	}

	return nil
}

const maxErrorMessage = 256

// truncateMessage обрезает текст ошибки биржи до limit байт по границе символа
func truncateMessage(msg string, limit int) string {
	if len(msg) <= limit {
		return msg
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}
