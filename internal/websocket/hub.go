package websocket

import (
	"bytes"
	"sync"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"

	"riskguard/internal/models"
	"riskguard/internal/service"
	"riskguard/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ============ sync.Pool для JSON буферов ============

var jsonBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 512))
	},
}

// Размер очереди broadcast
const broadcastBufferSize = 256

// envelope - сериализованное сообщение с адресатом
type envelope struct {
	clientID string
	data     []byte
}

// Hub управляет всеми активными WebSocket соединениями
//
// Рассылает клиентам события риск-движка: risk-события, изменения ордеров
// и смену статуса торговли. Клиент, подключившийся с ?client_id=..., получает
// только события своего аккаунта, без параметра - все события.
//
// Медленные клиенты (переполненный буфер отправки) отключаются.
// Если переполнена очередь broadcast, сообщение отбрасывается и учитывается
// в DroppedMessages: публикация никогда не блокирует риск-движок.
//
// Использование:
// 1. Создать hub: hub := NewHub(origins)
// 2. Запустить в горутине: go hub.Run()
// 3. Передать в сервисы: riskService.SetPublisher(hub)
type Hub struct {
	clients map[*Client]bool

	broadcast  chan envelope
	register   chan *Client
	unregister chan *Client

	done     chan struct{}
	stopOnce sync.Once

	dropped atomic.Int64
	origins *OriginChecker

	mu     sync.RWMutex
	logger *utils.Logger
}

// Проверяем, что Hub реализует EventPublisher
var _ service.EventPublisher = (*Hub)(nil)

// NewHub создает новый Hub. Пустой список origins разрешает любые источники.
func NewHub(allowedOrigins []string) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan envelope, broadcastBufferSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		origins:    NewOriginChecker(allowedOrigins),
		logger:     utils.L().WithComponent("websocket"),
	}
}

// Run запускает главный цикл Hub
//
// Должен запускаться в отдельной горутине: go hub.Run()
// Рассылка идет по снимку списка клиентов, удаление медленных - под Write Lock.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("client connected", utils.ClientID(client.clientID), utils.Int("total", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("client disconnected", utils.Int("total", total))

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

func (h *Hub) deliver(msg envelope) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		if client.accepts(msg.clientID) {
			clients = append(clients, client)
		}
	}
	h.mu.RUnlock()

	var toRemove []*Client
	for _, client := range clients {
		select {
		case client.send <- msg.data:
		default:
			toRemove = append(toRemove, client)
		}
	}

	if len(toRemove) == 0 {
		return
	}

	h.mu.Lock()
	for _, client := range toRemove {
		if _, ok := h.clients[client]; ok {
			delete(h.clients, client)
			close(client.send)
		}
	}
	total := len(h.clients)
	h.mu.Unlock()
	h.logger.Warn("removed slow clients", utils.Int("removed", len(toRemove)), utils.Int("total", total))
}

// Stop останавливает Hub и закрывает все клиентские каналы
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
	})
}

// Broadcast сериализует сообщение и ставит его в очередь рассылки
func (h *Hub) Broadcast(clientID string, message interface{}) {
	buf := jsonBufferPool.Get().(*bytes.Buffer)
	buf.Reset()

	if err := json.NewEncoder(buf).Encode(message); err != nil {
		h.logger.Error("failed to marshal broadcast message", utils.Err(err))
		jsonBufferPool.Put(buf)
		return
	}

	data := bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})
	msgCopy := make([]byte, len(data))
	copy(msgCopy, data)
	jsonBufferPool.Put(buf)

	h.BroadcastRaw(clientID, msgCopy)
}

// BroadcastRaw ставит готовое сообщение в очередь без блокировки
func (h *Hub) BroadcastRaw(clientID string, data []byte) {
	select {
	case <-h.done:
		return
	default:
	}

	select {
	case h.broadcast <- envelope{clientID: clientID, data: data}:
	default:
		h.dropped.Add(1)
	}
}

// ============ service.EventPublisher ============

// PublishRiskEvent отправляет risk-событие
func (h *Hub) PublishRiskEvent(clientID string, ev *models.RiskEvent) {
	if ev == nil {
		return
	}
	h.Broadcast(clientID, NewRiskEventMessage(clientID, ev))
}

// PublishOrderUpdate отправляет изменение ордера
func (h *Hub) PublishOrderUpdate(clientID string, order *models.Order) {
	if order == nil {
		return
	}
	h.Broadcast(clientID, NewOrderUpdateMessage(clientID, order))
}

// PublishTradingStatus отправляет смену статуса торговли
func (h *Hub) PublishTradingStatus(clientID string, enabled bool, until *time.Time) {
	h.Broadcast(clientID, NewTradingStatusMessage(clientID, enabled, until))
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// DroppedMessages возвращает число сообщений, отброшенных из-за переполнения очереди
func (h *Hub) DroppedMessages() int64 {
	return h.dropped.Load()
}
