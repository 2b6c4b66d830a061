package websocket

import (
	"context"
	"sync"
	"time"

	"rescuedispatch/interfaces"
	"rescuedispatch/models"
	"rescuedispatch/utils"

	"github.com/sirupsen/logrus"
)

// Hub tracks connected clients by user and forwards alert events to the
// users listed as recipients. A user may hold several connections.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// User to clients mapping for direct delivery
	userClients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	deliver    chan UserMessage

	stats HubStats
	mutex sync.RWMutex

	// Context for shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

type UserMessage struct {
	UserID  string
	Message models.WSMessage
}

type HubStats struct {
	TotalConnections  int64     `json:"totalConnections"`
	ActiveConnections int       `json:"activeConnections"`
	ConnectedUsers    int       `json:"connectedUsers"`
	MessagesSent      int64     `json:"messagesSent"`
	MessagesDropped   int64     `json:"messagesDropped"`
	EventsReceived    int64     `json:"eventsReceived"`
	StartTime         time.Time `json:"startTime"`
}

func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		clients:     make(map[*Client]bool),
		userClients: make(map[string]map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		deliver:     make(chan UserMessage, 256),
		stats: HubStats{
			StartTime: time.Now(),
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

func (h *Hub) Run() {
	logrus.Info("WebSocket Hub starting...")

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case userMessage := <-h.deliver:
			h.sendMessageToUser(userMessage)

		case <-h.ctx.Done():
			logrus.Info("WebSocket Hub shutting down...")
			h.closeAll()
			return
		}
	}
}

func (h *Hub) Stop() {
	h.cancel()
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// ConsumeEvents feeds published alert events into the hub until ctx is done.
func (h *Hub) ConsumeEvents(ctx context.Context, subscriber interfaces.EventSubscriber) {
	for {
		err := subscriber.Subscribe(ctx, h.DispatchEvent)
		if ctx.Err() != nil {
			return
		}
		logrus.WithError(err).Warn("Alert event subscription ended, resubscribing")

		select {
		case <-time.After(2 * time.Second):
		case <-ctx.Done():
			return
		}
	}
}

// DispatchEvent queues event for every connected recipient.
func (h *Hub) DispatchEvent(event models.AlertEvent) {
	h.mutex.Lock()
	h.stats.EventsReceived++
	h.mutex.Unlock()

	for _, userID := range event.Recipients {
		if !h.IsUserOnline(userID) {
			continue
		}
		message := models.WSMessage{
			Type:      models.WSTypeAlertEvent,
			Data:      event,
			UserID:    userID,
			Timestamp: time.Now(),
		}

		select {
		case h.deliver <- UserMessage{UserID: userID, Message: message}:
		default:
			h.incrementDropped()
			logrus.WithField("userId", userID).Warn("Delivery queue full, dropping alert event")
		}
	}
}

func (h *Hub) IsUserOnline(userID string) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.userClients[userID]) > 0
}

func (h *Hub) GetStats() HubStats {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	stats := h.stats
	stats.ActiveConnections = len(h.clients)
	stats.ConnectedUsers = len(h.userClients)
	return stats
}

func (h *Hub) registerClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.clients[client] = true
	if h.userClients[client.userID] == nil {
		h.userClients[client.userID] = make(map[*Client]bool)
	}
	h.userClients[client.userID][client] = true
	h.stats.TotalConnections++
	utils.WebSocketConnections.Inc()

	client.SendMessage(models.WSMessage{
		Type:      models.WSTypeConnected,
		Data:      map[string]string{"connectionId": client.connectionID},
		UserID:    client.userID,
		Timestamp: time.Now(),
	})

	logrus.WithFields(logrus.Fields{
		"userId":       client.userID,
		"connectionId": client.connectionID,
		"total":        len(h.clients),
	}).Info("Client registered")
}

func (h *Hub) unregisterClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	if conns := h.userClients[client.userID]; conns != nil {
		delete(conns, client)
		if len(conns) == 0 {
			delete(h.userClients, client.userID)
		}
	}
	client.close()
	utils.WebSocketConnections.Dec()

	logrus.WithFields(logrus.Fields{
		"userId":       client.userID,
		"connectionId": client.connectionID,
		"total":        len(h.clients),
	}).Info("Client unregistered")
}

func (h *Hub) sendMessageToUser(userMessage UserMessage) {
	h.mutex.RLock()
	targets := make([]*Client, 0, len(h.userClients[userMessage.UserID]))
	for client := range h.userClients[userMessage.UserID] {
		targets = append(targets, client)
	}
	h.mutex.RUnlock()

	for _, client := range targets {
		if client.SendMessage(userMessage.Message) {
			h.incrementSent()
		} else {
			h.incrementDropped()
		}
	}
}

func (h *Hub) closeAll() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for client := range h.clients {
		client.close()
		utils.WebSocketConnections.Dec()
	}
	h.clients = make(map[*Client]bool)
	h.userClients = make(map[string]map[*Client]bool)
}

func (h *Hub) incrementSent() {
	h.mutex.Lock()
	h.stats.MessagesSent++
	h.mutex.Unlock()
}

func (h *Hub) incrementDropped() {
	h.mutex.Lock()
	h.stats.MessagesDropped++
	h.mutex.Unlock()
}
