package handlers

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/harvest-market/escrow/internal/auth"
	"github.com/harvest-market/escrow/internal/config"
	"github.com/harvest-market/escrow/internal/events"
	"github.com/harvest-market/escrow/internal/rbac"
	"go.uber.org/zap"
)

// WSHub relays escrow events. Admins receive everything; other callers
// receive events for the orders they subscribed to and are a party of.
type WSHub struct {
	cfg        *config.Config
	subscriber events.Subscriber
	orders     OrderReader
	log        *zap.Logger
	mu         sync.RWMutex
	clients    map[*websocket.Conn]*wsClient
}

type wsClient struct {
	email  string
	role   rbac.Role
	orders map[uuid.UUID]bool
	wmu    sync.Mutex
}

type wsCommand struct {
	Subscribe   string `json:"subscribe,omitempty"`
	Unsubscribe string `json:"unsubscribe,omitempty"`
}

func NewWSHub(cfg *config.Config, subscriber events.Subscriber, orders OrderReader, log *zap.Logger) *WSHub {
	return &WSHub{
		cfg:        cfg,
		subscriber: subscriber,
		orders:     orders,
		log:        log,
		clients:    make(map[*websocket.Conn]*wsClient),
	}
}

// Start relays escrow events until ctx is done.
func (h *WSHub) Start(ctx context.Context) error {
	return h.subscriber.Subscribe(ctx, events.StreamEscrow, h.broadcast)
}

func eventOrder(event events.Event) (uuid.UUID, bool) {
	raw, _ := event.Payload["order_id"].(string)
	id, err := uuid.Parse(raw)
	return id, err == nil
}

func (h *WSHub) broadcast(event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	orderID, hasOrder := eventOrder(event)

	h.mu.RLock()
	defer h.mu.RUnlock()

	for conn, cl := range h.clients {
		if cl.role != rbac.RoleAdmin && !(hasOrder && cl.orders[orderID]) {
			continue
		}
		cl.write(conn, data)
	}
}

func (cl *wsClient) write(conn *websocket.Conn, data []byte) {
	cl.wmu.Lock()
	defer cl.wmu.Unlock()
	_ = conn.WriteMessage(websocket.TextMessage, data)
}

// WSUpgradeMiddleware checks for websocket upgrade
func WSUpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

func (h *WSHub) HandleWS(conn *websocket.Conn) {
	// Extract token from query
	tokenStr := conn.Query("token")
	if tokenStr == "" {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"missing token"}`))
		conn.Close()
		return
	}

	claims, err := auth.ParseJWT(h.cfg.JWTSecret, tokenStr)
	if err != nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"invalid token"}`))
		conn.Close()
		return
	}
	if claims.Role == rbac.RoleAdmin && !h.cfg.IsAdmin(claims.Email) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"admin access revoked"}`))
		conn.Close()
		return
	}

	cl := &wsClient{email: claims.Email, role: claims.Role, orders: map[uuid.UUID]bool{}}

	// Register
	h.mu.Lock()
	h.clients[conn] = cl
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		conn.Close()
	}()

	// Read loop: subscription commands, anything else is a keepalive
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var cmd wsCommand
		if json.Unmarshal(msg, &cmd) != nil {
			continue
		}
		h.apply(conn, cl, cmd)
	}
}

func (h *WSHub) apply(conn *websocket.Conn, cl *wsClient, cmd wsCommand) {
	if cmd.Unsubscribe != "" {
		if id, err := uuid.Parse(cmd.Unsubscribe); err == nil {
			h.mu.Lock()
			delete(cl.orders, id)
			h.mu.Unlock()
		}
	}
	if cmd.Subscribe == "" {
		return
	}
	id, err := uuid.Parse(cmd.Subscribe)
	if err != nil {
		cl.write(conn, []byte(`{"error":"invalid order id"}`))
		return
	}
	o, err := h.orders.GetOrder(context.Background(), id)
	if err != nil || !CanAccessOrder(cl.role, cl.email, o) {
		h.log.Debug("ws subscribe refused", zap.String("email", cl.email), zap.String("order_id", id.String()), zap.Error(err))
		cl.write(conn, []byte(`{"error":"order not accessible"}`))
		return
	}
	h.mu.Lock()
	cl.orders[id] = true
	h.mu.Unlock()
	cl.write(conn, []byte(`{"subscribed":"`+id.String()+`"}`))
}
