// internal/handler/websocket_handler.go
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"shutter-service/internal/protocol"
	"shutter-service/internal/service"
	"shutter-service/internal/utils"
)

const (
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	writeWait      = 10 * time.Second
	commandTimeout = 30 * time.Second
	sendBuffer     = 256
)

// WebSocket message types
const (
	MessageSnapshot        = "session_snapshot"
	MessagePong            = "pong"
	MessageCommandResponse = "command_response"
	MessageError           = "error"
)

// WebSocketHandler streams session state to clients and accepts session commands
type WebSocketHandler struct {
	upgrader    websocket.Upgrader
	connections *ConnectionManager
	session     *service.SessionController
	eventBus    *EventBus
	logger      *utils.ServiceLogger
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(session *service.SessionController, eventBus *EventBus, logger *zap.Logger) *WebSocketHandler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// origins are restricted by the CORS middleware
			return true
		},
	}

	return &WebSocketHandler{
		upgrader:    upgrader,
		connections: NewConnectionManager(),
		session:     session,
		eventBus:    eventBus,
		logger:      utils.NewServiceLogger(logger, "websocket-handler"),
	}
}

// RegisterRoutes registers WebSocket routes
func (h *WebSocketHandler) RegisterRoutes(router gin.IRoutes) {
	router.GET("/ws/session", h.HandleSessionConnection)
	router.GET("/ws/stats", h.GetConnectionStats)
}

// Start subscribes to the event bus and forwards its events to every client
// until ctx is done
func (h *WebSocketHandler) Start(ctx context.Context) {
	events, cancel := h.eventBus.Subscribe()
	go h.run(ctx, events, cancel)
}

func (h *WebSocketHandler) run(ctx context.Context, events <-chan Event, cancel func()) {
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			h.broadcast(&WebSocketMessage{
				Type:      event.Type,
				Data:      event.Data,
				Timestamp: event.Timestamp,
			})
		}
	}
}

// HandleSessionConnection upgrades the request and sends the current session
// snapshot followed by every state change
// @Summary Session state stream
// @Description WebSocket stream of connection_state, protocol_state and thresholds messages
// @Tags Session
// @Success 101 "Switching protocols"
// @Router /ws/session [get]
func (h *WebSocketHandler) HandleSessionConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := &Client{
		ID:          uuid.New().String(),
		Connection:  conn,
		Send:        make(chan []byte, sendBuffer),
		UserAgent:   c.Request.UserAgent(),
		RemoteAddr:  c.Request.RemoteAddr,
		ConnectedAt: time.Now(),
	}

	h.connections.Register(client)
	h.logger.Info("Session WebSocket client connected",
		zap.String("client_id", client.ID),
		zap.String("remote_addr", client.RemoteAddr),
	)

	h.sendMessage(client, &WebSocketMessage{
		Type:      MessageSnapshot,
		Data:      newSessionView(h.session.Status()),
		Timestamp: time.Now(),
	})

	go h.handleClientRead(client)
	go h.handleClientWrite(client)
}

// GetConnectionStats reports the connected session stream clients
// @Summary WebSocket client statistics
// @Tags Session
// @Produce json
// @Success 200 {object} utils.APIResponse{data=ConnectionStats}
// @Router /ws/stats [get]
func (h *WebSocketHandler) GetConnectionStats(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "WebSocket statistics retrieved", h.connections.GetStats())
}

// handleClientRead handles reading messages from WebSocket client
func (h *WebSocketHandler) handleClientRead(client *Client) {
	defer func() {
		h.connections.Unregister(client)
		client.Connection.Close()
		h.logger.Info("Session WebSocket client disconnected", zap.String("client_id", client.ID))
	}()

	client.Connection.SetReadDeadline(time.Now().Add(pongWait))
	client.Connection.SetPongHandler(func(string) error {
		client.Connection.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, messageBytes, err := client.Connection.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error("WebSocket read error",
					zap.Error(err),
					zap.String("client_id", client.ID),
				)
			}
			return
		}

		var message ClientMessage
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			h.sendError(client, "", "invalid message")
			continue
		}

		h.handleClientMessage(client, &message)
	}
}

// handleClientWrite handles writing messages to WebSocket client
func (h *WebSocketHandler) handleClientWrite(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Connection.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			client.Connection.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.Connection.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := client.Connection.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Error("WebSocket write error",
					zap.Error(err),
					zap.String("client_id", client.ID),
				)
				return
			}

		case <-ticker.C:
			client.Connection.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleClientMessage handles incoming client messages
func (h *WebSocketHandler) handleClientMessage(client *Client, message *ClientMessage) {
	switch message.Type {
	case "ping":
		h.sendMessage(client, &WebSocketMessage{
			Type:      MessagePong,
			Timestamp: time.Now(),
			RequestID: message.RequestID,
		})
	case "command":
		go h.executeCommand(client, message)
	default:
		h.sendError(client, message.RequestID, fmt.Sprintf("unknown message type: %s", message.Type))
	}
}

// executeCommand runs a session command and replies with its outcome
func (h *WebSocketHandler) executeCommand(client *Client, message *ClientMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	var (
		result interface{}
		err    error
	)

	switch message.Command {
	case "connect":
		err = h.session.Connect(ctx)

	case "disconnect":
		h.session.Disconnect()

	case "reset":
		h.session.Reset()

	case "measure":
		var req service.MeasurementRequest
		if err = decodeCommandData(message.Data, &req); err == nil {
			var id string
			id, err = h.session.StartMeasurement(ctx, req)
			result = AttemptResponse{AttemptID: id}
		}

	case "listen":
		var req service.ListenRequest
		if err = decodeCommandData(message.Data, &req); err == nil {
			var id string
			id, err = h.session.StartListening(req)
			result = AttemptResponse{AttemptID: id}
		}

	case "send":
		var req CommandRequest
		if err = decodeCommandData(message.Data, &req); err == nil {
			var command protocol.Command
			if command, err = protocol.ParseCommand(req.Command); err == nil {
				err = h.session.SendCommand(ctx, command)
			}
		}

	default:
		h.sendError(client, message.RequestID, fmt.Sprintf("unknown command: %s", message.Command))
		return
	}

	reply := CommandResult{Command: message.Command, Success: err == nil, Result: result}
	if err != nil {
		reply.Result = nil
		reply.Error = err.Error()
		h.logger.Warn("WebSocket command failed",
			zap.String("client_id", client.ID),
			zap.String("command", message.Command),
			zap.Error(err),
		)
	}

	h.sendMessage(client, &WebSocketMessage{
		Type:      MessageCommandResponse,
		Data:      reply,
		Timestamp: time.Now(),
		RequestID: message.RequestID,
	})
}

func decodeCommandData(data json.RawMessage, target interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: command data is required", service.ErrValidation)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: invalid command data: %v", service.ErrValidation, err)
	}
	return nil
}

// sendMessage queues a message for one client
func (h *WebSocketHandler) sendMessage(client *Client, message *WebSocketMessage) {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal WebSocket message", zap.Error(err))
		return
	}

	if !h.connections.Send(client, messageBytes) {
		h.logger.Warn("Client gone or send channel full, dropping message",
			zap.String("client_id", client.ID),
		)
	}
}

// sendError sends an error message to a client
func (h *WebSocketHandler) sendError(client *Client, requestID, errorMsg string) {
	h.sendMessage(client, &WebSocketMessage{
		Type:      MessageError,
		Data:      map[string]interface{}{"error": errorMsg},
		Timestamp: time.Now(),
		RequestID: requestID,
	})
}

// broadcast queues message on every client
func (h *WebSocketHandler) broadcast(message *WebSocketMessage) {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal broadcast message", zap.Error(err))
		return
	}

	for _, id := range h.connections.Broadcast(messageBytes) {
		h.logger.Warn("Client send channel full during broadcast", zap.String("client_id", id))
	}
}
