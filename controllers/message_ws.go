package controller

import (
	"log"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"

	"instabids/models"
)

// MessageEvent is one new-message notification pushed to subscribers of a
// conversation. Only the filtered content crosses the wire.
type MessageEvent struct {
	ConversationID uint      `json:"conversation_id"`
	MessageID      uint      `json:"message_id"`
	SenderType     string    `json:"sender_type"`
	Content        string    `json:"content"`
	MessageType    string    `json:"message_type"`
	Timestamp      time.Time `json:"timestamp"`
}

// MessageHub fans new-message events out to websocket subscribers per
// conversation. The pipeline's Notify hook publishes into it.
type MessageHub struct {
	mu          sync.RWMutex
	subscribers map[uint]map[*websocket.Conn]chan MessageEvent
	Logger      *log.Logger
}

func NewMessageHub(logger *log.Logger) *MessageHub {
	return &MessageHub{
		subscribers: make(map[uint]map[*websocket.Conn]chan MessageEvent),
		Logger:      logger,
	}
}

func (h *MessageHub) Publish(conversationID uint, message *models.Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	event := MessageEvent{
		ConversationID: conversationID,
		MessageID:      message.ID,
		SenderType:     message.SenderType,
		Content:        message.FilteredContent,
		MessageType:    message.MessageType,
		Timestamp:      message.CreatedAt,
	}
	for _, ch := range h.subscribers[conversationID] {
		select {
		case ch <- event:
		default:
		}
	}
}

func (h *MessageHub) subscribe(conversationID uint, conn *websocket.Conn) chan MessageEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subscribers[conversationID] == nil {
		h.subscribers[conversationID] = make(map[*websocket.Conn]chan MessageEvent)
	}
	ch := make(chan MessageEvent, 16)
	h.subscribers[conversationID][conn] = ch
	return ch
}

func (h *MessageHub) unsubscribe(conversationID uint, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns := h.subscribers[conversationID]; conns != nil {
		if ch, ok := conns[conn]; ok {
			close(ch)
			delete(conns, conn)
		}
		if len(conns) == 0 {
			delete(h.subscribers, conversationID)
		}
	}
}

// HandleMessageWS streams new messages for one conversation. The client
// opens with {"conversation_id": N, "action": "subscribe"}.
func (h *MessageHub) HandleMessageWS(c *websocket.Conn) {
	defer c.Close()

	var input struct {
		ConversationID uint   `json:"conversation_id"`
		Action         string `json:"action"`
	}
	if err := c.ReadJSON(&input); err != nil {
		h.Logger.Printf("Error reading JSON: %v", err)
		return
	}
	if input.Action != "subscribe" || input.ConversationID == 0 {
		_ = c.WriteJSON(map[string]string{"error": "expected subscribe with conversation_id"})
		return
	}

	ch := h.subscribe(input.ConversationID, c)
	defer h.unsubscribe(input.ConversationID, c)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, ok := <-ch:
			if !ok {
				return
			}
			if err := c.WriteJSON(event); err != nil {
				h.Logger.Printf("Error writing JSON: %v", err)
				return
			}
		case <-done:
			return
		}
	}
}
