package controller

import (
	"log"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
)

// ProgressEvent is one campaign lifecycle update pushed to subscribers.
type ProgressEvent struct {
	CampaignID uint                   `json:"campaign_id"`
	Event      string                 `json:"event"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// ProgressHub fans campaign events out to websocket subscribers. The
// orchestrator's Notify hook publishes into it.
type ProgressHub struct {
	mu          sync.RWMutex
	subscribers map[uint]map[*websocket.Conn]chan ProgressEvent
	Logger      *log.Logger
}

func NewProgressHub(logger *log.Logger) *ProgressHub {
	return &ProgressHub{
		subscribers: make(map[uint]map[*websocket.Conn]chan ProgressEvent),
		Logger:      logger,
	}
}

// Publish delivers an event to every subscriber of the campaign. Slow
// consumers are skipped rather than blocking the orchestrator.
func (h *ProgressHub) Publish(campaignID uint, event string, payload map[string]interface{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subscribers[campaignID] {
		select {
		case ch <- ProgressEvent{
			CampaignID: campaignID,
			Event:      event,
			Payload:    payload,
			Timestamp:  time.Now(),
		}:
		default:
		}
	}
}

func (h *ProgressHub) subscribe(campaignID uint, conn *websocket.Conn) chan ProgressEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subscribers[campaignID] == nil {
		h.subscribers[campaignID] = make(map[*websocket.Conn]chan ProgressEvent)
	}
	ch := make(chan ProgressEvent, 16)
	h.subscribers[campaignID][conn] = ch
	return ch
}

func (h *ProgressHub) unsubscribe(campaignID uint, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns := h.subscribers[campaignID]; conns != nil {
		if ch, ok := conns[conn]; ok {
			close(ch)
			delete(conns, conn)
		}
		if len(conns) == 0 {
			delete(h.subscribers, campaignID)
		}
	}
}

// HandleCampaignProgressWS streams campaign progress events. The client
// opens with {"campaign_id": N, "action": "subscribe"} and then receives
// ProgressEvent frames until it disconnects.
func (h *ProgressHub) HandleCampaignProgressWS(c *websocket.Conn) {
	defer c.Close()

	var input struct {
		CampaignID uint   `json:"campaign_id"`
		Action     string `json:"action"`
	}
	if err := c.ReadJSON(&input); err != nil {
		h.Logger.Printf("Error reading JSON: %v", err)
		return
	}
	if input.Action != "subscribe" || input.CampaignID == 0 {
		_ = c.WriteJSON(map[string]string{"error": "expected subscribe with campaign_id"})
		return
	}

	ch := h.subscribe(input.CampaignID, c)
	defer h.unsubscribe(input.CampaignID, c)

	// Drain the reader so close frames are noticed.
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
