package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"learnpath-service/internal/app"
	"learnpath-service/internal/metrics"
)

// WSHandler streams live section leaderboards over websockets.
type WSHandler struct {
	boards   *app.LeaderboardService
	sections *app.SectionService
	upgrader websocket.Upgrader
}

func NewWSHandler(boards *app.LeaderboardService, sections *app.SectionService) *WSHandler {
	return &WSHandler{
		boards:   boards,
		sections: sections,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type refreshPayload struct {
	Category string `json:"category"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS subscribes the caller to a section's leaderboard. The first message
// is the current board; later ones arrive whenever a member's results change.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	sectionID := r.URL.Query().Get("sectionId")
	if sectionID == "" {
		writeError(w, http.StatusBadRequest, "missing_section", "sectionId is required")
		return
	}
	if err := memberOrStaff(r.Context(), h.sections, identity(r), sectionID); err != nil {
		if errors.Is(err, errNotMember) {
			writeError(w, http.StatusForbidden, "forbidden", err.Error())
			return
		}
		writeDomainError(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	updates, cancel := h.boards.Hub().Subscribe(sectionID)
	defer cancel()
	metrics.WSConnections.Inc()
	defer metrics.WSConnections.Dec()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				slog.Warn("ws write error", "section_id", sectionID, "error", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "leaderboard", Payload: update}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	if board, err := h.boards.Rank(r.Context(), sectionID, ""); err != nil {
		send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
	} else {
		send <- outboundMessage[any]{Type: "leaderboard", Payload: board}
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "refresh":
			var payload refreshPayload
			if len(inbound.Payload) > 0 {
				if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
					send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid refresh payload"}}
					continue
				}
			}
			board, err := h.boards.Rank(r.Context(), sectionID, payload.Category)
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				continue
			}
			send <- outboundMessage[any]{Type: "leaderboard", Payload: board}
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}
