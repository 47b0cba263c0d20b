package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"quiz-game-service/internal/app"
	"quiz-game-service/internal/domain"
)

type WSHandler struct {
	service  *app.GameService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.GameService) *WSHandler {
	return &WSHandler{
		service: service,
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

type nextPayload struct {
	TaskID string `json:"taskId"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into the game
// use cases. The first participant of a game is its host.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	gameID := r.URL.Query().Get("gameId")
	participantID := r.URL.Query().Get("participantId")
	nickname := r.URL.Query().Get("nickname")
	if gameID == "" || participantID == "" {
		http.Error(w, "missing gameId or participantId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()

	// Subscribe before joining so the join broadcast itself is not missed.
	events, cancel, err := h.service.Subscribe(ctx, gameID, participantID)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}
	defer cancel()

	joined, err := h.service.Join(ctx, gameID, participantID, nickname)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}

	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	eventsDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	go func() {
		defer close(eventsDone)
		for {
			select {
			case event, ok := <-events:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage{Type: "event", Payload: json.RawMessage(event)}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	reply := func(msg outboundMessage) {
		select {
		case send <- msg:
		case <-writerDone:
		}
	}

	reply(outboundMessage{Type: "joined", Payload: joined})
	if current, err := h.service.CurrentEvent(ctx, gameID, participantID); err == nil {
		reply(outboundMessage{Type: "event", Payload: current})
	} else {
		log.Printf("render current event for %s in game %s: %v", participantID, gameID, err)
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		msg, ok := h.handle(ctx, gameID, participantID, inbound)
		if ok {
			reply(msg)
			continue
		}
		if inbound.Type == "leave" {
			break
		}
	}

	close(closeSignals)
	<-eventsDone
	close(send)
	<-writerDone
}

// handle executes one inbound command. Successful transitions reply through
// the event stream, so only answers and failures produce a direct reply.
func (h *WSHandler) handle(ctx context.Context, gameID, participantID string, inbound inboundMessage) (outboundMessage, bool) {
	var err error
	switch inbound.Type {
	case "answer":
		var input app.AnswerInput
		if err := json.Unmarshal(inbound.Payload, &input); err != nil {
			return outboundMessage{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}}, true
		}
		answer, err := h.service.SubmitAnswer(ctx, gameID, participantID, input)
		if err != nil {
			return errorMessage(err), true
		}
		return outboundMessage{Type: "answerAccepted", Payload: answer}, true
	case "next":
		var payload nextPayload
		if len(inbound.Payload) > 0 {
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				return outboundMessage{Type: "error", Payload: errorPayload{Message: "invalid next payload"}}, true
			}
		}
		_, err = h.service.Advance(ctx, gameID, participantID, payload.TaskID)
	case "quit":
		_, err = h.service.Quit(ctx, gameID, participantID)
	case "leave":
		err = h.service.Leave(ctx, gameID, participantID)
	default:
		return outboundMessage{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}, true
	}
	if err != nil {
		return errorMessage(err), true
	}
	return outboundMessage{}, false
}

func errorMessage(err error) outboundMessage {
	return outboundMessage{Type: "error", Payload: errorPayload{Message: err.Error()}}
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrGameNotFound), errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrParticipantNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotHost), errors.Is(err, domain.ErrNotPlayer):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrGameConflict), errors.Is(err, domain.ErrTransitionInProgress),
		errors.Is(err, domain.ErrIllegalTaskType), errors.Is(err, domain.ErrGameCompleted):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidQuestion), errors.Is(err, domain.ErrInvalidAnswer),
		errors.Is(err, domain.ErrInvalidNickname):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
