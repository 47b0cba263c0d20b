package http

import (
	"encoding/json"
	"log"
	"net/http"

	"quiz-game-service/internal/app"
)

// GameHandler exposes game creation and read-only state over plain HTTP.
type GameHandler struct {
	service *app.GameService
}

func NewGameHandler(service *app.GameService) *GameHandler {
	return &GameHandler{service: service}
}

type createGameRequest struct {
	QuizID string `json:"quizId"`
}

type createGameResponse struct {
	GameID string `json:"gameId"`
	TaskID string `json:"taskId"`
}

// Register mounts the handler's routes on mux.
func (h *GameHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /games", h.CreateGame)
	mux.HandleFunc("GET /games/{gameId}/participants/{participantId}/event", h.CurrentEvent)
}

func (h *GameHandler) CreateGame(w http.ResponseWriter, r *http.Request) {
	var req createGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QuizID == "" {
		http.Error(w, "missing quizId", http.StatusBadRequest)
		return
	}
	game, err := h.service.CreateGame(r.Context(), req.QuizID)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusCreated, createGameResponse{GameID: game.ID, TaskID: game.CurrentTask.ID})
}

// CurrentEvent renders what the participant would see right now, for clients
// that poll instead of holding a websocket.
func (h *GameHandler) CurrentEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.service.CurrentEvent(r.Context(), r.PathValue("gameId"), r.PathValue("participantId"))
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("write response: %v", err)
	}
}
