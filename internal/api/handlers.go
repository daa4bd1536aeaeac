package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pairpad/backend/internal/autocomplete"
	"github.com/pairpad/backend/internal/db"
	"github.com/pairpad/backend/internal/execute"
	"github.com/pairpad/backend/internal/ws"
)

var validLanguages = []string{"python", "javascript", "typescript"}

type API struct {
	hub      *ws.Hub
	database *db.Database
	runner   *execute.Runner
	log      *slog.Logger
}

func New(hub *ws.Hub, database *db.Database, runner *execute.Runner, log *slog.Logger) *API {
	if log == nil {
		log = slog.Default()
	}
	return &API{
		hub:      hub,
		database: database,
		runner:   runner,
		log:      log,
	}
}

func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encode response", "err", err)
	}
}

func errorResponse(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"active_rooms":      a.hub.RoomCount(),
		"total_connections": a.hub.ClientCount(),
		"timestamp":         time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) StatsHandler(w http.ResponseWriter, r *http.Request) {
	stats := map[string]any{
		"active_rooms":   a.hub.RoomCount(),
		"active_clients": a.hub.ClientCount(),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}

	if a.database != nil {
		if dbStats, err := a.database.Stats(); err == nil {
			stats["total_rooms"] = dbStats["room_count"]
			stats["rooms_with_code"] = dbStats["rooms_with_code"]
		}
	}

	jsonResponse(w, http.StatusOK, stats)
}

// Room handlers

type CreateRoomRequest struct {
	Language string `json:"language"`
}

type CreateRoomResponse struct {
	RoomID    string    `json:"roomId"`
	Language  string    `json:"language"`
	CreatedAt time.Time `json:"createdAt"`
}

func (a *API) CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	req := CreateRoomRequest{Language: "python"}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Language == "" {
		req.Language = "python"
	}

	if !isValidLanguage(req.Language) {
		errorResponse(w, http.StatusBadRequest, "Invalid language. Must be one of: python, javascript, typescript")
		return
	}

	room, err := a.database.CreateRoom(req.Language)
	switch {
	case errors.Is(err, db.ErrCapacity):
		errorResponse(w, http.StatusServiceUnavailable, "Server at capacity. Please try again later.")
		return
	case errors.Is(err, db.ErrIDGeneration):
		errorResponse(w, http.StatusInternalServerError, "Unable to generate unique room ID")
		return
	case err != nil:
		a.log.Error("create room", "err", err)
		errorResponse(w, http.StatusInternalServerError, "Failed to create room")
		return
	}

	jsonResponse(w, http.StatusCreated, CreateRoomResponse{
		RoomID:    room.RoomID,
		Language:  room.Language,
		CreatedAt: room.CreatedAt,
	})
}

func (a *API) GetRoomHandler(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	room, err := a.database.GetRoom(roomID)
	if err != nil {
		a.log.Error("get room", "room", roomID, "err", err)
		errorResponse(w, http.StatusInternalServerError, "Failed to get room")
		return
	}
	if room == nil {
		errorResponse(w, http.StatusNotFound, "Room not found")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"roomId":      room.RoomID,
		"language":    room.Language,
		"codeContent": room.Code,
		"createdAt":   room.CreatedAt,
		"updatedAt":   room.UpdatedAt,
	})
}

// RoomStatusHandler reports live session info for a room without
// requiring a websocket connection.
func (a *API) RoomStatusHandler(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	code, _, _ := a.hub.State(roomID)
	jsonResponse(w, http.StatusOK, map[string]any{
		"roomId":    roomID,
		"userCount": a.hub.Count(roomID),
		"hasCode":   code != "",
	})
}

func (a *API) AutocompleteHandler(w http.ResponseWriter, r *http.Request) {
	var req autocomplete.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Language == "" {
		req.Language = "python"
	}

	jsonResponse(w, http.StatusOK, autocomplete.Suggest(req))
}

func (a *API) ExecuteHandler(w http.ResponseWriter, r *http.Request) {
	var req execute.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := a.runner.Run(r.Context(), req)
	switch {
	case errors.Is(err, execute.ErrUnsupportedLanguage):
		errorResponse(w, http.StatusBadRequest, "Unsupported language: "+req.Language)
		return
	case err != nil:
		a.log.Error("execute", "language", req.Language, "err", err)
		errorResponse(w, http.StatusInternalServerError, "Failed to execute code")
		return
	}

	jsonResponse(w, http.StatusOK, resp)
}

func isValidLanguage(language string) bool {
	for _, l := range validLanguages {
		if l == language {
			return true
		}
	}
	return false
}
