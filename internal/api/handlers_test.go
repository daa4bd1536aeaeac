package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pairpad/backend/internal/db"
	"github.com/pairpad/backend/internal/execute"
	"github.com/pairpad/backend/internal/ratelimit"
	"github.com/pairpad/backend/internal/ws"
)

type nopConn struct{}

func (nopConn) Send(v any) error                   { return nil }
func (nopConn) CloseWith(code int, r string) error { return nil }
func (nopConn) Close() error                       { return nil }

func setupTest(t *testing.T) (*API, *ws.Hub, *db.Database) {
	t.Helper()

	database, err := db.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := ws.NewHub(log, database, 100)
	a := New(hub, database, execute.NewRunner(), log)
	return a, hub, database
}

func testRouter(t *testing.T, a *API, hub *ws.Hub, limiter *ratelimit.Limiter) http.Handler {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRouter(a, hub, limiter, log, nil)
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	return out
}

func TestHealthHandler(t *testing.T) {
	a, hub, _ := setupTest(t)
	router := testRouter(t, a, hub, nil)

	w := doJSON(t, router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 0, body["active_rooms"])
}

func TestCreateRoom(t *testing.T) {
	a, hub, _ := setupTest(t)
	router := testRouter(t, a, hub, nil)

	tests := []struct {
		name           string
		body           any
		expectedStatus int
		expectedLang   string
	}{
		{
			name:           "explicit language",
			body:           map[string]string{"language": "javascript"},
			expectedStatus: http.StatusCreated,
			expectedLang:   "javascript",
		},
		{
			name:           "empty body defaults to python",
			body:           nil,
			expectedStatus: http.StatusCreated,
			expectedLang:   "python",
		},
		{
			name:           "invalid language rejected",
			body:           map[string]string{"language": "cobol"},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, http.MethodPost, "/api/rooms", tt.body)
			require.Equal(t, tt.expectedStatus, w.Code)

			if tt.expectedStatus == http.StatusCreated {
				body := decodeBody(t, w)
				assert.Len(t, body["roomId"], 8)
				assert.Equal(t, tt.expectedLang, body["language"])
			}
		})
	}
}

func TestCreateRoomAtCapacity(t *testing.T) {
	a, hub, database := setupTest(t)
	router := testRouter(t, a, hub, nil)

	for i := 0; i < db.MaxRooms; i++ {
		_, err := database.CreateRoom("python")
		require.NoError(t, err)
	}

	w := doJSON(t, router, http.MethodPost, "/api/rooms", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, decodeBody(t, w)["error"], "capacity")
}

func TestGetRoom(t *testing.T) {
	a, hub, database := setupTest(t)
	router := testRouter(t, a, hub, nil)

	room, err := database.CreateRoom("typescript")
	require.NoError(t, err)
	require.NoError(t, database.UpdateRoomCode(room.RoomID, "let x = 1;"))

	w := doJSON(t, router, http.MethodGet, "/api/rooms/"+room.RoomID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, room.RoomID, body["roomId"])
	assert.Equal(t, "typescript", body["language"])
	assert.Equal(t, "let x = 1;", body["codeContent"])
}

func TestGetRoomNotFound(t *testing.T) {
	a, hub, _ := setupTest(t)
	router := testRouter(t, a, hub, nil)

	w := doJSON(t, router, http.MethodGet, "/api/rooms/deadbeef", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestRoomStatus(t *testing.T) {
	a, hub, _ := setupTest(t)
	router := testRouter(t, a, hub, nil)

	// Unknown rooms report zero state rather than an error.
	w := doJSON(t, router, http.MethodGet, "/ws/rooms/nowhere/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.EqualValues(t, 0, body["userCount"])
	assert.Equal(t, false, body["hasCode"])

	userID, err := hub.Connect(nopConn{}, "abc123", "Alice")
	require.NoError(t, err)
	require.NoError(t, hub.Dispatch("abc123", userID, ws.Envelope{
		Type: ws.TypeCodeUpdate,
		Data: json.RawMessage(`{"code":"print(1)"}`),
	}))

	w = doJSON(t, router, http.MethodGet, "/ws/rooms/abc123/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body = decodeBody(t, w)
	assert.Equal(t, "abc123", body["roomId"])
	assert.EqualValues(t, 1, body["userCount"])
	assert.Equal(t, true, body["hasCode"])
}

func TestAutocompleteHandler(t *testing.T) {
	a, hub, _ := setupTest(t)
	router := testRouter(t, a, hub, nil)

	w := doJSON(t, router, http.MethodPost, "/api/autocomplete", map[string]any{
		"code":           "print(",
		"cursorPosition": 6,
		"language":       "python",
	})
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, ")", body["suggestion"])
	assert.EqualValues(t, 6, body["insertPosition"])
}

func TestExecuteUnsupportedLanguage(t *testing.T) {
	a, hub, _ := setupTest(t)
	router := testRouter(t, a, hub, nil)

	w := doJSON(t, router, http.MethodPost, "/api/execute", map[string]string{
		"code":     "puts 'hi'",
		"language": "ruby",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeBody(t, w)["error"], "Unsupported language")
}

func TestRateLimitAppliesToAPIOnly(t *testing.T) {
	a, hub, _ := setupTest(t)
	limiter := ratelimit.New(3, time.Minute)
	router := testRouter(t, a, hub, limiter)

	for i := 0; i < 3; i++ {
		w := doJSON(t, router, http.MethodGet, "/api/stats", nil)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := doJSON(t, router, http.MethodGet, "/api/stats", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// Health checks bypass the limiter.
	w = doJSON(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
