package presence

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamspace/presence/internal/auth"
	"github.com/streamspace/presence/internal/ring"
)

const testSecret = "test-secret"

func signToken(t *testing.T, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func newTestServer(t *testing.T) (*httptest.Server, *Hub) {
	v := ring.UserVnode("u1", 1024)
	hub := New("node-A", 1024, []int{v}, nil, nil, 50*time.Millisecond)
	validator := auth.NewValidator(auth.Config{SecretKey: testSecret})

	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHandler(hub, validator).RegisterRoutes(router)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, hub
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/connect?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func TestConnect_SendsWelcomeFrame(t *testing.T) {
	srv, _ := newTestServer(t)
	token := signToken(t, "u1")

	conn := dial(t, srv, token)
	defer conn.Close()

	var welcome WelcomeFrame
	require.NoError(t, conn.ReadJSON(&welcome))
	assert.Equal(t, FrameWelcome, welcome.Type)
	assert.Equal(t, "u1", welcome.UserID)
	assert.Equal(t, "node-A", welcome.NodeID)
}

func TestConnect_PingReceivesPong(t *testing.T) {
	srv, _ := newTestServer(t)
	token := signToken(t, "u1")

	conn := dial(t, srv, token)
	defer conn.Close()

	var welcome WelcomeFrame
	require.NoError(t, conn.ReadJSON(&welcome))

	require.NoError(t, conn.WriteJSON(PingFrame{Type: FramePing, Timestamp: time.Now().UnixMilli()}))

	var pong PongFrame
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, FramePong, pong.Type)
}

func TestConnect_RejectsMissingToken(t *testing.T) {
	srv, _ := newTestServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/connect"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	_, _, readErr := conn.ReadMessage()
	require.Error(t, readErr)
	closeErr, ok := readErr.(*websocket.CloseError)
	require.True(t, ok)
	assert.Equal(t, CloseAuthRejected, closeErr.Code)
}

func TestConnect_RejectsUnownedVnode(t *testing.T) {
	v := ring.UserVnode("u1", 1024)
	hub := New("node-A", 1024, []int{v + 1}, nil, nil, time.Second)
	validator := auth.NewValidator(auth.Config{SecretKey: testSecret})

	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHandler(hub, validator).RegisterRoutes(router)
	srv := httptest.NewServer(router)
	defer srv.Close()

	token := signToken(t, "u1")
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/connect?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	_, _, readErr := conn.ReadMessage()
	require.Error(t, readErr)
	closeErr, ok := readErr.(*websocket.CloseError)
	require.True(t, ok)
	assert.Equal(t, CloseAuthRejected, closeErr.Code)
}
