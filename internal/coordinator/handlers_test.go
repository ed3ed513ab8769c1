package coordinator

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(svc *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHandler(svc).RegisterRoutes(router)
	return router
}

func TestHandler_Health(t *testing.T) {
	svc := newTestService(t, 1024)
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestHandler_RegisterNode(t *testing.T) {
	svc := newTestService(t, 1024)
	router := newTestRouter(svc)

	payload, _ := json.Marshal(registerRequest{InstanceID: "A", Weight: 1})
	req := httptest.NewRequest(http.MethodPost, "/nodes/register", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	var body struct {
		InstanceID     string `json:"instanceId"`
		AssignedVnodes []int  `json:"assignedVnodes"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "A", body.InstanceID)
	assert.Len(t, body.AssignedVnodes, 10)
}

func TestHandler_RegisterNode_MissingInstanceID(t *testing.T) {
	svc := newTestService(t, 1024)
	router := newTestRouter(svc)

	payload, _ := json.Marshal(registerRequest{Weight: 1})
	req := httptest.NewRequest(http.MethodPost, "/nodes/register", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_RouteNotFound(t *testing.T) {
	svc := newTestService(t, 1024)
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/route?userId=u1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_RouteAfterRegister(t *testing.T) {
	svc := newTestService(t, 1024)
	router := newTestRouter(svc)

	payload, _ := json.Marshal(registerRequest{InstanceID: "A", Weight: 100})
	req := httptest.NewRequest(http.MethodPost, "/nodes/register", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodGet, "/route?userId=u1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Instance string `json:"instance"`
		Source   string `json:"source"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "A", body.Instance)
	assert.Equal(t, "hash", body.Source)
}

func TestHandler_UnregisterUnknownNode(t *testing.T) {
	svc := newTestService(t, 1024)
	router := newTestRouter(svc)

	payload, _ := json.Marshal(unregisterRequest{InstanceID: "ghost"})
	req := httptest.NewRequest(http.MethodPost, "/nodes/unregister", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
