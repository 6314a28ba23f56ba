package call

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	callsvc "secureconnect-client/internal/call"
	"secureconnect-client/internal/config"
	"secureconnect-client/internal/domain"
	"secureconnect-client/internal/media"
	"secureconnect-client/internal/prefs"
	"secureconnect-client/internal/signaling"
	"secureconnect-client/pkg/identity"
	"secureconnect-client/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
	logger.InitDefault()
}

// nopChannel satisfies signaling.Channel for handler tests; handler tests
// never exercise the transport.
type nopChannel struct{}

func (nopChannel) Connect(context.Context, *identity.Identity) error { return nil }
func (nopChannel) Emit(string, any) error                            { return nil }
func (nopChannel) On(string, signaling.Handler)                      {}
func (nopChannel) Off(string)                                        {}
func (nopChannel) JoinConversation(uuid.UUID)                        {}
func (nopChannel) LeaveConversation(uuid.UUID)                       {}
func (nopChannel) Connected() bool                                   { return true }
func (nopChannel) Close() error                                      { return nil }

func testRouter(t *testing.T) (*gin.Engine, *callsvc.Orchestrator) {
	t.Helper()

	orchestrator := callsvc.NewOrchestrator(nopChannel{},
		func(domain.MediaMode) media.Engine { return nil },
		nil,
		config.CallConfig{NoAnswerTimeout: time.Minute, CalleeGracePeriod: time.Second},
		time.Second)
	orchestrator.SetIdentity(&identity.Identity{UserID: uuid.New(), DisplayName: "alice"})

	store, err := prefs.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	router := gin.New()
	NewHandler(orchestrator, store).RegisterRoutes(router.Group("/v1"))
	return router, orchestrator
}

func doJSON(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// TestStatusWithoutSession tests the empty status response
func TestStatusWithoutSession(t *testing.T) {
	router, _ := testRouter(t)
	w := doJSON(router, http.MethodGet, "/v1/call/status", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestStartCallEndpoint tests call creation through the control surface
func TestStartCallEndpoint(t *testing.T) {
	router, orchestrator := testRouter(t)

	w := doJSON(router, http.MethodPost, "/v1/call/start", gin.H{
		"conversation_id": uuid.New().String(),
		"call_type":       "audio",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, orchestrator.Status())
	assert.Equal(t, domain.PhaseRinging, orchestrator.Status().Phase)

	// Second call while live conflicts
	w = doJSON(router, http.MethodPost, "/v1/call/start", gin.H{
		"conversation_id": uuid.New().String(),
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

// TestStartCallValidation tests request validation
func TestStartCallValidation(t *testing.T) {
	router, _ := testRouter(t)

	w := doJSON(router, http.MethodPost, "/v1/call/start", gin.H{
		"conversation_id": "not-a-uuid",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodPost, "/v1/call/start", gin.H{
		"conversation_id": uuid.New().String(),
		"call_type":       "hologram",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestCancelEndpointTolerant tests that cancel outside a valid phase still
// returns success (UI double-tap tolerance)
func TestCancelEndpointTolerant(t *testing.T) {
	router, _ := testRouter(t)
	w := doJSON(router, http.MethodPost, "/v1/call/cancel", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

// TestCallTypePreference tests the persisted preference endpoints
func TestCallTypePreference(t *testing.T) {
	router, _ := testRouter(t)

	w := doJSON(router, http.MethodGet, "/v1/prefs/call-type", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), prefs.DefaultCallType)

	w = doJSON(router, http.MethodPut, "/v1/prefs/call-type", gin.H{"call_type": "audio"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodGet, "/v1/prefs/call-type", nil)
	assert.Contains(t, w.Body.String(), "audio")
}
