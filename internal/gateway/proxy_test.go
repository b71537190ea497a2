package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rideya/rideya-backend/internal/config"
	"github.com/rideya/rideya-backend/internal/http/response"
)

func testConfig() *config.Config {
	return &config.Config{
		Env:             "test",
		AllowedOrigins:  []string{"http://localhost:3000"},
		RateLimitLimit:  1000,
		RateLimitPeriod: time.Minute,
	}
}

func gatewayConfig(authURL, otherURL string) config.GatewayConfig {
	return config.GatewayConfig{
		AuthServiceURL:         authURL,
		BookingServiceURL:      otherURL,
		PaymentServiceURL:      otherURL,
		NotificationServiceURL: otherURL,
	}
}

func decode(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var body response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestUpstreams_RejectsInvalidURL(t *testing.T) {
	_, err := Upstreams(gatewayConfig("not a url", "http://localhost:8080"))
	assert.Error(t, err)
}

func TestGateway_ProxiesToUpstream(t *testing.T) {
	gin.SetMode(gin.TestMode)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"path": r.URL.Path, "query": r.URL.RawQuery})
	}))
	defer upstream.Close()

	ups, err := Upstreams(gatewayConfig(upstream.URL, upstream.URL))
	require.NoError(t, err)
	gw := httptest.NewServer(NewRouter(testConfig(), ups))
	defer gw.Close()

	req, err := http.NewRequest(http.MethodPost, gw.URL+"/api/auth/login/email?x=1", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := gw.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"http://localhost:3000"}, resp.Header.Values("Access-Control-Allow-Origin"))

	var got map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "/api/auth/login/email", got["path"])
	assert.Equal(t, "x=1", got["query"])
}

func TestGateway_UpstreamDownReturns503(t *testing.T) {
	gin.SetMode(gin.TestMode)

	down := httptest.NewServer(http.NotFoundHandler())
	downURL := down.URL
	down.Close()

	ups, err := Upstreams(gatewayConfig(downURL, downURL))
	require.NoError(t, err)
	gw := httptest.NewServer(NewRouter(testConfig(), ups))
	defer gw.Close()

	resp, err := gw.Client().Get(gw.URL + "/api/bookings/123")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	var body response.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.False(t, body.Success)
	require.NotNil(t, body.Error)
	assert.Equal(t, "SERVICE_UNAVAILABLE", body.Error.Code)
}

func TestGateway_UnknownRouteReturns404(t *testing.T) {
	gin.SetMode(gin.TestMode)

	ups, err := Upstreams(gatewayConfig("http://localhost:1", "http://localhost:1"))
	require.NoError(t, err)
	r := NewRouter(testConfig(), ups)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/unknown", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	body := decode(t, w)
	require.NotNil(t, body.Error)
	assert.Equal(t, "NOT_FOUND", body.Error.Code)
}

func TestGateway_HealthListsUpstreams(t *testing.T) {
	gin.SetMode(gin.TestMode)

	ups, err := Upstreams(gatewayConfig("http://auth:8080", "http://core:8080"))
	require.NoError(t, err)
	r := NewRouter(testConfig(), ups)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Services map[string]string `json:"services"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "http://auth:8080", body.Services["auth"])
	assert.Equal(t, "http://core:8080", body.Services["payment"])
}
