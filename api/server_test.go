package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridscalper/bot"
	"gridscalper/store"
)

type fakeProvider struct {
	status bot.Status
}

func (f *fakeProvider) Status() bot.Status { return f.status }

func newTestServer(t *testing.T) (*Server, *fakeProvider) {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	provider := &fakeProvider{status: bot.Status{
		Symbol:    "BTCUSDT",
		Mode:      "neutral",
		Price:     65000,
		GridState: "ACTIVE_NO_POSITION",
	}}
	return NewServer(provider, st, 0), provider
}

func doRequest(s *Server, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	s.router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	w := doRequest(s, "GET", "/api/health")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["time"])
}

func TestStatusEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	w := doRequest(s, "GET", "/api/status")
	require.Equal(t, http.StatusOK, w.Code)

	var status bot.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "BTCUSDT", status.Symbol)
	assert.Equal(t, 65000.0, status.Price)
	assert.Equal(t, "ACTIVE_NO_POSITION", status.GridState)
}

func TestTradesEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	s.store.RecordTrade(store.Trade{
		Symbol:   "BTCUSDT",
		Source:   store.SourceGrid,
		Side:     "BUY",
		Quantity: 0.01,
		Price:    62500,
		Reason:   "GRID_ENTRY",
	})

	w := doRequest(s, "GET", "/api/trades")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Trades []store.Trade `json:"trades"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Trades, 1)
	assert.Equal(t, "GRID_ENTRY", body.Trades[0].Reason)
}

func TestTradesEndpointEmpty(t *testing.T) {
	s, _ := newTestServer(t)

	w := doRequest(s, "GET", "/api/trades")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"trades":[]}`, w.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t)

	w := doRequest(s, "OPTIONS", "/api/status")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
