package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Global-Optima/zeep-print-agent/internal/kvstore"
	"github.com/Global-Optima/zeep-print-agent/internal/model"
	"github.com/Global-Optima/zeep-print-agent/internal/payment"
	"github.com/Global-Optima/zeep-print-agent/internal/printqueue"
	"github.com/Global-Optima/zeep-print-agent/internal/reconciler"
)

func newTestAgent(t *testing.T) (*httptest.Server, *reconciler.Reconciler, kvstore.Store) {
	t.Helper()
	store, err := kvstore.OpenSQLite(filepath.Join(t.TempDir(), "agent.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	rec := reconciler.New(reconciler.Options{})
	require.NoError(t, rec.Apply(reconciler.InitialData{Orders: []model.Order{
		{ID: 5, Status: model.OrderStatusPending, CreatedAt: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)},
		{ID: 6, Status: model.OrderStatusCompleted, CreatedAt: time.Date(2025, 3, 1, 9, 5, 0, 0, time.UTC)},
	}}))
	queue := printqueue.New(nil, nil, printqueue.Config{})

	srv := httptest.NewServer(NewAgentServer(rec, queue, store, nil).Handler())
	t.Cleanup(srv.Close)
	return srv, rec, store
}

func getJSON(t *testing.T, rawURL string, v any) int {
	t.Helper()
	resp, err := http.Get(rawURL)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestAgent_Ping(t *testing.T) {
	srv, _, _ := newTestAgent(t)

	resp, err := http.Get(srv.URL + "/ping")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Local Agent is running!\n", string(body))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestAgent_Preflight(t *testing.T) {
	srv, _, _ := newTestAgent(t)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/proxy/status", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "accesstoken")
}

func TestAgent_Orders(t *testing.T) {
	srv, rec, _ := newTestAgent(t)

	var orders []model.Order
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/orders", &orders))
	require.Len(t, orders, 2)
	assert.Equal(t, 5, orders[0].ID)

	rec.SetFilter(model.OrderStatusCompleted)
	orders = nil
	getJSON(t, srv.URL+"/orders", &orders)
	require.Len(t, orders, 1)
	assert.Equal(t, 6, orders[0].ID)

	orders = nil
	getJSON(t, srv.URL+"/orders?all=true", &orders)
	assert.Len(t, orders, 2)

	var counts map[string]int
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/orders/counts", &counts))
	assert.Equal(t, 1, counts["PENDING"])
	assert.Equal(t, 1, counts["COMPLETED"])
	assert.Equal(t, 0, counts["CANCELLED"])
	assert.Len(t, counts, len(model.OrderStatuses))

	var order model.Order
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/orders/6", &order))
	assert.Equal(t, model.OrderStatusCompleted, order.Status)

	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/orders/99", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/orders/abc", nil))
}

func TestAgent_QueueStatus(t *testing.T) {
	srv, _, _ := newTestAgent(t)

	var status struct {
		State   string `json:"state"`
		Pending int    `json:"pending"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/print/queue", &status))
	assert.Equal(t, "IDLE", status.State)
	assert.Equal(t, 0, status.Pending)
}

func TestAgent_LabelGeometry(t *testing.T) {
	srv, _, _ := newTestAgent(t)

	var g model.Geometry
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/labels/geometry/order_qr", &g))
	assert.Equal(t, model.Geometry{WidthMm: 80, HeightMm: 80}, g)

	put := func(usage, body string) int {
		req, err := http.NewRequest(http.MethodPut, srv.URL+"/labels/geometry/"+usage, strings.NewReader(body))
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusOK, put("order_qr", `{"width":58,"height":40}`))
	assert.Equal(t, http.StatusBadRequest, put("order_qr", `{"width":0,"height":40}`))
	assert.Equal(t, http.StatusBadRequest, put("order_qr", `not json`))
	assert.Equal(t, http.StatusNotFound, put("sticker", `{"width":10,"height":10}`))

	g = model.Geometry{}
	getJSON(t, srv.URL+"/labels/geometry/order_qr", &g)
	assert.Equal(t, model.Geometry{WidthMm: 58, HeightMm: 40}, g)
}

func TestTerminalProxy_ForwardsToDevice(t *testing.T) {
	device := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/status", r.URL.Path)
		assert.Equal(t, "processId=p-1", r.URL.RawQuery)
		assert.Equal(t, "tok", r.Header.Get("accesstoken"))
		w.WriteHeader(http.StatusTeapot)
		io.WriteString(w, `{"data":{"status":"wait"}}`)
	}))
	defer device.Close()
	u, err := url.Parse(device.URL)
	require.NoError(t, err)

	srv, _, _ := newTestAgent(t)
	q := url.Values{"ip": {u.Hostname()}, "port": {u.Port()}, "proto": {"http"}, "processId": {"p-1"}}
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/proxy/v2/status?"+q.Encode(), nil)
	require.NoError(t, err)
	req.Header.Set("accesstoken", "tok")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
	assert.JSONEq(t, `{"data":{"status":"wait"}}`, string(body))
}

func TestTerminalProxy_BadTarget(t *testing.T) {
	srv, _, _ := newTestAgent(t)

	resp, err := http.Get(srv.URL + "/proxy/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/proxy/status?ip=127.0.0.1&proto=ftp")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTerminalProxy_UnreachableDevice(t *testing.T) {
	device := httptest.NewServer(http.NotFoundHandler())
	u, _ := url.Parse(device.URL)
	device.Close()

	srv, _, _ := newTestAgent(t)
	resp, err := http.Get(srv.URL + "/proxy/status?ip=127.0.0.1&proto=http&port=" + u.Port())
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

// The payment client talks to the terminal through the agent exactly as the
// in-store frontends do.
func TestPaymentThroughAgentProxy(t *testing.T) {
	device := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/register":
			assert.Equal(t, "Aida", r.URL.Query().Get("name"))
			io.WriteString(w, `{"data":{"accessToken":"a","refreshToken":"r","expirationDate":"2030-01-01"}}`)
		case "/deviceinfo":
			assert.Equal(t, "a", r.Header.Get("accesstoken"))
			io.WriteString(w, `{"data":{"posNum":"1","serialNum":"S","terminalId":"T"}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer device.Close()
	u, err := url.Parse(device.URL)
	require.NoError(t, err)

	srv, _, store := newTestAgent(t)
	ctx := context.Background()
	client, err := payment.New(ctx, payment.Config{
		AgentURL:     srv.URL,
		DeviceIP:     u.Hostname(),
		DevicePort:   u.Port(),
		DeviceProto:  "http",
		PollInterval: 10 * time.Millisecond,
	}, store)
	require.NoError(t, err)

	_, err = client.Register(ctx, "Aida")
	require.NoError(t, err)
	info, err := client.DeviceInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "T", info.TerminalID)
}
