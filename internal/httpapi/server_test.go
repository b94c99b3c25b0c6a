package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mesh-intelligence/homebook/internal/ledger"
	"github.com/mesh-intelligence/homebook/internal/sqlite"
	"github.com/mesh-intelligence/homebook/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))
}

type client struct {
	t  *testing.T
	ts *httptest.Server
}

func newClient(t *testing.T) *client {
	t.Helper()
	store := sqlite.NewBackend()
	require.NoError(t, store.Attach(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}))
	t.Cleanup(func() { _ = store.Detach() })

	srv := New(ledger.New(store), Config{}, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &client{t: t, ts: ts}
}

// do sends body as JSON unless it is an io.Reader, and returns the status
// and response body.
func (c *client) do(method, path, user string, body any) (int, []byte) {
	c.t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case io.Reader:
		rd = b
	default:
		data, err := json.Marshal(b)
		require.NoError(c.t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.ts.URL+path, rd)
	require.NoError(c.t, err)
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	resp, err := c.ts.Client().Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	return resp.StatusCode, out
}

func (c *client) decode(data []byte, v any) {
	c.t.Helper()
	require.NoError(c.t, json.Unmarshal(data, v), string(data))
}

func (c *client) ledger(owner string) string {
	c.t.Helper()
	code, body := c.do(http.MethodPost, "/api/v1/ledgers", owner, map[string]string{"name": "Household", "currency": "USD"})
	require.Equal(c.t, http.StatusCreated, code, string(body))
	var l types.Ledger
	c.decode(body, &l)
	return l.LedgerID
}

func TestHealthAndMetrics(t *testing.T) {
	c := newClient(t)
	code, body := c.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	code, body = c.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), `homebook_http_requests_total{code="200",method="GET",route="/healthz"} 1`)
	assert.Contains(t, string(body), "homebook_txcache_transactions")
}

func TestRequiresUser(t *testing.T) {
	c := newClient(t)
	code, body := c.do(http.MethodGet, "/api/v1/ledgers", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Contains(t, string(body), UserHeader)
}

func TestTransactionFlow(t *testing.T) {
	c := newClient(t)
	id := c.ledger("alice")
	base := "/api/v1/ledgers/" + id

	code, body := c.do(http.MethodPost, base+"/transactions", "alice", map[string]any{
		"type": "expense", "date": "2024-05-03", "amount": "12.50", "category1": "Food", "category2": "Groceries",
	})
	require.Equal(t, http.StatusCreated, code, string(body))
	var tx types.Transaction
	c.decode(body, &tx)
	assert.Equal(t, "2024-05", tx.Month())

	code, _ = c.do(http.MethodPost, base+"/transactions", "alice", map[string]any{
		"type": "income", "date": "2024-05-25", "amount": 100, "category1": "Salary",
	})
	require.Equal(t, http.StatusCreated, code)

	code, body = c.do(http.MethodGet, base+"/transactions?month=2024-05", "alice", nil)
	require.Equal(t, http.StatusOK, code)
	var txs []types.Transaction
	c.decode(body, &txs)
	assert.Len(t, txs, 2)

	code, body = c.do(http.MethodPut, base+"/transactions/"+tx.TransactionID, "alice", map[string]any{
		"type": "expense", "date": "2024-06-01", "amount": "20", "category1": "Food",
	})
	require.Equal(t, http.StatusOK, code, string(body))

	code, body = c.do(http.MethodGet, base+"/months", "alice", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `["2024-05","2024-06"]`, string(body))

	code, body = c.do(http.MethodGet, base+"/transactions?from=2024-06&to=2024-06", "alice", nil)
	require.Equal(t, http.StatusOK, code)
	c.decode(body, &txs)
	require.Len(t, txs, 1)
	assert.Equal(t, "20", txs[0].Amount.String())

	code, body = c.do(http.MethodGet, base+"/summary/month/2024-05", "alice", nil)
	require.Equal(t, http.StatusOK, code)
	var month struct {
		Net   string `json:"net"`
		Count int    `json:"count"`
	}
	c.decode(body, &month)
	assert.Equal(t, "100", month.Net)
	assert.Equal(t, 1, month.Count)

	code, _ = c.do(http.MethodDelete, base+"/transactions/"+tx.TransactionID, "alice", nil)
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = c.do(http.MethodGet, base+"/transactions/"+tx.TransactionID, "alice", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestErrorMapping(t *testing.T) {
	c := newClient(t)
	id := c.ledger("alice")
	base := "/api/v1/ledgers/" + id

	tests := []struct {
		name   string
		method string
		path   string
		user   string
		body   any
		want   int
	}{
		{"not a member", http.MethodGet, base, "mallory", nil, http.StatusForbidden},
		{"unknown ledger", http.MethodGet, "/api/v1/ledgers/nope", "alice", nil, http.StatusForbidden},
		{"unknown transaction", http.MethodGet, base + "/transactions/nope", "alice", nil, http.StatusNotFound},
		{"bad date", http.MethodPost, base + "/transactions", "alice",
			map[string]any{"type": "expense", "date": "May 3", "amount": "1", "category1": "Food"}, http.StatusBadRequest},
		{"negative amount", http.MethodPost, base + "/transactions", "alice",
			map[string]any{"type": "expense", "date": "2024-05-03", "amount": "-1", "category1": "Food"}, http.StatusBadRequest},
		{"unknown field", http.MethodPost, base + "/transactions", "alice", map[string]any{"colour": "red"}, http.StatusBadRequest},
		{"bad month", http.MethodGet, base + "/summary/month/2024-13", "alice", nil, http.StatusBadRequest},
		{"bad year", http.MethodGet, base + "/summary/year/soon", "alice", nil, http.StatusBadRequest},
		{"half range", http.MethodGet, base + "/transactions?from=2024-01", "alice", nil, http.StatusBadRequest},
		{"owner cannot leave", http.MethodPost, base + "/leave", "alice", nil, http.StatusConflict},
		{"not a workbook", http.MethodPost, base + "/workbook", "alice", strings.NewReader("a,b\n"), http.StatusUnprocessableEntity},
		{"bad layout", http.MethodPost, base + "/workbook/legacy?layout=date=A", "alice", strings.NewReader(""), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := c.do(tt.method, tt.path, tt.user, tt.body)
			assert.Equal(t, tt.want, code, string(body))
			var e errorBody
			require.NoError(t, json.Unmarshal(body, &e))
			assert.NotEmpty(t, e.Error)
		})
	}
}

func TestMembershipFlow(t *testing.T) {
	c := newClient(t)
	id := c.ledger("alice")
	base := "/api/v1/ledgers/" + id

	code, body := c.do(http.MethodPost, base+"/invitations", "alice", map[string]string{"email": "bob@example.com", "role": "viewer"})
	require.Equal(t, http.StatusCreated, code, string(body))
	var inv types.Invitation
	c.decode(body, &inv)

	code, _ = c.do(http.MethodPost, "/api/v1/invitations/"+strings.ToLower(inv.Code)+"/accept", "bob", nil)
	require.Equal(t, http.StatusOK, code)

	code, body = c.do(http.MethodGet, "/api/v1/ledgers", "bob", nil)
	require.Equal(t, http.StatusOK, code)
	var ls []types.Ledger
	c.decode(body, &ls)
	require.Len(t, ls, 1)
	assert.Equal(t, id, ls[0].LedgerID)

	code, _ = c.do(http.MethodPost, base+"/transactions", "bob", map[string]any{
		"type": "expense", "date": "2024-05-03", "amount": "1", "category1": "Food",
	})
	assert.Equal(t, http.StatusForbidden, code, "viewers cannot record")

	code, body = c.do(http.MethodPut, base+"/members/bob", "alice", map[string]string{"role": "editor"})
	require.Equal(t, http.StatusOK, code, string(body))

	code, _ = c.do(http.MethodPost, base+"/transactions", "bob", map[string]any{
		"type": "expense", "date": "2024-05-03", "amount": "1", "category1": "Food",
	})
	assert.Equal(t, http.StatusCreated, code)

	code, _ = c.do(http.MethodPost, base+"/leave", "bob", nil)
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = c.do(http.MethodGet, base, "bob", nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestAssetsAndNetWorth(t *testing.T) {
	c := newClient(t)
	base := "/api/v1/ledgers/" + c.ledger("alice")

	code, body := c.do(http.MethodPost, base+"/assets", "alice", map[string]any{"kind": "account", "name": "Checking", "balance": "100"})
	require.Equal(t, http.StatusCreated, code, string(body))
	var a types.Asset
	c.decode(body, &a)

	code, body = c.do(http.MethodPost, base+"/assets/"+a.AssetID+"/deposit", "alice", map[string]any{"amount": "50", "note": "pay"})
	require.Equal(t, http.StatusOK, code, string(body))
	code, _ = c.do(http.MethodPost, base+"/assets/"+a.AssetID+"/withdraw", "alice", map[string]any{"amount": "0"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = c.do(http.MethodPost, base+"/assets", "alice", map[string]any{"kind": "liability", "name": "Card", "balance": "30"})
	require.Equal(t, http.StatusCreated, code, string(body))

	code, body = c.do(http.MethodGet, base+"/summary/networth", "alice", nil)
	require.Equal(t, http.StatusOK, code)
	var nw struct {
		Total string `json:"total"`
	}
	c.decode(body, &nw)
	assert.Equal(t, "120", nw.Total)

	code, body = c.do(http.MethodGet, base+"/assets/"+a.AssetID+"/history", "alice", nil)
	require.Equal(t, http.StatusOK, code)
	var history []types.AssetMutation
	c.decode(body, &history)
	assert.Len(t, history, 2)
}

func TestWorkbookRoundTrip(t *testing.T) {
	c := newClient(t)
	src := "/api/v1/ledgers/" + c.ledger("alice")
	code, _ := c.do(http.MethodPost, src+"/transactions", "alice", map[string]any{
		"type": "expense", "date": "2024-05-03", "amount": "12.50", "category1": "Food",
	})
	require.Equal(t, http.StatusCreated, code)

	req, err := http.NewRequest(http.MethodGet, c.ts.URL+src+"/workbook", nil)
	require.NoError(t, err)
	req.Header.Set(UserHeader, "alice")
	resp, err := c.ts.Client().Do(req)
	require.NoError(t, err)
	workbook, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, xlsxType, resp.Header.Get("Content-Type"))

	dst := "/api/v1/ledgers/" + c.ledger("alice")
	code, body := c.do(http.MethodPost, dst+"/workbook", "alice", bytes.NewReader(workbook))
	require.Equal(t, http.StatusCreated, code, string(body))
	var report ledger.ImportReport
	c.decode(body, &report)
	assert.Equal(t, 1, report.Imported)
	assert.Equal(t, []string{"2024-05"}, report.Months)
}

func TestServeShutsDown(t *testing.T) {
	store := sqlite.NewBackend()
	require.NoError(t, store.Attach(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}))
	defer store.Detach()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := New(ledger.New(store), Config{ShutdownTimeout: time.Second}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)
	http.DefaultClient.CloseIdleConnections()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
