package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecouncil/internal/approval"
	"tradecouncil/internal/config"
	"tradecouncil/internal/safety"
	"tradecouncil/internal/signal"
)

func newTestServer(t *testing.T) (*Server, *approval.Gate, *safety.Manager) {
	t.Helper()
	gate := approval.NewGate(0.75, time.Minute, nil)
	mgr := safety.NewManager(config.SafetyConfig{
		MaxConsecutiveLosses: 1,
		RiskBudgetPct:        0.01,
		ATRRiskMultiplier:    2.0,
		MaxPositionPct:       0.20,
	}, nil, nil)
	s, err := NewServer(Config{Addr: ":0", Gate: gate, Safety: mgr})
	require.NoError(t, err)
	return s, gate, mgr
}

func doJSON(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestNewServerRequiresGateAndSafety(t *testing.T) {
	_, err := NewServer(Config{})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	s, _, _ := newTestServer(t)
	w := doJSON(s, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestApprovalRoundTripOverHTTP(t *testing.T) {
	s, gate, _ := newTestServer(t)

	type outcome struct {
		approved bool
		feedback string
	}
	done := make(chan outcome, 1)
	go func() {
		ok, fb := gate.RequestApproval(context.Background(), "BTCUSDT", signal.ActionBuy, 0.6, "weighted vote")
		done <- outcome{ok, fb}
	}()

	// 等待请求挂起
	var id string
	require.Eventually(t, func() bool {
		pending := gate.Pending()
		if len(pending) == 0 {
			return false
		}
		id = pending[0].ID
		return true
	}, time.Second, 5*time.Millisecond)

	w := doJSON(s, http.MethodGet, "/api/approvals", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), id)

	w = doJSON(s, http.MethodPost, "/api/approvals/"+id+"/resolve", `{"action": "approve", "feedback": "go"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	select {
	case res := <-done:
		assert.True(t, res.approved)
		assert.Equal(t, "go", res.feedback)
	case <-time.After(time.Second):
		t.Fatal("approval did not resolve")
	}
}

func TestApprovalResolveValidation(t *testing.T) {
	s, _, _ := newTestServer(t)

	w := doJSON(s, http.MethodPost, "/api/approvals/whatever/resolve", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(s, http.MethodPost, "/api/approvals/missing/resolve", `{"action": "approve"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSafetyStatusAndReset(t *testing.T) {
	s, _, mgr := newTestServer(t)

	mgr.RecordTradeResult(-100) // 连亏上限 1，立即熔断

	w := doJSON(s, http.MethodGet, "/api/safety", "")
	assert.Equal(t, http.StatusOK, w.Code)
	var status struct {
		Halted bool   `json:"halted"`
		Reason string `json:"reason"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.True(t, status.Halted)
	assert.NotEmpty(t, status.Reason)

	// 复位必须带 by 与 why
	w = doJSON(s, http.MethodPost, "/api/safety/reset", `{"by": "ops"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(s, http.MethodPost, "/api/safety/reset", `{"by": "ops", "why": "reviewed positions"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	// 未熔断时复位是冲突
	w = doJSON(s, http.MethodPost, "/api/safety/reset", `{"by": "ops", "why": "again"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestStoreBackedRoutesWithoutStore(t *testing.T) {
	s, _, _ := newTestServer(t)

	w := doJSON(s, http.MethodGet, "/api/decisions", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = doJSON(s, http.MethodGet, "/api/approvals/history", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = doJSON(s, http.MethodPost, "/api/run", `{}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
