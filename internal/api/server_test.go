package api

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"Maxxit-Agent/internal/onboarding"
)

func newTestServer(t *testing.T, opts ...onboarding.Option) *Server {
	t.Helper()
	prov := onboarding.NewProvisioner(rand.New(rand.NewSource(7)))
	registry := onboarding.NewMemoryRegistry(prov, time.Minute)
	svc := onboarding.NewService(onboarding.NewMemoryStore(), registry, prov, opts...)
	return NewServer(":0", svc)
}

func postJSON(t *testing.T, handler http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func getPath(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestGenerateAgentEndpoint(t *testing.T) {
	server := newTestServer(t)
	handler := server.Handler()

	rec := postJSON(t, handler, "/api/v1/onboarding/generate-agent", `{"walletAddress":"0xwallet"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code: got %d want %d, body %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var first struct {
		AgentAddress string `json:"agentAddress"`
		IsNew        bool   `json:"isNew"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &first); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !first.IsNew {
		t.Fatalf("expected isNew on first generation")
	}
	if !strings.HasPrefix(first.AgentAddress, "0x") || len(first.AgentAddress) != 42 {
		t.Fatalf("unexpected agent address %q", first.AgentAddress)
	}

	rec = postJSON(t, handler, "/api/v1/onboarding/generate-agent", `{"walletAddress":"0xwallet"}`)
	var second struct {
		AgentAddress string `json:"agentAddress"`
		IsNew        bool   `json:"isNew"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &second); err != nil {
		t.Fatalf("decode repeat response: %v", err)
	}
	if second.IsNew || second.AgentAddress != first.AgentAddress {
		t.Fatalf("repeat generation drifted: %+v vs %+v", second, first)
	}
}

func TestGenerateAgentValidation(t *testing.T) {
	server := newTestServer(t)
	handler := server.Handler()

	t.Run("missing wallet", func(t *testing.T) {
		rec := postJSON(t, handler, "/api/v1/onboarding/generate-agent", `{}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := postJSON(t, handler, "/api/v1/onboarding/generate-agent", `{"walletAddress":`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
		}
	})
}

func TestUnknownActionReturnsNotFound(t *testing.T) {
	server := newTestServer(t)
	handler := server.Handler()

	rec := postJSON(t, handler, "/api/v1/onboarding/self-destruct", `{"walletAddress":"0xwallet"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Error.Code != "UNKNOWN_OPERATION" {
		t.Fatalf("unexpected error code %q", body.Error.Code)
	}
}

func TestLinkFlowEndpoints(t *testing.T) {
	server := newTestServer(t)
	handler := server.Handler()

	if rec := postJSON(t, handler, "/api/v1/onboarding/generate-agent", `{"walletAddress":"0xwallet"}`); rec.Code != http.StatusOK {
		t.Fatalf("generate agent: status %d", rec.Code)
	}

	rec := postJSON(t, handler, "/api/v1/onboarding/generate-link", `{"walletAddress":"0xwallet"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("generate link: status %d body %s", rec.Code, rec.Body.String())
	}
	var offer struct {
		AlreadyLinked bool   `json:"alreadyLinked"`
		LinkCode      string `json:"linkCode"`
		DeepLink      string `json:"deepLink"`
		BotUsername   string `json:"botUsername"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &offer); err != nil {
		t.Fatalf("decode offer: %v", err)
	}
	if offer.AlreadyLinked || offer.LinkCode == "" {
		t.Fatalf("unexpected offer: %+v", offer)
	}
	if !strings.Contains(offer.DeepLink, "?start="+offer.LinkCode) {
		t.Fatalf("deep link %q does not carry the code", offer.DeepLink)
	}

	// 未确认之前轮询必须返回未连接。
	rec = getPath(t, handler, "/api/v1/onboarding/poll-link-status?wallet=0xwallet")
	var status struct {
		Connected bool `json:"connected"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode poll: %v", err)
	}
	if status.Connected {
		t.Fatalf("wallet connected before confirmation")
	}

	body := `{"linkCode":"` + offer.LinkCode + `","telegramUser":{"id":"user-1","telegram_user_id":"4242","telegram_username":"alice"}}`
	rec = postJSON(t, handler, "/api/v1/onboarding/confirm-link", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm link: status %d body %s", rec.Code, rec.Body.String())
	}
	var confirm struct {
		Success bool   `json:"success"`
		Wallet  string `json:"wallet"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &confirm); err != nil {
		t.Fatalf("decode confirm: %v", err)
	}
	if !confirm.Success || confirm.Wallet != "0xwallet" {
		t.Fatalf("unexpected confirm response: %+v", confirm)
	}

	rec = getPath(t, handler, "/api/v1/onboarding/poll-link-status?wallet=0xwallet")
	var linked struct {
		Connected bool `json:"connected"`
		Account   *struct {
			Username string `json:"telegram_username"`
		} `json:"telegramUser"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &linked); err != nil {
		t.Fatalf("decode poll after confirm: %v", err)
	}
	if !linked.Connected || linked.Account == nil || linked.Account.Username != "alice" {
		t.Fatalf("unexpected linked status: %+v", linked)
	}
}

func TestConfirmLinkUnknownCode(t *testing.T) {
	server := newTestServer(t)
	handler := server.Handler()

	rec := postJSON(t, handler, "/api/v1/onboarding/confirm-link", `{"linkCode":"BADCOD","telegramUser":{"id":"user-1"}}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestFinalizeAndCheckSetupEndpoints(t *testing.T) {
	server := newTestServer(t)
	handler := server.Handler()

	if rec := postJSON(t, handler, "/api/v1/onboarding/generate-agent", `{"walletAddress":"0xwallet"}`); rec.Code != http.StatusOK {
		t.Fatalf("generate agent: status %d", rec.Code)
	}
	rec := postJSON(t, handler, "/api/v1/onboarding/generate-link", `{"walletAddress":"0xwallet"}`)
	var offer struct {
		LinkCode string `json:"linkCode"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &offer); err != nil {
		t.Fatalf("decode offer: %v", err)
	}
	body := `{"linkCode":"` + offer.LinkCode + `","telegramUser":{"id":"user-1"}}`
	if rec := postJSON(t, handler, "/api/v1/onboarding/confirm-link", body); rec.Code != http.StatusOK {
		t.Fatalf("confirm: status %d", rec.Code)
	}

	rec = postJSON(t, handler, "/api/v1/onboarding/finalize-setup",
		`{"walletAddress":"0xwallet","tradingPreferences":{"riskTolerance":60}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("finalize: status %d body %s", rec.Code, rec.Body.String())
	}
	var result struct {
		Success bool `json:"success"`
		Agent   *struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"agent"`
		Deployment *struct {
			Network string `json:"network"`
		} `json:"deployment"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode finalize: %v", err)
	}
	if !result.Success || result.Agent == nil || result.Agent.Status != "active" {
		t.Fatalf("unexpected finalize result: %+v", result)
	}
	if result.Deployment == nil || result.Deployment.Network != onboarding.DefaultNetwork {
		t.Fatalf("unexpected deployment: %+v", result.Deployment)
	}

	rec = getPath(t, handler, "/api/v1/onboarding/check-setup?wallet=0xwallet")
	var setup struct {
		IsSetupComplete bool               `json:"isSetupComplete"`
		Preferences     map[string]float64 `json:"tradingPreferences"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &setup); err != nil {
		t.Fatalf("decode check-setup: %v", err)
	}
	if !setup.IsSetupComplete || setup.Preferences["riskTolerance"] != 60 {
		t.Fatalf("unexpected setup status: %+v", setup)
	}
}

func TestFinalizeBeforeLinkRejected(t *testing.T) {
	server := newTestServer(t)
	handler := server.Handler()

	rec := postJSON(t, handler, "/api/v1/onboarding/finalize-setup",
		`{"walletAddress":"0xmissing","tradingPreferences":{"riskTolerance":60}}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}

	if rec := postJSON(t, handler, "/api/v1/onboarding/generate-agent", `{"walletAddress":"0xwallet"}`); rec.Code != http.StatusOK {
		t.Fatalf("generate agent: status %d", rec.Code)
	}
	rec = postJSON(t, handler, "/api/v1/onboarding/finalize-setup",
		`{"walletAddress":"0xwallet","tradingPreferences":{"riskTolerance":60}}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d for unlinked wallet, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestCheckSetupMissingWalletParam(t *testing.T) {
	server := newTestServer(t)
	handler := server.Handler()

	rec := getPath(t, handler, "/api/v1/onboarding/check-setup")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestRequestIDPropagation(t *testing.T) {
	server := newTestServer(t)
	handler := server.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/onboarding/check-setup?wallet=0xwallet", nil)
	req.Header.Set("X-Request-Id", "req-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-Id"); got != "req-123" {
		t.Fatalf("request id not propagated: %q", got)
	}

	rec = getPath(t, handler, "/api/v1/onboarding/check-setup?wallet=0xwallet")
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("request id not assigned")
	}
}
