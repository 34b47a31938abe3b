package maxxit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGenerateAgent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/onboarding/generate-agent" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		var req struct {
			WalletAddress string `json:"walletAddress"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("unexpected body: %v", err)
		}
		if req.WalletAddress != "0xwallet" {
			t.Fatalf("unexpected wallet %q", req.WalletAddress)
		}
		_ = json.NewEncoder(w).Encode(AgentIdentity{
			AgentAddress: "0xagent",
			IsNew:        true,
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, srv.Client())

	identity, err := client.GenerateAgent(context.Background(), "0xwallet")
	if err != nil {
		t.Fatalf("generate agent: %v", err)
	}
	if identity.AgentAddress != "0xagent" || !identity.IsNew {
		t.Fatalf("unexpected identity: %+v", identity)
	}
}

func TestPollLinkStatusQueryParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/onboarding/poll-link-status" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("wallet"); got != "0xwallet" {
			t.Fatalf("unexpected wallet param %q", got)
		}
		if got := r.URL.Query().Get("code"); got != "ABC123" {
			t.Fatalf("unexpected code param %q", got)
		}
		_ = json.NewEncoder(w).Encode(LinkStatus{
			Connected:    true,
			TelegramUser: &Account{ID: "user-1", Username: "alice"},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, srv.Client())

	status, err := client.PollLinkStatus(context.Background(), "0xwallet", "ABC123")
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if !status.Connected || status.TelegramUser == nil || status.TelegramUser.Username != "alice" {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestFinalizeSetup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/onboarding/finalize-setup" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		var req struct {
			WalletAddress      string             `json:"walletAddress"`
			TradingPreferences map[string]float64 `json:"tradingPreferences"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.TradingPreferences["riskTolerance"] != 60 {
			t.Fatalf("unexpected preferences: %+v", req.TradingPreferences)
		}
		_ = json.NewEncoder(w).Encode(SetupResult{
			Success:      true,
			Agent:        &AgentInfo{ID: "agent-ABC123", Status: "active"},
			Deployment:   &Deployment{Address: "0xagent", Network: "arbitrum-sepolia"},
			AgentAddress: "0xagent",
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, srv.Client())

	result, err := client.FinalizeSetup(context.Background(), "0xwallet", "", map[string]float64{"riskTolerance": 60})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if !result.Success || result.Agent == nil || result.Agent.Status != "active" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestAPIErrorDecoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":"LINK_CODE_NOT_FOUND","message":"code expired"}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, srv.Client())

	_, err := client.ConfirmLink(context.Background(), "BADCOD", Account{ID: "user-1"})
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Code != "LINK_CODE_NOT_FOUND" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
}
