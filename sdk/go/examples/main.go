package main

import (
	"context"
	"fmt"
	"net/http/httptest"
	"time"

	"Maxxit-Agent/internal/api"
	"Maxxit-Agent/internal/onboarding"
	"Maxxit-Agent/sdk/go/maxxit"
)

// 演示完整的引导向导：生成智能体地址、签发绑定码、确认绑定并完成设置。
func main() {
	prov := onboarding.NewProvisioner(nil)
	service := onboarding.NewService(
		onboarding.NewMemoryStore(),
		onboarding.NewMemoryRegistry(prov, 15*time.Minute),
		prov,
	)
	defer service.Close()

	srv := httptest.NewServer(api.NewServer(":0", service).Handler())
	defer srv.Close()

	client := maxxit.NewClient(srv.URL, srv.Client())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const wallet = "0x2170ed0880ac9a755fd29b2688956bd959f933f8"

	identity, err := client.GenerateAgent(ctx, wallet)
	if err != nil {
		panic(err)
	}
	fmt.Printf("agent address %s (new=%v)\n", identity.AgentAddress, identity.IsNew)

	offer, err := client.GenerateLink(ctx, wallet)
	if err != nil {
		panic(err)
	}
	fmt.Printf("open %s to link your Telegram account\n", offer.DeepLink)

	// 线上由 Telegram 机器人确认；演示里直接调用确认入口。
	confirm, err := client.ConfirmLink(ctx, offer.LinkCode, maxxit.Account{
		ID:             "user-demo",
		TelegramUserID: "12345678",
		Username:       "demo_user",
	})
	if err != nil {
		panic(err)
	}
	fmt.Printf("linked wallet %s\n", confirm.Wallet)

	status, err := client.PollLinkStatus(ctx, wallet, "")
	if err != nil {
		panic(err)
	}
	fmt.Printf("connected=%v as @%s\n", status.Connected, status.TelegramUser.Username)

	result, err := client.FinalizeSetup(ctx, wallet, "", map[string]float64{
		"riskTolerance": 60,
		"maxLeverage":   5,
	})
	if err != nil {
		panic(err)
	}
	fmt.Printf("agent %s is %s on %s\n", result.Agent.ID, result.Agent.Status, result.Deployment.Network)

	setup, err := client.CheckSetup(ctx, wallet)
	if err != nil {
		panic(err)
	}
	fmt.Printf("setup complete: %v\n", setup.IsSetupComplete)
}
