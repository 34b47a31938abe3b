package messenger

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile models the structure of configs/bot.yaml, describing the Telegram
// bot that performs out-of-band link confirmations.
type Profile struct {
	BotUsername  string `yaml:"bot_username"`
	DeepLinkBase string `yaml:"deep_link_base"`
}

// DefaultProfile is used when no bot profile file is configured.
var DefaultProfile = Profile{
	BotUsername:  "OstiumTradingBot",
	DeepLinkBase: "https://t.me",
}

// LoadProfile parses the YAML file containing the bot profile. An empty path
// yields the default profile.
func LoadProfile(path string) (Profile, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultProfile, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("读取机器人配置失败: %w", err)
	}

	var profile Profile
	if err := yaml.Unmarshal(content, &profile); err != nil {
		return Profile{}, fmt.Errorf("解析机器人配置失败: %w", err)
	}
	if profile.BotUsername == "" {
		profile.BotUsername = DefaultProfile.BotUsername
	}
	if profile.DeepLinkBase == "" {
		profile.DeepLinkBase = DefaultProfile.DeepLinkBase
	}
	return profile, nil
}

// DeepLink builds the t.me start link that carries a link code to the bot.
func (p Profile) DeepLink(code string) string {
	base := strings.TrimRight(p.DeepLinkBase, "/")
	return fmt.Sprintf("%s/%s?start=%s", base, p.BotUsername, code)
}

// DemoIdentity is the synthesized account used when the poll endpoint
// auto-confirms a link in demo deployments without a live bot.
type DemoIdentity struct {
	ID             string
	TelegramUserID string
	Username       string
}

// SynthesizeDemoIdentity derives a deterministic demo account for a wallet.
func SynthesizeDemoIdentity(walletID string) DemoIdentity {
	short := walletID
	if len(short) > 6 {
		short = short[:6]
	}
	return DemoIdentity{
		ID:             "user-" + short,
		TelegramUserID: "12345678",
		Username:       "demo_user",
	}
}
