package telegram

import (
	"context"

	"codequiz-publisher/pkg/config"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// SetupBotProfile pushes the bot's commands, menu button and description
// to Telegram on startup. Failures are logged, not fatal: publication does
// not depend on the profile.
func SetupBotProfile(p *Publisher, cfg *config.Config) {
	commands := tgbotapi.NewSetMyCommands(
		tgbotapi.BotCommand{Command: "start", Description: "Open the quiz"},
		tgbotapi.BotCommand{Command: "help", Description: "How to play"},
	)
	if _, err := p.api.Request(commands); err != nil {
		zap.L().Warn("setMyCommands failed", zap.Error(err))
	}

	if cfg.Telegram.MiniAppURL != "" {
		menu := tgbotapi.Params{}
		_ = menu.AddInterface("menu_button", map[string]any{
			"type":    "web_app",
			"text":    "Play",
			"web_app": map[string]string{"url": cfg.Telegram.MiniAppURL},
		})
		if _, err := p.api.MakeRequest("setChatMenuButton", menu); err != nil {
			zap.L().Warn("setChatMenuButton failed", zap.Error(err))
		}
	}

	if cfg.Telegram.BotDescription != "" {
		desc := tgbotapi.Params{}
		desc.AddNonEmpty("description", cfg.Telegram.BotDescription)
		if _, err := p.api.MakeRequest("setMyDescription", desc); err != nil {
			zap.L().Warn("setMyDescription failed", zap.Error(err))
		}
	}
}

func registerSetup(lc fx.Lifecycle, p *Publisher, cfg *config.Config) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go SetupBotProfile(p, cfg)
			return nil
		},
	})
}
