package bot

import (
	"testing"

	"stock-signal-lab/internal/backtest"
)

func TestStartTelegramBotSkipsWithoutToken(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	StartTelegramBot(nil, backtest.DefaultParams())
}
