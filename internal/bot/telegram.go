package bot

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"

	"stock-signal-lab/internal/backtest"
	"stock-signal-lab/internal/service"
)

func StartTelegramBot(research *service.ResearchService, defaults backtest.Params) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		log.Println("TELEGRAM_BOT_TOKEN not set, skipping Telegram bot startup")
		return
	}
	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}
	b, err := tele.NewBot(pref)
	if err != nil {
		log.Fatalf("failed to create Telegram bot: %v", err)
	}

	b.Handle("/ping", func(c tele.Context) error {
		return c.Send("pong")
	})

	b.Handle("/predict", func(c tele.Context) error {
		args := c.Args()
		if len(args) == 0 {
			return c.Send("Usage: /predict AAPL")
		}
		ticker := strings.ToUpper(args[0])
		pred, err := research.Predict(context.Background(), ticker)
		if err != nil {
			return c.Send(fmt.Sprintf("Error predicting %s: %v", ticker, err))
		}
		msg := fmt.Sprintf(
			"%s\nSignal: %s\nProbability: %.3f (threshold %.3f)\nModel: %s v%d",
			ticker, pred.Signal, pred.Probability, pred.Threshold, pred.ModelKey, pred.Version,
		)
		return c.Send(msg)
	})

	b.Handle("/backtest", func(c tele.Context) error {
		args := c.Args()
		if len(args) == 0 {
			return c.Send("Usage: /backtest AAPL")
		}
		ticker := strings.ToUpper(args[0])
		report, err := research.Backtest(context.Background(), ticker, "", defaults)
		if err != nil {
			return c.Send(fmt.Sprintf("Error backtesting %s: %v", ticker, err))
		}
		if report.Empty {
			return c.Send(fmt.Sprintf("%s: not enough usable windows for a backtest", ticker))
		}
		msg := fmt.Sprintf(
			"%s walk-forward\nWindows: %d\nWin rate: %.1f%%\nCumulative: %.2f%%\nSharpe: %.2f\nBuy&hold: %.2f%%\nPortfolio: $%.0f -> $%.0f (max DD %.1f%%)",
			ticker,
			report.Windows,
			report.StepStats.WinRate*100,
			report.StepStats.CumulativeReturn*100,
			report.StepStats.Sharpe,
			report.StepStats.BuyAndHold*100,
			report.Portfolio.InitialCash,
			report.Portfolio.FinalValue,
			report.Portfolio.MaxDrawdown*100,
		)
		return c.Send(msg)
	})

	log.Println("Telegram bot started")
	go b.Start()
}
