package telegram

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const welcomeText = `🤖 Welcome to PortfolioBuddy!

I'm your personal investment assistant that helps you:
• Track your portfolio performance
• Analyze individual stocks
• Get market insights and news
• Receive actionable recommendations

Commands:
/start - Show this welcome message
/portfolio - View your portfolio summary
/analyze SYMBOL - Analyze a specific stock

Just ask me questions like:
• "How is my portfolio doing?"
• "What's happening with AAPL?"
• "Should I buy more TSLA?"
• "Show me my worst performers"

Let's get started! 📈`

const (
	portfolioPrompt = "Show me my portfolio summary"
	analyzeUsage    = "Please provide a stock symbol. Usage: /analyze AAPL"
	historyLimit    = 5
)

func handleStart(_ context.Context, bot *Bot, message *tgbotapi.Message) error {
	return bot.SendMessage(message.Chat.ID, welcomeText)
}

func handlePortfolio(ctx context.Context, bot *Bot, message *tgbotapi.Message) error {
	return bot.converse(ctx, message, portfolioPrompt)
}

func handleAnalyze(ctx context.Context, bot *Bot, message *tgbotapi.Message) error {
	args := strings.Fields(message.CommandArguments())
	if len(args) == 0 {
		return bot.SendMessage(message.Chat.ID, analyzeUsage)
	}
	return bot.converse(ctx, message, "Analyze "+strings.ToUpper(args[0]))
}

func handleHistory(ctx context.Context, bot *Bot, message *tgbotapi.Message) error {
	if bot.history == nil {
		return bot.SendMessage(message.Chat.ID, "Conversation history is not enabled.")
	}

	turns, err := bot.history.Recent(ctx, userID(message), historyLimit)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}
	if len(turns) == 0 {
		return bot.SendMessage(message.Chat.ID, "No conversation history yet.")
	}

	var b strings.Builder
	b.WriteString("🕑 Your recent questions:\n")
	for _, t := range turns {
		fmt.Fprintf(&b, "\n%s • %s", t.CreatedAt.Format("Jan 2 15:04"), t.UserText)
		if t.Action != nil {
			fmt.Fprintf(&b, " → %s", strings.ToUpper(*t.Action))
		}
	}
	return bot.SendMessage(message.Chat.ID, b.String())
}
