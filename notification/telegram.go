// Package notification provides implementations for various notification services
package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"slices"

	tb "gopkg.in/tucnak/telebot.v2"

	"github.com/raykavin/stopkeep/core"
	"github.com/raykavin/stopkeep/engine"
	"github.com/raykavin/stopkeep/keeper"
)

const pollingTimeout = 10 * time.Second

// Telegram implements the core.NotifierWithStart interface
type Telegram struct {
	settings    *core.Settings
	engine      *engine.Engine
	keeper      *keeper.Keeper
	defaultMenu *tb.ReplyMarkup
	client      *tb.Bot
	log         core.Logger
}

// Option is a function that configures a telegram instance
type Option func(telegram *Telegram)

// NewTelegram creates and initializes a new Telegram service
func NewTelegram(eng *engine.Engine, kpr *keeper.Keeper, settings *core.Settings, log core.Logger, options ...Option) (
	core.NotifierWithStart,
	error,
) {
	menu := &tb.ReplyMarkup{ResizeReplyKeyboard: true}
	poller := &tb.LongPoller{Timeout: pollingTimeout}
	userMiddleware := newAuthMiddleware(poller, settings, log)

	client, err := initializeBotClient(settings, userMiddleware)
	if err != nil {
		return nil, err
	}

	setupKeyboard(menu)
	if err := setupCommands(client); err != nil {
		return nil, fmt.Errorf("failed to set commands: %w", err)
	}

	bot := &Telegram{
		engine:      eng,
		keeper:      kpr,
		client:      client,
		settings:    settings,
		defaultMenu: menu,
		log:         log,
	}

	// Apply custom options if provided
	for _, option := range options {
		option(bot)
	}

	registerHandlers(client, bot)

	return bot, nil
}

// initializeBotClient creates and configures the Telegram bot client
func initializeBotClient(settings *core.Settings, middleware *tb.MiddlewarePoller) (*tb.Bot, error) {
	client, err := tb.NewBot(tb.Settings{
		ParseMode: tb.ModeMarkdown,
		Token:     settings.Telegram.Token,
		Poller:    middleware,
	})

	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return client, nil
}

// newAuthMiddleware creates a middleware to validate authorized users
func newAuthMiddleware(poller *tb.LongPoller, settings *core.Settings, log core.Logger) *tb.MiddlewarePoller {
	return tb.NewMiddlewarePoller(poller, func(u *tb.Update) bool {
		if u.Message == nil || u.Message.Sender == nil {
			log.Error("message or sender is nil ", u)
			return false
		}

		if slices.Contains(settings.Telegram.Users, int(u.Message.Sender.ID)) {
			return true
		}

		log.Error("unauthorized user ", u.Message.Sender.ID)
		return false
	})
}

// setupKeyboard configures the reply keyboard layout
func setupKeyboard(menu *tb.ReplyMarkup) {
	// Define keyboard buttons
	var (
		statusBtn  = menu.Text("/status")
		ordersBtn  = menu.Text("/orders")
		checkBtn   = menu.Text("/check")
		startBtn   = menu.Text("/start")
		stopBtn    = menu.Text("/stop")
		pauseBtn   = menu.Text("/pause")
		unpauseBtn = menu.Text("/unpause")
	)

	// Arrange keyboard layout
	menu.Reply(
		menu.Row(statusBtn, ordersBtn, checkBtn),
		menu.Row(startBtn, stopBtn, pauseBtn, unpauseBtn),
	)
}

// setupCommands configures available bot commands
func setupCommands(client *tb.Bot) error {
	return client.SetCommands([]tb.Command{
		{Text: "/help", Description: "Display help instructions"},
		{Text: "/status", Description: "Keeper and engine status"},
		{Text: "/orders", Description: "List configured trailing stops"},
		{Text: "/order", Description: "Show one trailing stop by id"},
		{Text: "/check", Description: "List watched orders due for an update"},
		{Text: "/start", Description: "Start the keeper loop"},
		{Text: "/stop", Description: "Stop the keeper loop"},
		{Text: "/pause", Description: "Halt updates and executions"},
		{Text: "/unpause", Description: "Resume updates and executions"},
	})
}

// registerHandlers registers all command handlers
func registerHandlers(client *tb.Bot, bot *Telegram) {
	client.Handle("/help", bot.HelpHandle)
	client.Handle("/status", bot.StatusHandle)
	client.Handle("/orders", bot.OrdersHandle)
	client.Handle("/order", bot.OrderHandle)
	client.Handle("/check", bot.CheckHandle)
	client.Handle("/start", bot.StartHandle)
	client.Handle("/stop", bot.StopHandle)
	client.Handle("/pause", bot.PauseHandle)
	client.Handle("/unpause", bot.UnpauseHandle)
}

// Start begins the Telegram bot and notifies all authorized users
func (t *Telegram) Start() {
	go t.client.Start()
	t.sendMessageWithOptions("Keeper bot initialized.", t.defaultMenu)
}

// Notification methods
// -------------------

// Notify sends a message to all authorized users
func (t *Telegram) Notify(text string) {
	for _, user := range t.settings.Telegram.Users {
		_, err := t.client.Send(&tb.User{ID: int64(user)}, text)
		if err != nil {
			t.log.WithError(err).Error("failed to send notification")
		}
	}
}

// sendMessageWithOptions sends a message to all authorized users with additional options
func (t *Telegram) sendMessageWithOptions(text string, options ...any) {
	for _, user := range t.settings.Telegram.Users {
		_, err := t.client.Send(&tb.User{ID: int64(user)}, text, options...)
		if err != nil {
			t.log.WithError(err).Error("failed to send notification with options")
		}
	}
}

// sendMessage sends a message to a specific user
func (t *Telegram) sendMessage(to *tb.User, text string, options ...any) {
	_, err := t.client.Send(to, text, options...)
	if err != nil {
		t.log.WithError(err).Error("failed to send message")
	}
}

// Command handlers
// ---------------

// HelpHandle displays available commands
func (t *Telegram) HelpHandle(m *tb.Message) {
	commands, err := t.client.GetCommands()
	if err != nil {
		t.log.WithError(err).Error("failed to get commands")
		t.OnError(err)
		return
	}

	lines := make([]string, 0, len(commands))
	for _, command := range commands {
		lines = append(lines, fmt.Sprintf("/%s - %s", command.Text, command.Description))
	}

	t.sendMessage(m.Sender, strings.Join(lines, "\n"))
}

// StatusHandle displays the keeper status, pause state and watchlist size
func (t *Telegram) StatusHandle(m *tb.Message) {
	paused := "running"
	if t.engine.Paused() {
		paused = "paused"
	}

	t.sendMessage(m.Sender, fmt.Sprintf("Keeper: `%s`\nEngine: `%s`\nWatched: `%d`",
		t.keeper.Status(), paused, len(t.keeper.Watched())))
}

// OrdersHandle lists every configured trailing stop
func (t *Telegram) OrdersHandle(m *tb.Message) {
	stops, err := t.engine.Stops(context.Background())
	if err != nil {
		t.OnError(err)
		return
	}

	if len(stops) == 0 {
		t.sendMessage(m.Sender, "No trailing stops configured.")
		return
	}

	lines := make([]string, 0, len(stops))
	for _, stop := range stops {
		lines = append(lines, fmt.Sprintf("`%s` stop `%s` (%s, %d bps)",
			shortID(stop.OrderID.Hex()), core.FormatPrice(stop.CurrentStop), stop.Oracle, stop.DistanceBps))
	}

	t.sendMessage(m.Sender, "*TRAILING STOPS*\n"+strings.Join(lines, "\n"))
}

// OrderHandle shows the full record of one trailing stop
func (t *Telegram) OrderHandle(m *tb.Message) {
	id, err := core.ParseOrderID(m.Payload)
	if err != nil {
		t.sendMessage(m.Sender, "Invalid command.\nExample of usage:\n`/order 0x<64 hex digits>`")
		return
	}

	stop, err := t.engine.Stop(context.Background(), id)
	if err != nil {
		t.OnError(err)
		return
	}

	t.sendMessage(m.Sender, fmt.Sprintf(
		"*TRAILING STOP*\nOrder: `%s`\nOracle: `%s`\nInitial: `%s`\nCurrent: `%s`\nDistance: `%d bps`\nInterval: `%s`\nLast update: `%s`",
		stop.OrderID.Hex(), stop.Oracle, core.FormatPrice(stop.InitialStop),
		core.FormatPrice(stop.CurrentStop), stop.DistanceBps, stop.UpdateEvery,
		stop.LastUpdateAt.Format(time.RFC3339)))
}

// CheckHandle lists the watched orders whose update interval has elapsed
func (t *Telegram) CheckHandle(m *tb.Message) {
	due, err := t.keeper.CheckDue(context.Background(), t.keeper.Watched())
	if err != nil {
		t.OnError(err)
		return
	}

	if len(due) == 0 {
		t.sendMessage(m.Sender, "No orders due.")
		return
	}

	lines := make([]string, 0, len(due))
	for _, id := range due {
		lines = append(lines, fmt.Sprintf("`%s`", shortID(id.Hex())))
	}
	t.sendMessage(m.Sender, "*DUE ORDERS*\n"+strings.Join(lines, "\n"))
}

// StartHandle starts the keeper loop
func (t *Telegram) StartHandle(m *tb.Message) {
	if t.keeper.Status() == keeper.StatusRunning {
		t.sendMessage(m.Sender, "Keeper is already running.", t.defaultMenu)
		return
	}

	t.keeper.Start(context.Background())
	t.sendMessage(m.Sender, "Keeper started.", t.defaultMenu)
}

// StopHandle stops the keeper loop
func (t *Telegram) StopHandle(m *tb.Message) {
	if t.keeper.Status() == keeper.StatusStopped {
		t.sendMessage(m.Sender, "Keeper is already stopped.", t.defaultMenu)
		return
	}

	t.keeper.Stop(context.Background())
	t.sendMessage(m.Sender, "Keeper stopped.", t.defaultMenu)
}

// PauseHandle halts updates and executions
func (t *Telegram) PauseHandle(m *tb.Message) {
	if t.engine.Paused() {
		t.sendMessage(m.Sender, "Engine is already paused.", t.defaultMenu)
		return
	}

	t.engine.Pause()
	t.sendMessage(m.Sender, "Engine paused. Stops are frozen until /unpause.", t.defaultMenu)
}

// UnpauseHandle resumes updates and executions
func (t *Telegram) UnpauseHandle(m *tb.Message) {
	if !t.engine.Paused() {
		t.sendMessage(m.Sender, "Engine is not paused.", t.defaultMenu)
		return
	}

	t.engine.Unpause()
	t.sendMessage(m.Sender, "Engine unpaused.", t.defaultMenu)
}

// Event handlers
// -------------

// OnEvent notifies users about feed events worth a human's attention.
// Routine cycle summaries stay out of the channel.
func (t *Telegram) OnEvent(ev core.Event) {
	message := t.formatEvent(ev)
	if message == "" {
		return
	}
	t.Notify(message)
}

func (t *Telegram) formatEvent(ev core.Event) string {
	switch ev.Kind {
	case core.EventStopConfigured:
		if ev.Stop == nil {
			return ""
		}
		return fmt.Sprintf("🆕 STOP CONFIGURED - %s\n-----\nStop: %s\nDistance: %d bps\nOracle: %s",
			shortID(ev.OrderID.Hex()), core.FormatPrice(ev.Stop.CurrentStop),
			ev.Stop.DistanceBps, ev.Stop.Oracle)

	case core.EventStopUpdated:
		if ev.Update == nil || ev.Update.Held {
			return ""
		}
		return fmt.Sprintf("📈 STOP RAISED - %s\n-----\nMarket: %s\n%s → %s",
			shortID(ev.OrderID.Hex()), core.FormatPrice(ev.Update.MarketPrice),
			core.FormatPrice(ev.Update.PreviousStop), core.FormatPrice(ev.Update.NewStop))

	case core.EventTriggerValidated:
		if ev.Snapshot == nil {
			return ""
		}
		return fmt.Sprintf("🎯 TRIGGER VALIDATED - %s\n-----\nObserved: %s\nStop: %s",
			shortID(ev.OrderID.Hex()), core.FormatPrice(ev.Snapshot.ObservedPrice),
			core.FormatPrice(ev.Snapshot.StopPrice))

	case core.EventExecutionSettled:
		if ev.Settlement == nil {
			return ""
		}
		return fmt.Sprintf("✅ ORDER EXECUTED - %s\n-----\nIn: %s\nOut: %s\nVenue: %s",
			shortID(ev.OrderID.Hex()), core.FormatPrice(ev.Settlement.AmountIn),
			core.FormatPrice(ev.Settlement.AmountOut), ev.Settlement.Venue)

	case core.EventExecutionFailed:
		return fmt.Sprintf("❌ EXECUTION FAILED - %s\n-----\n%s",
			shortID(ev.OrderID.Hex()), ev.Reason)

	case core.EventEnginePaused:
		return "⏸ Engine paused."

	case core.EventEngineUnpaused:
		return "▶️ Engine unpaused."

	default:
		return ""
	}
}

// OnError notifies users about errors
func (t *Telegram) OnError(err error) {
	var sb strings.Builder
	sb.WriteString("🛑 ERROR\n")
	sb.WriteString("-----\n")
	sb.WriteString(err.Error())

	t.Notify(sb.String())
}

func shortID(hex string) string {
	if len(hex) <= 10 {
		return hex
	}
	return hex[:10]
}
