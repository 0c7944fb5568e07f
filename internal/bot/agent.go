package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/Refret28/microservice-booking/internal/config"
	"github.com/Refret28/microservice-booking/internal/logger"
	"github.com/Refret28/microservice-booking/internal/models"
	"github.com/Refret28/microservice-booking/internal/payment/correlation"
	"github.com/Refret28/microservice-booking/internal/utils"

	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
)

// Agent is the Telegram payment bot. It consumes payment requests off
// the correlation store, turns them into Telegram invoices and posts a
// callback to the booking service once a charge succeeds. The Telegram
// account ID doubles as the platform user ID.
type Agent struct {
	bot    *tgbot.Bot
	store  *correlation.Store
	client *http.Client
	cfg    config.BotConfig
	log    *logger.Logger
}

func NewAgent(cfg config.BotConfig, store *correlation.Store, log *logger.Logger) (*Agent, error) {
	a := &Agent{
		store:  store,
		client: &http.Client{Timeout: 10 * time.Second},
		cfg:    cfg,
		log:    log,
	}

	b, err := tgbot.New(cfg.Token, tgbot.WithDefaultHandler(a.handleUpdate))
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	a.bot = b

	b.RegisterHandler(tgbot.HandlerTypeMessageText, "/start", tgbot.MatchTypePrefix, a.handleStart)
	b.RegisterHandler(tgbot.HandlerTypeMessageText, "/buy", tgbot.MatchTypeExact, a.handleBuy)

	return a, nil
}

// Start runs long polling until the context is cancelled.
func (a *Agent) Start(ctx context.Context) {
	a.log.Info("BOT", "payment bot started")
	a.bot.Start(ctx)
}

// HandlePaymentRequest feeds one consumed topic message into the
// correlation store.
func (a *Agent) HandlePaymentRequest(request models.PaymentRequest) {
	a.log.Info("BOT", fmt.Sprintf("pending payment for user %d, booking %d, amount %.2f", request.UserID, request.BookingID, request.Amount))
	a.store.Put(request)
}

func (a *Agent) handleStart(ctx context.Context, b *tgbot.Bot, update *tgmodels.Update) {
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	// Deep links arrive as "/start pay_<bookingID>_<amount>_<userID>".
	args := strings.TrimSpace(strings.TrimPrefix(update.Message.Text, "/start"))
	if strings.HasPrefix(args, "pay_") {
		bookingID, amount, userID, err := utils.ParsePaymentPayload(args)
		if err != nil {
			a.log.Warn("BOT", fmt.Sprintf("bad deep link %q: %v", args, err))
			a.reply(ctx, b, chatID, "This payment link is invalid. Request a new one from the parking service.")
			return
		}
		a.sendInvoice(ctx, b, chatID, models.PaymentRequest{
			UserID:    userID,
			BookingID: bookingID,
			Amount:    amount,
		})
		return
	}

	a.reply(ctx, b, chatID, "Hello! I handle parking payments. Send /buy to pay for your pending booking.")
}

func (a *Agent) handleBuy(ctx context.Context, b *tgbot.Bot, update *tgmodels.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	chatID := update.Message.Chat.ID
	userID := update.Message.From.ID

	request, ok := a.store.Await(ctx, userID, a.cfg.LookupTimeout)
	if !ok {
		a.reply(ctx, b, chatID, "No pending payment found for you. Create a booking first, then try again.")
		return
	}

	a.sendInvoice(ctx, b, chatID, request)
}

func (a *Agent) sendInvoice(ctx context.Context, b *tgbot.Bot, chatID int64, request models.PaymentRequest) {
	payload := utils.PaymentPayload(request.BookingID, request.Amount, request.UserID)

	_, err := b.SendInvoice(ctx, &tgbot.SendInvoiceParams{
		ChatID:        chatID,
		Title:         fmt.Sprintf("Parking booking #%d", request.BookingID),
		Description:   "Payment for your parking spot reservation",
		Payload:       payload,
		ProviderToken: a.cfg.ProviderToken,
		Currency:      a.cfg.Currency,
		Prices: []tgmodels.LabeledPrice{
			{Label: "Parking reservation", Amount: int(math.Round(request.Amount * 100))},
		},
	})
	if err != nil {
		a.log.Error("BOT", fmt.Sprintf("failed to send invoice for booking %d: %v", request.BookingID, err))
		a.reply(ctx, b, chatID, "Could not create the invoice, try again later.")
		return
	}

	a.log.Info("BOT", fmt.Sprintf("invoice sent for booking %d to chat %d", request.BookingID, chatID))
}

// handleUpdate covers the payment flow updates that are not text
// commands: the pre-checkout handshake and the final payment report.
func (a *Agent) handleUpdate(ctx context.Context, b *tgbot.Bot, update *tgmodels.Update) {
	if update.PreCheckoutQuery != nil {
		_, err := b.AnswerPreCheckoutQuery(ctx, &tgbot.AnswerPreCheckoutQueryParams{
			PreCheckoutQueryID: update.PreCheckoutQuery.ID,
			OK:                 true,
		})
		if err != nil {
			a.log.Error("BOT", fmt.Sprintf("failed to answer pre-checkout query: %v", err))
		}
		return
	}

	if update.Message != nil && update.Message.SuccessfulPayment != nil {
		a.handleSuccessfulPayment(ctx, b, update.Message)
	}
}

func (a *Agent) handleSuccessfulPayment(ctx context.Context, b *tgbot.Bot, message *tgmodels.Message) {
	sp := message.SuccessfulPayment

	bookingID, amount, userID, err := utils.ParsePaymentPayload(sp.InvoicePayload)
	if err != nil {
		a.log.Error("BOT", fmt.Sprintf("successful payment with bad payload %q: %v", sp.InvoicePayload, err))
		return
	}

	// The charge went through, so the pending request is settled
	// whether or not the callback below succeeds.
	a.store.Evict(userID)

	transactionID := sp.ProviderPaymentChargeID
	if transactionID == "" {
		transactionID = utils.GenerateTransactionID()
	}

	callback := models.PaymentCallback{
		BookingID:     bookingID,
		Amount:        amount,
		TransactionID: transactionID,
		UserID:        userID,
	}
	if err := a.postCallback(ctx, callback); err != nil {
		a.log.Error("BOT", fmt.Sprintf("failed to report payment for booking %d: %v", bookingID, err))
		a.reply(ctx, b, message.Chat.ID, "Payment received, but confirming it with the parking service failed. Support will sort it out.")
		return
	}

	a.log.Info("BOT", fmt.Sprintf("payment confirmed for booking %d, tx %s", bookingID, transactionID))
	a.reply(ctx, b, message.Chat.ID, fmt.Sprintf("Payment accepted! Your booking #%d is confirmed.", bookingID))
}

func (a *Agent) postCallback(ctx context.Context, callback models.PaymentCallback) error {
	body, err := json.Marshal(callback)
	if err != nil {
		return err
	}

	url := strings.TrimRight(a.cfg.BookingServiceURL, "/") + "/api/payments"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("booking service returned %s", resp.Status)
	}
	return nil
}

func (a *Agent) reply(ctx context.Context, b *tgbot.Bot, chatID int64, text string) {
	if _, err := b.SendMessage(ctx, &tgbot.SendMessageParams{ChatID: chatID, Text: text}); err != nil {
		a.log.Error("BOT", fmt.Sprintf("failed to send message to chat %d: %v", chatID, err))
	}
}
