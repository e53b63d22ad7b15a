// Package telegram diagnoses leaf photos sent to a Telegram bot.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Brownie44l1/leaf-api/internal/apperr"
	"github.com/Brownie44l1/leaf-api/internal/service"
)

// Sender is the part of tgbotapi.BotAPI the bot uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
}

type Diagnoser interface {
	Diagnose(ctx context.Context, req service.Request) (*service.Result, error)
}

type Options struct {
	MaxFileBytes int64
	// Client downloads files from Telegram storage.
	Client *http.Client
	Logger *slog.Logger
}

type Bot struct {
	api     Sender
	svc     Diagnoser
	client  *http.Client
	maxFile int64
	log     *slog.Logger
}

func New(api Sender, svc Diagnoser, opts Options) *Bot {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxFile := opts.MaxFileBytes
	if maxFile <= 0 {
		maxFile = 10 << 20
	}
	return &Bot{
		api:     api,
		svc:     svc,
		client:  client,
		maxFile: maxFile,
		log:     logger.With("component", "telegram"),
	}
}

// Run long-polls Telegram until ctx is cancelled.
func Run(ctx context.Context, api *tgbotapi.BotAPI, bot *Bot, pollTimeout int) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout

	updates := api.GetUpdatesChan(u)
	defer api.StopReceivingUpdates()

	bot.log.Info("bot started", "username", api.Self.UserName)
	return bot.Serve(ctx, updates)
}

// Serve handles updates one at a time until ctx is done or updates is
// closed.
func (b *Bot) Serve(ctx context.Context, updates <-chan tgbotapi.Update) error {
	for {
		select {
		case <-ctx.Done():
			b.log.Info("bot stopped")
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			b.handle(ctx, upd)
		}
	}
}

const (
	helpText = "🌿 Plant Disease Detection\n\n" +
		"Send me a clear photo of a single plant leaf and I will tell you which disease it shows, " +
		"how confident the model is and how to treat it.\n\n" +
		"Tips: centre the leaf, use good lighting and avoid blurry shots."
	askForPhotoText = "Please send a photo of a plant leaf. Type /help for tips."
)

func (b *Bot) handle(ctx context.Context, upd tgbotapi.Update) {
	msg := upd.Message
	if msg == nil {
		return
	}
	cid := msg.Chat.ID

	if msg.IsCommand() {
		switch msg.Command() {
		case "start", "help":
			b.reply(msg, helpText)
		default:
			b.reply(msg, "Unknown command. "+askForPhotoText)
		}
		return
	}

	fileID, name, size, ok := imageFile(msg)
	if !ok {
		b.reply(msg, askForPhotoText)
		return
	}
	if int64(size) > b.maxFile {
		b.reply(msg, fmt.Sprintf("The photo is too large. The limit is %d MB.", b.maxFile>>20))
		return
	}

	log := b.log.With("chat_id", cid, "file_id", fileID)
	_, _ = b.api.Send(tgbotapi.NewChatAction(cid, tgbotapi.ChatTyping))

	data, err := b.fetch(ctx, fileID)
	if err != nil {
		log.Warn("failed to download photo", "error", err)
		b.reply(msg, "Could not download the photo. Please try again.")
		return
	}

	res, err := b.svc.Diagnose(ctx, service.Request{ImageData: data, Filename: name})
	if err != nil {
		b.reply(msg, "❌ "+apperr.UserMessage(err))
		return
	}
	b.reply(msg, formatResult(res))
}

// imageFile picks the largest photo size, or an image sent as a document.
func imageFile(msg *tgbotapi.Message) (fileID, name string, size int, ok bool) {
	if n := len(msg.Photo); n > 0 {
		ph := msg.Photo[n-1]
		return ph.FileID, "photo.jpg", ph.FileSize, true
	}
	if doc := msg.Document; doc != nil && strings.HasPrefix(doc.MimeType, "image/") {
		return doc.FileID, doc.FileName, doc.FileSize, true
	}
	return "", "", 0, false
}

func (b *Bot) fetch(ctx context.Context, fileID string) ([]byte, error) {
	fileURL, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("resolve file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, withoutURL(err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, withoutURL(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, b.maxFile+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > b.maxFile {
		return nil, fmt.Errorf("file exceeds %d bytes", b.maxFile)
	}
	return data, nil
}

// withoutURL drops the request URL from transport errors. File URLs
// carry the bot token.
func withoutURL(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Errorf("download: %s: %w", ue.Op, ue.Err)
	}
	return err
}

func (b *Bot) reply(to *tgbotapi.Message, text string) {
	msg := tgbotapi.NewMessage(to.Chat.ID, text)
	msg.ReplyToMessageID = to.MessageID
	if _, err := b.api.Send(msg); err != nil {
		b.log.Warn("failed to send message", "chat_id", to.Chat.ID, "error", err)
	}
}

func formatResult(res *service.Result) string {
	r := res.Prediction
	var sb strings.Builder

	icon := "🦠"
	if r.Primary.Healthy {
		icon = "✅"
	}
	fmt.Fprintf(&sb, "%s %s\n", icon, r.Primary.Display)
	fmt.Fprintf(&sb, "Confidence: %.2f%% (%s)\n", r.Confidence, r.Band)

	if len(r.TopK) > 1 {
		sb.WriteString("\nTop predictions:\n")
		for i, e := range r.TopK {
			fmt.Fprintf(&sb, "%d. %s: %.1f%%\n", i+1, e.Display, e.Percent)
		}
	}

	if r.Info != nil {
		fmt.Fprintf(&sb, "\n🔍 %s\n💊 %s\n", r.Info.Description, r.Info.Treatment)
	}
	return strings.TrimRight(sb.String(), "\n")
}
