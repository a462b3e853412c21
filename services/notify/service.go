package notify

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
	"sync"
	"time"

	"github.com/Ropaxyz/CostcoUKTracker/lib/telemetry"
	"github.com/Ropaxyz/CostcoUKTracker/services/settings"
	"github.com/Ropaxyz/CostcoUKTracker/services/tracker/db"
	"github.com/Ropaxyz/CostcoUKTracker/services/tracker/detect"

	"github.com/go-resty/resty/v2"
	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel/codes"
)

var tracer = telemetry.Tracer("costcotracker.services.notify")

const (
	ChannelEmail    = "email"
	ChannelTelegram = "telegram"
	ChannelDiscord  = "discord"
	ChannelPushover = "pushover"
)

// Result is the outcome of one channel delivery attempt. Unconfigured
// channels report a failed result instead of an error, so one broken
// channel never takes down the rest of a fan out.
type Result struct {
	Channel string
	Success bool
	Error   string
}

type Options struct {
	Settings settings.Service
	// TelegramBaseUrl and PushoverUrl exist so tests can point the
	// channels at a local server.
	TelegramBaseUrl string
	PushoverUrl     string
}

type Service struct {
	settings settings.Service
	http     *resty.Client

	telegramBaseUrl string
	pushoverUrl     string
}

func NewService(opts Options) Service {
	if opts.TelegramBaseUrl == "" {
		opts.TelegramBaseUrl = "https://api.telegram.org"
	}
	if opts.PushoverUrl == "" {
		opts.PushoverUrl = "https://api.pushover.net/1/messages.json"
	}

	client := resty.New()
	client.SetTimeout(time.Second * 30)
	telemetry.InstrumentResty(client, "services/notify/http")

	return Service{
		settings:        opts.Settings,
		http:            client,
		telegramBaseUrl: strings.TrimRight(opts.TelegramBaseUrl, "/"),
		pushoverUrl:     opts.PushoverUrl,
	}
}

// truncate limits by characters, not bytes, so a multibyte rune is
// never cut in half.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func (s Service) SendEmail(ctx context.Context, config settings.Config, subject, body string) Result {
	if !config.SmtpEnabled {
		return Result{Channel: ChannelEmail, Error: "Email not configured"}
	}

	mail := email.NewEmail()
	mail.From = config.SmtpFromEmail
	mail.To = []string{config.SmtpFromEmail}
	mail.Subject = subject
	mail.Text = []byte(body)

	var auth smtp.Auth
	if config.SmtpUsername != "" {
		auth = smtp.PlainAuth("", config.SmtpUsername, config.SmtpPassword, config.SmtpHost)
	}
	addr := fmt.Sprintf("%s:%d", config.SmtpHost, config.SmtpPort)

	var err error
	if config.SmtpUseTls {
		err = mail.SendWithStartTLS(addr, auth, &tls.Config{ServerName: config.SmtpHost})
	} else {
		err = mail.Send(addr, auth)
	}
	if err != nil {
		slog.WarnContext(ctx, "email failed", "err", err)
		return Result{Channel: ChannelEmail, Error: err.Error()}
	}

	slog.InfoContext(ctx, "email sent", "subject", subject)
	return Result{Channel: ChannelEmail, Success: true}
}

func (s Service) SendTelegram(ctx context.Context, config settings.Config, message string) Result {
	if !config.TelegramEnabled || config.TelegramBotToken == "" {
		return Result{Channel: ChannelTelegram, Error: "Telegram not configured"}
	}

	res, err := s.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"chat_id":                  config.TelegramChatId,
			"text":                     message,
			"parse_mode":               "HTML",
			"disable_web_page_preview": false,
		}).
		Post(fmt.Sprintf("%s/bot%s/sendMessage", s.telegramBaseUrl, config.TelegramBotToken))
	if err != nil {
		slog.WarnContext(ctx, "telegram failed", "err", err)
		return Result{Channel: ChannelTelegram, Error: err.Error()}
	}
	if res.StatusCode() != 200 {
		var apiErr struct {
			Description string `json:"description"`
		}
		message := res.String()
		if err := json.Unmarshal(res.Body(), &apiErr); err == nil && apiErr.Description != "" {
			message = apiErr.Description
		}
		slog.WarnContext(ctx, "telegram failed", "status", res.StatusCode(), "err", message)
		return Result{Channel: ChannelTelegram, Error: message}
	}

	slog.InfoContext(ctx, "telegram message sent")
	return Result{Channel: ChannelTelegram, Success: true}
}

func (s Service) SendDiscord(ctx context.Context, config settings.Config, subject, body string) Result {
	if !config.DiscordEnabled || config.DiscordWebhookUrl == "" {
		return Result{Channel: ChannelDiscord, Error: "Discord not configured"}
	}

	res, err := s.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"embeds": []map[string]any{{
				"title":       subject,
				"description": truncate(body, 4000),
				// Costco blue
				"color":     0x005DAB,
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			}},
		}).
		Post(config.DiscordWebhookUrl)
	if err != nil {
		slog.WarnContext(ctx, "discord failed", "err", err)
		return Result{Channel: ChannelDiscord, Error: err.Error()}
	}
	if res.StatusCode() != 200 && res.StatusCode() != 204 {
		slog.WarnContext(ctx, "discord failed", "status", res.StatusCode())
		return Result{Channel: ChannelDiscord, Error: res.String()}
	}

	slog.InfoContext(ctx, "discord message sent")
	return Result{Channel: ChannelDiscord, Success: true}
}

func (s Service) SendPushover(ctx context.Context, config settings.Config, subject, body string) Result {
	if !config.PushoverEnabled || config.PushoverAppToken == "" {
		return Result{Channel: ChannelPushover, Error: "Pushover not configured"}
	}

	res, err := s.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"token":    config.PushoverAppToken,
			"user":     config.PushoverUserKey,
			"title":    subject,
			"message":  truncate(body, 1000),
			"priority": "1",
		}).
		Post(s.pushoverUrl)
	if err != nil {
		slog.WarnContext(ctx, "pushover failed", "err", err)
		return Result{Channel: ChannelPushover, Error: err.Error()}
	}
	if res.StatusCode() != 200 {
		slog.WarnContext(ctx, "pushover failed", "status", res.StatusCode())
		return Result{Channel: ChannelPushover, Error: res.String()}
	}

	slog.InfoContext(ctx, "pushover message sent")
	return Result{Channel: ChannelPushover, Success: true}
}

// Send fans one alert out to every channel that is both enabled
// globally and selected on the product. Channels run concurrently and
// each reports its own result, so partial delivery is a normal outcome.
// The returned error is reserved for being unable to read the settings.
func (s Service) Send(ctx context.Context, product db.Product, kind detect.AlertKind, oldValue, newValue string) ([]Result, error) {
	ctx, span := tracer.Start(ctx, "Send")
	defer span.End()

	config, err := s.settings.Snapshot(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	subject, body := FormatMessage(config, product, kind, oldValue, newValue, time.Now())

	var senders []func(context.Context) Result
	for _, channel := range product.EnabledChannels() {
		switch {
		case channel == ChannelEmail && config.SmtpEnabled:
			senders = append(senders, func(ctx context.Context) Result {
				return s.SendEmail(ctx, config, subject, body)
			})
		case channel == ChannelTelegram && config.TelegramEnabled:
			message := fmt.Sprintf("<b>%s</b>\n\n%s", subject, body)
			senders = append(senders, func(ctx context.Context) Result {
				return s.SendTelegram(ctx, config, message)
			})
		case channel == ChannelDiscord && config.DiscordEnabled:
			senders = append(senders, func(ctx context.Context) Result {
				return s.SendDiscord(ctx, config, subject, body)
			})
		case channel == ChannelPushover && config.PushoverEnabled:
			senders = append(senders, func(ctx context.Context) Result {
				return s.SendPushover(ctx, config, subject, body)
			})
		}
	}

	results := make([]Result, len(senders))
	var wg sync.WaitGroup
	for i, send := range senders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = send(ctx)
		}()
	}
	wg.Wait()

	return results, nil
}
