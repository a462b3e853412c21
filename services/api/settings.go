package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/Ropaxyz/CostcoUKTracker/services/notify"
	"github.com/Ropaxyz/CostcoUKTracker/services/settings"

	"github.com/go-chi/chi/v5"
)

// settingsView is the effective configuration with secrets reduced to
// a set/unset flag.
type settingsView struct {
	BaseUrl string `json:"base_url"`

	DefaultPollIntervalMinutes int64 `json:"default_poll_interval_minutes"`
	MinPollIntervalMinutes     int64 `json:"min_poll_interval_minutes"`
	MaxPollIntervalMinutes     int64 `json:"max_poll_interval_minutes"`
	RequestTimeoutSeconds      int64 `json:"request_timeout_seconds"`
	SafeMode                   bool  `json:"safe_mode"`
	KillSwitch                 bool  `json:"kill_switch"`

	SmtpEnabled     bool   `json:"smtp_enabled"`
	SmtpHost        string `json:"smtp_host"`
	SmtpPort        int64  `json:"smtp_port"`
	SmtpUsername    string `json:"smtp_username"`
	SmtpFromEmail   string `json:"smtp_from_email"`
	SmtpPasswordSet bool   `json:"smtp_password_set"`

	TelegramEnabled     bool   `json:"telegram_enabled"`
	TelegramChatId      string `json:"telegram_chat_id"`
	TelegramBotTokenSet bool   `json:"telegram_bot_token_set"`

	DiscordEnabled    bool `json:"discord_enabled"`
	DiscordWebhookSet bool `json:"discord_webhook_set"`

	PushoverEnabled     bool `json:"pushover_enabled"`
	PushoverAppTokenSet bool `json:"pushover_app_token_set"`
	PushoverUserKeySet  bool `json:"pushover_user_key_set"`

	AutoAddToBasketEnabled bool   `json:"auto_add_to_basket_enabled"`
	CostcoEmail            string `json:"costco_email"`
	CostcoPasswordSet      bool   `json:"costco_password_set"`

	SessionTimeoutMinutes int64 `json:"session_timeout_minutes"`
	SecureCookies         bool  `json:"secure_cookies"`
}

func (s Service) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	config, err := s.settings.Snapshot(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "read settings: %v", err)
		return
	}

	respondJSON(w, http.StatusOK, settingsView{
		BaseUrl: config.BaseUrl,

		DefaultPollIntervalMinutes: config.DefaultPollIntervalMinutes,
		MinPollIntervalMinutes:     config.MinPollIntervalMinutes,
		MaxPollIntervalMinutes:     config.MaxPollIntervalMinutes,
		RequestTimeoutSeconds:      config.RequestTimeoutSeconds,
		SafeMode:                   config.SafeMode,
		KillSwitch:                 config.KillSwitch,

		SmtpEnabled:     config.SmtpEnabled,
		SmtpHost:        config.SmtpHost,
		SmtpPort:        config.SmtpPort,
		SmtpUsername:    config.SmtpUsername,
		SmtpFromEmail:   config.SmtpFromEmail,
		SmtpPasswordSet: config.SmtpPassword != "",

		TelegramEnabled:     config.TelegramEnabled,
		TelegramChatId:      config.TelegramChatId,
		TelegramBotTokenSet: config.TelegramBotToken != "",

		DiscordEnabled:    config.DiscordEnabled,
		DiscordWebhookSet: config.DiscordWebhookUrl != "",

		PushoverEnabled:     config.PushoverEnabled,
		PushoverAppTokenSet: config.PushoverAppToken != "",
		PushoverUserKeySet:  config.PushoverUserKey != "",

		AutoAddToBasketEnabled: config.AutoAddToBasketEnabled,
		CostcoEmail:            config.CostcoEmail,
		CostcoPasswordSet:      config.CostcoPasswordSealed != "",

		SessionTimeoutMinutes: config.SessionTimeoutMinutes,
		SecureCookies:         config.SecureCookies,
	})
}

type notificationSettingsRequest struct {
	SmtpEnabled   bool   `json:"smtp_enabled"`
	SmtpHost      string `json:"smtp_host"`
	SmtpPort      int64  `json:"smtp_port"`
	SmtpUsername  string `json:"smtp_username"`
	SmtpPassword  string `json:"smtp_password"`
	SmtpFromEmail string `json:"smtp_from_email"`

	TelegramEnabled  bool   `json:"telegram_enabled"`
	TelegramBotToken string `json:"telegram_bot_token"`
	TelegramChatId   string `json:"telegram_chat_id"`

	DiscordEnabled    bool   `json:"discord_enabled"`
	DiscordWebhookUrl string `json:"discord_webhook_url"`

	PushoverEnabled  bool   `json:"pushover_enabled"`
	PushoverAppToken string `json:"pushover_app_token"`
	PushoverUserKey  string `json:"pushover_user_key"`
}

func (s Service) handleSaveNotificationSettings(w http.ResponseWriter, r *http.Request) {
	// Omitted fields fall back to the same defaults the settings form
	// submits.
	req := notificationSettingsRequest{SmtpPort: 587}
	if !decodeJSON(w, r, &req) {
		return
	}

	err := s.settings.SetMany(r.Context(), map[string]string{
		"smtp_enabled":        strconv.FormatBool(req.SmtpEnabled),
		"smtp_host":           req.SmtpHost,
		"smtp_port":           strconv.FormatInt(req.SmtpPort, 10),
		"smtp_username":       req.SmtpUsername,
		"smtp_password":       req.SmtpPassword,
		"smtp_from_email":     req.SmtpFromEmail,
		"telegram_enabled":    strconv.FormatBool(req.TelegramEnabled),
		"telegram_bot_token":  req.TelegramBotToken,
		"telegram_chat_id":    req.TelegramChatId,
		"discord_enabled":     strconv.FormatBool(req.DiscordEnabled),
		"discord_webhook_url": req.DiscordWebhookUrl,
		"pushover_enabled":    strconv.FormatBool(req.PushoverEnabled),
		"pushover_app_token":  req.PushoverAppToken,
		"pushover_user_key":   req.PushoverUserKey,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "save settings: %v", err)
		return
	}
	respondJSON(w, http.StatusOK, statusOk())
}

type schedulerSettingsRequest struct {
	DefaultPollIntervalMinutes int64 `json:"default_poll_interval_minutes"`
	MinPollIntervalMinutes     int64 `json:"min_poll_interval_minutes"`
	MaxPollIntervalMinutes     int64 `json:"max_poll_interval_minutes"`
	RequestTimeoutSeconds      int64 `json:"request_timeout_seconds"`
	SafeMode                   bool  `json:"safe_mode"`
}

func (s Service) handleSaveSchedulerSettings(w http.ResponseWriter, r *http.Request) {
	req := schedulerSettingsRequest{
		DefaultPollIntervalMinutes: 45,
		MinPollIntervalMinutes:     15,
		MaxPollIntervalMinutes:     180,
		RequestTimeoutSeconds:      30,
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	err := s.settings.SetMany(r.Context(), map[string]string{
		"default_poll_interval_minutes": strconv.FormatInt(req.DefaultPollIntervalMinutes, 10),
		"min_poll_interval_minutes":     strconv.FormatInt(req.MinPollIntervalMinutes, 10),
		"max_poll_interval_minutes":     strconv.FormatInt(req.MaxPollIntervalMinutes, 10),
		"request_timeout_seconds":       strconv.FormatInt(req.RequestTimeoutSeconds, 10),
		"safe_mode":                     strconv.FormatBool(req.SafeMode),
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "save settings: %v", err)
		return
	}
	respondJSON(w, http.StatusOK, statusOk())
}

type checkoutSettingsRequest struct {
	AutoAddToBasketEnabled bool   `json:"auto_add_to_basket_enabled"`
	CostcoEmail            string `json:"costco_email"`
	CostcoPassword         string `json:"costco_password"`
}

// handleSaveCheckoutSettings stores the assisted checkout settings.
// The retailer password is sealed before it touches the database and
// only replaced when a new one is submitted.
func (s Service) handleSaveCheckoutSettings(w http.ResponseWriter, r *http.Request) {
	var req checkoutSettingsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	values := map[string]string{
		"auto_add_to_basket_enabled": strconv.FormatBool(req.AutoAddToBasketEnabled),
		settings.KeyCostcoEmail:      req.CostcoEmail,
	}
	if password := strings.TrimSpace(req.CostcoPassword); password != "" {
		sealed, err := s.secrets.Seal(password)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "seal password: %v", err)
			return
		}
		values[settings.KeyCostcoPasswordSealed] = sealed
	}

	if err := s.settings.SetMany(r.Context(), values); err != nil {
		respondError(w, http.StatusInternalServerError, "save settings: %v", err)
		return
	}
	respondJSON(w, http.StatusOK, statusOk())
}

func (s Service) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	channel := chi.URLParam(r, "channel")

	config, err := s.settings.Snapshot(ctx)
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false, "error": err.Error(),
		})
		return
	}

	var result notify.Result
	switch channel {
	case notify.ChannelEmail:
		result = s.notifier.SendEmail(ctx, config,
			"Test Email from Costco Tracker",
			"This is a test message to verify your email settings are working correctly.\n\nIf you received this, your SMTP configuration is correct!")
	case notify.ChannelTelegram:
		result = s.notifier.SendTelegram(ctx, config,
			"<b>Test Message from Costco Tracker</b>\n\nYour Telegram notifications are working correctly!")
	case notify.ChannelDiscord:
		result = s.notifier.SendDiscord(ctx, config,
			"Test Notification from Costco Tracker",
			"Your Discord webhook is working correctly! You'll receive product alerts here.")
	case notify.ChannelPushover:
		result = s.notifier.SendPushover(ctx, config,
			"Test from Costco Tracker",
			"Your Pushover notifications are working correctly!")
	default:
		respondJSON(w, http.StatusBadRequest, map[string]any{
			"success": false, "error": "Invalid channel",
		})
		return
	}

	if !result.Success {
		respondJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false, "error": result.Error,
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Test %s notification sent!", channel),
	})
}
