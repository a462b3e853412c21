package settings

import (
	"context"
	"database/sql"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Ropaxyz/CostcoUKTracker/lib/scrapers/costco"
	"github.com/Ropaxyz/CostcoUKTracker/lib/telemetry"
	"github.com/Ropaxyz/CostcoUKTracker/services/settings/db"

	"go.opentelemetry.io/otel/codes"
)

var tracer = telemetry.Tracer("costcotracker.services.settings")

// Keys referenced from other services. The rest of the override keys
// only ever travel between the API layer and applyOverride.
const (
	KeySitePasswordHash     = "site_password_hash"
	KeyKillSwitch           = "kill_switch"
	KeyCostcoEmail          = "costco_email"
	KeyCostcoPasswordSealed = "costco_password_sealed"
)

type Service struct {
	db   *sql.DB
	qry  *db.Queries
	file Config
}

func NewService(database *sql.DB, file Config) Service {
	return Service{
		db:   database,
		qry:  db.New(database),
		file: file,
	}
}

func parseBoolSetting(value string) bool {
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		return true
	}
	return false
}

// applyOverride maps one system_settings row onto its Config field.
// Values that fail to parse are skipped so one bad row cannot poison
// the whole snapshot.
func applyOverride(ctx context.Context, config *Config, key, value string) {
	var err error
	switch key {
	case KeySitePasswordHash:
		// auth state, not a runtime knob
	case "base_url":
		config.BaseUrl = value
	case "default_poll_interval_minutes":
		config.DefaultPollIntervalMinutes, err = strconv.ParseInt(value, 10, 64)
	case "min_poll_interval_minutes":
		config.MinPollIntervalMinutes, err = strconv.ParseInt(value, 10, 64)
	case "max_poll_interval_minutes":
		config.MaxPollIntervalMinutes, err = strconv.ParseInt(value, 10, 64)
	case "request_timeout_seconds":
		config.RequestTimeoutSeconds, err = strconv.ParseInt(value, 10, 64)
	case "max_retries":
		config.MaxRetries, err = strconv.ParseInt(value, 10, 64)
	case "backoff_multiplier":
		config.BackoffMultiplier, err = strconv.ParseFloat(value, 64)
	case "safe_mode":
		config.SafeMode = parseBoolSetting(value)
	case KeyKillSwitch:
		config.KillSwitch = parseBoolSetting(value)
	case "user_agents":
		config.UserAgents = splitList(value)
	case "session_timeout_minutes":
		config.SessionTimeoutMinutes, err = strconv.ParseInt(value, 10, 64)
	case "secure_cookies":
		config.SecureCookies = parseBoolSetting(value)
	case "ip_allowlist":
		config.IpAllowlist = splitList(value)
	case "smtp_enabled":
		config.SmtpEnabled = parseBoolSetting(value)
	case "smtp_host":
		config.SmtpHost = value
	case "smtp_port":
		config.SmtpPort, err = strconv.ParseInt(value, 10, 64)
	case "smtp_username":
		config.SmtpUsername = value
	case "smtp_password":
		config.SmtpPassword = value
	case "smtp_use_tls":
		config.SmtpUseTls = parseBoolSetting(value)
	case "smtp_from_email":
		config.SmtpFromEmail = value
	case "telegram_enabled":
		config.TelegramEnabled = parseBoolSetting(value)
	case "telegram_bot_token":
		config.TelegramBotToken = value
	case "telegram_chat_id":
		config.TelegramChatId = value
	case "discord_enabled":
		config.DiscordEnabled = parseBoolSetting(value)
	case "discord_webhook_url":
		config.DiscordWebhookUrl = value
	case "pushover_enabled":
		config.PushoverEnabled = parseBoolSetting(value)
	case "pushover_app_token":
		config.PushoverAppToken = value
	case "pushover_user_key":
		config.PushoverUserKey = value
	case "auto_add_to_basket_enabled":
		config.AutoAddToBasketEnabled = parseBoolSetting(value)
	case KeyCostcoEmail:
		config.CostcoEmail = value
	case KeyCostcoPasswordSealed:
		config.CostcoPasswordSealed = value
	default:
		slog.WarnContext(ctx, "ignoring unknown setting", "key", key)
	}
	if err != nil {
		slog.WarnContext(ctx, "ignoring malformed setting", "key", key, "value", value, "err", err)
	}
}

// splitList parses pipe separated pools like the user agent rotation.
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, "|") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Snapshot layers every stored override on top of the file config.
// Callers take a fresh snapshot at each decision point instead of
// holding on to one, so runtime changes apply on the next cycle.
func (s Service) Snapshot(ctx context.Context) (Config, error) {
	ctx, span := tracer.Start(ctx, "Snapshot")
	defer span.End()

	config := s.file
	config.UserAgents = slices.Clone(s.file.UserAgents)
	config.IpAllowlist = slices.Clone(s.file.IpAllowlist)

	rows, err := s.qry.ListSettings(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Config{}, err
	}
	for _, row := range rows {
		applyOverride(ctx, &config, row.Key, row.Value)
	}
	return config, nil
}

func (s Service) Get(ctx context.Context, key string) (string, error) {
	row, err := s.qry.GetSetting(ctx, key)
	if err != nil {
		return "", err
	}
	return row.Value, nil
}

func (s Service) Set(ctx context.Context, key, value string) error {
	ctx, span := tracer.Start(ctx, "Set")
	defer span.End()

	err := s.qry.UpsertSetting(ctx, db.UpsertSettingParams{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now().Unix(),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (s Service) SetMany(ctx context.Context, values map[string]string) error {
	ctx, span := tracer.Start(ctx, "SetMany")
	defer span.End()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer tx.Rollback()
	txqry := s.qry.WithTx(tx)

	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	now := time.Now().Unix()
	for _, key := range keys {
		err := txqry.UpsertSetting(ctx, db.UpsertSettingParams{
			Key:       key,
			Value:     values[key],
			UpdatedAt: now,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}

	err = tx.Commit()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (s Service) Delete(ctx context.Context, key string) error {
	return s.qry.DeleteSetting(ctx, key)
}

func (s Service) SetKillSwitch(ctx context.Context, on bool) error {
	slog.WarnContext(ctx, "kill switch toggled", "on", on)
	return s.Set(ctx, KeyKillSwitch, strconv.FormatBool(on))
}

// ScrapePolicy implements costco.PolicySource so the fetcher picks up
// settings changes on its next request.
func (s Service) ScrapePolicy(ctx context.Context) (costco.Policy, error) {
	config, err := s.Snapshot(ctx)
	if err != nil {
		return costco.Policy{}, err
	}
	return costco.Policy{
		KillSwitch:        config.KillSwitch,
		SafeMode:          config.SafeMode,
		BackoffMultiplier: config.BackoffMultiplier,
		UserAgents:        config.UserAgents,
		RequestTimeout:    time.Duration(config.RequestTimeoutSeconds) * time.Second,
	}, nil
}
