package settings

// Config is the full runtime configuration surface. The file config
// provides the baseline and rows in system_settings override single
// fields, so a Config value always carries the effective settings.
type Config struct {
	BaseUrl string `json:"base_url"`

	DefaultPollIntervalMinutes int64    `json:"default_poll_interval_minutes"`
	MinPollIntervalMinutes     int64    `json:"min_poll_interval_minutes"`
	MaxPollIntervalMinutes     int64    `json:"max_poll_interval_minutes"`
	RequestTimeoutSeconds      int64    `json:"request_timeout_seconds"`
	MaxRetries                 int64    `json:"max_retries"`
	BackoffMultiplier          float64  `json:"backoff_multiplier"`
	SafeMode                   bool     `json:"safe_mode"`
	KillSwitch                 bool     `json:"kill_switch"`
	UserAgents                 []string `json:"user_agents"`

	SessionTimeoutMinutes int64    `json:"session_timeout_minutes"`
	SecureCookies         bool     `json:"secure_cookies"`
	IpAllowlist           []string `json:"ip_allowlist"`

	SmtpEnabled   bool   `json:"smtp_enabled"`
	SmtpHost      string `json:"smtp_host"`
	SmtpPort      int64  `json:"smtp_port"`
	SmtpUsername  string `json:"smtp_username"`
	SmtpPassword  string `json:"smtp_password"`
	SmtpUseTls    bool   `json:"smtp_use_tls"`
	SmtpFromEmail string `json:"smtp_from_email"`

	TelegramEnabled  bool   `json:"telegram_enabled"`
	TelegramBotToken string `json:"telegram_bot_token"`
	TelegramChatId   string `json:"telegram_chat_id"`

	DiscordEnabled    bool   `json:"discord_enabled"`
	DiscordWebhookUrl string `json:"discord_webhook_url"`

	PushoverEnabled  bool   `json:"pushover_enabled"`
	PushoverAppToken string `json:"pushover_app_token"`
	PushoverUserKey  string `json:"pushover_user_key"`

	AutoAddToBasketEnabled bool   `json:"auto_add_to_basket_enabled"`
	CostcoEmail            string `json:"costco_email"`
	CostcoPasswordSealed   string `json:"costco_password_sealed"`
}

func DefaultConfig() Config {
	return Config{
		BaseUrl: "https://www.costco.co.uk",

		DefaultPollIntervalMinutes: 45,
		MinPollIntervalMinutes:     15,
		MaxPollIntervalMinutes:     180,
		RequestTimeoutSeconds:      30,
		MaxRetries:                 3,
		BackoffMultiplier:          2,
		SafeMode:                   true,
		UserAgents: []string{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
		},

		SessionTimeoutMinutes: 1440,

		SmtpPort:   587,
		SmtpUseTls: true,
	}
}

// EffectiveIntervalMinutes resolves a product's polling interval: the
// per-product override (when set) or the global default, clamped into
// [min, max].
func (c Config) EffectiveIntervalMinutes(override int64) int64 {
	interval := c.DefaultPollIntervalMinutes
	if override > 0 {
		interval = override
	}
	if c.MinPollIntervalMinutes > 0 && interval < c.MinPollIntervalMinutes {
		interval = c.MinPollIntervalMinutes
	}
	if c.MaxPollIntervalMinutes > 0 && interval > c.MaxPollIntervalMinutes {
		interval = c.MaxPollIntervalMinutes
	}
	return interval
}
