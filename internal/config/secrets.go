package config

import (
	"net/url"
	"slices"
)

const redacted = "***"

// RedactedConfig returns a deep-enough copy of cfg that is safe to log.
// Credentials become "***". A URL-form database DSN keeps its host and
// database with only the password masked; webhook URLs are masked whole.
func RedactedConfig(cfg *Config) Config {
	out := *cfg
	out.Notify.Events = slices.Clone(cfg.Notify.Events)
	out.Server.CORSOrigins = slices.Clone(cfg.Server.CORSOrigins)

	for _, s := range []*string{
		&out.CoinCap.APIKey,
		&out.Database.Password,
		&out.Redis.Password,
		&out.S3.AccessKey,
		&out.S3.SecretKey,
		&out.Server.APIKey,
		&out.Notify.TelegramToken,
		&out.Notify.DiscordWebhookURL,
	} {
		if *s != "" {
			*s = redacted
		}
	}
	out.Database.DSN = redactDSN(cfg.Database.DSN)
	return out
}

// redactDSN masks the password of a postgres:// DSN. Keyword/value DSNs
// cannot be parsed here and are masked entirely.
func redactDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return redacted
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
