package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/eventhub/internal/flagx"
	"github.com/dmitrijs2005/eventhub/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Durations accept both
// "5m" style strings and integer nanoseconds.
type JsonConfig struct {
	EndpointAddrHTTP string `json:"endpoint_addr_http"`
	EndpointAddrGRPC string `json:"endpoint_addr_grpc"`
	DatabaseDSN      string `json:"database_dsn"`
	SecretKey        string `json:"secret_key"`

	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	SessionTokenValidityDuration timex.Duration `json:"session_token_validity_duration"`
	SMSCodeValidityDuration      timex.Duration `json:"sms_code_validity_duration"`
	ResetTokenValidityDuration   timex.Duration `json:"reset_token_validity_duration"`
	SMSResendInterval            timex.Duration `json:"sms_resend_interval"`
	CleanupInterval              timex.Duration `json:"cleanup_interval"`

	RegistrationPolicy string `json:"registration_policy"`
	DebugMode          *bool  `json:"debug_mode"`

	RedisURL string `json:"redis_url"`

	AWSRegion          string `json:"aws_region"`
	AWSAccessKeyID     string `json:"aws_access_key_id"`
	AWSSecretAccessKey string `json:"aws_secret_access_key"`
	AWSBaseEndpoint    string `json:"aws_base_endpoint"`
	SMSSenderID        string `json:"sms_sender_id"`
	EmailFrom          string `json:"email_from"`
	ResetURLBase       string `json:"reset_url_base"`
}

// parseJson overlays values from the file named by -c/-config in args.
// Keys missing from the file leave the current value untouched.
func parseJson(config *Config, args []string) error {
	path := flagx.ConfigFile(args)
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.RegistrationPolicy, c.RegistrationPolicy)
	setString(&config.RedisURL, c.RedisURL)
	setString(&config.AWSRegion, c.AWSRegion)
	setString(&config.AWSAccessKeyID, c.AWSAccessKeyID)
	setString(&config.AWSSecretAccessKey, c.AWSSecretAccessKey)
	setString(&config.AWSBaseEndpoint, c.AWSBaseEndpoint)
	setString(&config.SMSSenderID, c.SMSSenderID)
	setString(&config.EmailFrom, c.EmailFrom)
	setString(&config.ResetURLBase, c.ResetURLBase)

	if c.AccessTokenValidityDuration.Duration > 0 {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.SessionTokenValidityDuration.Duration > 0 {
		config.SessionTokenValidityDuration = c.SessionTokenValidityDuration.Duration
	}
	if c.SMSCodeValidityDuration.Duration > 0 {
		config.SMSCodeValidityDuration = c.SMSCodeValidityDuration.Duration
	}
	if c.ResetTokenValidityDuration.Duration > 0 {
		config.ResetTokenValidityDuration = c.ResetTokenValidityDuration.Duration
	}
	if c.SMSResendInterval.Duration > 0 {
		config.SMSResendInterval = c.SMSResendInterval.Duration
	}
	if c.CleanupInterval.Duration > 0 {
		config.CleanupInterval = c.CleanupInterval.Duration
	}
	if c.DebugMode != nil {
		config.DebugMode = *c.DebugMode
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
