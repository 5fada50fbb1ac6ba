package config

import (
	"fmt"
	"strconv"
	"time"
)

// parseEnv overlays values from environment variables. Serverless runtimes
// only hand configuration over this way, so every setting has a variable.
func parseEnv(config *Config, lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"HTTP_ADDRESS":          &config.EndpointAddrHTTP,
		"GRPC_ADDRESS":          &config.EndpointAddrGRPC,
		"DATABASE_URL":          &config.DatabaseDSN,
		"SECRET_KEY":            &config.SecretKey,
		"REGISTRATION_POLICY":   &config.RegistrationPolicy,
		"REDIS_URL":             &config.RedisURL,
		"AWS_REGION":            &config.AWSRegion,
		"AWS_ACCESS_KEY_ID":     &config.AWSAccessKeyID,
		"AWS_SECRET_ACCESS_KEY": &config.AWSSecretAccessKey,
		"AWS_ENDPOINT_URL":      &config.AWSBaseEndpoint,
		"SMS_SENDER_ID":         &config.SMSSenderID,
		"EMAIL_FROM":            &config.EmailFrom,
		"RESET_URL_BASE":        &config.ResetURLBase,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"ACCESS_TOKEN_TTL":    &config.AccessTokenValidityDuration,
		"SESSION_TOKEN_TTL":   &config.SessionTokenValidityDuration,
		"SMS_CODE_TTL":        &config.SMSCodeValidityDuration,
		"RESET_TOKEN_TTL":     &config.ResetTokenValidityDuration,
		"SMS_RESEND_INTERVAL": &config.SMSResendInterval,
		"CLEANUP_INTERVAL":    &config.CleanupInterval,
	}
	for key, dst := range durations {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("env %s: %w", key, err)
		}
		*dst = d
	}

	if v, ok := lookup("DEBUG_MODE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("env DEBUG_MODE: %w", err)
		}
		config.DebugMode = b
	}
	return nil
}
