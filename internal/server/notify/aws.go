// Package notify delivers one-time codes and reset links: SMS through AWS
// SNS, email through AWS SES v2, or to the log when AWS is not configured.
package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sc "github.com/dmitrijs2005/eventhub/internal/server/config"
)

// loadDefaultAWSConfig is a seam for tests.
var loadDefaultAWSConfig = config.LoadDefaultConfig

// LoadAWSConfig builds the SDK config from server settings. Static
// credentials are used when both key parts are set, otherwise the SDK
// default chain applies.
func LoadAWSConfig(ctx context.Context, c *sc.Config) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(c.AWSRegion),
	}
	if c.AWSAccessKeyID != "" && c.AWSSecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			c.AWSAccessKeyID,
			c.AWSSecretAccessKey,
			"",
		)))
	}

	cfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}
