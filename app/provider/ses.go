package provider

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/vibast-solutions/ms-go-mailqueue/app/logger"
)

type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

type SESProvider struct {
	client           sesAPI
	source           string
	configurationSet string
}

// NewSESProvider builds a provider that sends raw MIME through AWS SES v2.
func NewSESProvider(cfg aws.Config, source string, configurationSet string) *SESProvider {
	return &SESProvider{
		client:           sesv2.NewFromConfig(cfg),
		source:           source,
		configurationSet: configurationSet,
	}
}

// SendRaw submits the rendered message for a single recipient.
func (p *SESProvider) SendRaw(ctx context.Context, recipient string, raw []byte) error {
	if recipient == "" {
		return fmt.Errorf("recipient is required")
	}
	if len(raw) == 0 {
		return fmt.Errorf("raw content is required")
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(p.source),
		Destination: &types.Destination{
			ToAddresses: []string{recipient},
		},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: raw},
		},
	}
	if p.configurationSet != "" {
		input.ConfigurationSetName = aws.String(p.configurationSet)
	}

	out, err := p.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("ses send raw email: %w", err)
	}
	logger.FromContext(ctx).Debug().Str("ses_message_id", aws.ToString(out.MessageId)).Msg("ses accepted message")
	return nil
}
