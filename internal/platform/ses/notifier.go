package ses

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/vendorflow/internal/capability"
	"github.com/phrazzld/vendorflow/internal/config"
)

const defaultRegion = "us-east-2"

// API is the subset of *sesv2.Client used by Notifier.
type API interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, opts ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Notifier sends outreach email through SES.
type Notifier struct {
	client    API
	fromEmail string
	validate  *validator.Validate
	logger    *slog.Logger
}

var _ capability.Notifier = (*Notifier)(nil)

// NewClient builds an SES client from the default AWS credential chain.
func NewClient(ctx context.Context, cfg config.NotifyConfig) (*sesv2.Client, error) {
	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return sesv2.NewFromConfig(awsCfg), nil
}

// New creates a Notifier sending from fromEmail.
func New(client API, fromEmail string, logger *slog.Logger) (*Notifier, error) {
	if fromEmail == "" {
		return nil, errors.New("ses: from email is not set")
	}
	return &Notifier{
		client:    client,
		fromEmail: fromEmail,
		validate:  validator.New(),
		logger:    logger.With("component", "ses_notifier"),
	}, nil
}

// Send implements capability.Notifier and returns the SES message id.
func (n *Notifier) Send(
	ctx context.Context,
	channel capability.Channel,
	recipient string,
	content capability.Content,
) (string, error) {
	if channel != capability.ChannelEmail {
		return "", fmt.Errorf("%w: ses cannot deliver %s", capability.ErrUnsupported, channel)
	}
	if err := n.validate.Var(recipient, "required,email"); err != nil {
		return "", fmt.Errorf("%w: %q is not an email address", capability.ErrInvalidRecipient, recipient)
	}

	out, err := n.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(n.fromEmail),
		Destination: &types.Destination{
			ToAddresses: []string{recipient},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(content.Subject)},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(content.Body)},
				},
			},
		},
	})
	if err != nil {
		return "", classify(err)
	}

	id := aws.ToString(out.MessageId)
	n.logger.DebugContext(ctx, "email accepted by ses", "message_id", id)
	return id, nil
}

// classify maps SES errors onto capability failure kinds.
func classify(err error) error {
	var (
		rejected    *types.MessageRejected
		badRequest  *types.BadRequestException
		unverified  *types.MailFromDomainNotVerifiedException
		suspended   *types.AccountSuspendedException
		sendsPaused *types.SendingPausedException
	)
	switch {
	case errors.As(err, &rejected), errors.As(err, &badRequest), errors.As(err, &unverified):
		return fmt.Errorf("%w: ses rejected message: %v", capability.ErrPermanent, err)
	case errors.As(err, &suspended), errors.As(err, &sendsPaused):
		return fmt.Errorf("%w: ses sending disabled: %v", capability.ErrPermanent, err)
	default:
		return fmt.Errorf("%w: ses send: %v", capability.ErrTransient, err)
	}
}
