// Package notify selects the outbound capability.Notifier for a deployment.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/phrazzld/vendorflow/internal/capability"
	"github.com/phrazzld/vendorflow/internal/config"
	"github.com/phrazzld/vendorflow/internal/platform/ses"
	"github.com/phrazzld/vendorflow/internal/redact"
)

// Notifier drivers.
const (
	DriverSES    = "ses"
	DriverDryRun = "dryrun"
)

// New builds the notifier named by cfg.Driver.
func New(ctx context.Context, cfg config.NotifyConfig, logger *slog.Logger) (capability.Notifier, error) {
	switch cfg.Driver {
	case DriverSES:
		client, err := ses.NewClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return ses.New(client, cfg.FromEmail, logger)
	case DriverDryRun, "":
		return NewDryRun(logger), nil
	default:
		return nil, fmt.Errorf("unknown notify driver %q", cfg.Driver)
	}
}

// DryRun logs outbound messages instead of delivering them. Staging
// deployments use it so the lifecycle can be exercised end to end.
type DryRun struct {
	logger *slog.Logger
	seq    atomic.Uint64
}

var _ capability.Notifier = (*DryRun)(nil)

// NewDryRun creates a DryRun notifier.
func NewDryRun(logger *slog.Logger) *DryRun {
	return &DryRun{logger: logger.With("component", "dryrun_notifier")}
}

// Send implements capability.Notifier.
func (d *DryRun) Send(
	ctx context.Context,
	channel capability.Channel,
	recipient string,
	content capability.Content,
) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("%w: empty recipient", capability.ErrInvalidRecipient)
	}
	id := fmt.Sprintf("dryrun-%d", d.seq.Add(1))
	d.logger.InfoContext(ctx, "message not sent (dry run)",
		"delivery_id", id,
		"channel", string(channel),
		"recipient", redact.String(recipient),
		"subject", content.Subject,
		"body_length", len(content.Body))
	return id, nil
}
