package workers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/davecheney/agora/internal/activitypub"
	"github.com/davecheney/agora/internal/config"
	"github.com/davecheney/agora/models"
	"gorm.io/gorm"
)

// NewDeliveryProcessor posts queued activities to remote inboxes, signed as
// the local actor that sent them. Failed deliveries are retried on the next
// pass until they have been attempted cfg.Delivery.MaxAttempts times.
func NewDeliveryProcessor(db *gorm.DB, cfg *config.Config, logger *slog.Logger) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		logger.Info("delivery processor started")
		defer logger.Info("delivery processor stopped")

		d := &deliverer{
			timeout: cfg.Delivery.Timeout,
			logger:  logger,
		}
		db := db.WithContext(ctx)
		for {
			if err := process(db, models.Pending(cfg.Delivery.MaxAttempts), d.deliver); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(cfg.Delivery.Interval):
				// continue
			}
		}
	}
}

type deliverer struct {
	timeout time.Duration
	logger  *slog.Logger

	// Transport is used for outbound requests, http.DefaultTransport if nil.
	transport http.RoundTripper
}

func (d *deliverer) deliver(db *gorm.DB, request *models.DeliveryRequest) error {
	ctx := db.Statement.Context
	sender, err := findSender(ctx, db, request.SenderURI)
	if err != nil {
		return err
	}
	client, err := activitypub.NewClient(sender)
	if err != nil {
		return err
	}
	client.Transport = d.transport

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := client.Post(ctx, request.Inbox, request.Body); err != nil {
		d.logger.Warn("delivery failed", "inbox", request.Inbox, "attempts", request.Attempts+1, "error", err)
		return err
	}
	d.logger.Debug("delivered", "inbox", request.Inbox, "sender", request.SenderURI)
	return nil
}

// findSender returns the local person or community with uri.
func findSender(ctx context.Context, db *gorm.DB, uri string) (activitypub.Signer, error) {
	person, err := models.NewPersons(db).FindByURI(ctx, uri)
	if err == nil && person.Local {
		return person, nil
	}
	if err != nil && !models.IsNotFound(err) {
		return nil, err
	}
	community, err := models.NewCommunities(db).FindByURI(ctx, uri)
	if err == nil && community.Local {
		return community, nil
	}
	if err != nil && !models.IsNotFound(err) {
		return nil, err
	}
	return nil, fmt.Errorf("no local actor %s to sign as", uri)
}
