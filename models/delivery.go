package models

import (
	"context"

	"github.com/davecheney/agora/internal/algorithms"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DeliveryRequest is an activity waiting to be posted to a remote inbox.
// DeliveryRequests are processed by the DeliveryProcessor in the background.
type DeliveryRequest struct {
	Request
	// ActivityFingerprint identifies the activity, see Fingerprint.
	ActivityFingerprint string `gorm:"size:64;uniqueIndex:uidx_delivery_requests_activity_inbox;not null"`
	// Inbox is the URL to post to.
	Inbox string `gorm:"size:255;uniqueIndex:uidx_delivery_requests_activity_inbox;not null"`
	// SenderURI is the local actor the request is signed as.
	SenderURI string `gorm:"size:255;not null"`
	Body      []byte `gorm:"not null"`
}

type Deliveries struct {
	db *gorm.DB
}

func NewDeliveries(db *gorm.DB) *Deliveries {
	return &Deliveries{db: db}
}

// Enqueue schedules body, the activity activityURI, for delivery to each inbox.
// An inbox already scheduled for the activity is skipped.
func (d *Deliveries) Enqueue(ctx context.Context, senderURI, activityURI string, body []byte, inboxes ...string) error {
	inboxes = algorithms.Uniq(inboxes)
	if len(inboxes) == 0 {
		return nil
	}
	fp := Fingerprint(activityURI)
	requests := algorithms.Map(inboxes, func(inbox string) *DeliveryRequest {
		return &DeliveryRequest{
			ActivityFingerprint: fp,
			Inbox:               inbox,
			SenderURI:           senderURI,
			Body:                body,
		}
	})
	return d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "activity_fingerprint"}, {Name: "inbox"}},
		DoNothing: true,
	}).Create(&requests).Error
}

// Pending returns a scope selecting requests with fewer than maxAttempts attempts.
func Pending(maxAttempts int) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("attempts < ?", maxAttempts).Order("id")
	}
}

// ForActivity returns the requests queued for activityURI.
func (d *Deliveries) ForActivity(ctx context.Context, activityURI string) ([]DeliveryRequest, error) {
	var requests []DeliveryRequest
	err := d.db.WithContext(ctx).Where("activity_fingerprint = ?", Fingerprint(activityURI)).Order("inbox").Find(&requests).Error
	return requests, err
}
