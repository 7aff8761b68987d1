package activitypub

import (
	"context"
	"fmt"

	"github.com/davecheney/agora/models"
)

// Seen is the outcome of recording an activity id.
type Seen int

const (
	FirstSeen Seen = iota
	AlreadySeen
)

func (s Seen) String() string {
	if s == FirstSeen {
		return "first seen"
	}
	return "already seen"
}

// Deduplicator guards against processing an activity more than once.
type Deduplicator struct {
	activities *models.Activities
	domain     string
}

// CheckAddressed returns ErrNotAddressedHere unless the activity's to or cc
// names one of recipients.
func CheckAddressed(activity *Activity, recipients ...string) error {
	if !activity.AddressedTo(recipients...) {
		return fmt.Errorf("%w: %s", ErrNotAddressedHere, recipients)
	}
	return nil
}

// AssertNotLocal returns ErrForeignActivity if the activity's id was minted by this server.
func (d *Deduplicator) AssertNotLocal(activity *Activity) error {
	if hostOf(activity.ID) == d.domain {
		return fmt.Errorf("%w: %s", ErrForeignActivity, activity.ID)
	}
	return nil
}

// CheckAndRecord records the activity. The unique index on the record's
// fingerprint decides which of several concurrent deliveries sees FirstSeen.
func (d *Deduplicator) CheckAndRecord(ctx context.Context, activity *Activity) (Seen, error) {
	ctx, span := tracer.Start(ctx, "Deduplicator.CheckAndRecord")
	defer span.End()

	first, err := d.activities.Record(ctx, activity.ID, activity.Raw(), false, true)
	if err != nil {
		span.RecordError(err)
		return AlreadySeen, err
	}
	if first {
		return FirstSeen, nil
	}
	return AlreadySeen, nil
}
