package activitypub

import (
	"context"
	"fmt"
	"strings"

	"github.com/davecheney/agora/internal/algorithms"
	"github.com/davecheney/agora/models"
	"github.com/go-json-experiment/json"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Outbox queues activities for delivery by the delivery worker.
type Outbox struct {
	db *gorm.DB
}

// NewOutbox returns an Outbox which queues deliveries in db.
func NewOutbox(db *gorm.DB) *Outbox {
	return &Outbox{db: db}
}

// Deliver queues activity, signed as sender, for each of inboxes.
func (o *Outbox) Deliver(ctx context.Context, sender Actor, activity map[string]any, inboxes ...string) error {
	id := stringFromAny(activity["id"])
	if id == "" {
		return fmt.Errorf("outbox: activity has no id")
	}
	body, err := json.Marshal(activity)
	if err != nil {
		return err
	}
	return models.NewDeliveries(o.db).Enqueue(ctx, sender.ActorURI(), id, body, inboxes...)
}

// SendAnnounce wraps activity in an Announce from community and queues it
// once for each remote follower inbox. Inboxes on the server the activity
// came from are skipped, that server already has it.
func (o *Outbox) SendAnnounce(ctx context.Context, activity *Activity, community *models.Community) error {
	ctx, span := tracer.Start(ctx, "Outbox.SendAnnounce")
	defer span.End()

	followers, err := models.NewFollowers(o.db).Remote(ctx, community.ID)
	if err != nil {
		return err
	}
	origin := hostOf(activity.ActorURI())
	inboxes := algorithms.Filter(
		algorithms.Map(followers, func(p *models.Person) string { return p.DeliveryInbox() }),
		func(inbox string) bool { return hostOf(inbox) != origin },
	)
	if len(inboxes) == 0 {
		return nil
	}
	object, err := activity.Map()
	if err != nil {
		return err
	}
	return o.Deliver(ctx, community, map[string]any{
		"@context": ContextURL,
		"id":       activityID(community, Announce),
		"type":     Announce,
		"actor":    community.URI,
		"to":       []string{Public},
		"cc":       []string{community.Followers()},
		"object":   object,
	}, inboxes...)
}

// activityID mints a new id for an activity of type typ sent by actor.
func activityID(actor Actor, typ Type) string {
	return fmt.Sprintf("%s/activities/%s/%s", actor.ActorURI(), strings.ToLower(string(typ)), uuid.New())
}
