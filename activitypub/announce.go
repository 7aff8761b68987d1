package activitypub

import (
	"context"
	"log/slog"

	"github.com/davecheney/agora/models"
)

// Announcer re-broadcasts activities accepted by a local community to its
// remote followers.
type Announcer struct {
	activities *models.Activities
	outbox     *Outbox
	logger     *slog.Logger
}

// AnnounceIfNeeded announces activity on behalf of community when decision
// asks for it. Each activity is announced at most once, however often it is delivered.
func (a *Announcer) AnnounceIfNeeded(ctx context.Context, decision Decision, activity *Activity, community *models.Community) error {
	if decision != ShouldAnnounce {
		return nil
	}
	if !activity.IsPublic() {
		a.logger.Debug("not announcing non public activity", "id", activity.ID, "community", community.URI)
		return nil
	}
	forward, err := a.activities.MarkForwarded(ctx, activity.ID)
	if err != nil || !forward {
		return err
	}
	return a.outbox.SendAnnounce(ctx, activity, community)
}
