package models

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Activity records an activity id this server has accepted.
// Apart from Forwarded, rows are never updated once written.
type Activity struct {
	ID        uint64 `gorm:"primarykey"`
	CreatedAt time.Time
	// Fingerprint is the blake3 hash of URI; its unique index arbitrates
	// between concurrent deliveries of the same activity.
	Fingerprint string `gorm:"size:64;uniqueIndex;not null"`
	URI         string `gorm:"type:text;not null"`
	Data        []byte `gorm:"not null"`
	Local       bool   `gorm:"not null;default:false"`
	Sensitive   bool   `gorm:"not null;default:false"`
	// Forwarded is set once the activity has been announced to followers.
	Forwarded bool `gorm:"not null;default:false"`
}

type Activities struct {
	db *gorm.DB
}

func NewActivities(db *gorm.DB) *Activities {
	return &Activities{db: db}
}

// Record stores the activity unless it has been seen before.
// It reports true only to the caller whose insert created the row.
func (a *Activities) Record(ctx context.Context, uri string, data []byte, local, sensitive bool) (bool, error) {
	res := a.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "fingerprint"}},
		DoNothing: true,
	}).Create(&Activity{
		Fingerprint: Fingerprint(uri),
		URI:         uri,
		Data:        data,
		Local:       local,
		Sensitive:   sensitive,
	})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkForwarded flips Forwarded from false to true. It reports whether this call made the change.
func (a *Activities) MarkForwarded(ctx context.Context, uri string) (bool, error) {
	res := a.db.WithContext(ctx).Model(&Activity{}).
		Where("fingerprint = ? AND forwarded = ?", Fingerprint(uri), false).
		UpdateColumn("forwarded", true)
	return res.RowsAffected == 1, res.Error
}

// FindByURI returns the stored activity.
func (a *Activities) FindByURI(ctx context.Context, uri string) (*Activity, error) {
	return first[Activity](a.db.WithContext(ctx).Where("fingerprint = ?", Fingerprint(uri)))
}

// Count returns the number of stored activities.
func (a *Activities) Count(ctx context.Context) (int64, error) {
	var n int64
	return n, a.db.WithContext(ctx).Model(&Activity{}).Count(&n).Error
}
