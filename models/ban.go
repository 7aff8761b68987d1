package models

import (
	"context"
	"time"

	"github.com/davecheney/agora/internal/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CommunityPersonBan bars a person from a community.
type CommunityPersonBan struct {
	ID          uint32 `gorm:"primarykey"`
	CreatedAt   time.Time
	CommunityID snowflake.ID `gorm:"uniqueIndex:uidx_community_person_bans_community_id_person_id;not null"`
	Community   *Community   `gorm:"constraint:OnDelete:CASCADE;<-:false"`
	PersonID    snowflake.ID `gorm:"uniqueIndex:uidx_community_person_bans_community_id_person_id;not null"`
	Person      *Person      `gorm:"constraint:OnDelete:CASCADE;<-:false"`
}

type Bans struct {
	db *gorm.DB
}

func NewBans(db *gorm.DB) *Bans {
	return &Bans{db: db}
}

// IsBanned reports whether person is banned site wide or from community.
func (b *Bans) IsBanned(ctx context.Context, person *Person, communityID snowflake.ID) (bool, error) {
	if person.Banned {
		return true, nil
	}
	var n int64
	err := b.db.WithContext(ctx).Model(&CommunityPersonBan{}).
		Where("community_id = ? AND person_id = ?", communityID, person.ID).
		Count(&n).Error
	return n > 0, err
}

// Ban bars person from community.
func (b *Bans) Ban(ctx context.Context, communityID, personID snowflake.ID) error {
	return b.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&CommunityPersonBan{
		CommunityID: communityID,
		PersonID:    personID,
	}).Error
}

// BanSiteWide bars person from every community on this server.
func (b *Bans) BanSiteWide(ctx context.Context, personID snowflake.ID) error {
	return b.db.WithContext(ctx).Model(&Person{}).Where("id = ?", personID).UpdateColumn("banned", true).Error
}
