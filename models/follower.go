package models

import (
	"context"
	"time"

	"github.com/davecheney/agora/internal/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CommunityFollower is the subscription of a person to a community.
type CommunityFollower struct {
	ID          uint32 `gorm:"primarykey"`
	CreatedAt   time.Time
	CommunityID snowflake.ID `gorm:"uniqueIndex:uidx_community_followers_community_id_person_id;not null"`
	Community   *Community   `gorm:"constraint:OnDelete:CASCADE;<-:false"`
	PersonID    snowflake.ID `gorm:"uniqueIndex:uidx_community_followers_community_id_person_id;not null"`
	Person      *Person      `gorm:"constraint:OnDelete:CASCADE;<-:false"`
	// Pending is true until the community has accepted the follow.
	Pending bool `gorm:"not null;default:false"`
}

type Followers struct {
	db *gorm.DB
}

func NewFollowers(db *gorm.DB) *Followers {
	return &Followers{db: db}
}

// Follow records that person follows community. Following twice is not an error,
// the existing relation is left untouched.
func (f *Followers) Follow(ctx context.Context, communityID, personID snowflake.ID, pending bool) error {
	return f.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "community_id"}, {Name: "person_id"}},
		DoNothing: true,
	}).Create(&CommunityFollower{
		CommunityID: communityID,
		PersonID:    personID,
		Pending:     pending,
	}).Error
}

// Unfollow removes the relation, if any.
func (f *Followers) Unfollow(ctx context.Context, communityID, personID snowflake.ID) error {
	return f.db.WithContext(ctx).
		Where("community_id = ? AND person_id = ?", communityID, personID).
		Delete(&CommunityFollower{}).Error
}

// Accept clears the pending flag. It reports whether a pending relation existed.
func (f *Followers) Accept(ctx context.Context, communityID, personID snowflake.ID) (bool, error) {
	res := f.db.WithContext(ctx).Model(&CommunityFollower{}).
		Where("community_id = ? AND person_id = ? AND pending = ?", communityID, personID, true).
		UpdateColumn("pending", false)
	return res.RowsAffected > 0, res.Error
}

// Reject removes a pending relation. An accepted relation is left alone.
func (f *Followers) Reject(ctx context.Context, communityID, personID snowflake.ID) error {
	return f.db.WithContext(ctx).
		Where("community_id = ? AND person_id = ? AND pending = ?", communityID, personID, true).
		Delete(&CommunityFollower{}).Error
}

// Find returns the relation between community and person.
func (f *Followers) Find(ctx context.Context, communityID, personID snowflake.ID) (*CommunityFollower, error) {
	return first[CommunityFollower](f.db.WithContext(ctx).Where("community_id = ? AND person_id = ?", communityID, personID))
}

// Count returns the number of accepted followers of community.
func (f *Followers) Count(ctx context.Context, communityID snowflake.ID) (int64, error) {
	var n int64
	err := f.db.WithContext(ctx).Model(&CommunityFollower{}).
		Where("community_id = ? AND pending = ?", communityID, false).
		Count(&n).Error
	return n, err
}

// Remote returns the accepted followers of community that live on other servers.
func (f *Followers) Remote(ctx context.Context, communityID snowflake.ID) ([]*Person, error) {
	var persons []*Person
	err := f.db.WithContext(ctx).
		Joins("JOIN community_followers ON community_followers.person_id = persons.id").
		Where("community_followers.community_id = ? AND community_followers.pending = ? AND persons.local = ?", communityID, false, false).
		Order("persons.id").
		Find(&persons).Error
	return persons, err
}
