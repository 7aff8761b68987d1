package models

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Community is a local or remote group that posts are addressed to.
type Community struct {
	Actor
	Title        string `gorm:"size:255;not null"`
	Description  string `gorm:"type:text"`
	FollowersURL string `gorm:"size:255"`
	Nsfw         bool   `gorm:"not null;default:false"`
	// Removed is set by a local moderator.
	Removed bool `gorm:"not null;default:false"`
}

func (c *Community) BeforeCreate(tx *gorm.DB) error {
	c.assignID()
	return nil
}

// Followers returns the URL of the community's followers collection.
func (c *Community) Followers() string {
	if c.FollowersURL != "" {
		return c.FollowersURL
	}
	return c.URI + "/followers"
}

type Communities struct {
	db *gorm.DB
}

func NewCommunities(db *gorm.DB) *Communities {
	return &Communities{db: db}
}

// FindByURI returns the community with the given URI if it exists locally.
func (c *Communities) FindByURI(ctx context.Context, uri string) (*Community, error) {
	return first[Community](c.db.WithContext(ctx).Where("uri = ?", uri))
}

// FindLocal returns the local community with the given name.
func (c *Communities) FindLocal(ctx context.Context, name string) (*Community, error) {
	return first[Community](c.db.WithContext(ctx).Where("name = ? AND local = ?", name, true))
}

// FindLocalByURIs returns the first local community whose URI is in uris.
func (c *Communities) FindLocalByURIs(ctx context.Context, uris []string) (*Community, error) {
	if len(uris) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return first[Community](c.db.WithContext(ctx).Where("uri IN ? AND local = ?", uris, true).Order("id"))
}

// Create inserts a new community.
func (c *Communities) Create(ctx context.Context, community *Community) error {
	return c.db.WithContext(ctx).Create(community).Error
}

// Upsert inserts community, or refreshes the stored copy if one with the same URI exists.
func (c *Communities) Upsert(ctx context.Context, community *Community) (*Community, error) {
	err := c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "uri"}},
		DoUpdates: clause.AssignmentColumns(append([]string{"title", "description", "followers_url", "nsfw"}, actorColumns...)),
	}).Create(community).Error
	if err != nil {
		return nil, err
	}
	return c.FindByURI(ctx, community.URI)
}
