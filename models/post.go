package models

import (
	"context"
	"time"

	"github.com/davecheney/agora/internal/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Post is a link or text submission to a community.
type Post struct {
	ID          snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	URI         string       `gorm:"size:255;uniqueIndex;not null"`
	Name        string       `gorm:"size:200;not null"`
	URL         string       `gorm:"size:512"`
	Body        string       `gorm:"type:text"`
	CreatorID   snowflake.ID `gorm:"index;not null"`
	Creator     *Person      `gorm:"constraint:OnDelete:CASCADE;<-:false"`
	CommunityID snowflake.ID `gorm:"index;not null"`
	Community   *Community   `gorm:"constraint:OnDelete:CASCADE;<-:false"`
	Locked      bool         `gorm:"not null;default:false"`
	Nsfw        bool         `gorm:"not null;default:false"`
	Stickied    bool         `gorm:"not null;default:false"`
	Deleted     bool         `gorm:"not null;default:false"`
	Removed     bool         `gorm:"not null;default:false"`
	Local       bool         `gorm:"not null;default:false"`
	Published   time.Time
	Updated     *time.Time

	EmbedTitle       string `gorm:"size:255"`
	EmbedDescription string `gorm:"type:text"`
	ThumbnailURL     string `gorm:"size:512"`

	CommentsCount int32 `gorm:"not null;default:0"`
	Score         int32 `gorm:"not null;default:0"`
	Upvotes       int32 `gorm:"not null;default:0"`
	Downvotes     int32 `gorm:"not null;default:0"`
}

func (p *Post) BeforeCreate(tx *gorm.DB) error {
	if p.ID == 0 {
		p.ID = snowflake.TimeToID(p.Published)
	}
	return nil
}

type Posts struct {
	db *gorm.DB
}

func NewPosts(db *gorm.DB) *Posts {
	return &Posts{db: db}
}

// FindByURI returns the post with the given URI.
func (p *Posts) FindByURI(ctx context.Context, uri string) (*Post, error) {
	return first[Post](p.db.WithContext(ctx).Where("uri = ?", uri))
}

// FindByID returns the post with the given id.
func (p *Posts) FindByID(ctx context.Context, id snowflake.ID) (*Post, error) {
	return first[Post](p.db.WithContext(ctx).Where("id = ?", id))
}

// Upsert creates post, or updates the editable fields of the stored copy.
func (p *Posts) Upsert(ctx context.Context, post *Post) (*Post, error) {
	err := p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "uri"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "url", "body", "locked", "nsfw", "stickied", "updated", "updated_at",
			"embed_title", "embed_description", "thumbnail_url",
		}),
	}).Create(post).Error
	if err != nil {
		return nil, err
	}
	return p.FindByURI(ctx, post.URI)
}

// SetDeleted marks the post deleted, or restores it.
func (p *Posts) SetDeleted(ctx context.Context, id snowflake.ID, deleted bool) error {
	return p.db.WithContext(ctx).Model(&Post{ID: id}).UpdateColumn("deleted", deleted).Error
}
