package models

import (
	"context"
	"time"

	"github.com/davecheney/agora/internal/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Comment is a reply to a post or to another comment.
type Comment struct {
	ID        snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	CreatedAt time.Time
	UpdatedAt time.Time
	URI       string        `gorm:"size:255;uniqueIndex;not null"`
	CreatorID snowflake.ID  `gorm:"index;not null"`
	Creator   *Person       `gorm:"constraint:OnDelete:CASCADE;<-:false"`
	PostID    snowflake.ID  `gorm:"index;not null"`
	Post      *Post         `gorm:"constraint:OnDelete:CASCADE;<-:false"`
	ParentID  *snowflake.ID `gorm:"index"`
	Parent    *Comment      `gorm:"constraint:OnDelete:CASCADE;<-:false"`
	Content   string        `gorm:"type:text;not null"`
	Deleted   bool          `gorm:"not null;default:false"`
	Removed   bool          `gorm:"not null;default:false"`
	Local     bool          `gorm:"not null;default:false"`
	Published time.Time
	Updated   *time.Time

	Score     int32 `gorm:"not null;default:0"`
	Upvotes   int32 `gorm:"not null;default:0"`
	Downvotes int32 `gorm:"not null;default:0"`
}

func (c *Comment) BeforeCreate(tx *gorm.DB) error {
	if c.ID == 0 {
		c.ID = snowflake.TimeToID(c.Published)
	}
	return nil
}

func (c *Comment) AfterCreate(tx *gorm.DB) error {
	return forEach(tx, c.updatePostCommentsCount)
}

// updatePostCommentsCount recounts the comments on the parent post.
func (c *Comment) updatePostCommentsCount(tx *gorm.DB) error {
	return tx.Model(&Post{ID: c.PostID}).UpdateColumns(map[string]interface{}{
		"comments_count": tx.Model(&Comment{}).Select("COUNT(*)").Where("post_id = ? AND deleted = ?", c.PostID, false),
	}).Error
}

type Comments struct {
	db *gorm.DB
}

func NewComments(db *gorm.DB) *Comments {
	return &Comments{db: db}
}

// FindByURI returns the comment with the given URI.
func (c *Comments) FindByURI(ctx context.Context, uri string) (*Comment, error) {
	return first[Comment](c.db.WithContext(ctx).Where("uri = ?", uri))
}

// Upsert creates comment, or updates the content of the stored copy.
func (c *Comments) Upsert(ctx context.Context, comment *Comment) (*Comment, error) {
	err := c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "uri"}},
		DoUpdates: clause.AssignmentColumns([]string{"content", "updated", "updated_at"}),
	}).Create(comment).Error
	if err != nil {
		return nil, err
	}
	return c.FindByURI(ctx, comment.URI)
}

// SetDeleted marks the comment deleted, or restores it.
func (c *Comments) SetDeleted(ctx context.Context, id snowflake.ID, deleted bool) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		comment := &Comment{ID: id}
		if err := tx.Model(comment).UpdateColumn("deleted", deleted).Error; err != nil {
			return err
		}
		if err := tx.Take(comment).Error; err != nil {
			return err
		}
		return comment.updatePostCommentsCount(tx)
	})
}
