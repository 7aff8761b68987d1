package models

import (
	"context"
	"time"

	"github.com/davecheney/agora/internal/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostLike is a person's vote on a post. Score is 1 or -1.
type PostLike struct {
	ID        uint32 `gorm:"primarykey"`
	CreatedAt time.Time
	PostID    snowflake.ID `gorm:"uniqueIndex:uidx_post_likes_post_id_person_id;not null"`
	Post      *Post        `gorm:"constraint:OnDelete:CASCADE;<-:false"`
	PersonID  snowflake.ID `gorm:"uniqueIndex:uidx_post_likes_post_id_person_id;not null"`
	Person    *Person      `gorm:"constraint:OnDelete:CASCADE;<-:false"`
	Score     int8         `gorm:"not null"`
}

func (l *PostLike) AfterSave(tx *gorm.DB) error {
	return forEach(tx, l.updatePostScore)
}

func (l *PostLike) AfterDelete(tx *gorm.DB) error {
	return forEach(tx, l.updatePostScore)
}

// updatePostScore recomputes the score, upvotes, and downvotes of the post.
func (l *PostLike) updatePostScore(tx *gorm.DB) error {
	return tx.Model(&Post{ID: l.PostID}).UpdateColumns(scores(tx, &PostLike{}, "post_id", l.PostID)).Error
}

// CommentLike is a person's vote on a comment. Score is 1 or -1.
type CommentLike struct {
	ID        uint32 `gorm:"primarykey"`
	CreatedAt time.Time
	CommentID snowflake.ID `gorm:"uniqueIndex:uidx_comment_likes_comment_id_person_id;not null"`
	Comment   *Comment     `gorm:"constraint:OnDelete:CASCADE;<-:false"`
	PersonID  snowflake.ID `gorm:"uniqueIndex:uidx_comment_likes_comment_id_person_id;not null"`
	Person    *Person      `gorm:"constraint:OnDelete:CASCADE;<-:false"`
	Score     int8         `gorm:"not null"`
}

func (l *CommentLike) AfterSave(tx *gorm.DB) error {
	return forEach(tx, l.updateCommentScore)
}

func (l *CommentLike) AfterDelete(tx *gorm.DB) error {
	return forEach(tx, l.updateCommentScore)
}

func (l *CommentLike) updateCommentScore(tx *gorm.DB) error {
	return tx.Model(&Comment{ID: l.CommentID}).UpdateColumns(scores(tx, &CommentLike{}, "comment_id", l.CommentID)).Error
}

// scores returns the aggregate subqueries for the votes on target.
func scores(tx *gorm.DB, model any, column string, target snowflake.ID) map[string]interface{} {
	votes := func(cond string, args ...any) *gorm.DB {
		return tx.Model(model).Where(column+" = ?", target).Where(cond, args...)
	}
	return map[string]interface{}{
		"score":     votes("1 = 1").Select("COALESCE(SUM(score), 0)"),
		"upvotes":   votes("score > ?", 0).Select("COUNT(*)"),
		"downvotes": votes("score < ?", 0).Select("COUNT(*)"),
	}
}

type Likes struct {
	db *gorm.DB
}

func NewLikes(db *gorm.DB) *Likes {
	return &Likes{db: db}
}

// VotePost records person's vote on post, replacing any earlier vote.
func (l *Likes) VotePost(ctx context.Context, postID, personID snowflake.ID, score int8) error {
	return l.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "post_id"}, {Name: "person_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"score"}),
	}).Create(&PostLike{
		PostID:   postID,
		PersonID: personID,
		Score:    score,
	}).Error
}

// UnvotePost removes person's vote on post, if any.
func (l *Likes) UnvotePost(ctx context.Context, postID, personID snowflake.ID) error {
	like, err := first[PostLike](l.db.WithContext(ctx).Where("post_id = ? AND person_id = ?", postID, personID))
	if IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return l.db.WithContext(ctx).Delete(like).Error
}

// VoteComment records person's vote on comment, replacing any earlier vote.
func (l *Likes) VoteComment(ctx context.Context, commentID, personID snowflake.ID, score int8) error {
	return l.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "comment_id"}, {Name: "person_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"score"}),
	}).Create(&CommentLike{
		CommentID: commentID,
		PersonID:  personID,
		Score:     score,
	}).Error
}

// UnvoteComment removes person's vote on comment, if any.
func (l *Likes) UnvoteComment(ctx context.Context, commentID, personID snowflake.ID) error {
	like, err := first[CommentLike](l.db.WithContext(ctx).Where("comment_id = ? AND person_id = ?", commentID, personID))
	if IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return l.db.WithContext(ctx).Delete(like).Error
}
