// Package models contains the gorm models and repositories backing the
// federation core.
package models

import (
	"encoding/hex"
	"errors"

	"github.com/zeebo/blake3"
	"gorm.io/gorm"
)

// AllTables returns a slice of all tables in the database.
func AllTables() []interface{} {
	return []interface{}{
		&Person{},
		&Community{},
		&CommunityFollower{},
		&CommunityPersonBan{},
		&Post{}, &PostLike{},
		&Comment{}, &CommentLike{},
		&Activity{},
		&DeliveryRequest{},
	}
}

// Fingerprint returns a fixed width key for uri, suitable for a unique
// index on databases that limit index length.
func Fingerprint(uri string) string {
	sum := blake3.Sum256([]byte(uri))
	return hex.EncodeToString(sum[:])
}

// forEach calls each fn in turn, stopping at the first error.
func forEach(tx *gorm.DB, fns ...func(*gorm.DB) error) error {
	for _, fn := range fns {
		if err := fn(tx); err != nil {
			return err
		}
	}
	return nil
}

// first returns the first row matched by tx, or gorm.ErrRecordNotFound.
func first[T any](tx *gorm.DB) (*T, error) {
	var rows []T
	if err := tx.Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &rows[0], nil
}

// IsNotFound reports whether err is gorm.ErrRecordNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
