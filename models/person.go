package models

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Person is a local or remote user account.
type Person struct {
	Actor
	DisplayName string `gorm:"size:255"`
	Bio         string `gorm:"type:text"`
	// Banned is a site wide ban.
	Banned bool `gorm:"not null;default:false"`
}

func (Person) TableName() string {
	return "persons"
}

func (p *Person) BeforeCreate(tx *gorm.DB) error {
	p.assignID()
	return nil
}

type Persons struct {
	db *gorm.DB
}

func NewPersons(db *gorm.DB) *Persons {
	return &Persons{db: db}
}

// FindByURI returns the person with the given URI if it exists locally.
func (p *Persons) FindByURI(ctx context.Context, uri string) (*Person, error) {
	return first[Person](p.db.WithContext(ctx).Where("uri = ?", uri))
}

// FindLocal returns the local person with the given name.
func (p *Persons) FindLocal(ctx context.Context, name string) (*Person, error) {
	return first[Person](p.db.WithContext(ctx).Where("name = ? AND local = ?", name, true))
}

// Create inserts a new person.
func (p *Persons) Create(ctx context.Context, person *Person) error {
	return p.db.WithContext(ctx).Create(person).Error
}

// Upsert inserts person, or refreshes the stored copy if one with the same URI exists.
// The stored row is returned.
func (p *Persons) Upsert(ctx context.Context, person *Person) (*Person, error) {
	err := p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "uri"}},
		DoUpdates: clause.AssignmentColumns(append([]string{"display_name", "bio"}, actorColumns...)),
	}).Create(person).Error
	if err != nil {
		return nil, err
	}
	return p.FindByURI(ctx, person.URI)
}
