package models

import (
	"crypto"
	"crypto/rsa"
	"errors"
	"time"

	"github.com/davecheney/agora/internal/snowflake"

	ic "github.com/davecheney/agora/internal/crypto"
)

// Actor holds the columns shared by Person and Community.
type Actor struct {
	ID        snowflake.ID `gorm:"primarykey;autoIncrement:false"`
	CreatedAt time.Time
	UpdatedAt time.Time
	// URI is the actor's globally unique identifier.
	URI         string `gorm:"size:255;uniqueIndex;not null"`
	Name        string `gorm:"size:64;index;not null"`
	Domain      string `gorm:"size:255;index;not null"`
	Local       bool   `gorm:"not null;default:false"`
	Deleted     bool   `gorm:"not null;default:false"`
	PublicKey   []byte `gorm:"not null"`
	PrivateKey  []byte
	Inbox       string `gorm:"size:255;not null"`
	SharedInbox string `gorm:"size:255"`
	// LastRefreshedAt is when a remote actor's document was last fetched.
	LastRefreshedAt time.Time
}

func (a *Actor) ActorURI() string { return a.URI }

func (a *Actor) PublicKeyID() string { return a.URI + "#main-key" }

func (a *Actor) PubKey() (crypto.PublicKey, error) {
	return ic.ParsePublicKey(a.PublicKey)
}

// PrivKey returns the actor's private key. Only local actors have one.
func (a *Actor) PrivKey() (*rsa.PrivateKey, error) {
	if len(a.PrivateKey) == 0 {
		return nil, errors.New("actor has no private key: " + a.URI)
	}
	_, priv, err := ic.ParseRSAPrivateKey(a.PrivateKey)
	return priv, err
}

func (a *Actor) InboxURL() string { return a.Inbox }

func (a *Actor) SharedInboxURL() string { return a.SharedInbox }

// DeliveryInbox returns the shared inbox if the actor has one, otherwise its own inbox.
func (a *Actor) DeliveryInbox() string {
	if a.SharedInbox != "" {
		return a.SharedInbox
	}
	return a.Inbox
}

func (a *Actor) IsLocal() bool { return a.Local }

// Stale reports whether a remote actor was last refreshed more than ttl ago.
func (a *Actor) Stale(ttl time.Duration) bool {
	return !a.Local && time.Since(a.LastRefreshedAt) > ttl
}

func (a *Actor) assignID() {
	if a.ID == 0 {
		a.ID = snowflake.Now()
	}
}

// actorColumns are refreshed when a remote actor is upserted.
var actorColumns = []string{
	"name", "domain", "public_key", "inbox", "shared_inbox", "last_refreshed_at", "updated_at", "deleted",
}

// Request is the common bookkeeping of a background work item.
type Request struct {
	ID uint32 `gorm:"primarykey;"`
	// CreatedAt is the time the request was created.
	CreatedAt time.Time
	// UpdatedAt is the time the request was last updated.
	UpdatedAt time.Time
	// Attempts is the number of times the request has been attempted.
	Attempts uint32 `gorm:"not null;default:0"`
	// LastAttempt is the time the request was last attempted.
	LastAttempt time.Time
	// LastResult is the result of the last attempt if it failed.
	LastResult string `gorm:"type:text;"`
}
