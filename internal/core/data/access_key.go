package data

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// KeyKind distinguishes the privileges granted by an AccessKey.
type KeyKind uint8

const (
	AdminKey KeyKind = iota
	GuestKey
)

func (k KeyKind) String() string {
	if k == AdminKey {
		return "admin"
	}
	return "guest"
}

// AccessKey is a server access key handed out by an operator. Presenting one
// to /auth starts a browser session.
type AccessKey struct {
	ID        uint64  `gorm:"primaryKey"`
	Key       string  `gorm:"column:access_key; unique; not null"`
	Kind      KeyKind `gorm:"not null"`
	Uses      int     `gorm:"default:0"`
	CreatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

// FindAccessKey returns the active key matching key, or nil if there is no match.
func FindAccessKey(db *gorm.DB, key string) (*AccessKey, error) {
	var accessKey AccessKey
	err := db.Where("access_key = ?", key).First(&accessKey).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &accessKey, nil
}

// FindAccessKeys returns every active key of the given kind, oldest first.
func FindAccessKeys(db *gorm.DB, kind KeyKind) ([]AccessKey, error) {
	var keys []AccessKey
	if err := db.Where("kind = ?", kind).Order("created_at").Find(&keys).Error; err != nil {
		return nil, err
	}
	return keys, nil
}

// CreateAccessKey persists the AccessKey record to the database.
func CreateAccessKey(db *gorm.DB, key *AccessKey) error {
	return db.Create(key).Error
}

// IncrementAccessKeyUses bumps the use counter of key both in the database and on the struct.
func IncrementAccessKeyUses(db *gorm.DB, key *AccessKey) error {
	err := db.Model(key).UpdateColumn("uses", gorm.Expr("uses + ?", 1)).Error
	if err != nil {
		return err
	}
	key.Uses++
	return nil
}

// DeleteAccessKey soft-deletes an AccessKey record so that it can no longer be used.
func DeleteAccessKey(db *gorm.DB, key *AccessKey) error {
	return db.Delete(key).Error
}
