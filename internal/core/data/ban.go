package data

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// Ban blocks a peer address from the HTTP and socket servers.
type Ban struct {
	ID        uint64 `gorm:"primaryKey"`
	Address   string `gorm:"unique; not null"`
	Reason    string
	CreatedAt time.Time
}

// FindBan returns the ban for address, or nil if the address isn't banned.
func FindBan(db *gorm.DB, address string) (*Ban, error) {
	var ban Ban
	err := db.Where("address = ?", address).First(&ban).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &ban, nil
}

// CreateBan persists the Ban record to the database.
func CreateBan(db *gorm.DB, ban *Ban) error {
	return db.Create(ban).Error
}

// DeleteBan lifts the ban on address. Lifting a ban that doesn't exist is not an error.
func DeleteBan(db *gorm.DB, address string) error {
	return db.Where("address = ?", address).Delete(&Ban{}).Error
}
