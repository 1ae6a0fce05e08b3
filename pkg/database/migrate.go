package database

import (
	"tarot-room-be/internal/model"

	"gorm.io/gorm"
)

// Models lists every table of the row store in creation order.
func Models() []interface{} {
	return []interface{}{
		&model.UserProfile{},
		&model.ReadingSession{},
		&model.SessionParticipant{},
	}
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
