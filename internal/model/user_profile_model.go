package model

import "time"

type UserProfile struct {
	Id          string    `gorm:"type:varchar(255);primaryKey"`
	DisplayName string    `gorm:"type:varchar(100);not null;default:''"`
	IsAnonymous bool      `gorm:"not null;default:false"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

func (UserProfile) TableName() string {
	return "user_profiles"
}
