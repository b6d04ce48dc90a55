package types

import (
	"time"

	"gorm.io/datatypes"
)

// UserRecord is the single row owning all of a user's study sets. The ID
// is the subject claim from the identity provider; History and
// Preferences are JSON documents, mirroring the one-document-per-user
// layout the mobile client expects.
type UserRecord struct {
	ID          string         `gorm:"primaryKey;column:id" json:"id"`
	History     datatypes.JSON `gorm:"column:history" json:"history"`
	Preferences datatypes.JSON `gorm:"column:preferences" json:"preferences"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null" json:"updated_at"`
}

func (UserRecord) TableName() string {
	return "user_record"
}

type Preferences struct {
	DarkMode             bool `json:"darkMode"`
	DefaultQuestionCount int  `json:"defaultQuestionCount"`
}

func DefaultPreferences() Preferences {
	return Preferences{DarkMode: false, DefaultQuestionCount: 10}
}
