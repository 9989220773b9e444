package db

import (
	"time"
)

type preferenceModel struct {
	Key       string `gorm:"primaryKey;size:64"`
	Value     string `gorm:"type:text;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (preferenceModel) TableName() string {
	return "preferences"
}
