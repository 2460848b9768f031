package models

import "time"

type User struct {
	Id             string    `json:"id" bson:"id" gorm:"primaryKey"`
	Email          string    `json:"email" bson:"email" gorm:"index"`
	Name           string    `json:"name" bson:"name"`
	Verified       bool      `json:"verified" bson:"verified"`
	DateRegistered time.Time `json:"date_registered" bson:"date_registered"`
}
