package models

import "time"

type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

const MessageTypeBusinessRejection = "BusinessRejection"

type MessageLog struct {
	Id            uint      `json:"-" bson:"-" gorm:"primaryKey;autoIncrement"`
	ChargePointId string    `json:"charge_point_id" bson:"charge_point_id" gorm:"index"`
	MessageType   string    `json:"message_type" bson:"message_type"`
	Action        string    `json:"action" bson:"action"`
	Payload       string    `json:"payload" bson:"payload"`
	Direction     Direction `json:"direction" bson:"direction"`
	Time          time.Time `json:"time" bson:"time"`
}
