package models

import "time"

type ChargerStatus string

const (
	ChargerStatusAvailable   ChargerStatus = "AVAILABLE"
	ChargerStatusOccupied    ChargerStatus = "OCCUPIED"
	ChargerStatusOffline     ChargerStatus = "OFFLINE"
	ChargerStatusMaintenance ChargerStatus = "MAINTENANCE"
)

// Charger is the platform record of a charge point, keyed by its own id and
// reachable by the id the charge point uses on the wire
type Charger struct {
	Id              string        `json:"id" bson:"id" gorm:"primaryKey"`
	ChargePointId   string        `json:"charge_point_id" bson:"charge_point_id" gorm:"uniqueIndex"`
	Vendor          string        `json:"vendor" bson:"vendor"`
	Model           string        `json:"model" bson:"model"`
	SerialNumber    string        `json:"serial_number" bson:"serial_number"`
	FirmwareVersion string        `json:"firmware_version" bson:"firmware_version"`
	Status          ChargerStatus `json:"status" bson:"status"`
	UpdatedAt       time.Time     `json:"updated_at" bson:"updated_at"`
}

// ChargerInfo carries the identity fields reported in BootNotification
type ChargerInfo struct {
	Vendor          string
	Model           string
	SerialNumber    string
	FirmwareVersion string
	Status          ChargerStatus
}
