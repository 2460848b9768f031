package models

import "time"

type TransactionStatus string

const (
	TransactionStatusActive    TransactionStatus = "ACTIVE"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	// TransactionStatusStopped is accepted by storage but never assigned by the server
	TransactionStatusStopped TransactionStatus = "STOPPED"
)

type Transaction struct {
	TransactionId  string            `json:"transaction_id" bson:"transaction_id" gorm:"primaryKey"`
	ChargePointId  string            `json:"charge_point_id" bson:"charge_point_id" gorm:"index"`
	ConnectorId    int               `json:"connector_id" bson:"connector_id"`
	IdTag          string            `json:"id_tag" bson:"id_tag"`
	ReservationId  *int              `json:"reservation_id,omitempty" bson:"reservation_id"`
	MeterStart     int               `json:"meter_start" bson:"meter_start"`
	MeterStop      *int              `json:"meter_stop,omitempty" bson:"meter_stop"`
	EnergyConsumed *float64          `json:"energy_consumed,omitempty" bson:"energy_consumed"`
	Status         TransactionStatus `json:"status" bson:"status"`
	TimeStart      time.Time         `json:"time_start" bson:"time_start"`
	TimeStop       *time.Time        `json:"time_stop,omitempty" bson:"time_stop"`
	Reason         string            `json:"reason,omitempty" bson:"reason"`
}

func (t *Transaction) IsActive() bool {
	return t.Status == TransactionStatusActive
}

// TransactionUpdate lists the fields written when a transaction is closed
type TransactionUpdate struct {
	MeterStop      int
	EnergyConsumed float64
	Status         TransactionStatus
	TimeStop       time.Time
	Reason         string
}
