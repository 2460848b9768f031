package internal

import "time"

type EventHandler interface {
	OnStatusNotification(event *EventMessage)
	OnTransactionStart(event *EventMessage)
	OnTransactionStop(event *EventMessage)
	OnAuthorize(event *EventMessage)
}

type EventMessage struct {
	Type           string    `json:"type"`
	ChargePointId  string    `json:"charge_point_id"`
	ConnectorId    int       `json:"connector_id"`
	Time           time.Time `json:"time"`
	IdTag          string    `json:"id_tag"`
	TransactionId  string    `json:"transaction_id"`
	Status         string    `json:"status"`
	Info           string    `json:"info"`
	EnergyConsumed float64   `json:"energy_consumed"`
}
