package accounting

import (
	"evcs/models"
	"evcs/ocpp/core"
)

// MapStatus projects a connector status reported by the charge point onto the charger status
func MapStatus(status core.ChargePointStatus) models.ChargerStatus {
	switch status {
	case core.ChargePointStatusAvailable:
		return models.ChargerStatusAvailable
	case core.ChargePointStatusCharging,
		core.ChargePointStatusPreparing,
		core.ChargePointStatusFinishing,
		core.ChargePointStatusSuspendedEV,
		core.ChargePointStatusReserved:
		return models.ChargerStatusOccupied
	case core.ChargePointStatusSuspendedEVSE, core.ChargePointStatusUnavailable:
		return models.ChargerStatusOffline
	case core.ChargePointStatusFaulted:
		return models.ChargerStatusMaintenance
	default:
		return models.ChargerStatusOffline
	}
}
