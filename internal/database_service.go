package internal

import (
	"errors"

	"evcs/models"
)

var ErrNotFound = errors.New("not found")

// Database is the persistence collaborator of the central system
type Database interface {
	UpsertChargerByChargePointId(chargePointId string, info *models.ChargerInfo) (*models.Charger, error)
	// UpdateChargerStatus returns ErrNotFound when no charger carries the charge point id
	UpdateChargerStatus(chargePointId string, status models.ChargerStatus) error
	// GetCharger looks the charger up by its platform id, then by its charge point id
	GetCharger(id string) (*models.Charger, error)
	CreateTransaction(transaction *models.Transaction) error
	// UpdateTransaction closes an ACTIVE transaction; false without error when it is no longer ACTIVE
	UpdateTransaction(transactionId string, update *models.TransactionUpdate) (bool, error)
	// UpdateTransactionEnergy writes only while the transaction is ACTIVE and reports whether it did
	UpdateTransactionEnergy(transactionId string, energyConsumed float64) (bool, error)
	GetTransaction(transactionId string) (*models.Transaction, error)
	AppendMessageLog(entry *models.MessageLog) error
	// FindUserByIdOrEmail returns nil without error when no user matches
	FindUserByIdOrEmail(idTag string) (*models.User, error)
}
