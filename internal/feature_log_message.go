package internal

import (
	"time"

	"evcs/models"
)

type FeatureLogMessage struct {
	Time          time.Time
	Feature       string
	ChargePointId string
	Text          string
	Importance    Importance
	Err           error
	// Record is persisted through the database when set
	Record *models.MessageLog
}
