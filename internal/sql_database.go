package internal

import (
	"errors"
	"fmt"
	"time"

	"evcs/internal/config"
	"evcs/models"
	"evcs/utility"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// SqlDatabase is the relational repository, backed by postgres or sqlite through gorm
type SqlDatabase struct {
	db *gorm.DB
}

// NewSqlDatabase opens the configured driver and migrates the schema
func NewSqlDatabase(conf *config.Config) (*SqlDatabase, error) {
	var dialector gorm.Dialector
	switch conf.Database.Driver {
	case "postgres":
		dialector = postgres.Open(conf.Sql.Dsn)
	case "sqlite":
		dialector = sqlite.Open(conf.Sql.Dsn)
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", conf.Database.Driver)
	}
	logLevel := logger.Warn
	if conf.IsDebug {
		logLevel = logger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logLevel)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return NewSqlDatabaseFromGorm(db)
}

func NewSqlDatabaseFromGorm(db *gorm.DB) (*SqlDatabase, error) {
	if err := db.AutoMigrate(
		&models.Charger{},
		&models.Transaction{},
		&models.User{},
		&models.MessageLog{},
	); err != nil {
		return nil, fmt.Errorf("automigrate failed: %w", err)
	}
	return &SqlDatabase{db: db}, nil
}

func recordNotFound(err error, what, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return err
}

func (s *SqlDatabase) UpsertChargerByChargePointId(chargePointId string, info *models.ChargerInfo) (*models.Charger, error) {
	charger := models.Charger{
		Id:              utility.NewUUID(),
		ChargePointId:   chargePointId,
		Vendor:          info.Vendor,
		Model:           info.Model,
		SerialNumber:    info.SerialNumber,
		FirmwareVersion: info.FirmwareVersion,
		Status:          info.Status,
		UpdatedAt:       time.Now().UTC(),
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "charge_point_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"vendor", "model", "serial_number", "firmware_version", "status", "updated_at"}),
	}).Create(&charger).Error
	if err != nil {
		return nil, fmt.Errorf("upsert charger %s: %w", chargePointId, err)
	}
	var stored models.Charger
	if err = s.db.Where("charge_point_id = ?", chargePointId).First(&stored).Error; err != nil {
		return nil, recordNotFound(err, "charger", chargePointId)
	}
	return &stored, nil
}

func (s *SqlDatabase) UpdateChargerStatus(chargePointId string, status models.ChargerStatus) error {
	result := s.db.Model(&models.Charger{}).
		Where("charge_point_id = ?", chargePointId).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("charger %s: %w", chargePointId, ErrNotFound)
	}
	return nil
}

func (s *SqlDatabase) GetCharger(id string) (*models.Charger, error) {
	var charger models.Charger
	err := s.db.Where("id = ? OR charge_point_id = ?", id, id).First(&charger).Error
	if err != nil {
		return nil, recordNotFound(err, "charger", id)
	}
	return &charger, nil
}

func (s *SqlDatabase) CreateTransaction(transaction *models.Transaction) error {
	return s.db.Create(transaction).Error
}

func (s *SqlDatabase) UpdateTransaction(transactionId string, update *models.TransactionUpdate) (bool, error) {
	result := s.db.Model(&models.Transaction{}).
		Where("transaction_id = ? AND status = ?", transactionId, models.TransactionStatusActive).
		Updates(map[string]interface{}{
			"meter_stop":      update.MeterStop,
			"energy_consumed": update.EnergyConsumed,
			"status":          update.Status,
			"time_stop":       update.TimeStop,
			"reason":          update.Reason,
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected > 0 {
		return true, nil
	}
	if _, err := s.GetTransaction(transactionId); err != nil {
		return false, err
	}
	return false, nil
}

func (s *SqlDatabase) UpdateTransactionEnergy(transactionId string, energyConsumed float64) (bool, error) {
	result := s.db.Model(&models.Transaction{}).
		Where("transaction_id = ? AND status = ?", transactionId, models.TransactionStatusActive).
		Update("energy_consumed", energyConsumed)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *SqlDatabase) GetTransaction(transactionId string) (*models.Transaction, error) {
	var transaction models.Transaction
	if err := s.db.Where("transaction_id = ?", transactionId).First(&transaction).Error; err != nil {
		return nil, recordNotFound(err, "transaction", transactionId)
	}
	return &transaction, nil
}

func (s *SqlDatabase) AppendMessageLog(entry *models.MessageLog) error {
	return s.db.Create(entry).Error
}

func (s *SqlDatabase) FindUserByIdOrEmail(idTag string) (*models.User, error) {
	var user models.User
	err := s.db.Where("id = ? OR email = ?", idTag, idTag).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// AddUser inserts a user record
func (s *SqlDatabase) AddUser(user *models.User) error {
	return s.db.Create(user).Error
}
