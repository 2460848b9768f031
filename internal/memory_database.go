package internal

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"evcs/models"
	"evcs/utility"
)

// MemoryDatabase keeps everything in process memory; used when no database driver is configured and in tests
type MemoryDatabase struct {
	mutex        sync.RWMutex
	chargers     map[string]*models.Charger
	transactions map[string]*models.Transaction
	users        map[string]*models.User
	messages     []models.MessageLog
}

func NewMemoryDatabase() *MemoryDatabase {
	return &MemoryDatabase{
		chargers:     make(map[string]*models.Charger),
		transactions: make(map[string]*models.Transaction),
		users:        make(map[string]*models.User),
	}
}

func (m *MemoryDatabase) chargerByChargePointId(chargePointId string) *models.Charger {
	for _, charger := range m.chargers {
		if charger.ChargePointId == chargePointId {
			return charger
		}
	}
	return nil
}

func (m *MemoryDatabase) UpsertChargerByChargePointId(chargePointId string, info *models.ChargerInfo) (*models.Charger, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	charger := m.chargerByChargePointId(chargePointId)
	if charger == nil {
		charger = &models.Charger{Id: utility.NewUUID(), ChargePointId: chargePointId}
		m.chargers[charger.Id] = charger
	}
	charger.Vendor = info.Vendor
	charger.Model = info.Model
	charger.SerialNumber = info.SerialNumber
	charger.FirmwareVersion = info.FirmwareVersion
	charger.Status = info.Status
	charger.UpdatedAt = time.Now().UTC()
	result := *charger
	return &result, nil
}

func (m *MemoryDatabase) UpdateChargerStatus(chargePointId string, status models.ChargerStatus) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	charger := m.chargerByChargePointId(chargePointId)
	if charger == nil {
		return fmt.Errorf("charger %s: %w", chargePointId, ErrNotFound)
	}
	charger.Status = status
	charger.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryDatabase) GetCharger(id string) (*models.Charger, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	charger, ok := m.chargers[id]
	if !ok {
		charger = m.chargerByChargePointId(id)
	}
	if charger == nil {
		return nil, fmt.Errorf("charger %s: %w", id, ErrNotFound)
	}
	result := *charger
	return &result, nil
}

func (m *MemoryDatabase) CreateTransaction(transaction *models.Transaction) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, ok := m.transactions[transaction.TransactionId]; ok {
		return fmt.Errorf("transaction %s already exists", transaction.TransactionId)
	}
	stored := *transaction
	m.transactions[transaction.TransactionId] = &stored
	return nil
}

func (m *MemoryDatabase) UpdateTransaction(transactionId string, update *models.TransactionUpdate) (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	transaction, ok := m.transactions[transactionId]
	if !ok {
		return false, fmt.Errorf("transaction %s: %w", transactionId, ErrNotFound)
	}
	if !transaction.IsActive() {
		return false, nil
	}
	meterStop := update.MeterStop
	energy := update.EnergyConsumed
	timeStop := update.TimeStop
	transaction.MeterStop = &meterStop
	transaction.EnergyConsumed = &energy
	transaction.Status = update.Status
	transaction.TimeStop = &timeStop
	transaction.Reason = update.Reason
	return true, nil
}

func (m *MemoryDatabase) UpdateTransactionEnergy(transactionId string, energyConsumed float64) (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	transaction, ok := m.transactions[transactionId]
	if !ok || !transaction.IsActive() {
		return false, nil
	}
	transaction.EnergyConsumed = &energyConsumed
	return true, nil
}

func (m *MemoryDatabase) GetTransaction(transactionId string) (*models.Transaction, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	transaction, ok := m.transactions[transactionId]
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", transactionId, ErrNotFound)
	}
	result := *transaction
	return &result, nil
}

func (m *MemoryDatabase) AppendMessageLog(entry *models.MessageLog) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.messages = append(m.messages, *entry)
	return nil
}

func (m *MemoryDatabase) FindUserByIdOrEmail(idTag string) (*models.User, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if user, ok := m.users[idTag]; ok {
		result := *user
		return &result, nil
	}
	for _, user := range m.users {
		if strings.EqualFold(user.Email, idTag) {
			result := *user
			return &result, nil
		}
	}
	return nil, nil
}

// AddUser registers a user record
func (m *MemoryDatabase) AddUser(user *models.User) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	stored := *user
	m.users[user.Id] = &stored
}

// MessageLogs returns a copy of the stored message log entries
func (m *MemoryDatabase) MessageLogs() []models.MessageLog {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	result := make([]models.MessageLog, len(m.messages))
	copy(result, m.messages)
	return result
}
