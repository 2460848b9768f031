package internal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"evcs/internal/config"
	"evcs/models"
	"evcs/utility"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collectionMessageLog   = "message_log"
	collectionUsers        = "users"
	collectionChargers     = "chargers"
	collectionTransactions = "transactions"
)

type MongoDB struct {
	ctx           context.Context
	clientOptions *options.ClientOptions
	database      string
}

func NewMongoClient(conf *config.Config) (*MongoDB, error) {
	connectionUri := fmt.Sprintf("mongodb://%s:%s", conf.Mongo.Host, conf.Mongo.Port)
	clientOptions := options.Client().ApplyURI(connectionUri)
	if conf.Mongo.User != "" {
		clientOptions.SetAuth(options.Credential{
			Username:   conf.Mongo.User,
			Password:   conf.Mongo.Password,
			AuthSource: conf.Mongo.Database,
		})
	}
	client := &MongoDB{
		ctx:           context.Background(),
		clientOptions: clientOptions,
		database:      conf.Mongo.Database,
	}
	return client, nil
}

func (m *MongoDB) connect() (*mongo.Client, error) {
	connection, err := mongo.Connect(m.ctx, m.clientOptions)
	if err != nil {
		return nil, err
	}
	return connection, nil
}

func (m *MongoDB) disconnect(connection *mongo.Client) {
	err := connection.Disconnect(m.ctx)
	if err != nil {
		log.Println("mongodb disconnect error;", err)
	}
}

// Ping checks that the server is reachable
func (m *MongoDB) Ping() error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)
	return connection.Ping(m.ctx, nil)
}

func notFound(err error, what, id string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return err
}

func (m *MongoDB) UpsertChargerByChargePointId(chargePointId string, info *models.ChargerInfo) (*models.Charger, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	filter := bson.D{{Key: "charge_point_id", Value: chargePointId}}
	update := bson.M{
		"$set": bson.M{
			"vendor":           info.Vendor,
			"model":            info.Model,
			"serial_number":    info.SerialNumber,
			"firmware_version": info.FirmwareVersion,
			"status":           info.Status,
			"updated_at":       time.Now().UTC(),
		},
		"$setOnInsert": bson.M{"id": utility.NewUUID(), "charge_point_id": chargePointId},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	collection := connection.Database(m.database).Collection(collectionChargers)
	var charger models.Charger
	if err = collection.FindOneAndUpdate(m.ctx, filter, update, opts).Decode(&charger); err != nil {
		return nil, err
	}
	return &charger, nil
}

func (m *MongoDB) UpdateChargerStatus(chargePointId string, status models.ChargerStatus) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	filter := bson.D{{Key: "charge_point_id", Value: chargePointId}}
	update := bson.M{"$set": bson.M{"status": status, "updated_at": time.Now().UTC()}}
	collection := connection.Database(m.database).Collection(collectionChargers)
	result, err := collection.UpdateOne(m.ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("charger %s: %w", chargePointId, ErrNotFound)
	}
	return nil
}

func (m *MongoDB) GetCharger(id string) (*models.Charger, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	filter := bson.M{"$or": bson.A{bson.M{"id": id}, bson.M{"charge_point_id": id}}}
	collection := connection.Database(m.database).Collection(collectionChargers)
	var charger models.Charger
	if err = collection.FindOne(m.ctx, filter).Decode(&charger); err != nil {
		return nil, notFound(err, "charger", id)
	}
	return &charger, nil
}

func (m *MongoDB) CreateTransaction(transaction *models.Transaction) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionTransactions)
	_, err = collection.InsertOne(m.ctx, transaction)
	return err
}

func (m *MongoDB) UpdateTransaction(transactionId string, update *models.TransactionUpdate) (bool, error) {
	connection, err := m.connect()
	if err != nil {
		return false, err
	}
	defer m.disconnect(connection)

	filter := bson.D{{Key: "transaction_id", Value: transactionId}, {Key: "status", Value: models.TransactionStatusActive}}
	set := bson.M{"$set": bson.M{
		"meter_stop":      update.MeterStop,
		"energy_consumed": update.EnergyConsumed,
		"status":          update.Status,
		"time_stop":       update.TimeStop,
		"reason":          update.Reason,
	}}
	collection := connection.Database(m.database).Collection(collectionTransactions)
	result, err := collection.UpdateOne(m.ctx, filter, set)
	if err != nil {
		return false, err
	}
	if result.MatchedCount > 0 {
		return true, nil
	}
	count, err := collection.CountDocuments(m.ctx, bson.D{{Key: "transaction_id", Value: transactionId}})
	if err != nil {
		return false, err
	}
	if count == 0 {
		return false, fmt.Errorf("transaction %s: %w", transactionId, ErrNotFound)
	}
	return false, nil
}

func (m *MongoDB) UpdateTransactionEnergy(transactionId string, energyConsumed float64) (bool, error) {
	connection, err := m.connect()
	if err != nil {
		return false, err
	}
	defer m.disconnect(connection)

	filter := bson.D{{Key: "transaction_id", Value: transactionId}, {Key: "status", Value: models.TransactionStatusActive}}
	update := bson.M{"$set": bson.M{"energy_consumed": energyConsumed}}
	collection := connection.Database(m.database).Collection(collectionTransactions)
	result, err := collection.UpdateOne(m.ctx, filter, update)
	if err != nil {
		return false, err
	}
	return result.MatchedCount > 0, nil
}

func (m *MongoDB) GetTransaction(transactionId string) (*models.Transaction, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	filter := bson.D{{Key: "transaction_id", Value: transactionId}}
	collection := connection.Database(m.database).Collection(collectionTransactions)
	var transaction models.Transaction
	if err = collection.FindOne(m.ctx, filter).Decode(&transaction); err != nil {
		return nil, notFound(err, "transaction", transactionId)
	}
	return &transaction, nil
}

func (m *MongoDB) AppendMessageLog(entry *models.MessageLog) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionMessageLog)
	_, err = collection.InsertOne(m.ctx, entry)
	return err
}

func (m *MongoDB) FindUserByIdOrEmail(idTag string) (*models.User, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	filter := bson.M{"$or": bson.A{bson.M{"id": idTag}, bson.M{"email": idTag}}}
	collection := connection.Database(m.database).Collection(collectionUsers)
	var user models.User
	if err = collection.FindOne(m.ctx, filter).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// AddUser inserts a user record
func (m *MongoDB) AddUser(user *models.User) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionUsers)
	_, err = collection.InsertOne(m.ctx, user)
	return err
}
