package internal

import (
	"context"
	"errors"
	"evsim/internal/config"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collectionLog           = "sys_log"
	collectionConfiguration = "ocpp_config"
)

type MongoDB struct {
	ctx           context.Context
	clientOptions *options.ClientOptions
	database      string
	stationId     string
}

// configurationKey is one stored OCPP configuration value of a station
type configurationKey struct {
	StationId string    `bson:"station_id"`
	Key       string    `bson:"key"`
	Value     string    `bson:"value"`
	Updated   time.Time `bson:"updated"`
}

func NewMongoClient(conf *config.Config) (*MongoDB, error) {
	if !conf.Mongo.Enabled {
		return nil, nil
	}
	connectionUri := fmt.Sprintf("mongodb://%s:%s", conf.Mongo.Host, conf.Mongo.Port)
	clientOptions := options.Client().ApplyURI(connectionUri).SetConnectTimeout(5 * time.Second)
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
		stationId:     conf.Station.Id,
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

func (m *MongoDB) WriteLogMessage(data Data) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)
	collection := connection.Database(m.database).Collection(collectionLog)
	_, err = collection.InsertOne(m.ctx, data)
	if err != nil {
		return err
	}
	return nil
}

func (m *MongoDB) ReadLog() ([]FeatureLogMessage, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	var logMessages []FeatureLogMessage
	collection := connection.Database(m.database).Collection(collectionLog)
	filter := bson.D{{Key: "station_id", Value: m.stationId}}
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(1000)
	cursor, err := collection.Find(m.ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	if err = cursor.All(m.ctx, &logMessages); err != nil {
		return nil, err
	}
	return logMessages, nil
}

// GetConfigurationValue reads a stored configuration key; false when it was never set
func (m *MongoDB) GetConfigurationValue(key string) (string, bool, error) {
	connection, err := m.connect()
	if err != nil {
		return "", false, err
	}
	defer m.disconnect(connection)
	collection := connection.Database(m.database).Collection(collectionConfiguration)
	filter := bson.D{{Key: "station_id", Value: m.stationId}, {Key: "key", Value: key}}
	var stored configurationKey
	err = collection.FindOne(m.ctx, filter).Decode(&stored)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return stored.Value, true, nil
}

func (m *MongoDB) SetConfigurationValue(key, value string) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)
	collection := connection.Database(m.database).Collection(collectionConfiguration)
	filter := bson.D{{Key: "station_id", Value: m.stationId}, {Key: "key", Value: key}}
	set := bson.M{"$set": &configurationKey{
		StationId: m.stationId,
		Key:       key,
		Value:     value,
		Updated:   time.Now().UTC(),
	}}
	_, err = collection.UpdateOne(m.ctx, filter, set, options.Update().SetUpsert(true))
	return err
}

// Store adapts the database to the key-value store interface of the configuration registry
func (m *MongoDB) Store() *MongoStore {
	return &MongoStore{db: m}
}

type MongoStore struct {
	db *MongoDB
}

func (s *MongoStore) Get(key string) (string, bool, error) {
	return s.db.GetConfigurationValue(key)
}

func (s *MongoStore) Set(key, value string) error {
	return s.db.SetConfigurationValue(key, value)
}
