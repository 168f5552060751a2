package internal

import (
	"context"
	"evsim/internal/config"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collectionLog    = "sys_log"
	collectionEvents = "events"
	writeTimeout     = 5 * time.Second
)

// MongoDB stores log messages and connector events; each call opens its own connection.
type MongoDB struct {
	ctx           context.Context
	clientOptions *options.ClientOptions
	database      string
}

func NewMongoClient(conf *config.Config) (*MongoDB, error) {
	if !conf.Mongo.Enabled {
		return nil, nil
	}
	connectionUri := fmt.Sprintf("mongodb://%s:%s", conf.Mongo.Host, conf.Mongo.Port)
	clientOptions := options.Client().ApplyURI(connectionUri).SetConnectTimeout(writeTimeout)
	if conf.Mongo.User != "" {
		clientOptions.SetAuth(options.Credential{
			Username:   conf.Mongo.User,
			Password:   conf.Mongo.Password,
			AuthSource: conf.Mongo.Database,
		})
	}
	if err := clientOptions.Validate(); err != nil {
		return nil, fmt.Errorf("mongodb options: %w", err)
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

func (m *MongoDB) Write(table string, data Data) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)
	ctx, cancel := context.WithTimeout(m.ctx, writeTimeout)
	defer cancel()
	collection := connection.Database(m.database).Collection(table)
	_, err = collection.InsertOne(ctx, data)
	return err
}

func (m *MongoDB) WriteLogMessage(data Data) error {
	return m.Write(collectionLog, data)
}

// ReadLog returns up to limit most recent log messages.
func (m *MongoDB) ReadLog(limit int64) ([]FeatureLogMessage, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	var logMessages []FeatureLogMessage
	collection := connection.Database(m.database).Collection(collectionLog)
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(limit)
	cursor, err := collection.Find(m.ctx, bson.D{}, opts)
	if err != nil {
		return nil, err
	}
	if err = cursor.All(m.ctx, &logMessages); err != nil {
		return nil, err
	}
	return logMessages, nil
}

func (m *MongoDB) OnStatusNotification(event *EventMessage) {
	m.writeEvent(event)
}

func (m *MongoDB) OnTransactionStart(event *EventMessage) {
	m.writeEvent(event)
}

func (m *MongoDB) OnTransactionStop(event *EventMessage) {
	m.writeEvent(event)
}

func (m *MongoDB) writeEvent(event *EventMessage) {
	if err := m.Write(collectionEvents, event); err != nil {
		log.Println("mongodb write event error;", err)
	}
}
