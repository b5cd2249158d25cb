package database

import "go.mongodb.org/mongo-driver/mongo"

// Table is a mongo-backed collection with a fixed name.
type Table interface {
	GetTableName() string
	Collection() *mongo.Collection
}
