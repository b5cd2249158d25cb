package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"vhrealtime/data/database"
	"vhrealtime/tools/errs"
	"vhrealtime/tools/ids"
)

const chatMessagesCollection = "chat_messages"

type mgoMessage struct {
	ID            string    `bson:"_id"`
	AppointmentID int64     `bson:"appointment_id"`
	SenderID      int64     `bson:"sender_id"`
	SenderName    string    `bson:"sender_name"`
	SenderRole    string    `bson:"sender_role"`
	Body          string    `bson:"message"`
	Timestamp     time.Time `bson:"timestamp"`
	Seq           int64     `bson:"seq"` // insertion tiebreak for equal timestamps
}

// MongoMessageStore keeps a denormalized copy of each chat line.
type MongoMessageStore struct {
	db    *mongo.Database
	clock func() time.Time
	seq   func() int64 // strictly increasing within the process
}

var _ database.Table = (*MongoMessageStore)(nil)

func NewMongoMessageStore(db *mongo.Database) *MongoMessageStore {
	return &MongoMessageStore{db: db, clock: time.Now, seq: ids.Generate}
}

func (s *MongoMessageStore) GetTableName() string { return chatMessagesCollection }

func (s *MongoMessageStore) Collection() *mongo.Collection {
	return s.db.Collection(s.GetTableName())
}

// EnsureIndexes creates the history index. Safe to call on every start.
func (s *MongoMessageStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.Collection().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "appointment_id", Value: 1}, {Key: "timestamp", Value: 1}, {Key: "seq", Value: 1}},
	})
	return errs.WrapMsg(err, "create chat_messages index")
}

func (s *MongoMessageStore) Persist(ctx context.Context, msg NewMessage) (Persisted, error) {
	doc := s.newDoc(msg)
	if _, err := s.Collection().InsertOne(ctx, doc); err != nil {
		return Persisted{}, errs.WrapMsg(err, "insert chat message")
	}
	return Persisted{ID: doc.ID, Timestamp: doc.Timestamp}, nil
}

func (s *MongoMessageStore) newDoc(msg NewMessage) mgoMessage {
	// mongo keeps millisecond precision, truncate so the receipt matches what is read back
	now := s.clock().UTC().Truncate(time.Millisecond)
	return mgoMessage{
		ID:            uuid.NewString(),
		AppointmentID: msg.AppointmentID,
		SenderID:      msg.SenderID,
		SenderName:    msg.SenderName,
		SenderRole:    msg.SenderRole,
		Body:          msg.Body,
		Timestamp:     now,
		Seq:           s.seq(),
	}
}

func (s *MongoMessageStore) History(ctx context.Context, appointmentID int64) ([]ChatMessage, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "seq", Value: 1}})
	cur, err := s.Collection().Find(ctx, bson.M{"appointment_id": appointmentID}, opts)
	if err != nil {
		return nil, errs.WrapMsg(err, "find chat history")
	}
	defer cur.Close(ctx)

	out := make([]ChatMessage, 0)
	for cur.Next(ctx) {
		var d mgoMessage
		if err := cur.Decode(&d); err != nil {
			return nil, errs.WrapMsg(err, "decode chat message")
		}
		out = append(out, ChatMessage{
			ID:            d.ID,
			AppointmentID: d.AppointmentID,
			SenderID:      d.SenderID,
			SenderName:    d.SenderName,
			SenderRole:    d.SenderRole,
			Body:          d.Body,
			Timestamp:     d.Timestamp,
		})
	}
	return out, errs.Wrap(cur.Err())
}
