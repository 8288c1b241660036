package chat

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/zhouzirui/rag-chatbot/backend/internal/model/chat"
)

const (
	historyCollection = "chat_history"
	mongoTimeout      = 30 * time.Second
)

type messageDocument struct {
	ObjectID  primitive.ObjectID `bson:"_id,omitempty"`
	MessageID string             `bson:"message_id"`
	SessionID string             `bson:"session_id"`
	Role      string             `bson:"role"`
	Content   string             `bson:"content"`
	Timestamp time.Time          `bson:"timestamp"`
}

// MongoStore implements Store on a MongoDB collection.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoStore connects to uri and verifies the server is reachable.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(mongoTimeout).
		SetConnectTimeout(mongoTimeout).
		SetSocketTimeout(mongoTimeout).
		SetRetryWrites(true).
		SetRetryReads(true)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	collection := client.Database(database).Collection(historyCollection)
	_, err = collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "timestamp", Value: -1}},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create history index: %w", err)
	}

	return &MongoStore{client: client, collection: collection}, nil
}

// Append inserts a message document.
func (s *MongoStore) Append(ctx context.Context, sessionID string, role chat.Role, text string) (chat.Message, error) {
	message, err := newMessage(sessionID, role, text)
	if err != nil {
		return chat.Message{}, err
	}
	_, err = s.collection.InsertOne(ctx, messageDocument{
		MessageID: message.ID,
		SessionID: message.SessionID,
		Role:      string(message.Role),
		Content:   message.Content,
		Timestamp: message.CreatedAt,
	})
	if err != nil {
		return chat.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return message, nil
}

// History fetches the newest documents and returns them oldest first.
// ObjectIDs break ties between messages stored in the same millisecond.
func (s *MongoStore) History(ctx context.Context, sessionID string, limit int) ([]chat.Message, error) {
	if sessionID == "" {
		return nil, ErrSessionRequired
	}

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.collection.Find(ctx, bson.M{"session_id": sessionID}, opts)
	if err != nil {
		return nil, err
	}
	var docs []messageDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	messages := make([]chat.Message, 0, len(docs))
	for _, doc := range docs {
		messages = append(messages, chat.Message{
			ID:        doc.MessageID,
			SessionID: doc.SessionID,
			Role:      chat.Role(doc.Role),
			Content:   doc.Content,
			CreatedAt: doc.Timestamp.UTC(),
		})
	}
	reverse(messages)
	return messages, nil
}

// Clear deletes all documents of the session.
func (s *MongoStore) Clear(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrSessionRequired
	}
	_, err := s.collection.DeleteMany(ctx, bson.M{"session_id": sessionID})
	return err
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
