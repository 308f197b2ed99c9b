package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/amirulhamizan12/agent-ui/domain/entities"
	"github.com/amirulhamizan12/agent-ui/domain/repositories"
)

const conversationsCollection = "conversations"

// conversationDocument is the stored form of a Conversation. The entity id
// is the hex form of the document's ObjectID.
type conversationDocument struct {
	ObjectID              primitive.ObjectID `bson:"_id,omitempty"`
	entities.Conversation `bson:",inline"`
}

func (d conversationDocument) toEntity() *entities.Conversation {
	c := d.Conversation
	c.ID = d.ObjectID.Hex()
	if c.Messages == nil {
		c.Messages = make([]entities.Message, 0)
	}
	return &c
}

// ConversationRepository implements repositories.ConversationRepository using MongoDB
type ConversationRepository struct {
	collection *mongo.Collection
	logger     *zap.Logger
}

var _ repositories.ConversationRepository = (*ConversationRepository)(nil)

// NewConversationRepository creates a repository over the conversations
// collection. Indexes are created in the background.
func NewConversationRepository(db *mongo.Database, logger *zap.Logger) *ConversationRepository {
	collection := db.Collection(conversationsCollection)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		_, err := collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
			{Keys: bson.D{{Key: "last_active_at", Value: -1}}},
			// expiry sweep
			{Keys: bson.D{
				{Key: "status", Value: 1},
				{Key: "expires_at", Value: 1},
			}},
		})
		if err != nil {
			logger.Error("Failed to create conversation indexes", zap.Error(err))
		} else {
			logger.Info("Conversation indexes created successfully")
		}
	}()

	return &ConversationRepository{
		collection: collection,
		logger:     logger,
	}
}

// Create implements repositories.ConversationRepository
func (r *ConversationRepository) Create(ctx context.Context, conversation *entities.Conversation) error {
	if conversation == nil {
		return errors.New("conversation cannot be nil")
	}
	if err := conversation.Validate(); err != nil {
		return err
	}
	if conversation.CreatedAt.IsZero() {
		conversation.CreatedAt = time.Now()
	}

	doc := conversationDocument{Conversation: *conversation}
	if conversation.ID != "" {
		oid, err := primitive.ObjectIDFromHex(conversation.ID)
		if err != nil {
			return fmt.Errorf("invalid conversation ID format: %w", err)
		}
		doc.ObjectID = oid
	}

	result, err := r.collection.InsertOne(ctx, doc)
	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		conversation.ID = oid.Hex()
	}
	r.logger.Debug("Conversation created", zap.String("conversationID", conversation.ID))
	return nil
}

// GetByID implements repositories.ConversationRepository
func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*entities.Conversation, error) {
	if id == "" {
		return nil, errors.New("conversation ID cannot be empty")
	}
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		// Not a stored id, so it cannot match
		return nil, repositories.ErrConversationNotFound
	}

	var doc conversationDocument
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repositories.ErrConversationNotFound
		}
		return nil, fmt.Errorf("failed to get conversation %s: %w", id, err)
	}
	return doc.toEntity(), nil
}

// GetLatest implements repositories.ConversationRepository
func (r *ConversationRepository) GetLatest(ctx context.Context) (*entities.Conversation, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "last_active_at", Value: -1}})

	var doc conversationDocument
	err := r.collection.FindOne(ctx, bson.M{}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest conversation: %w", err)
	}
	return doc.toEntity(), nil
}

// Update implements repositories.ConversationRepository
func (r *ConversationRepository) Update(ctx context.Context, conversation *entities.Conversation) error {
	if conversation == nil {
		return errors.New("conversation cannot be nil")
	}
	if conversation.ID == "" {
		return errors.New("conversation ID cannot be empty")
	}
	if err := conversation.Validate(); err != nil {
		return err
	}

	objectID, err := primitive.ObjectIDFromHex(conversation.ID)
	if err != nil {
		return fmt.Errorf("invalid conversation ID format: %w", err)
	}

	update := bson.M{
		"$set": bson.M{
			"last_active_at":        conversation.LastActiveAt,
			"last_message_at":       conversation.LastMessageAt,
			"expires_at":            conversation.ExpiresAt,
			"status":                conversation.Status,
			"messages":              conversation.Messages,
			"automation_session_id": conversation.AutomationSessionID,
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objectID}, update)
	if err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	if result.MatchedCount == 0 {
		return repositories.ErrConversationNotFound
	}
	return nil
}

// ExpireConversations implements repositories.ConversationRepository
func (r *ConversationRepository) ExpireConversations(ctx context.Context) (int64, error) {
	filter := bson.M{
		"status":     entities.ConversationStatusActive,
		"expires_at": bson.M{"$lt": time.Now()},
	}
	update := bson.M{
		"$set": bson.M{"status": entities.ConversationStatusExpired},
	}

	result, err := r.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to expire conversations: %w", err)
	}
	if result.ModifiedCount > 0 {
		r.logger.Info("Expired conversations", zap.Int64("count", result.ModifiedCount))
	}
	return result.ModifiedCount, nil
}
