package repositories

import (
	"context"
	"errors"

	"github.com/amirulhamizan12/agent-ui/domain/entities"
)

// ErrConversationNotFound is returned when no conversation matches the lookup
var ErrConversationNotFound = errors.New("conversation not found")

// ConversationRepository defines data access methods for conversation transcripts
type ConversationRepository interface {
	Create(ctx context.Context, conversation *entities.Conversation) error
	GetByID(ctx context.Context, id string) (*entities.Conversation, error)
	// GetLatest returns the most recently active conversation, or nil when none exists.
	GetLatest(ctx context.Context) (*entities.Conversation, error)
	Update(ctx context.Context, conversation *entities.Conversation) error
	// ExpireConversations marks every active conversation past its expiry as expired.
	ExpireConversations(ctx context.Context) (int64, error)
}
