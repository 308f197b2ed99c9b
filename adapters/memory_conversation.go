package adapters

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/amirulhamizan12/agent-ui/domain/entities"
	"github.com/amirulhamizan12/agent-ui/domain/repositories"
)

// MemoryConversationRepository is an in-memory ConversationRepository.
// It is used when no MongoDB URI is configured; transcripts do not survive
// a restart.
type MemoryConversationRepository struct {
	mu            sync.RWMutex
	conversations map[string]*entities.Conversation
}

var _ repositories.ConversationRepository = (*MemoryConversationRepository)(nil)

func NewMemoryConversationRepository() *MemoryConversationRepository {
	return &MemoryConversationRepository{
		conversations: make(map[string]*entities.Conversation),
	}
}

// Create implements ConversationRepository interface
func (m *MemoryConversationRepository) Create(ctx context.Context, conversation *entities.Conversation) error {
	if conversation == nil {
		return errors.New("conversation cannot be nil")
	}
	if err := conversation.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Generate ID if not provided
	if conversation.ID == "" {
		conversation.ID = uuid.NewString()
	}
	if _, exists := m.conversations[conversation.ID]; exists {
		return errors.New("conversation with this ID already exists")
	}
	if conversation.CreatedAt.IsZero() {
		conversation.CreatedAt = time.Now()
	}

	m.conversations[conversation.ID] = clone(conversation)
	return nil
}

// GetByID implements ConversationRepository interface
func (m *MemoryConversationRepository) GetByID(ctx context.Context, id string) (*entities.Conversation, error) {
	if id == "" {
		return nil, errors.New("conversation ID cannot be empty")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	conversation, exists := m.conversations[id]
	if !exists {
		return nil, repositories.ErrConversationNotFound
	}
	// Return a copy to prevent external modifications
	return clone(conversation), nil
}

// GetLatest implements ConversationRepository interface
func (m *MemoryConversationRepository) GetLatest(ctx context.Context) (*entities.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *entities.Conversation
	for _, c := range m.conversations {
		if latest == nil || c.LastActiveAt.After(latest.LastActiveAt) {
			latest = c
		}
	}
	if latest == nil {
		return nil, nil
	}
	return clone(latest), nil
}

// Update implements ConversationRepository interface
func (m *MemoryConversationRepository) Update(ctx context.Context, conversation *entities.Conversation) error {
	if conversation == nil {
		return errors.New("conversation cannot be nil")
	}
	if conversation.ID == "" {
		return errors.New("conversation ID cannot be empty")
	}
	if err := conversation.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, exists := m.conversations[conversation.ID]
	if !exists {
		return repositories.ErrConversationNotFound
	}

	updated := clone(conversation)
	updated.CreatedAt = existing.CreatedAt // Preserve original creation time
	m.conversations[conversation.ID] = updated
	return nil
}

// ExpireConversations implements ConversationRepository interface
func (m *MemoryConversationRepository) ExpireConversations(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var expired int64
	for _, c := range m.conversations {
		if c.Status == entities.ConversationStatusActive && now.After(c.ExpiresAt) {
			c.Expire()
			expired++
		}
	}
	return expired, nil
}

func clone(c *entities.Conversation) *entities.Conversation {
	copied := *c
	copied.Messages = append([]entities.Message(nil), c.Messages...)
	if c.LastMessageAt != nil {
		at := *c.LastMessageAt
		copied.LastMessageAt = &at
	}
	return &copied
}
