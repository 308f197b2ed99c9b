package mongo

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/amirulhamizan12/agent-ui/domain/entities"
	"github.com/amirulhamizan12/agent-ui/domain/repositories"
)

// TestConversationRepository_Integration requires a running MongoDB instance
// (skipped if MONGODB_URI is not set)
func TestConversationRepository_Integration(t *testing.T) {
	mongoURI := os.Getenv("MONGODB_URI")
	if mongoURI == "" {
		t.Skip("Skipping MongoDB integration test - MONGODB_URI not set")
	}

	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	client, err := NewClient(ctx, Config{URI: mongoURI, Database: "agent_ui_test"}, logger)
	if err != nil {
		t.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer func() {
		client.Database.Drop(ctx)
		client.Close(ctx)
	}()

	repo := NewConversationRepository(client.Database, logger)

	t.Run("CreateAndGetConversation", func(t *testing.T) {
		conversation := entities.NewConversation()
		conversation.AddMessage(entities.NewMessage(entities.RoleHuman, "open the docs", nil))

		if err := repo.Create(ctx, conversation); err != nil {
			t.Fatalf("Failed to create conversation: %v", err)
		}
		if conversation.ID == "" {
			t.Fatal("Expected ID to be assigned")
		}

		retrieved, err := repo.GetByID(ctx, conversation.ID)
		if err != nil {
			t.Fatalf("Failed to get conversation: %v", err)
		}
		if len(retrieved.Messages) != 1 || retrieved.Messages[0].Text != "open the docs" {
			t.Errorf("Expected stored message, got %+v", retrieved.Messages)
		}
	})

	t.Run("UpdateAndGetLatest", func(t *testing.T) {
		conversation := entities.NewConversation()
		if err := repo.Create(ctx, conversation); err != nil {
			t.Fatalf("Failed to create conversation: %v", err)
		}

		time.Sleep(5 * time.Millisecond)
		conversation.AddMessage(entities.NewMessage(entities.RoleAssistant, "done", []byte{1, 2, 3, 4}))
		conversation.AutomationSessionID = "session-1"
		if err := repo.Update(ctx, conversation); err != nil {
			t.Fatalf("Failed to update conversation: %v", err)
		}

		latest, err := repo.GetLatest(ctx)
		if err != nil {
			t.Fatalf("Failed to get latest conversation: %v", err)
		}
		if latest.ID != conversation.ID {
			t.Errorf("Expected latest %s, got %s", conversation.ID, latest.ID)
		}
		if latest.AutomationSessionID != "session-1" {
			t.Errorf("Expected automation session to be stored, got %q", latest.AutomationSessionID)
		}
		if !latest.Messages[0].HasAudio() {
			t.Error("Expected audio to be stored")
		}
	})

	t.Run("GetByIDNotFound", func(t *testing.T) {
		_, err := repo.GetByID(ctx, "000000000000000000000000")
		if !errors.Is(err, repositories.ErrConversationNotFound) {
			t.Errorf("Expected ErrConversationNotFound, got %v", err)
		}
	})

	t.Run("ExpireConversations", func(t *testing.T) {
		conversation := entities.NewConversation()
		conversation.ExpiresAt = time.Now().Add(-1 * time.Hour)
		if err := repo.Create(ctx, conversation); err != nil {
			t.Fatalf("Failed to create conversation: %v", err)
		}

		count, err := repo.ExpireConversations(ctx)
		if err != nil {
			t.Fatalf("Failed to expire conversations: %v", err)
		}
		if count < 1 {
			t.Errorf("Expected at least 1 expired conversation, got %d", count)
		}

		expired, err := repo.GetByID(ctx, conversation.ID)
		if err != nil {
			t.Fatalf("Failed to get conversation: %v", err)
		}
		if expired.Status != entities.ConversationStatusExpired {
			t.Errorf("Expected status %s, got %s", entities.ConversationStatusExpired, expired.Status)
		}
	})
}

func TestNewClientRequiresConfig(t *testing.T) {
	logger := zaptest.NewLogger(t)
	if _, err := NewClient(context.Background(), Config{Database: "x"}, logger); err == nil {
		t.Error("Expected error for missing uri")
	}
	if _, err := NewClient(context.Background(), Config{URI: "mongodb://localhost:27017"}, logger); err == nil {
		t.Error("Expected error for missing database")
	}
}
