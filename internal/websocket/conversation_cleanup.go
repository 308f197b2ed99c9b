package websocket

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/amirulhamizan12/agent-ui/domain/repositories"
)

const (
	defaultCleanupInterval = 30 * time.Minute
	defaultCleanupDelay    = time.Minute
)

// ConversationCleanupService periodically marks stale conversations as expired
type ConversationCleanupService struct {
	repo     repositories.ConversationRepository
	logger   *zap.Logger
	interval time.Duration
	delay    time.Duration

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewConversationCleanupService creates a cleanup service that runs every
// 30 minutes, starting one minute after Start
func NewConversationCleanupService(repo repositories.ConversationRepository, logger *zap.Logger) *ConversationCleanupService {
	return &ConversationCleanupService{
		repo:     repo,
		logger:   logger,
		interval: defaultCleanupInterval,
		delay:    defaultCleanupDelay,
		stopChan: make(chan struct{}),
	}
}

// Start begins the background cleanup process
func (s *ConversationCleanupService) Start() {
	s.wg.Add(1)
	go s.cleanupLoop()
	s.logger.Info("Conversation cleanup service started", zap.Duration("interval", s.interval))
}

// Stop stops the cleanup loop and waits for a running sweep to finish
func (s *ConversationCleanupService) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
		s.logger.Info("Conversation cleanup service stopped")
	})
}

func (s *ConversationCleanupService) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	initialTimer := time.NewTimer(s.delay)
	defer initialTimer.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-initialTimer.C:
			s.runCleanup()
		case <-ticker.C:
			s.runCleanup()
		}
	}
}

func (s *ConversationCleanupService) runCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	expired, err := s.repo.ExpireConversations(ctx)
	if err != nil {
		s.logger.Error("Failed to expire conversations", zap.Error(err))
		return
	}
	s.logger.Info("Conversation cleanup completed", zap.Int64("expired", expired))
}
