package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/brightclass/assessment-engine/internal/cache"
	"github.com/brightclass/assessment-engine/internal/events"
	"github.com/brightclass/assessment-engine/internal/repositories"
	"github.com/brightclass/assessment-engine/internal/validator"
)

// ServiceManagerConfig holds configuration for the service manager
type ServiceManagerConfig struct {
	EnableDebugLogging bool
	LogLevel           slog.Level

	// Grace window for late submissions after the attempt clock runs out
	AttemptGrace time.Duration

	DefaultTimeout time.Duration
}

// serviceManager implements ServiceManager interface
type serviceManager struct {
	// Dependencies
	repo         repositories.Repository
	logger       *slog.Logger
	validator    *validator.Validator
	publisher    events.Publisher
	cacheManager *cache.CacheManager
	config       ServiceManagerConfig

	// Service instances
	testService    TestService
	attemptService AttemptService
	gradingService GradingService
	statsService   StatsService
	reportService  ReportService

	// Lifecycle management
	initialized bool
	shutdown    bool
	mu          sync.RWMutex
}

// NewServiceManager creates a new service manager with all dependencies
func NewServiceManager(repo repositories.Repository, logger *slog.Logger, validator *validator.Validator, publisher events.Publisher, cacheManager *cache.CacheManager, config ServiceManagerConfig) ServiceManager {
	return &serviceManager{
		repo:         repo,
		logger:       logger,
		validator:    validator,
		publisher:    publisher,
		cacheManager: cacheManager,
		config:       config,
	}
}

// NewDefaultServiceManager creates a service manager with default configuration
func NewDefaultServiceManager(repo repositories.Repository, logger *slog.Logger, validator *validator.Validator, publisher events.Publisher, cacheManager *cache.CacheManager) ServiceManager {
	config := ServiceManagerConfig{
		EnableDebugLogging: false,
		LogLevel:           slog.LevelInfo,
		AttemptGrace:       30 * time.Second,
		DefaultTimeout:     30 * time.Second,
	}

	return NewServiceManager(repo, logger, validator, publisher, cacheManager, config)
}

// Initialize sets up all services and their dependencies
func (sm *serviceManager) Initialize(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.initialized {
		return nil
	}

	sm.logger.Info("Initializing service manager")

	// Stats is a dependency of grading and attempts, so it goes first
	sm.statsService = NewStatsService(sm.repo, sm.logger, sm.cacheManager)
	sm.logger.Info("Stats service initialized")

	sm.gradingService = NewGradingService(sm.repo, sm.logger, sm.validator, sm.publisher, sm.statsService)
	sm.logger.Info("Grading service initialized")

	sm.attemptService = NewAttemptService(sm.repo, sm.logger, sm.validator, sm.publisher, sm.gradingService, sm.statsService, sm.config.AttemptGrace)
	sm.logger.Info("Attempt service initialized")

	sm.testService = NewTestService(sm.repo, sm.logger, sm.validator, sm.publisher)
	sm.logger.Info("Test service initialized")

	sm.reportService = NewReportService(sm.repo, sm.logger)
	sm.logger.Info("Report service initialized")

	sm.initialized = true
	sm.logger.Info("Service manager initialized successfully")

	return nil
}

// Service getters
func (sm *serviceManager) Test() TestService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized || sm.testService == nil {
		panic("test service not initialized")
	}
	return sm.testService
}

func (sm *serviceManager) Attempt() AttemptService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized || sm.attemptService == nil {
		panic("attempt service not initialized")
	}
	return sm.attemptService
}

func (sm *serviceManager) Grading() GradingService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized || sm.gradingService == nil {
		panic("grading service not initialized")
	}
	return sm.gradingService
}

func (sm *serviceManager) Stats() StatsService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized || sm.statsService == nil {
		panic("stats service not initialized")
	}
	return sm.statsService
}

func (sm *serviceManager) Report() ReportService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized || sm.reportService == nil {
		panic("report service not initialized")
	}
	return sm.reportService
}

// Health and lifecycle
func (sm *serviceManager) HealthCheck(ctx context.Context) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		return fmt.Errorf("service manager not initialized")
	}
	if sm.shutdown {
		return fmt.Errorf("service manager is shut down")
	}

	if err := sm.repo.Ping(ctx); err != nil {
		return fmt.Errorf("repository health check failed: %w", err)
	}

	return nil
}

func (sm *serviceManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.shutdown {
		return nil
	}

	sm.logger.Info("Shutting down service manager")

	if sm.publisher != nil {
		if err := sm.publisher.Close(); err != nil {
			sm.logger.Error("Failed to close event publisher", "error", err)
		}
	}

	if err := sm.repo.Close(); err != nil {
		sm.logger.Error("Failed to close repository", "error", err)
	}

	sm.shutdown = true
	sm.logger.Info("Service manager shut down completed")

	return nil
}

// WithTimeout creates a context with the default timeout
func (sm *serviceManager) WithTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, sm.config.DefaultTimeout)
}
