package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/go-authgate/oauth2core/internal/models"
	"github.com/go-authgate/oauth2core/internal/store"

	"github.com/google/uuid"
)

// AuditLogEntry is the data needed to create one audit log entry.
type AuditLogEntry struct {
	EventType    models.EventType
	Severity     models.EventSeverity
	ActorUserID  string
	ActorIP      string
	ResourceType models.ResourceType
	ResourceID   string
	Action       string
	Details      models.AuditDetails
	Success      bool
	ErrorMessage string
}

// AuditService batches audit log writes through an async channel so
// the authorize/token hot path never blocks on a database insert.
type AuditService struct {
	store      *store.Store
	enabled    bool
	bufferSize int

	logChan chan *models.AuditLog

	batchBuffer []*models.AuditLog
	batchMutex  sync.Mutex
	batchTicker *time.Ticker

	wg         sync.WaitGroup
	shutdownCh chan struct{}
}

// NewAuditService creates a new audit service. When enabled, a single
// worker goroutine drains logChan into batchBuffer and flushes it to
// the store once a second or once 100 entries accumulate.
func NewAuditService(s *store.Store, enabled bool, bufferSize int) *AuditService {
	if bufferSize <= 0 {
		bufferSize = 1000
	}

	service := &AuditService{
		store:       s,
		enabled:     enabled,
		bufferSize:  bufferSize,
		logChan:     make(chan *models.AuditLog, bufferSize),
		batchBuffer: make([]*models.AuditLog, 0, 100),
		batchTicker: time.NewTicker(time.Second),
		shutdownCh:  make(chan struct{}),
	}

	if enabled {
		service.wg.Add(1)
		go service.worker()
		log.Printf("audit service started with buffer size %d", bufferSize)
	} else {
		log.Println("audit service is disabled")
	}

	return service
}

func (s *AuditService) worker() {
	defer s.wg.Done()

	for {
		select {
		case entry := <-s.logChan:
			s.addToBatch(entry)
		case <-s.batchTicker.C:
			s.flushBatch()
		case <-s.shutdownCh:
			s.flushBatch()
			return
		}
	}
}

func (s *AuditService) addToBatch(entry *models.AuditLog) {
	s.batchMutex.Lock()
	defer s.batchMutex.Unlock()

	s.batchBuffer = append(s.batchBuffer, entry)
	if len(s.batchBuffer) >= 100 {
		s.flushBatchUnsafe()
	}
}

func (s *AuditService) flushBatch() {
	s.batchMutex.Lock()
	defer s.batchMutex.Unlock()
	s.flushBatchUnsafe()
}

func (s *AuditService) flushBatchUnsafe() {
	if len(s.batchBuffer) == 0 {
		return
	}

	toWrite := make([]*models.AuditLog, len(s.batchBuffer))
	copy(toWrite, s.batchBuffer)
	s.batchBuffer = s.batchBuffer[:0]

	if err := s.store.CreateAuditLogBatch(toWrite); err != nil {
		log.Printf("failed to write audit log batch: %v", err)
	}
}

func (s *AuditService) buildLog(entry AuditLogEntry) *models.AuditLog {
	return &models.AuditLog{
		ID:           uuid.New().String(),
		EventType:    entry.EventType,
		EventTime:    time.Now(),
		Severity:     entry.Severity,
		ActorUserID:  entry.ActorUserID,
		ActorIP:      entry.ActorIP,
		ResourceType: entry.ResourceType,
		ResourceID:   entry.ResourceID,
		Action:       entry.Action,
		Details:      maskSensitiveDetails(entry.Details),
		Success:      entry.Success,
		ErrorMessage: entry.ErrorMessage,
		CreatedAt:    time.Now(),
	}
}

// Log records an entry asynchronously, dropping it (with a warning)
// if the buffer is full rather than blocking the caller.
func (s *AuditService) Log(_ context.Context, entry AuditLogEntry) {
	if !s.enabled {
		return
	}
	auditLog := s.buildLog(entry)
	select {
	case s.logChan <- auditLog:
	default:
		log.Printf("WARNING: audit log buffer full, dropping event: %s", entry.Action)
	}
}

// LogSync writes an entry directly to the store, for events (like a
// replayed grant) that must never be silently dropped.
func (s *AuditService) LogSync(_ context.Context, entry AuditLogEntry) error {
	if !s.enabled {
		return nil
	}
	return s.store.CreateAuditLog(s.buildLog(entry))
}

// Shutdown flushes any buffered entries and stops the worker.
func (s *AuditService) Shutdown(ctx context.Context) error {
	if !s.enabled {
		return nil
	}

	s.batchTicker.Stop()
	close(s.shutdownCh)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("audit service shut down gracefully")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("audit service shutdown timeout: %w", ctx.Err())
	}
}

// CleanupOldLogs deletes audit log entries older than retention and
// returns the number of rows removed. Safe to call on a ticker.
func (s *AuditService) CleanupOldLogs(retention time.Duration) (int64, error) {
	if !s.enabled || retention <= 0 {
		return 0, nil
	}
	res := s.store.DB().Where("created_at < ?", time.Now().Add(-retention)).Delete(&models.AuditLog{})
	return res.RowsAffected, res.Error
}

func maskSensitiveDetails(details models.AuditDetails) models.AuditDetails {
	if details == nil {
		return details
	}

	masked := make(models.AuditDetails, len(details))
	for key, value := range details {
		if isSensitiveField(key) {
			masked[key] = "***REDACTED***"
			continue
		}
		if isPartialMaskField(key) {
			if str, ok := value.(string); ok && len(str) > 12 {
				masked[key] = str[:8] + "..." + str[len(str)-4:]
				continue
			}
		}
		masked[key] = value
	}
	return masked
}

func isSensitiveField(key string) bool {
	key = strings.ToLower(key)
	for _, field := range []string{"password", "client_secret", "token", "code_verifier", "secret"} {
		if strings.Contains(key, field) {
			return true
		}
	}
	return false
}

func isPartialMaskField(key string) bool {
	key = strings.ToLower(key)
	for _, field := range []string{"code", "token_id"} {
		if strings.Contains(key, field) {
			return true
		}
	}
	return false
}
