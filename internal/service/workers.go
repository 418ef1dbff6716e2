package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"trove/catalog/internal/domain/task"
	"trove/catalog/internal/queue"
)

// pollBackoff is how long a worker waits after a failed stream read.
const pollBackoff = time.Second

// RunWorkers consumes refresh tasks until ctx is done. Retry tasks get half
// the workers, but always at least one.
func (s *Service) RunWorkers(ctx context.Context, numWorkers int) error {
	var wg sync.WaitGroup

	s.runWorkersForStream(ctx, &wg, numWorkers, s.queue.StreamName(task.RefreshCatalogTaskType), "main")
	s.runWorkersForStream(ctx, &wg, max(1, numWorkers/2), s.queue.StreamName(task.RefreshRetryTaskType), "retry")

	wg.Wait()
	return nil
}

func (s *Service) runWorkersForStream(ctx context.Context, wg *sync.WaitGroup, numWorkers int, streamName, workerType string) {
	// Auto-claimer picks up messages left pending by crashed consumers.
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(s.minIdleTime)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				consumer := fmt.Sprintf("autoclaimer-%s-%s", workerType, uuid.NewString())
				claimed, err := s.queue.AutoClaim(ctx, s.groupName, consumer, streamName, s.minIdleTime)
				if err != nil {
					log.Errorf("❌ Failed to auto-claim messages for %s: %v", streamName, err)
					continue
				}
				for _, msg := range claimed {
					log.Infof("🔄 Auto-claimed message %s from %s stream", msg.ID, workerType)
					if err := s.processMessage(ctx, streamName, &msg); err != nil {
						log.Errorf("❌ Failed to process auto-claimed message %s: %v", msg.ID, err)
					}
				}
			}
		}
	}()

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			consumer := fmt.Sprintf("%s-worker-%d", workerType, workerID)
			log.Infof("🚀 Starting %s worker %d as consumer %s", workerType, workerID, consumer)
			for {
				select {
				case <-ctx.Done():
					log.Infof("🛑 %s worker %d stopping", workerType, workerID)
					return
				default:
				}

				msg, err := s.queue.GetTask(ctx, s.groupName, consumer, streamName)
				if err != nil {
					if ctx.Err() != nil {
						continue
					}
					log.Errorf("❌ Failed to get task from %s: %v", streamName, err)
					sleep(ctx, pollBackoff)
					continue
				}

				if msg != nil {
					if err := s.processMessage(ctx, streamName, msg); err != nil {
						log.Errorf("❌ Failed to process message %s: %v", msg.ID, err)
					}
				}
			}
		}(i + 1)
	}
}

// processMessage runs one task and acks it. Undecodable messages are acked
// too, otherwise the auto-claimer would hand them out forever.
func (s *Service) processMessage(ctx context.Context, streamName string, msg *redis.XMessage) error {
	taskErr := s.handleMessage(ctx, msg)

	if err := s.queue.AckTask(ctx, streamName, s.groupName, msg.ID); err != nil {
		return fmt.Errorf("failed to ack message %s: %w", msg.ID, err)
	}
	return taskErr
}

func (s *Service) handleMessage(ctx context.Context, msg *redis.XMessage) error {
	taskType, data, err := queue.DecodeMessage(msg)
	if err != nil {
		return err
	}

	switch taskType {
	case task.RefreshCatalogTaskType:
		refreshTask, err := task.UnmarshalTask[*task.RefreshCatalogTask](data)
		if err != nil {
			return fmt.Errorf("failed to unmarshal refresh task: %w", err)
		}

		if _, err := s.Refresh(ctx, refreshTask.Force); err != nil {
			s.scheduleRetry(ctx, refreshTask.ID, 1, err)
			return nil
		}
		log.Infof("✅ Refresh %s (%s) done", refreshTask.ID, refreshTask.Reason)

	case task.RefreshRetryTaskType:
		retryTask, err := task.UnmarshalTask[*task.RefreshRetryTask](data)
		if err != nil {
			return fmt.Errorf("failed to unmarshal retry task: %w", err)
		}
		s.retryRefresh(ctx, retryTask)

	default:
		return fmt.Errorf("unknown task type: %s", taskType)
	}

	return nil
}

func (s *Service) retryRefresh(ctx context.Context, retryTask *task.RefreshRetryTask) {
	log.Infof("🔄 Retrying refresh %s (attempt %d)", retryTask.ID, retryTask.Attempt)

	if !sleep(ctx, s.retryBackoff(retryTask.Attempt)) {
		s.scheduleRetry(ctx, retryTask.ID, retryTask.Attempt, ctx.Err())
		return
	}

	if _, err := s.Refresh(ctx, false); err != nil {
		s.scheduleRetry(ctx, retryTask.ID, retryTask.Attempt+1, err)
		return
	}

	log.Infof("✅ Refresh %s recovered after %d attempts", retryTask.ID, retryTask.Attempt)
}

// retryBackoff grows linearly with the attempt but stays under half of the
// claim idle time, so a sleeping worker's message is never auto-claimed.
func (s *Service) retryBackoff(attempt int) time.Duration {
	backoff := s.retryDelay * time.Duration(attempt)
	if limit := s.minIdleTime / 2; backoff > limit {
		backoff = limit
	}
	return backoff
}

func (s *Service) scheduleRetry(ctx context.Context, id string, attempt int, cause error) {
	if attempt > s.maxRefreshAttempts {
		log.Errorf("❌ Giving up on refresh %s after %d attempts: %v", id, attempt-1, cause)
		return
	}

	retryTask := &task.RefreshRetryTask{
		ID:      id,
		Attempt: attempt,
		Error:   cause.Error(),
	}
	// The original context may already be cancelled; the retry must still be recorded.
	if _, err := s.queue.AddTask(context.WithoutCancel(ctx), retryTask); err != nil {
		log.Errorf("❌ Failed to queue retry for refresh %s: %v", id, err)
		return
	}
	log.Warnf("🔄 Refresh %s queued for retry (attempt %d): %v", id, attempt, cause)
}

// sleep waits for d or until ctx is done, reporting whether the full wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
