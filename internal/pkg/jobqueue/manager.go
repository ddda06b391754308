package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// OrphanSweeper removes projects whose generation never completed.
type OrphanSweeper interface {
	DeleteOrphanedProjects(ctx context.Context, createdBefore time.Time) (int64, error)
}

// ManagerConfig controls the background orphan sweep.
type ManagerConfig struct {
	SweepInterval time.Duration
	MaxAge        time.Duration
}

// Manager runs the compensation queue together with the periodic orphan
// sweep, which catches every project the queue could not clean up.
type Manager struct {
	queue       *Queue
	sweeper     OrphanSweeper
	cfg         ManagerConfig
	now         func() time.Time
	sweepTicker *time.Ticker
	stopCh      chan struct{}
	wg          sync.WaitGroup
	mu          sync.Mutex
	running     bool
}

func NewManager(queue *Queue, sweeper OrphanSweeper, cfg ManagerConfig) *Manager {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 10 * time.Minute
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 30 * time.Minute
	}
	return &Manager{
		queue:   queue,
		sweeper: sweeper,
		cfg:     cfg,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting compensation queue and orphan sweep")

	if m.queue != nil {
		m.queue.Start()
	}

	if m.sweeper != nil {
		m.sweepTicker = time.NewTicker(m.cfg.SweepInterval)
		m.wg.Add(1)
		go m.sweepWorker(m.sweepTicker, m.stopCh)
	}
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping...")
	if m.sweepTicker != nil {
		m.sweepTicker.Stop()
	}
	close(m.stopCh)
	m.running = false
	m.wg.Wait()

	if m.queue != nil {
		m.queue.Stop()
	}
	log.Info("[JobQueue Manager] Stopped successfully")
}

func (m *Manager) sweepWorker(ticker *time.Ticker, stopCh <-chan struct{}) {
	defer m.wg.Done()
	log.Infof("[JobQueue Manager] Orphan sweep running (interval=%s, maxAge=%s)", m.cfg.SweepInterval, m.cfg.MaxAge)

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if _, err := m.RunSweepOnce(context.Background()); err != nil {
				log.Errorf("[JobQueue Manager] Orphan sweep error: %v", err)
			}
		}
	}
}

// RunSweepOnce deletes orphaned projects older than the configured max age.
func (m *Manager) RunSweepOnce(ctx context.Context) (int64, error) {
	if m.sweeper == nil {
		return 0, nil
	}
	n, err := m.sweeper.DeleteOrphanedProjects(ctx, m.now().Add(-m.cfg.MaxAge))
	if err != nil {
		return n, err
	}
	if n > 0 {
		log.Infof("[JobQueue Manager] Orphan sweep removed %d projects", n)
	}
	return n, nil
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
