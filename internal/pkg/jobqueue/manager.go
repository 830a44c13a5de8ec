package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CollectFox/app/models"
)

// Enqueuer is the part of Queue the scheduler needs.
type Enqueuer interface {
	EnqueueJob(ctx context.Context, jobType JobType, payload map[string]interface{}) (*Job, error)
}

// CampaignLister lists active campaigns across all tenants.
type CampaignLister interface {
	ListAllActive() ([]models.DunningCampaign, error)
}

// Manager runs the queue and the campaign scheduler.
type Manager struct {
	queue     *Queue
	enqueuer  Enqueuer
	campaigns CampaignLister
	interval  time.Duration
	ticker    *time.Ticker
	stopCh    chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	running   bool
}

func NewManager(queue *Queue, campaigns CampaignLister, interval time.Duration) *Manager {
	if interval <= 0 {
		interval = time.Hour
	}
	m := &Manager{
		queue:     queue,
		campaigns: campaigns,
		interval:  interval,
		stopCh:    make(chan struct{}),
	}
	if queue != nil {
		m.enqueuer = queue
	}
	return m
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the job queue and the scheduler
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Infof("[JobQueue Manager] Starting (campaign schedule every %s)", m.interval)

	if m.queue != nil {
		m.queue.Start()
	}

	m.ticker = time.NewTicker(m.interval)
	m.wg.Add(1)
	go m.scheduleWorker(m.ticker, m.stopCh)
}

// Stop stops the scheduler and the job queue
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping...")
	if m.ticker != nil {
		m.ticker.Stop()
	}
	close(m.stopCh)
	m.running = false
	m.wg.Wait()

	if m.queue != nil {
		m.queue.Stop()
	}
	log.Info("[JobQueue Manager] Stopped successfully")
}

func (m *Manager) scheduleWorker(ticker *time.Ticker, stopCh chan struct{}) {
	defer m.wg.Done()
	for {
		select {
		case <-stopCh:
			log.Info("[JobQueue Manager] Scheduler stopping")
			return
		case <-ticker.C:
			if _, err := m.ScheduleOnce(context.Background()); err != nil {
				log.Errorf("[JobQueue Manager] Scheduling campaigns: %v", err)
			}
		}
	}
}

// ScheduleOnce enqueues an overdue sweep per tenant followed by one job per
// active campaign. It returns the number of campaign jobs enqueued.
func (m *Manager) ScheduleOnce(ctx context.Context) (int, error) {
	campaigns, err := m.campaigns.ListAllActive()
	if err != nil {
		return 0, err
	}

	swept := map[uint]bool{}
	enqueued := 0
	for _, c := range campaigns {
		if !swept[c.TenantID] {
			swept[c.TenantID] = true
			if _, err := m.enqueuer.EnqueueJob(ctx, JobTypeMarkOverdue, MarkOverduePayload{TenantID: c.TenantID}.ToMap()); err != nil {
				return enqueued, err
			}
		}
		payload := ExecuteCampaignPayload{TenantID: c.TenantID, CampaignID: c.ID, Trigger: "schedule"}
		if _, err := m.enqueuer.EnqueueJob(ctx, JobTypeExecuteCampaign, payload.ToMap()); err != nil {
			return enqueued, err
		}
		enqueued++
	}
	log.Infof("[JobQueue Manager] Scheduled %d campaign run(s) for %d tenant(s)", enqueued, len(swept))
	return enqueued, nil
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
