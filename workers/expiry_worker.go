package workers

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const sweepLockKey = "sos:expiry_sweep_lock"

// Expirer cancels alerts nobody answered in time.
type Expirer interface {
	ExpireStale(ctx context.Context) (int, error)
}

type ExpiryWorker struct {
	expirer Expirer
	redis   *redis.Client // optional, elects one sweeper per interval across instances

	config     ExpiryWorkerConfig
	instanceID string

	// Worker state
	isRunning bool
	mutex     sync.RWMutex

	// Context for shutdown
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	stats      ExpiryWorkerStats
	statsMutex sync.RWMutex
}

type ExpiryWorkerConfig struct {
	Interval     time.Duration `json:"interval"`
	SweepTimeout time.Duration `json:"sweepTimeout"`
}

type ExpiryWorkerStats struct {
	SweepsRun     int64     `json:"sweepsRun"`
	SweepsSkipped int64     `json:"sweepsSkipped"`
	SweepsFailed  int64     `json:"sweepsFailed"`
	AlertsExpired int64     `json:"alertsExpired"`
	LastSweepAt   time.Time `json:"lastSweepAt"`
	StartTime     time.Time `json:"startTime"`
}

func NewExpiryWorker(expirer Expirer, redisClient *redis.Client, config ExpiryWorkerConfig) *ExpiryWorker {
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}
	if config.SweepTimeout <= 0 {
		config.SweepTimeout = 30 * time.Second
	}

	return &ExpiryWorker{
		expirer:    expirer,
		redis:      redisClient,
		config:     config,
		instanceID: uuid.New().String(),
	}
}

func (ew *ExpiryWorker) Start() error {
	ew.mutex.Lock()
	defer ew.mutex.Unlock()

	if ew.isRunning {
		return nil
	}

	ew.ctx, ew.cancel = context.WithCancel(context.Background())
	ew.isRunning = true
	ew.statsMutex.Lock()
	ew.stats.StartTime = time.Now()
	ew.statsMutex.Unlock()

	ew.wg.Add(1)
	go ew.sweepLoop()

	logrus.WithField("interval", ew.config.Interval).Info("Expiry Worker started")
	return nil
}

func (ew *ExpiryWorker) Stop() error {
	ew.mutex.Lock()
	defer ew.mutex.Unlock()

	if !ew.isRunning {
		return nil
	}

	logrus.Info("Stopping Expiry Worker...")

	ew.cancel()
	ew.isRunning = false
	ew.wg.Wait()

	logrus.Info("Expiry Worker stopped successfully")
	return nil
}

func (ew *ExpiryWorker) GetStats() ExpiryWorkerStats {
	ew.statsMutex.RLock()
	defer ew.statsMutex.RUnlock()
	return ew.stats
}

func (ew *ExpiryWorker) sweepLoop() {
	defer ew.wg.Done()

	ticker := time.NewTicker(ew.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ew.Sweep(ew.ctx)

		case <-ew.ctx.Done():
			return
		}
	}
}

// Sweep runs one expiry pass unless another instance holds the sweep lock.
func (ew *ExpiryWorker) Sweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, ew.config.SweepTimeout)
	defer cancel()

	if !ew.acquireLock(ctx) {
		ew.updateStats(func(s *ExpiryWorkerStats) { s.SweepsSkipped++ })
		return
	}

	expired, err := ew.expirer.ExpireStale(ctx)
	ew.updateStats(func(s *ExpiryWorkerStats) {
		s.SweepsRun++
		s.AlertsExpired += int64(expired)
		s.LastSweepAt = time.Now()
		if err != nil {
			s.SweepsFailed++
		}
	})

	if err != nil {
		logrus.WithError(err).WithField("expired", expired).Error("Expiry sweep failed")
		return
	}
	if expired > 0 {
		logrus.WithField("expired", expired).Info("Expired unanswered SOS alerts")
	}
}

// acquireLock always succeeds without Redis or when Redis errors.
func (ew *ExpiryWorker) acquireLock(ctx context.Context) bool {
	if ew.redis == nil {
		return true
	}
	ok, err := ew.redis.SetNX(ctx, sweepLockKey, ew.instanceID, ew.config.Interval/2).Result()
	if err != nil {
		logrus.WithError(err).Warn("Failed to take expiry sweep lock, sweeping anyway")
		return true
	}
	return ok
}

func (ew *ExpiryWorker) updateStats(update func(*ExpiryWorkerStats)) {
	ew.statsMutex.Lock()
	defer ew.statsMutex.Unlock()
	update(&ew.stats)
}
