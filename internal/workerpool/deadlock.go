package workerpool

import (
	"sync"
	"time"
)

// DeadlockDetector watches outstanding oracle checks and flags any that run
// far longer than expected — typically a wedged solver subprocess rather
// than an actual deadlock in this pool's simple submit/await model, but the
// gokando deadlock-alert shape (register/update/unregister + periodic scan)
// fits the symptom either way.
type DeadlockDetector struct {
	mu sync.Mutex

	timeout       time.Duration
	checkInterval time.Duration
	active        map[string]time.Time
	stale         int64

	shutdownChan chan struct{}
	alerts       chan Alert
	closeOnce    sync.Once
}

// Alert reports a single oracle check that exceeded the detector's timeout.
type Alert struct {
	JobID   string
	Running time.Duration
}

func newDeadlockDetector(timeout, checkInterval time.Duration) *DeadlockDetector {
	d := &DeadlockDetector{
		timeout:       timeout,
		checkInterval: checkInterval,
		active:        make(map[string]time.Time),
		shutdownChan:  make(chan struct{}),
		alerts:        make(chan Alert, 16),
	}
	go d.monitor()
	return d
}

func (d *DeadlockDetector) registerTask(jobID string) {
	d.mu.Lock()
	d.active[jobID] = time.Now()
	d.mu.Unlock()
}

func (d *DeadlockDetector) unregisterTask(jobID string) {
	d.mu.Lock()
	delete(d.active, jobID)
	d.mu.Unlock()
}

// Alerts returns the channel on which stuck-job alerts are delivered.
func (d *DeadlockDetector) Alerts() <-chan Alert {
	return d.alerts
}

func (d *DeadlockDetector) monitor() {
	ticker := time.NewTicker(d.checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.scan()
		case <-d.shutdownChan:
			return
		}
	}
}

func (d *DeadlockDetector) scan() {
	d.mu.Lock()
	now := time.Now()
	for jobID, started := range d.active {
		if running := now.Sub(started); running > d.timeout {
			d.stale++
			select {
			case d.alerts <- Alert{JobID: jobID, Running: running}:
			default:
			}
		}
	}
	d.mu.Unlock()
}

func (d *DeadlockDetector) shutdown() {
	d.closeOnce.Do(func() {
		close(d.shutdownChan)
	})
}
