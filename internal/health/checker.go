package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pleasantbot/pleasantdash/internal/config"
)

// Status represents the health status of a bot API target.
type Status int

const (
	StatusUnknown Status = iota
	StatusHealthy
	StatusUnhealthy
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// MarshalText renders the status by name in JSON.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Pinger is anything that can be pinged, typically a *botapi.Client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Reporter receives up/down transitions, typically the metrics collector.
type Reporter interface {
	SetBotUp(target string, up bool)
	RemoveTarget(target string)
}

// TargetHealth holds health information for a target.
type TargetHealth struct {
	Status              Status    `json:"status"`
	LastCheck           time.Time `json:"last_check"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
}

// Checker periodically pings every registered target.
type Checker struct {
	mu       sync.RWMutex
	targets  map[string]Pinger
	statuses map[string]*TargetHealth
	reporter Reporter

	interval         time.Duration
	failureThreshold int
	timeout          time.Duration

	stopCh   chan struct{}
	resetCh  chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewChecker creates a new health checker. r may be nil.
func NewChecker(r Reporter, hcCfg config.HealthCheckConfig) *Checker {
	return &Checker{
		targets:          make(map[string]Pinger),
		statuses:         make(map[string]*TargetHealth),
		reporter:         r,
		interval:         hcCfg.Interval,
		failureThreshold: hcCfg.FailureThreshold,
		timeout:          hcCfg.Timeout,
		stopCh:           make(chan struct{}),
		resetCh:          make(chan struct{}, 1),
	}
}

// UpdateConfig applies new check settings. A running checker picks up the
// new interval at once; the threshold applies from the next failure.
func (c *Checker) UpdateConfig(hcCfg config.HealthCheckConfig) {
	c.mu.Lock()
	changed := c.interval != hcCfg.Interval
	c.interval = hcCfg.Interval
	c.failureThreshold = hcCfg.FailureThreshold
	c.timeout = hcCfg.Timeout
	c.mu.Unlock()

	if changed {
		select {
		case c.resetCh <- struct{}{}:
		default:
		}
	}
	slog.Info("health checker updated", "interval", hcCfg.Interval, "threshold", hcCfg.FailureThreshold)
}

func (c *Checker) currentInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.interval
}

// AddTarget registers p under name. Re-adding a name replaces its pinger and
// keeps its status.
func (c *Checker) AddTarget(name string, p Pinger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.targets[name]; !ok {
		slog.Info("health target added", "target", name)
	}
	c.targets[name] = p
}

// HasTarget reports whether name is registered.
func (c *Checker) HasTarget(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.targets[name]
	return ok
}

// RemoveTarget stops probing name and forgets its state.
func (c *Checker) RemoveTarget(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.targets, name)
	delete(c.statuses, name)
	if c.reporter != nil {
		c.reporter.RemoveTarget(name)
	}
	slog.Info("removed health state", "target", name)
}

// Start begins periodic health checking.
func (c *Checker) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run()
	}()
	slog.Info("health checker started", "interval", c.currentInterval())
}

// Stop stops the health checker. Safe to call multiple times.
func (c *Checker) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	c.wg.Wait()
	slog.Info("health checker stopped")
}

func (c *Checker) run() {
	// Run immediately on start
	c.CheckAll()

	ticker := time.NewTicker(c.currentInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.CheckAll()
		case <-c.resetCh:
			ticker.Reset(c.currentInterval())
		case <-c.stopCh:
			return
		}
	}
}

// CheckAll pings every target once, in parallel.
func (c *Checker) CheckAll() {
	c.mu.RLock()
	targets := make(map[string]Pinger, len(c.targets))
	for name, p := range c.targets {
		targets[name] = p
	}
	c.mu.RUnlock()

	var wg sync.WaitGroup
	for name, p := range targets {
		wg.Add(1)
		go func(name string, p Pinger) {
			defer wg.Done()
			c.updateStatus(name, c.ping(p))
		}(name, p)
	}
	wg.Wait()
}

func (c *Checker) ping(p Pinger) error {
	c.mu.RLock()
	timeout := c.timeout
	c.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return p.Ping(ctx)
}

func (c *Checker) updateStatus(name string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Removed while the ping was in flight.
	if _, ok := c.targets[name]; !ok {
		return
	}

	th := c.getOrCreate(name)
	th.LastCheck = time.Now()

	if err == nil {
		if th.ConsecutiveFailures > 0 {
			slog.Info("bot API recovered", "target", name, "failures", th.ConsecutiveFailures)
		}
		th.Status = StatusHealthy
		th.ConsecutiveFailures = 0
		th.LastError = ""
	} else {
		th.ConsecutiveFailures++
		th.LastError = err.Error()
		if th.ConsecutiveFailures >= c.failureThreshold {
			if th.Status != StatusUnhealthy {
				slog.Warn("bot API marked unhealthy", "target", name, "failures", th.ConsecutiveFailures, "error", th.LastError)
			}
			th.Status = StatusUnhealthy
		}
	}

	if c.reporter != nil {
		c.reporter.SetBotUp(name, th.Status == StatusHealthy)
	}
}

func (c *Checker) getOrCreate(name string) *TargetHealth {
	th, ok := c.statuses[name]
	if !ok {
		th = &TargetHealth{Status: StatusUnknown}
		c.statuses[name] = th
	}
	return th
}

// IsHealthy returns whether a target is healthy (or unknown, which is treated as healthy).
func (c *Checker) IsHealthy(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	th, ok := c.statuses[name]
	if !ok {
		return true
	}
	return th.Status != StatusUnhealthy
}

// GetStatus returns the health status for a target.
func (c *Checker) GetStatus(name string) TargetHealth {
	c.mu.RLock()
	defer c.mu.RUnlock()

	th, ok := c.statuses[name]
	if !ok {
		return TargetHealth{Status: StatusUnknown}
	}
	return *th
}

// GetAllStatuses returns health statuses for all checked targets.
func (c *Checker) GetAllStatuses() map[string]TargetHealth {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string]TargetHealth, len(c.statuses))
	for name, th := range c.statuses {
		result[name] = *th
	}
	return result
}

// OverallHealthy returns true if no target is unhealthy.
func (c *Checker) OverallHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, th := range c.statuses {
		if th.Status == StatusUnhealthy {
			return false
		}
	}
	return true
}

// Ready returns true when nothing has been checked yet or at least one
// target is not unhealthy.
func (c *Checker) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.statuses) == 0 {
		return true
	}
	for _, th := range c.statuses {
		if th.Status != StatusUnhealthy {
			return true
		}
	}
	return false
}

// TargetCount returns the number of registered targets.
func (c *Checker) TargetCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.targets)
}
