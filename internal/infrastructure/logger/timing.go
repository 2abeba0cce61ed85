package logger

import (
	"context"
	"sort"
	"sync"
	"time"
)

type StepStats struct {
	Name     string
	Runs     int
	Failed   int
	Duration time.Duration
}

type timings struct {
	mu    sync.Mutex
	steps map[string]*StepStats
}

var globalTimings = &timings{steps: make(map[string]*StepStats)}

func RecordStep(name string, err error, duration time.Duration) {
	globalTimings.mu.Lock()
	defer globalTimings.mu.Unlock()

	stats, ok := globalTimings.steps[name]
	if !ok {
		stats = &StepStats{Name: name}
		globalTimings.steps[name] = stats
	}
	stats.Runs++
	stats.Duration += duration
	if err != nil {
		stats.Failed++
	}
}

// Timings returns recorded step stats ordered by name.
func Timings() []StepStats {
	globalTimings.mu.Lock()
	defer globalTimings.mu.Unlock()

	result := make([]StepStats, 0, len(globalTimings.steps))
	for _, s := range globalTimings.steps {
		result = append(result, *s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

func ResetTimings() {
	globalTimings.mu.Lock()
	defer globalTimings.mu.Unlock()
	globalTimings.steps = make(map[string]*StepStats)
}

// TimedOperation runs fn with a step-scoped logger in its context and records
// the duration under name.
func TimedOperation(ctx context.Context, name string, fn func(context.Context) error) (time.Duration, error) {
	ctx = WithStep(ctx, name)
	log := FromContext(ctx)
	log.Debug("step started")

	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)
	RecordStep(name, err, duration)

	if err != nil {
		log.Debug("step failed", "error", err, "duration", duration)
	} else {
		log.Debug("step completed", "duration", duration)
	}
	return duration, err
}
