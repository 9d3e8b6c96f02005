package config

import (
	"context"
	"reflect"
	"sync"
	"time"

	"snapreview/pkg/metrics"
)

// Change describes a configuration update event. Only a subset of fields may
// have changed; see Fields for the list of keys.
type Change struct {
	Old    *Config
	New    *Config
	Fields []string
	Err    error
}

// Subscriber channel buffer size; small to apply back-pressure if receivers
// are slow.
const subBuf = 4

// Watcher periodically reloads configuration from the environment. The main
// loop subscribes and applies generation knobs (model, timeout) to running
// components without a restart.
//
// Polling keeps it simple; the env rarely changes outside deploys.
type Watcher struct {
	mu     sync.RWMutex
	cur    *Config
	closed bool
	intv   time.Duration
	subs   []chan Change
	cancel context.CancelFunc

	mReloads  *metrics.Counter
	mFailures *metrics.Counter
}

func NewWatcher(interval time.Duration) *Watcher {
	w := &Watcher{
		intv:      interval,
		mReloads:  metrics.Default.Counter("config_reload_total", "Total number of config reload attempts"),
		mFailures: metrics.Default.Counter("config_reload_failures_total", "Total number of failed config reloads"),
	}
	w.cur = Load()
	return w
}

// Current returns the most recently loaded config.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cur
}

// Subscribe returns a channel receiving Change notifications. The channel is
// closed when the watcher stops.
func (w *Watcher) Subscribe() <-chan Change {
	ch := make(chan Change, subBuf)
	w.mu.Lock()
	w.subs = append(w.subs, ch)
	w.mu.Unlock()
	return ch
}

// Start begins the polling loop.
func (w *Watcher) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()

	go func() {
		ticker := time.NewTicker(w.intv)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.reload()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the loop and closes subscriber channels.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	if w.cancel != nil {
		w.cancel()
	}
	subs := w.subs
	w.subs = nil
	w.mu.Unlock()

	for _, ch := range subs {
		close(ch)
	}
}

func (w *Watcher) reload() {
	w.mReloads.Inc()

	next := Load()
	if verrs := Validate(next); len(verrs) > 0 {
		w.mFailures.Inc()
		w.notify(Change{Old: w.Current(), New: nil, Err: verrs[0]})
		return
	}

	w.mu.Lock()
	prev := w.cur
	fields := diffFields(prev, next)
	if len(fields) == 0 {
		w.mu.Unlock()
		return
	}
	w.cur = next
	w.mu.Unlock()

	w.notify(Change{Old: prev, New: next, Fields: fields})
}

func (w *Watcher) notify(c Change) {
	w.mu.RLock()
	subs := w.subs
	w.mu.RUnlock()
	for _, ch := range subs {
		select {
		case ch <- c:
		default:
			// subscriber is slow; drop rather than block the loop
		}
	}
}

// diffFields lists the struct field names whose values differ.
func diffFields(a, b *Config) []string {
	if a == nil || b == nil {
		return nil
	}
	var out []string
	av := reflect.ValueOf(*a)
	bv := reflect.ValueOf(*b)
	t := av.Type()
	for i := 0; i < t.NumField(); i++ {
		if !reflect.DeepEqual(av.Field(i).Interface(), bv.Field(i).Interface()) {
			out = append(out, t.Field(i).Name)
		}
	}
	return out
}
