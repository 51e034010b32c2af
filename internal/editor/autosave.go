package editor

import (
	"context"
	"sync"
	"time"
)

// AutoSaver periodically caches dirty, idle sessions. It never writes to the
// article store.
type AutoSaver struct {
	manager  *Manager
	interval time.Duration

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func NewAutoSaver(m *Manager, interval time.Duration) *AutoSaver {
	return &AutoSaver{
		manager:  m,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

func (a *AutoSaver) Start(ctx context.Context) {
	if a.interval <= 0 {
		return
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				a.Tick(ctx)
			case <-a.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Tick runs one autosave round and returns how many sessions were cached.
func (a *AutoSaver) Tick(ctx context.Context) int {
	saved := 0
	for _, s := range a.manager.Sessions() {
		ok, err := s.autosave(ctx)
		if err != nil {
			editorLogger.Warn().Err(err).Str("draft_key", string(s.Key())).Msg("Autosave failed")
			continue
		}
		if ok {
			saved++
		}
	}
	if saved > 0 {
		editorLogger.Debug().Int("sessions", saved).Msg("Autosaved drafts")
	}
	return saved
}

func (a *AutoSaver) Stop() {
	a.once.Do(func() { close(a.stop) })
	a.wg.Wait()
}
