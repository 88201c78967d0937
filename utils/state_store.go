package utils

import (
	"context"
	"sync"
	"time"
)

var (
	stateFallback   = map[string]time.Time{}
	stateFallbackMu sync.Mutex
)

func stateKey(state string) string { return "oauth:state:" + state }

// SaveState stores an OAuth state value for the login round trip.
func SaveState(state string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := GetRedis().Set(ctx, stateKey(state), "1", ttl).Err(); err == nil {
		return
	}
	// Single-instance fallback when Redis is down
	stateFallbackMu.Lock()
	stateFallback[state] = time.Now().Add(ttl)
	stateFallbackMu.Unlock()
}

// ConsumeState validates a state value and removes it so it can be used once.
func ConsumeState(state string) bool {
	if state == "" {
		return false
	}
	if v, ok := getMaybeDel(stateKey(state), true); ok && v != "" {
		return true
	}
	stateFallbackMu.Lock()
	exp, ok := stateFallback[state]
	if ok {
		delete(stateFallback, state)
	}
	stateFallbackMu.Unlock()
	return ok && time.Now().Before(exp)
}
