package repository

import (
	"sync"

	"gorm.io/gorm"
)

var (
	globalRepos *Repositories
	globalMu    sync.RWMutex
)

// Initialize builds the process wide repositories on db. A second call
// replaces them.
func Initialize(db *gorm.DB) *Repositories {
	repos := NewRepositories(db)
	globalMu.Lock()
	globalRepos = repos
	globalMu.Unlock()
	return repos
}

// GetGlobalRepositories returns the repositories set by Initialize and
// panics before that, since every caller runs after startup.
func GetGlobalRepositories() *Repositories {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalRepos == nil {
		panic("repositories not initialized, call repository.Initialize first")
	}
	return globalRepos
}
