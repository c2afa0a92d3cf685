package store

import "sync"

// writeGate serializes mutations against concurrent readers. It is an
// RWMutex today; keeping it behind an interface leaves room for a
// transactional scheduler to take its place.
type writeGate interface {
	Lock()
	Unlock()
	RLock()
	RUnlock()
}

func newGate() writeGate {
	return &sync.RWMutex{}
}
