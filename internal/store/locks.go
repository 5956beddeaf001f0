package store

import (
	"sort"
	"sync"
)

// notebookLocks serializes mutating operations per notebook. Multi-notebook
// operations (moves) acquire their locks in ascending notebook-id order so
// two concurrent moves between the same pair cannot deadlock.
type notebookLocks struct {
	mu   sync.Mutex
	byID map[int64]*sync.Mutex
}

func newNotebookLocks() *notebookLocks {
	return &notebookLocks{byID: make(map[int64]*sync.Mutex)}
}

func (l *notebookLocks) get(id int64) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.byID[id]
	if !ok {
		m = &sync.Mutex{}
		l.byID[id] = m
	}
	return m
}

// lock acquires the locks for every given notebook id and returns a release
// function. Duplicate ids are collapsed.
func (l *notebookLocks) lock(ids ...int64) func() {
	seen := make(map[int64]struct{}, len(ids))
	uniq := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		uniq = append(uniq, id)
	}
	sort.Slice(uniq, func(i, j int) bool { return uniq[i] < uniq[j] })

	held := make([]*sync.Mutex, 0, len(uniq))
	for _, id := range uniq {
		m := l.get(id)
		m.Lock()
		held = append(held, m)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

// drop removes the lock entry for a deleted notebook.
func (l *notebookLocks) drop(id int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.byID, id)
}
