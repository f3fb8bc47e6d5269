package reference

import "sync"

// Set is an append-only collection of references deduplicated by key.
// Iteration order is registration order. Safe for concurrent use.
type Set struct {
	mu    sync.RWMutex
	order []Reference
	index map[string]int
}

func NewSet() *Set {
	return &Set{index: make(map[string]int)}
}

// Register adds references whose key is not yet known and returns how many were new.
func (s *Set) Register(refs ...Reference) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index == nil {
		s.index = make(map[string]int)
	}
	added := 0
	for _, r := range refs {
		if r == nil {
			continue
		}
		key := r.Key()
		if _, ok := s.index[key]; ok {
			continue
		}
		s.index[key] = len(s.order)
		s.order = append(s.order, r)
		added++
	}
	return added
}

func (s *Set) Get(key string) (Reference, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[key]
	if !ok {
		return nil, false
	}
	return s.order[i], true
}

func (s *Set) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// All 返回按注册顺序排列的副本。
func (s *Set) All() []Reference {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Reference, len(s.order))
	copy(out, s.order)
	return out
}

func (s *Set) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, len(s.order))
	for i, r := range s.order {
		keys[i] = r.Key()
	}
	return keys
}

func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Reset 清空集合，开始新对话时使用。
func (s *Set) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = nil
	s.index = make(map[string]int)
}
