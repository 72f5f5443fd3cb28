package storage

import "sync"

// MemProvider implements DatabaseProvider in memory. Used in tests and
// when no data directory is configured.
type MemProvider struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemProvider() DatabaseProvider {
	return &MemProvider{data: make(map[string][]byte)}
}

func (p *MemProvider) Get(key []byte) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	value, ok := p.data[string(key)]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), value...), nil
}

func (p *MemProvider) Put(key, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (p *MemProvider) Delete(key []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.data, string(key))
	return nil
}

func (p *MemProvider) Has(key []byte) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.data[string(key)]
	return ok, nil
}

func (p *MemProvider) Close() error {
	return nil
}
