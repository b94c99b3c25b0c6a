package fieldcrypt

import "sync"

// KeyCache keeps one Cipher per ledger so a key is decoded and expanded only
// once. It is safe for concurrent use.
type KeyCache struct {
	mu      sync.RWMutex
	ciphers map[string]*Cipher
}

// NewKeyCache returns an empty cache.
func NewKeyCache() *KeyCache {
	return &KeyCache{ciphers: make(map[string]*Cipher)}
}

// Get returns the cached Cipher for ledgerID, calling load for the Base64
// key on a miss. Load errors are returned and nothing is cached.
func (k *KeyCache) Get(ledgerID string, load func() (string, error)) (*Cipher, error) {
	k.mu.RLock()
	c, ok := k.ciphers[ledgerID]
	k.mu.RUnlock()
	if ok {
		return c, nil
	}

	key, err := load()
	if err != nil {
		return nil, err
	}
	c, err = NewCipher(key)
	if err != nil {
		return nil, err
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if existing, ok := k.ciphers[ledgerID]; ok {
		return existing, nil
	}
	k.ciphers[ledgerID] = c
	return c, nil
}

// Put stores a Cipher for ledgerID built from key.
func (k *KeyCache) Put(ledgerID, key string) (*Cipher, error) {
	c, err := NewCipher(key)
	if err != nil {
		return nil, err
	}
	k.mu.Lock()
	k.ciphers[ledgerID] = c
	k.mu.Unlock()
	return c, nil
}

// Forget drops the cached Cipher of ledgerID.
func (k *KeyCache) Forget(ledgerID string) {
	k.mu.Lock()
	delete(k.ciphers, ledgerID)
	k.mu.Unlock()
}

// Len returns the number of cached ciphers.
func (k *KeyCache) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.ciphers)
}
