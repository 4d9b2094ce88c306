package clipboard

import (
	"encoding/hex"
	"hash/fnv"
	"sync"
)

// Fingerprinter detects clipboard changes by comparing a cheap content hash
// against the last one seen. It remembers a single previous value, not a history.
// The hash is not cryptographic and is not stable across builds; it is only
// compared within one process.
type Fingerprinter struct {
	mu   sync.Mutex
	last string
	seen bool
}

// NewFingerprinter creates a fingerprinter that has seen nothing yet.
func NewFingerprinter() *Fingerprinter {
	return &Fingerprinter{}
}

// Hash returns the fingerprint of content.
func (f *Fingerprinter) Hash(content []byte) string {
	h := fnv.New64a()
	_, _ = h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}

// HasChanged reports whether content differs from the previously seen content
// and records it as seen. The first call always reports a change.
func (f *Fingerprinter) HasChanged(content []byte) bool {
	hash := f.Hash(content)

	f.mu.Lock()
	defer f.mu.Unlock()

	changed := !f.seen || hash != f.last
	f.last = hash
	f.seen = true
	return changed
}

// Mark records content as seen without reporting a change.
func (f *Fingerprinter) Mark(content []byte) {
	hash := f.Hash(content)

	f.mu.Lock()
	defer f.mu.Unlock()

	f.last = hash
	f.seen = true
}

// Reset forgets the last seen content.
func (f *Fingerprinter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.last = ""
	f.seen = false
}
