package testfixtures

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// IDGenerator yields deterministic identifiers.
type IDGenerator struct {
	mu      sync.Mutex
	prefix  string
	uuids   bool
	counter uint64
}

// NewIDGenerator yields prefix-1, prefix-2, ... An empty prefix uses "id".
func NewIDGenerator(prefix string) *IDGenerator {
	if prefix == "" {
		prefix = "id"
	}
	return &IDGenerator{prefix: prefix}
}

// NewUUIDGenerator yields name-based UUIDs derived from prefix and a counter,
// so runs are repeatable while ids keep the production shape.
func NewUUIDGenerator(prefix string) *IDGenerator {
	g := NewIDGenerator(prefix)
	g.uuids = true
	return g
}

var fixtureNamespace = uuid.MustParse("6f1d7a52-6c7e-4b8f-9a43-0d2a3f1c9b10")

// Next returns the next identifier in the sequence.
func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter++
	if g.uuids {
		return uuid.NewSHA1(fixtureNamespace, []byte(g.prefix+"/"+strconv.FormatUint(g.counter, 10))).String()
	}
	return fmt.Sprintf("%s-%d", g.prefix, g.counter)
}

// NextFunc exposes Next for constructor injection.
func (g *IDGenerator) NextFunc() func() string {
	if g == nil {
		return func() string { return "" }
	}
	return g.Next
}

// Reset restarts the sequence.
func (g *IDGenerator) Reset() {
	g.mu.Lock()
	g.counter = 0
	g.mu.Unlock()
}
