package session

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// NewID returns a fresh session identifier.
func NewID() string {
	return uuid.NewString()
}

// Generator numbers the utterances of one session.
type Generator struct {
	sessionId string
	counter   uint64
}

func NewGenerator(sessionId string) *Generator {
	return &Generator{sessionId: sessionId}
}

func (g *Generator) Next() string {
	n := atomic.AddUint64(&g.counter, 1)
	return fmt.Sprintf("%s-utt-%d", g.sessionId, n)
}

// Count is the number of ids handed out so far.
func (g *Generator) Count() uint64 {
	return atomic.LoadUint64(&g.counter)
}
