package crawler

import (
	"math/rand/v2"
	"sync"
	"time"

	"linkcrawler/internal/config"
)

// AgentPicker chooses the User-Agent for one task. The same value is used
// for the robots check and for the request.
type AgentPicker interface {
	Pick() string
}

type FirstPicker struct {
	Agent string
}

func (p FirstPicker) Pick() string { return p.Agent }

// RandomPicker picks uniformly from a fixed list. Equal seeds give equal
// sequences.
type RandomPicker struct {
	mu     sync.Mutex
	rng    *rand.Rand
	agents []string
}

func NewRandomPicker(agents []string, seed uint64) *RandomPicker {
	return &RandomPicker{
		rng:    rand.New(rand.NewPCG(seed, seed>>1|1)),
		agents: append([]string(nil), agents...),
	}
}

func (p *RandomPicker) Pick() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.agents[p.rng.IntN(len(p.agents))]
}

// NewPicker builds the picker for a config policy. A zero seed is
// replaced by the current time.
func NewPicker(policy string, agents []string, seed uint64) AgentPicker {
	if policy == config.AgentFirst || len(agents) == 1 {
		return FirstPicker{Agent: agents[0]}
	}
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return NewRandomPicker(agents, seed)
}
