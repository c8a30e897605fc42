package fetch

import "sync/atomic"

// DefaultUserAgent identifies grounding fetches to site operators and in
// robots.txt group matching.
const DefaultUserAgent = "grounder/1.0 (+https://github.com/FranksOps/grounder)"

// agents rotates through a fixed set of User-Agent strings.
type agents struct {
	list    []string
	counter atomic.Uint64
}

func newAgents(list []string) *agents {
	if len(list) == 0 {
		list = []string{DefaultUserAgent}
	}
	copied := make([]string, len(list))
	copy(copied, list)
	return &agents{list: copied}
}

// next returns the next User-Agent round-robin.
func (a *agents) next() string {
	idx := a.counter.Add(1) - 1
	return a.list[idx%uint64(len(a.list))]
}

// primary is the User-Agent used for robots.txt group matching.
func (a *agents) primary() string { return a.list[0] }
