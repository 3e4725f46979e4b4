package workflow

import (
	"fmt"
	"strings"

	"github.com/bloodlink/bloodlink/internal/domain/process"
)

const (
	PolicyPermissive = "permissive"
	PolicyForward    = "forward"
)

// TransitionPolicy is an explicit edge table over process states.
type TransitionPolicy struct {
	name  string
	edges map[process.Process]map[process.Process]bool
}

// ParsePolicy builds the named policy. An empty name means permissive.
func ParsePolicy(name string) (*TransitionPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", PolicyPermissive:
		return Permissive(), nil
	case PolicyForward:
		return Forward(), nil
	default:
		return nil, fmt.Errorf("unknown workflow policy %q", name)
	}
}

// Permissive lets every state move to every state, including itself.
func Permissive() *TransitionPolicy {
	return build(PolicyPermissive, func(from, to process.Process) bool { return true })
}

// Forward allows only moves later in the order. Skipping states is fine.
func Forward() *TransitionPolicy {
	return build(PolicyForward, func(from, to process.Process) bool { return to.Rank() > from.Rank() })
}

func build(name string, allow func(from, to process.Process) bool) *TransitionPolicy {
	edges := make(map[process.Process]map[process.Process]bool, len(process.Ordered))
	for _, from := range process.Ordered {
		edges[from] = make(map[process.Process]bool)
		for _, to := range process.Ordered {
			if allow(from, to) {
				edges[from][to] = true
			}
		}
	}
	return &TransitionPolicy{name: name, edges: edges}
}

func (p *TransitionPolicy) Name() string {
	return p.name
}

// Allowed reports whether from -> to is an edge. Records stuck in an
// unknown or legacy state may move to any valid state.
func (p *TransitionPolicy) Allowed(from, to process.Process) bool {
	if !to.Valid() {
		return false
	}
	out, ok := p.edges[from]
	if !ok {
		return true
	}
	return out[to]
}

// Targets lists the states reachable from one state, in canonical order.
func (p *TransitionPolicy) Targets(from process.Process) []process.Process {
	var out []process.Process
	for _, to := range process.Ordered {
		if p.Allowed(from, to) {
			out = append(out, to)
		}
	}
	return out
}
