// Package loadbalance chooses one live instance out of a candidate set.
// The redirector calls Pick once per decision and again after the
// anti-flapping guard rejects a candidate.
//
// Three strategies are implemented:
//   - WeightedRandom:  uniform unless a weight function is supplied
//   - RoundRobin:      cycles through the candidates in order
//   - ConsistentHash:  the same key keeps landing on the same instance
package loadbalance

import "errors"

var ErrNoInstances = errors.New("loadbalance: no instances available")

// Balancer picks an instance name from instances. key identifies the
// caller for strategies that want affinity; others ignore it.
// Implementations must be goroutine-safe.
type Balancer interface {
	Pick(instances []string, key string) (string, error)

	// Name returns the strategy name (for logging).
	Name() string
}
