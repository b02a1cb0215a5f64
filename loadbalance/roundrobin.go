package loadbalance

import "sync/atomic"

// RoundRobinBalancer walks the candidates in order using an atomic counter.
// The live set is re-read for every decision, so the cycle follows whatever
// order the caller passes in.
type RoundRobinBalancer struct {
	counter atomic.Uint64
}

func (b *RoundRobinBalancer) Pick(instances []string, _ string) (string, error) {
	if len(instances) == 0 {
		return "", ErrNoInstances
	}
	n := b.counter.Add(1) - 1
	return instances[n%uint64(len(instances))], nil
}

func (b *RoundRobinBalancer) Name() string {
	return "RoundRobin"
}
