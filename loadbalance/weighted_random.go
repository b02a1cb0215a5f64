package loadbalance

import "math/rand/v2"

// WeightedRandomBalancer picks with probability proportional to Weight.
// A nil Weight, or one that returns a non-positive value, counts as 1.
type WeightedRandomBalancer struct {
	Weight func(instance string) int
}

// NewRandom returns a balancer that picks uniformly.
func NewRandom() *WeightedRandomBalancer {
	return &WeightedRandomBalancer{}
}

func (b *WeightedRandomBalancer) Pick(instances []string, _ string) (string, error) {
	if len(instances) == 0 {
		return "", ErrNoInstances
	}
	if b.Weight == nil {
		return instances[rand.IntN(len(instances))], nil
	}

	weights := make([]int, len(instances))
	total := 0
	for i, inst := range instances {
		weights[i] = max(b.Weight(inst), 1)
		total += weights[i]
	}

	r := rand.IntN(total)
	for i, w := range weights {
		r -= w
		if r < 0 {
			return instances[i], nil
		}
	}
	return instances[len(instances)-1], nil
}

func (b *WeightedRandomBalancer) Name() string {
	if b.Weight == nil {
		return "Random"
	}
	return "WeightedRandom"
}
