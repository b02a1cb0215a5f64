package loadbalance

import (
	"fmt"
	"hash/crc32"
	"slices"
	"sort"
	"strings"
	"sync"
)

const defaultReplicas = 100

// ConsistentHashBalancer maps a key (usually the caller host) onto a hash
// ring of the live instances, so a caller keeps going to the same instance
// while the live set is stable.
//
//	Hash Ring:
//	                  0
//	                ╱   ╲
//	              ╱       ╲
//	         B ●               ● A
//	           │    key ◆──►   │   (clockwise to nearest node → A)
//	         C ●               ● A' (virtual node of A)
//	              ╲       ╱
//	                ╲   ╱
//
// Rings are cached per live set. A redirector that re-picks after its guard
// rejects a candidate alternates between the full set and the set minus that
// candidate, and both rings stay warm.
type ConsistentHashBalancer struct {
	replicas int

	mu     sync.Mutex
	rings  map[string]*hashRing // by sorted, joined live set
	builds int
}

type hashRing struct {
	points []uint32
	nodes  map[uint32]string
}

// maxRings bounds the cache; it is reset when full, since live sets only
// churn when instances come and go.
const maxRings = 16

// NewConsistentHashBalancer uses 100 virtual nodes per instance.
func NewConsistentHashBalancer() *ConsistentHashBalancer {
	return &ConsistentHashBalancer{replicas: defaultReplicas}
}

func (b *ConsistentHashBalancer) Pick(instances []string, key string) (string, error) {
	if len(instances) == 0 {
		return "", ErrNoInstances
	}

	b.mu.Lock()
	r := b.ring(instances)
	b.mu.Unlock()

	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(r.points), func(i int) bool {
		return r.points[i] >= hash
	})
	if idx == len(r.points) {
		idx = 0
	}
	return r.nodes[r.points[idx]], nil
}

func (b *ConsistentHashBalancer) ring(instances []string) *hashRing {
	sorted := slices.Clone(instances)
	slices.Sort(sorted)
	members := strings.Join(sorted, "\x00")
	if r, ok := b.rings[members]; ok {
		return r
	}

	if b.rings == nil || len(b.rings) >= maxRings {
		b.rings = make(map[string]*hashRing)
	}
	r := &hashRing{
		points: make([]uint32, 0, len(sorted)*b.replicas),
		nodes:  make(map[uint32]string, len(sorted)*b.replicas),
	}
	for _, inst := range sorted {
		for i := 0; i < b.replicas; i++ {
			hash := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", inst, i)))
			r.points = append(r.points, hash)
			r.nodes[hash] = inst
		}
	}
	slices.Sort(r.points)
	b.rings[members] = r
	b.builds++
	return r
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}
