package loadbalance

import (
	"fmt"
	"hash/crc32"
	"sort"

	"mini-kafka/registry"
)

// ConsistentHashBalancer maps keys to brokers on a hash ring, the same idiom
// the protocol family uses to pin a partition key to a broker. The same key
// always maps to the same broker until membership changes.
//
// Each broker is placed on the ring as 100 virtual nodes; without them a
// handful of brokers clusters on the ring and the load skews.
type ConsistentHashBalancer struct {
	replicas int
	ring     []uint32 // Sorted hash points
	nodes    map[uint32]*registry.BrokerInstance
}

func NewConsistentHashBalancer() *ConsistentHashBalancer {
	return &ConsistentHashBalancer{
		replicas: 100,
		nodes:    make(map[uint32]*registry.BrokerInstance),
	}
}

// Add places a broker onto the ring. Virtual node i hashes "{addr}#{i}".
func (b *ConsistentHashBalancer) Add(broker *registry.BrokerInstance) {
	for i := 0; i < b.replicas; i++ {
		hash := crc32.ChecksumIEEE(fmt.Appendf(nil, "%s#%d", broker.Addr, i))
		b.ring = append(b.ring, hash)
		b.nodes[hash] = broker
	}
	// Ring stays sorted for the binary search in PickKey
	sort.Slice(b.ring, func(i, j int) bool {
		return b.ring[i] < b.ring[j]
	})
}

// PickKey finds the broker owning the key: the first ring point clockwise
// from the key's hash, wrapping to the start when the hash is past the end.
//
// Key-based selection does not fit the Balancer interface; callers that want
// affinity use the balancer directly.
func (b *ConsistentHashBalancer) PickKey(key string) (*registry.BrokerInstance, error) {
	if len(b.ring) == 0 {
		return nil, fmt.Errorf("no brokers on the ring")
	}

	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(b.ring), func(i int) bool {
		return b.ring[i] >= hash
	})
	if idx == len(b.ring) {
		idx = 0
	}

	return b.nodes[b.ring[idx]], nil
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}
