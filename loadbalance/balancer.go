// Package loadbalance provides broker selection strategies for clients that
// discover more than one broker.
//
//   - RoundRobin:      equal-capacity brokers, evens the connection load
//   - WeightedRandom:  heterogeneous brokers (different capacity)
//   - ConsistentHash:  key affinity — the same key always lands on the same
//     broker while membership is stable
package loadbalance

import "mini-kafka/registry"

// Balancer selects one broker from the discovered list. Pick is called on
// every request, so implementations must be goroutine-safe.
type Balancer interface {
	Pick(brokers []registry.BrokerInstance) (*registry.BrokerInstance, error)

	// Name identifies the strategy in logs.
	Name() string
}
