package loadbalance

import (
	"fmt"
	"sync/atomic"

	"mini-kafka/registry"
)

// RoundRobinBalancer cycles through brokers in order. The atomic counter
// keeps Pick lock-free and goroutine-safe.
type RoundRobinBalancer struct {
	counter int64
}

func (b *RoundRobinBalancer) Pick(brokers []registry.BrokerInstance) (*registry.BrokerInstance, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no brokers available")
	}
	index := atomic.AddInt64(&b.counter, 1) % int64(len(brokers))
	return &brokers[index], nil
}

func (b *RoundRobinBalancer) Name() string {
	return "RoundRobin"
}
