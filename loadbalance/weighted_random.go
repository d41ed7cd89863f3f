package loadbalance

import (
	"fmt"
	"math/rand"

	"mini-kafka/registry"
)

// WeightedRandomBalancer picks brokers with probability proportional to
// their weight. Brokers with zero or negative weight are treated as weight 1
// so an unweighted list degrades to uniform random.
type WeightedRandomBalancer struct{}

func (b *WeightedRandomBalancer) Pick(brokers []registry.BrokerInstance) (*registry.BrokerInstance, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no brokers available")
	}

	totalWeight := 0
	for _, broker := range brokers {
		totalWeight += effectiveWeight(broker)
	}

	r := rand.Intn(totalWeight)
	for i := range brokers {
		r -= effectiveWeight(brokers[i])
		if r < 0 {
			return &brokers[i], nil
		}
	}

	return nil, fmt.Errorf("unexpected error in weighted random selection")
}

func effectiveWeight(b registry.BrokerInstance) int {
	if b.Weight <= 0 {
		return 1
	}
	return b.Weight
}

func (b *WeightedRandomBalancer) Name() string {
	return "WeightedRandom"
}
