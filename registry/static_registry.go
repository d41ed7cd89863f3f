package registry

import "sync"

// StaticRegistry serves a fixed broker list from memory. It backs
// single-broker deployments that run without etcd, and tests.
type StaticRegistry struct {
	mu      sync.Mutex
	brokers map[string][]BrokerInstance
}

func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{brokers: make(map[string][]BrokerInstance)}
}

func (s *StaticRegistry) Register(cluster string, instance BrokerInstance, ttl int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.brokers[cluster] = append(s.brokers[cluster], instance)
	return nil
}

func (s *StaticRegistry) Deregister(cluster string, addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.brokers[cluster]
	for i, inst := range list {
		if inst.Addr == addr {
			s.brokers[cluster] = append(list[:i], list[i+1:]...)
			break
		}
	}
	return nil
}

func (s *StaticRegistry) Discover(cluster string) ([]BrokerInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]BrokerInstance, len(s.brokers[cluster]))
	copy(out, s.brokers[cluster])
	return out, nil
}

// Watch on a static registry never fires: membership only changes through
// explicit Register/Deregister calls by the same process.
func (s *StaticRegistry) Watch(cluster string) <-chan []BrokerInstance {
	return make(chan []BrokerInstance)
}
