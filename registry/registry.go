package registry

// DefaultCluster is the cluster name used when none is configured.
const DefaultCluster = "mini-kafka"

// BrokerInstance describes one broker of a cluster as seen by clients.
type BrokerInstance struct {
	NodeID  int32  // Broker node id, unique within a cluster
	Addr    string // Advertised host:port clients dial
	Weight  int    // Weight for load balancing
	Version string
}

// Registry tracks which brokers currently belong to a cluster.
type Registry interface {
	Register(cluster string, instance BrokerInstance, ttl int64) error
	Deregister(cluster string, addr string) error
	Discover(cluster string) ([]BrokerInstance, error)
	Watch(cluster string) <-chan []BrokerInstance
}
