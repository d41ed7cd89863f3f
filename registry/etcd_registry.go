// Package registry provides broker membership tracking for mini-kafka.
//
// The etcd implementation plays the role the metadata quorum plays in the
// real protocol family: brokers announce themselves under
//
//	Key:   /mini-kafka/brokers/{cluster}/{addr}
//	Value: JSON-encoded BrokerInstance
//
// Registration uses TTL-based leases: if a broker crashes, its lease expires
// and the entry disappears on its own, so clients never discover a dead
// broker for longer than the TTL.
package registry

import (
	"context"
	"encoding/json"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const keyPrefix = "/mini-kafka/brokers/"

// EtcdRegistry implements Registry on etcd v3.
type EtcdRegistry struct {
	client *clientv3.Client // etcd client, safe for concurrent use
}

// NewEtcdRegistry connects to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	return &EtcdRegistry{client: c}, nil
}

// Register announces a broker under the cluster prefix with a TTL lease and
// starts background KeepAlive renewal. The lease id stays a local variable:
// storing it on the struct races when several brokers share one registry.
func (r *EtcdRegistry) Register(cluster string, instance BrokerInstance, ttl int64) error {
	ctx := context.TODO()

	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(instance)
	if err != nil {
		return err
	}

	_, err = r.client.Put(ctx, keyPrefix+cluster+"/"+instance.Addr, string(val), clientv3.WithLease(lease.ID))
	if err != nil {
		return err
	}

	ch, err := r.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return err
	}

	// Drain KeepAlive responses so the channel never fills up
	go func() {
		for range ch {
		}
	}()
	return nil
}

// Deregister removes a broker entry. Called during graceful shutdown before
// the listener closes, so clients stop routing to the broker first.
func (r *EtcdRegistry) Deregister(cluster string, addr string) error {
	_, err := r.client.Delete(context.TODO(), keyPrefix+cluster+"/"+addr)
	return err
}

// Discover returns all brokers currently registered for the cluster.
func (r *EtcdRegistry) Discover(cluster string) ([]BrokerInstance, error) {
	resp, err := r.client.Get(context.TODO(), keyPrefix+cluster+"/", clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	instances := make([]BrokerInstance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var instance BrokerInstance
		if err := json.Unmarshal(kv.Value, &instance); err != nil {
			continue // Skip malformed entries
		}
		instances = append(instances, instance)
	}
	return instances, nil
}

// Watch emits the full broker list whenever membership changes (new broker,
// deregistration, lease expiry). Re-fetching the list on each event is
// simpler than folding individual watch events into local state.
func (r *EtcdRegistry) Watch(cluster string) <-chan []BrokerInstance {
	ctx := context.TODO()
	ch := make(chan []BrokerInstance, 1)

	go func() {
		watchChan := r.client.Watch(ctx, keyPrefix+cluster+"/", clientv3.WithPrefix())
		for range watchChan {
			instances, _ := r.Discover(cluster)
			ch <- instances
		}
	}()

	return ch
}

// Close releases the underlying etcd client.
func (r *EtcdRegistry) Close() error {
	return r.client.Close()
}
