package registry

import (
	"context"
	"testing"
	"time"
)

// Needs a local etcd on the default port; skipped otherwise.
func TestEtcdRegisterAndDiscover(t *testing.T) {
	reg, err := NewEtcdRegistry([]string{"localhost:2379"})
	if err != nil {
		t.Fatal(err)
	}
	defer reg.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := reg.client.Status(ctx, "localhost:2379"); err != nil {
		t.Skipf("etcd not reachable: %v", err)
	}

	inst1 := BrokerInstance{NodeID: 1, Addr: "127.0.0.1:19092", Weight: 10, Version: "1.0"}
	inst2 := BrokerInstance{NodeID: 2, Addr: "127.0.0.1:19093", Weight: 5, Version: "1.0"}

	if err := reg.Register("test-cluster", inst1, 10); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register("test-cluster", inst2, 10); err != nil {
		t.Fatal(err)
	}

	brokers, err := reg.Discover("test-cluster")
	if err != nil {
		t.Fatal(err)
	}
	if len(brokers) != 2 {
		t.Fatalf("expect 2 brokers, got %d", len(brokers))
	}

	if err := reg.Deregister("test-cluster", inst1.Addr); err != nil {
		t.Fatal(err)
	}

	time.Sleep(100 * time.Millisecond)

	brokers, err = reg.Discover("test-cluster")
	if err != nil {
		t.Fatal(err)
	}
	if len(brokers) != 1 {
		t.Fatalf("expect 1 broker after deregister, got %d", len(brokers))
	}
	if brokers[0].Addr != inst2.Addr {
		t.Fatalf("expect %s, got %s", inst2.Addr, brokers[0].Addr)
	}

	// Cleanup
	reg.Deregister("test-cluster", inst2.Addr)
}
