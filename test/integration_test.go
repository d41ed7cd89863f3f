package test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mini-kafka/broker"
	"mini-kafka/client"
	"mini-kafka/loadbalance"
	"mini-kafka/middleware"
	"mini-kafka/protocol"
	"mini-kafka/registry"
)

// startBroker starts a broker on an ephemeral port and registers it.
func startBroker(t *testing.T, reg registry.Registry, nodeID int32, mws ...middleware.Middleware) string {
	t.Helper()

	svr := broker.NewServer(zerolog.Nop())
	svr.SetNodeID(nodeID)
	for _, mw := range mws {
		svr.Use(mw)
	}
	go svr.Serve("tcp", "127.0.0.1:0", "", nil)

	deadline := time.Now().Add(2 * time.Second)
	for svr.Addr() == nil {
		if time.Now().After(deadline) {
			t.Fatal("broker did not start listening")
		}
		time.Sleep(5 * time.Millisecond)
	}
	addr := svr.Addr().String()
	if err := reg.Register(registry.DefaultCluster, registry.BrokerInstance{
		NodeID: nodeID,
		Addr:   addr,
		Weight: 10,
	}, 10); err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() { svr.Shutdown(3 * time.Second) })
	return addr
}

// Full chain: Client → Registry → Balancer → Transport → Protocol →
// Middleware → echo handler.
func TestFullIntegration(t *testing.T) {
	reg := registry.NewStaticRegistry()
	startBroker(t, reg, 1,
		middleware.RateLimit(1000, 100),
		middleware.Timeout(time.Second),
		middleware.Logging(zerolog.Nop()),
	)

	cli := client.New(reg, &loadbalance.RoundRobinBalancer{}, registry.DefaultCluster, 2, zerolog.Nop())
	defer cli.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i := 0; i < 20; i++ {
		resp, err := cli.Call(ctx, protocol.APIKeyAPIVersions, 4)
		if err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
		if resp.MessageSize != 0 {
			t.Fatalf("request %d: expect message size 0, got %d", i, resp.MessageSize)
		}
	}
}

func TestMultiBroker(t *testing.T) {
	reg := registry.NewStaticRegistry()
	startBroker(t, reg, 1)
	startBroker(t, reg, 2)

	brokers, err := reg.Discover(registry.DefaultCluster)
	if err != nil {
		t.Fatal(err)
	}
	if len(brokers) != 2 {
		t.Fatalf("expect 2 registered brokers, got %d", len(brokers))
	}

	cli := client.New(reg, &loadbalance.RoundRobinBalancer{}, registry.DefaultCluster, 1, zerolog.Nop())
	defer cli.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Round robin alternates brokers; every request must come back echoed.
	for i := 0; i < 10; i++ {
		if _, err := cli.Call(ctx, protocol.APIKeyFetch, 12); err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
	}
}

func TestBrokerShutdownRemovesRegistration(t *testing.T) {
	reg := registry.NewStaticRegistry()

	svr := broker.NewServer(zerolog.Nop())
	go func() {
		// Register through Serve so Shutdown deregisters symmetrically.
		svr.Serve("tcp", "127.0.0.1:0", "127.0.0.1:9092", reg)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for svr.Addr() == nil {
		if time.Now().After(deadline) {
			t.Fatal("broker did not start listening")
		}
		time.Sleep(5 * time.Millisecond)
	}

	brokers, _ := reg.Discover(registry.DefaultCluster)
	if len(brokers) != 1 {
		t.Fatalf("expect 1 registered broker, got %d", len(brokers))
	}

	if err := svr.Shutdown(2 * time.Second); err != nil {
		t.Fatal(err)
	}

	brokers, _ = reg.Discover(registry.DefaultCluster)
	if len(brokers) != 0 {
		t.Fatalf("expect deregistration on shutdown, got %d brokers", len(brokers))
	}
}
