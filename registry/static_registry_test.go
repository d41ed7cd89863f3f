package registry

import "testing"

func TestStaticRegisterAndDiscover(t *testing.T) {
	reg := NewStaticRegistry()

	inst1 := BrokerInstance{NodeID: 1, Addr: "127.0.0.1:9092", Weight: 10}
	inst2 := BrokerInstance{NodeID: 2, Addr: "127.0.0.1:9093", Weight: 5}

	if err := reg.Register(DefaultCluster, inst1, 10); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(DefaultCluster, inst2, 10); err != nil {
		t.Fatal(err)
	}

	brokers, err := reg.Discover(DefaultCluster)
	if err != nil {
		t.Fatal(err)
	}
	if len(brokers) != 2 {
		t.Fatalf("expect 2 brokers, got %d", len(brokers))
	}

	if err := reg.Deregister(DefaultCluster, inst1.Addr); err != nil {
		t.Fatal(err)
	}

	brokers, err = reg.Discover(DefaultCluster)
	if err != nil {
		t.Fatal(err)
	}
	if len(brokers) != 1 {
		t.Fatalf("expect 1 broker after deregister, got %d", len(brokers))
	}
	if brokers[0].Addr != inst2.Addr {
		t.Fatalf("expect %s, got %s", inst2.Addr, brokers[0].Addr)
	}
}

func TestStaticDiscoverIsolation(t *testing.T) {
	reg := NewStaticRegistry()
	reg.Register("a", BrokerInstance{Addr: ":9092"}, 10)

	brokers, _ := reg.Discover("a")
	brokers[0].Addr = "mutated"

	again, _ := reg.Discover("a")
	if again[0].Addr != ":9092" {
		t.Fatalf("Discover must return a copy, got %s", again[0].Addr)
	}
}

func TestStaticDiscoverUnknownCluster(t *testing.T) {
	reg := NewStaticRegistry()
	brokers, err := reg.Discover("nope")
	if err != nil {
		t.Fatal(err)
	}
	if len(brokers) != 0 {
		t.Fatalf("expect no brokers, got %d", len(brokers))
	}
}
