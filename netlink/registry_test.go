package netlink

import (
	"errors"
	"testing"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	c, err := r.Register(RDMA_NL_IWCM, 100, "iwp0", "libiwpm")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Index != RDMA_NL_IWCM {
		t.Errorf("got index %d, want %d", c.Index, RDMA_NL_IWCM)
	}

	c.NextSeq()
	c.NextSeq()

	// Registering again keeps the counter going.
	again, err := r.Register(RDMA_NL_IWCM, 101, "iwp1", "libiwpm")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again != c || again.Seq() != 2 || again.IbdevName != "iwp1" || again.PID != 101 {
		t.Errorf("re-registration reset the client: %s seq=%d", again, again.Seq())
	}

	if got := r.Get(RDMA_NL_IWCM); got != c {
		t.Errorf("got %v from slot %d", got, RDMA_NL_IWCM)
	}
	if r.Get(0) != nil || r.Get(MaxClients) != nil || r.Get(RDMA_NL_NES) != nil {
		t.Errorf("unregistered slots must be empty")
	}

	if !r.Remove(RDMA_NL_IWCM) {
		t.Errorf("couldn't remove client")
	}
	if r.Get(RDMA_NL_IWCM) != nil || r.Remove(RDMA_NL_IWCM) {
		t.Errorf("client still registered after removal")
	}
}

func TestRegistryClientsAreIndependent(t *testing.T) {
	r := NewRegistry()

	// Kernel clients all talk to us from PID 0.
	iwcm, _ := r.Register(RDMA_NL_IWCM, 0, "iwcm0", "iwpmd")
	nes, _ := r.Register(RDMA_NL_NES, 0, "nes0", "iwpmd")

	if iwcm == nes || r.Len() != 2 {
		t.Fatalf("clients collapsed: %s and %s (%d registered)", iwcm, nes, r.Len())
	}

	iwcm.NextSeq()
	iwcm.NextSeq()
	if nes.Seq() != 0 {
		t.Errorf("clients share a sequence counter: nes at %d", nes.Seq())
	}
	if iwcm.IbdevName != "iwcm0" {
		t.Errorf("iwcm names overwritten: %s", iwcm)
	}
}

func TestRegistryInvalidIndex(t *testing.T) {
	r := NewRegistry()
	for _, idx := range []int{-1, 0, MaxClients} {
		if _, err := r.Register(idx, 1, "", ""); !errors.Is(err, ErrInvalidClient) {
			t.Errorf("index %d: got %v, want ErrInvalidClient", idx, err)
		}
	}

	for idx := 1; idx < MaxClients; idx++ {
		if _, err := r.Register(idx, uint32(idx), "", ""); err != nil {
			t.Fatalf("index %d: unexpected error: %v", idx, err)
		}
	}
	if r.Len() != MaxClients-1 {
		t.Errorf("got %d clients, want %d", r.Len(), MaxClients-1)
	}
}

func TestSequenceNumbersNeverRepeat(t *testing.T) {
	c := &Client{}
	seen := map[uint32]bool{}
	for i := 0; i < 1000; i++ {
		env, err := BuildRequest(RDMA_NL_GET_TYPE(RDMA_NL_IWCM, RDMA_NL_IWPM_MAPINFO), c)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if seen[env.Header.Sequence] {
			t.Fatalf("sequence number %d repeated", env.Header.Sequence)
		}
		seen[env.Header.Sequence] = true
	}
}
