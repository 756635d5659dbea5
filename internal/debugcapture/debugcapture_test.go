package debugcapture

import (
	"context"
	"testing"
)

func TestStore_DisabledIsNoop(t *testing.T) {
	s, err := New(Config{Enabled: false}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.IsEnabled() {
		t.Fatal("expected disabled store")
	}
	if err := s.Put(context.Background(), Archive{RequestID: "req-1"}); err != nil {
		t.Fatalf("Put on disabled store should be a no-op, got: %v", err)
	}
}
