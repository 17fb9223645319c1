package epoll

import "testing"

func TestActionConstructors(t *testing.T) {
	if a := None(); a.Kind != ActionNone || a.Payload != nil {
		t.Fatalf("want zero action, got %+v", a)
	}

	if a := Reply([]byte("x")); a.Kind != ActionReply || string(a.Payload) != "x" {
		t.Fatalf("want reply action with payload x, got %+v", a)
	}

	if a := Close([]byte("bye")); a.Kind != ActionClose || string(a.Payload) != "bye" {
		t.Fatalf("want close action with payload bye, got %+v", a)
	}
}
