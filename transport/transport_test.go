package transport_test

import (
	"sync"
	"testing"
	"time"

	"github.com/cvsouth/tsp-go/transport"
)

func TestSendReceiveRoundTrip(t *testing.T) {
	srv := transport.New(nil)
	defer srv.Close()

	received := make(chan []byte, 1)
	ln, err := srv.Listen("127.0.0.1:0", func(message []byte) {
		received <- message
	})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	client := transport.New(nil)
	defer client.Close()

	endpoint := "tsp://" + ln.Addr().String()
	if err := client.Send(endpoint, []byte("hello over tcp")); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case msg := <-received:
		if string(msg) != "hello over tcp" {
			t.Fatalf("received %q, want %q", msg, "hello over tcp")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestSendRejectsEncryptedSchemes(t *testing.T) {
	client := transport.New(nil)
	defer client.Close()

	for _, scheme := range []string{"tls", "quic", "https"} {
		if err := client.Send(scheme+"://example.com:1234", []byte("x")); err == nil {
			t.Fatalf("scheme %q: expected error, got nil", scheme)
		}
	}
}

func TestSendRejectsUnknownScheme(t *testing.T) {
	client := transport.New(nil)
	defer client.Close()

	if err := client.Send("ftp://example.com:21", []byte("x")); err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}

func TestMultipleMessagesReuseConnection(t *testing.T) {
	srv := transport.New(nil)
	defer srv.Close()

	var mu sync.Mutex
	var got []string
	ln, err := srv.Listen("127.0.0.1:0", func(message []byte) {
		mu.Lock()
		got = append(got, string(message))
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	client := transport.New(nil)
	defer client.Close()

	endpoint := "tsp://" + ln.Addr().String()
	for i := 0; i < 3; i++ {
		if err := client.Send(endpoint, []byte("msg")); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n == 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("got %d messages, want 3", n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
