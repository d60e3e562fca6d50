package client_test

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/hioload/netrt/api"
	"github.com/hioload/netrt/client"
	"github.com/hioload/netrt/config"
	"github.com/hioload/netrt/server"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func TestClientConnectSendReceive(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ReactorCount = 1
	cfg.WorkerCount = 2

	s := server.New(server.WithConfig(cfg))
	serverReceived := make(chan []byte, 1)
	s.SetOnClientConnected(func(api.ConnectionInformation) {})
	s.SetOnMessage(func(connID uint64, payload []byte) {
		got := append([]byte(nil), payload...)
		s.SendData(connID, got) // echo
		select {
		case serverReceived <- got:
		default:
		}
	})

	port := freePort(t)
	if !s.StartIPv4("127.0.0.1", port) {
		t.Fatal("StartIPv4 failed")
	}
	defer s.Stop()

	c := client.New()
	defer c.Disconnect()

	var mu sync.Mutex
	clientReceived := make(chan []byte, 1)
	connectedCh := make(chan struct{}, 1)
	c.SetOnConnected(func(api.ConnectionInformation) {
		select {
		case connectedCh <- struct{}{}:
		default:
		}
	})
	c.SetOnMessage(func(payload []byte) {
		mu.Lock()
		defer mu.Unlock()
		select {
		case clientReceived <- append([]byte(nil), payload...):
		default:
		}
	})

	if !c.ConnectIPv4("127.0.0.1", port) {
		t.Fatal("ConnectIPv4 failed")
	}

	select {
	case <-connectedCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for client OnConnected")
	}

	if !c.IsConnected() {
		t.Fatal("expected IsConnected to report true after connect")
	}

	if !c.SendData([]byte("hello-server"), 0) {
		t.Fatal("SendData failed")
	}

	select {
	case got := <-serverReceived:
		if string(got) != "hello-server" {
			t.Fatalf("server observed %q, want %q", got, "hello-server")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the server to observe the message")
	}

	select {
	case got := <-clientReceived:
		if string(got) != "hello-server" {
			t.Fatalf("client observed echo %q, want %q", got, "hello-server")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the client to observe the echo")
	}
}

func TestClientSendAsyncInvokesCallback(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ReactorCount = 1
	cfg.WorkerCount = 1

	s := server.New(server.WithConfig(cfg))
	s.SetOnClientConnected(func(api.ConnectionInformation) {})
	s.SetOnMessage(func(uint64, []byte) {})

	port := freePort(t)
	if !s.StartIPv4("127.0.0.1", port) {
		t.Fatal("StartIPv4 failed")
	}
	defer s.Stop()

	c := client.New()
	defer c.Disconnect()

	connectedCh := make(chan struct{}, 1)
	c.SetOnConnected(func(api.ConnectionInformation) {
		select {
		case connectedCh <- struct{}{}:
		default:
		}
	})
	if !c.ConnectIPv4("127.0.0.1", port) {
		t.Fatal("ConnectIPv4 failed")
	}
	select {
	case <-connectedCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for connect")
	}

	done := make(chan bool, 1)
	c.SendAsync([]byte("async-payload"), func(ok bool, sizeSent int) {
		if sizeSent != len("async-payload") {
			t.Errorf("sizeSent = %d, want %d", sizeSent, len("async-payload"))
		}
		done <- ok
	})

	select {
	case ok := <-done:
		if !ok {
			t.Fatal("expected SendAsync callback to report success")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for SendAsync callback")
	}
}

func TestClientDisconnectReportedToServer(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ReactorCount = 1
	cfg.WorkerCount = 1

	s := server.New(server.WithConfig(cfg))
	disconnected := make(chan struct{}, 1)
	s.SetOnClientConnected(func(api.ConnectionInformation) {})
	s.SetOnClientDisconnected(func(uint64) {
		select {
		case disconnected <- struct{}{}:
		default:
		}
	})

	port := freePort(t)
	if !s.StartIPv4("127.0.0.1", port) {
		t.Fatal("StartIPv4 failed")
	}
	defer s.Stop()

	c := client.New()
	connectedCh := make(chan struct{}, 1)
	c.SetOnConnected(func(api.ConnectionInformation) {
		select {
		case connectedCh <- struct{}{}:
		default:
		}
	})
	if !c.ConnectIPv4("127.0.0.1", port) {
		t.Fatal("ConnectIPv4 failed")
	}
	select {
	case <-connectedCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for connect")
	}

	c.Disconnect()

	select {
	case <-disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the server to observe the disconnect")
	}
}

func TestGracefulShutdownDrainsBeforeClosing(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ReactorCount = 1
	cfg.WorkerCount = 1

	s := server.New(server.WithConfig(cfg))
	serverReceived := make(chan []byte, 1)
	s.SetOnClientConnected(func(api.ConnectionInformation) {})
	s.SetOnMessage(func(connID uint64, payload []byte) {
		select {
		case serverReceived <- append([]byte(nil), payload...):
		default:
		}
	})

	port := freePort(t)
	if !s.StartIPv4("127.0.0.1", port) {
		t.Fatal("StartIPv4 failed")
	}
	defer s.Stop()

	c := client.New()
	connectedCh := make(chan struct{}, 1)
	c.SetOnConnected(func(api.ConnectionInformation) {
		select {
		case connectedCh <- struct{}{}:
		default:
		}
	})
	if !c.ConnectIPv4("127.0.0.1", port) {
		t.Fatal("ConnectIPv4 failed")
	}
	select {
	case <-connectedCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for connect")
	}

	if !c.SendData([]byte("drain-me"), 0) {
		t.Fatal("SendData failed")
	}

	c.GracefulShutdown(2000)

	select {
	case got := <-serverReceived:
		if string(got) != "drain-me" {
			t.Fatalf("server observed %q, want %q", got, "drain-me")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the server to observe the drained message")
	}

	if c.SendData([]byte("too-late"), 0) {
		t.Fatal("expected SendData to reject sends once shutdown has begun")
	}
}
