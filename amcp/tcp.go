package amcp

import (
	"bufio"
	"fmt"
	"net"
	"sync"

	"github.com/charmbracelet/log"
)

// TCPServer is the line-oriented protocol front-end: one command per line,
// replies terminated by CRLF.
type TCPServer struct {
	srv *Server

	ln net.Listener

	mu    sync.Mutex
	conns map[net.Conn]struct{}

	closeOnce sync.Once
	done      chan struct{}

	logger *log.Logger
}

func NewTCPServer(srv *Server) *TCPServer {
	return &TCPServer{
		srv:    srv,
		conns:  make(map[net.Conn]struct{}),
		done:   make(chan struct{}),
		logger: log.WithPrefix("amcp"),
	}
}

// Listen starts accepting connections on addr (e.g. ":5250").
func (t *TCPServer) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("amcp: listen %s: %w", addr, err)
	}
	t.ln = ln
	t.logger.Info("listening", "addr", addr)
	go t.acceptLoop()
	return nil
}

func (t *TCPServer) acceptLoop() {
	for {
		conn, err := t.ln.Accept()
		if err != nil {
			select {
			case <-t.done:
			default:
				t.logger.Error("accept failed", "err", err)
			}
			return
		}
		t.mu.Lock()
		t.conns[conn] = struct{}{}
		t.mu.Unlock()
		go t.serve(conn)
	}
}

func (t *TCPServer) serve(conn net.Conn) {
	defer func() {
		t.mu.Lock()
		delete(t.conns, conn)
		t.mu.Unlock()
		_ = conn.Close()
	}()

	t.logger.Debug("client connected", "remote", conn.RemoteAddr())
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		resp := t.srv.Dispatch(line)
		if _, err := fmt.Fprintf(conn, "%s\r\n", resp); err != nil {
			return
		}
	}
}

// Close stops listening and drops every client.
func (t *TCPServer) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
		if t.ln != nil {
			_ = t.ln.Close()
		}
		t.mu.Lock()
		for conn := range t.conns {
			_ = conn.Close()
		}
		t.mu.Unlock()
	})
	return nil
}
