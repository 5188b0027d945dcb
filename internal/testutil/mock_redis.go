package testutil

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// MockRedis is a minimal RESP server for unit tests. It understands PING,
// INCR, GET and SET, answers everything else with an error reply, and counts
// open client connections.
type MockRedis struct {
	listener net.Listener
	open     atomic.Int64

	mu    sync.Mutex
	data  map[string]string
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// NewMockRedis starts a server on a random local port.
func NewMockRedis() *MockRedis {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		panic(fmt.Sprintf("testutil: failed to listen: %v", err))
	}

	m := &MockRedis{
		listener: l,
		data:     make(map[string]string),
		conns:    make(map[net.Conn]struct{}),
	}
	m.wg.Add(1)
	go m.accept()
	return m
}

// Addr returns the host:port to dial.
func (m *MockRedis) Addr() string {
	return m.listener.Addr().String()
}

// OpenConns returns the number of client connections not yet closed.
func (m *MockRedis) OpenConns() int {
	return int(m.open.Load())
}

// Close stops the server and drops all connections.
func (m *MockRedis) Close() {
	m.listener.Close()
	m.mu.Lock()
	for c := range m.conns {
		c.Close()
	}
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *MockRedis) accept() {
	defer m.wg.Done()
	for {
		conn, err := m.listener.Accept()
		if err != nil {
			return
		}
		m.open.Add(1)
		m.mu.Lock()
		m.conns[conn] = struct{}{}
		m.mu.Unlock()

		m.wg.Add(1)
		go m.serve(conn)
	}
}

func (m *MockRedis) serve(conn net.Conn) {
	defer func() {
		m.mu.Lock()
		delete(m.conns, conn)
		m.mu.Unlock()
		conn.Close()
		m.open.Add(-1)
		m.wg.Done()
	}()

	r := bufio.NewReader(conn)
	for {
		args, err := readCommand(r)
		if err != nil {
			return
		}
		if _, err := io.WriteString(conn, m.reply(args)); err != nil {
			return
		}
	}
}

func (m *MockRedis) reply(args []string) string {
	if len(args) == 0 {
		return "-ERR empty command\r\n"
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	arity := map[string]int{"INCR": 2, "GET": 2, "SET": 3}
	cmd := strings.ToUpper(args[0])
	if len(args) < arity[cmd] {
		return fmt.Sprintf("-ERR wrong number of arguments for '%s'\r\n", args[0])
	}

	switch cmd {
	case "PING":
		return "+PONG\r\n"
	case "INCR":
		n, _ := strconv.ParseInt(m.data[args[1]], 10, 64)
		n++
		m.data[args[1]] = strconv.FormatInt(n, 10)
		return fmt.Sprintf(":%d\r\n", n)
	case "SET":
		m.data[args[1]] = args[2]
		return "+OK\r\n"
	case "GET":
		v, ok := m.data[args[1]]
		if !ok {
			return "$-1\r\n"
		}
		return fmt.Sprintf("$%d\r\n%s\r\n", len(v), v)
	default:
		return fmt.Sprintf("-ERR unknown command '%s'\r\n", args[0])
	}
}

// readCommand reads one RESP array of bulk strings.
func readCommand(r *bufio.Reader) ([]string, error) {
	line, err := readLine(r)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(line, "*") {
		return nil, fmt.Errorf("expected array, got %q", line)
	}
	n, err := strconv.Atoi(line[1:])
	if err != nil {
		return nil, err
	}

	args := make([]string, 0, n)
	for range n {
		header, err := readLine(r)
		if err != nil {
			return nil, err
		}
		if !strings.HasPrefix(header, "$") {
			return nil, fmt.Errorf("expected bulk string, got %q", header)
		}
		size, err := strconv.Atoi(header[1:])
		if err != nil {
			return nil, err
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		args = append(args, string(buf[:size]))
	}
	return args, nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
