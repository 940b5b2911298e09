package mailer

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/acra-collector/internal/notify"
)

func testMessage() notify.Message {
	return notify.Message{
		From:    "crashes@example.com",
		To:      "dev@example.com",
		Subject: "New crash of com.example.app (1.4.2)",
		Body:    "A new crash happened:\r\n\r\n- Report ID: r-1\r\n",
	}
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Port: 587}, nil)
	require.Error(t, err)

	_, err = New(Config{Host: "smtp.example.com", Port: 0}, nil)
	require.Error(t, err)

	m, err := New(Config{Host: "smtp.example.com", Port: 587}, nil)
	require.NoError(t, err)
	assert.Equal(t, defaultTimeout, m.cfg.Timeout)
}

func TestBuildMessage(t *testing.T) {
	t.Parallel()

	mm, err := buildMessage(testMessage())
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = mm.WriteTo(&buf)
	require.NoError(t, err)

	raw := buf.String()
	assert.Contains(t, raw, "Subject: New crash of com.example.app (1.4.2)")
	assert.Contains(t, raw, "crashes@example.com")
	assert.Contains(t, raw, "dev@example.com")
	assert.Contains(t, raw, "A new crash happened:")
}

func TestBuildMessageRejectsMalformedAddresses(t *testing.T) {
	t.Parallel()

	msg := testMessage()
	msg.From = "not an address"
	_, err := buildMessage(msg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, notify.ErrInvalidMessage))

	msg = testMessage()
	msg.To = "@@"
	_, err = buildMessage(msg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, notify.ErrInvalidMessage))
}

func TestSendInvalidMessageSkipsNetwork(t *testing.T) {
	t.Parallel()

	m, err := New(Config{Host: "127.0.0.1", Port: closedPort(t), Timeout: time.Second}, zap.NewNop())
	require.NoError(t, err)

	msg := testMessage()
	msg.From = ""
	err = m.Send(context.Background(), msg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, notify.ErrInvalidMessage))
	assert.False(t, errors.Is(err, ErrDelivery))
}

func TestSendUnreachableServer(t *testing.T) {
	t.Parallel()

	m, err := New(Config{
		Host:     "127.0.0.1",
		Port:     closedPort(t),
		Username: "user",
		Password: "pass",
		Timeout:  time.Second,
	}, zap.NewNop())
	require.NoError(t, err)

	err = m.Send(context.Background(), testMessage())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDelivery))
	assert.False(t, errors.Is(err, notify.ErrInvalidMessage))
}

func TestSendRequiresTLS(t *testing.T) {
	t.Parallel()

	srv := newFakeSMTPServer(t, nil)
	m, err := New(Config{
		Host:     "127.0.0.1",
		Port:     srv.port,
		Username: "user",
		Password: "pass",
		Timeout:  2 * time.Second,
	}, zap.NewNop())
	require.NoError(t, err)

	err = m.Send(context.Background(), testMessage())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDelivery))
	assert.Empty(t, srv.data(), "message data must not be sent without TLS")
}

func TestSendOverSTARTTLS(t *testing.T) {
	t.Parallel()

	certs := httptest.NewTLSServer(http.NotFoundHandler())
	t.Cleanup(certs.Close)
	roots := x509.NewCertPool()
	roots.AddCert(certs.Certificate())

	srv := newFakeSMTPServer(t, &tls.Config{Certificates: certs.TLS.Certificates})
	m, err := New(Config{
		Host:      "127.0.0.1",
		Port:      srv.port,
		Username:  "user",
		Password:  "pass",
		Timeout:   2 * time.Second,
		TLSConfig: &tls.Config{RootCAs: roots, ServerName: "127.0.0.1", MinVersion: tls.VersionTLS12},
	}, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, m.Send(context.Background(), testMessage()))

	require.True(t, srv.tlsSeen.Load(), "STARTTLS was not negotiated")
	assert.Equal(t, "\x00user\x00pass", srv.credentials())
	commands := srv.commands()
	assert.Contains(t, commands, "MAIL FROM:<crashes@example.com>")
	assert.Contains(t, commands, "RCPT TO:<dev@example.com>")
	data := srv.data()
	assert.Contains(t, data, "Subject: New crash of com.example.app (1.4.2)")
	assert.Contains(t, data, "- Report ID: r-1")
}

// closedPort returns a local port with nothing listening on it.
func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

// fakeSMTPServer speaks just enough SMTP to accept one message. STARTTLS
// is only advertised when a TLS config is given.
type fakeSMTPServer struct {
	port    int
	tls     *tls.Config
	tlsSeen atomic.Bool

	mu   sync.Mutex
	cmds []string
	auth string
	msgs []string
}

func newFakeSMTPServer(t *testing.T, cfg *tls.Config) *fakeSMTPServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	srv := &fakeSMTPServer{port: ln.Addr().(*net.TCPAddr).Port, tls: cfg}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go srv.serve(conn)
		}
	}()
	return srv
}

func (s *fakeSMTPServer) serve(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)
	reply := func(lines ...string) {
		for _, l := range lines {
			_, _ = w.WriteString(l + "\r\n")
		}
		_ = w.Flush()
	}
	secure := false

	reply("220 localhost ESMTP test")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		cmd := strings.ToUpper(line)
		s.record(line)
		switch {
		case strings.HasPrefix(cmd, "EHLO"):
			if s.tls != nil && !secure {
				reply("250-localhost", "250-STARTTLS", "250 AUTH PLAIN")
			} else {
				reply("250-localhost", "250 AUTH PLAIN")
			}
		case strings.HasPrefix(cmd, "HELO"):
			reply("250 localhost")
		case cmd == "STARTTLS" && s.tls != nil:
			reply("220 ready to start TLS")
			tlsConn := tls.Server(conn, s.tls)
			if err := tlsConn.Handshake(); err != nil {
				return
			}
			conn = tlsConn
			r = bufio.NewReader(conn)
			w = bufio.NewWriter(conn)
			secure = true
			s.tlsSeen.Store(true)
		case strings.HasPrefix(cmd, "AUTH PLAIN "):
			decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(line[len("AUTH PLAIN "):]))
			if err != nil {
				reply("501 bad encoding")
				continue
			}
			s.mu.Lock()
			s.auth = string(decoded)
			s.mu.Unlock()
			reply("235 authenticated")
		case cmd == "DATA":
			reply("354 go ahead")
			var body strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				body.WriteString(l)
			}
			s.mu.Lock()
			s.msgs = append(s.msgs, body.String())
			s.mu.Unlock()
			reply("250 queued")
		case cmd == "QUIT":
			reply("221 bye")
			return
		default:
			reply("250 OK")
		}
	}
}

func (s *fakeSMTPServer) record(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cmds = append(s.cmds, line)
}

func (s *fakeSMTPServer) commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.cmds...)
}

func (s *fakeSMTPServer) credentials() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auth
}

func (s *fakeSMTPServer) data() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.msgs, "")
}
