package ssh

import (
	"bufio"
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"io"
	"net"
	"path"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

// execHandler decides what a non-scp exec request does. When block is true
// the output is written and the command then runs until the client closes
// the channel.
type execHandler func(cmd string) (status int, output string, block bool)

// testServer is an in-process SSH server that understands exec requests, the
// scp sink protocol and the sftp subsystem.
type testServer struct {
	addr       string
	hostSigner ssh.Signer

	password      string
	authorizedKey ssh.PublicKey
	handler       execHandler

	mu       sync.Mutex
	commands []string
	files    map[string][]byte
	sftp     sftp.Handlers
}

func newHostSigner(t *testing.T) ssh.Signer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)
	return signer
}

func startTestServer(t *testing.T, configure func(*testServer)) *testServer {
	t.Helper()

	s := &testServer{
		hostSigner: newHostSigner(t),
		password:   "s3cret",
		handler: func(string) (int, string, bool) {
			return 0, "", false
		},
		files: map[string][]byte{},
		sftp:  sftp.InMemHandler(),
	}
	if configure != nil {
		configure(s)
	}

	cfg := &ssh.ServerConfig{
		PasswordCallback: func(_ ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if s.password != "" && string(pass) == s.password {
				return nil, nil
			}
			return nil, errAccessDenied
		},
		PublicKeyCallback: func(_ ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if s.authorizedKey != nil && bytes.Equal(key.Marshal(), s.authorizedKey.Marshal()) {
				return nil, nil
			}
			return nil, errAccessDenied
		},
	}
	cfg.AddHostKey(s.hostSigner)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s.addr = ln.Addr().String()
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go s.handleConn(conn, cfg)
		}
	}()
	return s
}

type accessDenied struct{}

func (accessDenied) Error() string { return "access denied" }

var errAccessDenied = accessDenied{}

func (s *testServer) hostPort(t *testing.T) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(s.addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

func (s *testServer) file(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.files[name]
	return b, ok
}

func (s *testServer) seenCommands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

func (s *testServer) handleConn(raw net.Conn, cfg *ssh.ServerConfig) {
	_, chans, reqs, err := ssh.NewServerConn(raw, cfg)
	if err != nil {
		_ = raw.Close()
		return
	}
	go ssh.DiscardRequests(reqs)
	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			_ = newCh.Reject(ssh.UnknownChannelType, "")
			continue
		}
		ch, chReqs, err := newCh.Accept()
		if err != nil {
			continue
		}
		go s.handleSession(ch, chReqs)
	}
}

func (s *testServer) handleSession(ch ssh.Channel, reqs <-chan *ssh.Request) {
	for req := range reqs {
		switch req.Type {
		case "exec":
			var payload struct{ Command string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
				_ = req.Reply(false, nil)
				continue
			}
			_ = req.Reply(true, nil)
			closed := make(chan struct{})
			go func() {
				ssh.DiscardRequests(reqs)
				close(closed)
			}()
			s.exec(ch, payload.Command, closed)
			return
		case "subsystem":
			var payload struct{ Name string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil || payload.Name != "sftp" {
				_ = req.Reply(false, nil)
				continue
			}
			_ = req.Reply(true, nil)
			go ssh.DiscardRequests(reqs)
			server := sftp.NewRequestServer(ch, s.sftp)
			_ = server.Serve()
			_ = server.Close()
			return
		default:
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
		}
	}
}

// exec runs cmd on ch. closed is closed once the client closes the channel.
func (s *testServer) exec(ch ssh.Channel, cmd string, closed <-chan struct{}) {
	defer ch.Close()
	s.mu.Lock()
	s.commands = append(s.commands, cmd)
	s.mu.Unlock()

	if strings.HasPrefix(cmd, "scp ") {
		s.scpSink(ch, cmd)
		return
	}

	status, output, block := s.handler(cmd)
	_, _ = ch.Write([]byte(output))
	if block {
		// Stdin reaches EOF right away, so only the channel close ends the command.
		<-closed
		return
	}
	sendExitStatus(ch, status)
}

// scpSink implements the receiving side of "scp -t" for a single file.
func (s *testServer) scpSink(ch ssh.Channel, cmd string) {
	fields := strings.Fields(cmd)
	target := strings.Trim(fields[len(fields)-1], `"'`)
	br := bufio.NewReader(ch)

	_, _ = ch.Write([]byte{0})
	header, err := br.ReadString('\n')
	if err != nil || !strings.HasPrefix(header, "C") {
		sendExitStatus(ch, 1)
		return
	}
	parts := strings.Fields(header[1:])
	if len(parts) != 3 {
		sendExitStatus(ch, 1)
		return
	}
	size, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		sendExitStatus(ch, 1)
		return
	}
	name := parts[2]
	_, _ = ch.Write([]byte{0})

	data := make([]byte, size)
	if _, err := io.ReadFull(br, data); err != nil {
		sendExitStatus(ch, 1)
		return
	}
	_, _ = br.ReadByte()
	_, _ = ch.Write([]byte{0})

	dest := target
	if path.Base(target) != name {
		dest = path.Join(target, name)
	}
	s.mu.Lock()
	s.files[dest] = data
	s.mu.Unlock()

	sendExitStatus(ch, 0)
}

func sendExitStatus(ch ssh.Channel, status int) {
	_ = ch.CloseWrite()
	_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{uint32(status)}))
}
