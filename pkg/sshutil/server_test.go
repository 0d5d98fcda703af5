package sshutil

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"net"
	"sync"
	"testing"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

// testReply is the canned result of one exec request on the test server.
type testReply struct {
	stdout string
	stderr string
	status uint32
}

// testServer is a minimal in-process SSH server: password auth, exec
// requests answered from a table, and the sftp subsystem backed by the
// local filesystem.
type testServer struct {
	t        *testing.T
	listener net.Listener
	password string
	replies  map[string]testReply

	mu       sync.Mutex
	commands []string
}

func newTestServer(t *testing.T, password string, replies map[string]testReply) *testServer {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)

	config := &ssh.ServerConfig{
		PasswordCallback: func(conn ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if string(pass) == password && conn.User() == "deploy" {
				return nil, nil
			}
			return nil, errPasswordRejected
		},
	}
	config.AddHostKey(signer)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &testServer{t: t, listener: listener, password: password, replies: replies}
	go s.serve(config)
	t.Cleanup(func() { listener.Close() })
	return s
}

var errPasswordRejected = stringError("password rejected")

func (s *testServer) addr() string { return s.listener.Addr().String() }

func (s *testServer) executed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

func (s *testServer) serve(config *ssh.ServerConfig) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handleConn(conn, config)
	}
}

func (s *testServer) handleConn(conn net.Conn, config *ssh.ServerConfig) {
	_, chans, reqs, err := ssh.NewServerConn(conn, config)
	if err != nil {
		conn.Close()
		return
	}
	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			_ = newChannel.Reject(ssh.UnknownChannelType, "unsupported")
			continue
		}
		channel, requests, err := newChannel.Accept()
		if err != nil {
			continue
		}
		go s.handleSession(channel, requests)
	}
}

func (s *testServer) handleSession(channel ssh.Channel, requests <-chan *ssh.Request) {
	defer channel.Close()

	for req := range requests {
		switch req.Type {
		case "exec":
			var payload struct{ Command string }
			_ = ssh.Unmarshal(req.Payload, &payload)
			_ = req.Reply(true, nil)

			s.mu.Lock()
			s.commands = append(s.commands, payload.Command)
			s.mu.Unlock()

			reply, ok := s.replies[payload.Command]
			if !ok {
				reply = testReply{stderr: "command not found\n", status: 127}
			}
			_, _ = channel.Write([]byte(reply.stdout))
			_, _ = channel.Stderr().Write([]byte(reply.stderr))

			status := make([]byte, 4)
			binary.BigEndian.PutUint32(status, reply.status)
			_, _ = channel.SendRequest("exit-status", false, status)
			return
		case "subsystem":
			var payload struct{ Name string }
			_ = ssh.Unmarshal(req.Payload, &payload)
			if payload.Name != "sftp" {
				_ = req.Reply(false, nil)
				continue
			}
			_ = req.Reply(true, nil)

			server, err := sftp.NewServer(channel)
			if err != nil {
				return
			}
			_ = server.Serve()
			return
		default:
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
		}
	}
}
