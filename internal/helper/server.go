// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package helper

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/lazycopy/lazycopy/internal/logger"
	"github.com/lazycopy/lazycopy/internal/lzerr"
	"github.com/lazycopy/lazycopy/internal/policy"
	"github.com/lazycopy/lazycopy/internal/policyconfig"
)

// State is the channel's connection state machine:
// Closed -> Listening -> (Connected | Listening) -> Closed.
type State int

const (
	StateClosed State = iota
	StateListening
	StateConnected
)

// pendingReply tracks one outstanding server-initiated notification
// awaiting the client's correlated reply.
type pendingReply struct {
	ch chan Envelope
}

// Server brokers the single-client demand helper channel. It accepts at
// most one connected client at a time; while connected, that client's
// identity is added to the policy store's trusted-process set and
// removed again on disconnect.
type Server struct {
	listener net.Listener
	policy   *policy.Store

	mu      sync.Mutex
	state   State
	conn    net.Conn
	pending map[uuid.UUID]pendingReply

	identify func(net.Conn) policy.ProcessID
}

// NewServer constructs a Server bound to pol. identify extracts the
// connecting process's identity from the raw connection (e.g. via
// SO_PEERCRED on unix sockets); tests may pass a stub.
func NewServer(pol *policy.Store, identify func(net.Conn) policy.ProcessID) *Server {
	return &Server{
		policy:   pol,
		pending:  make(map[uuid.UUID]pendingReply),
		identify: identify,
	}
}

// Listen opens the well-known channel and starts accepting. At most one
// client is connected at a time; a connection attempt made while one is
// connected is closed immediately.
func (s *Server) Listen(network, address string) error {
	l, err := net.Listen(network, address)
	if err != nil {
		return errors.Wrap(err, "listening on helper channel")
	}
	s.mu.Lock()
	s.listener = l
	s.state = StateListening
	s.mu.Unlock()

	go s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return // listener closed
		}

		s.mu.Lock()
		if s.state == StateConnected {
			s.mu.Unlock()
			conn.Close()
			continue
		}
		s.conn = conn
		s.state = StateConnected
		id := policy.ProcessID(0)
		if s.identify != nil {
			id = s.identify(conn)
		}
		s.policy.AddTrustedProcess(id)
		s.mu.Unlock()

		go s.serveConn(conn, id)
	}
}

func (s *Server) serveConn(conn net.Conn, clientID policy.ProcessID) {
	defer func() {
		s.mu.Lock()
		s.conn = nil
		s.state = StateListening
		s.mu.Unlock()
		s.policy.RemoveTrustedProcess(clientID)
		conn.Close()
	}()

	for {
		env, err := Decode(conn)
		if err != nil {
			return
		}
		s.handleMessage(conn, env)
	}
}

// handleMessage dispatches one message received from the client. Every
// command carries a 16-byte correlation id prefix, mirroring the prefix
// notifications carry in the other direction, so a single reader
// goroutine per side can always tell a reply from a fresh request.
func (s *Server) handleMessage(conn net.Conn, env Envelope) {
	if env.Type == MsgReply {
		s.deliverReply(env)
		return
	}
	if len(env.Data) < 16 {
		return
	}
	var id uuid.UUID
	copy(id[:], env.Data[:16])
	payload := env.Data[16:]

	switch env.Type {
	case MsgGetVersion:
		s.replyPayload(conn, id, EncodeVersion(VersionReply{Major: 1, Minor: 0}))
	case MsgReloadPolicy:
		s.replyStatus(conn, id, s.policy.ReloadFromConfig())
	case MsgSetOperationMode:
		v, err := DecodeUint32(payload)
		if err == nil {
			s.policy.SetMode(policyconfig.Mode(v))
		}
		s.replyStatus(conn, id, err)
	case MsgSetReportRate:
		v, err := DecodeUint32(payload)
		if err == nil {
			s.policy.SetReportRate(v)
		}
		s.replyStatus(conn, id, err)
	case MsgSetWatchPaths:
		paths, err := DecodeNulSeparatedUTF16Paths(payload)
		if err == nil {
			s.policy.ClearWatchPaths()
			for _, p := range paths {
				if addErr := s.policy.AddWatchPath(p); addErr != nil {
					err = addErr
					break
				}
			}
		}
		s.replyStatus(conn, id, err)
	case MsgFetchRemote:
		// Reserved opcode: rejected rather than guessed at.
		s.replyStatus(conn, id, lzerr.ErrInvalidInput)
	default:
		s.replyStatus(conn, id, lzerr.ErrInvalidInput)
	}
}

func (s *Server) replyPayload(conn net.Conn, id uuid.UUID, payload []byte) {
	idBytes, _ := id.MarshalBinary()
	data := append(append([]byte{}, idBytes...), payload...)
	if err := Encode(conn, Envelope{Type: MsgReply, Data: data}); err != nil {
		logger.Warnf("helper: writing reply: %v", err)
	}
}

func (s *Server) replyStatus(conn net.Conn, id uuid.UUID, err error) {
	status := EncodeUint32(0)
	if err != nil {
		status = EncodeUint32(1)
	}
	s.replyPayload(conn, id, status)
}

// notify sends a correlated notification to the connected client and
// blocks for its reply, up to timeout. Returns lzerr.ErrPortDisconnected
// if no client is connected.
func (s *Server) notify(ctx context.Context, msgType MessageType, payload []byte, timeout time.Duration) (Envelope, error) {
	s.mu.Lock()
	conn := s.conn
	if conn == nil {
		s.mu.Unlock()
		return Envelope{}, lzerr.ErrPortDisconnected
	}
	id := uuid.New()
	replyCh := make(chan Envelope, 1)
	s.pending[id] = pendingReply{ch: replyCh}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	idBytes, _ := id.MarshalBinary()
	data := append(append([]byte{}, idBytes...), payload...)
	if err := Encode(conn, Envelope{Type: msgType, Data: data}); err != nil {
		return Envelope{}, errors.Wrap(err, "sending notification")
	}

	select {
	case reply := <-replyCh:
		return reply, nil
	case <-time.After(timeout):
		return Envelope{}, lzerr.ErrTimeout
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	}
}

func (s *Server) deliverReply(env Envelope) {
	if len(env.Data) < 16 {
		return
	}
	var id uuid.UUID
	copy(id[:], env.Data[:16])

	s.mu.Lock()
	pr, ok := s.pending[id]
	s.mu.Unlock()
	if !ok {
		return
	}
	pr.ch <- Envelope{Type: env.Type, Data: env.Data[16:]}
}

// OpenRemote asks the connected client to open path and returns the
// handle it reports, or ErrPortDisconnected if no client is connected.
func (s *Server) OpenRemote(ctx context.Context, path string, timeout time.Duration) (uint64, error) {
	reply, err := s.notify(ctx, MsgOpenRemote, encodeUTF16NulTerminated(path), timeout)
	if err != nil {
		return 0, err
	}
	return DecodeUint64(reply.Data)
}

// CloseRemote asks the connected client to close a previously opened
// handle.
func (s *Server) CloseRemote(ctx context.Context, handle uint64, timeout time.Duration) error {
	_, err := s.notify(ctx, MsgCloseRemote, EncodeUint64(handle), timeout)
	return err
}

// Connected reports whether a client is currently attached.
func (s *Server) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateConnected
}

// Close tears the channel down, disconnecting any client.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateClosed
	if s.conn != nil {
		s.conn.Close()
	}
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}
