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
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/lazycopy/lazycopy/internal/lzerr"
)

// OpenRemoteFunc and CloseRemoteFunc let a Client answer the server's
// notifications without depending on any concrete remote-source type.
type OpenRemoteFunc func(path string) (handle uint64, err error)
type CloseRemoteFunc func(handle uint64) error

// Client is the single permitted connection to a Server: the reference
// implementation of the out-of-band helper process.
//
// Every message on the wire (command or notification) carries a
// correlation id, so the single connection's one reader goroutine can
// demux server-initiated notifications from replies to this client's
// own outstanding commands.
type Client struct {
	conn net.Conn

	mu      sync.Mutex
	pending map[uuid.UUID]chan Envelope

	openRemote  OpenRemoteFunc
	closeRemote CloseRemoteFunc
}

// Dial connects to a running Server and starts answering its
// notifications with the supplied callbacks.
func Dial(network, address string, open OpenRemoteFunc, close CloseRemoteFunc) (*Client, error) {
	conn, err := net.Dial(network, address)
	if err != nil {
		return nil, errors.Wrap(err, "dialing helper channel")
	}
	c := &Client{
		conn:        conn,
		pending:     make(map[uuid.UUID]chan Envelope),
		openRemote:  open,
		closeRemote: close,
	}
	go c.serve()
	return c, nil
}

func (c *Client) serve() {
	for {
		env, err := Decode(c.conn)
		if err != nil {
			return
		}
		if len(env.Data) < 16 {
			continue
		}
		var id uuid.UUID
		copy(id[:], env.Data[:16])
		payload := env.Data[16:]

		if env.Type == MsgReply {
			c.mu.Lock()
			ch, ok := c.pending[id]
			c.mu.Unlock()
			if ok {
				ch <- Envelope{Type: env.Type, Data: payload}
			}
			continue
		}
		c.handleNotification(id, env.Type, payload)
	}
}

func (c *Client) handleNotification(id uuid.UUID, msgType MessageType, payload []byte) {
	var reply []byte
	switch msgType {
	case MsgOpenRemote:
		path, _, err := decodeUTF16NulTerminated(payload)
		var handle uint64
		if err == nil && c.openRemote != nil {
			handle, _ = c.openRemote(path)
		}
		reply = EncodeUint64(handle)
	case MsgCloseRemote:
		handle, err := DecodeUint64(payload)
		if err == nil && c.closeRemote != nil {
			_ = c.closeRemote(handle)
		}
		reply = EncodeUint32(0)
	default:
		return
	}

	idBytes, _ := id.MarshalBinary()
	c.writeEnvelope(Envelope{Type: MsgReply, Data: append(idBytes, reply...)})
}

func (c *Client) writeEnvelope(e Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Encode(c.conn, e)
}

// SendCommand issues a client->core command and blocks for its reply,
// up to timeout.
func (c *Client) SendCommand(msgType MessageType, payload []byte, timeout time.Duration) (Envelope, error) {
	id := uuid.New()
	replyCh := make(chan Envelope, 1)

	c.mu.Lock()
	c.pending[id] = replyCh
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	idBytes, _ := id.MarshalBinary()
	if err := c.writeEnvelope(Envelope{Type: msgType, Data: append(idBytes, payload...)}); err != nil {
		return Envelope{}, err
	}

	select {
	case reply := <-replyCh:
		return reply, nil
	case <-time.After(timeout):
		return Envelope{}, lzerr.ErrTimeout
	}
}

// Close disconnects the client.
func (c *Client) Close() error {
	return c.conn.Close()
}
