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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazycopy/lazycopy/internal/policy"
	"github.com/lazycopy/lazycopy/internal/policyconfig"
)

type fixedLoader struct{ cfg policyconfig.Config }

func (f fixedLoader) Load() (policyconfig.Config, error) { return f.cfg, nil }

func startServer(t *testing.T) (*Server, string) {
	t.Helper()
	store := policy.New(fixedLoader{cfg: policyconfig.Default()})
	srv := NewServer(store, func(net.Conn) policy.ProcessID { return 42 })
	require.NoError(t, srv.Listen("tcp", "127.0.0.1:0"))
	t.Cleanup(func() { srv.Close() })
	return srv, srv.listener.Addr().String()
}

func TestServerRejectsSecondClient(t *testing.T) {
	srv, addr := startServer(t)

	first, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { first.Close() })

	// Give the accept loop a moment to register the first connection.
	for i := 0; i < 100 && !srv.Connected(); i++ {
		time.Sleep(time.Millisecond)
	}
	require.True(t, srv.Connected())

	second, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { second.Close() })

	buf := make([]byte, 1)
	second.SetReadDeadline(time.Now().Add(time.Second))
	_, err = second.Read(buf)
	assert.Error(t, err)
}

func TestOpenRemoteCloseRemoteRoundTrip(t *testing.T) {
	srv, addr := startServer(t)

	opened := make(chan string, 1)
	closed := make(chan uint64, 1)
	client, err := Dial("tcp", addr,
		func(path string) (uint64, error) {
			opened <- path
			return 99, nil
		},
		func(handle uint64) error {
			closed <- handle
			return nil
		})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	for i := 0; i < 100 && !srv.Connected(); i++ {
		time.Sleep(time.Millisecond)
	}
	require.True(t, srv.Connected())

	handle, err := srv.OpenRemote(context.Background(), `C:\remote\file.bin`, time.Second)
	require.NoError(t, err)
	assert.EqualValues(t, 99, handle)
	assert.Equal(t, `C:\remote\file.bin`, <-opened)

	err = srv.CloseRemote(context.Background(), handle, time.Second)
	require.NoError(t, err)
	assert.EqualValues(t, 99, <-closed)
}

func TestOpenRemoteWithNoClientIsDisconnected(t *testing.T) {
	srv, _ := startServer(t)

	_, err := srv.OpenRemote(context.Background(), "x", time.Second)

	assert.Error(t, err)
}

func TestClientGetVersionCommand(t *testing.T) {
	_, addr := startServer(t)

	client, err := Dial("tcp", addr, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	reply, err := client.SendCommand(MsgGetVersion, nil, time.Second)
	require.NoError(t, err)

	v, err := DecodeVersion(reply.Data)
	require.NoError(t, err)
	assert.EqualValues(t, 1, v.Major)
}

func TestClientSetReportRateCommand(t *testing.T) {
	_, addr := startServer(t)

	client, err := Dial("tcp", addr, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	reply, err := client.SendCommand(MsgSetReportRate, EncodeUint32(500), time.Second)
	require.NoError(t, err)

	status, err := DecodeUint32(reply.Data)
	require.NoError(t, err)
	assert.EqualValues(t, 0, status)
}

func TestClientFetchRemoteIsRejected(t *testing.T) {
	_, addr := startServer(t)

	client, err := Dial("tcp", addr, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	reply, err := client.SendCommand(MsgFetchRemote, nil, time.Second)
	require.NoError(t, err)

	status, err := DecodeUint32(reply.Data)
	require.NoError(t, err)
	assert.EqualValues(t, 1, status)
}
