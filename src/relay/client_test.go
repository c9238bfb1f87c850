package relay

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/nhirsama/Goster-Ring/src/inter"
	"github.com/nhirsama/Goster-Ring/src/protocol"
	"github.com/nhirsama/Goster-Ring/src/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type packet struct {
	ch   inter.Channel
	data []byte
}

func pipeClient(t *testing.T) (*Client, net.Conn, <-chan packet) {
	t.Helper()
	host, relay := net.Pipe()
	c := NewClient(host, WithIdleTimeout(0))
	out := make(chan packet, 16)
	c.OnPacket(func(ch inter.Channel, p []byte) { out <- packet{ch, p} })
	t.Cleanup(func() {
		_ = relay.Close()
		_ = c.Close()
	})
	return c, relay, out
}

func writeFrame(t *testing.T, w net.Conn, f inter.Frame) {
	t.Helper()
	buf, err := NewCodec().Pack(f)
	require.NoError(t, err)
	_, err = w.Write(buf)
	require.NoError(t, err)
}

func TestClient_Uplink(t *testing.T) {
	_, relay, out := pipeClient(t)

	battery, _ := protocol.Frame([]byte{byte(inter.CmdBattery), 55, 1})
	writeFrame(t, relay, inter.Frame{Uplink: false, Payload: []byte{0x01}})
	writeFrame(t, relay, inter.Frame{Uplink: true, Channel: inter.ChannelCommand, Payload: battery})

	select {
	case p := <-out:
		assert.Equal(t, inter.ChannelCommand, p.ch)
		assert.Equal(t, battery, p.data)
	case <-time.After(time.Second):
		t.Fatal("uplink frame not delivered")
	}
	select {
	case p := <-out:
		t.Fatalf("downlink echo delivered: % X", p.data)
	default:
	}
}

func TestClient_SendPacksDownlink(t *testing.T) {
	c, relay, _ := pipeClient(t)

	errCh := make(chan error, 1)
	go func() { errCh <- c.Send(protocol.RequestBigData(inter.DataSleep)) }()

	f, err := NewCodec().Unpack(relay)
	require.NoError(t, err)
	require.NoError(t, <-errCh)

	assert.False(t, f.Uplink)
	assert.Equal(t, inter.ChannelBigData, f.Channel)
	assert.Equal(t, protocol.RequestBigData(inter.DataSleep), f.Payload)
}

func TestClient_SkipsCorruptPayload(t *testing.T) {
	_, relay, out := pipeClient(t)

	bad, err := NewCodec().Pack(inter.Frame{Uplink: true, Payload: []byte{0x03, 0x10}})
	require.NoError(t, err)
	bad[len(bad)-5] ^= 0xFF
	_, err = relay.Write(bad)
	require.NoError(t, err)
	writeFrame(t, relay, inter.Frame{Uplink: true, Payload: []byte{0x03, 0x20}})

	select {
	case p := <-out:
		assert.Equal(t, []byte{0x03, 0x20}, p.data)
	case <-time.After(time.Second):
		t.Fatal("frame after corrupt payload not delivered")
	}
}

func TestClient_BadMagicBreaksStream(t *testing.T) {
	c, relay, _ := pipeClient(t)

	_, err := relay.Write(bytes.Repeat([]byte{0xAA}, int(inter.RelayHeaderSize)))
	require.NoError(t, err)

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("read loop still running")
	}
	assert.ErrorIs(t, c.Err(), ErrBadMagic)
	assert.ErrorIs(t, c.Send(protocol.ReadBattery()), inter.ErrTransportClosed)
}

func TestClient_CloseWithoutReading(t *testing.T) {
	host, relay := net.Pipe()
	defer relay.Close()
	c := NewClient(host)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestRecorder_Capture(t *testing.T) {
	sim := transport.NewSimulator()
	var buf bytes.Buffer
	rec := NewRecorder(sim, &buf, WithClock(func() time.Time { return time.UnixMilli(1718841600000) }))

	got := make(chan []byte, 1)
	rec.OnPacket(func(_ inter.Channel, p []byte) { got <- p })
	require.NoError(t, rec.Send(protocol.ReadBattery()))

	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("no reply through recorder")
	}
	require.NoError(t, rec.Close())
	require.Equal(t, 2, rec.Frames())

	var frames []inter.Frame
	n, err := ReadCapture(&buf, func(f inter.Frame) error {
		frames = append(frames, f)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.False(t, frames[0].Uplink)
	assert.Equal(t, protocol.ReadBattery(), frames[0].Payload)
	assert.True(t, frames[1].Uplink)
	assert.Equal(t, byte(87), frames[1].Payload[1])
	assert.Equal(t, int64(1718841600000), FrameTime(frames[1]).UnixMilli())
}

func TestReadCapture_Truncated(t *testing.T) {
	buf, err := NewCodec().Pack(inter.Frame{Uplink: true, Payload: []byte{0x03, 0x50}})
	require.NoError(t, err)

	n, err := ReadCapture(bytes.NewReader(append(buf, buf[:7]...)), func(inter.Frame) error { return nil })
	assert.Equal(t, 1, n)
	assert.Error(t, err)
}

func TestClient_Hello(t *testing.T) {
	host, relay := net.Pipe()
	c := NewClient(host, WithIdleTimeout(0))
	t.Cleanup(func() {
		_ = relay.Close()
		_ = c.Close()
	})

	go func() { _ = WriteHello(relay, "C0:FF:EE:00:00:01", time.Now()) }()
	require.NoError(t, c.Hello(time.Second))
	assert.Equal(t, "C0:FF:EE:00:00:01", c.DeviceID())
}

func TestClient_HelloMissing(t *testing.T) {
	host, relay := net.Pipe()
	c := NewClient(host, WithIdleTimeout(0))
	t.Cleanup(func() {
		_ = relay.Close()
		_ = c.Close()
	})

	require.NoError(t, c.Hello(50*time.Millisecond))
	assert.Empty(t, c.DeviceID())

	// 超时没有读到任何字节，流仍然对齐
	out := make(chan []byte, 1)
	c.OnPacket(func(_ inter.Channel, p []byte) { out <- p })
	writeFrame(t, relay, inter.Frame{Uplink: true, Payload: []byte{0x03, 0x40}})
	select {
	case p := <-out:
		assert.Equal(t, []byte{0x03, 0x40}, p)
	case <-time.After(time.Second):
		t.Fatal("uplink after missing hello not delivered")
	}
}

func TestClient_HelloKeepsFirstFrame(t *testing.T) {
	host, relay := net.Pipe()
	c := NewClient(host, WithIdleTimeout(0))
	t.Cleanup(func() {
		_ = relay.Close()
		_ = c.Close()
	})

	battery, _ := protocol.Frame([]byte{byte(inter.CmdBattery), 55, 1})
	buf, err := NewCodec().Pack(inter.Frame{Uplink: true, Channel: inter.ChannelCommand, Payload: battery})
	require.NoError(t, err)
	go func() { _, _ = relay.Write(buf) }()
	require.NoError(t, c.Hello(time.Second))
	assert.Empty(t, c.DeviceID())

	out := make(chan []byte, 1)
	c.OnPacket(func(_ inter.Channel, p []byte) { out <- p })
	select {
	case p := <-out:
		assert.Equal(t, battery, p)
	case <-time.After(time.Second):
		t.Fatal("first frame lost during hello")
	}
}
