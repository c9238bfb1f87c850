package cli

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nhirsama/Goster-Ring/src/inter"
	"github.com/nhirsama/Goster-Ring/src/protocol"
	"github.com/nhirsama/Goster-Ring/src/relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run 执行一次命令并返回标准输出
func run(t *testing.T, args ...string) []byte {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	require.NoError(t, cmd.Execute(), "goster-ring %v", args)
	return out.Bytes()
}

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("RING_STORAGE_DSN", filepath.Join(dir, "ring.db"))
	t.Setenv("RING_SYNC_DAYS", "3")
	t.Setenv("RING_EXPORT_DIR", dir)
	return dir
}

func TestSyncRunsExportReplay(t *testing.T) {
	dir := setupEnv(t)
	capture := filepath.Join(dir, "ring.cap")
	t.Setenv("RING_RELAY_CAPTURE", capture)

	var rep syncReport
	require.NoError(t, json.Unmarshal(run(t, "sync", "--simulate"), &rep))
	assert.NotEmpty(t, rep.RunID)
	assert.Empty(t, rep.Failed)
	assert.Positive(t, rep.Samples)
	assert.Positive(t, rep.Counts["heart_rate"])
	assert.Positive(t, rep.Counts["sleep"])
	require.NotNil(t, rep.Battery)
	assert.Equal(t, 87, rep.Battery.Level)

	var runs []inter.SyncRun
	require.NoError(t, json.Unmarshal(run(t, "runs"), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, rep.RunID, runs[0].ID)
	assert.Equal(t, inter.RunDone, runs[0].Status)
	assert.Equal(t, rep.Samples, runs[0].Samples)

	out := filepath.Join(dir, "hr.parquet")
	var exp struct {
		Path string `json:"path"`
		Rows int    `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(run(t, "export", "--domain", "heart_rate", "-o", out, "--from", "2000-01-01", "--to", "2100-01-01"), &exp))
	assert.Equal(t, out, exp.Path)
	assert.Equal(t, rep.Counts["heart_rate"], exp.Rows)
	_, err := os.Stat(out)
	require.NoError(t, err)

	// 抓包离线回放应得到与在线同步相同的样本
	var replay decodeReport
	require.NoError(t, json.Unmarshal(run(t, "replay", capture), &replay))
	assert.Equal(t, rep.Samples, replay.Samples)
	for d, n := range rep.Counts {
		assert.Equal(t, n, replay.Counts[d], d)
	}
	assert.Nil(t, replay.Snapshot)
}

func TestDecode(t *testing.T) {
	setupEnv(t)
	battery, err := protocol.Frame([]byte{byte(inter.CmdBattery), 55, 1})
	require.NoError(t, err)

	var rep decodeReport
	require.NoError(t, json.Unmarshal(run(t, "decode", hex.EncodeToString(battery)), &rep))
	assert.Equal(t, 1, rep.Packets)
	assert.Zero(t, rep.Samples)
	require.Len(t, rep.Events, 1)
	assert.Equal(t, "battery", rep.Events[0].Kind)
}

func TestDecode_BadHex(t *testing.T) {
	setupEnv(t)
	cmd := NewRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"decode", "zz"})
	assert.Error(t, cmd.Execute())
}

func TestSend(t *testing.T) {
	setupEnv(t)

	var rep sendReply
	require.NoError(t, json.Unmarshal(run(t, "send", "battery", "--simulate"), &rep))
	assert.Equal(t, "battery", rep.Command)
	require.NotNil(t, rep.Battery)
	assert.Equal(t, 87, rep.Battery.Level)

	rep = sendReply{}
	require.NoError(t, json.Unmarshal(run(t, "send", "hr-start", "--simulate"), &rep))
	require.NotNil(t, rep.HeartRate)
	assert.Equal(t, 72, rep.HeartRate.BPM)

	cmd := NewRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"send", "dance", "--simulate"})
	assert.Error(t, cmd.Execute())
}

func TestParseDomains(t *testing.T) {
	ds, err := parseDomains("")
	require.NoError(t, err)
	assert.Len(t, ds, 7)

	ds, err = parseDomains("sleep, spo2")
	require.NoError(t, err)
	assert.Equal(t, []inter.Domain{inter.DomainSleep, inter.DomainSpO2}, ds)

	_, err = parseDomains("steps")
	assert.Error(t, err)
}

func TestRingID(t *testing.T) {
	host, peer := net.Pipe()
	c := relay.NewClient(host, relay.WithIdleTimeout(0))
	t.Cleanup(func() {
		_ = peer.Close()
		_ = c.Close()
	})
	go func() { _ = relay.WriteHello(peer, "C0:FF:EE:00:00:01", time.Now()) }()
	require.NoError(t, c.Hello(time.Second))
	assert.Equal(t, "C0:FF:EE:00:00:01", ringID("ring-1", c))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	dialed, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer dialed.Close()
	accepted, err := ln.Accept()
	require.NoError(t, err)
	anon := relay.NewClient(accepted, relay.WithIdleTimeout(0))
	defer anon.Close()
	assert.Equal(t, "ring-1@127.0.0.1", ringID("ring-1", anon))
}
