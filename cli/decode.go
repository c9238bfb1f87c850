package cli

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nhirsama/Goster-Ring/src/datastore"
	"github.com/nhirsama/Goster-Ring/src/inter"
	"github.com/nhirsama/Goster-Ring/src/protocol"
	"github.com/nhirsama/Goster-Ring/src/relay"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// decodeEvent 解码过程中的非样本事件
type decodeEvent struct {
	Kind    string `json:"kind"`
	Domain  string `json:"domain,omitempty"`
	Outcome string `json:"outcome,omitempty"`
	Value   any    `json:"value,omitempty"`
}

type decodeReport struct {
	Packets  int            `json:"packets"`
	Samples  int            `json:"samples"`
	Counts   map[string]int `json:"counts"`
	Events   []decodeEvent  `json:"events,omitempty"`
	Snapshot *inter.Snapshot `json:"snapshot,omitempty"`
}

// offline 离线解码环境：路由器、游标和内存样本库
type offline struct {
	store  *datastore.MemoryStore
	cursor *inter.Cursor
	router *protocol.Router
	now    time.Time
	events []decodeEvent
}

func newOffline(now time.Time, log *zap.Logger) *offline {
	o := &offline{store: datastore.NewMemoryStore(), cursor: &inter.Cursor{}, now: now}
	o.cursor.Reset(now)
	o.router = protocol.NewRouter(o.store, o.cursor, protocol.Callbacks{
		OnComplete: func(c inter.Completion) {
			o.events = append(o.events, decodeEvent{Kind: "complete", Domain: c.Domain.String(), Outcome: c.Outcome.String()})
		},
		OnBattery:      func(b inter.BatteryInfo) { o.events = append(o.events, decodeEvent{Kind: "battery", Value: b}) },
		OnHeartRate:    func(m inter.ManualHeartRate) { o.events = append(o.events, decodeEvent{Kind: "heart_rate", Value: m}) },
		OnLiveActivity: func(l inter.LiveActivity) { o.events = append(o.events, decodeEvent{Kind: "activity", Value: l}) },
		OnPreferences:  func(p inter.Preferences) { o.events = append(o.events, decodeEvent{Kind: "preferences", Value: p}) },
		OnGoals:        func(g inter.Goals) { o.events = append(o.events, decodeEvent{Kind: "goals", Value: g}) },
		OnNewData: func(n inter.NotifyType) {
			o.events = append(o.events, decodeEvent{Kind: "new_data", Value: fmt.Sprintf("0x%02X", uint8(n))})
		},
	}, log, protocol.WithClock(func() time.Time { return o.now }))
	return o
}

// request 回放下行请求，让游标指向请求的那一天；不带日期的请求回到今天
func (o *offline) request(packet []byte) {
	day, _ := protocol.RequestDay(packet, o.now)
	o.cursor.SetDay(day, o.now)
}

func (o *offline) report(packets int) decodeReport {
	snap := o.store.Snapshot()
	rep := decodeReport{
		Packets:  packets,
		Samples:  snap.Len(),
		Counts:   make(map[string]int),
		Events:   o.events,
		Snapshot: &snap,
	}
	for d := inter.DomainActivity; d <= inter.DomainTemperature; d++ {
		if n := snap.Count(d); n > 0 {
			rep.Counts[d.String()] = n
		}
	}
	return rep
}

func (a *app) decodeCmd() *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "decode <hex> [hex...]",
		Short: "Decode ring packets given as hex strings",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("--now: %w", err)
				}
				now = t
			}
			o := newOffline(now, a.log)
			for _, arg := range args {
				packet, err := hex.DecodeString(strings.NewReplacer(" ", "", ":", "").Replace(arg))
				if err != nil {
					return fmt.Errorf("decode %q: %w", arg, err)
				}
				o.router.Handle(packet)
			}
			return printJSON(cmd, o.report(len(args)))
		},
	}
	cmd.Flags().StringVar(&at, "now", "", "Reference time (RFC3339) used to infer dates")
	return cmd
}

func (a *app) replayCmd() *cobra.Command {
	var persist bool
	cmd := &cobra.Command{
		Use:   "replay <capture-file>",
		Short: "Decode a relay capture file offline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			var o *offline
			uplink := 0
			_, err = relay.ReadCapture(f, func(fr inter.Frame) error {
				if o == nil {
					o = newOffline(relay.FrameTime(fr), a.log)
				}
				o.now = relay.FrameTime(fr)
				if !fr.Uplink {
					o.request(fr.Payload)
					return nil
				}
				uplink++
				o.router.HandleChannel(fr.Channel, fr.Payload)
				return nil
			})
			if err != nil {
				return err
			}
			if o == nil {
				o = newOffline(time.Now(), a.log)
			}

			rep := o.report(uplink)
			if persist && rep.Samples > 0 {
				store, err := a.openStore()
				if err != nil {
					return err
				}
				defer store.Close()
				if err := store.Persist(cmd.Context(), a.cfg.Device.ID, *rep.Snapshot); err != nil {
					return err
				}
			}
			rep.Events = nil
			rep.Snapshot = nil
			return printJSON(cmd, rep)
		},
	}
	cmd.Flags().BoolVar(&persist, "persist", false, "Write the decoded samples to the configured store")
	return cmd
}
