package cli

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nhirsama/Goster-Ring/src/device_manager"
	"github.com/nhirsama/Goster-Ring/src/inter"
	"github.com/nhirsama/Goster-Ring/src/protocol"
	"github.com/spf13/cobra"
)

// ringCommand 一个可发送的指令；waits 表示戒指会给出可解码的应答
type ringCommand struct {
	build func(a *app) []byte
	waits bool
}

var ringCommands = map[string]ringCommand{
	"battery":   {func(*app) []byte { return protocol.ReadBattery() }, true},
	"find":      {func(*app) []byte { return protocol.FindDevice() }, false},
	"time":      {func(*app) []byte { return protocol.SetDateTime(time.Now()) }, false},
	"name":      {func(a *app) []byte { return protocol.SetPhoneName(a.cfg.Device.PhoneName) }, false},
	"power-off": {func(*app) []byte { return protocol.PowerOff() }, false},
	"reset":     {func(*app) []byte { return protocol.FactoryReset() }, false},
	"hr-start":  {func(*app) []byte { return protocol.StartManualHeartRate() }, true},
	"hr-stop":   {func(*app) []byte { return protocol.StopManualHeartRate() }, false},
	"prefs":     {func(*app) []byte { return protocol.ReadPreferences() }, true},
	"goals":     {func(*app) []byte { return protocol.ReadGoals() }, true},
}

func commandNames() []string {
	names := make([]string, 0, len(ringCommands))
	for n := range ringCommands {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type sendReply struct {
	Command     string                 `json:"command"`
	Battery     *inter.BatteryInfo     `json:"battery,omitempty"`
	HeartRate   *inter.ManualHeartRate `json:"heart_rate,omitempty"`
	Preferences *inter.Preferences     `json:"preferences,omitempty"`
	Goals       *inter.Goals           `json:"goals,omitempty"`
}

func (a *app) sendCmd() *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:       "send <command>",
		Short:     "Send a single command to the ring",
		Long:      "Send a single command to the ring. Commands: " + strings.Join(commandNames(), ", "),
		Args:      cobra.ExactArgs(1),
		ValidArgs: commandNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			rc, ok := ringCommands[args[0]]
			if !ok {
				return fmt.Errorf("unknown command %q, expected one of: %s", args[0], strings.Join(commandNames(), ", "))
			}
			t, err := a.openTransport(cmd.Context())
			if err != nil {
				return err
			}

			replies := make(chan sendReply, 1)
			offer := func(r sendReply) {
				r.Command = args[0]
				select {
				case replies <- r:
				default:
				}
			}
			s := a.newSession(a.cfg.SessionConfig(), t, nil, nil, device_manager.Hooks{
				OnBattery:     func(b inter.BatteryInfo) { offer(sendReply{Battery: &b}) },
				OnHeartRate:   func(m inter.ManualHeartRate) { offer(sendReply{HeartRate: &m}) },
				OnPreferences: func(p inter.Preferences) { offer(sendReply{Preferences: &p}) },
				OnGoals:       func(g inter.Goals) { offer(sendReply{Goals: &g}) },
			})
			s.Start()
			defer s.Close()

			if err := s.Send(rc.build(a)); err != nil {
				return err
			}
			if !rc.waits {
				return printJSON(cmd, sendReply{Command: args[0]})
			}

			select {
			case r := <-replies:
				return printJSON(cmd, r)
			case <-time.After(wait):
				return fmt.Errorf("no reply to %s within %s", args[0], wait)
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			}
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 5*time.Second, "How long to wait for the reply")
	return cmd
}
