package protocol

import (
	"bytes"
	"testing"
	"time"

	"github.com/nhirsama/Goster-Ring/src/inter"
)

func TestBCD(t *testing.T) {
	cases := map[int]byte{0: 0x00, 9: 0x09, 10: 0x10, 16: 0x16, 24: 0x24, 59: 0x59, 99: 0x99}
	for v, want := range cases {
		if got := ToBCD(v); got != want {
			t.Errorf("ToBCD(%d) = 0x%02X, want 0x%02X", v, got, want)
		}
		if back := FromBCD(want); back != v {
			t.Errorf("FromBCD(0x%02X) = %d, want %d", want, back, v)
		}
	}
	if FromBCD(0x1A) != -1 {
		t.Error("FromBCD should reject non-decimal nibbles")
	}
}

func TestSetDateTime(t *testing.T) {
	ts := time.Date(2024, 6, 16, 13, 45, 9, 0, time.UTC)
	want := []byte{0x01, 0x24, 0x06, 0x16, 0x13, 0x45, 0x09}
	if got := SetDateTime(ts); !bytes.Equal(got, want) {
		t.Errorf("SetDateTime = %x, want %x", got, want)
	}
}

func TestEncodeCommands(t *testing.T) {
	prefs := inter.Preferences{
		TimeFormat: 0, UnitSystem: 0, Sex: 1, Age: 30, HeightCm: 175, WeightKg: 70,
		Systolic: 120, Diastolic: 80, HeartRateWarning: 160,
	}
	goals := inter.Goals{Steps: 10000, Calories: 2000, Distance: 8000, SportMinutes: 60, SleepMinutes: 480}

	cases := []struct {
		name string
		got  []byte
		want []byte
	}{
		{"battery", ReadBattery(), []byte{0x03}},
		{"power off", PowerOff(), []byte{0x08, 0x01}},
		{"find device", FindDevice(), []byte{0x50, 0x55, 0xAA}},
		{"factory reset", FactoryReset(), []byte{0xFF, 0x66, 0x66}},
		{"phone name", SetPhoneName("Pixel"), []byte{0x04, 0x02, 0x0A, 'P', 'i', 'x', 'e', 'l'}},
		{"prefs read", ReadPreferences(), []byte{0x0A, 0x01}},
		{"prefs write", WritePreferences(prefs), []byte{0x0A, 0x02, 0, 0, 1, 30, 175, 70, 120, 80, 160}},
		{"goals read", ReadGoals(), []byte{0x21, 0x01}},
		{"goals write", WriteGoals(goals), []byte{
			0x21, 0x02,
			0x10, 0x27, 0x00,
			0x80, 0x84, 0x1E,
			0x40, 0x1F, 0x00,
			0x3C, 0x00,
			0xE0, 0x01,
		}},
		{"auto hr on", AutoHeartRate(true, 10), []byte{0x16, 0x02, 0x01, 0x0A}},
		{"auto hr off", AutoHeartRate(false, 10), []byte{0x16, 0x02, 0x02, 0x0A}},
		{"auto spo2", AutoSpO2(true), []byte{0x2C, 0x02, 0x01}},
		{"auto stress", AutoStress(false), []byte{0x36, 0x02, 0x00}},
		{"auto hrv", AutoHRV(true), []byte{0x38, 0x02, 0x01}},
		{"auto temperature", AutoTemperature(true), []byte{0x3A, 0x03, 0x02, 0x01}},
		{"manual hr start", StartManualHeartRate(), []byte{0x69, 0x01, 0x01}},
		{"manual hr stop", StopManualHeartRate(), []byte{0x69, 0x01, 0x00}},
		{"activity", RequestActivity(3), []byte{0x43, 0x03, 0x0F, 0x00, 0x5F, 0x01}},
		{"heart rate", RequestHeartRate(time.Date(2024, 6, 20, 0, 0, 0, 0, time.Local)), []byte{0x15, 0x00, 0x71, 0x73, 0x66}},
		{"stress", RequestStress(), []byte{0x37}},
		{"hrv", RequestHRV(2), []byte{0x39, 0x02}},
		{"spo2", RequestBigData(inter.DataSpO2), []byte{0xBC, 0x2A, 0x01, 0x00, 0xFF, 0x00}},
		{"sleep", RequestBigData(inter.DataSleep), []byte{0xBC, 0x27, 0x01, 0x00, 0xFF, 0x00}},
		{"temperature", RequestBigData(inter.DataTemperature), []byte{0xBC, 0x25, 0x01, 0x00, 0x3E, 0x81}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if !bytes.Equal(tc.got, tc.want) {
				t.Errorf("got %x, want %x", tc.got, tc.want)
			}
		})
	}
}

func TestSetPhoneName_Truncates(t *testing.T) {
	got := SetPhoneName("a very long phone name")
	if len(got) != FrameSize-1 {
		t.Fatalf("len = %d, want %d", len(got), FrameSize-1)
	}
	if _, err := Frame(got); err != nil {
		t.Errorf("truncated name should still fit one frame: %v", err)
	}
}

func TestFrame(t *testing.T) {
	f, err := Frame(ReadBattery())
	if err != nil {
		t.Fatalf("Frame failed: %v", err)
	}
	if len(f) != FrameSize {
		t.Fatalf("len = %d, want %d", len(f), FrameSize)
	}
	if f[FrameSize-1] != 0x03 {
		t.Errorf("checksum = 0x%02X, want 0x03", f[FrameSize-1])
	}
	if !ValidFrame(f) {
		t.Error("ValidFrame rejected a fresh frame")
	}
	f[3] ^= 0xFF
	if ValidFrame(f) {
		t.Error("ValidFrame accepted a corrupted frame")
	}

	if _, err := Frame(nil); err == nil {
		t.Error("expected error for empty packet")
	}
	if _, err := Frame(make([]byte, FrameSize)); err == nil {
		t.Error("expected error for oversized packet")
	}
}

func TestRequestDay(t *testing.T) {
	now := time.Date(2024, 6, 20, 12, 0, 0, 0, time.FixedZone("CST", 8*3600))
	cases := []struct {
		packet []byte
		want   int
		ok     bool
	}{
		{RequestActivity(3), 3, true},
		{RequestHRV(0), 0, true},
		{RequestHeartRate(inter.DayStart(now, 2)), 2, true},
		{mustFrame(RequestHeartRate(inter.DayStart(now, 0))), 0, true},
		{RequestStress(), 0, false},
		{ReadBattery(), 0, false},
	}
	for i, c := range cases {
		got, ok := RequestDay(c.packet, now)
		if ok != c.ok || got != c.want {
			t.Errorf("case %d: RequestDay(% X) = %d, %v; want %d, %v", i, c.packet, got, ok, c.want, c.ok)
		}
	}
}

func mustFrame(p []byte) []byte {
	f, _ := Frame(p)
	return f
}
