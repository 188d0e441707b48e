package cloud

import "testing"

func TestDecodeStatus_TolerantNumbers(t *testing.T) {
	body := []byte(`{
		"deviceId": "PLUG1",
		"deviceType": "Plug Mini (US)",
		"power": "ON",
		"voltage": 120.4,
		"electricCurrent": "500",
		"electricityOfDay": 37,
		"weight": "not-a-number",
		"onlineStatus": "online",
		"version": "V1.4-1.4",
		"unknownKey": {"nested": true}
	}`)

	s, err := DecodeStatus(body)
	if err != nil {
		t.Fatalf("DecodeStatus() error = %v", err)
	}
	if !s.IsOn() {
		t.Error("IsOn() = false, want true")
	}
	if v, ok := s.Number(FieldVoltage); !ok || v != 120.4 {
		t.Errorf("voltage = %v, %v", v, ok)
	}
	if v, ok := s.Number(FieldElectricCurrent); !ok || v != 500 {
		t.Errorf("electricCurrent = %v, %v", v, ok)
	}
	if v, ok := s.Number(FieldElectricityOfDay); !ok || v != 37 {
		t.Errorf("electricityOfDay = %v, %v", v, ok)
	}
	if _, ok := s.Number(FieldWeight); ok {
		t.Error("weight should be absent when unparsable")
	}
	if s.Online == nil || !*s.Online {
		t.Errorf("Online = %v", s.Online)
	}
	if s.Version == nil || *s.Version != "V1.4-1.4" {
		t.Errorf("Version = %v", s.Version)
	}
	if s.Brightness != nil {
		t.Errorf("Brightness = %v, want nil", *s.Brightness)
	}
}

func TestDecodeStatus_Invalid(t *testing.T) {
	for _, body := range []string{"", "null", "[1,2]", "{"} {
		if _, err := DecodeStatus([]byte(body)); err == nil {
			t.Errorf("DecodeStatus(%q) expected error", body)
		}
	}
}

func TestDecodeStatus_NonFiniteNumbers(t *testing.T) {
	body := []byte(`{
		"deviceId": "PLUG1",
		"voltage": "NaN",
		"electricCurrent": "Inf",
		"electricityOfDay": "-Infinity",
		"weight": 1e999,
		"brightness": "nan"
	}`)

	s, err := DecodeStatus(body)
	if err != nil {
		t.Fatalf("DecodeStatus() error = %v", err)
	}
	for _, f := range SensorFields {
		if v, ok := s.Number(f); ok {
			t.Errorf("%s = %v, want absent", f, v)
		}
	}
	if s.Brightness != nil {
		t.Errorf("Brightness = %d, want nil", *s.Brightness)
	}

	again, err := DecodeStatus(body)
	if err != nil {
		t.Fatalf("DecodeStatus() error = %v", err)
	}
	if !s.Equal(again) {
		t.Error("identical bodies decoded to unequal snapshots")
	}
}

func TestStatus_CloneIsDeep(t *testing.T) {
	b := 40
	orig := &Status{DeviceID: "D", Brightness: &b}

	c := orig.Clone()
	*c.Brightness = 90

	if *orig.Brightness != 40 {
		t.Errorf("original mutated through clone: %d", *orig.Brightness)
	}
	if (*Status)(nil).Clone() != nil {
		t.Error("Clone(nil) != nil")
	}
}

func TestStatus_Equal(t *testing.T) {
	on, off := PowerOn, PowerOff
	a := &Status{DeviceID: "D", Power: &on}
	b := &Status{DeviceID: "D", Power: &on}
	c := &Status{DeviceID: "D", Power: &off}

	if !a.Equal(b) {
		t.Error("equal snapshots reported different")
	}
	if a.Equal(c) {
		t.Error("different power reported equal")
	}
	if a.Equal(nil) || !(*Status)(nil).Equal(nil) {
		t.Error("nil handling wrong")
	}
}
