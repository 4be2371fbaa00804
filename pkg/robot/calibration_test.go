package robot

import (
	"math"
	"testing"
)

func TestMotorCalibration_Ticks(t *testing.T) {
	tests := []struct {
		cal      MotorCalibration
		raw      int
		expected float64
	}{
		{MotorCalibration{}, 1000, 1000},
		{MotorCalibration{HomingOffset: 1200}, 1000, 3896}, // wraps below zero
		{MotorCalibration{DriveMode: 1}, 1000, 3096},       // counts the other way
		{MotorCalibration{DriveMode: 1, HomingOffset: 96}, 1000, 3000},
		{MotorCalibration{}, 4096, 0},
	}

	for _, tt := range tests {
		got := tt.cal.Ticks(tt.raw)
		if math.Abs(got-tt.expected) > 1e-9 {
			t.Errorf("%+v.Ticks(%d) = %f, want %f", tt.cal, tt.raw, got, tt.expected)
		}
	}
}

func TestCalibration_MotorIDs(t *testing.T) {
	cal := Calibration{
		Hand:            MotorCalibration{ID: 13},
		BackLeftEncoder: MotorCalibration{ID: 10},
		BackLeftDrive:   MotorCalibration{ID: 8},
		BackLeftSteer:   MotorCalibration{ID: 7},
		Shoulder:        MotorCalibration{ID: 15},
	}

	ids := cal.MotorIDs()
	expected := []int{8, 7, 15, 13, 10}

	if len(ids) != len(expected) {
		t.Fatalf("MotorIDs returned %d IDs, want %d", len(ids), len(expected))
	}

	for i, id := range ids {
		if id != expected[i] {
			t.Errorf("MotorIDs()[%d] = %d, want %d", i, id, expected[i])
		}
	}
}

func TestCalibration_ByID(t *testing.T) {
	cal := Calibration{
		Shoulder: MotorCalibration{ID: 15, HomingOffset: 100},
		Hand:     MotorCalibration{ID: 13, HomingOffset: 300},
	}

	// Test finding existing ID
	name, mc, ok := cal.ByID(15)
	if !ok {
		t.Fatal("ByID(15) returned false")
	}
	if name != Shoulder {
		t.Errorf("ByID(15) returned name %s, want shoulder", name)
	}
	if mc.HomingOffset != 100 {
		t.Errorf("ByID(15) returned wrong calibration: %+v", mc)
	}

	// Test non-existing ID
	_, _, ok = cal.ByID(99)
	if ok {
		t.Error("ByID(99) should return false")
	}
}

func TestCalibration_Validate(t *testing.T) {
	if err := DefaultConfig().Devices.Validate(); err != nil {
		t.Fatalf("default devices: %v", err)
	}

	dup := Calibration{
		Shoulder: MotorCalibration{ID: 4},
		Elbow:    MotorCalibration{ID: 4},
	}
	if err := dup.Validate(); err == nil {
		t.Error("duplicate ids should fail")
	}

	if err := (Calibration{Hand: MotorCalibration{}}).Validate(); err == nil {
		t.Error("zero id should fail")
	}
}
