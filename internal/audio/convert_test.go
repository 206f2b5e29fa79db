package audio

import (
	"math"
	"testing"
)

func TestFloat32ToInt16_Normal(t *testing.T) {
	out := Float32ToInt16([]float32{0.5, -0.5, 0})
	if out[2] != 0 {
		t.Fatalf("expected 0 for 0.0 input, got %d", out[2])
	}
	if out[0] <= 0 {
		t.Fatalf("expected positive for 0.5 input, got %d", out[0])
	}
	if out[1] >= 0 {
		t.Fatalf("expected negative for -0.5 input, got %d", out[1])
	}
}

func TestFloat32ToInt16_ClampHigh(t *testing.T) {
	out := Float32ToInt16([]float32{1.5})
	expected := int16(1.0 * math.MaxInt16)
	if out[0] != expected {
		t.Fatalf("expected %d (clamped to 1.0), got %d", expected, out[0])
	}
}

func TestFloat32ToInt16_ClampLow(t *testing.T) {
	out := Float32ToInt16([]float32{-1.5})
	expected := int16(-1.0 * math.MaxInt16)
	if out[0] != expected {
		t.Fatalf("expected %d (clamped to -1.0), got %d", expected, out[0])
	}
}

func TestInt16ToBytes_LittleEndian(t *testing.T) {
	out := Int16ToBytes([]int16{0x0102})
	if len(out) != 2 || out[0] != 0x02 || out[1] != 0x01 {
		t.Fatalf("expected [0x02, 0x01], got %v", out)
	}
}

func TestInt16ToBytes_Negative(t *testing.T) {
	out := Int16ToBytes([]int16{-2})
	if out[0] != 0xFE || out[1] != 0xFF {
		t.Fatalf("expected [0xFE, 0xFF], got %v", out)
	}
}

func TestConcat_PreservesOrder(t *testing.T) {
	out := Concat([][]int16{{1, 2}, nil, {3}, {4, 5, 6}})
	want := []int16{1, 2, 3, 4, 5, 6}
	if len(out) != len(want) {
		t.Fatalf("length mismatch: expected %d, got %d", len(want), len(out))
	}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("index %d: expected %d, got %d", i, want[i], out[i])
		}
	}
}

func TestConcat_Empty(t *testing.T) {
	if out := Concat(nil); len(out) != 0 {
		t.Fatalf("expected empty slice, got length %d", len(out))
	}
}

func TestInterleave(t *testing.T) {
	out := Interleave([]int16{1, -1, 7}, 2)
	want := []int16{1, 1, -1, -1, 7, 7}
	if len(out) != len(want) {
		t.Fatalf("length mismatch: expected %d, got %d", len(want), len(out))
	}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("index %d: expected %d, got %d", i, want[i], out[i])
		}
	}

	mono := []int16{3, 4}
	if got := Interleave(mono, 1); len(got) != 2 || got[0] != 3 {
		t.Errorf("mono passthrough changed samples: %v", got)
	}
}
