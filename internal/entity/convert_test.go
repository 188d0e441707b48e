package entity

import "testing"

func TestBrightnessToCloud(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{-5, 1},
		{0, 1},
		{1, 1},
		{3, 1},
		{128, 50},
		{254, 99},
		{255, 100},
		{300, 100},
	}
	for _, tt := range tests {
		if got := BrightnessToCloud(tt.in); got != tt.want {
			t.Errorf("BrightnessToCloud(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestBrightnessFromCloud(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{0, 0},
		{1, 3},
		{50, 128},
		{99, 253},
		{100, 255},
		{150, 255},
	}
	for _, tt := range tests {
		if got := BrightnessFromCloud(tt.in); got != tt.want {
			t.Errorf("BrightnessFromCloud(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestClampColorTemp(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{1000, 2700},
		{2700, 2700},
		{4000, 4000},
		{6500, 6500},
		{9000, 6500},
	}
	for _, tt := range tests {
		if got := ClampColorTemp(tt.in); got != tt.want {
			t.Errorf("ClampColorTemp(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
