package entity

// Brightness and colour temperature bounds.
const (
	// MaxBrightness is the top of the platform brightness scale (0-255).
	MaxBrightness = 255

	// MinCloudBrightness and MaxCloudBrightness bound the cloud scale.
	MinCloudBrightness = 1
	MaxCloudBrightness = 100

	MinColorTempKelvin = 2700
	MaxColorTempKelvin = 6500
)

// BrightnessToCloud converts platform brightness (0-255) to the cloud scale:
// clamp(floor(b × 100 / 255), 1, 100). A turn-on at 0 or 1 still sends 1.
func BrightnessToCloud(b int) int {
	if b < 0 {
		b = 0
	}
	return clamp(b*MaxCloudBrightness/MaxBrightness, MinCloudBrightness, MaxCloudBrightness)
}

// BrightnessFromCloud converts cloud brightness (1-100) to the platform
// scale: ceil(v × 255 / 100).
func BrightnessFromCloud(v int) int {
	if v <= 0 {
		return 0
	}
	return clamp((v*MaxBrightness+MaxCloudBrightness-1)/MaxCloudBrightness, 0, MaxBrightness)
}

// ClampColorTemp limits a colour temperature to the supported range.
func ClampColorTemp(kelvin int) int {
	return clamp(kelvin, MinColorTempKelvin, MaxColorTempKelvin)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
