package timeutil

import (
	"fmt"
	"math"
	"time"
)

// SplitHMS breaks d into whole hours, whole minutes and fractional seconds.
func SplitHMS(d time.Duration) (h, m int, s float64) {
	total := d.Seconds()
	if total < 0 {
		total = 0
	}
	h = int(total / 3600)
	m = int(math.Mod(total, 3600) / 60)
	s = math.Mod(math.Mod(total, 3600), 60)
	return h, m, s
}

// FormatHMS renders d as "Xh Ym Z.ZZs".
func FormatHMS(d time.Duration) string {
	h, m, s := SplitHMS(d)
	return fmt.Sprintf("%dh %dm %.2fs", h, m, s)
}
