package output

import "fmt"

const (
	kib = 1024
	mib = 1024 * kib
	gib = 1024 * mib
)

// FormatRate scales a per-second byte rate to B, KB or MB.
func FormatRate(bytesPerSecond float64) string {
	b := int64(bytesPerSecond)
	switch {
	case b < kib:
		return fmt.Sprintf("%d B", b)
	case b < mib:
		return fmt.Sprintf("%.2f KB", float64(b)/kib)
	default:
		return fmt.Sprintf("%.2f MB", float64(b)/mib)
	}
}

// FormatBytes scales a byte total to B, KB, MB or GB.
func FormatBytes(b uint64) string {
	switch {
	case b < kib:
		return fmt.Sprintf("%d B", b)
	case b < mib:
		return fmt.Sprintf("%.2f KB", float64(b)/kib)
	case b < gib:
		return fmt.Sprintf("%.2f MB", float64(b)/mib)
	default:
		return fmt.Sprintf("%.2f GB", float64(b)/gib)
	}
}
