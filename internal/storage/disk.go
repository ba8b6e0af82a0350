package storage

import "os"

// UsageBytes returns the total on-disk size of the given artifact paths.
// Missing paths contribute 0.
func UsageBytes(paths ...string) int64 {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		if !info.IsDir() {
			total += info.Size()
		}
	}
	return total
}
