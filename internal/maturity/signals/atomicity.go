package signals

// AtomicFilesThreshold is the largest number of touched files a commit may have and still be fully atomic.
const AtomicFilesThreshold = 3

// Atomicity scores a commit by the number of files it touches: 1.0 up to
// AtomicFilesThreshold files, then AtomicFilesThreshold/files.
func Atomicity(files int) float64 {
	if files <= AtomicFilesThreshold {
		return 1
	}
	return float64(AtomicFilesThreshold) / float64(files)
}
