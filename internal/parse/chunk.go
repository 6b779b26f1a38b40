package parse

// Chunk sizing bounds. Chunks large enough to amortize per-chunk overhead,
// small enough that progress stays responsive and slow workers do not
// leave the pool idle at the tail of a file.
const (
	MinChunkSize = 10_000
	MaxChunkSize = 50_000
)

// ChunkSize returns the chunk length for totalLines spread across workers,
// clamped to [MinChunkSize, MaxChunkSize].
func ChunkSize(totalLines, workers int) int {
	if workers < 1 {
		workers = 1
	}
	size := totalLines / workers
	if size < MinChunkSize {
		return MinChunkSize
	}
	if size > MaxChunkSize {
		return MaxChunkSize
	}
	return size
}

// SplitChunks partitions lines into contiguous slices of ChunkSize length;
// only the final chunk may be shorter. The sub-slices share the backing
// array of lines, and their concatenation in order reproduces the input
// exactly.
func SplitChunks(lines []string, workers int) [][]string {
	if len(lines) == 0 {
		return nil
	}

	size := ChunkSize(len(lines), workers)
	chunks := make([][]string, 0, (len(lines)+size-1)/size)
	for start := 0; start < len(lines); start += size {
		end := start + size
		if end > len(lines) {
			end = len(lines)
		}
		chunks = append(chunks, lines[start:end])
	}
	return chunks
}
