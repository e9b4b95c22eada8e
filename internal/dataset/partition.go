package dataset

// mix64 is the splitmix64 finalizer. It spreads sequential IDs evenly over
// partitions and is stable across processes and runs.
func mix64(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}

// keyPartition routes by key only, so every value of a key meets in one partition.
func keyPartition[K ID](p Pair[K], n int) int {
	return int(mix64(uint64(p.Key)) % uint64(n))
}

func pairPartition[K ID](p Pair[K], n int) int {
	h := mix64(uint64(p.Key))
	h = mix64(h ^ uint64(p.Value))
	return int(h % uint64(n))
}
