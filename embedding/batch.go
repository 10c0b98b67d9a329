package embedding

// SplitIntoBatches partitions items by position into consecutive batches of
// at most size elements. Order is preserved and the last batch may be
// shorter. Batches share the backing array of items.
func SplitIntoBatches[T any](items []T, size int) [][]T {
	if size < 1 {
		size = 1
	}
	batches := make([][]T, 0, (len(items)+size-1)/size)
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[i:end:end])
	}
	return batches
}
