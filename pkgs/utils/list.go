package utils

func RemoveDuplicates[T comparable](slice []T) []T {
	if len(slice) == 0 {
		return slice
	}

	seen := make(map[T]struct{})
	result := []T{}

	for _, item := range slice {
		if _, exists := seen[item]; !exists {
			seen[item] = struct{}{}
			result = append(result, item)
		}
	}

	return result
}

// Chunk splits slice into consecutive batches of at most size elements.
func Chunk[T any](slice []T, size int) [][]T {
	if size <= 0 || len(slice) == 0 {
		return nil
	}
	batches := make([][]T, 0, (len(slice)+size-1)/size)
	for head := 0; head < len(slice); head += size {
		batches = append(batches, slice[head:min(head+size, len(slice))])
	}
	return batches
}
