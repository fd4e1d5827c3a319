package domain

// Move returns a new list with the element at from moved to to.
// Out-of-range indices return an unchanged copy.
func Move[T any](list []T, from, to int) []T {
	out := make([]T, len(list))
	copy(out, list)
	if from < 0 || from >= len(list) || to < 0 || to >= len(list) || from == to {
		return out
	}
	item := out[from]
	if from < to {
		copy(out[from:to], out[from+1:to+1])
	} else {
		copy(out[to+1:from+1], out[to:from])
	}
	out[to] = item
	return out
}

// ChangedOrders returns the indices whose stored order differs from their position.
func ChangedOrders[T any](list []T, orderOf func(T) int) []int {
	var changed []int
	for i, item := range list {
		if orderOf(item) != i {
			changed = append(changed, i)
		}
	}
	return changed
}

// IsContiguous reports whether orders are exactly 0..n-1 in sequence.
func IsContiguous(orders []int) bool {
	for i, o := range orders {
		if o != i {
			return false
		}
	}
	return true
}
