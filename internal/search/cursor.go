package search

// maxSafeInteger is the largest integer exactly representable by the
// pagination token format the cursor round-trips through. Sort values
// beyond it are substituted with the bound itself: the literal value would
// silently lose precision and resume the scan at the wrong document.
const maxSafeInteger = 1<<53 - 1

// clampCursor bounds every numeric sort value of a search_after cursor into
// the safe integer range.
func clampCursor(sort []any) []any {
	out := make([]any, len(sort))
	for i, v := range sort {
		out[i] = clampValue(v)
	}
	return out
}

func clampValue(v any) any {
	f, ok := v.(float64)
	if !ok {
		return v
	}
	if f > maxSafeInteger {
		return float64(maxSafeInteger)
	}
	if f < -maxSafeInteger {
		return float64(-maxSafeInteger)
	}
	return f
}
