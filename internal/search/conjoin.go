package search

// conjoin wraps a clause with an optional second clause in a bool must.
func conjoin(clause, with map[string]any) map[string]any {
	if with == nil {
		return clause
	}
	return map[string]any{
		"bool": map[string]any{"must": []any{clause, with}},
	}
}
