package conf

// MergeDefaults merges maps into a single map and nests every key below
// ns, e.g. "grace_period" becomes "supervisor.grace_period". Later maps
// win on conflicts.
func MergeDefaults[M ~map[string]V, V any](ns string, maps ...M) M {
	size := 0
	for _, m := range maps {
		size += len(m)
	}

	merged := make(M, size)
	for _, m := range maps {
		for key, val := range m {
			if ns != "" {
				key = ns + "." + key
			}
			merged[key] = val
		}
	}

	return merged
}
