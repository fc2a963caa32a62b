package plans

// DeepMerge merges src into dst in place. When both sides hold an object under
// the same key the objects merge key by key; any other value, arrays and nulls
// included, replaces what dst had.
func DeepMerge(dst, src map[string]any) {
	for key, value := range src {
		if srcMap, ok := value.(map[string]any); ok {
			if dstMap, ok := dst[key].(map[string]any); ok {
				DeepMerge(dstMap, srcMap)
				continue
			}
		}
		dst[key] = value
	}
}
