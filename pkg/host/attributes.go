package host

// MergeAttributes deep-merges src into dst and returns dst, allocating it
// when nil. Nested map[string]any values merge key by key; any other value
// (scalars, slices, nil) replaces what dst held. Values taken from src are
// copied, so later changes to src do not leak into dst.
func MergeAttributes(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		if sv, ok := v.(map[string]any); ok {
			if dv, ok := dst[k].(map[string]any); ok {
				dst[k] = MergeAttributes(dv, sv)
				continue
			}
		}
		dst[k] = cloneValue(v)
	}
	return dst
}

func cloneAttributes(m map[string]any) map[string]any {
	return MergeAttributes(make(map[string]any, len(m)), m)
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneAttributes(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}
