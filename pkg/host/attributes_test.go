package host

import (
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestMergeAttributes(t *testing.T) {
	tests := []struct {
		name string
		dst  map[string]any
		src  map[string]any
		want map[string]any
	}{
		{
			name: "nil dst",
			src:  map[string]any{"a": 1},
			want: map[string]any{"a": 1},
		},
		{
			name: "nested maps merge",
			dst:  map[string]any{"n": map[string]any{"x": 1, "y": 2}},
			src:  map[string]any{"n": map[string]any{"y": 3, "z": 4}},
			want: map[string]any{"n": map[string]any{"x": 1, "y": 3, "z": 4}},
		},
		{
			name: "slices replace",
			dst:  map[string]any{"l": []any{1, 2, 3}},
			src:  map[string]any{"l": []any{9}},
			want: map[string]any{"l": []any{9}},
		},
		{
			name: "scalar replaces map",
			dst:  map[string]any{"n": map[string]any{"x": 1}},
			src:  map[string]any{"n": "flat"},
			want: map[string]any{"n": "flat"},
		},
		{
			name: "map replaces scalar",
			dst:  map[string]any{"n": "flat"},
			src:  map[string]any{"n": map[string]any{"x": 1}},
			want: map[string]any{"n": map[string]any{"x": 1}},
		},
		{
			name: "nil replaces",
			dst:  map[string]any{"a": 1},
			src:  map[string]any{"a": nil},
			want: map[string]any{"a": nil},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MergeAttributes(tt.dst, tt.src)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("MergeAttributes() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMergeAttributes_CopiesSource(t *testing.T) {
	nested := map[string]any{"x": 1}
	dst := MergeAttributes(nil, map[string]any{"n": nested})
	nested["x"] = 2

	if dst["n"].(map[string]any)["x"] != 1 {
		t.Error("merged value aliases the source map")
	}
}

func toAttrs(flat map[string]int, nested map[string]int) map[string]any {
	out := make(map[string]any, len(flat)+1)
	for k, v := range flat {
		out[k] = v
	}
	n := make(map[string]any, len(nested))
	for k, v := range nested {
		n[k] = v
	}
	out["nested"] = n
	return out
}

// TestMergeAttributesProperties checks the deep-merge laws on generated
// attribute maps.
func TestMergeAttributesProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	keys := gen.Identifier().Map(func(s string) string { return "attr_" + s })
	attrs := gen.MapOf(keys, gen.Int())

	properties.Property("source keys win, other keys survive", prop.ForAll(
		func(df, dn, sf, sn map[string]int) bool {
			dst := toAttrs(df, dn)
			src := toAttrs(sf, sn)
			merged := MergeAttributes(cloneAttributes(dst), src)
			nested := merged["nested"].(map[string]any)

			for k, v := range sf {
				if merged[k] != v {
					return false
				}
			}
			for k, v := range df {
				if _, overwritten := sf[k]; !overwritten && merged[k] != v {
					return false
				}
			}
			for k, v := range sn {
				if nested[k] != v {
					return false
				}
			}
			for k, v := range dn {
				if _, overwritten := sn[k]; !overwritten && nested[k] != v {
					return false
				}
			}
			return true
		},
		attrs, attrs, attrs, attrs,
	))

	properties.Property("merge is idempotent", prop.ForAll(
		func(df, dn, sf, sn map[string]int) bool {
			once := MergeAttributes(toAttrs(df, dn), toAttrs(sf, sn))
			twice := MergeAttributes(cloneAttributes(once), toAttrs(sf, sn))
			return reflect.DeepEqual(once, twice)
		},
		attrs, attrs, attrs, attrs,
	))

	properties.Property("merging empty is identity", prop.ForAll(
		func(df, dn map[string]int) bool {
			dst := toAttrs(df, dn)
			return reflect.DeepEqual(MergeAttributes(cloneAttributes(dst), map[string]any{}), dst)
		},
		attrs, attrs,
	))

	properties.TestingRun(t)
}
