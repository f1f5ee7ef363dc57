package entities

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func drawVersion(t *rapid.T, label string) Version {
	return Version{
		Major: rapid.Uint32Range(0, 50).Draw(t, label+".major"),
		Minor: rapid.Uint32().Draw(t, label+".minor"),
		Patch: rapid.Uint32().Draw(t, label+".patch"),
	}
}

func TestEvaluate_EqualMajorIsCompatible(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		host := drawVersion(t, "host")
		plugin := drawVersion(t, "plugin")
		plugin.Major = host.Major

		if got := Evaluate(host, plugin); got != Compatible {
			t.Fatalf("Evaluate(%s, %s) = %s, want compatible", host, plugin, got)
		}
	})
}

func TestEvaluate_DifferentMajorIsMismatch(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		host := drawVersion(t, "host")
		plugin := drawVersion(t, "plugin")
		if plugin.Major == host.Major {
			plugin.Major = host.Major + 1
		}

		if got := Evaluate(host, plugin); got != MajorMismatch {
			t.Fatalf("Evaluate(%s, %s) = %s, want major_mismatch", host, plugin, got)
		}
	})
}

func TestEvaluate_Deterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		host := drawVersion(t, "host")
		plugin := drawVersion(t, "plugin")
		if Evaluate(host, plugin) != Evaluate(host, plugin) {
			t.Fatal("Evaluate is not deterministic")
		}
	})
}

func TestVersion_CompareIsTotalOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := drawVersion(t, "a")
		b := drawVersion(t, "b")

		if a.Compare(b) != -b.Compare(a) {
			t.Fatalf("Compare not antisymmetric for %s, %s", a, b)
		}
		if (a.Compare(b) == 0) != (a == b) {
			t.Fatalf("Compare(%s, %s) == 0 disagrees with equality", a, b)
		}
	})
}

func TestVersion_Compare(t *testing.T) {
	tests := []struct {
		a, b Version
		want int
	}{
		{Version{0, 1, 2}, Version{0, 1, 5}, -1},
		{Version{1, 0, 0}, Version{0, 9, 9}, 1},
		{Version{0, 2, 0}, Version{0, 1, 9}, 1},
		{Version{3, 3, 3}, Version{3, 3, 3}, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.a.Compare(tt.b), "%s vs %s", tt.a, tt.b)
		assert.Equal(t, tt.want < 0, tt.a.Less(tt.b))
	}
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		input   string
		want    Version
		wantErr bool
	}{
		{input: "0.1.2", want: Version{0, 1, 2}},
		{input: "v1.20.300", want: Version{1, 20, 300}},
		{input: " 2.0.0 ", want: Version{2, 0, 0}},
		{input: "1.2", wantErr: true},
		{input: "1.2.x", wantErr: true},
		{input: "1.2.3.4", wantErr: true},
		{input: "-1.0.0", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseVersion(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVersion_TextRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := drawVersion(t, "v")
		parsed, err := ParseVersion(v.String())
		if err != nil {
			t.Fatalf("ParseVersion(%q): %v", v.String(), err)
		}
		if parsed != v {
			t.Fatalf("round trip %s -> %s", v, parsed)
		}
	})
}

func TestVersion_JSON(t *testing.T) {
	data, err := json.Marshal(struct {
		V Version `json:"v"`
	}{V: Version{0, 1, 5}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":"0.1.5"}`, string(data))

	var out struct {
		V Version `json:"v"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"v":"v2.3.4"}`), &out))
	assert.Equal(t, Version{2, 3, 4}, out.V)
}

func TestCompatibility_String(t *testing.T) {
	assert.Equal(t, "compatible", Compatible.String())
	assert.Equal(t, "major_mismatch", MajorMismatch.String())
	assert.Equal(t, "unknown", Compatibility(42).String())
}
