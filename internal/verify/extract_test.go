package verify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestExtract(t *testing.T) {
	body := []byte(`{"data":{"name":"Steve","level":7,"zero":0,"off":false,"on":true,"empty":"","nil":null,
		"list":[{"name":"first"},{"name":"second"}],"obj":{"a":1}}}`)

	tests := []struct {
		path string
		want string
		ok   bool
	}{
		{"data.name", "Steve", true},
		{"data.level", "7", true},
		{"data.on", "true", true},
		{"data.list.1.name", "second", true},
		{"data.obj", `{"a":1}`, true},
		{"data.zero", "", false},
		{"data.off", "", false},
		{"data.empty", "", false},
		{"data.nil", "", false},
		{"data.list.5.name", "", false},
		{"data.list.x", "", false},
		{"data.name.first", "", false},
		{"missing", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := Extract(body, tt.path)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtract_AbsentSegmentAlwaysMisses(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		key := rapid.StringMatching(`[a-z]{1,8}`).Draw(t, "key")
		got, ok := Extract([]byte(`{"data":{}}`), "data."+key)
		if ok || got != "" {
			t.Fatalf("expected miss for data.%s, got %q", key, got)
		}
	})
}
