package host

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reglet-dev/toolhost/plugintest"
)

// captureHandler records every log record it receives.
type captureHandler struct {
	mu      *sync.Mutex
	records *[]slog.Record
}

func newCapture() (*slog.Logger, *captureHandler) {
	h := &captureHandler{mu: &sync.Mutex{}, records: &[]slog.Record{}}
	return slog.New(h), h
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	*h.records = append(*h.records, r.Clone())
	return nil
}

func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *captureHandler) WithGroup(string) slog.Handler      { return h }

// atLevel returns the messages logged at exactly level.
func (h *captureHandler) atLevel(level slog.Level) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, r := range *h.records {
		if r.Level == level {
			out = append(out, r.Message)
		}
	}
	return out
}

// attr returns the value of key on the first record with message msg.
func (h *captureHandler) attr(msg, key string) (slog.Value, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range *h.records {
		if r.Message != msg {
			continue
		}
		var found slog.Value
		ok := false
		r.Attrs(func(a slog.Attr) bool {
			if a.Key == key {
				found, ok = a.Value, true
				return false
			}
			return true
		})
		return found, ok
	}
	return slog.Value{}, false
}

type toolArgs struct {
	Input string `json:"input"`
}

// processTool is the "my_tool" tool: it answers {"output":"Processed: <input>"}.
func processTool() plugintest.Tool {
	return plugintest.Tool{
		Name:        "my_tool",
		Description: "Processes its input",
		Schema:      plugintest.SchemaFor(&toolArgs{}),
		Handler: func(_ context.Context, args []byte) ([]byte, error) {
			var in toolArgs
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, err
			}
			return json.Marshal(map[string]string{"output": "Processed: " + in.Input})
		},
	}
}

func namedTool(name string) plugintest.Tool {
	return plugintest.Tool{
		Name:   name,
		Schema: `{"type":"object"}`,
		Handler: func(_ context.Context, args []byte) ([]byte, error) {
			return []byte(fmt.Sprintf("%s:%s", name, args)), nil
		},
	}
}

func newTestHost(t *testing.T, mods []*plugintest.Module, opts ...Option) *Host {
	t.Helper()
	logger, _ := newCapture()
	opts = append([]Option{WithOpener(plugintest.NewOpener(mods...)), WithLogger(logger)}, opts...)
	h, err := New(opts...)
	require.NoError(t, err)
	return h
}
