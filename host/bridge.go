package host

import (
	"context"
	"log/slog"
	"time"

	"github.com/reglet-dev/toolhost/abi"
	domainerrors "github.com/reglet-dev/toolhost/domain/errors"
	"github.com/reglet-dev/toolhost/domain/ports"
	"github.com/reglet-dev/toolhost/host/registry"
)

// invocationTracker is implemented by *PluginHandle.
type invocationTracker interface {
	acquire() bool
	done()
}

// Bridge executes registered tools and owns the result-buffer handoff: it
// copies every successful result out of module memory and returns the
// buffer to the module's own release entry exactly once. It never frees
// module memory itself and never serializes invocations.
type Bridge struct {
	registry      *registry.Registry
	logger        *slog.Logger
	observer      *Observer
	maxResultSize uint32
}

// NewBridge creates a Bridge reading from reg.
func NewBridge(reg *registry.Registry, opts ...Option) *Bridge {
	cfg := newConfig(opts)
	return &Bridge{
		registry:      reg,
		logger:        cfg.logger,
		observer:      cfg.observer,
		maxResultSize: cfg.maxResultSize,
	}
}

// Execute invokes the named tool with args and returns a host-owned copy of
// its result. Failures are returned as *errors.ToolError.
//
// The native call blocks the calling goroutine for its full duration; ctx is
// passed through to the module but the bridge does not abandon a running call.
func (b *Bridge) Execute(ctx context.Context, name string, args []byte) ([]byte, error) {
	tool, ok := b.registry.Lookup(name)
	if !ok {
		return nil, &domainerrors.ToolError{Kind: domainerrors.NotFound, Tool: name}
	}

	if tracker, ok := tool.Owner.(invocationTracker); ok {
		if !tracker.acquire() {
			return nil, &domainerrors.ToolError{Kind: domainerrors.NotFound, Tool: name, Reason: "plugin is unloading"}
		}
		defer tracker.done()
	}

	b.logger.DebugContext(ctx, "tool dispatched", "tool", name, "args_len", len(args))
	b.observer.invocationStarted(ctx, name)
	start := time.Now()

	var out abi.Buffer
	status := b.call(ctx, tool, args, &out)
	elapsed := time.Since(start)

	if !status.OK() {
		b.logger.DebugContext(ctx, "tool failed", "tool", name, "status", int32(status), "elapsed", elapsed)
		b.observer.invocationFinished(ctx, name, "failed", elapsed)
		return nil, &domainerrors.ToolError{Kind: domainerrors.ExecutionFailed, Tool: name, Status: status}
	}

	var mem ports.Memory
	if tool.Owner != nil {
		mem = tool.Owner.Memory()
	}
	release := tool.ReleaseFunc()
	data, err := takeBuffer(ctx, b.logger, mem, release, out, b.maxResultSize)
	if !out.IsNull() && release != nil {
		b.observer.bufferReleased(ctx, name)
	}
	if err != nil {
		b.logger.WarnContext(ctx, "tool returned malformed result",
			"tool", name,
			"ptr", uint32(out.Ptr),
			"len", out.Len,
			"error", err,
		)
		b.observer.invocationFinished(ctx, name, "malformed", elapsed)
		return nil, &domainerrors.ToolError{Kind: domainerrors.MalformedResult, Tool: name, Reason: err.Error()}
	}

	b.logger.DebugContext(ctx, "tool result released", "tool", name, "result_len", len(data), "elapsed", elapsed)
	b.observer.invocationFinished(ctx, name, "succeeded", elapsed)
	return data, nil
}

// call runs the execute entry, converting a panic in an in-process module
// into StatusPanic. out is left untouched unless the module wrote it.
func (b *Bridge) call(ctx context.Context, tool *registry.Tool, args []byte, out *abi.Buffer) (status abi.Status) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.ErrorContext(ctx, "tool panicked", "tool", tool.Name, "panic", r)
			*out = abi.Buffer{}
			status = abi.StatusPanic
		}
	}()
	return tool.Execute(ctx, args, out)
}
