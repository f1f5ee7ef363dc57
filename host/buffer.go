package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/reglet-dev/toolhost/abi"
	"github.com/reglet-dev/toolhost/domain/ports"
)

var (
	errNullBuffer  = errors.New("success status with null result pointer")
	errNoRelease   = errors.New("no release entry for result buffer")
	errOutOfBounds = errors.New("result buffer outside module memory")
)

// takeBuffer copies a module-produced buffer out of the module's memory and
// hands it back to the producing allocator through release, exactly once.
// A null buffer is never released. Every non-null buffer is released, even
// when it turns out to be unreadable.
func takeBuffer(ctx context.Context, logger *slog.Logger, mem ports.Memory, release abi.ReleaseFunc, buf abi.Buffer, maxLen uint32) ([]byte, error) {
	if buf.IsNull() {
		return nil, errNullBuffer
	}
	if release == nil {
		return nil, errNoRelease
	}
	defer callRelease(ctx, logger, release, buf)

	if maxLen > 0 && buf.Len > maxLen {
		return nil, fmt.Errorf("result of %d bytes exceeds limit of %d bytes", buf.Len, maxLen)
	}
	if mem == nil {
		return nil, errOutOfBounds
	}
	view, ok := mem.Read(uint32(buf.Ptr), buf.Len)
	if !ok {
		return nil, errOutOfBounds
	}

	out := make([]byte, len(view))
	copy(out, view)
	return out, nil
}

// callRelease invokes release with the exact pair received. A panicking
// in-process release is logged, not propagated.
func callRelease(ctx context.Context, logger *slog.Logger, release abi.ReleaseFunc, buf abi.Buffer) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "release entry panicked", "ptr", uint32(buf.Ptr), "len", buf.Len, "panic", r)
		}
	}()
	release(ctx, buf.Ptr, buf.Len)
}
