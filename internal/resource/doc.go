// Package resource bounds the cost of moving region files between the local
// directory and a blob store.
//
// A Controller governs three resources:
//
//   - Memory: bytes buffered in flight (files are read whole before upload)
//   - Workers: concurrent transfers
//   - IO: a token bucket over transferred bytes
//
//	rc := resource.NewController(resource.Config{
//	    MaxInFlightBytes: 256 << 20,
//	    MaxWorkers:       4,
//	    BytesPerSec:      64 << 20,
//	})
//
//	if err := rc.AcquireMemory(ctx, size); err != nil {
//	    return err
//	}
//	defer rc.ReleaseMemory(size)
//
// All methods are safe for concurrent use and a nil *Controller is a no-op.
package resource
