package index

import (
	"github.com/hupe1980/mmstore/alloc"
	"github.com/hupe1980/mmstore/memory"
)

// NewPostingAllocator returns the recycled allocator holding the posting
// blocks of backend. Released blocks are handed to backend.Clear once they
// leave the delay queue.
func NewPostingAllocator(mem memory.Memory, backend Backend, cfg alloc.Config, optFns ...alloc.Option) (*alloc.Recycled, error) {
	opts := append([]alloc.Option{alloc.WithName("index.postings")}, optFns...)
	opts = append(opts, alloc.WithReclaimHook(backend.Clear))

	return alloc.NewRecycled(mem, cfg, opts...)
}
