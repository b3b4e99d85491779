package pool

// Pool is a strongly typed wrapper around sync.Pool with optional Reset()
// support. It eliminates the unsafe type assertions a raw sync.Pool forces
// on every caller. Objects returned from Get() are guaranteed to be the
// correct type, and if the pooled type implements Resettable it is zeroed
// before going back in the pool via Put().
//
// The gateway's cache key builder (internal/adapter/cache.BuildKey) is the
// hot caller: every tool-call lookup and write pools a *bytes.Buffer here
// rather than allocating one per request.
//
// Note: This is intentionally minimal and inlined for performance-sensitive
// paths. If Go ever adds generics to sync.Pool, this becomes obsolete.

import (
	"reflect"
	"sync"
)

type Resettable interface {
	Reset()
}

type Pool[T any] struct {
	pool sync.Pool
	new  func() T
}

// NewLitePool builds a Pool whose items come from newFn. The nil check on
// newFn itself happens eagerly; the nil-result check is deferred to the
// first actual Get(), so construction never pays for a throwaway item that
// would just be discarded.
func NewLitePool[T any](newFn func() T) *Pool[T] {
	if newFn == nil {
		panic("litepool: constructor must not be nil")
	}

	return &Pool[T]{
		pool: sync.Pool{
			New: func() any {
				v := newFn()
				rv := reflect.ValueOf(any(v))
				if !rv.IsValid() {
					panic("litepool: constructor returned nil")
				}
				switch rv.Kind() {
				case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice, reflect.UnsafePointer:
					if rv.IsNil() {
						panic("litepool: constructor returned nil")
					}
				}
				return v
			},
		},
		new: newFn,
	}
}

func (p *Pool[T]) Get() T {
	//nolint:forcetypeassert // safe due to validated New
	return p.pool.Get().(T)
}

func (p *Pool[T]) Put(v T) {
	if r, ok := any(v).(Resettable); ok {
		r.Reset()
	}
	p.pool.Put(v)
}
