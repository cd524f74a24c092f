package lru

type ICache interface {
	Cap() int
	Len() int
	Clear()
	Resize(size int) error
	Put(key, value any) error
	Get(key any) (value any, ok bool)
	Peek(key any) (value any, ok bool)
	Contains(key any) bool
	Remove(key any) bool
}

var _ ICache = (*Cache)(nil)
