package lru

import (
	"errors"
	"reflect"

	"github.com/mitchellh/hashstructure/v2"

	"lrulimit/internal"
)

var (
	errNilKey      = errors.New("nil key")
	errUnequalKey  = errors.New("key is not equal to itself")
	errUnknownHash = errors.New("key cannot be hashed")
)

// lookupKey says where a key lives in the index. Comparable keys are used as
// map keys directly and keep Go's == semantics. Anything else (slices, maps,
// structs holding them) is filed in a bucket by structural hash and matched
// with reflect.DeepEqual, so the hash only narrows the search.
type lookupKey struct {
	key    any
	hash   uint64
	hashed bool
}

func makeKey(key any) (lookupKey, error) {
	if key == nil {
		return lookupKey{}, errNilKey
	}

	v := reflect.ValueOf(key)
	if v.Comparable() {
		// NaN and anything containing one can never be found again
		if !v.Equal(v) {
			return lookupKey{}, errUnequalKey
		}
		return lookupKey{key: key}, nil
	}

	hash, err := hashstructure.Hash(key, hashstructure.FormatV2, nil)
	if err != nil {
		return lookupKey{}, errors.Join(errUnknownHash, err)
	}
	return lookupKey{key: key, hash: hash, hashed: true}, nil
}

// index maps keys to their list entries. All methods require the cache lock.
type index struct {
	items   map[any]*internal.Entry
	buckets map[uint64][]*internal.Entry
}

func newIndex(size int) index {
	return index{
		items:   make(map[any]*internal.Entry, size),
		buckets: make(map[uint64][]*internal.Entry),
	}
}

func (ix index) find(k lookupKey) (*internal.Entry, bool) {
	if !k.hashed {
		ent, ok := ix.items[k.key]
		return ent, ok
	}
	for _, ent := range ix.buckets[k.hash] {
		if reflect.DeepEqual(ent.Key, k.key) {
			return ent, true
		}
	}
	return nil, false
}

func (ix index) add(k lookupKey, ent *internal.Entry) {
	if !k.hashed {
		ix.items[k.key] = ent
		return
	}
	ent.Hash = k.hash
	ent.Hashed = true
	ix.buckets[k.hash] = append(ix.buckets[k.hash], ent)
}

func (ix index) remove(ent *internal.Entry) {
	if !ent.Hashed {
		delete(ix.items, ent.Key)
		return
	}
	bucket := ix.buckets[ent.Hash]
	for i, other := range bucket {
		if other == ent {
			bucket = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	if len(bucket) == 0 {
		delete(ix.buckets, ent.Hash)
	} else {
		ix.buckets[ent.Hash] = bucket
	}
}

func (ix index) clear() {
	clear(ix.items)
	clear(ix.buckets)
}

func (ix index) len() int {
	n := len(ix.items)
	for _, bucket := range ix.buckets {
		n += len(bucket)
	}
	return n
}
