package internal

// Entry is a node of LruList. Hashed and Hash record which hash bucket the
// cache filed a non-comparable Key under, so eviction never has to rehash it.
type Entry struct {
	next, prev *Entry
	List       *LruList
	Key        any
	Value      any
	Hash       uint64
	Hashed     bool
}

// LruList keeps entries ordered from most recently used (front) to least
// recently used (back).
type LruList struct {
	root Entry // sentinel
	len  int
}

func (l *LruList) Init() *LruList {
	l.root.next = &l.root
	l.root.prev = &l.root
	l.len = 0
	return l
}

func NewList() *LruList { return new(LruList).Init() }

func (l *LruList) Len() int { return l.len }

func (l *LruList) lazyInit() {
	if l.root.next == nil {
		l.Init()
	}
}

func (l *LruList) PushFront(k, v any) *Entry {
	l.lazyInit()
	return l.insert(&Entry{Key: k, Value: v}, &l.root)
}

func (l *LruList) Last() *Entry {
	if l.len == 0 {
		return nil
	}
	return l.root.prev
}

func (l *LruList) MoveToFront(entry *Entry) {
	if entry.List != l || l.root.next == entry {
		return
	}

	l.move(entry, &l.root)
}

func (l *LruList) insert(entry, at *Entry) *Entry {
	entry.prev = at
	entry.next = at.next
	entry.prev.next = entry
	entry.next.prev = entry
	entry.List = l
	l.len++

	return entry
}

func (l *LruList) move(entry, at *Entry) {
	if entry == at {
		return
	}

	entry.prev.next = entry.next
	entry.next.prev = entry.prev

	entry.prev = at
	entry.next = at.next
	entry.prev.next = entry
	entry.next.prev = entry
}

func (l *LruList) Remove(entry *Entry) any {
	if entry.List != l {
		return nil
	}
	entry.next.prev = entry.prev
	entry.prev.next = entry.next
	entry.next = nil
	entry.prev = nil
	entry.List = nil
	l.len--

	return entry.Value
}
