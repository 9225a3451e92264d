package engine

import (
	"hash/fnv"
	"math/bits"
)

// Persistent Hash Array Mapped Trie (HAMT) implementation.
// The engine keeps every definition in one of these, keyed by qualified
// name. Writers publish a new root; readers holding an old root keep a
// consistent snapshot, which is what offloaded calls evaluate against.

const (
	hamtBits = 5
	hamtSize = 1 << hamtBits // 32
	hamtMask = hamtSize - 1
)

// PersistentMap is an immutable hash map
type PersistentMap struct {
	root  *hamtNode
	count int
}

// hamtNode is a node in the HAMT
type hamtNode struct {
	bitmap   uint32        // which indices are populated
	contents []interface{} // stores *hamtEntry, *hamtNode or []*hamtEntry
}

// hamtEntry holds a key-value pair
type hamtEntry struct {
	hash  uint32
	key   string
	value *binding
}

// EmptyMap returns an empty persistent map
func EmptyMap() *PersistentMap {
	return &PersistentMap{}
}

// Len returns the number of entries
func (m *PersistentMap) Len() int {
	return m.count
}

// Get returns the binding for a key, or nil if not found
func (m *PersistentMap) Get(key string) *binding {
	if m.root == nil {
		return nil
	}
	return m.root.get(hashString(key), key, 0)
}

// Put returns a new map with the key-value pair added/updated
func (m *PersistentMap) Put(key string, value *binding) *PersistentMap {
	hash := hashString(key)

	root := m.root
	if root == nil {
		root = &hamtNode{}
	}
	newRoot, added := root.put(hash, key, value, 0)

	newCount := m.count
	if added {
		newCount++
	}
	return &PersistentMap{root: newRoot, count: newCount}
}

func (n *hamtNode) get(hash uint32, key string, shift uint) *binding {
	idx := (hash >> shift) & hamtMask
	bit := uint32(1) << idx

	if n.bitmap&bit == 0 {
		return nil
	}

	pos := bits.OnesCount32(n.bitmap & (bit - 1))
	switch v := n.contents[pos].(type) {
	case *hamtEntry:
		if v.hash == hash && v.key == key {
			return v.value
		}
		return nil
	case *hamtNode:
		return v.get(hash, key, shift+hamtBits)
	case []*hamtEntry: // Collision bucket
		for _, e := range v {
			if e.hash == hash && e.key == key {
				return e.value
			}
		}
	}
	return nil
}

func (n *hamtNode) put(hash uint32, key string, value *binding, shift uint) (*hamtNode, bool) {
	idx := (hash >> shift) & hamtMask
	bit := uint32(1) << idx

	newNode := &hamtNode{
		bitmap:   n.bitmap,
		contents: make([]interface{}, len(n.contents)),
	}
	copy(newNode.contents, n.contents)

	if n.bitmap&bit == 0 {
		newNode.bitmap |= bit
		pos := bits.OnesCount32(newNode.bitmap & (bit - 1))
		newNode.contents = append(newNode.contents, nil)
		copy(newNode.contents[pos+1:], newNode.contents[pos:])
		newNode.contents[pos] = &hamtEntry{hash: hash, key: key, value: value}
		return newNode, true
	}

	pos := bits.OnesCount32(n.bitmap & (bit - 1))
	switch v := newNode.contents[pos].(type) {
	case *hamtEntry:
		if v.hash == hash && v.key == key {
			newNode.contents[pos] = &hamtEntry{hash: hash, key: key, value: value}
			return newNode, false
		}
		if shift >= 30 {
			newNode.contents[pos] = []*hamtEntry{v, {hash: hash, key: key, value: value}}
			return newNode, true
		}
		child := &hamtNode{}
		child, _ = child.put(v.hash, v.key, v.value, shift+hamtBits)
		child, added := child.put(hash, key, value, shift+hamtBits)
		newNode.contents[pos] = child
		return newNode, added

	case *hamtNode:
		newChild, added := v.put(hash, key, value, shift+hamtBits)
		newNode.contents[pos] = newChild
		return newNode, added

	case []*hamtEntry:
		for i, e := range v {
			if e.hash == hash && e.key == key {
				newBucket := make([]*hamtEntry, len(v))
				copy(newBucket, v)
				newBucket[i] = &hamtEntry{hash: hash, key: key, value: value}
				newNode.contents[pos] = newBucket
				return newNode, false
			}
		}
		newBucket := make([]*hamtEntry, len(v)+1)
		copy(newBucket, v)
		newBucket[len(v)] = &hamtEntry{hash: hash, key: key, value: value}
		newNode.contents[pos] = newBucket
		return newNode, true
	}

	return newNode, false
}

func hashString(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}

// Range iterates over all entries
func (m *PersistentMap) Range(f func(key string, value *binding) bool) {
	if m.root != nil {
		m.root.iterate(f)
	}
}

func (n *hamtNode) iterate(f func(key string, value *binding) bool) bool {
	for _, item := range n.contents {
		switch v := item.(type) {
		case *hamtEntry:
			if !f(v.key, v.value) {
				return false
			}
		case *hamtNode:
			if !v.iterate(f) {
				return false
			}
		case []*hamtEntry:
			for _, e := range v {
				if !f(e.key, e.value) {
					return false
				}
			}
		}
	}
	return true
}
