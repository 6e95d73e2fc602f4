/*
Copyright 2015 Workiva, LLC

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

 http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package ctrie

import "github.com/gotrie/ctrie/gatomic"

// iNode is an indirection node: the sole mutable node in the trie. Threads
// never mutate a cNode, sNode, or tNode in place; they instead CAS a new
// mainNode into an iNode's main field.
type iNode[Key, Value any] struct {
	main *mainNode[Key, Value]
}

func newINode[Key, Value any](main *mainNode[Key, Value]) *iNode[Key, Value] {
	return &iNode[Key, Value]{main: main}
}

// load performs an acquire read of the I-node's current main node.
func (i *iNode[Key, Value]) load() *mainNode[Key, Value] {
	return gatomic.LoadPointer(&i.main)
}

// cas attempts to replace the I-node's main node, publishing new with
// release semantics. It reports whether the swap succeeded.
func (i *iNode[Key, Value]) cas(old, new *mainNode[Key, Value]) bool {
	return gatomic.CompareAndSwapPointer(&i.main, old, new)
}

// mainNode is the tagged union CNode | TNode. Only one of cNode or tNode is
// ever set; dispatch is by inspecting which field is non-nil rather than by
// a virtual call, matching the rest of the node taxonomy below.
type mainNode[Key, Value any] struct {
	cNode *cNode[Key, Value]
	tNode *tNode[Key, Value]
}

// branch is the tagged union INode | SNode. Only branch values of these two
// concrete types are ever stored in a cNode's slice.
type branch interface{}

// cNode is a branching node: an immutable bitmap plus a compact array of
// branches, ordered by increasing sub-hash at this node's level. Every
// operation on a cNode is pure and returns a new cNode; no cNode is ever
// mutated after it is reachable from an I-node.
type cNode[Key, Value any] struct {
	bmp   uint64
	slice []branch
}

// inserted returns a copy of this cNode with br inserted at pos and f set in
// the bitmap. The caller must ensure f is not already set.
func (c *cNode[Key, Value]) inserted(pos int, f uint64, br branch) *cNode[Key, Value] {
	slice := make([]branch, len(c.slice)+1)
	copy(slice, c.slice[:pos])
	slice[pos] = br
	copy(slice[pos+1:], c.slice[pos:])
	return &cNode[Key, Value]{bmp: c.bmp | f, slice: slice}
}

// updated returns a copy of this cNode with the branch at pos replaced.
func (c *cNode[Key, Value]) updated(pos int, br branch) *cNode[Key, Value] {
	slice := make([]branch, len(c.slice))
	copy(slice, c.slice)
	slice[pos] = br
	return &cNode[Key, Value]{bmp: c.bmp, slice: slice}
}

// removed returns a copy of this cNode with the branch at pos (and f in the
// bitmap) removed.
func (c *cNode[Key, Value]) removed(pos int, f uint64) *cNode[Key, Value] {
	slice := make([]branch, len(c.slice)-1)
	copy(slice, c.slice[:pos])
	copy(slice[pos:], c.slice[pos+1:])
	return &cNode[Key, Value]{bmp: c.bmp ^ f, slice: slice}
}

// copied returns a shallow clone of this cNode. toCompressed uses it to
// build a locally-owned copy that it can edit in place before the copy is
// ever published to another I-node by CAS.
func (c *cNode[Key, Value]) copied() *cNode[Key, Value] {
	slice := make([]branch, len(c.slice))
	copy(slice, c.slice)
	return &cNode[Key, Value]{bmp: c.bmp, slice: slice}
}

// mapEntry is a single key/value pair together with its mixed hash.
type mapEntry[Key, Value any] struct {
	key   Key
	value Value
	hash  uint32
}

// sNode is a storage leaf holding one or more key/value pairs that all share
// the same mixed hash. A nil entries field means this is a singleton leaf
// (single is the sole entry); otherwise this is a multi leaf holding a
// collision bucket of at least two entries, in insertion order.
type sNode[Key, Value any] struct {
	hash    uint32
	single  *mapEntry[Key, Value]
	entries []*mapEntry[Key, Value]
}

func singleton[Key, Value any](e *mapEntry[Key, Value]) *sNode[Key, Value] {
	return &sNode[Key, Value]{hash: e.hash, single: e}
}

func (s *sNode[Key, Value]) isMulti() bool {
	return s.entries != nil
}

// get returns the value mapped to key among this leaf's entries.
func (s *sNode[Key, Value]) get(key Key, eq func(Key, Key) bool) (Value, bool) {
	if !s.isMulti() {
		if eq(s.single.key, key) {
			return s.single.value, true
		}
		return z[Value](), false
	}
	for _, e := range s.entries {
		if eq(e.key, key) {
			return e.value, true
		}
	}
	return z[Value](), false
}

// put returns a new leaf with entry's key mapped to entry's value,
// replacing any existing mapping for that key and preserving the rest.
func (s *sNode[Key, Value]) put(entry *mapEntry[Key, Value], eq func(Key, Key) bool) *sNode[Key, Value] {
	if !s.isMulti() {
		if eq(s.single.key, entry.key) {
			return singleton(entry)
		}
		return &sNode[Key, Value]{hash: s.hash, entries: []*mapEntry[Key, Value]{s.single, entry}}
	}
	entries := make([]*mapEntry[Key, Value], 0, len(s.entries)+1)
	replaced := false
	for _, e := range s.entries {
		if eq(e.key, entry.key) {
			entries = append(entries, entry)
			replaced = true
		} else {
			entries = append(entries, e)
		}
	}
	if !replaced {
		entries = append(entries, entry)
	}
	return &sNode[Key, Value]{hash: s.hash, entries: entries}
}

// removed returns a new leaf with key's entry gone, or nil if key was this
// leaf's only entry — the caller must treat a nil result as "the slot
// vanishes". key is assumed to already be present; callers check that with
// get before calling removed.
func (s *sNode[Key, Value]) removed(key Key, eq func(Key, Key) bool) *sNode[Key, Value] {
	if !s.isMulti() {
		return nil
	}
	remaining := make([]*mapEntry[Key, Value], 0, len(s.entries)-1)
	for _, e := range s.entries {
		if !eq(e.key, key) {
			remaining = append(remaining, e)
		}
	}
	if len(remaining) == 1 {
		return singleton(remaining[0])
	}
	return &sNode[Key, Value]{hash: s.hash, entries: remaining}
}

// tombed returns the tombed (TNode) form of this leaf.
func (s *sNode[Key, Value]) tombed() *tNode[Key, Value] {
	return &tNode[Key, Value]{sn: s}
}

// next supports iterator resumption within a single leaf: a nil current
// means "return the first entry"; otherwise it returns the entry after
// current (matched by key), or nil if current was the last entry or was not
// found among this leaf's entries.
func (s *sNode[Key, Value]) next(current *mapEntry[Key, Value], eq func(Key, Key) bool) *mapEntry[Key, Value] {
	if !s.isMulti() {
		if current == nil {
			return s.single
		}
		return nil
	}
	if current == nil {
		return s.entries[0]
	}
	for i, e := range s.entries {
		if eq(e.key, current.key) {
			if i+1 < len(s.entries) {
				return s.entries[i+1]
			}
			return nil
		}
	}
	return nil
}

// tNode marks a subtree as logically removed and pending contraction. It
// carries the same payload as the sNode it replaced so that any thread
// encountering it can resurrect that payload directly.
type tNode[Key, Value any] struct {
	sn *sNode[Key, Value]
}

// resurrect returns the sNode this tNode wraps.
func (t *tNode[Key, Value]) resurrect() *sNode[Key, Value] {
	return t.sn
}

// z returns the zero value of V.
func z[V any]() V {
	var v V
	return v
}
