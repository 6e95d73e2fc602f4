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

// constraintKind selects which precondition, if any, an insert or remove
// must satisfy before it is allowed to mutate the trie.
type constraintKind int

const (
	constraintNone constraintKind = iota
	constraintPutIfAbsent
	constraintReplaceIfMapped
	constraintReplaceIfMappedTo
	constraintRemoveIfMappedTo
)

func (k constraintKind) requiresExistingMapping() bool {
	return k == constraintReplaceIfMapped || k == constraintReplaceIfMappedTo || k == constraintRemoveIfMappedTo
}

type constraint[Value any] struct {
	kind     constraintKind
	expected Value
}

// opResult carries everything a caller needs to turn an internal
// insert/remove step into its public-facing return values: the previously
// mapped value (if any), whether one existed, and whether the operation's
// constraint was satisfied (so the mutation actually happened).
type opResult[Value any] struct {
	prev    Value
	existed bool
	success bool
}

// newCollisionMainNode builds the mainNode for two singleton leaves whose
// full hashes differ but which share a sub-hash prefix at level. It recurses
// one trie level at a time until their sub-hashes diverge, at which point
// both land directly in a two-branch cNode. Distinct 32-bit hashes always
// diverge in some level's window before the hash space is exhausted, since
// each level consumes a disjoint slice of those 32 bits — the level>=hashBits
// branch below is an unreachable safety net, not a path this ever takes.
func newCollisionMainNode[Key, Value any](width uint, x, y *sNode[Key, Value], level uint) *mainNode[Key, Value] {
	if level >= hashBits {
		merged := x.put(y.single, func(Key, Key) bool { return false })
		return &mainNode[Key, Value]{cNode: &cNode[Key, Value]{bmp: 1, slice: []branch{merged}}}
	}
	xs := subHash(x.hash, level, width)
	ys := subHash(y.hash, level, width)
	switch {
	case xs == ys:
		bmp := uint64(1) << xs
		sub := newCollisionMainNode(width, x, y, level+width)
		return &mainNode[Key, Value]{cNode: &cNode[Key, Value]{bmp: bmp, slice: []branch{newINode(sub)}}}
	case xs < ys:
		bmp := uint64(1)<<xs | uint64(1)<<ys
		return &mainNode[Key, Value]{cNode: &cNode[Key, Value]{bmp: bmp, slice: []branch{x, y}}}
	default:
		bmp := uint64(1)<<xs | uint64(1)<<ys
		return &mainNode[Key, Value]{cNode: &cNode[Key, Value]{bmp: bmp, slice: []branch{y, x}}}
	}
}

// toContracted replaces a non-root cNode whose only branch is an SNode by
// that SNode's tombed form; any other cNode, including an empty one, is
// returned unchanged. The root is never contracted.
func toContracted[Key, Value any](cn *cNode[Key, Value], level uint) *mainNode[Key, Value] {
	if level > 0 && len(cn.slice) == 1 {
		if sn, ok := cn.slice[0].(*sNode[Key, Value]); ok {
			return &mainNode[Key, Value]{tNode: sn.tombed()}
		}
	}
	return &mainNode[Key, Value]{cNode: cn}
}

// toCompressed produces a locally-owned copy of cn in which every I-node
// branch pointing at a tNode is replaced by that tNode's resurrected SNode,
// then contracts the result. The copy is never published until the caller
// CASes it in, so editing it in place here is safe.
func toCompressed[Key, Value any](cn *cNode[Key, Value], level uint) *mainNode[Key, Value] {
	nc := cn.copied()
	for idx, br := range nc.slice {
		in, ok := br.(*iNode[Key, Value])
		if !ok {
			continue
		}
		if main := in.load(); main.tNode != nil {
			nc.slice[idx] = main.tNode.resurrect()
		}
	}
	return toContracted(nc, level)
}

// clean helps contract i's subtree if its main node is still a cNode. A
// failed CAS means another thread already helped; that's fine.
func clean[Key, Value any](i *iNode[Key, Value], level uint, c *Map[Key, Value]) {
	if i == nil {
		return
	}
	if main := i.load(); main.cNode != nil {
		i.cas(main, toCompressed(main.cNode, level))
	}
}

// cleanParent splices i's tombed main node out of parent, resurrecting the
// SNode it wraps directly into parent's slot (and contracting parent if
// that leaves it with a single SNode branch). It retries until parent no
// longer references i, i is no longer tombed, or the splice succeeds.
func cleanParent[Key, Value any](parent, i *iNode[Key, Value], hash uint32, level uint, c *Map[Key, Value]) {
	main := i.load()
	pMain := parent.load()
	if pMain.cNode == nil {
		return
	}
	f, pos := flagPos(hash, level, pMain.cNode.bmp, c.width)
	if pMain.cNode.bmp&f == 0 {
		return
	}
	if pMain.cNode.slice[pos] != branch(i) || main.tNode == nil {
		return
	}
	ncn := pMain.cNode.updated(pos, main.tNode.resurrect())
	if !parent.cas(pMain, toContracted(ncn, level)) {
		cleanParent(parent, i, hash, level, c)
	}
}

// ilookup recursively descends the trie to resolve a Get. The final bool
// reports whether the step completed (false means the caller must restart
// from the root).
func (c *Map[Key, Value]) ilookup(i *iNode[Key, Value], key Key, hash uint32, level uint, parent *iNode[Key, Value]) (Value, bool, bool) {
	main := i.load()
	switch {
	case main.cNode != nil:
		cn := main.cNode
		f, pos := flagPos(hash, level, cn.bmp, c.width)
		if cn.bmp&f == 0 {
			return z[Value](), false, true
		}
		switch br := cn.slice[pos].(type) {
		case *iNode[Key, Value]:
			return c.ilookup(br, key, hash, level+c.width, i)
		case *sNode[Key, Value]:
			if br.hash != hash {
				return z[Value](), false, true
			}
			v, ok := br.get(key, c.eqFunc)
			return v, ok, true
		default:
			panic("ctrie: cNode holds a branch that is neither an iNode nor an sNode")
		}
	case main.tNode != nil:
		clean(parent, level-c.width, c)
		return z[Value](), false, false
	default:
		panic("ctrie: iNode main is neither a cNode nor a tNode")
	}
}

// iinsert recursively descends the trie to resolve a Put, threading a
// constraint through the descent so PutIfAbsent/Replace/ReplaceIfEqual share
// one traversal with unconditional Put.
func (c *Map[Key, Value]) iinsert(i *iNode[Key, Value], entry *mapEntry[Key, Value], level uint, parent *iNode[Key, Value], con constraint[Value]) (opResult[Value], bool) {
	main := i.load()
	switch {
	case main.cNode != nil:
		cn := main.cNode
		f, pos := flagPos(entry.hash, level, cn.bmp, c.width)
		if cn.bmp&f == 0 {
			if con.kind.requiresExistingMapping() {
				return opResult[Value]{}, true
			}
			ncn := &mainNode[Key, Value]{cNode: cn.inserted(pos, f, singleton(entry))}
			if !i.cas(main, ncn) {
				return opResult[Value]{}, false
			}
			return opResult[Value]{success: true}, true
		}
		switch br := cn.slice[pos].(type) {
		case *iNode[Key, Value]:
			return c.iinsert(br, entry, level+c.width, i, con)
		case *sNode[Key, Value]:
			sn := br
			if sn.hash != entry.hash {
				if con.kind.requiresExistingMapping() {
					return opResult[Value]{}, true
				}
				nin := newINode(newCollisionMainNode(c.width, sn, singleton(entry), level+c.width))
				ncn := &mainNode[Key, Value]{cNode: cn.updated(pos, nin)}
				if !i.cas(main, ncn) {
					return opResult[Value]{}, false
				}
				return opResult[Value]{success: true}, true
			}
			prev, existed := sn.get(entry.key, c.eqFunc)
			switch con.kind {
			case constraintPutIfAbsent:
				if existed {
					return opResult[Value]{prev: prev, existed: true}, true
				}
			case constraintReplaceIfMapped:
				if !existed {
					return opResult[Value]{}, true
				}
			case constraintReplaceIfMappedTo:
				if !existed || !c.valueEq(prev, con.expected) {
					return opResult[Value]{prev: prev, existed: existed}, true
				}
			}
			ncn := &mainNode[Key, Value]{cNode: cn.updated(pos, sn.put(entry, c.eqFunc))}
			if !i.cas(main, ncn) {
				return opResult[Value]{}, false
			}
			return opResult[Value]{prev: prev, existed: existed, success: true}, true
		default:
			panic("ctrie: cNode holds a branch that is neither an iNode nor an sNode")
		}
	case main.tNode != nil:
		clean(parent, level-c.width, c)
		return opResult[Value]{}, false
	default:
		panic("ctrie: iNode main is neither a cNode nor a tNode")
	}
}

// iremove recursively descends the trie to resolve a Delete.
func (c *Map[Key, Value]) iremove(i *iNode[Key, Value], key Key, hash uint32, level uint, parent *iNode[Key, Value], con constraint[Value]) (opResult[Value], bool) {
	main := i.load()
	switch {
	case main.cNode != nil:
		cn := main.cNode
		f, pos := flagPos(hash, level, cn.bmp, c.width)
		if cn.bmp&f == 0 {
			return opResult[Value]{}, true
		}
		switch br := cn.slice[pos].(type) {
		case *iNode[Key, Value]:
			return c.iremove(br, key, hash, level+c.width, i, con)
		case *sNode[Key, Value]:
			sn := br
			if sn.hash != hash {
				return opResult[Value]{}, true
			}
			prev, existed := sn.get(key, c.eqFunc)
			if !existed {
				return opResult[Value]{}, true
			}
			if con.kind == constraintRemoveIfMappedTo && !c.valueEq(prev, con.expected) {
				return opResult[Value]{prev: prev, existed: true}, true
			}
			var replacement *mainNode[Key, Value]
			if nsn := sn.removed(key, c.eqFunc); nsn != nil {
				replacement = &mainNode[Key, Value]{cNode: cn.updated(pos, nsn)}
			} else {
				replacement = toContracted(cn.removed(pos, f), level)
			}
			if !i.cas(main, replacement) {
				return opResult[Value]{}, false
			}
			if parent != nil {
				if m := i.load(); m.tNode != nil {
					cleanParent(parent, i, hash, level-c.width, c)
				}
			}
			return opResult[Value]{prev: prev, existed: true, success: true}, true
		default:
			panic("ctrie: cNode holds a branch that is neither an iNode nor an sNode")
		}
	case main.tNode != nil:
		clean(parent, level-c.width, c)
		return opResult[Value]{}, false
	default:
		panic("ctrie: iNode main is neither a cNode nor a tNode")
	}
}
