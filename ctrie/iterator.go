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

import "math/bits"

// Iter is a forward, hash-ordered, resumable iterator over a Map. It holds
// no snapshot: a Next call that moves past the current leaf re-descends from
// the live root (entries of a multi-entry leaf are taken from the leaf it
// already holds), so it tolerates
// concurrent mutation but is only weakly consistent — see spec section 4.7.
type Iter[Key, Value any] struct {
	c       *Map[Key, Value]
	started bool
	done    bool

	leafHash uint32
	leaf     *sNode[Key, Value]
	entry    *mapEntry[Key, Value]
}

func newIter[Key, Value any](c *Map[Key, Value]) *Iter[Key, Value] {
	return &Iter[Key, Value]{c: c}
}

// Next advances the iterator, reporting whether another entry was found.
func (it *Iter[Key, Value]) Next() bool {
	if it.done {
		return false
	}
	if !it.started {
		it.started = true
		leaf, ok := it.c.lookupFirst()
		if !ok {
			it.done = true
			return false
		}
		it.leaf = leaf
		it.leafHash = leaf.hash
		it.entry = leaf.next(nil, it.c.eqFunc)
		return true
	}
	if next := it.leaf.next(it.entry, it.c.eqFunc); next != nil {
		it.entry = next
		return true
	}
	leaf, ok := it.c.lookupNext(it.leafHash)
	if !ok {
		it.done = true
		return false
	}
	it.leaf = leaf
	it.leafHash = leaf.hash
	it.entry = leaf.next(nil, it.c.eqFunc)
	return true
}

// Key returns the key of the entry most recently produced by Next.
func (it *Iter[Key, Value]) Key() Key { return it.entry.key }

// Value returns the value of the entry most recently produced by Next.
func (it *Iter[Key, Value]) Value() Value { return it.entry.value }

// lookupFirst descends taking slot 0 at every cNode until it reaches an
// SNode, cleaning the parent and restarting from the root whenever it
// encounters a tNode.
func (c *Map[Key, Value]) lookupFirst() (*sNode[Key, Value], bool) {
	for {
		root := c.loadRoot()
		if leaf, ok, restart := firstReachable[Key, Value](root, nil, 0, c); !restart {
			return leaf, ok
		}
	}
}

func firstReachable[Key, Value any](i, parent *iNode[Key, Value], level uint, c *Map[Key, Value]) (*sNode[Key, Value], bool, bool) {
	main := i.load()
	switch {
	case main.cNode != nil:
		cn := main.cNode
		if len(cn.slice) == 0 {
			return nil, false, false
		}
		switch br := cn.slice[0].(type) {
		case *iNode[Key, Value]:
			return firstReachable(br, i, level+c.width, c)
		case *sNode[Key, Value]:
			return br, true, false
		default:
			panic("ctrie: cNode holds a branch that is neither an iNode nor an sNode")
		}
	case main.tNode != nil:
		clean(parent, level-c.width, c)
		return nil, false, true
	default:
		panic("ctrie: iNode main is neither a cNode nor a tNode")
	}
}

// lookupNext finds the first SNode that follows hash h in the order the trie
// stores children in: ascending by sub-hash at level 0, then by sub-hash at
// each deeper level in turn.
func (c *Map[Key, Value]) lookupNext(h uint32) (*sNode[Key, Value], bool) {
	for {
		root := c.loadRoot()
		leaf, ok, restart := descendNext[Key, Value](root, nil, h, 0, c)
		if restart {
			continue
		}
		return leaf, ok
	}
}

// descendNext walks toward the subhash path of h at i's subtree; whenever
// the path would dead-end (missing slot, or an SNode at or before h) it
// backs up to try the next sibling slot instead, which falls out of plain
// recursion: failing to find anything down a branch just returns not-found
// to the caller, who then tries slot+1.
func descendNext[Key, Value any](i, parent *iNode[Key, Value], h uint32, level uint, c *Map[Key, Value]) (*sNode[Key, Value], bool, bool) {
	main := i.load()
	switch {
	case main.cNode != nil:
		cn := main.cNode
		target := subHash(h, level, c.width)
		bmp := cn.bmp
		for _, br := range cn.slice {
			slot := uint64(bits.TrailingZeros64(bmp))
			bmp &= bmp - 1
			if slot < target {
				continue
			}
			switch n := br.(type) {
			case *iNode[Key, Value]:
				if slot == target {
					if leaf, ok, restart := descendNext(n, i, h, level+c.width, c); restart {
						return nil, false, true
					} else if ok {
						return leaf, true, false
					}
					continue
				}
				if leaf, ok, restart := firstReachable(n, i, level+c.width, c); restart {
					return nil, false, true
				} else if ok {
					return leaf, true, false
				}
				continue
			case *sNode[Key, Value]:
				if slot > target {
					return n, true, false
				}
				// n shares h's sub-hashes down to this level; it follows h
				// only if its sub-hash is greater at the first deeper level
				// where the two differ.
				for l := level + c.width; l < hashBits; l += c.width {
					if a, b := subHash(n.hash, l, c.width), subHash(h, l, c.width); a != b {
						if a > b {
							return n, true, false
						}
						break
					}
				}
				continue
			default:
				panic("ctrie: cNode holds a branch that is neither an iNode nor an sNode")
			}
		}
		return nil, false, false
	case main.tNode != nil:
		clean(parent, level-c.width, c)
		return nil, false, true
	default:
		panic("ctrie: iNode main is neither a cNode nor a tNode")
	}
}
