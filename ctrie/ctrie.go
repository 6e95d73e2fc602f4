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

/*
Package ctrie provides an implementation of Map, a concurrent, lock-free
hash array mapped trie ("Ctrie"). This data structure was originally
presented in the paper Concurrent Tries with Efficient Non-Blocking Clones:

https://axel22.github.io/resources/docs/ctries-clone.pdf

Map supports standard concurrent-map operations — get, put, conditional
put/replace/remove, and a weakly-consistent iterator — with linearizable
semantics under arbitrary concurrent access and no global locks.
*/
package ctrie

import (
	"bytes"
	"errors"
	"fmt"
	"hash/maphash"
	"reflect"

	"github.com/gotrie/ctrie/gatomic"
)

// ErrNilKey is the panic value when a caller passes a nil key to an
// operation.
var ErrNilKey = errors.New("ctrie: nil key")

// ErrNilValue is the panic value when a caller passes a nil value to an
// operation that writes or compares one.
var ErrNilValue = errors.New("ctrie: nil value")

var seed = maphash.MakeSeed()

// StringHash hashes a string using a process-wide random seed.
func StringHash(key string) uint64 {
	var h maphash.Hash
	h.SetSeed(seed)
	h.WriteString(key)
	return h.Sum64()
}

// BytesHash hashes a byte slice using a process-wide random seed.
func BytesHash(key []byte) uint64 {
	var h maphash.Hash
	h.SetSeed(seed)
	h.Write(key)
	return h.Sum64()
}

// String is a convenience key type that hashes itself with StringHash.
type String string

func (s String) Hash() uint64 {
	return StringHash(string(s))
}

// Hasher is satisfied by key types that can hash and compare themselves.
type Hasher interface {
	comparable
	Hash() uint64
}

// Map is a concurrent, lock-free associative map from keys to values,
// implemented as a hash array mapped trie. All operations are safe to call
// from multiple goroutines without external synchronization.
type Map[Key, Value any] struct {
	root      *iNode[Key, Value]
	width     uint
	eqFunc    func(Key, Key) bool
	hashFunc  func(Key) uint64
	valueEqFn func(Value, Value) bool
}

// New returns a new empty Map using Key's own Hash and == for hashing and
// equality, with the default width (6, 64-way fan-out).
func New[Key Hasher, Value any]() *Map[Key, Value] {
	return NewWidth[Key, Value](defaultWidth)
}

// NewWidth is like New but sets the per-level fan-out exponent explicitly.
// width is silently clamped to [1, 6].
func NewWidth[Key Hasher, Value any](width int) *Map[Key, Value] {
	return NewWithFuncsWidth[Key, Value](func(k1, k2 Key) bool {
		return k1 == k2
	}, Key.Hash, width)
}

// NewWithFuncs is like New except that it uses explicit functions for
// comparison and hashing instead of relying on Key implementing Hasher. A
// nil eqFunc or hashFunc falls back to a built-in for string and []byte key
// types, and panics for any other type. ReplaceIfEqual and DeleteIfEqual
// are not usable on the result; use NewWithAllFuncs for that.
func NewWithFuncs[Key, Value any](eqFunc func(k1, k2 Key) bool, hashFunc func(Key) uint64) *Map[Key, Value] {
	return NewWithFuncsWidth[Key, Value](eqFunc, hashFunc, defaultWidth)
}

// NewWithFuncsWidth combines NewWithFuncs and NewWidth. ReplaceIfEqual and
// DeleteIfEqual are not usable on the result; use NewWithAllFuncs for that.
func NewWithFuncsWidth[Key, Value any](eqFunc func(k1, k2 Key) bool, hashFunc func(Key) uint64, width int) *Map[Key, Value] {
	return NewWithAllFuncs[Key, Value](eqFunc, hashFunc, nil, width)
}

// NewWithAllFuncs is the fully general constructor: besides the key
// equality and hash functions accepted by NewWithFuncsWidth, it takes an
// explicit value equality function, so ReplaceIfEqual and DeleteIfEqual are
// reachable for any Key/Value combination — not only Hasher-keyed
// comparable values, which is all NewComparable allows. A nil valueEqFunc
// leaves ReplaceIfEqual and DeleteIfEqual panicking, same as
// NewWithFuncsWidth.
func NewWithAllFuncs[Key, Value any](eqFunc func(k1, k2 Key) bool, hashFunc func(Key) uint64, valueEqFunc func(v1, v2 Value) bool, width int) *Map[Key, Value] {
	if eqFunc == nil {
		var k Key
		switch (interface{}(k)).(type) {
		case string:
			eqFunc = interface{}(func(k1, k2 string) bool {
				return k1 == k2
			}).(func(Key, Key) bool)
		case []byte:
			eqFunc = interface{}(bytes.Equal).(func(Key, Key) bool)
		default:
			panic(fmt.Errorf("ctrie: no equality type known for %T", k))
		}
	}
	if hashFunc == nil {
		var k Key
		switch (interface{}(k)).(type) {
		case string:
			hashFunc = interface{}(StringHash).(func(Key) uint64)
		case []byte:
			hashFunc = interface{}(BytesHash).(func(Key) uint64)
		default:
			panic(fmt.Errorf("ctrie: no hash type known for %T", k))
		}
	}
	return newMap[Key, Value](eqFunc, hashFunc, valueEqFunc, clampWidth(width))
}

// NewComparable returns a new empty Map for a Value type whose equality can
// be checked with ==, enabling ReplaceIfEqual and DeleteIfEqual.
func NewComparable[Key Hasher, Value comparable]() *Map[Key, Value] {
	return NewWithAllFuncs[Key, Value](func(k1, k2 Key) bool {
		return k1 == k2
	}, Key.Hash, func(v1, v2 Value) bool {
		return v1 == v2
	}, defaultWidth)
}

func newMap[Key, Value any](eqFunc func(Key, Key) bool, hashFunc func(Key) uint64, valueEqFn func(Value, Value) bool, width uint) *Map[Key, Value] {
	root := newINode[Key, Value](&mainNode[Key, Value]{cNode: &cNode[Key, Value]{}})
	return &Map[Key, Value]{
		root:      root,
		width:     width,
		eqFunc:    eqFunc,
		hashFunc:  hashFunc,
		valueEqFn: valueEqFn,
	}
}

func (c *Map[Key, Value]) loadRoot() *iNode[Key, Value] {
	return gatomic.LoadPointer(&c.root)
}

func (c *Map[Key, Value]) hash(key Key) uint32 {
	return mix(uint32(c.hashFunc(key)))
}

func (c *Map[Key, Value]) valueEq(a, b Value) bool {
	if c.valueEqFn == nil {
		panic("ctrie: this Map was not constructed with a value equality function; use NewComparable or supply one explicitly")
	}
	return c.valueEqFn(a, b)
}

// isNilValue reports whether v holds a nil of one of Go's nilable kinds.
// Generic type parameters make a plain `v == nil` comparison unreliable (a
// typed nil interface, pointer, or slice does not compare equal to the
// untyped nil literal the way a caller would expect), so this inspects the
// value's runtime kind instead.
func isNilValue(v any) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Ptr, reflect.Slice:
		return rv.IsNil()
	default:
		return false
	}
}

func checkKey[Key any](key Key) error {
	if isNilValue(key) {
		return ErrNilKey
	}
	return nil
}

func checkValue[Value any](value Value) error {
	if isNilValue(value) {
		return ErrNilValue
	}
	return nil
}

// Get returns the value mapped to key, or false if key is unmapped.
func (c *Map[Key, Value]) Get(key Key) (Value, bool) {
	if err := checkKey(key); err != nil {
		panic(err)
	}
	hash := c.hash(key)
	for {
		v, ok, done := c.ilookup(c.loadRoot(), key, hash, 0, nil)
		if done {
			return v, ok
		}
	}
}

// Put maps key to value, returning the previous value if one existed.
func (c *Map[Key, Value]) Put(key Key, value Value) (Value, bool) {
	if err := checkKey(key); err != nil {
		panic(err)
	}
	if err := checkValue(value); err != nil {
		panic(err)
	}
	res := c.doInsert(key, value, constraint[Value]{kind: constraintNone})
	return res.prev, res.existed
}

// PutIfAbsent maps key to value only if key is not already mapped,
// returning the existing value if one was present.
func (c *Map[Key, Value]) PutIfAbsent(key Key, value Value) (Value, bool) {
	if err := checkKey(key); err != nil {
		panic(err)
	}
	if err := checkValue(value); err != nil {
		panic(err)
	}
	res := c.doInsert(key, value, constraint[Value]{kind: constraintPutIfAbsent})
	return res.prev, res.existed
}

// Replace maps key to value only if key is already mapped, returning the
// previous value if the replacement happened.
func (c *Map[Key, Value]) Replace(key Key, value Value) (Value, bool) {
	if err := checkKey(key); err != nil {
		panic(err)
	}
	if err := checkValue(value); err != nil {
		panic(err)
	}
	res := c.doInsert(key, value, constraint[Value]{kind: constraintReplaceIfMapped})
	if !res.success {
		return z[Value](), false
	}
	return res.prev, true
}

// ReplaceIfEqual maps key to value only if key is currently mapped to a
// value equal to expected, reporting whether the replacement happened. It
// panics if the Map was not constructed with a value equality function
// (see NewComparable or NewWithAllFuncs).
func (c *Map[Key, Value]) ReplaceIfEqual(key Key, expected, value Value) bool {
	if err := checkKey(key); err != nil {
		panic(err)
	}
	if err := checkValue(expected); err != nil {
		panic(err)
	}
	if err := checkValue(value); err != nil {
		panic(err)
	}
	res := c.doInsert(key, value, constraint[Value]{kind: constraintReplaceIfMappedTo, expected: expected})
	return res.success
}

func (c *Map[Key, Value]) doInsert(key Key, value Value, con constraint[Value]) opResult[Value] {
	hash := c.hash(key)
	entry := &mapEntry[Key, Value]{key: key, value: value, hash: hash}
	for {
		if res, done := c.iinsert(c.loadRoot(), entry, 0, nil, con); done {
			return res
		}
	}
}

// Delete removes key's mapping, returning the previous value if one
// existed.
func (c *Map[Key, Value]) Delete(key Key) (Value, bool) {
	if err := checkKey(key); err != nil {
		panic(err)
	}
	res := c.doRemove(key, constraint[Value]{kind: constraintNone})
	return res.prev, res.existed
}

// DeleteIfEqual removes key's mapping only if it is currently mapped to a
// value equal to expected, reporting whether the removal happened. It
// panics if the Map was not constructed with a value equality function.
func (c *Map[Key, Value]) DeleteIfEqual(key Key, expected Value) bool {
	if err := checkKey(key); err != nil {
		panic(err)
	}
	if err := checkValue(expected); err != nil {
		panic(err)
	}
	res := c.doRemove(key, constraint[Value]{kind: constraintRemoveIfMappedTo, expected: expected})
	return res.success
}

func (c *Map[Key, Value]) doRemove(key Key, con constraint[Value]) opResult[Value] {
	hash := c.hash(key)
	for {
		if res, done := c.iremove(c.loadRoot(), key, hash, 0, nil, con); done {
			return res
		}
	}
}

// IsEmpty reports whether the Map currently holds no entries. Like Len,
// this is a best-effort snapshot with no linearization guarantee under
// concurrent writers.
func (c *Map[Key, Value]) IsEmpty() bool {
	_, ok := c.lookupFirst()
	return !ok
}

// Clear empties the Map by publishing a fresh root. Concurrent operations
// already in flight against the old root are unaffected and may still
// complete against it.
func (c *Map[Key, Value]) Clear() {
	root := newINode[Key, Value](&mainNode[Key, Value]{cNode: &cNode[Key, Value]{}})
	gatomic.StorePointer(&c.root, root)
}

// Len returns the number of entries in the Map by walking an iterator and
// counting. This is O(n), best-effort, and not linearizable: concurrent
// writers during the walk may cause the count to be off by the number of
// entries inserted or removed while it ran.
func (c *Map[Key, Value]) Len() int {
	n := 0
	it := c.Iterator()
	for it.Next() {
		n++
	}
	return n
}

// Iterator returns a new forward, hash-ordered iterator over the Map. See
// Iter for its consistency guarantees.
func (c *Map[Key, Value]) Iterator() *Iter[Key, Value] {
	return newIter(c)
}
