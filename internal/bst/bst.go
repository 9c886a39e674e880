// Package bst is an unbalanced binary search tree keyed by an ordered type.
package bst

import "cmp"

type node[K cmp.Ordered, V any] struct {
	key         K
	value       V
	left, right *node[K, V]
}

type Tree[K cmp.Ordered, V any] struct {
	root  *node[K, V]
	count int
}

func New[K cmp.Ordered, V any]() *Tree[K, V] {
	return &Tree[K, V]{}
}

// Insert stores value under key, replacing the value of an existing node.
// Returns true when a new node was created.
func (t *Tree[K, V]) Insert(key K, value V) bool {
	link := &t.root
	for *link != nil {
		n := *link
		switch c := cmp.Compare(key, n.key); {
		case c < 0:
			link = &n.left
		case c > 0:
			link = &n.right
		default:
			n.value = value
			return false
		}
	}
	*link = &node[K, V]{key: key, value: value}
	t.count++
	return true
}

func (t *Tree[K, V]) Find(key K) (value V, ok bool) {
	n := t.root
	for n != nil {
		switch c := cmp.Compare(key, n.key); {
		case c < 0:
			n = n.left
		case c > 0:
			n = n.right
		default:
			return n.value, true
		}
	}
	return value, false
}

func (t *Tree[K, V]) Remove(key K) bool {
	link := &t.root
	for *link != nil {
		n := *link
		switch c := cmp.Compare(key, n.key); {
		case c < 0:
			link = &n.left
			continue
		case c > 0:
			link = &n.right
			continue
		}
		switch {
		case n.left == nil:
			*link = n.right
		case n.right == nil:
			*link = n.left
		default:
			// splice the in-order successor into n's position
			succLink := &n.right
			for (*succLink).left != nil {
				succLink = &(*succLink).left
			}
			succ := *succLink
			*succLink = succ.right
			succ.left, succ.right = n.left, n.right
			*link = succ
		}
		t.count--
		return true
	}
	return false
}

func (t *Tree[K, V]) Len() int {
	return t.count
}

// Walk visits nodes in ascending key order until fn returns false.
func (t *Tree[K, V]) Walk(fn func(key K, value V) bool) {
	walk(t.root, fn)
}

func walk[K cmp.Ordered, V any](n *node[K, V], fn func(K, V) bool) bool {
	if n == nil {
		return true
	}
	return walk(n.left, fn) && fn(n.key, n.value) && walk(n.right, fn)
}

// Height of the tree; zero when empty.
func (t *Tree[K, V]) Height() int {
	return height(t.root)
}

func height[K cmp.Ordered, V any](n *node[K, V]) int {
	if n == nil {
		return 0
	}
	return 1 + max(height(n.left), height(n.right))
}
