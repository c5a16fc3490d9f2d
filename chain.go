// SPDX-License-Identifier: GPL-3.0-or-later

package conduit

// Chain wires nodes into a linear pipeline and returns the first node.
//
// Each node's B edge (B0 for a Mux) points to its successor and the
// successor's A edge points back. An [Adapter] has a single A edge, which
// is pointed toward its only neighbor, so adapters belong at the ends.
func Chain[T any](nodes ...*Node[T]) *Node[T] {
	if len(nodes) <= 0 {
		return nil
	}
	for idx := 0; idx+1 < len(nodes); idx++ {
		link(nodes[idx], nodes[idx+1])
	}
	return nodes[0]
}

func link[T any](left, right *Node[T]) {
	if left.kind == KindAdapter {
		left.SetSideA(right)
	} else {
		left.SetSideB(right)
	}
	right.SetSideA(left)
}
