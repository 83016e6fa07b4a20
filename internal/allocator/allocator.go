// Package allocator resolves drag-and-drop drops into concrete block
// positions inside a scheduling cell. A cell is one (truck, time window,
// date) intersection holding at most two entries: block A anchored at
// position 1 and block B anchored at position 3.
package allocator

import (
	"errors"
	"strconv"
)

// ErrCapacityExceeded is returned when both blocks of the target cell are
// already occupied by other entries.
var ErrCapacityExceeded = errors.New("cell capacity exceeded")

// Block identifies one of the two halves of a cell.
type Block int

const (
	BlockA Block = iota
	BlockB
)

// Block anchor positions as stored. Legacy rows may carry 2 or 4; reads
// fold those into A and B, writes only ever emit 1 or 3.
const (
	blockAStart = 1
	blockBStart = 3
)

// Occupant is an existing entry in the target cell. Kind plus ID must
// uniquely identify the entry across jobs and placeholders so a move
// within the same cell does not collide with itself.
type Occupant struct {
	Kind     string
	ID       int64
	Position int
}

// Key returns the occupant's identity.
func (o Occupant) Key() string {
	return o.Kind + ":" + strconv.FormatInt(o.ID, 10)
}

// BlockOf folds a stored position into its block. Positions 1 and 2 are
// block A, 3 and 4 block B; 0 (legacy placeholder rows) reads as block A.
func BlockOf(position int) Block {
	if position >= blockBStart {
		return BlockB
	}
	return BlockA
}

// StartPosition returns the canonical write position for a block.
func StartPosition(b Block) int {
	if b == BlockB {
		return blockBStart
	}
	return blockAStart
}

// Allocate resolves the position a moved entry should be written at.
//
// The requested position names a primary block (≤2 means A, otherwise B).
// If the primary block is free the entry lands on its anchor; if it is
// taken the entry falls back to the opposite block regardless of proximity
// to the request; if both are taken the drop is rejected. The moved entry
// itself never counts as an occupant, so repositioning within a cell is
// always accepted.
func Allocate(requested int, moved Occupant, occupants []Occupant) (int, error) {
	primary := BlockOf(requested)

	var takenA, takenB bool
	movedKey := moved.Key()
	for _, o := range occupants {
		if o.Key() == movedKey {
			continue
		}
		switch BlockOf(o.Position) {
		case BlockA:
			takenA = true
		case BlockB:
			takenB = true
		}
	}

	taken := map[Block]bool{BlockA: takenA, BlockB: takenB}
	if !taken[primary] {
		return StartPosition(primary), nil
	}

	fallback := BlockB
	if primary == BlockB {
		fallback = BlockA
	}
	if !taken[fallback] {
		return StartPosition(fallback), nil
	}

	return 0, ErrCapacityExceeded
}
