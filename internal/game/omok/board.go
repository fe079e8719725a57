// Package omok implements the five-in-a-row mini-game: global 1v1
// matchmaking and a turn-based board state machine.
package omok

// BoardSize is the side length of the square board.
const BoardSize = 15

// WinCount is the number of contiguous same-color stones that wins.
const WinCount = 5

// Stone is the content of one board cell.
type Stone uint8

// Cell states.
const (
	Empty Stone = iota
	Black
	White
)

// String returns the wire name of the stone color.
func (s Stone) String() string {
	switch s {
	case Black:
		return "black"
	case White:
		return "white"
	default:
		return "empty"
	}
}

// Opposite returns the other player color. Empty maps to Empty.
func (s Stone) Opposite() Stone {
	switch s {
	case Black:
		return White
	case White:
		return Black
	default:
		return Empty
	}
}

// Board is a 15×15 Omok grid. It is not safe for concurrent use; the
// owning session's manager serializes access.
type Board struct {
	cells [BoardSize][BoardSize]Stone
}

// NewBoard creates an empty board.
func NewBoard() *Board {
	return &Board{}
}

// InBounds reports whether (row, col) is a valid cell.
func (b *Board) InBounds(row, col int) bool {
	return row >= 0 && row < BoardSize && col >= 0 && col < BoardSize
}

// At returns the stone at (row, col).
//
// Precondition: (row, col) must be in bounds.
func (b *Board) At(row, col int) Stone {
	return b.cells[row][col]
}

// Place puts a stone at (row, col).
//
// Precondition: (row, col) must be in bounds and empty.
func (b *Board) Place(row, col int, s Stone) {
	b.cells[row][col] = s
}

// winDirections are the four scan axes: horizontal, vertical, and the
// two diagonals.
var winDirections = [4][2]int{
	{0, 1},
	{1, 0},
	{1, 1},
	{1, -1},
}

// Wins reports whether the stone just placed at (row, col) completes a
// run of WinCount or more. It counts contiguous same-color stones through
// the placed cell along each axis.
//
// Precondition: the cell at (row, col) must hold a stone.
func (b *Board) Wins(row, col int) bool {
	color := b.cells[row][col]
	if color == Empty {
		return false
	}

	for _, dir := range winDirections {
		count := 1
		count += b.runLength(row, col, dir[0], dir[1], color)
		count += b.runLength(row, col, -dir[0], -dir[1], color)
		if count >= WinCount {
			return true
		}
	}
	return false
}

// runLength counts same-color stones stepping from (row, col) in the
// given direction, excluding the origin cell.
func (b *Board) runLength(row, col, dr, dc int, color Stone) int {
	count := 0
	for {
		row += dr
		col += dc
		if !b.InBounds(row, col) || b.cells[row][col] != color {
			return count
		}
		count++
	}
}
