package games

import (
	"encoding/json"
)

const nodeGridSize = 6

// Node is one NodeOverload cell.
type Node struct {
	X             int  `json:"x"`
	Y             int  `json:"y"`
	IsMine        bool `json:"isMine"`
	IsRevealed    bool `json:"isRevealed"`
	NeighborMines int  `json:"neighborMines"`
}

// NodeOverloadState is the serializable state of a NodeOverload game. Grid is
// indexed [y][x].
type NodeOverloadState struct {
	Grid          [][]Node `json:"grid"`
	Size          int      `json:"size"`
	Mines         int      `json:"mines"`
	RevealedCount int      `json:"revealedCount"`
	TargetCount   int      `json:"targetCount"`
	Status        Status   `json:"status"`
}

// NodeOverload is the minesweeper minigame: reveal every safe node without
// touching an overloaded one.
type NodeOverload struct {
	base
	state NodeOverloadState
}

func newNodeOverload(p Params) *NodeOverload {
	return &NodeOverload{base: newBase(p)}
}

func (g *NodeOverload) Kind() Kind { return KindNodeOverload }

func mineCount(difficulty int) int {
	return max(3, 12-floorDiv(difficulty, 8))
}

func (g *NodeOverload) Init() {
	size := nodeGridSize
	mines := mineCount(g.difficulty)

	grid := make([][]Node, size)
	for y := range grid {
		grid[y] = make([]Node, size)
		for x := range grid[y] {
			grid[y][x] = Node{X: x, Y: y}
		}
	}

	// Partial Fisher-Yates over the flattened cell indexes.
	cells := make([]int, size*size)
	for i := range cells {
		cells[i] = i
	}
	for i := 0; i < mines; i++ {
		j := i + g.rnd.Intn(len(cells)-i)
		cells[i], cells[j] = cells[j], cells[i]
		grid[cells[i]/size][cells[i]%size].IsMine = true
	}

	for y := range grid {
		for x := range grid[y] {
			if !grid[y][x].IsMine {
				grid[y][x].NeighborMines = countMines(grid, x, y)
			}
		}
	}

	g.state = NodeOverloadState{
		Grid:        grid,
		Size:        size,
		Mines:       mines,
		TargetCount: size*size - mines,
		Status:      StatusActive,
	}
}

// eachNeighbour calls fn for the in-bounds 8-neighbourhood of (x, y).
func eachNeighbour(grid [][]Node, x, y int, fn func(nx, ny int)) {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			if onBoard(grid, x+dx, y+dy) {
				fn(x+dx, y+dy)
			}
		}
	}
}

func countMines(grid [][]Node, x, y int) int {
	n := 0
	eachNeighbour(grid, x, y, func(nx, ny int) {
		if grid[ny][nx].IsMine {
			n++
		}
	})
	return n
}

// cascade reveals the safe region around a zero cell using an explicit stack.
func (g *NodeOverload) cascade(x, y int) {
	grid := g.state.Grid
	stack := []Point{{X: x, Y: y}}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		eachNeighbour(grid, p.X, p.Y, func(nx, ny int) {
			n := &grid[ny][nx]
			if n.IsRevealed || n.IsMine {
				return
			}
			n.IsRevealed = true
			g.state.RevealedCount++
			if n.NeighborMines == 0 {
				stack = append(stack, Point{X: nx, Y: ny})
			}
		})
	}
}

func (g *NodeOverload) HandleAction(a Action) Result {
	s := &g.state
	if s.Status != StatusActive {
		return resultFinished
	}
	if a.Type != ActionReveal || !onBoard(s.Grid, a.X, a.Y) {
		return resultIgnored
	}

	cell := &s.Grid[a.Y][a.X]
	if cell.IsRevealed {
		return resultIgnored
	}
	cell.IsRevealed = true

	if cell.IsMine {
		s.Status = StatusLost
		return g.lost(MsgNodeOverloadLost)
	}

	s.RevealedCount++
	if cell.NeighborMines == 0 {
		g.cascade(a.X, a.Y)
	}

	if s.RevealedCount >= s.TargetCount {
		s.Status = StatusWon
		return g.won(MsgNodeOverloadWon)
	}
	return resultProgress
}

func (g *NodeOverload) Restore(raw json.RawMessage) error { return restoreInto(&g.state, raw) }

func (g *NodeOverload) Snapshot() (json.RawMessage, error) { return json.Marshal(g.state) }

func (g *NodeOverload) State() any     { return g.state }
func (g *NodeOverload) Status() Status { return g.state.Status }
func (g *NodeOverload) IsWon() bool    { return g.state.Status == StatusWon }
func (g *NodeOverload) IsLost() bool   { return g.state.Status == StatusLost }
