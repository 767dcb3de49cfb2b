package games

import (
	"encoding/json"
)

const (
	streamSize      = 5
	streamWalks     = 100
	streamScrambles = 10
)

// PipeType is the shape of a DataStream tile.
type PipeType string

const (
	PipeStraight PipeType = "straight"
	PipeCorner   PipeType = "corner"
	PipeTee      PipeType = "tee"
	PipeCross    PipeType = "cross"
)

// Directions are degrees clockwise from up.
const (
	dirUp    = 0
	dirRight = 90
	dirDown  = 180
	dirLeft  = 270
)

var fillerPipes = []PipeType{PipeStraight, PipeCorner, PipeTee}

// Point is a grid coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Cell is one DataStream tile.
type Cell struct {
	X        int      `json:"x"`
	Y        int      `json:"y"`
	Type     PipeType `json:"type"`
	Rotation int      `json:"rotation"`
	Locked   bool     `json:"locked"`
	IsStart  bool     `json:"isStart"`
	IsEnd    bool     `json:"isEnd"`
	Powered  bool     `json:"powered"`
}

// DataStreamState is the serializable state of a DataStream game. Grid is
// indexed [y][x].
type DataStreamState struct {
	Grid   [][]Cell `json:"grid"`
	Start  Point    `json:"start"`
	End    Point    `json:"end"`
	Status Status   `json:"status"`
	Moves  int      `json:"moves"`
}

// DataStream is the pipe-routing minigame: rotate tiles until the stream
// flows from the start cell to the end cell.
type DataStream struct {
	base
	state DataStreamState
}

func newDataStream(p Params) *DataStream {
	return &DataStream{base: newBase(p)}
}

func (g *DataStream) Kind() Kind { return KindDataStream }

var (
	streamStart = Point{X: 0, Y: 2}
	streamEnd   = Point{X: 4, Y: 2}
)

func (g *DataStream) Init() {
	grid := g.layout()
	g.scramble(grid)

	g.state = DataStreamState{
		Grid:   grid,
		Start:  streamStart,
		End:    streamEnd,
		Status: StatusActive,
		Moves:  15 + floorDiv(g.difficulty, 4),
	}
	g.flow()
}

// layout builds a grid whose path cells hold their solving rotation.
func (g *DataStream) layout() [][]Cell {
	grid := make([][]Cell, streamSize)
	for y := range grid {
		grid[y] = make([]Cell, streamSize)
		for x := range grid[y] {
			p := Point{X: x, Y: y}
			grid[y][x] = Cell{
				X:       x,
				Y:       y,
				Locked:  p == streamStart || p == streamEnd,
				IsStart: p == streamStart,
				IsEnd:   p == streamEnd,
			}
		}
	}

	path := g.walk()
	for i, p := range path {
		c := &grid[p.Y][p.X]
		if c.Locked {
			c.Type = PipeStraight
			c.Rotation = dirRight
			continue
		}
		c.Type, c.Rotation = pathPipe(path[i-1], p, path[i+1])
	}

	for y := range grid {
		for x := range grid[y] {
			c := &grid[y][x]
			if c.Type == "" {
				c.Type = fillerPipes[g.rnd.Intn(len(fillerPipes))]
				c.Rotation = g.rnd.Intn(4) * 90
			}
		}
	}
	return grid
}

// walk random-walks from start to end without revisiting cells. The end cell
// can only be entered from its left neighbour. When every walk dead-ends the
// straight middle row is used.
func (g *DataStream) walk() []Point {
	for attempt := 0; attempt < streamWalks; attempt++ {
		if path, ok := g.tryWalk(); ok {
			return path
		}
	}

	path := make([]Point, 0, streamSize)
	for x := streamStart.X; x <= streamEnd.X; x++ {
		path = append(path, Point{X: x, Y: streamStart.Y})
	}
	return path
}

func (g *DataStream) tryWalk() ([]Point, bool) {
	path := []Point{streamStart}
	visited := map[Point]bool{streamStart: true}
	cur := streamStart

	for {
		var moves []Point
		if cur == streamStart {
			moves = append(moves, Point{X: cur.X + 1, Y: cur.Y})
		} else {
			candidates := []Point{
				{X: cur.X, Y: cur.Y - 1},
				{X: cur.X, Y: cur.Y + 1},
				{X: cur.X - 1, Y: cur.Y},
				{X: cur.X + 1, Y: cur.Y},
			}
			for _, c := range candidates {
				if !inGrid(c.X, c.Y, streamSize) || visited[c] {
					continue
				}
				if c == streamEnd {
					if cur.X == streamEnd.X-1 && cur.Y == streamEnd.Y {
						moves = append(moves, c)
					}
					continue
				}
				moves = append(moves, c)
			}
		}

		if len(moves) == 0 {
			return nil, false
		}

		next := moves[g.rnd.Intn(len(moves))]
		path = append(path, next)
		visited[next] = true
		cur = next
		if cur == streamEnd {
			return path, true
		}
	}
}

// pathPipe returns the tile that joins prev → cur → next.
func pathPipe(prev, cur, next Point) (PipeType, int) {
	entry := directionTo(cur, prev)
	exit := directionTo(cur, next)

	lo, hi := entry, exit
	if lo > hi {
		lo, hi = hi, lo
	}
	if hi-lo == 180 {
		if entry == dirLeft || entry == dirRight {
			return PipeStraight, 90
		}
		return PipeStraight, 0
	}

	switch {
	case lo == dirUp && hi == dirRight:
		return PipeCorner, 0
	case lo == dirRight && hi == dirDown:
		return PipeCorner, 90
	case lo == dirDown && hi == dirLeft:
		return PipeCorner, 180
	default:
		return PipeCorner, 270
	}
}

// directionTo is the side of from that faces the adjacent cell to.
func directionTo(from, to Point) int {
	switch {
	case to.X > from.X:
		return dirRight
	case to.X < from.X:
		return dirLeft
	case to.Y > from.Y:
		return dirDown
	default:
		return dirUp
	}
}

// scramble re-randomizes every unlocked rotation, retrying when the result
// happens to be solved already.
func (g *DataStream) scramble(grid [][]Cell) {
	for i := 0; i < streamScrambles; i++ {
		for y := range grid {
			for x := range grid[y] {
				if !grid[y][x].Locked {
					grid[y][x].Rotation = g.rnd.Intn(4) * 90
				}
			}
		}
		if !flowGrid(grid, streamStart, streamEnd) {
			return
		}
	}
}

// openDirections returns the open sides of a tile after rotation.
func openDirections(t PipeType, rotation int) []int {
	var dirs []int
	switch t {
	case PipeStraight:
		dirs = []int{dirUp, dirDown}
	case PipeCorner:
		dirs = []int{dirUp, dirRight}
	case PipeTee:
		dirs = []int{dirUp, dirRight, dirLeft}
	case PipeCross:
		dirs = []int{dirUp, dirRight, dirDown, dirLeft}
	}
	for i := range dirs {
		dirs[i] = (dirs[i] + rotation) % 360
	}
	return dirs
}

func isOpen(c Cell, dir int) bool {
	for _, d := range openDirections(c.Type, c.Rotation) {
		if d == dir {
			return true
		}
	}
	return false
}

var neighbourSteps = []struct {
	dir, back, dx, dy int
}{
	{dirUp, dirDown, 0, -1},
	{dirRight, dirLeft, 1, 0},
	{dirDown, dirUp, 0, 1},
	{dirLeft, dirRight, -1, 0},
}

// flowGrid powers every cell reachable from start and reports whether end was
// reached. Two cells connect only when both open toward each other.
func flowGrid(grid [][]Cell, start, end Point) bool {
	for y := range grid {
		for x := range grid[y] {
			grid[y][x].Powered = false
		}
	}
	if !onBoard(grid, start.X, start.Y) {
		return false
	}

	queue := []Point{start}
	grid[start.Y][start.X].Powered = true
	connected := false

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == end {
			connected = true
		}

		cell := grid[cur.Y][cur.X]
		for _, s := range neighbourSteps {
			nx, ny := cur.X+s.dx, cur.Y+s.dy
			if !onBoard(grid, nx, ny) || grid[ny][nx].Powered {
				continue
			}
			if isOpen(cell, s.dir) && isOpen(grid[ny][nx], s.back) {
				grid[ny][nx].Powered = true
				queue = append(queue, Point{X: nx, Y: ny})
			}
		}
	}
	return connected
}

func (g *DataStream) flow() bool {
	return flowGrid(g.state.Grid, g.state.Start, g.state.End)
}

func (g *DataStream) HandleAction(a Action) Result {
	s := &g.state
	if s.Status != StatusActive {
		return resultFinished
	}
	if a.Type != ActionRotate || !onBoard(s.Grid, a.X, a.Y) {
		return resultIgnored
	}

	tile := &s.Grid[a.Y][a.X]
	if tile.Locked {
		return resultIgnored
	}
	tile.Rotation = (tile.Rotation + 90) % 360
	s.Moves--

	if g.flow() {
		s.Status = StatusWon
		return g.won(MsgDataStreamWon)
	}
	if s.Moves <= 0 {
		s.Status = StatusLost
		return g.lost(MsgDataStreamLost)
	}
	return resultProgress
}

func (g *DataStream) Restore(raw json.RawMessage) error { return restoreInto(&g.state, raw) }

func (g *DataStream) Snapshot() (json.RawMessage, error) { return json.Marshal(g.state) }

func (g *DataStream) State() any     { return g.state }
func (g *DataStream) Status() Status { return g.state.Status }
func (g *DataStream) IsWon() bool    { return g.state.Status == StatusWon }
func (g *DataStream) IsLost() bool   { return g.state.Status == StatusLost }

// inGrid reports whether (x, y) lies on a size×size board.
func inGrid(x, y, size int) bool {
	return x >= 0 && y >= 0 && x < size && y < size
}

// onBoard is inGrid for a possibly ragged restored grid.
func onBoard[T any](grid [][]T, x, y int) bool {
	return y >= 0 && y < len(grid) && x >= 0 && x < len(grid[y])
}
