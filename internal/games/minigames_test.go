package games

import (
	"encoding/json"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLikeness(t *testing.T) {
	tests := []struct {
		guess, target string
		want          int
	}{
		{"ABXDE", "ABCDE", 4},
		{"ABCDE", "ABCDE", 5},
		{"EDCBA", "ABCDE", 1},
		{"AAAAA", "ABCDE", 1},
		{"SYSTEM", "KERNEL", 1},
		{"ACCESS", "KERNEL", 0},
		{"ABC", "ABCDE", 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Likeness(tt.guess, tt.target), "%s vs %s", tt.guess, tt.target)
	}
}

func TestWordGuessGeneration(t *testing.T) {
	tests := []struct {
		difficulty int
		want       int
	}{
		{0, 12}, {34, 12}, {35, 10}, {44, 10}, {45, 8}, {54, 8}, {55, 6}, {90, 6},
	}
	for _, tt := range tests {
		g := testRegistry().CreateSeeded(KindWordGuess, tt.difficulty, nil, testSeeds(tt.difficulty), 1)
		s := g.State().(WordGuessState)

		assert.Len(t, s.Words, tt.want, "difficulty %d", tt.difficulty)
		assert.True(t, sort.StringsAreSorted(s.Words))
		assert.Contains(t, s.Words, s.Target)
		assert.Equal(t, 4, s.Attempts)
		assert.Equal(t, tt.difficulty, s.Bonus)

		seen := map[string]bool{}
		for _, w := range s.Words {
			assert.Len(t, w, 6)
			assert.False(t, seen[w], "duplicate %s", w)
			seen[w] = true
		}
	}
}

func TestDictionaryWordsAreSixLetters(t *testing.T) {
	for _, w := range hackingWords {
		assert.Len(t, w, 6, w)
	}
}

func TestWordGuessPlay(t *testing.T) {
	g := newWordGuess(Params{Rand: zeroRand{}})
	g.Init()
	target := g.state.Target
	decoy := g.state.Words[0]
	if decoy == target {
		decoy = g.state.Words[1]
	}

	assert.Equal(t, Result{}, g.HandleAction(Guess("")))
	assert.Empty(t, g.state.History)

	res := g.HandleAction(Guess(decoy))
	assert.False(t, res.Success)
	assert.False(t, res.Complete)
	assert.Equal(t, DefaultCatalog[MsgWordGuessDenied], res.Message)
	assert.Equal(t, 3, g.state.Attempts)
	require.Len(t, g.state.History, 1)
	assert.Equal(t, Likeness(decoy, target), g.state.History[0].Likeness)

	res = g.HandleAction(Guess(target))
	assert.Equal(t, Result{Success: true, Complete: true, Message: DefaultCatalog[MsgWordGuessWon]}, res)
	assert.True(t, g.IsWon())
}

func TestWordGuessLosesAfterFourMisses(t *testing.T) {
	g := newWordGuess(Params{Rand: zeroRand{}})
	g.Init()

	var res Result
	for i := 0; i < 4; i++ {
		res = g.HandleAction(Guess("XXXXXX"))
	}
	assert.Equal(t, Result{Success: false, Complete: true, Message: DefaultCatalog[MsgWordGuessLost]}, res)
	assert.True(t, g.IsLost())
	assert.Len(t, g.state.History, 4)
}

func TestSignalInjectionBounce(t *testing.T) {
	for _, d := range []int{0, 30, 90} {
		g := newSignalInjection(Params{Difficulty: d, Rand: zeroRand{}})
		g.Init()
		for i := 0; i < 2000; i++ {
			assert.False(t, g.Update(100*time.Millisecond))
			s := g.state
			require.GreaterOrEqual(t, s.ZonePos, 0.0)
			require.LessOrEqual(t, s.ZonePos+s.TargetZone.Width, 100.0)
			require.Equal(t, s.ZonePos, s.TargetZone.Start)
			require.Equal(t, s.ZonePos+8, s.TargetZone.End)
		}
	}
}

func TestSignalInjectionReflects(t *testing.T) {
	g := newSignalInjection(Params{Rand: zeroRand{}})
	g.Init()
	// speed 4.0 covers 80 units per second.
	require.Equal(t, 4.0, g.state.Speed)
	g.Update(time.Second)
	assert.Equal(t, 1, g.state.Direction)
	g.Update(200 * time.Millisecond)
	assert.Equal(t, 92.0, g.state.ZonePos)
	assert.Equal(t, -1, g.state.Direction)
}

func TestSignalInjectionSpeed(t *testing.T) {
	assert.Equal(t, 4.0, signalSpeed(0))
	assert.Equal(t, 3.0, signalSpeed(20))
	assert.Equal(t, 0.5, signalSpeed(70))
	assert.Equal(t, 0.5, signalSpeed(200))
}

func TestSignalInjectionInject(t *testing.T) {
	g := newSignalInjection(Params{})
	require.NoError(t, g.Restore(json.RawMessage(`{
		"targetZone":{"start":10,"end":18,"width":8},
		"injectionPoint":50,"attempts":3,"status":"active",
		"speed":1,"direction":1,"zonePos":10}`)))

	res := g.HandleAction(Inject())
	assert.Equal(t, Result{Message: DefaultCatalog[MsgSignalInjectionMissed]}, res)
	assert.Equal(t, 2, g.state.Attempts)

	// The zone end sits exactly on the point.
	g.state.ZonePos, g.state.TargetZone.Start, g.state.TargetZone.End = 42, 42, 50
	res = g.HandleAction(Inject())
	assert.True(t, res.Success)
	assert.True(t, res.Complete)
	assert.True(t, g.IsWon())
}

func TestSignalInjectionLoses(t *testing.T) {
	g := newSignalInjection(Params{Rand: zeroRand{}})
	g.Init()
	g.state.InjectionPoint = 99

	g.HandleAction(Inject())
	g.HandleAction(Inject())
	res := g.HandleAction(Inject())
	assert.Equal(t, Result{Success: false, Complete: true, Message: DefaultCatalog[MsgSignalInjectionLost]}, res)
	assert.Equal(t, 0, g.state.Attempts)
}

func TestDataStreamLayoutIsSolvable(t *testing.T) {
	for d := 0; d <= 100; d++ {
		for n := uint64(0); n < 5; n++ {
			g := testRegistry().CreateSeeded(KindDataStream, d, nil, testSeeds(d), n).(*DataStream)
			grid := g.layout()
			require.True(t, flowGrid(grid, streamStart, streamEnd), "difficulty %d nonce %d", d, n)
		}
	}
}

func TestDataStreamGeneration(t *testing.T) {
	for d := 0; d <= 100; d += 10 {
		g := testRegistry().CreateSeeded(KindDataStream, d, nil, testSeeds(d), 9)
		s := g.State().(DataStreamState)

		assert.Equal(t, 15+d/4, s.Moves)
		assert.Equal(t, Point{0, 2}, s.Start)
		assert.Equal(t, Point{4, 2}, s.End)
		require.Len(t, s.Grid, 5)
		for y, row := range s.Grid {
			require.Len(t, row, 5)
			for x, c := range row {
				assert.Equal(t, x, c.X)
				assert.Equal(t, y, c.Y)
				assert.NotEmpty(t, c.Type)
				assert.Zero(t, c.Rotation%90)
			}
		}
		for _, p := range []Point{s.Start, s.End} {
			c := s.Grid[p.Y][p.X]
			assert.True(t, c.Locked)
			assert.Equal(t, PipeStraight, c.Type)
			assert.Equal(t, 90, c.Rotation)
		}
		assert.True(t, s.Grid[2][0].Powered)
	}
}

func TestDataStreamFallbackPath(t *testing.T) {
	// Always taking the first candidate boxes the walk into the top-left corner.
	g := newDataStream(Params{Rand: zeroRand{}})
	_, ok := g.tryWalk()
	require.False(t, ok)

	path := g.walk()
	assert.Equal(t, []Point{{0, 2}, {1, 2}, {2, 2}, {3, 2}, {4, 2}}, path)

	grid := g.layout()
	for x := 0; x < 5; x++ {
		assert.Equal(t, PipeStraight, grid[2][x].Type)
		assert.Equal(t, 90, grid[2][x].Rotation)
	}
	assert.True(t, flowGrid(grid, streamStart, streamEnd))
}

func TestPathPipe(t *testing.T) {
	tests := []struct {
		prev, cur, next Point
		typ             PipeType
		rotation        int
	}{
		{Point{0, 2}, Point{1, 2}, Point{2, 2}, PipeStraight, 90},
		{Point{1, 1}, Point{1, 2}, Point{1, 3}, PipeStraight, 0},
		{Point{1, 1}, Point{1, 2}, Point{2, 2}, PipeCorner, 0},
		{Point{2, 2}, Point{1, 2}, Point{1, 3}, PipeCorner, 90},
		{Point{1, 3}, Point{1, 2}, Point{0, 2}, PipeCorner, 180},
		{Point{0, 2}, Point{1, 2}, Point{1, 1}, PipeCorner, 270},
	}
	for _, tt := range tests {
		typ, rot := pathPipe(tt.prev, tt.cur, tt.next)
		assert.Equal(t, tt.typ, typ)
		assert.Equal(t, tt.rotation, rot)

		// The chosen tile must open toward both neighbours.
		c := Cell{Type: typ, Rotation: rot}
		assert.True(t, isOpen(c, directionTo(tt.cur, tt.prev)))
		assert.True(t, isOpen(c, directionTo(tt.cur, tt.next)))
	}
}

func TestOpenDirections(t *testing.T) {
	assert.Equal(t, []int{90, 270}, openDirections(PipeStraight, 90))
	assert.Equal(t, []int{180, 270}, openDirections(PipeCorner, 180))
	assert.Equal(t, []int{270, 0, 180}, openDirections(PipeTee, 270))
	assert.Len(t, openDirections(PipeCross, 90), 4)
	assert.Empty(t, openDirections("", 0))
}

// straightRow is a 5×5 board whose middle row needs one rotation at (2,2).
func straightRow(moves int) json.RawMessage {
	grid := make([][]Cell, 5)
	for y := range grid {
		grid[y] = make([]Cell, 5)
		for x := range grid[y] {
			grid[y][x] = Cell{X: x, Y: y, Type: PipeStraight, Rotation: 0}
		}
	}
	for x := 0; x < 5; x++ {
		grid[2][x].Rotation = 90
	}
	grid[2][0].Locked, grid[2][0].IsStart = true, true
	grid[2][4].Locked, grid[2][4].IsEnd = true, true
	grid[2][2].Rotation = 0

	raw, _ := json.Marshal(DataStreamState{
		Grid: grid, Start: Point{0, 2}, End: Point{4, 2}, Status: StatusActive, Moves: moves,
	})
	return raw
}

func TestDataStreamRotate(t *testing.T) {
	t.Run("locked and out of bounds", func(t *testing.T) {
		g := newDataStream(Params{})
		require.NoError(t, g.Restore(straightRow(5)))

		assert.Equal(t, Result{}, g.HandleAction(Rotate(0, 2)))
		assert.Equal(t, Result{}, g.HandleAction(Rotate(5, 0)))
		assert.Equal(t, Result{}, g.HandleAction(Rotate(-1, 0)))
		assert.Equal(t, 5, g.state.Moves)
	})

	t.Run("progress then win", func(t *testing.T) {
		g := newDataStream(Params{})
		require.NoError(t, g.Restore(straightRow(5)))

		assert.Equal(t, Result{Success: true}, g.HandleAction(Rotate(0, 0)))
		assert.Equal(t, 4, g.state.Moves)
		assert.Equal(t, 90, g.state.Grid[0][0].Rotation)

		res := g.HandleAction(Rotate(2, 2))
		assert.True(t, res.Success)
		assert.True(t, res.Complete)
		assert.True(t, g.IsWon())
		for x := 0; x < 5; x++ {
			assert.True(t, g.state.Grid[2][x].Powered)
		}
	})

	t.Run("connecting on the last move wins", func(t *testing.T) {
		g := newDataStream(Params{})
		require.NoError(t, g.Restore(straightRow(1)))

		res := g.HandleAction(Rotate(2, 2))
		assert.True(t, res.Success)
		assert.True(t, g.IsWon())
		assert.Equal(t, 0, g.state.Moves)
	})

	t.Run("running out of moves loses", func(t *testing.T) {
		g := newDataStream(Params{})
		require.NoError(t, g.Restore(straightRow(1)))

		res := g.HandleAction(Rotate(0, 0))
		assert.Equal(t, Result{Success: false, Complete: true, Message: DefaultCatalog[MsgDataStreamLost]}, res)
		assert.True(t, g.IsLost())
	})
}

func TestNodeOverloadGeneration(t *testing.T) {
	tests := []struct{ difficulty, mines int }{
		{0, 12}, {7, 12}, {8, 11}, {20, 10}, {37, 8}, {60, 5}, {72, 3}, {100, 3},
	}
	for _, tt := range tests {
		g := testRegistry().CreateSeeded(KindNodeOverload, tt.difficulty, nil, testSeeds(tt.difficulty), 2)
		s := g.State().(NodeOverloadState)

		assert.Equal(t, tt.mines, s.Mines)
		assert.Equal(t, 36-tt.mines, s.TargetCount)

		placed := 0
		for y, row := range s.Grid {
			for x, n := range row {
				if n.IsMine {
					placed++
					continue
				}
				assert.Equal(t, countMines(s.Grid, x, y), n.NeighborMines)
			}
		}
		assert.Equal(t, tt.mines, placed)
	}
}

func TestNodeOverloadCascadeWins(t *testing.T) {
	// Mines land on (0,0) (1,0) (2,0); a far corner reveals everything else.
	g := newNodeOverload(Params{Difficulty: 100, Rand: zeroRand{}})
	g.Init()
	require.True(t, g.state.Grid[0][2].IsMine)

	res := g.HandleAction(Reveal(5, 5))
	assert.True(t, res.Success)
	assert.True(t, res.Complete)
	assert.Equal(t, 33, g.state.RevealedCount)
	assert.True(t, g.IsWon())
}

func TestNodeOverloadRevealCountBound(t *testing.T) {
	for i := 0; i < 30; i++ {
		g := testRegistry().CreateSeeded(KindNodeOverload, i*3, nil, testSeeds(i), uint64(i)).(*NodeOverload)
		limit := 36 - g.state.Mines

		for y := 0; y < 6 && !g.IsWon(); y++ {
			for x := 0; x < 6 && !g.IsWon(); x++ {
				if g.state.Grid[y][x].IsMine {
					continue
				}
				g.HandleAction(Reveal(x, y))
				require.LessOrEqual(t, g.state.RevealedCount, limit)
			}
		}
		assert.True(t, g.IsWon())
		assert.Equal(t, limit, g.state.RevealedCount)
	}
}

func TestNodeOverloadReveal(t *testing.T) {
	g := newNodeOverload(Params{Difficulty: 100, Rand: zeroRand{}})
	g.Init()

	res := g.HandleAction(Reveal(0, 1))
	assert.Equal(t, Result{Success: true}, res)
	assert.Equal(t, 1, g.state.RevealedCount)

	assert.Equal(t, Result{}, g.HandleAction(Reveal(0, 1)))
	assert.Equal(t, Result{}, g.HandleAction(Reveal(6, 0)))
	assert.Equal(t, 1, g.state.RevealedCount)

	res = g.HandleAction(Reveal(1, 0))
	assert.Equal(t, Result{Success: false, Complete: true, Message: DefaultCatalog[MsgNodeOverloadLost]}, res)
	assert.True(t, g.state.Grid[0][1].IsRevealed)
	assert.True(t, g.IsLost())
}

func TestBruteForceEndToEnd(t *testing.T) {
	g := testRegistry().Create(KindBruteForce, 20, nil).(*BruteForce)
	s := g.state

	assert.Equal(t, 8000.0, s.MaxTime)
	assert.Equal(t, 8000.0, s.TimeLeft)
	assert.Equal(t, fixedClock().UnixMilli(), s.StartTime)
	require.Len(t, s.Target, 8)
	for _, c := range s.Target {
		assert.True(t, strings.ContainsRune(bruteForceAlphabet, c))
	}

	res := g.HandleAction(Type(s.Target))
	assert.Equal(t, Result{Success: true, Complete: true, Message: DefaultCatalog[MsgBruteForceWon]}, res)
	assert.Equal(t, StatusWon, g.Status())
}

func TestBruteForceTyping(t *testing.T) {
	g := newBruteForce(Params{Rand: zeroRand{}})
	g.Init()
	require.Equal(t, "AAAAAAAA", g.state.Target)

	assert.Equal(t, Result{Success: true}, g.HandleAction(Type("AAA")))
	assert.Equal(t, "AAA", g.state.Input)
	assert.Equal(t, Result{}, g.HandleAction(Type("AAB")))
	assert.Equal(t, "AAB", g.state.Input)
	assert.Equal(t, StatusActive, g.Status())
}

func TestBruteForceTimeout(t *testing.T) {
	for _, d := range []int{0, 20, 60} {
		g := newBruteForce(Params{Difficulty: d, Rand: zeroRand{}})
		g.Init()

		steps := int(g.state.MaxTime / 100)
		for i := 0; i < steps-1; i++ {
			require.False(t, g.Update(100*time.Millisecond))
		}
		assert.True(t, g.Update(100*time.Millisecond))
		assert.Equal(t, 0.0, g.state.TimeLeft)
		assert.Equal(t, StatusLost, g.Status())

		assert.False(t, g.Update(100*time.Millisecond))
		assert.Equal(t, 0.0, g.state.TimeLeft)
	}

	g := newBruteForce(Params{Rand: zeroRand{}})
	g.Init()
	assert.True(t, g.Update(time.Minute))
	assert.Equal(t, 0.0, g.state.TimeLeft)
}

func TestBruteForceExplicitTimeout(t *testing.T) {
	g := newBruteForce(Params{Rand: zeroRand{}})
	g.Init()
	res := g.HandleAction(Timeout())
	assert.Equal(t, Result{Success: false, Complete: true, Message: DefaultCatalog[MsgBruteForceLost]}, res)
	assert.True(t, g.IsLost())
}

func TestPatternBufferGeneration(t *testing.T) {
	tests := []struct{ difficulty, length int }{
		{0, 9}, {14, 9}, {15, 8}, {37, 7}, {60, 5}, {75, 4}, {200, 4},
	}
	for _, tt := range tests {
		g := testRegistry().CreateSeeded(KindPatternBuffer, tt.difficulty, nil, testSeeds(tt.difficulty), 4)
		s := g.State().(PatternBufferState)
		assert.Equal(t, tt.length, s.SequenceLength)
		assert.Len(t, s.Sequence, tt.length)
		assert.Equal(t, StatusWaiting, s.Status)
		for _, v := range s.Sequence {
			assert.True(t, v >= 1 && v <= 4, "value %d", v)
		}
	}
}

func TestPatternBufferPlay(t *testing.T) {
	g := newPatternBuffer(Params{Difficulty: 75, Rand: zeroRand{}})
	g.Init()
	require.Equal(t, []int{1, 1, 1, 1}, g.state.Sequence)

	assert.Equal(t, Result{}, g.HandleAction(Press(1)), "press before input")
	assert.False(t, g.Update(time.Second), "waiting does not tick")

	assert.Equal(t, Result{Success: true}, g.HandleAction(Ready()))
	assert.Equal(t, StatusDisplaying, g.Status())
	assert.Equal(t, 4000.0, g.state.TimeLeft)
	assert.Equal(t, 4000.0, g.state.MaxTime)
	assert.Equal(t, Result{}, g.HandleAction(Ready()), "ready twice")

	assert.False(t, g.Update(3900*time.Millisecond))
	assert.True(t, g.Update(200*time.Millisecond))
	assert.Equal(t, StatusInput, g.Status())
	assert.Equal(t, 0.0, g.state.TimeLeft)

	assert.Equal(t, Result{}, g.HandleAction(Action{Type: ActionPress, Value: "red"}))
	for i := 0; i < 3; i++ {
		assert.Equal(t, Result{Success: true}, g.HandleAction(Press(1)))
	}
	res := g.HandleAction(Press(1))
	assert.Equal(t, Result{Success: true, Complete: true, Message: DefaultCatalog[MsgPatternBufferWon]}, res)
	assert.Equal(t, []int{1, 1, 1, 1}, g.state.PlayerSequence)
	assert.Equal(t, 4, g.state.CurrentStep)
}

func TestPatternBufferWrongPressLoses(t *testing.T) {
	g := newPatternBuffer(Params{Rand: zeroRand{}})
	g.Init()
	g.HandleAction(Ready())
	g.Update(time.Hour)

	assert.Equal(t, Result{Success: true}, g.HandleAction(Press(1)))
	res := g.HandleAction(Press(3))
	assert.Equal(t, Result{Success: false, Complete: true, Message: DefaultCatalog[MsgPatternBufferLost]}, res)
	assert.True(t, g.IsLost())
	assert.Equal(t, []int{1}, g.state.PlayerSequence)
}
