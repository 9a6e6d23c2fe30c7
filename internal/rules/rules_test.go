package rules

import (
	"errors"
	"testing"
)

func TestApplyLegalMove(t *testing.T) {
	res, err := Apply(StartingFEN, "e2", "e4", "")
	if err != nil {
		t.Fatalf("Apply e2e4: %v", err)
	}
	if res.FEN == StartingFEN || res.FEN == "" {
		t.Fatalf("position did not change: %q", res.FEN)
	}
	if res.SAN != "e4" {
		t.Fatalf("expected SAN e4, got %q", res.SAN)
	}
	if res.Checkmate || res.Stalemate || res.InsufficientMaterial {
		t.Fatalf("unexpected terminal flags after opening move: %+v", res)
	}
}

func TestApplyIllegalMove(t *testing.T) {
	for _, tc := range [][2]string{
		{"e2", "e5"}, // pawn cannot jump three
		{"e7", "e5"}, // black piece, white to move
		{"e3", "e4"}, // empty square
		{"zz", "e4"}, // malformed square
	} {
		if _, err := Apply(StartingFEN, tc[0], tc[1], ""); !errors.Is(err, ErrNoLegalMove) {
			t.Fatalf("Apply(%s%s): expected ErrNoLegalMove, got %v", tc[0], tc[1], err)
		}
	}
}

func TestOwnsPiece(t *testing.T) {
	if ok, err := OwnsPiece(StartingFEN, true, "e2"); err != nil || !ok {
		t.Fatalf("white should own e2: ok=%v err=%v", ok, err)
	}
	if ok, _ := OwnsPiece(StartingFEN, true, "e7"); ok {
		t.Fatalf("white must not own e7")
	}
	if ok, _ := OwnsPiece(StartingFEN, false, "e7"); !ok {
		t.Fatalf("black should own e7")
	}
	if ok, _ := OwnsPiece(StartingFEN, true, "e4"); ok {
		t.Fatalf("nobody owns an empty square")
	}
}

func TestWhiteToMoveAlternates(t *testing.T) {
	white, err := WhiteToMove(StartingFEN)
	if err != nil || !white {
		t.Fatalf("white to move at start: %v %v", white, err)
	}
	res, err := Apply(StartingFEN, "g1", "f3", "")
	if err != nil {
		t.Fatalf("Apply g1f3: %v", err)
	}
	white, err = WhiteToMove(res.FEN)
	if err != nil || white {
		t.Fatalf("black to move after one ply: %v %v", white, err)
	}
}

func TestDrawPredicates(t *testing.T) {
	// Capturing the last piece leaves bare kings.
	res, err := Apply("8/8/8/3k4/3Q4/8/3K4/8 b - - 0 1", "d5", "d4", "")
	if err != nil {
		t.Fatalf("Apply d5d4: %v", err)
	}
	if !res.InsufficientMaterial {
		t.Fatalf("bare kings should flag insufficient material: %+v", res)
	}
	insufficient, err := IsInsufficientMaterial(res.FEN)
	if err != nil || !insufficient {
		t.Fatalf("IsInsufficientMaterial: %v %v", insufficient, err)
	}

	// Cornered king, not in check, no legal move.
	const stalemateFEN = "7k/5Q2/6K1/8/8/8/8/8 b - - 0 1"
	stalemate, err := IsStalemate(stalemateFEN)
	if err != nil || !stalemate {
		t.Fatalf("IsStalemate: %v %v", stalemate, err)
	}
	if mate, _ := IsCheckmate(stalemateFEN); mate {
		t.Fatalf("stalemate must not read as checkmate")
	}
	if _, err := Apply(stalemateFEN, "h8", "g8", ""); !errors.Is(err, ErrNoLegalMove) {
		t.Fatalf("stalemated side has no legal move, got %v", err)
	}
}

func TestFoolsMateIsCheckmate(t *testing.T) {
	fen := StartingFEN
	for _, mv := range [][3]string{
		{"f2", "f3", ""},
		{"e7", "e5", ""},
		{"g2", "g4", ""},
		{"d8", "h4", ""},
	} {
		res, err := Apply(fen, mv[0], mv[1], mv[2])
		if err != nil {
			t.Fatalf("Apply %s%s: %v", mv[0], mv[1], err)
		}
		fen = res.FEN
	}
	mate, err := IsCheckmate(fen)
	if err != nil || !mate {
		t.Fatalf("fool's mate position should be checkmate: %v %v", mate, err)
	}
}
