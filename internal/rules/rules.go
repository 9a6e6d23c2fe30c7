// Package rules is the only package that talks to the chess rules engine.
// The rest of the core sees positions as FEN strings and moves as square
// pairs; legality, application, and terminal detection are delegated here.
package rules

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// StartingFEN is the canonical initial position.
const StartingFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// ErrNoLegalMove reports that no legal move exists for the requested
// source/destination pair in the given position.
var ErrNoLegalMove = errors.New("no legal move for square pair")

// MoveResult describes the position after a successfully applied move.
type MoveResult struct {
	FEN                  string
	SAN                  string
	Checkmate            bool
	Stalemate            bool
	InsufficientMaterial bool
}

func gameFromFEN(fen string) (*nchess.Game, error) {
	opt, err := nchess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("parse fen: %w", err)
	}
	return nchess.NewGame(opt), nil
}

func parseSquare(s string) (nchess.Square, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return 0, fmt.Errorf("invalid square %q", s)
	}
	return nchess.NewSquare(nchess.File(s[0]-'a'), nchess.Rank(s[1]-'1')), nil
}

// OwnsPiece reports whether the given square holds a piece of the given
// color in the position.
func OwnsPiece(fen string, white bool, square string) (bool, error) {
	game, err := gameFromFEN(fen)
	if err != nil {
		return false, err
	}
	sq, err := parseSquare(square)
	if err != nil {
		return false, nil
	}
	piece := game.Position().Board().Piece(sq)
	if piece == nchess.NoPiece {
		return false, nil
	}
	color := nchess.Black
	if white {
		color = nchess.White
	}
	return piece.Color() == color, nil
}

// WhiteToMove reports which side the position expects to move next.
func WhiteToMove(fen string) (bool, error) {
	game, err := gameFromFEN(fen)
	if err != nil {
		return false, err
	}
	return game.Position().Turn() == nchess.White, nil
}

// Apply looks up the unique legal move for the square pair (plus optional
// promotion piece letter) and applies it. Returns ErrNoLegalMove when the
// pair does not name a legal move; the input position is never mutated.
func Apply(fen, from, to, promotion string) (*MoveResult, error) {
	game, err := gameFromFEN(fen)
	if err != nil {
		return nil, err
	}
	if _, err := parseSquare(from); err != nil {
		return nil, ErrNoLegalMove
	}
	if _, err := parseSquare(to); err != nil {
		return nil, ErrNoLegalMove
	}
	uci := strings.ToLower(strings.TrimSpace(from) + strings.TrimSpace(to) + strings.TrimSpace(promotion))
	pos := game.Position()
	mv, err := nchess.UCINotation{}.Decode(pos, uci)
	if err != nil {
		return nil, ErrNoLegalMove
	}
	san := nchess.AlgebraicNotation{}.Encode(pos, mv)
	if err := game.PushNotationMove(uci, nchess.UCINotation{}, nil); err != nil {
		return nil, ErrNoLegalMove
	}
	return &MoveResult{
		FEN:                  game.FEN(),
		SAN:                  san,
		Checkmate:            game.Method() == nchess.Checkmate,
		Stalemate:            game.Method() == nchess.Stalemate,
		InsufficientMaterial: game.Method() == nchess.InsufficientMaterial,
	}, nil
}

// IsCheckmate reports whether the position is checkmate for the side to move.
func IsCheckmate(fen string) (bool, error) {
	game, err := gameFromFEN(fen)
	if err != nil {
		return false, err
	}
	return game.Method() == nchess.Checkmate, nil
}

// IsStalemate reports whether the position is stalemate.
func IsStalemate(fen string) (bool, error) {
	game, err := gameFromFEN(fen)
	if err != nil {
		return false, err
	}
	return game.Method() == nchess.Stalemate, nil
}

// IsInsufficientMaterial reports whether neither side can mate.
func IsInsufficientMaterial(fen string) (bool, error) {
	game, err := gameFromFEN(fen)
	if err != nil {
		return false, err
	}
	return game.Method() == nchess.InsufficientMaterial, nil
}
