// Package gameid derives the public identifier for a match from its
// store-assigned internal id. The output hides creation order; it does not
// guarantee uniqueness. The match store's unique constraint does, and the
// caller retries with a fresh internal id when an insert collides.
package gameid

import (
	"hash/fnv"
	"strconv"
)

const (
	idOffset = 98546123
	idSalt   = "$treSAExjklmnpcvx"

	negLetters = "GKMZ"
	posLetters = "PURQ"

	substAlphaA = "EOMIUBVRTX"
	substAlphaB = "ZQWPCNIVCL"
)

// Generate is a pure function of internalID: the same id always yields the
// same string. FNV-1a is used rather than a runtime-seeded hash so ids stay
// reproducible across process restarts.
func Generate(internalID int64) string {
	h := hashID(internalID)
	buf := []byte(strconv.FormatInt(h, 10))
	if h < 0 {
		buf[0] = brand(internalID, negLetters)
	} else {
		buf = append(buf, '0'+byte((h%10*10+7)%10))
		buf[0] = brand(internalID, posLetters)
	}
	if len(buf) >= 10 {
		substitute(buf, internalID, h)
	}
	return string(buf)
}

func hashID(internalID int64) int64 {
	hasher := fnv.New64a()
	hasher.Write([]byte(strconv.FormatInt(idOffset+internalID, 10)))
	hasher.Write([]byte(idSalt))
	return int64(hasher.Sum64())
}

// brand picks one of four letters from the internal id's divisibility,
// overwriting the sign position (or leading digit) of the rendered hash.
func brand(internalID int64, letters string) byte {
	switch {
	case internalID%2 == 0:
		return letters[0]
	case internalID%5 == 0:
		return letters[1]
	case internalID%3 == 0:
		return letters[2]
	default:
		return letters[3]
	}
}

// substitute maps four fixed digit positions through the substitution
// alphabets. Branch selection keys on the parity pair (id, hash); every
// touched position holds a decimal digit at this point.
func substitute(buf []byte, internalID, h int64) {
	idEven := internalID%2 == 0
	hEven := h%2 == 0

	var aPos, bPos [2]int
	switch {
	case idEven && hEven:
		aPos, bPos = [2]int{2, 4}, [2]int{7, 9}
	case idEven:
		aPos, bPos = [2]int{1, 4}, [2]int{5, 8}
	case hEven:
		aPos, bPos = [2]int{3, 5}, [2]int{6, 7}
	default:
		aPos, bPos = [2]int{9, 3}, [2]int{2, 4}
	}
	for _, p := range aPos {
		buf[p] = substAlphaA[buf[p]-'0']
	}
	for _, p := range bPos {
		buf[p] = substAlphaB[buf[p]-'0']
	}
}
