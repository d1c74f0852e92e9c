package rules

import "github.com/RoaringBitmap/roaring/v2"

// valueIndex maps a canonical byte encoding to the set of rule IDs that
// require an exact match on that value. Used for both numeric-exact and
// string-exact matching — both reduce to byte equality once the
// value is in its canonical Bits() form, so one structure serves both.
type valueIndex struct {
	table map[string]*roaring.Bitmap
}

func newValueIndex() *valueIndex {
	return &valueIndex{table: make(map[string]*roaring.Bitmap)}
}

func (x *valueIndex) add(bits []byte, ruleID int) {
	key := string(bits)
	bm, ok := x.table[key]
	if !ok {
		bm = roaring.New()
		x.table[key] = bm
	}
	bm.Add(uint32(ruleID))
}

func (x *valueIndex) lookup(bits []byte) *roaring.Bitmap {
	if bm, ok := x.table[string(bits)]; ok {
		return bm
	}
	return roaring.New()
}
