package mapper

import (
	"slices"

	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding so the same id set always
// produces the same bytes.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("mapper: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		MaxArrayElements: 1 << 16,
	}.DecMode()
	if err != nil {
		panic("mapper: CBOR decoder initialization failed: " + err.Error())
	}
}

// EncodeIDs encodes a set of user ids as a sorted, de-duplicated CBOR
// array. An empty set encodes as nil.
func EncodeIDs(ids []string) []byte {
	set := normalize(ids)
	if len(set) == 0 {
		return nil
	}
	b, err := encMode.Marshal(set)
	if err != nil {
		// A []string always encodes.
		return nil
	}
	return b
}

// DecodeIDs decodes an id set written by EncodeIDs. Malformed input
// yields an empty set.
func DecodeIDs(b []byte) []string {
	if len(b) == 0 {
		return []string{}
	}
	var ids []string
	if err := decMode.Unmarshal(b, &ids); err != nil {
		return []string{}
	}
	return normalize(ids)
}

// ContainsID reports whether the encoded set holds id.
func ContainsID(b []byte, id string) bool {
	_, found := slices.BinarySearch(DecodeIDs(b), id)
	return found
}

func normalize(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
