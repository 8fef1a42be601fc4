package zk

import (
	"strconv"
	"strings"
)

// State model kinds
const (
	ModelScalar = "scalar"
	ModelStruct = "struct"
	ModelList   = "list"
)

// Tree shape limits. A list deeper than this cannot be hashed in a sane
// number of steps and is rejected at contract creation.
const (
	MaxLog4Size   = 32
	MaxModelDepth = 16
)

// ZkStateModel describes the shape of a contract's state tree:
// a single scalar, a fixed heterogeneous struct, or a perfect 4-ary list
// of homogeneous items of depth Log4Size.
type ZkStateModel struct {
	Type       string         `json:"type"`
	FieldTypes []ZkStateModel `json:"field_types,omitempty"`
	ItemType   *ZkStateModel  `json:"item_type,omitempty"`
	Log4Size   uint8          `json:"log4_size,omitempty"`
}

// ScalarModel returns the single-scalar model.
func ScalarModel() ZkStateModel {
	return ZkStateModel{Type: ModelScalar}
}

// StructModel returns a struct model over the given field models.
func StructModel(fields ...ZkStateModel) ZkStateModel {
	return ZkStateModel{Type: ModelStruct, FieldTypes: fields}
}

// ListModel returns a 4-ary list model of depth log4Size over item.
func ListModel(item ZkStateModel, log4Size uint8) ZkStateModel {
	return ZkStateModel{Type: ModelList, ItemType: &item, Log4Size: log4Size}
}

// IsValid checks the model's structural sanity: known kinds, non-empty
// structs, bounded list depths and bounded nesting.
func (m *ZkStateModel) IsValid() bool {
	return m.isValidDepth(0)
}

func (m *ZkStateModel) isValidDepth(depth int) bool {
	if depth > MaxModelDepth {
		return false
	}
	switch m.Type {
	case ModelScalar:
		return true
	case ModelStruct:
		if len(m.FieldTypes) == 0 {
			return false
		}
		for i := range m.FieldTypes {
			if !m.FieldTypes[i].isValidDepth(depth + 1) {
				return false
			}
		}
		return true
	case ModelList:
		if m.ItemType == nil || m.Log4Size == 0 || m.Log4Size > MaxLog4Size {
			return false
		}
		return m.ItemType.isValidDepth(depth + 1)
	default:
		return false
	}
}

// Locate resolves a locator against the model and returns the sub-model it
// points at. The empty locator resolves to the model itself.
func (m *ZkStateModel) Locate(locator []uint64) (*ZkStateModel, error) {
	cur := m
	for _, idx := range locator {
		switch cur.Type {
		case ModelStruct:
			if idx >= uint64(len(cur.FieldTypes)) {
				return nil, ErrInvalidLocator
			}
			cur = &cur.FieldTypes[idx]
		case ModelList:
			if idx >= uint64(1)<<(2*uint(cur.Log4Size)) {
				return nil, ErrInvalidLocator
			}
			cur = cur.ItemType
		default:
			return nil, ErrInvalidLocator
		}
	}
	return cur, nil
}

// DefaultRoot returns the root of a fully unset subtree of this model.
// Defaults compose bottom-up: a scalar defaults to zero, a struct to the
// hash of its fields' defaults, and a list level k to the hash of the tag
// k together with four copies of level k-1.
func (m *ZkStateModel) DefaultRoot() ZkScalar {
	switch m.Type {
	case ModelScalar:
		return ZkScalarFromUint64(0)
	case ModelStruct:
		fields := make([]ZkScalar, 0, len(m.FieldTypes))
		for i := range m.FieldTypes {
			fields = append(fields, m.FieldTypes[i].DefaultRoot())
		}
		return HashScalars(fields...)
	case ModelList:
		cur := m.ItemType.DefaultRoot()
		for level := uint8(1); level <= m.Log4Size; level++ {
			cur = listNodeHash(level, cur, cur, cur, cur)
		}
		return cur
	default:
		return ZkScalarFromUint64(0)
	}
}

// defaultListLadder precomputes the default node per list level, 0..log4.
func defaultListLadder(item *ZkStateModel, log4Size uint8) []ZkScalar {
	ladder := make([]ZkScalar, log4Size+1)
	ladder[0] = item.DefaultRoot()
	for level := uint8(1); level <= log4Size; level++ {
		d := ladder[level-1]
		ladder[level] = listNodeHash(level, d, d, d, d)
	}
	return ladder
}

// listNodeHash hashes one internal 4-ary node: the level tag plus the four
// children (WIDTH = 5 inputs).
func listNodeHash(level uint8, c0, c1, c2, c3 ZkScalar) ZkScalar {
	return HashScalars(ZkScalarFromUint64(uint64(level)), c0, c1, c2, c3)
}

// LocatorString renders a locator as the dash-separated decimal form used
// inside KV keys. The empty locator renders as the empty string.
func LocatorString(locator []uint64) string {
	parts := make([]string, len(locator))
	for i, v := range locator {
		parts[i] = strconv.FormatUint(v, 10)
	}
	return strings.Join(parts, "-")
}

// ParseLocator parses the dash-separated decimal locator form.
func ParseLocator(s string) ([]uint64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, "-")
	locator := make([]uint64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return nil, ErrInvalidLocator
		}
		locator[i] = v
	}
	return locator, nil
}

// Compress computes the compressed state of the given data pairs laid out
// under this model: the tree root plus the count of non-default slots.
func (m *ZkStateModel) Compress(data ZkDataPairs) (ZkCompressedState, error) {
	builder, err := NewZkStateBuilder(*m)
	if err != nil {
		return ZkCompressedState{}, err
	}
	if err := builder.BatchSet(data.AsDelta()); err != nil {
		return ZkCompressedState{}, err
	}
	return builder.Compress()
}

// EmptyCompressed returns the compressed form of the fully unset state.
func (m *ZkStateModel) EmptyCompressed() ZkCompressedState {
	return ZkCompressedState{State: m.DefaultRoot(), Size: 0}
}
