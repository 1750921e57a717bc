package blob

import "errors"

var _ Store = (*MemStore)(nil)

// Block records one uploaded block as seen by the store.
type Block struct {
	Index    int
	Data     []byte
	Checksum uint64
}

// MemStore is an in-memory Store used by tests and the simulator. Failures
// can be scripted per block index.
type MemStore struct {
	Blocks    map[string][]Block
	Committed map[string]bool

	// FailAtIndex makes PutBlock fail once the given index is reached.
	// Negative means never fail.
	FailAtIndex int
	// FailCommit makes Commit fail.
	FailCommit bool
}

func NewMemStore() *MemStore {
	return &MemStore{
		Blocks:      make(map[string][]Block),
		Committed:   make(map[string]bool),
		FailAtIndex: -1,
	}
}

func (m *MemStore) PutBlock(name string, index int, block []byte, checksum uint64) error {
	if m.FailAtIndex >= 0 && index >= m.FailAtIndex {
		return errors.New("memstore: scripted block failure")
	}
	m.Blocks[name] = append(m.Blocks[name], Block{
		Index:    index,
		Data:     append([]byte(nil), block...),
		Checksum: checksum,
	})
	return nil
}

func (m *MemStore) Commit(name string, ok bool) error {
	if m.FailCommit {
		return errors.New("memstore: scripted commit failure")
	}
	m.Committed[name] = ok
	return nil
}

// Bytes reassembles the committed blob contents in block order.
func (m *MemStore) Bytes(name string) []byte {
	var out []byte
	for _, b := range m.Blocks[name] {
		out = append(out, b.Data...)
	}
	return out
}
