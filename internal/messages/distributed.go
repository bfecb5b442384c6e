package messages

// DistributedSearchRequestMsg is forwarded down the distributed tree from a
// parent to its children (spec §4.6 "forwarding").
type DistributedSearchRequestMsg struct {
	Username string
	Token    uint32
	Text     string
}

// Encode serializes a distributed SearchRequest payload.
func (m DistributedSearchRequestMsg) Encode() []byte {
	return NewWriter().String(m.Username).Uint32(m.Token).String(m.Text).Payload()
}

// DecodeDistributedSearchRequest parses a distributed SearchRequest payload.
func DecodeDistributedSearchRequest(payload []byte) (DistributedSearchRequestMsg, error) {
	r := NewReader(payload)
	m := DistributedSearchRequestMsg{
		Username: r.String(),
		Token:    r.Uint32(),
		Text:     r.String(),
	}
	return m, r.Err
}

// BranchLevelMsg announces this node's depth in the distributed tree.
type BranchLevelMsg struct {
	Level uint32
}

// Encode serializes a BranchLevel payload.
func (m BranchLevelMsg) Encode() []byte {
	return NewWriter().Uint32(m.Level).Payload()
}

// DecodeBranchLevel parses a BranchLevel payload.
func DecodeBranchLevel(payload []byte) (BranchLevelMsg, error) {
	r := NewReader(payload)
	return BranchLevelMsg{Level: r.Uint32()}, r.Err
}

// BranchRootMsg announces the username of this node's subtree root.
type BranchRootMsg struct {
	Username string
}

// Encode serializes a BranchRoot payload.
func (m BranchRootMsg) Encode() []byte {
	return NewWriter().String(m.Username).Payload()
}

// DecodeBranchRoot parses a BranchRoot payload.
func DecodeBranchRoot(payload []byte) (BranchRootMsg, error) {
	r := NewReader(payload)
	return BranchRootMsg{Username: r.String()}, r.Err
}
