package block

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"

	"github.com/votapow/votapow-chain/pkg/crypto"
	"github.com/votapow/votapow-chain/pkg/types"
)

// Header contains block metadata.
type Header struct {
	Version        uint32        `json:"version"`
	PrevHash       types.Hash    `json:"prev_hash"`
	MerkleRoot     types.Hash    `json:"merkle_root"`
	ValidatorRoot  types.Hash    `json:"validator_root,omitempty"` // Merkle root of the block's embedded votes.
	Timestamp      uint64        `json:"timestamp"`
	Height         uint64        `json:"height"`
	Difficulty     uint64        `json:"difficulty,omitempty"` // PoW: target difficulty (0 for PoA blocks)
	Target         types.Hash    `json:"target,omitempty"`     // PoW: 256-bit target derived from Difficulty, big-endian.
	Nonce          uint64        `json:"nonce"`
	MinerAddress   types.Address `json:"miner_address,omitempty"`
	MinerPublicKey []byte        `json:"miner_public_key,omitempty"`
	ValidatorSig   []byte        `json:"validator_sig,omitempty"` // The header signature, verified under MinerPublicKey for PoW.
}

// headerJSON is the JSON representation of Header with hex-encoded byte slices.
type headerJSON struct {
	Version        uint32        `json:"version"`
	PrevHash       types.Hash    `json:"prev_hash"`
	MerkleRoot     types.Hash    `json:"merkle_root"`
	ValidatorRoot  types.Hash    `json:"validator_root,omitempty"`
	Timestamp      uint64        `json:"timestamp"`
	Height         uint64        `json:"height"`
	Difficulty     uint64        `json:"difficulty,omitempty"`
	Target         types.Hash    `json:"target,omitempty"`
	Nonce          uint64        `json:"nonce"`
	MinerAddress   types.Address `json:"miner_address,omitempty"`
	MinerPublicKey string        `json:"miner_public_key,omitempty"`
	ValidatorSig   string        `json:"validator_sig,omitempty"`
}

// MarshalJSON encodes the header with hex-encoded byte-slice fields.
func (h *Header) MarshalJSON() ([]byte, error) {
	j := headerJSON{
		Version:       h.Version,
		PrevHash:      h.PrevHash,
		MerkleRoot:    h.MerkleRoot,
		ValidatorRoot: h.ValidatorRoot,
		Timestamp:     h.Timestamp,
		Height:        h.Height,
		Difficulty:    h.Difficulty,
		Target:        h.Target,
		Nonce:         h.Nonce,
		MinerAddress:  h.MinerAddress,
	}
	if h.MinerPublicKey != nil {
		j.MinerPublicKey = hex.EncodeToString(h.MinerPublicKey)
	}
	if h.ValidatorSig != nil {
		j.ValidatorSig = hex.EncodeToString(h.ValidatorSig)
	}
	return json.Marshal(j)
}

// UnmarshalJSON decodes a header with hex-encoded byte-slice fields.
func (h *Header) UnmarshalJSON(data []byte) error {
	var j headerJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	h.Version = j.Version
	h.PrevHash = j.PrevHash
	h.MerkleRoot = j.MerkleRoot
	h.ValidatorRoot = j.ValidatorRoot
	h.Timestamp = j.Timestamp
	h.Height = j.Height
	h.Difficulty = j.Difficulty
	h.Target = j.Target
	h.Nonce = j.Nonce
	h.MinerAddress = j.MinerAddress
	if j.MinerPublicKey != "" {
		b, err := hex.DecodeString(j.MinerPublicKey)
		if err != nil {
			return err
		}
		h.MinerPublicKey = b
	}
	if j.ValidatorSig != "" {
		b, err := hex.DecodeString(j.ValidatorSig)
		if err != nil {
			return err
		}
		h.ValidatorSig = b
	}
	return nil
}

// Hash computes the block header hash.
// Excludes ValidatorSig so the hash is stable for signing.
func (h *Header) Hash() types.Hash {
	return crypto.Hash(h.SigningBytes())
}

// SigningBytes returns the canonical pre-signature header encoding
// ("header_base"): every field except ValidatorSig itself. Nonce is
// appended last so miners can hash a fixed prefix plus an 8-byte nonce
// per attempt (see internal/consensus.signingPrefix).
// Format: version(4) | prev_hash(32) | merkle_root(32) | validator_root(32) |
// timestamp(8) | height(8) | difficulty(8) | target(32) | miner_address(20) |
// miner_public_key(var) | nonce(8)
func (h *Header) SigningBytes() []byte {
	buf := make([]byte, 0, 180+len(h.MinerPublicKey))
	buf = binary.LittleEndian.AppendUint32(buf, h.Version)
	buf = append(buf, h.PrevHash[:]...)
	buf = append(buf, h.MerkleRoot[:]...)
	buf = append(buf, h.ValidatorRoot[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, h.Timestamp)
	buf = binary.LittleEndian.AppendUint64(buf, h.Height)
	buf = binary.LittleEndian.AppendUint64(buf, h.Difficulty)
	buf = append(buf, h.Target[:]...)
	buf = append(buf, h.MinerAddress[:]...)
	buf = append(buf, h.MinerPublicKey...)
	buf = binary.LittleEndian.AppendUint64(buf, h.Nonce)
	return buf
}
