package model

import "encoding/json"

// TypedEventRecord is the JSON form of a TypedEvent read back for
// processing; Decoded is resolved by EventName.
type TypedEventRecord struct {
	ChainID     uint64          `json:"chain_id"`
	BlockNumber uint64          `json:"block_number"`
	BlockHash   string          `json:"block_hash"`
	TxHash      string          `json:"tx_hash"`
	TxIndex     uint64          `json:"tx_index"`
	LogIndex    uint64          `json:"log_index"`
	Address     string          `json:"address"`
	EventName   string          `json:"event_name"`
	Timestamp   uint64          `json:"timestamp"`
	Decoded     json.RawMessage `json:"decoded"`
	Raw         *RawLogRef      `json:"raw,omitempty"`
}

// Position orders records by block, transaction and log index.
type Position struct {
	Block    uint64 `json:"block"`
	TxIndex  uint64 `json:"tx_index"`
	LogIndex uint64 `json:"log_index"`
}

// Position returns the record's place in the chain.
func (r TypedEventRecord) Position() Position {
	return Position{Block: r.BlockNumber, TxIndex: r.TxIndex, LogIndex: r.LogIndex}
}

// After reports whether p comes strictly after o.
func (p Position) After(o Position) bool {
	if p.Block != o.Block {
		return p.Block > o.Block
	}
	if p.TxIndex != o.TxIndex {
		return p.TxIndex > o.TxIndex
	}
	return p.LogIndex > o.LogIndex
}

// Decode unmarshals the payload into dst.
func (r TypedEventRecord) Decode(dst interface{}) error {
	return json.Unmarshal(r.Decoded, dst)
}
