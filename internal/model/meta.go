package model

import "math/big"

// EventMeta is the block and transaction context an event arrived with.
type EventMeta struct {
	Block     uint64
	Timestamp uint64
	Tx        string
	LogIndex  uint64
}

// BlockNumber is the block as a call argument. Zero means latest.
func (m EventMeta) BlockNumber() *big.Int {
	if m.Block == 0 {
		return nil
	}
	return new(big.Int).SetUint64(m.Block)
}

// Meta extracts the event context of a record.
func (r TypedEventRecord) Meta() EventMeta {
	return EventMeta{Block: r.BlockNumber, Timestamp: r.Timestamp, Tx: NormalizeAddress(r.TxHash), LogIndex: r.LogIndex}
}
