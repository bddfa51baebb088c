package model

// LogRecord is the normalized representation of a chain log for storage.
type LogRecord struct {
	ChainID     uint64   `json:"chain_id"`
	BlockNumber uint64   `json:"block_number"`
	BlockHash   string   `json:"block_hash"`
	TxHash      string   `json:"tx_hash"`
	TxIndex     uint64   `json:"tx_index"`
	LogIndex    uint64   `json:"log_index"`
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	Removed     bool     `json:"removed"`
	Timestamp   uint64   `json:"timestamp"`
	IngestedAt  string   `json:"ingested_at"`
}

// Key identifies a log across overlapping fetch ranges.
func (lr LogRecord) Key() string {
	return join(u64(lr.BlockNumber), lr.TxHash, u64(lr.LogIndex))
}

// Position returns the log's place in the chain.
func (lr LogRecord) Position() Position {
	return Position{Block: lr.BlockNumber, TxIndex: lr.TxIndex, LogIndex: lr.LogIndex}
}
