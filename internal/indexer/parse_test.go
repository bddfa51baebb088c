package indexer

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddressesDedupes(t *testing.T) {
	got, err := ParseAddresses([]string{
		"0xbEbc44782C7dB0a1A60Cb6fe97d0b483032FF1C7",
		" ",
		"0xbebc44782c7db0a1a60cb6fe97d0b483032ff1c7",
	})
	require.NoError(t, err)
	assert.Equal(t, []common.Address{common.HexToAddress("0xbEbc44782C7dB0a1A60Cb6fe97d0b483032FF1C7")}, got)

	_, err = ParseAddresses([]string{"0x1234"})
	assert.Error(t, err)
}

func TestParseTopic0SortsAndDedupes(t *testing.T) {
	a := "0x8b3e96f2b889fa771c53c981b40daf005f63f637f1869f707052d15a3dd97140"
	b := "0x0b4dd0a3bf3b4b7c1b5d1e0c5f1e2d3c4b5a69788796a5b4c3d2e1f0a9b8c7d6"
	got, err := ParseTopic0([]string{a, b, a})
	require.NoError(t, err)
	assert.Equal(t, []common.Hash{common.HexToHash(b), common.HexToHash(a)}, got)

	_, err = ParseTopic0([]string{"0x1234"})
	assert.Error(t, err)
	_, err = ParseTopic0([]string{"swap"})
	assert.Error(t, err)
}
