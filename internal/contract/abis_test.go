package contract_test

import (
	"testing"

	"github.com/Mohsinsiddi/curvesim/internal/contract"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// GetBuiltin / GetBuiltinABI / AllBuiltins
// ---------------------------------------------------------------------------

func TestGetBuiltinFound(t *testing.T) {
	contract.RegisterBuiltin(contract.BuiltinKind{
		ID:   "test-builtin-found",
		Name: "Test Token",
		ABI:  []contract.ABIEntry{{Name: "transfer", Type: "function"}},
	})

	b, ok := contract.GetBuiltin("test-builtin-found")
	require.True(t, ok)
	assert.Equal(t, "Test Token", b.Name)
	assert.Len(t, b.ABI, 1)
}

func TestGetBuiltinNotFound(t *testing.T) {
	_, ok := contract.GetBuiltin("this-id-does-not-exist-xyz")
	assert.False(t, ok)
	assert.Nil(t, contract.GetBuiltinABI("this-id-does-not-exist-xyz"))
}

func TestAllBuiltinsSortedAndIncludesCurve(t *testing.T) {
	contract.RegisterBuiltin(contract.BuiltinKind{ID: "zzz-test", Name: "ZZZ"})
	contract.RegisterBuiltin(contract.BuiltinKind{ID: "aaa-test", Name: "AAA"})

	all := contract.AllBuiltins()
	ids := make([]string, len(all))
	for i, b := range all {
		ids[i] = b.ID
	}
	assert.IsNonDecreasing(t, ids)
	assert.Contains(t, ids, contract.BondingCurveID)
	assert.Contains(t, ids, contract.PoolID)
}

func TestRegisterBuiltinOverwrites(t *testing.T) {
	id := "test-overwrite-builtin"
	contract.RegisterBuiltin(contract.BuiltinKind{ID: id, Name: "First"})
	contract.RegisterBuiltin(contract.BuiltinKind{ID: id, Name: "Second"})

	b, ok := contract.GetBuiltin(id)
	require.True(t, ok)
	assert.Equal(t, "Second", b.Name)
}

// ---------------------------------------------------------------------------
// Signatures and selectors
// ---------------------------------------------------------------------------

func TestERC20SelectorsAreStandard(t *testing.T) {
	want := map[string]string{
		"totalSupply": "0x18160ddd",
		"balanceOf":   "0x70a08231",
		"transfer":    "0xa9059cbb",
	}
	for _, e := range contract.GetBuiltinABI(contract.BondingCurveID) {
		if sel, ok := want[e.Name]; ok && e.Type == "function" {
			assert.Equal(t, sel, e.Selector(), e.Signature())
			delete(want, e.Name)
		}
	}
	assert.Empty(t, want, "missing ERC-20 functions")
}

func TestTransferEventTopic(t *testing.T) {
	e := contract.ABIEntry{Name: "Transfer", Type: "event", Inputs: []contract.ABIParam{
		{Name: "from", Type: "address", Indexed: true},
		{Name: "to", Type: "address", Indexed: true},
		{Name: "value", Type: "uint256"},
	}}
	assert.Equal(t, "Transfer(address,address,uint256)", e.Signature())
	assert.Equal(t,
		common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"),
		common.Hash(e.Hash()))
}

func TestHashesMatchGethABI(t *testing.T) {
	for _, id := range []string{contract.BondingCurveID, contract.PoolID} {
		entries := contract.GetBuiltinABI(id)
		parsed, err := contract.ParseABI(entries)
		require.NoError(t, err, id)

		for _, e := range entries {
			switch e.Type {
			case "event":
				ev, ok := parsed.Events[e.Name]
				require.True(t, ok, e.Name)
				assert.Equal(t, ev.ID, common.Hash(e.Hash()), e.Name)
			case "function":
				m, ok := parsed.Methods[e.Name]
				require.True(t, ok, e.Name)
				assert.Equal(t, common.Bytes2Hex(m.ID), e.Selector()[2:], e.Name)
			}
		}
	}
}

func TestReadWriteClassification(t *testing.T) {
	reads, writes := 0, 0
	for _, e := range contract.GetBuiltinABI(contract.BondingCurveID) {
		if e.IsReadFunction() {
			reads++
		}
		if e.IsWriteFunction() {
			writes++
		}
	}
	assert.Equal(t, 10, reads)
	assert.Equal(t, 5, writes)
}
