package wallet

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hardhatKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

// reopen builds a fresh manager over the wallet book at path.
func reopen(path string) *Manager {
	return NewManager(WithStore(NewJSONStore(path)))
}

// ---------------------------------------------------------------------------
// Persisted wallet book
// ---------------------------------------------------------------------------

func TestNamedWalletSurvivesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallets.json")
	_, err := reopen(path).AddNamed("deployer")
	require.NoError(t, err)

	w, err := reopen(path).Get("deployer")
	require.NoError(t, err)
	assert.Equal(t, TypeNamed, w.Type)
	assert.Equal(t, Derive("deployer").Hex(), w.Address)
	assert.Equal(t, common.HexToAddress(w.Address).Hex(), w.Address, "stored address is checksummed")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"address": "`+Derive("deployer").Hex()+`"`)
}

func TestImportedWalletSurvivesReloadWithoutKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallets.json")
	_, err := reopen(path).AddWithKey("whale", hardhatKey)
	require.NoError(t, err)

	w, err := reopen(path).Get("whale")
	require.NoError(t, err)
	assert.Equal(t, TypeImported, w.Type)
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", w.Address)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), strings.TrimPrefix(hardhatKey, "0x"))
}

func TestWatchOnlyAddressIsChecksummedOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallets.json")
	require.NoError(t, reopen(path).Add("pool", &Wallet{
		Address: "0x00000000000000000000000000000000000000c1",
	}))

	loaded, err := NewJSONStore(path).Load()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, TypeWatchOnly, loaded[0].Type)
	assert.Equal(t, common.HexToAddress("0xc1").Hex(), loaded[0].Address)
}

func TestResolveReadsPersistedBook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallets.json")
	_, err := reopen(path).AddWithKey("whale", hardhatKey)
	require.NoError(t, err)

	mgr := reopen(path)
	addr, err := mgr.Resolve("whale")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), addr)
	assert.Equal(t, "whale", mgr.Label(addr))

	// Names not in the book still derive.
	addr, err = mgr.Resolve("bob")
	require.NoError(t, err)
	assert.Equal(t, Derive("bob"), addr)
}

func TestDefaultAndRemovalPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallets.json")
	mgr := reopen(path)
	for _, name := range []string{"alice", "bob", "deployer"} {
		_, err := mgr.AddNamed(name)
		require.NoError(t, err)
	}
	require.NoError(t, mgr.SetDefault("deployer"))
	require.NoError(t, mgr.Remove("bob"))

	mgr = reopen(path)
	var names []string
	for _, w := range mgr.List() {
		names = append(names, w.Name)
	}
	assert.Equal(t, []string{"alice", "deployer"}, names)
	require.NotNil(t, mgr.Default())
	assert.Equal(t, "deployer", mgr.Default().Name)
}

// ---------------------------------------------------------------------------
// JSONStore file handling
// ---------------------------------------------------------------------------

func TestMissingBookLoadsEmpty(t *testing.T) {
	wallets, err := NewJSONStore(filepath.Join(t.TempDir(), "none.json")).Load()
	require.NoError(t, err)
	assert.Nil(t, wallets)
	assert.Empty(t, reopen(filepath.Join(t.TempDir(), "none.json")).List())
}

func TestCorruptBookFailsLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallets.json")
	require.NoError(t, os.WriteFile(path, []byte("{not valid json"), 0o600))

	_, err := reopen(path).AddNamed("alice")
	require.Error(t, err)
}
