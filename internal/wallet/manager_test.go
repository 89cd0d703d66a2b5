package wallet_test

import (
	"testing"

	"github.com/Mohsinsiddi/curvesim/internal/wallet"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddWatchOnlyWallet(t *testing.T) {
	mgr := wallet.NewManager(wallet.WithInMemoryStore())

	err := mgr.Add("mywallet", &wallet.Wallet{
		Address: "0x1234567890abcdef1234567890abcdef12345678",
		Type:    wallet.TypeWatchOnly,
	})
	require.NoError(t, err)

	w, err := mgr.Get("mywallet")
	require.NoError(t, err)
	assert.Equal(t, "mywallet", w.Name)
	assert.Equal(t, wallet.TypeWatchOnly, w.Type)
	// Stored in checksum form.
	assert.Equal(t, common.HexToAddress("0x1234567890abcdef1234567890abcdef12345678").Hex(), w.Address)
}

func TestAddDuplicateWalletErrors(t *testing.T) {
	mgr := wallet.NewManager(wallet.WithInMemoryStore())

	_, err := mgr.AddNamed("dup")
	require.NoError(t, err)

	_, err = mgr.AddNamed("dup")
	assert.ErrorIs(t, err, wallet.ErrWalletExists)
}

func TestAddRejectsBadAddress(t *testing.T) {
	mgr := wallet.NewManager(wallet.WithInMemoryStore())
	err := mgr.Add("w", &wallet.Wallet{Address: "0x123..."})
	assert.ErrorIs(t, err, wallet.ErrInvalidAddress)
}

func TestAddRejectsBadName(t *testing.T) {
	mgr := wallet.NewManager(wallet.WithInMemoryStore())
	for _, name := range []string{"", "has space", "0xabc", "slash/name"} {
		_, err := mgr.AddNamed(name)
		assert.ErrorIs(t, err, wallet.ErrInvalidName, name)
	}
}

func TestAddWithKey(t *testing.T) {
	mgr := wallet.NewManager(wallet.WithInMemoryStore())

	w, err := mgr.AddWithKey("imported", "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	require.NoError(t, err)
	assert.Equal(t, wallet.TypeImported, w.Type)
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", w.Address) // known address for test key
}

func TestInvalidPrivateKey(t *testing.T) {
	mgr := wallet.NewManager(wallet.WithInMemoryStore())
	_, err := mgr.AddWithKey("bad", "not-a-valid-key")
	assert.ErrorIs(t, err, wallet.ErrInvalidKey)
}

func TestListWalletsSorted(t *testing.T) {
	mgr := wallet.NewManager(wallet.WithInMemoryStore())
	for _, n := range []string{"carol", "alice", "bob"} {
		_, err := mgr.AddNamed(n)
		require.NoError(t, err)
	}

	wallets := mgr.List()
	require.Len(t, wallets, 3)
	assert.Equal(t, "alice", wallets[0].Name)
	assert.Equal(t, "bob", wallets[1].Name)
	assert.Equal(t, "carol", wallets[2].Name)
}

func TestRemoveWallet(t *testing.T) {
	mgr := wallet.NewManager(wallet.WithInMemoryStore())
	mgr.AddNamed("w1") //nolint:errcheck

	err := mgr.Remove("w1")
	require.NoError(t, err)

	_, err = mgr.Get("w1")
	assert.ErrorIs(t, err, wallet.ErrWalletNotFound)
}

func TestRemoveNonExistentWallet(t *testing.T) {
	mgr := wallet.NewManager(wallet.WithInMemoryStore())
	err := mgr.Remove("ghost")
	assert.ErrorIs(t, err, wallet.ErrWalletNotFound)
}

func TestGetNonExistentWallet(t *testing.T) {
	mgr := wallet.NewManager(wallet.WithInMemoryStore())
	_, err := mgr.Get("ghost")
	assert.ErrorIs(t, err, wallet.ErrWalletNotFound)
}

func TestSetDefault(t *testing.T) {
	mgr := wallet.NewManager(wallet.WithInMemoryStore())
	mgr.AddNamed("w1") //nolint:errcheck
	mgr.AddNamed("w2") //nolint:errcheck

	require.NoError(t, mgr.SetDefault("w2"))

	def := mgr.Default()
	require.NotNil(t, def)
	assert.Equal(t, "w2", def.Name)
}

func TestDefaultWalletWithSingleWallet(t *testing.T) {
	mgr := wallet.NewManager(wallet.WithInMemoryStore())
	mgr.AddNamed("only") //nolint:errcheck

	def := mgr.Default()
	require.NotNil(t, def)
	assert.Equal(t, "only", def.Name)
}

func TestDefaultNoneWithSeveralWallets(t *testing.T) {
	mgr := wallet.NewManager(wallet.WithInMemoryStore())
	mgr.AddNamed("a") //nolint:errcheck
	mgr.AddNamed("b") //nolint:errcheck
	assert.Nil(t, mgr.Default())
}

func TestCreatedAtIsSet(t *testing.T) {
	mgr := wallet.NewManager(wallet.WithInMemoryStore())
	mgr.AddNamed("w") //nolint:errcheck

	w, _ := mgr.Get("w")
	assert.NotEmpty(t, w.CreatedAt)
}

// ---------------------------------------------------------------------------
// Derive / Resolve
// ---------------------------------------------------------------------------

func TestDeriveIsStableAndDistinct(t *testing.T) {
	assert.Equal(t, wallet.Derive("alice"), wallet.Derive("alice"))
	assert.NotEqual(t, wallet.Derive("alice"), wallet.Derive("bob"))
	assert.NotEqual(t, common.Address{}, wallet.Derive("alice"))

	want := common.BytesToAddress(crypto.Keccak256([]byte("curvesim:alice")))
	assert.Equal(t, want, wallet.Derive("alice"))
}

func TestAddNamedUsesDerivedAddress(t *testing.T) {
	mgr := wallet.NewManager(wallet.WithInMemoryStore())
	w, err := mgr.AddNamed("alice")
	require.NoError(t, err)
	assert.Equal(t, wallet.TypeNamed, w.Type)
	assert.Equal(t, wallet.Derive("alice"), w.Addr())
}

func TestResolveHexAddress(t *testing.T) {
	mgr := wallet.NewManager(wallet.WithInMemoryStore())
	addr, err := mgr.Resolve("0x00000000000000000000000000000000000000b1")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xb1"), addr)
}

func TestResolveRegisteredName(t *testing.T) {
	mgr := wallet.NewManager(wallet.WithInMemoryStore())
	require.NoError(t, mgr.Add("desk", &wallet.Wallet{Address: "0x00000000000000000000000000000000000000d1"}))

	addr, err := mgr.Resolve("desk")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xd1"), addr)
}

func TestResolveUnregisteredNameDerives(t *testing.T) {
	mgr := wallet.NewManager(wallet.WithInMemoryStore())
	addr, err := mgr.Resolve("bob")
	require.NoError(t, err)
	assert.Equal(t, wallet.Derive("bob"), addr)
}

func TestResolveRejectsMalformed(t *testing.T) {
	mgr := wallet.NewManager(wallet.WithInMemoryStore())
	_, err := mgr.Resolve("0x1234")
	assert.ErrorIs(t, err, wallet.ErrInvalidAddress)
	_, err = mgr.Resolve("two words")
	assert.ErrorIs(t, err, wallet.ErrInvalidName)
}

func TestLabel(t *testing.T) {
	mgr := wallet.NewManager(wallet.WithInMemoryStore())
	w, _ := mgr.AddNamed("alice")
	assert.Equal(t, "alice", mgr.Label(w.Addr()))
	assert.Equal(t, "0x0000…00b1", mgr.Label(common.HexToAddress("0xb1")))
}
