package contract

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"golang.org/x/crypto/sha3"
)

// ABIEntry is one ABI entry (function, event, etc.).
type ABIEntry struct {
	Name            string     `json:"name"`
	Type            string     `json:"type"`
	Inputs          []ABIParam `json:"inputs"`
	Outputs         []ABIParam `json:"outputs"`
	StateMutability string     `json:"stateMutability,omitempty"`
}

// ABIParam is a parameter in an ABI entry.
type ABIParam struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Indexed bool   `json:"indexed,omitempty"`
}

// IsReadFunction returns true if the function is read-only (view/pure).
func (e ABIEntry) IsReadFunction() bool {
	return e.Type == "function" &&
		(e.StateMutability == "view" || e.StateMutability == "pure")
}

// IsWriteFunction returns true if the function modifies state.
func (e ABIEntry) IsWriteFunction() bool {
	return e.Type == "function" &&
		(e.StateMutability == "nonpayable" || e.StateMutability == "payable")
}

// Signature returns the canonical signature, e.g. "Buy(address,uint256,uint256)".
func (e ABIEntry) Signature() string {
	types := make([]string, len(e.Inputs))
	for i, p := range e.Inputs {
		types[i] = p.Type
	}
	return e.Name + "(" + strings.Join(types, ",") + ")"
}

// Hash returns the keccak256 of the signature: topic0 for events, and the
// first four bytes are the selector for functions.
func (e ABIEntry) Hash() [32]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(e.Signature()))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Selector returns the 0x-prefixed 4-byte function selector.
func (e ABIEntry) Selector() string {
	h := e.Hash()
	return "0x" + hex.EncodeToString(h[:4])
}

// BuiltinKind is a contract interface whose ABI is compiled into the binary.
// Each one registers itself from init() in its own <name>_abi.go file.
type BuiltinKind struct {
	ID          string     // machine key, e.g. "bondingcurve"
	Name        string     // human label
	Description string     // one-line summary
	ABI         []ABIEntry // full ABI
}

var builtinRegistry = map[string]BuiltinKind{}

// RegisterBuiltin adds a built-in ABI to the registry.
func RegisterBuiltin(b BuiltinKind) {
	builtinRegistry[b.ID] = b
}

// GetBuiltin returns a built-in by ID. ok is false if not found.
func GetBuiltin(id string) (BuiltinKind, bool) {
	b, ok := builtinRegistry[id]
	return b, ok
}

// GetBuiltinABI returns the ABI entries for a built-in ID, or nil if unknown.
func GetBuiltinABI(id string) []ABIEntry {
	b, ok := builtinRegistry[id]
	if !ok {
		return nil
	}
	return b.ABI
}

// AllBuiltins returns all registered built-ins sorted by ID.
func AllBuiltins() []BuiltinKind {
	out := make([]BuiltinKind, 0, len(builtinRegistry))
	for _, b := range builtinRegistry {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ParseABI converts entries to a go-ethereum ABI.
func ParseABI(entries []ABIEntry) (abi.ABI, error) {
	data, err := json.Marshal(entries)
	if err != nil {
		return abi.ABI{}, err
	}
	parsed, err := abi.JSON(strings.NewReader(string(data)))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parsing abi: %w", err)
	}
	return parsed, nil
}
