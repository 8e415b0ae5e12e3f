// Package selectors extracts the externally callable function selectors of a contract and its ancestors.
package selectors

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/crytic/medusa-geth/crypto"
	"github.com/crytic/routerguard/analysis/astquery"
	"github.com/crytic/routerguard/analysis/dependencies"
	"github.com/crytic/routerguard/compilation/types"
	"github.com/holiman/uint256"
	"golang.org/x/exp/slices"
)

// SelectorLength is the byte length of a function selector.
const SelectorLength = 4

// FunctionSelector is a 4-byte function selector together with the contract that declares it.
type FunctionSelector struct {
	// Selector is the normalized selector, "0x" followed by 8 lowercase hex digits
	Selector string `json:"selector"`
	// FunctionName is the name of the declaring function
	FunctionName string `json:"name"`
	// ContractName is the name of the declaring contract
	ContractName string `json:"contractName"`
	// FullyQualifiedName is "<sourcePath>:<contractName>" of the declaring contract
	FullyQualifiedName string `json:"contractFullyQualifiedName"`
}

// Equal reports whether two selectors share the same 4-byte value, regardless of the declaring contract.
func (s FunctionSelector) Equal(other FunctionSelector) bool {
	return s.Selector == other.Selector
}

// String returns a human-readable representation of the selector.
func (s FunctionSelector) String() string {
	return fmt.Sprintf("%s (%s.%s)", s.Selector, s.ContractName, s.FunctionName)
}

// NormalizeSelector converts a hex selector, with or without 0x prefix and in any case, into "0x" followed by 8
// lowercase hex digits. Returns false if the value is not hex or does not fit in four bytes.
func NormalizeSelector(value string) (string, bool) {
	value = strings.TrimSpace(value)
	value = strings.TrimPrefix(strings.TrimPrefix(value, "0x"), "0X")
	return normalize(value, 16)
}

// NormalizeLiteralSelector normalizes a selector written as a Yul number literal, either 0x-prefixed hex or decimal.
func NormalizeLiteralSelector(value string) (string, bool) {
	value = strings.TrimSpace(value)
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return normalize(value[2:], 16)
	}
	return normalize(value, 10)
}

func normalize(digits string, base int) (string, bool) {
	if digits == "" {
		return "", false
	}
	b, ok := new(big.Int).SetString(digits, base)
	if !ok || b.Sign() < 0 {
		return "", false
	}
	n, overflow := uint256.FromBig(b)
	if overflow || n.BitLen() > 8*SelectorLength {
		return "", false
	}
	return fmt.Sprintf("0x%08x", n.Uint64()), true
}

// ComputeSelector returns the normalized selector of a canonical function signature such as "transfer(address,uint256)".
func ComputeSelector(signature string) string {
	return "0x" + hex.EncodeToString(crypto.Keccak256([]byte(signature))[:SelectorLength])
}

// FindFunctionSelectors returns the selectors of every externally callable function declared by a contract or any
// contract in its dependency chain, in dependency chain order. Selectors inherited through several paths, or
// overridden along the chain, appear more than once.
func FindFunctionSelectors(fullyQualifiedName string, sourceUnits []*types.SourceUnit) []FunctionSelector {
	selectors := make([]FunctionSelector, 0)
	for _, dependency := range dependencies.FindContractDependencies(fullyQualifiedName, sourceUnits) {
		contract, ok := dependencies.FindContract(dependency, sourceUnits)
		if !ok {
			continue
		}
		functions := astquery.FindAll(contract, func(f *types.FunctionDefinition) bool {
			return f.FunctionSelector != ""
		})
		for _, function := range functions {
			selector, ok := NormalizeSelector(function.FunctionSelector)
			if !ok {
				continue
			}
			selectors = append(selectors, FunctionSelector{
				Selector:           selector,
				FunctionName:       function.Name,
				ContractName:       contract.Name,
				FullyQualifiedName: dependency,
			})
		}
	}
	return selectors
}

// FindABISelectors returns the selectors of every method in a compiled contract's ABI, sorted by selector. The ABI
// already includes inherited functions, so every selector is attributed to the contract itself.
func FindABISelectors(contract types.CompiledContract) []FunctionSelector {
	selectors := make([]FunctionSelector, 0, len(contract.Abi.Methods))
	for _, method := range contract.Abi.Methods {
		selectors = append(selectors, FunctionSelector{
			Selector:           ComputeSelector(method.Sig),
			FunctionName:       method.Name,
			ContractName:       contract.Name,
			FullyQualifiedName: contract.FullyQualifiedName(),
		})
	}
	slices.SortFunc(selectors, func(a, b FunctionSelector) int {
		return strings.Compare(a.Selector, b.Selector)
	})
	return selectors
}

// FindModuleSelectors returns the selectors of a module, taken from the AST when the compiler emits selectors there
// and from the compiled ABI otherwise.
func FindModuleSelectors(fullyQualifiedName string, compilation *types.Compilation) []FunctionSelector {
	if compilation.SupportsASTSelectors() {
		return FindFunctionSelectors(fullyQualifiedName, compilation.SourceUnits)
	}
	contract, ok := compilation.Contracts[fullyQualifiedName]
	if !ok {
		return []FunctionSelector{}
	}
	return FindABISelectors(contract)
}

// Contains reports whether a selector value is present in a list.
func Contains(selectors []FunctionSelector, selector string) bool {
	return slices.ContainsFunc(selectors, func(s FunctionSelector) bool { return s.Selector == selector })
}

// Unique returns the selectors with repeated values removed, keeping the first occurrence of each.
func Unique(selectors []FunctionSelector) []FunctionSelector {
	seen := make(map[string]struct{}, len(selectors))
	unique := make([]FunctionSelector, 0, len(selectors))
	for _, selector := range selectors {
		if _, ok := seen[selector.Selector]; ok {
			continue
		}
		seen[selector.Selector] = struct{}{}
		unique = append(unique, selector)
	}
	return unique
}
