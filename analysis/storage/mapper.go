package storage

import (
	"strings"

	"github.com/crytic/routerguard/analysis/astquery"
	"github.com/crytic/routerguard/analysis/dependencies"
	"github.com/crytic/routerguard/compilation/types"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

// ErrCyclicStruct is returned when a struct contains itself, directly or through other structs. The compiler
// rejects such value-type compositions, so this only happens with malformed ASTs.
var ErrCyclicStruct = errors.New("cyclic struct composition")

// ContractReference identifies the contract declaring a struct.
type ContractReference struct {
	Name string `json:"name"`
	ID   int    `json:"id"`
}

// StructMember is a single member of a flattened struct.
type StructMember struct {
	Name string `json:"name"`
	// Type is the compiler type string of the member, e.g. "address" or "struct OwnerNamespace.Inner"
	Type string `json:"type"`
	// ContractName and ContractID identify the contract declaring the struct the member belongs to
	ContractName string `json:"contractName"`
	ContractID   int    `json:"contractId"`
}

// StructLayout is a struct with its members flattened in declaration order.
type StructLayout struct {
	Name    string         `json:"name"`
	Members []StructMember `json:"members"`
}

// StorageNamespaceEntry is a single struct declared by a storage namespace contract.
type StorageNamespaceEntry struct {
	Contract ContractReference `json:"contract"`
	Struct   StructLayout      `json:"struct"`
}

// key returns the identity used to match entries across two maps.
func (e StorageNamespaceEntry) key() entryKey {
	return entryKey{contract: e.Contract.Name, structName: e.Struct.Name}
}

// entryKey is the (contract name, struct name) identity of a StorageNamespaceEntry.
type entryKey struct {
	contract   string
	structName string
}

// declaredStruct is a struct definition together with the contract declaring it.
type declaredStruct struct {
	contract   *types.ContractDefinition
	definition *types.StructDefinition
}

// BuildContractsStructMap returns one entry per struct declared directly in any of the provided contracts. Members
// whose type is a struct declared in one of the provided contracts are followed by that struct's flattened members.
// Entries are sorted by contract name, keeping discovery order among entries of the same contract.
//
// An error wrapping ErrCyclicStruct is returned if a struct contains itself.
func BuildContractsStructMap(contracts []*types.ContractDefinition) ([]StorageNamespaceEntry, error) {
	// Nested structs are resolved across every candidate contract, not only the one being walked
	index := make(map[string]declaredStruct)
	for _, contract := range contracts {
		for _, definition := range directStructs(contract) {
			if _, exists := index[definition.CanonicalName]; !exists {
				index[definition.CanonicalName] = declaredStruct{contract: contract, definition: definition}
			}
		}
	}

	entries := make([]StorageNamespaceEntry, 0)
	for _, contract := range contracts {
		for _, definition := range directStructs(contract) {
			members, err := flattenStruct(declaredStruct{contract: contract, definition: definition}, index, nil)
			if err != nil {
				return nil, err
			}
			entries = append(entries, StorageNamespaceEntry{
				Contract: ContractReference{Name: contract.Name, ID: contract.ID},
				Struct:   StructLayout{Name: definition.Name, Members: members},
			})
		}
	}

	slices.SortStableFunc(entries, func(a, b StorageNamespaceEntry) int {
		return strings.Compare(a.Contract.Name, b.Contract.Name)
	})
	return entries, nil
}

// flattenStruct returns the members of a struct, each nested struct member followed by its own flattened members.
// path holds the canonical names of the structs currently being flattened.
func flattenStruct(s declaredStruct, index map[string]declaredStruct, path []string) ([]StructMember, error) {
	canonicalName := s.definition.CanonicalName
	if slices.Contains(path, canonicalName) {
		chain := append(append([]string{}, path...), canonicalName)
		return nil, errors.Wrapf(ErrCyclicStruct, "%s", strings.Join(chain, " -> "))
	}
	path = append(path, canonicalName)

	members := make([]StructMember, 0, len(s.definition.Members))
	for _, member := range s.definition.Members {
		typeString := member.TypeDescriptions.TypeString
		members = append(members, StructMember{
			Name:         member.Name,
			Type:         typeString,
			ContractName: s.contract.Name,
			ContractID:   s.contract.ID,
		})

		if !types.IsStructTypeString(typeString) {
			continue
		}
		// Only exact matches are inlined, arrays of structs ("struct A.B[]") keep a single member
		nested, ok := index[types.StructCanonicalNameFromTypeString(typeString)]
		if !ok {
			continue
		}
		nestedMembers, err := flattenStruct(nested, index, path)
		if err != nil {
			return nil, err
		}
		members = append(members, nestedMembers...)
	}
	return members, nil
}

// directStructs returns the struct definitions declared in a contract, in declaration order. Solidity only allows
// struct declarations at contract level, so every struct found in the contract's subtree is a direct one.
func directStructs(contract *types.ContractDefinition) []*types.StructDefinition {
	return astquery.FindAll[*types.StructDefinition](contract, nil)
}

// FindNamespaceContracts returns the storage namespace contracts of a build. If fullyQualifiedNames is empty, every
// contract directly declaring at least one struct is a namespace; otherwise only the named contracts are, and names
// that cannot be located are returned separately.
func FindNamespaceContracts(sourceUnits []*types.SourceUnit, fullyQualifiedNames []string) ([]*types.ContractDefinition, []string) {
	contracts := make([]*types.ContractDefinition, 0)
	missing := make([]string, 0)

	if len(fullyQualifiedNames) == 0 {
		for _, sourceUnit := range sourceUnits {
			for _, node := range sourceUnit.Nodes {
				if contract, ok := node.(*types.ContractDefinition); ok && len(directStructs(contract)) > 0 {
					contracts = append(contracts, contract)
				}
			}
		}
		return contracts, missing
	}

	for _, name := range fullyQualifiedNames {
		contract, ok := dependencies.FindContract(name, sourceUnits)
		if !ok {
			missing = append(missing, name)
			continue
		}
		contracts = append(contracts, contract)
	}
	return contracts, missing
}
