// Package dependencies resolves the inheritance chain of a contract across source files, following local
// declarations, import directives, symbol aliases and unit aliases.
package dependencies

import (
	"strings"

	"github.com/crytic/routerguard/analysis/astquery"
	"github.com/crytic/routerguard/compilation/types"
)

// FullyQualifiedName joins a source path and contract name into "<sourcePath>:<contractName>".
func FullyQualifiedName(sourcePath string, contractName string) string {
	return sourcePath + ":" + contractName
}

// ParseFullyQualifiedName splits "<sourcePath>:<contractName>" at its last colon. A name without a colon is
// returned as a contract name with an empty source path.
func ParseFullyQualifiedName(fullyQualifiedName string) (sourcePath string, contractName string) {
	i := strings.LastIndex(fullyQualifiedName, ":")
	if i < 0 {
		return "", fullyQualifiedName
	}
	return fullyQualifiedName[:i], fullyQualifiedName[i+1:]
}

// IsFullyQualifiedName reports whether a string has both a source path and a contract name.
func IsFullyQualifiedName(name string) bool {
	sourcePath, contractName := ParseFullyQualifiedName(name)
	return sourcePath != "" && contractName != ""
}

// FindContract locates a contract by fully-qualified name.
func FindContract(fullyQualifiedName string, sourceUnits []*types.SourceUnit) (*types.ContractDefinition, bool) {
	sourcePath, contractName := ParseFullyQualifiedName(fullyQualifiedName)
	sourceUnit, ok := astquery.FindSourceUnit(sourceUnits, sourcePath)
	if !ok {
		return nil, false
	}
	return astquery.FindContractInSourceUnit(sourceUnit, contractName)
}

// FindContractDependencies returns the fully-qualified names of a contract and all of its ancestors: the contract
// itself first, then each direct base followed by that base's own chain, in declaration order. Ancestors reached
// through several paths appear once per path.
//
// A contract that cannot be located yields an empty list. Bases whose declaration cannot be resolved through the
// provided source units are left out of the chain, along with their ancestors.
func FindContractDependencies(fullyQualifiedName string, sourceUnits []*types.SourceUnit) []string {
	sourcePath, contractName := ParseFullyQualifiedName(fullyQualifiedName)
	sourceUnit, ok := astquery.FindSourceUnit(sourceUnits, sourcePath)
	if !ok {
		return []string{}
	}
	contract, ok := astquery.FindContractInSourceUnit(sourceUnit, contractName)
	if !ok {
		return []string{}
	}

	chain := []string{fullyQualifiedName}
	for _, base := range contract.BaseContracts {
		baseName, ok := ResolveBaseContract(sourceUnit, base, sourceUnits)
		if !ok {
			continue
		}
		chain = append(chain, FindContractDependencies(baseName, sourceUnits)...)
	}
	return chain
}

// ResolveBaseContract resolves an inheritance specifier of a contract declared in sourceUnit to the fully-qualified
// name of the base contract. Names are resolved through imports first; if that fails, the referenced declaration id
// is looked up across every source unit.
func ResolveBaseContract(sourceUnit *types.SourceUnit, base *types.InheritanceSpecifier, sourceUnits []*types.SourceUnit) (string, bool) {
	if resolved, ok := resolveBaseName(sourceUnit, base, sourceUnits); ok {
		return resolved, true
	}
	return resolveBaseDeclaration(base, sourceUnits)
}

// resolveBaseDeclaration finds the contract a base specifier references by declaration id. Ids are only unique within
// a single compiler run, so the contract must also carry the name the base is written with.
func resolveBaseDeclaration(base *types.InheritanceSpecifier, sourceUnits []*types.SourceUnit) (string, bool) {
	id, ok := base.ReferencedDeclaration()
	if !ok {
		return "", false
	}
	node, ok := astquery.FindByID(astquery.SourceUnitNodes(sourceUnits), id)
	if !ok {
		return "", false
	}
	contract, ok := node.(*types.ContractDefinition)
	if !ok {
		return "", false
	}
	name := base.Name()
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	if contract.Name != name {
		return "", false
	}
	for _, sourceUnit := range sourceUnits {
		for _, declaration := range sourceUnit.Nodes {
			if declaration == node {
				return FullyQualifiedName(sourceUnit.AbsolutePath, contract.Name), true
			}
		}
	}
	return "", false
}

func resolveBaseName(sourceUnit *types.SourceUnit, base *types.InheritanceSpecifier, sourceUnits []*types.SourceUnit) (string, bool) {
	// Prefer the exported symbol bound to the referenced declaration, it reflects import aliases exactly
	localName := base.Name()
	if id, ok := base.ReferencedDeclaration(); ok {
		if name, ok := exportedSymbolName(sourceUnit, id); ok {
			localName = name
		}
	}
	if localName == "" {
		return "", false
	}

	// A qualified name such as `Lib.Base` refers to a contract of a file imported under a unit alias
	if unitAlias, name, qualified := strings.Cut(localName, "."); qualified {
		for _, importDirective := range importDirectives(sourceUnit) {
			if importDirective.UnitAlias != unitAlias {
				continue
			}
			importedUnit, ok := astquery.FindSourceUnit(sourceUnits, importDirective.AbsolutePath)
			if !ok {
				return "", false
			}
			return ResolveLocalName(importedUnit, name, sourceUnits)
		}
		return "", false
	}

	return ResolveLocalName(sourceUnit, localName, sourceUnits)
}

// ResolveLocalName resolves a name visible at file level of sourceUnit to the fully-qualified name of the contract
// it denotes, following imports (and re-exports through imported files) until the declaring file is found.
func ResolveLocalName(sourceUnit *types.SourceUnit, localName string, sourceUnits []*types.SourceUnit) (string, bool) {
	return resolveLocalName(sourceUnit, localName, sourceUnits, make(map[string]bool))
}

func resolveLocalName(sourceUnit *types.SourceUnit, localName string, sourceUnits []*types.SourceUnit, visited map[string]bool) (string, bool) {
	// Import graphs may be cyclic, unlike inheritance graphs
	if visited[sourceUnit.AbsolutePath] {
		return "", false
	}
	visited[sourceUnit.AbsolutePath] = true

	// Local declarations shadow imports
	if _, ok := astquery.FindContractInSourceUnit(sourceUnit, localName); ok {
		return FullyQualifiedName(sourceUnit.AbsolutePath, localName), true
	}

	for _, importDirective := range importDirectives(sourceUnit) {
		target, ok := ResolveImport(importDirective, localName)
		if !ok {
			continue
		}
		importedUnit, ok := astquery.FindSourceUnit(sourceUnits, importDirective.AbsolutePath)
		if !ok {
			continue
		}
		if resolved, ok := resolveLocalName(importedUnit, target, sourceUnits, visited); ok {
			return resolved, true
		}
	}
	return "", false
}

// ResolveImport reports whether an import directive brings localName into scope, and if so, under which name the
// symbol is known inside the imported file. `import "x.sol";` brings every name of x.sol into scope unchanged;
// `import {A as B} from "x.sol";` binds B to A. Unit-aliased imports bind no plain names.
func ResolveImport(importDirective *types.ImportDirective, localName string) (string, bool) {
	if len(importDirective.SymbolAliases) == 0 {
		if importDirective.UnitAlias != "" {
			return "", false
		}
		return localName, true
	}
	for _, alias := range importDirective.SymbolAliases {
		if alias.LocalName() == localName {
			return alias.Foreign.Name, true
		}
	}
	return "", false
}

// exportedSymbolName returns the file-level name bound to a declaration id. If several names refer to the same
// declaration, the lexicographically smallest one is returned so the result is deterministic.
func exportedSymbolName(sourceUnit *types.SourceUnit, id int) (string, bool) {
	found := ""
	for name, ids := range sourceUnit.ExportedSymbols {
		for _, candidate := range ids {
			if candidate == id && (found == "" || name < found) {
				found = name
			}
		}
	}
	return found, found != ""
}

// importDirectives returns the top-level import directives of a source unit in declaration order.
func importDirectives(sourceUnit *types.SourceUnit) []*types.ImportDirective {
	imports := make([]*types.ImportDirective, 0)
	for _, node := range sourceUnit.Nodes {
		if importDirective, ok := node.(*types.ImportDirective); ok {
			imports = append(imports, importDirective)
		}
	}
	return imports
}
