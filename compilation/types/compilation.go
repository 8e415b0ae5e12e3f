package types

import (
	"github.com/Masterminds/semver"
	"golang.org/x/exp/slices"
)

// Compilation represents the artifacts of a smart contract compilation: one AST per source file and the compiled
// contracts keyed by fully-qualified name.
type Compilation struct {
	// SourceUnits are the parsed ASTs, sorted by absolute path so traversal over the whole build is deterministic.
	SourceUnits []*SourceUnit

	// Contracts maps "<sourcePath>:<contractName>" to the compiled contract.
	Contracts map[string]CompiledContract

	// CompilerVersion is the lowest compiler version among the merged build-info files, or nil if unknown.
	CompilerVersion *semver.Version
}

// NewCompilation returns a new, empty Compilation object.
func NewCompilation() *Compilation {
	return &Compilation{
		SourceUnits: make([]*SourceUnit, 0),
		Contracts:   make(map[string]CompiledContract),
	}
}

// SourceUnit returns the AST of the source file with the given absolute path.
func (c *Compilation) SourceUnit(absolutePath string) (*SourceUnit, bool) {
	for _, sourceUnit := range c.SourceUnits {
		if sourceUnit.AbsolutePath == absolutePath {
			return sourceUnit, true
		}
	}
	return nil, false
}

// AddSourceUnit adds a source unit to the compilation, replacing any previous unit with the same path. The sorted
// order of SourceUnits is retained.
func (c *Compilation) AddSourceUnit(sourceUnit *SourceUnit) {
	i, found := slices.BinarySearchFunc(c.SourceUnits, sourceUnit.AbsolutePath, func(s *SourceUnit, path string) int {
		switch {
		case s.AbsolutePath < path:
			return -1
		case s.AbsolutePath > path:
			return 1
		}
		return 0
	})
	if found {
		c.SourceUnits[i] = sourceUnit
		return
	}
	c.SourceUnits = slices.Insert(c.SourceUnits, i, sourceUnit)
}

// SupportsASTSelectors indicates whether the compiler that produced this compilation emits function selectors in the
// AST. If the compiler version is unknown, it is assumed to.
func (c *Compilation) SupportsASTSelectors() bool {
	if c.CompilerVersion == nil {
		return true
	}
	return !c.CompilerVersion.LessThan(semver.MustParse(SelectorSupportVersion))
}
