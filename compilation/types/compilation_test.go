package types

import (
	"testing"

	"github.com/Masterminds/semver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// metadataBytecode returns runtime bytecode followed by solc >= 0.6.0 CBOR metadata carrying the provided ipfs hash.
func metadataBytecode(hash byte) []byte {
	bytecode := []byte{0x60, 0x80, 0x60, 0x40, 0x52, 0x00, 0xfe}
	bytecode = append(bytecode, 0xa2, 0x64, 'i', 'p', 'f', 's', 0x58, 0x22)
	for i := 0; i < 34; i++ {
		bytecode = append(bytecode, hash)
	}
	return append(bytecode, 0x64, 's', 'o', 'l', 'c', 0x43, 0x00, 0x08, 0x11)
}

// TestAddSourceUnit verifies source units stay sorted by path and are replaced by path.
func TestAddSourceUnit(t *testing.T) {
	compilation := NewCompilation()
	for _, path := range []string{"contracts/b.sol", "contracts/c.sol", "contracts/a.sol"} {
		compilation.AddSourceUnit(&SourceUnit{AbsolutePath: path})
	}
	replacement := &SourceUnit{AbsolutePath: "contracts/b.sol", ExportedSymbols: map[string][]int{"B": {1}}}
	compilation.AddSourceUnit(replacement)

	require.Len(t, compilation.SourceUnits, 3)
	paths := make([]string, 0, 3)
	for _, sourceUnit := range compilation.SourceUnits {
		paths = append(paths, sourceUnit.AbsolutePath)
	}
	assert.Equal(t, []string{"contracts/a.sol", "contracts/b.sol", "contracts/c.sol"}, paths)

	sourceUnit, ok := compilation.SourceUnit("contracts/b.sol")
	require.True(t, ok)
	assert.Same(t, replacement, sourceUnit)
	_, ok = compilation.SourceUnit("contracts/d.sol")
	assert.False(t, ok)
}

// TestSupportsASTSelectors verifies AST selectors are only trusted from compilers emitting them.
func TestSupportsASTSelectors(t *testing.T) {
	compilation := NewCompilation()
	assert.True(t, compilation.SupportsASTSelectors())

	compilation.CompilerVersion = semver.MustParse("0.5.17")
	assert.False(t, compilation.SupportsASTSelectors())

	compilation.CompilerVersion = semver.MustParse("0.6.0")
	assert.True(t, compilation.SupportsASTSelectors())
}

// TestBytecodeHash verifies the metadata hash is read from runtime bytecode.
func TestBytecodeHash(t *testing.T) {
	contract := CompiledContract{SourcePath: "contracts/Owner.sol", Name: "Owner", RuntimeBytecode: metadataBytecode(0x12)}
	assert.Equal(t, "contracts/Owner.sol:Owner", contract.FullyQualifiedName())

	hash := contract.BytecodeHash()
	require.Len(t, hash, 68)
	assert.Equal(t, "1212", hash[:4])

	other := CompiledContract{RuntimeBytecode: metadataBytecode(0x34)}
	assert.NotEqual(t, hash, other.BytecodeHash())

	withoutMetadata := CompiledContract{RuntimeBytecode: []byte{0x60, 0x80, 0x60, 0x40}}
	assert.Empty(t, withoutMetadata.BytecodeHash())
	assert.Nil(t, ExtractContractMetadata(nil))
}

// TestDecodeBytecode verifies compiler bytecode objects are decoded with or without a prefix.
func TestDecodeBytecode(t *testing.T) {
	b, err := DecodeBytecode("0x6080")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x60, 0x80}, b)

	b, err = DecodeBytecode("6080")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x60, 0x80}, b)

	b, err = DecodeBytecode("")
	require.NoError(t, err)
	assert.Empty(t, b)

	// Unlinked library placeholder
	_, err = DecodeBytecode("6080__$a1b2c3$__")
	assert.Error(t, err)
}

// TestParseABIFromInterface verifies ABIs are parsed from strings and decoded JSON alike.
func TestParseABIFromInterface(t *testing.T) {
	abiJSON := `[{"type":"function","name":"owner","inputs":[],"outputs":[{"name":"","type":"address"}],"stateMutability":"view"}]`
	parsed, err := ParseABIFromInterface(abiJSON)
	require.NoError(t, err)
	require.Contains(t, parsed.Methods, "owner")
	assert.Equal(t, []byte{0x8d, 0xa5, 0xcb, 0x5b}, parsed.Methods["owner"].ID)

	decoded := []any{map[string]any{"type": "function", "name": "owner", "inputs": []any{}, "outputs": []any{}}}
	parsed, err = ParseABIFromInterface(decoded)
	require.NoError(t, err)
	assert.Contains(t, parsed.Methods, "owner")

	_, err = ParseABIFromInterface("not an abi")
	assert.Error(t, err)
}
