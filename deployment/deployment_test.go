package deployment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/routerguard/analysis/storage"
	"github.com/crytic/routerguard/compilation/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	ownerModuleName = "contracts/modules/OwnerModule.sol:OwnerModule"
	coreModuleName  = "contracts/modules/CoreModule.sol:CoreModule"
	routerName      = "contracts/Router.sol:Router"
)

// bytecodeWithHash returns runtime bytecode ending in solc metadata carrying the provided ipfs hash byte.
func bytecodeWithHash(b byte) []byte {
	bytecode := []byte{0x60, 0x80, 0x60, 0x40, 0x52, 0x00, 0xfe}
	bytecode = append(bytecode, 0xa2, 0x64, 'i', 'p', 'f', 's', 0x58, 0x22)
	hash := make([]byte, 34)
	for i := range hash {
		hash[i] = b
	}
	bytecode = append(bytecode, hash...)
	bytecode = append(bytecode, 0x64, 's', 'o', 'l', 'c', 0x43, 0x00, 0x08, 0x11)
	return bytecode
}

func testRecord() *Record {
	record := NewRecord()
	record.SetDeployment(ownerModuleName, ContractDeployment{
		DeployedAddress: "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		IsModule:        true,
		ContractName:    "OwnerModule",
	})
	record.SetDeployment(coreModuleName, ContractDeployment{
		DeployedAddress: "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512",
		IsModule:        true,
		ContractName:    "CoreModule",
	})
	record.SetDeployment(routerName, ContractDeployment{
		DeployedAddress: "0x9fE46736679d2D9a65F0992F2272dE9f3c7fa6e0",
		ContractName:    "Router",
	})
	return record
}

// TestRecordRoundTrip verifies records written to disk load back identically.
func TestRecordRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deployments", "hardhat.json")
	record := testRecord()
	require.NoError(t, record.WriteToFile(path))

	loaded, err := LoadRecord(path)
	require.NoError(t, err)
	assert.Equal(t, record, loaded)

	address, ok := loaded.DeployedAddress(ownerModuleName)
	require.True(t, ok)
	assert.Equal(t, common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"), address)
	_, ok = loaded.DeployedAddress("contracts/Nope.sol:Nope")
	assert.False(t, ok)

	assert.Equal(t, []string{coreModuleName, ownerModuleName}, loaded.Modules())
}

// TestLoadRecordErrors verifies malformed records are rejected.
func TestLoadRecordErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadRecord(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	malformed := filepath.Join(dir, "malformed.json")
	require.NoError(t, os.WriteFile(malformed, []byte("{"), 0644))
	_, err = LoadRecord(malformed)
	assert.Error(t, err)

	badAddress := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(badAddress, []byte(`{"contracts":{"a.sol:A":{"deployedAddress":"0x1234"}}}`), 0644))
	_, err = LoadRecord(badAddress)
	assert.ErrorContains(t, err, "invalid address")

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte(`{}`), 0644))
	record, err := LoadRecord(empty)
	require.NoError(t, err)
	assert.NotNil(t, record.Contracts)
}

// TestStaleModules verifies modules whose compiled metadata hash changed since deployment are reported.
func TestStaleModules(t *testing.T) {
	current := types.CompiledContract{SourcePath: "contracts/modules/OwnerModule.sol", Name: "OwnerModule", RuntimeBytecode: bytecodeWithHash(0x02)}
	unchanged := types.CompiledContract{SourcePath: "contracts/modules/CoreModule.sol", Name: "CoreModule", RuntimeBytecode: bytecodeWithHash(0x01)}
	require.NotEmpty(t, current.BytecodeHash())

	compilation := types.NewCompilation()
	compilation.Contracts[ownerModuleName] = current
	compilation.Contracts[coreModuleName] = unchanged

	record := testRecord()
	deployed := types.CompiledContract{RuntimeBytecode: bytecodeWithHash(0x01)}
	for _, name := range []string{ownerModuleName, coreModuleName} {
		contract := record.Contracts[name]
		contract.DeployedBytecodeHash = deployed.BytecodeHash()
		record.SetDeployment(name, contract)
	}

	stale := record.StaleModules(compilation)
	require.Len(t, stale, 1)
	assert.Equal(t, ownerModuleName, stale[0].FullyQualifiedName)
	assert.Equal(t, deployed.BytecodeHash(), stale[0].RecordedHash)
	assert.Equal(t, current.BytecodeHash(), stale[0].CurrentHash)

	// Without recorded hashes nothing can be compared
	assert.Empty(t, testRecord().StaleModules(compilation))
}

// TestLayoutStore verifies snapshots are persisted per key and the latest one is returned.
func TestLayoutStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".routerguard", "layouts.db")
	store, err := OpenLayoutStore(path)
	require.NoError(t, err)

	_, ok, err := store.Latest("mainnet")
	require.NoError(t, err)
	assert.False(t, ok)

	first := []storage.StorageNamespaceEntry{{
		Contract: storage.ContractReference{Name: "OwnerNamespace", ID: 630},
		Struct: storage.StructLayout{Name: "OwnerStorage", Members: []storage.StructMember{
			{Name: "owner", Type: "address", ContractName: "OwnerNamespace", ContractID: 630},
		}},
	}}
	second := append([]storage.StorageNamespaceEntry{}, first...)
	second[0].Struct.Members = append(second[0].Struct.Members, storage.StructMember{Name: "nominatedOwner", Type: "address", ContractName: "OwnerNamespace", ContractID: 630})

	saved, err := store.Save("mainnet", first)
	require.NoError(t, err)
	_, err = store.Save("mainnet", second)
	require.NoError(t, err)
	_, err = store.Save("goerli", first)
	require.NoError(t, err)
	_, err = store.Save("", first)
	assert.Error(t, err)

	latest, ok, err := store.Latest("mainnet")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, second, latest.Entries)
	assert.NotEqual(t, saved.ID, latest.ID)

	history, err := store.History("mainnet")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, saved.ID, history[0].ID)
	assert.Equal(t, first, history[0].Entries)

	keys, err := store.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"goerli", "mainnet"}, keys)

	// Snapshots survive reopening the store
	require.NoError(t, store.Close())
	store, err = OpenLayoutStore(path)
	require.NoError(t, err)
	defer store.Close()
	latest, ok, err = store.Latest("mainnet")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "mainnet", latest.Key)
	assert.Len(t, latest.Entries[0].Struct.Members, 2)
}
