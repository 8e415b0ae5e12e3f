// Package deployment holds the artifacts of past deployments: the record of deployed contract addresses, and the
// store of storage layout snapshots taken at deployment time.
package deployment

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/routerguard/compilation/types"
	"github.com/crytic/routerguard/utils"
	"github.com/pkg/errors"
)

// ContractDeployment describes a single deployed contract.
type ContractDeployment struct {
	// DeployedAddress is the hex address the contract is deployed at
	DeployedAddress string `json:"deployedAddress"`
	// IsModule indicates the contract is dispatched to by a router
	IsModule bool `json:"isModule"`
	// ContractName is the contract name without source path
	ContractName string `json:"contractName"`
	// DeployedBytecodeHash is the metadata bytecode hash of the deployed runtime bytecode, if it was recorded
	DeployedBytecodeHash string `json:"deployedBytecodeHash,omitempty"`
}

// Record maps contract fully-qualified names to their deployment.
type Record struct {
	Contracts map[string]ContractDeployment `json:"contracts"`
}

// StaleModule is a deployed module whose compiled bytecode no longer matches the deployed one.
type StaleModule struct {
	FullyQualifiedName string `json:"contract"`
	RecordedHash       string `json:"recordedHash"`
	CurrentHash        string `json:"currentHash"`
}

// NewRecord returns an empty deployment record.
func NewRecord() *Record {
	return &Record{Contracts: make(map[string]ContractDeployment)}
}

// LoadRecord reads a deployment record from a JSON file.
func LoadRecord(path string) (*Record, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	record := NewRecord()
	if err = json.Unmarshal(b, record); err != nil {
		return nil, errors.Wrapf(err, "could not parse deployment record %s", path)
	}
	if record.Contracts == nil {
		record.Contracts = make(map[string]ContractDeployment)
	}
	for name, contract := range record.Contracts {
		if !common.IsHexAddress(contract.DeployedAddress) {
			return nil, errors.Errorf("deployment record %s has an invalid address %q for %s", path, contract.DeployedAddress, name)
		}
	}
	return record, nil
}

// WriteToFile writes the record to a JSON file, creating parent directories as needed.
func (r *Record) WriteToFile(path string) error {
	b, err := json.MarshalIndent(r, "", "\t")
	if err != nil {
		return errors.WithStack(err)
	}
	if err = utils.MakeDirectory(filepath.Dir(path)); err != nil {
		return err
	}
	return errors.WithStack(os.WriteFile(path, b, 0644))
}

// SetDeployment records the deployment of a contract, replacing any previous one.
func (r *Record) SetDeployment(fullyQualifiedName string, deployment ContractDeployment) {
	r.Contracts[fullyQualifiedName] = deployment
}

// DeployedAddress returns the address a contract is deployed at.
func (r *Record) DeployedAddress(fullyQualifiedName string) (common.Address, bool) {
	contract, ok := r.Contracts[fullyQualifiedName]
	if !ok || !common.IsHexAddress(contract.DeployedAddress) {
		return common.Address{}, false
	}
	return common.HexToAddress(contract.DeployedAddress), true
}

// Modules returns the fully-qualified names of every deployed module, sorted.
func (r *Record) Modules() []string {
	modules := make([]string, 0)
	for name, contract := range r.Contracts {
		if contract.IsModule {
			modules = append(modules, name)
		}
	}
	sort.Strings(modules)
	return modules
}

// StaleModules returns the deployed modules whose recorded bytecode hash differs from the one embedded in the
// compilation's runtime bytecode, sorted by name. Modules without a recorded hash, or whose compiled bytecode has no
// metadata, cannot be compared and are skipped.
func (r *Record) StaleModules(compilation *types.Compilation) []StaleModule {
	stale := make([]StaleModule, 0)
	for _, name := range r.Modules() {
		recorded := r.Contracts[name].DeployedBytecodeHash
		if recorded == "" {
			continue
		}
		contract, ok := compilation.Contracts[name]
		if !ok {
			continue
		}
		current := contract.BytecodeHash()
		if current == "" || current == recorded {
			continue
		}
		stale = append(stale, StaleModule{FullyQualifiedName: name, RecordedHash: recorded, CurrentHash: current})
	}
	return stale
}
