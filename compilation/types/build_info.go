package types

import "encoding/json"

// BuildInfo is the solc standard JSON input/output pair Hardhat writes to `artifacts/build-info/<id>.json`.
// Only the parts consumed by the analysis are modeled.
type BuildInfo struct {
	ID              string          `json:"id"`
	Format          string          `json:"_format"`
	SolcVersion     string          `json:"solcVersion"`
	SolcLongVersion string          `json:"solcLongVersion"`
	Output          BuildInfoOutput `json:"output"`
}

// BuildInfoOutput is the solc standard JSON output.
type BuildInfoOutput struct {
	// Sources maps source names to their AST.
	Sources map[string]BuildInfoSource `json:"sources"`
	// Contracts maps source names to contract names to their compiled artifacts.
	Contracts map[string]map[string]BuildInfoContract `json:"contracts"`
}

// BuildInfoSource is a single source entry of the compiler output. The AST is kept raw and decoded into a
// SourceUnit by the loader so decoding errors can be attributed to the source.
type BuildInfoSource struct {
	ID  int             `json:"id"`
	AST json.RawMessage `json:"ast"`
}

// BuildInfoContract is a single contract entry of the compiler output.
type BuildInfoContract struct {
	Abi json.RawMessage `json:"abi"`
	Evm struct {
		DeployedBytecode struct {
			Object string `json:"object"`
		} `json:"deployedBytecode"`
	} `json:"evm"`
}
