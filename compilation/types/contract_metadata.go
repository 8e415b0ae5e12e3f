package types

import (
	"bytes"

	"github.com/fxamacker/cbor"
)

// ContractMetadata is an CBOR-encoded structure describing contract information which is embedded within smart contract
// bytecode by the Solidity compiler (unless explicitly directed not to).
// Reference: https://docs.soliditylang.org/en/v0.8.16/metadata.html
type ContractMetadata map[string]any

// metadataHashPrefixes defines patterns to use in search for CBOR-encoded contract metadata appended to the end of
// bytecode.
var metadataHashPrefixes = [][]byte{
	{0xa1, 0x65, 98, 122, 122, 114, 48, 0x58, 0x20},  // a1 65 "bzzr0" 0x58 0x20 (solc <= 0.5.8)
	{0xa2, 0x65, 98, 122, 122, 114, 48, 0x58, 0x20},  // a2 65 "bzzr0" 0x58 0x20 (solc >= 0.5.9)
	{0xa2, 0x65, 98, 122, 122, 114, 49, 0x58, 0x20},  // a2 65 "bzzr1" 0x58 0x20 (solc >= 0.5.11)
	{0xa2, 0x64, 0x69, 0x70, 0x66, 0x73, 0x58, 0x22}, // a2 64 "ipfs" 0x58 0x22 (solc >= 0.6.0)
}

// bytecodeHashMetadataKeys defines the keys in the CBOR-encoded ContractMetadata which contain bytecode hashes.
var bytecodeHashMetadataKeys = [...]string{
	"bzzr0",
	"bzzr1",
	"ipfs",
}

// ExtractContractMetadata extracts contract metadata from provided byte code and returns it. If contract metadata
// could not be extracted, nil is returned.
func ExtractContractMetadata(bytecode []byte) *ContractMetadata {
	for _, prefix := range metadataHashPrefixes {
		offset := bytes.LastIndex(bytecode, prefix)
		if offset == -1 {
			continue
		}

		// Metadata is appended to the end of the bytecode, decode from the prefix onward
		var metadata ContractMetadata
		if err := cbor.Unmarshal(bytecode[offset:], &metadata); err != nil {
			continue
		}
		return &metadata
	}
	return nil
}

// ExtractBytecodeHash extracts the bytecode hash from given contract metadata and returns the bytes representing the
// hash. If it could not be detected or extracted, nil is returned.
func (m ContractMetadata) ExtractBytecodeHash() []byte {
	for _, key := range bytecodeHashMetadataKeys {
		if data, ok := m[key]; ok {
			if hash, ok := data.([]byte); ok {
				return hash
			}
		}
	}
	return nil
}
