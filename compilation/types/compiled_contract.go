package types

import (
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/crytic/medusa-geth/accounts/abi"
	"github.com/pkg/errors"
)

// CompiledContract represents a single contract unit from a smart contract compilation.
type CompiledContract struct {
	// SourcePath is the source name of the file declaring the contract.
	SourcePath string

	// Name is the contract name, without the source path.
	Name string

	// Abi describes a contract's application binary interface: its externally callable functions, events and errors.
	// It is used to derive function selectors for compilations whose AST predates `functionSelector`.
	Abi abi.ABI

	// RuntimeBytecode represents the bytecode to be expected once the contract has been deployed. It carries the
	// CBOR-encoded metadata which is used to decide whether a deployed module is stale.
	RuntimeBytecode []byte
}

// FullyQualifiedName returns the "<sourcePath>:<contractName>" identifier of the contract.
func (c *CompiledContract) FullyQualifiedName() string {
	return c.SourcePath + ":" + c.Name
}

// BytecodeHash returns the hex-encoded bytecode hash embedded in the runtime bytecode metadata, or an empty string
// if the bytecode carries no metadata.
func (c *CompiledContract) BytecodeHash() string {
	metadata := ExtractContractMetadata(c.RuntimeBytecode)
	if metadata == nil {
		return ""
	}
	hash := metadata.ExtractBytecodeHash()
	if hash == nil {
		return ""
	}
	return hex.EncodeToString(hash)
}

// ParseABIFromInterface parses a generic object into an abi.ABI and returns it, or an error if one occurs.
func ParseABIFromInterface(i any) (*abi.ABI, error) {
	var (
		result abi.ABI
		err    error
	)

	// If it's a string, just parse it. Otherwise, we assume it's an interface and serialize it into a string.
	switch v := i.(type) {
	case string:
		result, err = abi.JSON(strings.NewReader(v))
	case json.RawMessage:
		result, err = abi.JSON(strings.NewReader(string(v)))
	default:
		var b []byte
		b, err = json.Marshal(i)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		result, err = abi.JSON(strings.NewReader(string(b)))
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &result, nil
}

// DecodeBytecode decodes a hex string bytecode object as emitted by the compiler, with or without a 0x prefix.
// Unlinked library placeholders cannot be decoded, in which case nil is returned with the error.
func DecodeBytecode(object string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(object, "0x"))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return b, nil
}
