package testutils

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/crytic/routerguard/compilation/types"
	"github.com/stretchr/testify/require"
)

// ASTNode is a JSON object shaped like a single node of the Solidity compiler's AST output. Fixtures are composed
// from these and then decoded through types.ParseSourceUnit, so every test also exercises the real decoder.
type ASTNode map[string]any

// ImportedSymbol is a single `{Foreign as Local}` entry of an import directive fixture.
type ImportedSymbol struct {
	Foreign   string
	ForeignID int
	Local     string
}

// RouterCase is a single `case <selector> { result := <constant> leave }` arm of a router fixture.
type RouterCase struct {
	Selector string
	Constant string
}

// SourceUnit creates a SourceUnit node. Its exported symbols are derived from the top-level contracts and the named
// imports among nodes.
func SourceUnit(id int, absolutePath string, nodes ...ASTNode) ASTNode {
	exportedSymbols := make(map[string][]int)
	for _, node := range nodes {
		switch node["nodeType"] {
		case "ContractDefinition":
			exportedSymbols[node["name"].(string)] = []int{node["id"].(int)}
		case "ImportDirective":
			if unitAlias, _ := node["unitAlias"].(string); unitAlias != "" {
				exportedSymbols[unitAlias] = []int{node["sourceUnit"].(int)}
			}
			for _, alias := range node["symbolAliases"].([]ASTNode) {
				foreign := alias["foreign"].(ASTNode)
				name := foreign["name"].(string)
				if local, _ := alias["local"].(string); local != "" {
					name = local
				}
				exportedSymbols[name] = []int{foreign["referencedDeclaration"].(int)}
			}
		}
	}
	return ASTNode{
		"nodeType":        "SourceUnit",
		"id":              id,
		"src":             "0:0:0",
		"absolutePath":    absolutePath,
		"exportedSymbols": exportedSymbols,
		"nodes":           nodes,
	}
}

// Import creates an ImportDirective node. Without symbols, the whole file is imported.
func Import(absolutePath string, sourceUnitID int, symbols ...ImportedSymbol) ASTNode {
	aliases := make([]ASTNode, 0, len(symbols))
	for _, symbol := range symbols {
		alias := ASTNode{
			"foreign": ASTNode{
				"nodeType":              "Identifier",
				"id":                    0,
				"src":                   "0:0:0",
				"name":                  symbol.Foreign,
				"referencedDeclaration": symbol.ForeignID,
			},
		}
		if symbol.Local != "" {
			alias["local"] = symbol.Local
		}
		aliases = append(aliases, alias)
	}
	return ASTNode{
		"nodeType":      "ImportDirective",
		"id":            0,
		"src":           "0:0:0",
		"absolutePath":  absolutePath,
		"file":          "./" + filepath.Base(absolutePath),
		"sourceUnit":    sourceUnitID,
		"unitAlias":     "",
		"symbolAliases": aliases,
	}
}

// ImportAs creates an `import "<path>" as <unitAlias>;` directive.
func ImportAs(absolutePath string, sourceUnitID int, unitAlias string) ASTNode {
	node := Import(absolutePath, sourceUnitID)
	node["unitAlias"] = unitAlias
	return node
}

// Contract creates a ContractDefinition node of kind contract.
func Contract(id int, name string, bases []ASTNode, nodes ...ASTNode) ASTNode {
	if bases == nil {
		bases = []ASTNode{}
	}
	return ASTNode{
		"nodeType":                "ContractDefinition",
		"id":                      id,
		"src":                     "0:0:0",
		"name":                    name,
		"contractKind":            "contract",
		"abstract":                false,
		"linearizedBaseContracts": []int{id},
		"baseContracts":           bases,
		"nodes":                   nodes,
	}
}

// Base creates an InheritanceSpecifier referencing a base contract by name and declaration id.
func Base(name string, referencedDeclaration int) ASTNode {
	return ASTNode{
		"nodeType": "InheritanceSpecifier",
		"id":       0,
		"src":      "0:0:0",
		"baseName": ASTNode{
			"nodeType":              "IdentifierPath",
			"id":                    0,
			"src":                   "0:0:0",
			"name":                  name,
			"referencedDeclaration": referencedDeclaration,
		},
	}
}

// Function creates a FunctionDefinition. An empty selector produces an internal function.
func Function(id int, name string, selector string) ASTNode {
	node := ASTNode{
		"nodeType":         "FunctionDefinition",
		"id":               id,
		"src":              "0:0:0",
		"name":             name,
		"kind":             "function",
		"visibility":       "internal",
		"stateMutability":  "nonpayable",
		"implemented":      true,
		"parameters":       ASTNode{"nodeType": "ParameterList", "id": 0, "src": "0:0:0", "parameters": []ASTNode{}},
		"returnParameters": ASTNode{"nodeType": "ParameterList", "id": 0, "src": "0:0:0", "parameters": []ASTNode{}},
	}
	if selector != "" {
		node["visibility"] = "external"
		node["functionSelector"] = selector
	}
	return node
}

// Struct creates a StructDefinition with a canonical name such as "OwnerNamespace.OwnerStorage".
func Struct(id int, canonicalName string, members ...ASTNode) ASTNode {
	name := canonicalName
	if i := strings.LastIndex(canonicalName, "."); i >= 0 {
		name = canonicalName[i+1:]
	}
	return ASTNode{
		"nodeType":      "StructDefinition",
		"id":            id,
		"src":           "0:0:0",
		"name":          name,
		"canonicalName": canonicalName,
		"visibility":    "public",
		"members":       members,
	}
}

// Member creates a struct member VariableDeclaration with the given type string, e.g. "address" or
// "struct Lib.Inner".
func Member(id int, name string, typeString string) ASTNode {
	typeName := ASTNode{
		"nodeType":         "ElementaryTypeName",
		"id":               0,
		"src":              "0:0:0",
		"name":             typeString,
		"typeDescriptions": ASTNode{"typeString": typeString},
	}
	if strings.HasPrefix(typeString, types.StructTypeStringPrefix) {
		typeName = ASTNode{
			"nodeType":         "UserDefinedTypeName",
			"id":               0,
			"src":              "0:0:0",
			"typeDescriptions": ASTNode{"typeString": typeString},
			"pathNode": ASTNode{
				"nodeType": "IdentifierPath",
				"id":       0,
				"src":      "0:0:0",
				"name":     types.StructCanonicalNameFromTypeString(typeString),
			},
		}
	}
	return ASTNode{
		"nodeType":         "VariableDeclaration",
		"id":               id,
		"src":              "0:0:0",
		"name":             name,
		"constant":         false,
		"mutability":       "mutable",
		"stateVariable":    false,
		"visibility":       "internal",
		"typeDescriptions": ASTNode{"typeString": typeString},
		"typeName":         typeName,
	}
}

// AddressConstant creates an `address private constant <name> = <address>;` state variable.
func AddressConstant(id int, name string, address string) ASTNode {
	return ASTNode{
		"nodeType":         "VariableDeclaration",
		"id":               id,
		"src":              "0:0:0",
		"name":             name,
		"constant":         true,
		"mutability":       "constant",
		"stateVariable":    true,
		"visibility":       "private",
		"typeDescriptions": ASTNode{"typeString": "address"},
		"typeName": ASTNode{
			"nodeType":         "ElementaryTypeName",
			"id":               0,
			"src":              "0:0:0",
			"name":             "address",
			"typeDescriptions": ASTNode{"typeString": "address"},
		},
		"value": ASTNode{
			"nodeType":         "Literal",
			"id":               0,
			"src":              "0:0:0",
			"kind":             "number",
			"value":            address,
			"typeDescriptions": ASTNode{"typeString": "address"},
		},
	}
}

// RouterForward creates the `_forward()` function of a router, whose inline assembly holds a findImplementation
// function with a single switch over the provided cases followed by a default arm.
func RouterForward(id int, cases ...RouterCase) ASTNode {
	yulCases := make([]ASTNode, 0, len(cases)+1)
	for _, c := range cases {
		yulCases = append(yulCases, ASTNode{
			"nodeType": "YulCase",
			"src":      "0:0:0",
			"value": ASTNode{
				"nodeType": "YulLiteral",
				"src":      "0:0:0",
				"kind":     "number",
				"type":     "",
				"value":    c.Selector,
			},
			"body": yulBlock(
				ASTNode{
					"nodeType":      "YulAssignment",
					"src":           "0:0:0",
					"variableNames": []ASTNode{yulIdentifier("result")},
					"value":         yulIdentifier(c.Constant),
				},
				ASTNode{"nodeType": "YulLeave", "src": "0:0:0"},
			),
		})
	}
	yulCases = append(yulCases, ASTNode{
		"nodeType": "YulCase",
		"src":      "0:0:0",
		"value":    "default",
		"body":     yulBlock(),
	})

	findImplementation := ASTNode{
		"nodeType": "YulFunctionDefinition",
		"src":      "0:0:0",
		"name":     "findImplementation",
		"body": yulBlock(ASTNode{
			"nodeType":   "YulSwitch",
			"src":        "0:0:0",
			"expression": yulIdentifier("sig"),
			"cases":      yulCases,
		}),
	}

	node := Function(id, "_forward", "")
	node["body"] = ASTNode{
		"nodeType": "Block",
		"id":       0,
		"src":      "0:0:0",
		"statements": []ASTNode{{
			"nodeType": "InlineAssembly",
			"id":       0,
			"src":      "0:0:0",
			"AST":      yulBlock(findImplementation),
		}},
	}
	return node
}

func yulBlock(statements ...ASTNode) ASTNode {
	if statements == nil {
		statements = []ASTNode{}
	}
	return ASTNode{"nodeType": "YulBlock", "src": "0:0:0", "statements": statements}
}

func yulIdentifier(name string) ASTNode {
	return ASTNode{"nodeType": "YulIdentifier", "src": "0:0:0", "name": name}
}

// ParseSourceUnit encodes a SourceUnit fixture to JSON and decodes it into a typed AST.
func ParseSourceUnit(t *testing.T, node ASTNode) *types.SourceUnit {
	b, err := json.Marshal(node)
	require.NoError(t, err)
	sourceUnit, err := types.ParseSourceUnit(b)
	require.NoError(t, err)
	return sourceUnit
}

// ParseSourceUnits decodes several SourceUnit fixtures, retaining their order.
func ParseSourceUnits(t *testing.T, nodes ...ASTNode) []*types.SourceUnit {
	sourceUnits := make([]*types.SourceUnit, len(nodes))
	for i, node := range nodes {
		sourceUnits[i] = ParseSourceUnit(t, node)
	}
	return sourceUnits
}

// WriteBuildInfo writes a Hardhat build-info file holding the provided SourceUnit fixtures to directory, with an
// empty ABI entry for every top-level contract. Returns the path of the written file.
func WriteBuildInfo(t *testing.T, directory string, id string, solcVersion string, sourceUnits ...ASTNode) string {
	sources := make(map[string]any)
	contracts := make(map[string]map[string]any)
	for i, sourceUnit := range sourceUnits {
		path := sourceUnit["absolutePath"].(string)
		sources[path] = map[string]any{"id": i, "ast": sourceUnit}
		contracts[path] = make(map[string]any)
		for _, node := range sourceUnit["nodes"].([]ASTNode) {
			if node["nodeType"] == "ContractDefinition" {
				contracts[path][node["name"].(string)] = map[string]any{
					"abi": []any{},
					"evm": map[string]any{"deployedBytecode": map[string]any{"object": ""}},
				}
			}
		}
	}
	buildInfo := map[string]any{
		"id":              id,
		"_format":         "hh-sol-build-info-1",
		"solcVersion":     solcVersion,
		"solcLongVersion": solcVersion,
		"output":          map[string]any{"sources": sources, "contracts": contracts},
	}

	b, err := json.Marshal(buildInfo)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(directory, 0777))
	path := filepath.Join(directory, id+".json")
	require.NoError(t, os.WriteFile(path, b, 0644))
	return path
}
