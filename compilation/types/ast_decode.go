package types

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

// rawField is a single key-value pair of a JSON object, kept in document order.
type rawField struct {
	key   string
	value json.RawMessage
}

// newNodeOfType allocates the variant registered for a node type tag. Unmodeled tags map onto GenericNode.
func newNodeOfType(nodeType NodeType) Node {
	switch nodeType {
	case NodeTypeSourceUnit:
		return &SourceUnit{}
	case NodeTypeImportDirective:
		return &ImportDirective{}
	case NodeTypeContractDefinition:
		return &ContractDefinition{}
	case NodeTypeInheritanceSpecifier:
		return &InheritanceSpecifier{}
	case NodeTypeIdentifierPath:
		return &IdentifierPath{}
	case NodeTypeUserDefinedTypeName:
		return &UserDefinedTypeName{}
	case NodeTypeElementaryTypeName:
		return &ElementaryTypeName{}
	case NodeTypeFunctionDefinition:
		return &FunctionDefinition{}
	case NodeTypeParameterList:
		return &ParameterList{}
	case NodeTypeVariableDeclaration:
		return &VariableDeclaration{}
	case NodeTypeStructDefinition:
		return &StructDefinition{}
	case NodeTypeLiteral:
		return &Literal{}
	case NodeTypeIdentifier:
		return &Identifier{}
	case NodeTypeInlineAssembly:
		return &InlineAssembly{}
	case NodeTypeYulBlock:
		return &YulBlock{}
	case NodeTypeYulFunctionDefinition:
		return &YulFunctionDefinition{}
	case NodeTypeYulSwitch:
		return &YulSwitch{}
	case NodeTypeYulCase:
		return &YulCase{}
	case NodeTypeYulLiteral:
		return &YulLiteral{}
	case NodeTypeYulAssignment:
		return &YulAssignment{}
	case NodeTypeYulIdentifier:
		return &YulIdentifier{}
	default:
		return &GenericNode{}
	}
}

// bindChildren assigns the typed child slots of a node from its children grouped by the JSON key they appeared under.
func bindChildren(node Node, byKey map[string][]Node) {
	switch n := node.(type) {
	case *SourceUnit:
		n.Nodes = byKey["nodes"]
	case *ContractDefinition:
		n.Nodes = byKey["nodes"]
		n.BaseContracts = childrenOf[*InheritanceSpecifier](byKey["baseContracts"])
	case *InheritanceSpecifier:
		n.BaseName = firstChild(byKey["baseName"])
	case *UserDefinedTypeName:
		n.PathNode, _ = firstChild(byKey["pathNode"]).(*IdentifierPath)
	case *FunctionDefinition:
		n.Parameters, _ = firstChild(byKey["parameters"]).(*ParameterList)
		n.ReturnParameters, _ = firstChild(byKey["returnParameters"]).(*ParameterList)
	case *ParameterList:
		n.Parameters = childrenOf[*VariableDeclaration](byKey["parameters"])
	case *VariableDeclaration:
		n.TypeName = firstChild(byKey["typeName"])
		n.Value = firstChild(byKey["value"])
	case *StructDefinition:
		n.Members = childrenOf[*VariableDeclaration](byKey["members"])
	case *InlineAssembly:
		n.AST, _ = firstChild(byKey["AST"]).(*YulBlock)
	case *YulBlock:
		n.Statements = byKey["statements"]
	case *YulFunctionDefinition:
		n.Body, _ = firstChild(byKey["body"]).(*YulBlock)
	case *YulSwitch:
		n.Expression = firstChild(byKey["expression"])
		n.Cases = childrenOf[*YulCase](byKey["cases"])
	case *YulCase:
		// The default arm carries the plain string "default" as its value, which decodes to no child.
		n.Value, _ = firstChild(byKey["value"]).(*YulLiteral)
		n.Body, _ = firstChild(byKey["body"]).(*YulBlock)
	case *YulAssignment:
		n.VariableNames = childrenOf[*YulIdentifier](byKey["variableNames"])
		n.Value = firstChild(byKey["value"])
	}
}

// firstChild returns the first node of a list, or nil.
func firstChild(nodes []Node) Node {
	if len(nodes) == 0 {
		return nil
	}
	return nodes[0]
}

// childrenOf narrows a list of nodes to those of a given variant.
func childrenOf[T Node](nodes []Node) []T {
	typed := make([]T, 0, len(nodes))
	for _, node := range nodes {
		if t, ok := node.(T); ok {
			typed = append(typed, t)
		}
	}
	return typed
}

// DecodeNode decodes a single compiler-emitted AST node, and all of its descendants, into its typed variant.
func DecodeNode(data []byte) (Node, error) {
	fields, err := readObjectFields(data)
	if err != nil {
		return nil, err
	}

	// Determine the node type before anything else so we know which variant to allocate
	var nodeType NodeType
	for _, field := range fields {
		if field.key == "nodeType" {
			if err := json.Unmarshal(field.value, &nodeType); err != nil {
				return nil, errors.Wrap(err, "could not parse node type")
			}
			break
		}
	}
	if nodeType == "" {
		return nil, errors.New("could not decode AST node: missing nodeType")
	}

	// Decode the scalar attributes of the node. Child slots are tagged to be skipped and are bound below.
	node := newNodeOfType(nodeType)
	if err := json.Unmarshal(data, node); err != nil {
		return nil, errors.Wrapf(err, "could not decode %s node", nodeType)
	}

	// Decode every child in document order, remembering which key it was found under
	base := node.base()
	byKey := make(map[string][]Node)
	for _, field := range fields {
		children, err := decodeChildren(field.value)
		if err != nil {
			return nil, errors.Wrapf(err, "could not decode %q of %s node", field.key, nodeType)
		}
		if len(children) > 0 {
			byKey[field.key] = children
			base.children = append(base.children, children...)
		}
	}
	bindChildren(node, byKey)

	return node, nil
}

// ParseSourceUnit decodes the AST of a whole source file.
func ParseSourceUnit(data []byte) (*SourceUnit, error) {
	node, err := DecodeNode(data)
	if err != nil {
		return nil, err
	}
	sourceUnit, ok := node.(*SourceUnit)
	if !ok {
		return nil, fmt.Errorf("expected a %s node at the AST root, found %s", NodeTypeSourceUnit, node.GetNodeType())
	}
	return sourceUnit, nil
}

// decodeChildren decodes every AST node found in a JSON value. Objects carrying a nodeType are nodes themselves,
// plain objects (such as import symbol aliases) and arrays are searched for nested nodes.
func decodeChildren(value json.RawMessage) ([]Node, error) {
	trimmed := bytes.TrimSpace(value)
	if len(trimmed) == 0 {
		return nil, nil
	}

	switch trimmed[0] {
	case '{':
		var probe struct {
			NodeType *string `json:"nodeType"`
		}
		if err := json.Unmarshal(trimmed, &probe); err != nil {
			return nil, err
		}
		if probe.NodeType != nil {
			node, err := DecodeNode(trimmed)
			if err != nil {
				return nil, err
			}
			return []Node{node}, nil
		}

		fields, err := readObjectFields(trimmed)
		if err != nil {
			return nil, err
		}
		var nodes []Node
		for _, field := range fields {
			children, err := decodeChildren(field.value)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, children...)
		}
		return nodes, nil
	case '[':
		var elements []json.RawMessage
		if err := json.Unmarshal(trimmed, &elements); err != nil {
			return nil, err
		}
		var nodes []Node
		for _, element := range elements {
			children, err := decodeChildren(element)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, children...)
		}
		return nodes, nil
	default:
		return nil, nil
	}
}

// readObjectFields reads the key-value pairs of a JSON object in document order. Go maps do not retain key order,
// which traversal order depends on.
func readObjectFields(data []byte) ([]rawField, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	token, err := decoder.Token()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return nil, errors.Errorf("expected a JSON object, found %v", token)
	}

	fields := make([]rawField, 0)
	for decoder.More() {
		keyToken, err := decoder.Token()
		if err != nil {
			return nil, errors.WithStack(err)
		}
		key, ok := keyToken.(string)
		if !ok {
			return nil, errors.Errorf("expected a JSON object key, found %v", keyToken)
		}

		var value json.RawMessage
		if err := decoder.Decode(&value); err != nil {
			return nil, errors.WithStack(err)
		}
		fields = append(fields, rawField{key: key, value: value})
	}
	return fields, nil
}
