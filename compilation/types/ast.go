package types

import (
	"regexp"
	"strconv"
	"strings"
)

// ContractKind represents the kind of contract definition represented by an AST node
type ContractKind string

const (
	// ContractKindContract represents a contract node
	ContractKindContract ContractKind = "contract"
	// ContractKindLibrary represents a library node
	ContractKindLibrary ContractKind = "library"
	// ContractKindInterface represents an interface node
	ContractKindInterface ContractKind = "interface"
)

// NodeType is the `nodeType` tag the Solidity compiler attaches to every AST node.
type NodeType string

const (
	NodeTypeSourceUnit            NodeType = "SourceUnit"
	NodeTypeImportDirective       NodeType = "ImportDirective"
	NodeTypeContractDefinition    NodeType = "ContractDefinition"
	NodeTypeInheritanceSpecifier  NodeType = "InheritanceSpecifier"
	NodeTypeIdentifierPath        NodeType = "IdentifierPath"
	NodeTypeUserDefinedTypeName   NodeType = "UserDefinedTypeName"
	NodeTypeElementaryTypeName    NodeType = "ElementaryTypeName"
	NodeTypeFunctionDefinition    NodeType = "FunctionDefinition"
	NodeTypeParameterList         NodeType = "ParameterList"
	NodeTypeVariableDeclaration   NodeType = "VariableDeclaration"
	NodeTypeStructDefinition      NodeType = "StructDefinition"
	NodeTypeLiteral               NodeType = "Literal"
	NodeTypeIdentifier            NodeType = "Identifier"
	NodeTypeInlineAssembly        NodeType = "InlineAssembly"
	NodeTypeYulBlock              NodeType = "YulBlock"
	NodeTypeYulFunctionDefinition NodeType = "YulFunctionDefinition"
	NodeTypeYulSwitch             NodeType = "YulSwitch"
	NodeTypeYulCase               NodeType = "YulCase"
	NodeTypeYulLiteral            NodeType = "YulLiteral"
	NodeTypeYulAssignment         NodeType = "YulAssignment"
	NodeTypeYulIdentifier         NodeType = "YulIdentifier"
)

// Node is the closed set of AST node variants. Every concrete variant lives in this file and embeds BaseNode; nodes
// of a type the analysis does not model are decoded as GenericNode so traversal still reaches their children.
type Node interface {
	// GetNodeType returns the compiler's node type tag.
	GetNodeType() NodeType
	// GetID returns the compiler-assigned node id, unique within a compilation run.
	GetID() int
	// Children returns every direct child node in document order.
	Children() []Node

	base() *BaseNode
}

// BaseNode holds the attributes shared by every AST node.
type BaseNode struct {
	// NodeType represents the node type tag
	NodeType NodeType `json:"nodeType"`
	// ID is the compiler-assigned node id (Yul nodes from older compilers carry none)
	ID int `json:"id"`
	// Src is the source range of the node in "start:length:sourceIndex" form
	Src string `json:"src"`

	children []Node
}

// GetNodeType implements the Node interface.
func (b *BaseNode) GetNodeType() NodeType {
	return b.NodeType
}

// GetID implements the Node interface.
func (b *BaseNode) GetID() int {
	return b.ID
}

// Children implements the Node interface.
func (b *BaseNode) Children() []Node {
	return b.children
}

func (b *BaseNode) base() *BaseNode {
	return b
}

// srcPattern matches the "start:length:sourceIndex" form of the src attribute.
var srcPattern = regexp.MustCompile(`^([0-9]+):([0-9]+):(-?[0-9]+)$`)

// srcComponent returns a single numeric component of the src attribute, or -1 if it cannot be parsed.
func (b *BaseNode) srcComponent(index int) int {
	candidates := srcPattern.FindStringSubmatch(b.Src)
	if len(candidates) != 4 { // FindStringSubmatch includes the whole match as the first element
		return -1
	}
	value, err := strconv.Atoi(candidates[index+1])
	if err != nil {
		return -1
	}
	return value
}

// GetStart returns the byte offset at which the node starts within its source file.
func (b *BaseNode) GetStart() int {
	return b.srcComponent(0)
}

// GetLength returns the byte length of the node within its source file.
func (b *BaseNode) GetLength() int {
	return b.srcComponent(1)
}

// GetSourceUnitID returns the index of the source file the node belongs to.
func (b *BaseNode) GetSourceUnitID() int {
	return b.srcComponent(2)
}

// TypeDescriptions carries the compiler's resolved type for an expression or declaration.
type TypeDescriptions struct {
	TypeIdentifier string `json:"typeIdentifier"`
	TypeString     string `json:"typeString"`
}

// SourceUnit is the root node of a single source file's AST.
type SourceUnit struct {
	BaseNode
	// AbsolutePath is the source name the compiler used for this file
	AbsolutePath string `json:"absolutePath"`
	// ExportedSymbols maps every name visible at file level (local declarations and imports) to declaration ids
	ExportedSymbols map[string][]int `json:"exportedSymbols"`
	// Nodes is the list of top-level declarations
	Nodes []Node `json:"-"`
}

// SymbolAlias is a single `{Foreign as Local}` entry of an import directive.
type SymbolAlias struct {
	Foreign struct {
		Name                  string `json:"name"`
		ReferencedDeclaration int    `json:"referencedDeclaration"`
	} `json:"foreign"`
	// Local is the alias name, empty when the symbol is imported under its own name
	Local string `json:"local"`
}

// LocalName returns the name the symbol is bound to inside the importing file.
func (s SymbolAlias) LocalName() string {
	if s.Local != "" {
		return s.Local
	}
	return s.Foreign.Name
}

// ImportDirective is an `import` statement.
type ImportDirective struct {
	BaseNode
	// AbsolutePath is the resolved source name of the imported file
	AbsolutePath string `json:"absolutePath"`
	// File is the import path exactly as written
	File string `json:"file"`
	// SourceUnit is the node id of the imported file's SourceUnit
	SourceUnit int `json:"sourceUnit"`
	// UnitAlias is set for `import "x.sol" as X;`
	UnitAlias     string        `json:"unitAlias"`
	SymbolAliases []SymbolAlias `json:"symbolAliases"`
}

// ContractDefinition is a contract, interface or library declaration.
type ContractDefinition struct {
	BaseNode
	Name string `json:"name"`
	// CanonicalName is the name of the contract definition
	CanonicalName string `json:"canonicalName,omitempty"`
	// Kind is a ContractKind that represents what type of contract definition this is (contract, interface, or library)
	Kind     ContractKind `json:"contractKind,omitempty"`
	Abstract bool         `json:"abstract"`
	// LinearizedBaseContracts is the compiler's C3 linearization of the inheritance graph, self first
	LinearizedBaseContracts []int `json:"linearizedBaseContracts"`

	// BaseContracts lists the direct inheritance specifiers in declaration order
	BaseContracts []*InheritanceSpecifier `json:"-"`
	// Nodes is the list of nested declarations
	Nodes []Node `json:"-"`
}

// InheritanceSpecifier is a single entry of a contract's `is A, B` list.
type InheritanceSpecifier struct {
	BaseNode
	// BaseName is an *IdentifierPath on recent compilers and a *UserDefinedTypeName on older ones
	BaseName Node `json:"-"`
}

// ReferencedDeclaration returns the declaration id of the base contract.
func (s *InheritanceSpecifier) ReferencedDeclaration() (int, bool) {
	switch baseName := s.BaseName.(type) {
	case *IdentifierPath:
		return baseName.ReferencedDeclaration, true
	case *UserDefinedTypeName:
		return baseName.ReferencedDeclaration, true
	}
	return 0, false
}

// Name returns the base contract name as written, possibly qualified by a unit alias (`X.Base`).
func (s *InheritanceSpecifier) Name() string {
	switch baseName := s.BaseName.(type) {
	case *IdentifierPath:
		return baseName.Name
	case *UserDefinedTypeName:
		return baseName.TypeName()
	}
	return ""
}

// IdentifierPath is a (possibly dotted) reference to a declaration.
type IdentifierPath struct {
	BaseNode
	Name                  string `json:"name"`
	ReferencedDeclaration int    `json:"referencedDeclaration"`
}

// UserDefinedTypeName references a contract, struct or enum type.
type UserDefinedTypeName struct {
	BaseNode
	// Name is only emitted by compilers older than 0.8.0
	Name                  string           `json:"name"`
	ReferencedDeclaration int              `json:"referencedDeclaration"`
	TypeDescriptions      TypeDescriptions `json:"typeDescriptions"`

	PathNode *IdentifierPath `json:"-"`
}

// TypeName returns the referenced type name, whichever way the compiler emitted it.
func (t *UserDefinedTypeName) TypeName() string {
	if t.PathNode != nil {
		return t.PathNode.Name
	}
	return t.Name
}

// ElementaryTypeName is a builtin type such as `address` or `uint256`.
type ElementaryTypeName struct {
	BaseNode
	Name             string           `json:"name"`
	TypeDescriptions TypeDescriptions `json:"typeDescriptions"`
}

// FunctionDefinition is the function definition node
type FunctionDefinition struct {
	BaseNode
	Name string `json:"name"`
	// Kind is one of function, constructor, fallback, receive, freeFunction
	Kind            string `json:"kind"`
	Visibility      string `json:"visibility"`
	StateMutability string `json:"stateMutability"`
	Implemented     bool   `json:"implemented"`
	// FunctionSelector is the 4-byte selector as 8 hex characters, only set for externally callable functions
	FunctionSelector string `json:"functionSelector"`

	Parameters       *ParameterList `json:"-"`
	ReturnParameters *ParameterList `json:"-"`
}

// ParameterList holds function parameters or return values.
type ParameterList struct {
	BaseNode
	Parameters []*VariableDeclaration `json:"-"`
}

// VariableDeclaration is a state variable, struct member, parameter or local variable.
type VariableDeclaration struct {
	BaseNode
	Name          string `json:"name"`
	Constant      bool   `json:"constant"`
	Mutability    string `json:"mutability"`
	StateVariable bool   `json:"stateVariable"`
	Visibility    string `json:"visibility"`
	// FunctionSelector is set for public state variables, which expose a getter
	FunctionSelector string           `json:"functionSelector"`
	TypeDescriptions TypeDescriptions `json:"typeDescriptions"`

	TypeName Node `json:"-"`
	// Value is the initializer expression, if any
	Value Node `json:"-"`
}

// StructDefinition is a struct type declaration.
type StructDefinition struct {
	BaseNode
	Name          string `json:"name"`
	CanonicalName string `json:"canonicalName"`
	Visibility    string `json:"visibility"`

	Members []*VariableDeclaration `json:"-"`
}

// Literal is a Solidity literal expression.
type Literal struct {
	BaseNode
	// Kind is one of bool, number, string, hexString, unicodeString
	Kind             string           `json:"kind"`
	Value            string           `json:"value"`
	HexValue         string           `json:"hexValue"`
	TypeDescriptions TypeDescriptions `json:"typeDescriptions"`
}

// Identifier is a Solidity identifier expression.
type Identifier struct {
	BaseNode
	Name                  string `json:"name"`
	ReferencedDeclaration int    `json:"referencedDeclaration"`
}

// InlineAssembly is an `assembly { ... }` block, whose body is a Yul AST.
type InlineAssembly struct {
	BaseNode
	AST *YulBlock `json:"-"`
}

// YulBlock is a `{ ... }` block of Yul statements.
type YulBlock struct {
	BaseNode
	Statements []Node `json:"-"`
}

// YulFunctionDefinition is a function declared inside inline assembly.
type YulFunctionDefinition struct {
	BaseNode
	Name string    `json:"name"`
	Body *YulBlock `json:"-"`
}

// YulSwitch is a `switch expr case ... default ...` statement.
type YulSwitch struct {
	BaseNode
	Expression Node       `json:"-"`
	Cases      []*YulCase `json:"-"`
}

// YulCase is a single arm of a YulSwitch.
type YulCase struct {
	BaseNode
	// Value is nil for the `default` arm
	Value *YulLiteral `json:"-"`
	Body  *YulBlock   `json:"-"`
}

// IsDefault indicates whether this is the `default` arm of the switch.
func (c *YulCase) IsDefault() bool {
	return c.Value == nil
}

// YulLiteral is a literal inside inline assembly.
type YulLiteral struct {
	BaseNode
	// Kind is one of number, string, bool
	Kind  string `json:"kind"`
	Value string `json:"value"`
	// HexValue is emitted instead of Value by some compiler versions for string literals
	HexValue string `json:"hexValue"`
	Type     string `json:"type"`
}

// YulAssignment is a `a, b := expr` statement.
type YulAssignment struct {
	BaseNode
	VariableNames []*YulIdentifier `json:"-"`
	Value         Node             `json:"-"`
}

// YulIdentifier is an identifier inside inline assembly.
type YulIdentifier struct {
	BaseNode
	Name string `json:"name"`
}

// GenericNode represents every node type that is not modeled by a dedicated variant.
type GenericNode struct {
	BaseNode
}

// IsStructTypeString indicates whether a compiler type string refers to a struct type.
func IsStructTypeString(typeString string) bool {
	return strings.HasPrefix(typeString, StructTypeStringPrefix)
}

// StructCanonicalNameFromTypeString strips the struct prefix and any data location suffix from a compiler type
// string, e.g. "struct OwnerNamespace.OwnerStorage storage ref" yields "OwnerNamespace.OwnerStorage".
func StructCanonicalNameFromTypeString(typeString string) string {
	name := strings.TrimPrefix(typeString, StructTypeStringPrefix)
	if i := strings.IndexByte(name, ' '); i >= 0 {
		name = name[:i]
	}
	return name
}
