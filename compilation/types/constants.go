package types

const (
	// StructTypeStringPrefix is the prefix the compiler uses in type strings that refer to a struct type.
	StructTypeStringPrefix = "struct "

	// SelectorSupportVersion is the first compiler version that emits `functionSelector` on AST function nodes.
	SelectorSupportVersion = "0.6.0"
)
