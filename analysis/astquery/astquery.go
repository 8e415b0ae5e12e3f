// Package astquery provides read-only tree searches over compiler-emitted ASTs. Searches never copy or mutate
// nodes, so the same decoded tree can be shared by every analysis.
package astquery

import (
	"reflect"

	"github.com/crytic/routerguard/compilation/types"
)

// isNil reports whether a node is absent, either as a nil interface or as a typed nil pointer held by one.
func isNil(node types.Node) bool {
	if node == nil {
		return true
	}
	v := reflect.ValueOf(node)
	return v.Kind() == reflect.Ptr && v.IsNil()
}

// walk visits the node and all of its descendants depth-first, pre-order, in document order. Visiting stops as soon
// as visit returns false.
func walk(node types.Node, visit func(types.Node) bool) bool {
	if isNil(node) {
		return true
	}
	if !visit(node) {
		return false
	}
	for _, child := range node.Children() {
		if !walk(child, visit) {
			return false
		}
	}
	return true
}

// FindAll returns every node of variant T within the tree rooted at root, the root included, in depth-first
// pre-order. If filter is non-nil, only nodes it accepts are returned. An absent root yields an empty result.
func FindAll[T types.Node](root types.Node, filter func(T) bool) []T {
	return FindAllIn[T]([]types.Node{root}, filter)
}

// FindAllIn is FindAll over several trees, equivalent to concatenating the results of each tree in order.
func FindAllIn[T types.Node](roots []types.Node, filter func(T) bool) []T {
	results := make([]T, 0)
	for _, root := range roots {
		walk(root, func(node types.Node) bool {
			if typed, ok := node.(T); ok && (filter == nil || filter(typed)) {
				results = append(results, typed)
			}
			return true
		})
	}
	return results
}

// FindOne returns the first node of variant T within the tree rooted at root which is accepted by filter (or any
// such node if filter is nil).
func FindOne[T types.Node](root types.Node, filter func(T) bool) (T, bool) {
	var found T
	ok := false
	walk(root, func(node types.Node) bool {
		if typed, isT := node.(T); isT && (filter == nil || filter(typed)) {
			found, ok = typed, true
			return false
		}
		return true
	})
	return found, ok
}

// FindAllOfType returns every node within the tree whose node type tag is one of nodeTypes. Unlike FindAll this
// also matches tags which are only decoded as types.GenericNode.
func FindAllOfType(root types.Node, nodeTypes ...types.NodeType) []types.Node {
	wanted := make(map[types.NodeType]struct{}, len(nodeTypes))
	for _, nodeType := range nodeTypes {
		wanted[nodeType] = struct{}{}
	}

	results := make([]types.Node, 0)
	walk(root, func(node types.Node) bool {
		if _, ok := wanted[node.GetNodeType()]; ok {
			results = append(results, node)
		}
		return true
	})
	return results
}

// FindByID returns the node with the given compiler-assigned id within the provided trees.
func FindByID(roots []types.Node, id int) (types.Node, bool) {
	for _, root := range roots {
		var found types.Node
		walk(root, func(node types.Node) bool {
			if node.GetID() == id {
				found = node
				return false
			}
			return true
		})
		if found != nil {
			return found, true
		}
	}
	return nil, false
}

// SourceUnitNodes converts a list of source units into a list of root nodes for the multi-tree searches.
func SourceUnitNodes(sourceUnits []*types.SourceUnit) []types.Node {
	nodes := make([]types.Node, len(sourceUnits))
	for i, sourceUnit := range sourceUnits {
		nodes[i] = sourceUnit
	}
	return nodes
}

// FindSourceUnit returns the source unit with the given absolute path.
func FindSourceUnit(sourceUnits []*types.SourceUnit, absolutePath string) (*types.SourceUnit, bool) {
	for _, sourceUnit := range sourceUnits {
		if sourceUnit != nil && sourceUnit.AbsolutePath == absolutePath {
			return sourceUnit, true
		}
	}
	return nil, false
}

// FindContractInSourceUnit returns the top-level contract, interface or library with the given name.
func FindContractInSourceUnit(sourceUnit *types.SourceUnit, name string) (*types.ContractDefinition, bool) {
	if sourceUnit == nil {
		return nil, false
	}
	for _, node := range sourceUnit.Nodes {
		if contract, ok := node.(*types.ContractDefinition); ok && contract.Name == name {
			return contract, true
		}
	}
	return nil, false
}
