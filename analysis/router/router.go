// Package router reads and validates the selector branch table of a router contract, which forwards calls to
// module contracts by delegatecall, and generates router sources from a set of modules.
package router

import (
	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/routerguard/analysis/astquery"
	"github.com/crytic/routerguard/analysis/dependencies"
	"github.com/crytic/routerguard/analysis/selectors"
	"github.com/crytic/routerguard/compilation/types"
)

// ModuleConstant is an `address constant` declared by a router, naming the deployed address of a module.
type ModuleConstant struct {
	// Name is the constant identifier, e.g. _OWNER_MODULE
	Name string `json:"name"`
	// Value holds the address literal exactly as written in the source
	Value ConstantValue `json:"value"`
}

// ConstantValue is the literal value of a module constant.
type ConstantValue struct {
	Value string `json:"value"`
}

// Address returns the constant's value as an address.
func (c ModuleConstant) Address() (common.Address, bool) {
	if !common.IsHexAddress(c.Value.Value) {
		return common.Address{}, false
	}
	return common.HexToAddress(c.Value.Value), true
}

// SelectorBinding is a single arm of the router branch table, binding a selector to a module constant.
type SelectorBinding struct {
	// Selector is the normalized selector of the case arm
	Selector string `json:"selector"`
	// Value is the module constant the arm resolves to. Its address is empty when the constant is not declared.
	Value ModuleConstant `json:"value"`
}

// Router is the parsed dispatch construct of a router contract.
type Router struct {
	// FullyQualifiedName identifies the router contract
	FullyQualifiedName string `json:"contract"`
	// Constants are the module address constants visible to the router, in declaration order
	Constants []ModuleConstant `json:"constants"`
	// Bindings are the branch table arms in AST traversal order
	Bindings []SelectorBinding `json:"bindings"`
}

// Constant returns the module constant declared under the given name.
func (r *Router) Constant(name string) (ModuleConstant, bool) {
	for _, constant := range r.Constants {
		if constant.Name == name {
			return constant, true
		}
	}
	return ModuleConstant{}, false
}

// ParseRouter locates a router contract by fully-qualified name and parses its constants and branch table.
// Constants are collected across the router's dependency chain, with the router's own declarations taking
// precedence.
func ParseRouter(fullyQualifiedName string, sourceUnits []*types.SourceUnit) (*Router, bool) {
	chain := dependencies.FindContractDependencies(fullyQualifiedName, sourceUnits)
	if len(chain) == 0 {
		return nil, false
	}

	router := &Router{
		FullyQualifiedName: fullyQualifiedName,
		Constants:          make([]ModuleConstant, 0),
	}
	for _, name := range chain {
		contract, ok := dependencies.FindContract(name, sourceUnits)
		if !ok {
			continue
		}
		for _, constant := range ParseModuleConstants(contract) {
			if _, exists := router.Constant(constant.Name); !exists {
				router.Constants = append(router.Constants, constant)
			}
		}
	}

	contract, _ := dependencies.FindContract(fullyQualifiedName, sourceUnits)
	router.Bindings = make([]SelectorBinding, 0)
	for _, arm := range ParseBranchTable(contract) {
		constant, ok := router.Constant(arm.Value.Name)
		if !ok {
			constant = ModuleConstant{Name: arm.Value.Name}
		}
		router.Bindings = append(router.Bindings, SelectorBinding{Selector: arm.Selector, Value: constant})
	}
	return router, true
}

// ParseModuleConstants returns every constant state variable of a contract initialized with a literal.
func ParseModuleConstants(contract *types.ContractDefinition) []ModuleConstant {
	constants := make([]ModuleConstant, 0)
	for _, node := range contract.Nodes {
		variable, ok := node.(*types.VariableDeclaration)
		if !ok || !variable.Constant {
			continue
		}
		literal, ok := variable.Value.(*types.Literal)
		if !ok {
			continue
		}
		constants = append(constants, ModuleConstant{Name: variable.Name, Value: ConstantValue{Value: literal.Value}})
	}
	return constants
}

// ParseBranchTable returns the arms of every inline assembly switch found in the contract that assign a single
// identifier, i.e. `case 0x8da5cb5b { result := _OWNER_MODULE }`. Default arms and arms whose selector cannot be
// read are skipped. The constant addresses of the returned bindings are not resolved.
func ParseBranchTable(contract *types.ContractDefinition) []SelectorBinding {
	bindings := make([]SelectorBinding, 0)
	if contract == nil {
		return bindings
	}

	for _, yulCase := range astquery.FindAll[*types.YulCase](contract, nil) {
		if yulCase.IsDefault() || yulCase.Body == nil {
			continue
		}
		selector, ok := selectors.NormalizeLiteralSelector(yulCase.Value.Value)
		if !ok {
			continue
		}
		assignment, ok := astquery.FindOne(yulCase.Body, func(a *types.YulAssignment) bool {
			_, isIdentifier := a.Value.(*types.YulIdentifier)
			return isIdentifier
		})
		if !ok {
			continue
		}
		bindings = append(bindings, SelectorBinding{
			Selector: selector,
			Value:    ModuleConstant{Name: assignment.Value.(*types.YulIdentifier).Name},
		})
	}
	return bindings
}
