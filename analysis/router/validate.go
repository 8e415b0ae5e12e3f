package router

import (
	"fmt"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/routerguard/analysis/selectors"
)

// AddressBook resolves the currently deployed address of a contract by fully-qualified name.
type AddressBook interface {
	DeployedAddress(fullyQualifiedName string) (common.Address, bool)
}

// Module is a module contract the router is expected to dispatch to, with its selectors.
type Module struct {
	FullyQualifiedName string
	Selectors          []selectors.FunctionSelector
}

// UnreachableReason describes why a branch table arm cannot reach the function it is meant for.
type UnreachableReason string

const (
	// ReasonAddressMismatch means the arm's address is not the deployed address of the module declaring the selector
	ReasonAddressMismatch UnreachableReason = "addressMismatch"
	// ReasonSelectorNotInModule means the module deployed at the arm's address does not declare the selector
	ReasonSelectorNotInModule UnreachableReason = "selectorNotInModule"
	// ReasonUnresolvedConstant means the arm assigns a constant that is not declared with an address value
	ReasonUnresolvedConstant UnreachableReason = "unresolvedConstant"
)

// ValidationError is a single problem found in a router branch table.
type ValidationError struct {
	Msg              string                      `json:"msg"`
	ContractSelector *selectors.FunctionSelector `json:"contractSelector,omitempty"`
	RouterSelector   *SelectorBinding            `json:"routerSelector,omitempty"`
	MissingInRouter  bool                        `json:"missingInRouter,omitempty"`
	OnlyInRouter     bool                        `json:"onlyInRouter,omitempty"`
	Duplicate        bool                        `json:"duplicate,omitempty"`
	Reason           UnreachableReason           `json:"reason,omitempty"`
	// Module is the fully-qualified name of the module involved, if any
	Module string `json:"module,omitempty"`
}

// Error implements the error interface so a single record can be wrapped or logged directly.
func (e ValidationError) Error() string {
	return e.Msg
}

// Validate runs every router check and returns their errors, in check order: missing selectors, selectors only
// in the router, unreachable selectors and duplicate selectors.
func Validate(router *Router, modules []Module, addresses AddressBook) []ValidationError {
	errs := CheckMissingSelectors(router, modules)
	errs = append(errs, CheckOnlyInRouter(router, modules)...)
	errs = append(errs, CheckUnreachableSelectors(router, modules, addresses)...)
	errs = append(errs, CheckDuplicateSelectors(router, modules)...)
	return errs
}

// CheckMissingSelectors reports every module selector that no branch table arm handles. A selector inherited by a
// module through several paths is reported once for that module.
func CheckMissingSelectors(router *Router, modules []Module) []ValidationError {
	errs := make([]ValidationError, 0)
	for _, module := range modules {
		for _, selector := range selectors.Unique(module.Selectors) {
			if router.hasSelector(selector.Selector) {
				continue
			}
			selector := selector
			errs = append(errs, ValidationError{
				Msg:              fmt.Sprintf("Selector for %s.%s not found in router", selector.ContractName, selector.FunctionName),
				ContractSelector: &selector,
				MissingInRouter:  true,
				Module:           module.FullyQualifiedName,
			})
		}
	}
	return errs
}

// CheckOnlyInRouter reports every branch table arm whose selector no module declares.
func CheckOnlyInRouter(router *Router, modules []Module) []ValidationError {
	errs := make([]ValidationError, 0)
	for _, binding := range router.Bindings {
		if _, ok := declaringModule(modules, binding.Selector); ok {
			continue
		}
		binding := binding
		errs = append(errs, ValidationError{
			Msg:            fmt.Sprintf("Selector %s is present in router but not found in modules", binding.Selector),
			RouterSelector: &binding,
			OnlyInRouter:   true,
		})
	}
	return errs
}

// CheckUnreachableSelectors reports branch table arms that cannot reach their function. Two independent conditions
// are checked, each reported as its own error: the arm's address differs from the deployed address of the module
// declaring the selector, and the module deployed at the arm's address does not declare the selector. Arms whose
// selector no module declares are left to CheckOnlyInRouter.
func CheckUnreachableSelectors(router *Router, modules []Module, addresses AddressBook) []ValidationError {
	errs := make([]ValidationError, 0)
	for _, binding := range router.Bindings {
		binding := binding
		boundAddress, ok := binding.Value.Address()
		if !ok {
			errs = append(errs, ValidationError{
				Msg:            fmt.Sprintf("Selector %s is bound to %s, which is not an address constant of the router", binding.Selector, binding.Value.Name),
				RouterSelector: &binding,
				Reason:         ReasonUnresolvedConstant,
			})
			continue
		}

		if module, ok := declaringModule(modules, binding.Selector); ok {
			deployed, isDeployed := addresses.DeployedAddress(module.FullyQualifiedName)
			if !isDeployed || deployed != boundAddress {
				deployedDescription := "not deployed"
				if isDeployed {
					deployedDescription = "deployed at " + deployed.Hex()
				}
				errs = append(errs, ValidationError{
					Msg: fmt.Sprintf("Selector %s is bound to %s (%s), but %s declaring it is %s",
						binding.Selector, binding.Value.Name, boundAddress.Hex(), module.FullyQualifiedName, deployedDescription),
					RouterSelector: &binding,
					Reason:         ReasonAddressMismatch,
					Module:         module.FullyQualifiedName,
				})
			}
		}

		if module, ok := moduleAtAddress(modules, addresses, boundAddress); ok && !selectors.Contains(module.Selectors, binding.Selector) {
			errs = append(errs, ValidationError{
				Msg: fmt.Sprintf("Selector %s is bound to %s (%s), but %s deployed there does not declare it",
					binding.Selector, binding.Value.Name, boundAddress.Hex(), module.FullyQualifiedName),
				RouterSelector: &binding,
				Reason:         ReasonSelectorNotInModule,
				Module:         module.FullyQualifiedName,
			})
		}
	}
	return errs
}

// CheckDuplicateSelectors reports selector values that occur more than once, one error per excess occurrence. A
// selector occurs once per branch table arm handling it and once per distinct module declaring it; whichever count
// is larger decides the excess, so N modules declaring the same selector, or N arms for it, yield N-1 errors.
// The two counts are not summed: 2 arms for a selector declared by 2 modules yield a single error.
// Errors are ordered by the first occurrence of each selector.
func CheckDuplicateSelectors(router *Router, modules []Module) []ValidationError {
	type declaration struct {
		module   string
		selector selectors.FunctionSelector
	}

	order := make([]string, 0)
	arms := make(map[string][]SelectorBinding)
	declarations := make(map[string][]declaration)
	track := func(selector string) {
		if _, ok := arms[selector]; ok {
			return
		}
		if _, ok := declarations[selector]; ok {
			return
		}
		order = append(order, selector)
	}

	for _, binding := range router.Bindings {
		track(binding.Selector)
		arms[binding.Selector] = append(arms[binding.Selector], binding)
	}
	for _, module := range modules {
		for _, selector := range selectors.Unique(module.Selectors) {
			track(selector.Selector)
			declarations[selector.Selector] = append(declarations[selector.Selector], declaration{module.FullyQualifiedName, selector})
		}
	}

	errs := make([]ValidationError, 0)
	for _, selector := range order {
		excess := max(len(arms[selector]), len(declarations[selector])) - 1
		for i := 1; i <= excess; i++ {
			err := ValidationError{
				Msg:       fmt.Sprintf("Selector %s present multiple times", selector),
				Duplicate: true,
			}
			if i < len(arms[selector]) {
				binding := arms[selector][i]
				err.RouterSelector = &binding
			}
			if i < len(declarations[selector]) {
				d := declarations[selector][i]
				err.ContractSelector = &d.selector
				err.Module = d.module
			}
			errs = append(errs, err)
		}
	}
	return errs
}

// hasSelector reports whether any branch table arm handles the selector.
func (r *Router) hasSelector(selector string) bool {
	for _, binding := range r.Bindings {
		if binding.Selector == selector {
			return true
		}
	}
	return false
}

// declaringModule returns the first module declaring the selector.
func declaringModule(modules []Module, selector string) (Module, bool) {
	for _, module := range modules {
		if selectors.Contains(module.Selectors, selector) {
			return module, true
		}
	}
	return Module{}, false
}

// moduleAtAddress returns the first module whose deployed address is address.
func moduleAtAddress(modules []Module, addresses AddressBook, address common.Address) (Module, bool) {
	for _, module := range modules {
		if deployed, ok := addresses.DeployedAddress(module.FullyQualifiedName); ok && deployed == address {
			return module, true
		}
	}
	return Module{}, false
}
