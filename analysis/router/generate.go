package router

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"unicode"

	"github.com/crytic/routerguard/analysis/dependencies"
	"github.com/crytic/routerguard/analysis/selectors"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

// MaxSelectorsPerSwitch is the largest number of case arms emitted in a single switch of the generated
// findImplementation function. Larger tables are split by binary search on the selector value.
const MaxSelectorsPerSwitch = 9

// routerTemplate is the Solidity source of a generated router. Dispatch holds the pre-rendered body of
// findImplementation.
var routerTemplate = template.Must(template.New("router").Parse(`// SPDX-License-Identifier: UNLICENSED
pragma solidity ^0.8.0;

// GENERATED CODE - do not edit manually!!
// --------------------------------------------------------------------------------
// --------------------------------------------------------------------------------

contract {{.Name}} {
    error UnknownSelector(bytes4 sel);
{{range .Modules}}
    address private constant {{.Constant}} = {{.Address}};{{end}}

    fallback() external payable {
        _forward();
    }

    receive() external payable {
        _forward();
    }

    function _forward() internal {
        // Lookup table: Function selector => implementation contract
        bytes4 sig4 = msg.sig;
        address implementation;

        assembly {
            let sig32 := shr(224, sig4)

            function findImplementation(sig) -> result {
{{.Dispatch}}            }

            implementation := findImplementation(sig32)
        }

        if (implementation == address(0)) {
            revert UnknownSelector(sig4);
        }

        // Delegatecall to the implementation contract
        assembly {
            calldatacopy(0, 0, calldatasize())

            let result := delegatecall(gas(), implementation, 0, calldatasize(), 0, 0)
            returndatacopy(0, 0, returndatasize())

            switch result
            case 0 {
                revert(0, returndatasize())
            }
            default {
                return(0, returndatasize())
            }
        }
    }
}
`))

// generatedModule is a module constant of a generated router.
type generatedModule struct {
	Constant string
	Address  string
}

// dispatchCase is a single arm of the generated branch table.
type dispatchCase struct {
	selector selectors.FunctionSelector
	constant string
}

// GenerateRouter renders the Solidity source of a router named name dispatching to modules at the addresses they
// are deployed at. Every module gets an address constant and every distinct selector a case arm.
//
// Generation fails with a *ContractValidationError if a module is not deployed, if two modules map to the same
// constant name, or if two different modules declare the same selector.
func GenerateRouter(name string, modules []Module, addresses AddressBook) (string, error) {
	validationErrors := make([]ValidationError, 0)
	generated := make([]generatedModule, 0, len(modules))
	constantOwners := make(map[string]string)
	selectorOwners := make(map[string]string)
	cases := make([]dispatchCase, 0)

	for _, module := range modules {
		_, contractName := dependencies.ParseFullyQualifiedName(module.FullyQualifiedName)
		constant := ToModuleConstantName(contractName)

		address, ok := addresses.DeployedAddress(module.FullyQualifiedName)
		if !ok {
			validationErrors = append(validationErrors, ValidationError{
				Msg:    fmt.Sprintf("Module %s has no deployed address", module.FullyQualifiedName),
				Module: module.FullyQualifiedName,
			})
			continue
		}
		if owner, exists := constantOwners[constant]; exists {
			validationErrors = append(validationErrors, ValidationError{
				Msg:    fmt.Sprintf("Modules %s and %s both map to constant %s", owner, module.FullyQualifiedName, constant),
				Module: module.FullyQualifiedName,
			})
			continue
		}
		constantOwners[constant] = module.FullyQualifiedName
		generated = append(generated, generatedModule{Constant: constant, Address: address.Hex()})

		for _, selector := range selectors.Unique(module.Selectors) {
			if owner, exists := selectorOwners[selector.Selector]; exists {
				selector := selector
				validationErrors = append(validationErrors, ValidationError{
					Msg: fmt.Sprintf("Selector %s of %s.%s is also declared by %s",
						selector.Selector, selector.ContractName, selector.FunctionName, owner),
					ContractSelector: &selector,
					Duplicate:        true,
					Module:           module.FullyQualifiedName,
				})
				continue
			}
			selectorOwners[selector.Selector] = module.FullyQualifiedName
			cases = append(cases, dispatchCase{selector: selector, constant: constant})
		}
	}
	if err := NewContractValidationError(name, validationErrors); err != nil {
		return "", err
	}

	slices.SortFunc(cases, func(a, b dispatchCase) int {
		return strings.Compare(a.selector.Selector, b.selector.Selector)
	})
	var dispatch strings.Builder
	renderDispatch(&dispatch, cases, 4)

	var source bytes.Buffer
	err := routerTemplate.Execute(&source, struct {
		Name     string
		Modules  []generatedModule
		Dispatch string
	}{name, generated, dispatch.String()})
	if err != nil {
		return "", errors.WithStack(err)
	}
	return source.String(), nil
}

// renderDispatch writes the findImplementation body for sorted cases. Tables larger than MaxSelectorsPerSwitch are
// split in two halves around a pivot selector.
func renderDispatch(b *strings.Builder, cases []dispatchCase, depth int) {
	indent := strings.Repeat("    ", depth)
	if len(cases) == 0 {
		b.WriteString(indent + "leave\n")
		return
	}
	if len(cases) <= MaxSelectorsPerSwitch {
		b.WriteString(indent + "switch sig\n")
		for _, c := range cases {
			fmt.Fprintf(b, "%scase %s { result := %s } // %s.%s()\n",
				indent, c.selector.Selector, c.constant, c.selector.ContractName, c.selector.FunctionName)
		}
		b.WriteString(indent + "leave\n")
		return
	}

	pivot := len(cases) / 2
	fmt.Fprintf(b, "%sif lt(sig,%s) {\n", indent, cases[pivot].selector.Selector)
	renderDispatch(b, cases[:pivot], depth+1)
	b.WriteString(indent + "}\n")
	renderDispatch(b, cases[pivot:], depth)
}

// ToModuleConstantName converts a module contract name to the name of its router constant, e.g. OwnerModule
// becomes _OWNER_MODULE and ERC20Module becomes _ERC20_MODULE.
func ToModuleConstantName(contractName string) string {
	runes := []rune(contractName)
	var b strings.Builder
	b.WriteByte('_')
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			nextIsLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextIsLower) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}
