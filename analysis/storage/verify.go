package storage

import (
	"fmt"
	"strings"
)

// Policy decides which storage changes a deployment gate accepts. Appends are always accepted.
type Policy struct {
	// AllowModifications accepts in-place member changes
	AllowModifications bool `json:"allowModifications" yaml:"allowModifications"`
	// AllowRemovals accepts removed members and removed structs
	AllowRemovals bool `json:"allowRemovals" yaml:"allowRemovals"`
}

// StorageMutationError is returned when a diff contains changes the policy does not accept.
type StorageMutationError struct {
	Modifications []DiffEntry
	Removals      []DiffEntry
}

// Error implements the error interface.
func (e *StorageMutationError) Error() string {
	changes := make([]string, 0, len(e.Modifications)+len(e.Removals))
	for _, entry := range e.Modifications {
		changes = append(changes, DescribeEntry(entry))
	}
	for _, entry := range e.Removals {
		changes = append(changes, DescribeEntry(entry))
	}
	return fmt.Sprintf("unsafe storage mutation(s) found: %s", strings.Join(changes, "; "))
}

// Verify gates a diff by a policy. Returns a *StorageMutationError listing every modification and removal the
// policy does not accept, or nil.
func Verify(diff StorageDiff, policy Policy) error {
	err := &StorageMutationError{}
	if !policy.AllowModifications {
		err.Modifications = diff.Modifications
	}
	if !policy.AllowRemovals {
		err.Removals = diff.Removals
	}
	if len(err.Modifications) == 0 && len(err.Removals) == 0 {
		return nil
	}
	return err
}

// DescribeEntry returns a single-line, human-readable description of a diff entry.
func DescribeEntry(entry DiffEntry) string {
	name := entry.Contract + "." + entry.Struct
	switch {
	case entry.CompleteStruct:
		return fmt.Sprintf("struct %s (%d member(s))", name, len(entry.Members))
	case entry.Old != nil && entry.New != nil:
		return fmt.Sprintf("%s: %s %s changed to %s %s", name, entry.Old.Type, entry.Old.Name, entry.New.Type, entry.New.Name)
	case entry.New != nil:
		return fmt.Sprintf("%s: %s %s", name, entry.New.Type, entry.New.Name)
	case entry.Old != nil:
		return fmt.Sprintf("%s: %s %s", name, entry.Old.Type, entry.Old.Name)
	}
	return name
}
