// Package storage maps the structs declared by storage namespace contracts into flat, ordered member lists and
// compares two such maps to classify every change as an append, a modification or a removal.
//
// The comparison is positional: members are matched by their index in the flattened list, never by name. It is a
// proxy for storage layout compatibility and does not compute storage slots, so it knows nothing about value
// packing, alignment or the slot footprint of arrays and mappings. A clean diff means no member moved or changed
// type in the flattened declaration order, not that the resulting slot layout was verified.
package storage
