package storage

// DiffEntry is a single change between two storage struct maps.
type DiffEntry struct {
	// CompleteStruct is true when the whole struct was added or removed, and false for a single member change inside
	// a struct present in both maps
	CompleteStruct bool   `json:"completeStruct"`
	Contract       string `json:"contract"`
	Struct         string `json:"struct"`
	// Old is the previous member, set for member-level removals and modifications
	Old *StructMember `json:"old,omitempty"`
	// New is the current member, set for member-level appends and modifications
	New *StructMember `json:"new,omitempty"`
	// Members are the members of a struct added or removed as a whole
	Members []StructMember `json:"members,omitempty"`
}

// StorageDiff classifies the changes between two storage struct maps.
type StorageDiff struct {
	Appends       []DiffEntry `json:"appends"`
	Modifications []DiffEntry `json:"modifications"`
	Removals      []DiffEntry `json:"removals"`
}

// IsEmpty indicates whether the two maps were identical.
func (d StorageDiff) IsEmpty() bool {
	return len(d.Appends) == 0 && len(d.Modifications) == 0 && len(d.Removals) == 0
}

// IsAppendOnly indicates whether the diff only adds members or structs, which keeps existing storage intact.
func (d StorageDiff) IsAppendOnly() bool {
	return len(d.Modifications) == 0 && len(d.Removals) == 0
}

// CompareStorageStructs compares a previous and a current storage struct map. Entries are matched by contract name
// and struct name:
//   - previous entries without a current counterpart are complete removals,
//   - current entries without a previous counterpart are complete appends,
//   - matched entries are compared member by member at each index: an index only present in the current entry is an
//     append, an index only present in the previous entry is a removal, and a name or type change is a
//     modification.
//
// Inserting a member anywhere but at the end therefore shows up as modifications of every following member plus an
// append for the new last index.
func CompareStorageStructs(previous []StorageNamespaceEntry, current []StorageNamespaceEntry) StorageDiff {
	diff := StorageDiff{
		Appends:       make([]DiffEntry, 0),
		Modifications: make([]DiffEntry, 0),
		Removals:      make([]DiffEntry, 0),
	}

	previousByKey := indexEntries(previous)
	currentByKey := indexEntries(current)

	for _, entry := range previous {
		if _, ok := currentByKey[entry.key()]; !ok {
			diff.Removals = append(diff.Removals, completeStructEntry(entry))
		}
	}
	for _, entry := range current {
		if _, ok := previousByKey[entry.key()]; !ok {
			diff.Appends = append(diff.Appends, completeStructEntry(entry))
		}
	}

	compared := make(map[entryKey]struct{})
	for _, previousEntry := range previous {
		key := previousEntry.key()
		currentEntry, ok := currentByKey[key]
		if !ok {
			continue
		}
		if _, done := compared[key]; done {
			continue
		}
		compared[key] = struct{}{}
		compareMembers(&diff, previousEntry, currentEntry)
	}
	return diff
}

// compareMembers adds the member-level changes between two entries with the same identity to diff.
func compareMembers(diff *StorageDiff, previous StorageNamespaceEntry, current StorageNamespaceEntry) {
	oldMembers := previous.Struct.Members
	newMembers := current.Struct.Members
	for i := 0; i < max(len(oldMembers), len(newMembers)); i++ {
		entry := DiffEntry{
			CompleteStruct: false,
			Contract:       current.Contract.Name,
			Struct:         current.Struct.Name,
		}
		switch {
		case i >= len(oldMembers):
			entry.New = &newMembers[i]
			diff.Appends = append(diff.Appends, entry)
		case i >= len(newMembers):
			entry.Old = &oldMembers[i]
			diff.Removals = append(diff.Removals, entry)
		case oldMembers[i].Name != newMembers[i].Name || oldMembers[i].Type != newMembers[i].Type:
			entry.Old = &oldMembers[i]
			entry.New = &newMembers[i]
			diff.Modifications = append(diff.Modifications, entry)
		}
	}
}

// indexEntries maps each entry identity to its first entry.
func indexEntries(entries []StorageNamespaceEntry) map[entryKey]StorageNamespaceEntry {
	index := make(map[entryKey]StorageNamespaceEntry, len(entries))
	for _, entry := range entries {
		if _, exists := index[entry.key()]; !exists {
			index[entry.key()] = entry
		}
	}
	return index
}

func completeStructEntry(entry StorageNamespaceEntry) DiffEntry {
	return DiffEntry{
		CompleteStruct: true,
		Contract:       entry.Contract.Name,
		Struct:         entry.Struct.Name,
		Members:        entry.Struct.Members,
	}
}
