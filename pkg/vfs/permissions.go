package vfs

// Permission is the access a user holds on one filesystem.
//
// Writeable does not imply readable in storage; the two bits are kept
// independently and callers decide how to combine them. The zero value
// means no access.
type Permission struct {
	Readable  bool `json:"readable"`
	Writeable bool `json:"writeable"`
}

type permissionKey struct {
	userno string
	fsno   string
}

// PermissionSet is a sparse matrix mapping (userno, fsno) to a Permission.
//
// Absent entries default to no access, and an entry with both bits false is
// pruned rather than stored, so absence and all-false are the same state
// and the representation stays minimal.
//
// Admin bypass is applied by callers; the set itself has no notion of
// admin.
type PermissionSet struct {
	records map[permissionKey]Permission
}

// NewPermissionSet returns an empty permission set.
func NewPermissionSet() *PermissionSet {
	return &PermissionSet{records: make(map[permissionKey]Permission)}
}

// Get returns the stored permission for (userno, fsno), or the no-access
// default if none is stored.
func (ps *PermissionSet) Get(userno, fsno string) Permission {
	return ps.records[permissionKey{userno: userno, fsno: fsno}]
}

// Set upserts the permission for (userno, fsno). An all-false permission
// removes the record instead.
func (ps *PermissionSet) Set(userno, fsno string, perm Permission) {
	key := permissionKey{userno: userno, fsno: fsno}
	if !perm.Readable && !perm.Writeable {
		delete(ps.records, key)
		return
	}
	ps.records[key] = perm
}

// RemoveUser purges every record held for userno.
func (ps *PermissionSet) RemoveUser(userno string) {
	for key := range ps.records {
		if key.userno == userno {
			delete(ps.records, key)
		}
	}
}

// RemoveFilesystem purges every record held for fsno.
func (ps *PermissionSet) RemoveFilesystem(fsno string) {
	for key := range ps.records {
		if key.fsno == fsno {
			delete(ps.records, key)
		}
	}
}

// Len returns the number of stored records. Pruning keeps this equal to
// the number of grants with at least one bit set.
func (ps *PermissionSet) Len() int { return len(ps.records) }

// each calls fn for every stored record. Iteration order is unspecified.
func (ps *PermissionSet) each(fn func(userno, fsno string, perm Permission)) {
	for key, perm := range ps.records {
		fn(key.userno, key.fsno, perm)
	}
}
