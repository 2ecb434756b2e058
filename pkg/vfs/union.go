package vfs

// UnionView is a read-many/write-one composition of filesystems: one
// primary plus an ordered list of secondaries, merged for reads, with all
// writes directed at the primary.
//
// The view holds fsnos, not filesystem pointers, and resolves them against
// the Store on every operation; a filesystem deleted out from under a live
// view is noticed immediately. Likewise every operation re-validates the
// caller's access, so revoking a grant invalidates outstanding views
// without any bookkeeping.
type UnionView struct {
	store     *Store
	userno    string
	fsno      string
	union     []string
	writeable bool
}

// ViewInfo identifies a union view: the primary fsno, the secondary fsnos
// in merge order, and the write flag. It is the payload of a
// filesystem-handle credential.
type ViewInfo struct {
	FSNo      string   `json:"fsno"`
	Union     []string `json:"union"`
	Writeable bool     `json:"writeable"`
}

// ViewDetail reports identity, limits, and usage for every filesystem in
// the view.
type ViewDetail struct {
	FS    FSDetail   `json:"fs"`
	Union []FSDetail `json:"union"`
}

func newUnionView(store *Store, userno, fsno string, union []string, writeable bool) *UnionView {
	return &UnionView{
		store:     store,
		userno:    userno,
		fsno:      fsno,
		union:     append([]string(nil), union...),
		writeable: writeable,
	}
}

// Info returns the view's identity.
func (v *UnionView) Info() ViewInfo {
	return ViewInfo{
		FSNo:      v.fsno,
		Union:     append([]string(nil), v.union...),
		Writeable: v.writeable,
	}
}

// Detail returns identity, limits, and usage for the primary and every
// secondary.
func (v *UnionView) Detail() (ViewDetail, error) {
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()

	primary, secondaries, err := v.resolve()
	if err != nil {
		return ViewDetail{}, err
	}
	detail := ViewDetail{FS: fsDetail(primary), Union: make([]FSDetail, 0, len(secondaries))}
	for _, fs := range secondaries {
		detail.Union = append(detail.Union, fsDetail(fs))
	}
	return detail, nil
}

// checkAccess re-validates the caller against the view's composition.
//
// The user must still exist, must still be able to read the primary and
// every secondary, and for a writeable view must still hold write access to
// the primary. Admins bypass the permission matrix; a user's own
// assignments (primary: full access, union membership: read) count as
// grants. Any shortfall is AccessDenied.
func (v *UnionView) checkAccess() error {
	user := v.store.lookupUser(v.userno)
	if user == nil {
		return errorf(ErrAccessDenied, "Access denied.")
	}
	if user.admin {
		return nil
	}
	if !v.userMayRead(user, v.fsno) {
		return errorf(ErrAccessDenied, "Access denied.")
	}
	if v.writeable {
		perm := v.store.permissions.Get(user.userno, v.fsno)
		if user.fs != v.fsno && !perm.Writeable {
			return errorf(ErrAccessDenied, "Access denied.")
		}
	}
	for _, ufsno := range v.union {
		if !v.userMayRead(user, ufsno) {
			return errorf(ErrAccessDenied, "Access denied.")
		}
	}
	return nil
}

func (v *UnionView) userMayRead(user *UserRecord, fsno string) bool {
	if user.fs == fsno {
		return true
	}
	for _, ufsno := range user.union {
		if ufsno == fsno {
			return true
		}
	}
	return v.store.permissions.Get(user.userno, fsno).Readable
}

// resolve looks up the primary and every secondary by fsno.
func (v *UnionView) resolve() (*FileSystem, []*FileSystem, error) {
	primary := v.store.lookupFS(v.fsno)
	if primary == nil {
		return nil, nil, errorf(ErrNotFound, "FS not found.")
	}
	secondaries := make([]*FileSystem, 0, len(v.union))
	for _, ufsno := range v.union {
		fs := v.store.lookupFS(ufsno)
		if fs == nil {
			return nil, nil, errorf(ErrNotFound, "FS not found for union.")
		}
		secondaries = append(secondaries, fs)
	}
	return primary, secondaries, nil
}

// Readdir merges the primary's listing with each secondary's, in order.
//
// A secondary entry is added only when no entry with the same name and kind
// is present yet. Entries contributed by secondaries, and all entries when
// the view is read-only, have Writeable forced to false. The merged result
// is sorted with the single-store ordering.
func (v *UnionView) Readdir(path string) ([]DirEntry, error) {
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()

	if err := v.checkAccess(); err != nil {
		return nil, err
	}
	primary, secondaries, err := v.resolve()
	if err != nil {
		return nil, err
	}
	result, err := primary.Readdir(path)
	if err != nil {
		return nil, err
	}
	if !v.writeable {
		for i := range result {
			result[i].Writeable = false
		}
	}
	type nameKind struct {
		name string
		kind NodeKind
	}
	present := make(map[nameKind]bool, len(result))
	for _, entry := range result {
		present[nameKind{entry.Name, entry.Kind}] = true
	}
	for _, fs := range secondaries {
		more, err := fs.Readdir(path)
		if err != nil {
			return nil, err
		}
		for _, entry := range more {
			key := nameKind{entry.Name, entry.Kind}
			if present[key] {
				continue
			}
			present[key] = true
			entry.Writeable = false
			result = append(result, entry)
		}
	}
	SortDirEntries(result)
	return result, nil
}

// Stat consults the primary, then each secondary in order, returning the
// first hit. The result's Writeable is forced to false when the hit came
// from a secondary or the view itself is read-only. If no filesystem has
// the path, the first NotFound encountered is returned.
func (v *UnionView) Stat(path string) (*FileInfo, error) {
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()

	if err := v.checkAccess(); err != nil {
		return nil, err
	}
	primary, secondaries, err := v.resolve()
	if err != nil {
		return nil, err
	}
	var firstErr error
	for i, fs := range append([]*FileSystem{primary}, secondaries...) {
		info, err := fs.Stat(path)
		if err != nil {
			if _, ok := err.(*StoreError); !ok {
				return nil, err
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if i > 0 || !v.writeable {
			info.Writeable = false
		}
		return info, nil
	}
	return nil, firstErr
}

// ReadFile searches with the same first-hit-wins order as Stat.
func (v *UnionView) ReadFile(path string) ([]byte, error) {
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()

	if err := v.checkAccess(); err != nil {
		return nil, err
	}
	primary, secondaries, err := v.resolve()
	if err != nil {
		return nil, err
	}
	var firstErr error
	for _, fs := range append([]*FileSystem{primary}, secondaries...) {
		data, err := fs.ReadFile(path)
		if err != nil {
			if _, ok := err.(*StoreError); !ok {
				return nil, err
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		return data, nil
	}
	return nil, firstErr
}

// WriteFile writes through to the primary; secondaries are never write
// targets. Requires a writeable view.
func (v *UnionView) WriteFile(path string, data []byte, truncate bool) (string, error) {
	v.store.mu.Lock()
	defer v.store.mu.Unlock()

	if err := v.checkAccess(); err != nil {
		return "", err
	}
	if !v.writeable {
		return "", errorf(ErrNotAuthorized, "Permission denied.")
	}
	primary, _, err := v.resolve()
	if err != nil {
		return "", err
	}
	return primary.WriteFile(path, data, truncate)
}

// Unlink removes path from the primary. Requires a writeable view.
//
// When the primary lacks the path but some secondary has it, the failure is
// AccessDenied rather than NotFound: the data exists, it just cannot be
// modified through this view.
func (v *UnionView) Unlink(path string) error {
	v.store.mu.Lock()
	defer v.store.mu.Unlock()

	if err := v.checkAccess(); err != nil {
		return err
	}
	if !v.writeable {
		return errorf(ErrNotAuthorized, "Permission denied.")
	}
	primary, secondaries, err := v.resolve()
	if err != nil {
		return err
	}
	unlinkErr := primary.Unlink(path)
	if unlinkErr == nil {
		return nil
	}
	if _, ok := unlinkErr.(*StoreError); !ok {
		return unlinkErr
	}
	if v.anyHasPath(secondaries, path) {
		return pathError(ErrAccessDenied, "Cannot unlink from unioned FS.", path)
	}
	return unlinkErr
}

// Move renames path on the primary. Requires a writeable view. Secondary
// conflicts are reported as in Unlink.
func (v *UnionView) Move(path, newPath string) error {
	v.store.mu.Lock()
	defer v.store.mu.Unlock()

	if err := v.checkAccess(); err != nil {
		return err
	}
	if !v.writeable {
		return errorf(ErrNotAuthorized, "Permission denied.")
	}
	primary, secondaries, err := v.resolve()
	if err != nil {
		return err
	}
	moveErr := primary.Move(path, newPath)
	if moveErr == nil {
		return nil
	}
	if _, ok := moveErr.(*StoreError); !ok {
		return moveErr
	}
	if v.anyHasPath(secondaries, path) {
		return pathError(ErrAccessDenied, "Cannot move from unioned FS.", path)
	}
	return moveErr
}

// anyHasPath reports whether any secondary holds a file at path.
func (v *UnionView) anyHasPath(secondaries []*FileSystem, path string) bool {
	for _, fs := range secondaries {
		if _, err := fs.Stat(path); err == nil {
			return true
		}
	}
	return false
}
