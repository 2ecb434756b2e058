package vfs

// Session is a logged-in view of one user inside one Store.
//
// A Session holds the authenticated userno and exposes the administrative
// and filesystem-acquisition operations, each permission-checked against
// the Store's current state at call time. Logout clears the userno, after
// which the Session is terminal and every operation fails.
type Session struct {
	store        *Store
	sessionToken string
	userno       string
}

// SessionInfo is the plain-data identity of a live session.
type SessionInfo struct {
	SessionToken string `json:"session_token"`
	Userno       string `json:"userno"`
}

// SessionDetail extends SessionInfo with the full user projection.
type SessionDetail struct {
	SessionToken string   `json:"session_token"`
	User         UserInfo `json:"user"`
}

// newSession binds a Session to a user. The session token is the stable
// userno so the session can be re-derived later by Store.Resume.
func newSession(store *Store, userno string) *Session {
	return &Session{store: store, sessionToken: userno, userno: userno}
}

// lookupUser resolves the logged-in user, failing if the session is logged
// out or the user record has since been deleted.
func (ses *Session) lookupUser() (*UserRecord, error) {
	if ses.userno == "" {
		return nil, errorf(ErrNotAuthorized, "Not logged in.")
	}
	user := ses.store.lookupUser(ses.userno)
	if user == nil {
		return nil, errorf(ErrNotFound, "User not found.")
	}
	return user, nil
}

// requireAdmin resolves the logged-in user and fails unless it is an admin.
func (ses *Session) requireAdmin() (*UserRecord, error) {
	user, err := ses.lookupUser()
	if err != nil {
		return nil, err
	}
	if !user.admin {
		return nil, errorf(ErrNotAuthorized, "Not authorized.")
	}
	return user, nil
}

// findFS resolves a filesystem the logged-in user may see. Non-admins
// without a read grant get NotFound rather than NotAuthorized so the
// filesystem's existence is not revealed.
func (ses *Session) findFS(fsno string) (*FileSystem, error) {
	user, err := ses.lookupUser()
	if err != nil {
		return nil, err
	}
	fs := ses.store.lookupFS(fsno)
	if fs == nil {
		return nil, errorf(ErrNotFound, "FS not found.")
	}
	if !user.admin {
		perm := ses.store.permissions.Get(user.userno, fs.fsno)
		if !perm.Readable {
			return nil, errorf(ErrNotFound, "FS not found.")
		}
	}
	return fs, nil
}

// Info returns the session's identity.
func (ses *Session) Info() (SessionInfo, error) {
	if ses.userno == "" {
		return SessionInfo{}, errorf(ErrNotAuthorized, "Not logged in.")
	}
	return SessionInfo{SessionToken: ses.sessionToken, Userno: ses.userno}, nil
}

// Detail returns the session's identity with the full user projection.
func (ses *Session) Detail() (SessionDetail, error) {
	ses.store.mu.RLock()
	defer ses.store.mu.RUnlock()

	user, err := ses.lookupUser()
	if err != nil {
		return SessionDetail{}, err
	}
	return SessionDetail{
		SessionToken: ses.sessionToken,
		User:         ses.store.userInfo(user),
	}, nil
}

// Logout ends the session. The Session is terminal afterwards.
func (ses *Session) Logout() {
	ses.userno = ""
}

// ============================================================================
// User administration
// ============================================================================

// UserAddOptions are the parameters of UserAdd. FS is the fsno of the
// user's primary filesystem, empty for none; Union lists secondary fsnos in
// merge order.
type UserAddOptions struct {
	Name     string
	Password string
	Admin    bool
	FS       string
	Union    []string
}

// UserModOptions are the parameters of UserMod. Only fields with their
// corresponding Set flag are applied; others are left unchanged. Setting FS
// to the empty string clears the primary assignment.
type UserModOptions struct {
	SetName     bool
	Name        string
	SetPassword bool
	Password    string
	SetAdmin    bool
	Admin       bool
	SetFS       bool
	FS          string
	SetUnion    bool
	Union       []string
}

// UserAdd creates a user. Admin only.
//
// Referenced filesystems must exist and be visible to the acting admin, and
// the secondary list may not repeat an fsno nor duplicate the primary.
func (ses *Session) UserAdd(options UserAddOptions) (UserInfo, error) {
	ses.store.mu.Lock()
	defer ses.store.mu.Unlock()

	if _, err := ses.requireAdmin(); err != nil {
		return UserInfo{}, err
	}
	if ses.store.lookupUserByName(options.Name) != nil {
		return UserInfo{}, errorf(ErrAlreadyExists, "User already exists.")
	}

	seen := make(map[string]bool)
	fs := ""
	if options.FS != "" {
		f, err := ses.findFS(options.FS)
		if err != nil {
			return UserInfo{}, err
		}
		fs = f.fsno
		seen[f.fsno] = true
	}
	union := make([]string, 0, len(options.Union))
	for _, ufsno := range options.Union {
		u, err := ses.findFS(ufsno)
		if err != nil {
			return UserInfo{}, err
		}
		if seen[u.fsno] {
			return UserInfo{}, errorf(ErrInvalidArgument, "Duplicate fs in union.")
		}
		seen[u.fsno] = true
		union = append(union, u.fsno)
	}

	userno, err := ses.store.uniqueUserno()
	if err != nil {
		return UserInfo{}, err
	}
	hash, err := ses.store.hasher.Hash(options.Password)
	if err != nil {
		return UserInfo{}, err
	}
	user := &UserRecord{
		userno:       userno,
		name:         options.Name,
		passwordHash: hash,
		admin:        options.Admin,
		fs:           fs,
		union:        union,
	}
	ses.store.users = append(ses.store.users, user)
	return ses.store.userInfo(user), nil
}

// UserMod updates a user in place. Admin only. Validation mirrors UserAdd;
// nothing is applied unless every requested change validates.
func (ses *Session) UserMod(userno string, options UserModOptions) (UserInfo, error) {
	ses.store.mu.Lock()
	defer ses.store.mu.Unlock()

	if _, err := ses.requireAdmin(); err != nil {
		return UserInfo{}, err
	}
	user := ses.store.lookupUser(userno)
	if user == nil {
		return UserInfo{}, errorf(ErrNotFound, "User not found.")
	}

	updated := *user
	if options.SetName && options.Name != user.name {
		if ses.store.lookupUserByName(options.Name) != nil {
			return UserInfo{}, errorf(ErrAlreadyExists, "User already exists.")
		}
		updated.name = options.Name
	}
	if options.SetPassword {
		hash, err := ses.store.hasher.Hash(options.Password)
		if err != nil {
			return UserInfo{}, err
		}
		updated.passwordHash = hash
	}
	if options.SetAdmin {
		updated.admin = options.Admin
	}
	seen := make(map[string]bool)
	if options.SetFS {
		if options.FS == "" {
			updated.fs = ""
		} else {
			fs, err := ses.findFS(options.FS)
			if err != nil {
				return UserInfo{}, err
			}
			seen[fs.fsno] = true
			updated.fs = fs.fsno
		}
	} else if updated.fs != "" {
		// The union must also not repeat the primary it is keeping.
		seen[updated.fs] = true
	}
	if options.SetUnion {
		union := make([]string, 0, len(options.Union))
		for _, ufsno := range options.Union {
			u, err := ses.findFS(ufsno)
			if err != nil {
				return UserInfo{}, err
			}
			if seen[u.fsno] {
				return UserInfo{}, errorf(ErrInvalidArgument, "Duplicate fs in union.")
			}
			seen[u.fsno] = true
			union = append(union, u.fsno)
		}
		updated.union = union
	}

	*user = updated
	return ses.store.userInfo(user), nil
}

// UserDel removes a user and purges its permission records. Admin only.
// The currently logged-in user cannot delete itself.
func (ses *Session) UserDel(userno string) error {
	ses.store.mu.Lock()
	defer ses.store.mu.Unlock()

	acting, err := ses.requireAdmin()
	if err != nil {
		return err
	}
	if acting.userno == userno {
		return errorf(ErrInvalidArgument, "Cannot delete logged in user.")
	}
	if ses.store.lookupUser(userno) == nil {
		return errorf(ErrNotFound, "User not found.")
	}
	users := ses.store.users[:0]
	for _, u := range ses.store.users {
		if u.userno != userno {
			users = append(users, u)
		}
	}
	ses.store.users = users
	ses.store.permissions.RemoveUser(userno)
	return nil
}

// UserList returns the users visible to the session: admins see everyone,
// other users see only themselves. A logged-out session sees nothing.
func (ses *Session) UserList() ([]UserInfo, error) {
	ses.store.mu.RLock()
	defer ses.store.mu.RUnlock()

	user, err := ses.lookupUser()
	if err != nil {
		return nil, err
	}
	if !user.admin {
		return []UserInfo{ses.store.userInfo(user)}, nil
	}
	result := make([]UserInfo, 0, len(ses.store.users))
	for _, u := range ses.store.users {
		result = append(result, ses.store.userInfo(u))
	}
	return result, nil
}

// ============================================================================
// Filesystem acquisition
// ============================================================================

// FS acquires a union view of the user's own primary filesystem merged with
// the user's assigned secondaries. The view is writeable by virtue of the
// primary being assigned to the user; no explicit write grant is required.
func (ses *Session) FS() (*UnionView, error) {
	ses.store.mu.RLock()
	defer ses.store.mu.RUnlock()

	user, err := ses.lookupUser()
	if err != nil {
		return nil, err
	}
	if user.fs == "" {
		return nil, errorf(ErrNotFound, "User has no FS.")
	}
	return newUnionView(ses.store, user.userno, user.fs, user.union, true), nil
}

// FSGetOptions control FSGet. Union lists secondary fsnos in merge order;
// Writeable requests a writeable view of the primary.
type FSGetOptions struct {
	Union     []string
	Writeable bool
}

// FSGet acquires a union view of an arbitrary filesystem.
//
// Non-admins need a read grant on the primary and on every listed
// secondary. Requesting a writeable view with only a read grant fails with
// NotAuthorized; there is no silent downgrade.
func (ses *Session) FSGet(fsno string, options FSGetOptions) (*UnionView, error) {
	ses.store.mu.RLock()
	defer ses.store.mu.RUnlock()

	return ses.fsGet(fsno, options)
}

func (ses *Session) fsGet(fsno string, options FSGetOptions) (*UnionView, error) {
	fs, err := ses.findFS(fsno)
	if err != nil {
		return nil, err
	}
	if err := ses.checkGrant(fs, options.Writeable); err != nil {
		return nil, err
	}
	union := make([]string, 0, len(options.Union))
	for _, ufsno := range options.Union {
		u, err := ses.findFS(ufsno)
		if err != nil {
			return nil, err
		}
		if err := ses.checkGrant(u, false); err != nil {
			return nil, err
		}
		union = append(union, u.fsno)
	}
	return newUnionView(ses.store, ses.userno, fs.fsno, union, options.Writeable), nil
}

// checkGrant enforces the permission matrix for FSGet. Admins bypass the
// matrix; a user's own assignments count as grants (primary: full access,
// secondary: read).
func (ses *Session) checkGrant(fs *FileSystem, writeable bool) error {
	user, err := ses.lookupUser()
	if err != nil {
		return err
	}
	if user.admin || user.fs == fs.fsno {
		return nil
	}
	perm := ses.store.permissions.Get(user.userno, fs.fsno)
	readable := perm.Readable
	for _, ufsno := range user.union {
		if ufsno == fs.fsno {
			readable = true
		}
	}
	if !readable {
		return errorf(ErrNotAuthorized, "Not authorized.")
	}
	if writeable && !perm.Writeable {
		return errorf(ErrNotAuthorized, "Not authorized.")
	}
	return nil
}

// FSResume reconstructs a union view from a decoded filesystem-handle
// credential. The transport verifies the credential's signature; access is
// still re-validated here, exactly as in FSGet, so a verified token never
// outlives a revoked grant.
func (ses *Session) FSResume(fsno string, union []string, writeable bool) (*UnionView, error) {
	ses.store.mu.RLock()
	defer ses.store.mu.RUnlock()

	return ses.fsGet(fsno, FSGetOptions{Union: union, Writeable: writeable})
}

// ============================================================================
// Filesystem administration
// ============================================================================

// LimitsPatch is a partial update of filesystem limits: only fields with
// their Set flag are applied, the rest fall back to the target's current
// values (FSMod) or the store defaults (FSAdd). Negative values are
// rejected.
type LimitsPatch struct {
	SetMaxFiles   bool
	MaxFiles      int
	SetMaxStorage bool
	MaxStorage    int64
	SetMaxDepth   bool
	MaxDepth      int
	SetMaxPath    bool
	MaxPath       int
}

func (p LimitsPatch) apply(fallback Limits) (Limits, error) {
	limits := fallback
	if p.SetMaxFiles {
		if p.MaxFiles < 0 {
			return Limits{}, errorf(ErrInvalidArgument, "Option `max_files` out of bounds.")
		}
		limits.MaxFiles = p.MaxFiles
	}
	if p.SetMaxStorage {
		if p.MaxStorage < 0 {
			return Limits{}, errorf(ErrInvalidArgument, "Option `max_storage` out of bounds.")
		}
		limits.MaxStorage = p.MaxStorage
	}
	if p.SetMaxDepth {
		if p.MaxDepth < 0 {
			return Limits{}, errorf(ErrInvalidArgument, "Option `max_depth` out of bounds.")
		}
		limits.MaxDepth = p.MaxDepth
	}
	if p.SetMaxPath {
		if p.MaxPath < 0 {
			return Limits{}, errorf(ErrInvalidArgument, "Option `max_path` out of bounds.")
		}
		limits.MaxPath = p.MaxPath
	}
	return limits, nil
}

// FSAdd creates a filesystem. Admin only. Limits not named in the patch
// fall back to the store defaults.
func (ses *Session) FSAdd(name string, patch LimitsPatch) (FSInfo, error) {
	ses.store.mu.Lock()
	defer ses.store.mu.Unlock()

	if _, err := ses.requireAdmin(); err != nil {
		return FSInfo{}, err
	}
	if name == "" {
		return FSInfo{}, errorf(ErrInvalidArgument, "Option `name` may not be blank.")
	}
	limits, err := patch.apply(ses.store.defaultLimits)
	if err != nil {
		return FSInfo{}, err
	}
	fsno, err := ses.store.uniqueFSNo()
	if err != nil {
		return FSInfo{}, err
	}
	fs := NewFileSystem(name, fsno, limits, ses.store.idgen)
	ses.store.fss = append(ses.store.fss, fs)
	return fsInfo(fs), nil
}

// FSModOptions are the parameters of FSMod: an optional rename plus a
// limits patch applied over the filesystem's current limits.
type FSModOptions struct {
	SetName bool
	Name    string
	Limits  LimitsPatch
}

// FSMod updates a filesystem's name and limits in place. Admin only.
// Shrinking a limit below current usage is allowed; existing files are
// never evicted, but further writes must fit the new ceiling.
func (ses *Session) FSMod(fsno string, options FSModOptions) (FSInfo, error) {
	ses.store.mu.Lock()
	defer ses.store.mu.Unlock()

	if _, err := ses.requireAdmin(); err != nil {
		return FSInfo{}, err
	}
	fs, err := ses.findFS(fsno)
	if err != nil {
		return FSInfo{}, err
	}
	name := fs.name
	if options.SetName {
		if options.Name == "" {
			return FSInfo{}, errorf(ErrInvalidArgument, "Option `name` may not be blank.")
		}
		name = options.Name
	}
	limits, err := options.Limits.apply(fs.limits)
	if err != nil {
		return FSInfo{}, err
	}
	fs.limits = limits
	fs.name = name
	return fsInfo(fs), nil
}

// FSDel removes a filesystem. Admin only. Deletion is refused while any
// user still references the filesystem as primary or secondary; integrity
// is enforced eagerly rather than by cascade. Dangling permission records
// for the removed filesystem are purged.
func (ses *Session) FSDel(fsno string) error {
	ses.store.mu.Lock()
	defer ses.store.mu.Unlock()

	if _, err := ses.requireAdmin(); err != nil {
		return err
	}
	for _, user := range ses.store.users {
		if user.fs == fsno {
			return errorf(ErrInvalidArgument, "FS still assigned to user.")
		}
		for _, ufsno := range user.union {
			if ufsno == fsno {
				return errorf(ErrInvalidArgument, "FS still assigned to user.")
			}
		}
	}
	if _, err := ses.findFS(fsno); err != nil {
		return err
	}
	fss := ses.store.fss[:0]
	for _, fs := range ses.store.fss {
		if fs.fsno != fsno {
			fss = append(fss, fs)
		}
	}
	ses.store.fss = fss
	ses.store.permissions.RemoveFilesystem(fsno)
	return nil
}

// FSList returns the filesystems visible to the session (admins: all,
// others: those with a read grant), each annotated with the caller's
// effective write access.
func (ses *Session) FSList() ([]FSListEntry, error) {
	ses.store.mu.RLock()
	defer ses.store.mu.RUnlock()

	user, err := ses.lookupUser()
	if err != nil {
		return nil, err
	}
	result := make([]FSListEntry, 0, len(ses.store.fss))
	for _, fs := range ses.store.fss {
		perm := ses.store.permissions.Get(user.userno, fs.fsno)
		if !user.admin && !perm.Readable {
			continue
		}
		result = append(result, FSListEntry{
			Name:      fs.name,
			FSNo:      fs.fsno,
			Limits:    fs.limits,
			Writeable: user.admin || perm.Writeable,
		})
	}
	return result, nil
}

// FSDetailFor returns identity, limits, and usage for one visible
// filesystem.
func (ses *Session) FSDetailFor(fsno string) (FSDetail, error) {
	ses.store.mu.RLock()
	defer ses.store.mu.RUnlock()

	fs, err := ses.findFS(fsno)
	if err != nil {
		return FSDetail{}, err
	}
	return fsDetail(fs), nil
}

// ============================================================================
// Permission grants
// ============================================================================

// GrantOptions is one permission upsert for Grant.
type GrantOptions struct {
	FSNo      string
	Readable  bool
	Writeable bool
}

// Grant upserts permission records for a user. Admin only. A grant with
// both bits false revokes the record entirely.
func (ses *Session) Grant(userno string, grants []GrantOptions) error {
	ses.store.mu.Lock()
	defer ses.store.mu.Unlock()

	if _, err := ses.requireAdmin(); err != nil {
		return err
	}
	if ses.store.lookupUser(userno) == nil {
		return errorf(ErrNotFound, "User not found.")
	}
	for _, grant := range grants {
		ses.store.permissions.Set(userno, grant.FSNo, Permission{
			Readable:  grant.Readable,
			Writeable: grant.Writeable,
		})
	}
	return nil
}
