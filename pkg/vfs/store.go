package vfs

import "sync"

// UserRecord is one identity inside a Store.
//
// Filesystem assignments are held by fsno, never by pointer, so that
// deletion-while-referenced is an explicit check against the owning Store
// rather than a lifetime accident. fs is the user's primary (write-through)
// filesystem, empty when the user has none; union is the ordered list of
// secondary filesystems merged read-only into the user's view.
type UserRecord struct {
	userno       string
	name         string
	passwordHash string
	admin        bool
	fs           string
	union        []string
}

// FSRef is a filesystem reference in a user projection.
type FSRef struct {
	FSNo      string `json:"fsno"`
	Name      string `json:"name"`
	Writeable bool   `json:"writeable"`
}

// UserInfo is the plain-data projection of a user returned by the
// administrative operations.
type UserInfo struct {
	Userno string  `json:"userno"`
	Name   string  `json:"name"`
	Admin  bool    `json:"admin"`
	FS     *FSRef  `json:"fs"`
	Union  []FSRef `json:"union"`
}

// FSInfo is the plain-data projection of a filesystem's identity and
// limits.
type FSInfo struct {
	Name   string `json:"name"`
	FSNo   string `json:"fsno"`
	Limits Limits `json:"limits"`
}

// FSDetail extends FSInfo with current quota usage.
type FSDetail struct {
	Name   string `json:"name"`
	FSNo   string `json:"fsno"`
	Limits Limits `json:"limits"`
	Usage  Usage  `json:"usage"`
}

// FSListEntry is one row of a filesystem listing, annotated with the
// caller's effective write access.
type FSListEntry struct {
	Name      string `json:"name"`
	FSNo      string `json:"fsno"`
	Limits    Limits `json:"limits"`
	Writeable bool   `json:"writeable"`
}

// Store is the root aggregate of one tenant: it owns the filesystems, the
// user records, and the permission matrix, and issues Sessions.
//
// Thread Safety:
// All operations are protected by a single read-write mutex. Quota
// accounting and referential-integrity checks are check-then-act, so every
// mutation runs as one critical section; reads share the lock. Sessions and
// UnionViews issued by a Store lock through it, never around it.
type Store struct {
	mu sync.RWMutex

	idgen         IDGenerator
	hasher        PasswordHasher
	defaultLimits Limits

	fss         []*FileSystem
	users       []*UserRecord
	permissions *PermissionSet
}

// NewStore creates an empty Store.
//
// The identifier generator, password hasher, and default filesystem limits
// are explicit constructor state: the engine holds no process-global
// configuration.
func NewStore(idgen IDGenerator, hasher PasswordHasher, defaults Limits) *Store {
	return &Store{
		idgen:         idgen,
		hasher:        hasher,
		defaultLimits: defaults,
		permissions:   NewPermissionSet(),
	}
}

// Bootstrap seeds a brand-new Store with one admin user owning one default
// filesystem. It refuses to run on a store that already holds any user or
// filesystem.
func (s *Store) Bootstrap(name, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.fss) != 0 || len(s.users) != 0 {
		return errorf(ErrAlreadyExists, "Too late to bootstrap.")
	}
	fsno, err := s.uniqueFSNo()
	if err != nil {
		return err
	}
	userno, err := s.uniqueUserno()
	if err != nil {
		return err
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}
	fs := NewFileSystem("default", fsno, s.defaultLimits, s.idgen)
	user := &UserRecord{
		userno:       userno,
		name:         name,
		passwordHash: hash,
		admin:        true,
		fs:           fsno,
	}
	s.fss = append(s.fss, fs)
	s.users = append(s.users, user)
	s.permissions.Set(userno, fsno, Permission{Readable: true, Writeable: true})
	return nil
}

// Login authenticates by name and password and returns a fresh Session.
//
// An unknown name still burns one hash check against a stand-in record so
// the timing of a failed login does not reveal whether the user exists.
func (s *Store) Login(name, password string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reject := false
	var user *UserRecord
	for _, u := range s.users {
		if u.name == name {
			user = u
		}
	}
	if user == nil {
		reject = true
		if len(s.users) > 0 {
			user = s.users[0]
		} else {
			user = &UserRecord{}
		}
	}
	if !s.hasher.Check(password, user.passwordHash) || reject {
		return nil, errorf(ErrAuthFailed, "Authentication failed.")
	}
	return newSession(s, user.userno), nil
}

// Resume re-derives a Session from a previously issued session token.
//
// The token is the stable userno, so resumption survives server restarts
// as long as the user record does.
func (s *Store) Resume(sessionToken string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user := s.lookupUser(sessionToken)
	if user == nil {
		return nil, errorf(ErrNotFound, "User not found.")
	}
	return newSession(s, user.userno), nil
}

// ============================================================================
// Internal lookups (callers hold the lock)
// ============================================================================

func (s *Store) lookupUser(userno string) *UserRecord {
	for _, u := range s.users {
		if u.userno == userno {
			return u
		}
	}
	return nil
}

func (s *Store) lookupUserByName(name string) *UserRecord {
	for _, u := range s.users {
		if u.name == name {
			return u
		}
	}
	return nil
}

func (s *Store) lookupFS(fsno string) *FileSystem {
	for _, fs := range s.fss {
		if fs.fsno == fsno {
			return fs
		}
	}
	return nil
}

func (s *Store) uniqueFSNo() (string, error) {
	return generateUnique(s.idgen, func(fsno string) bool {
		return s.lookupFS(fsno) != nil
	})
}

func (s *Store) uniqueUserno() (string, error) {
	return generateUnique(s.idgen, func(userno string) bool {
		return s.lookupUser(userno) != nil
	})
}

// userInfo projects a UserRecord, resolving fs references to names.
// The primary is always writeable by assignment; union entries are
// read-merged and therefore never writeable here.
func (s *Store) userInfo(user *UserRecord) UserInfo {
	info := UserInfo{
		Userno: user.userno,
		Name:   user.name,
		Admin:  user.admin,
		Union:  make([]FSRef, 0, len(user.union)),
	}
	if user.fs != "" {
		if fs := s.lookupFS(user.fs); fs != nil {
			info.FS = &FSRef{FSNo: fs.fsno, Name: fs.name, Writeable: true}
		}
	}
	for _, fsno := range user.union {
		if fs := s.lookupFS(fsno); fs != nil {
			info.Union = append(info.Union, FSRef{FSNo: fs.fsno, Name: fs.name})
		}
	}
	return info
}

func fsInfo(fs *FileSystem) FSInfo {
	return FSInfo{Name: fs.name, FSNo: fs.fsno, Limits: fs.limits}
}

func fsDetail(fs *FileSystem) FSDetail {
	return FSDetail{Name: fs.name, FSNo: fs.fsno, Limits: fs.limits, Usage: fs.Usage()}
}
