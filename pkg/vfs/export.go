package vfs

import "time"

// Snapshot types: the plain-data dump of a whole Store, used by the
// persistence layer and by the save-rollback contract. The encoding is
// boundary-friendly by construction: byte payloads serialize as base64 (the
// default for []byte in encoding/json) and timestamps as epoch
// milliseconds, so a snapshot round-trips through JSON without loss.

// Snapshot is the complete state of one Store.
type Snapshot struct {
	Filesystems []FileSystemSnapshot `json:"fss"`
	Users       []UserSnapshot       `json:"users"`
	Permissions []PermissionSnapshot `json:"permissions"`
}

// FileSystemSnapshot is the dump of one FileSystem. StoredBytes is not
// dumped; it is recomputed on restore from the file payloads.
type FileSystemSnapshot struct {
	Name   string         `json:"name"`
	FSNo   string         `json:"fsno"`
	Limits Limits         `json:"limits"`
	Files  []FileSnapshot `json:"files"`
}

// FileSnapshot is the dump of one file record.
type FileSnapshot struct {
	Path  string `json:"path"`
	Ino   string `json:"ino"`
	Ctime int64  `json:"ctime"`
	Mtime int64  `json:"mtime"`
	Data  []byte `json:"data"`
}

// UserSnapshot is the dump of one user record. Filesystem references are
// dumped by fsno.
type UserSnapshot struct {
	Userno   string   `json:"userno"`
	Name     string   `json:"name"`
	Password string   `json:"password"`
	Admin    bool     `json:"admin"`
	FS       string   `json:"fs,omitempty"`
	Union    []string `json:"union"`
}

// PermissionSnapshot is the dump of one permission record.
type PermissionSnapshot struct {
	Userno    string `json:"userno"`
	FSNo      string `json:"fsno"`
	Readable  bool   `json:"readable"`
	Writeable bool   `json:"writeable"`
}

// Export dumps the Store's complete state.
//
// The snapshot shares no memory with the Store: restoring it later yields
// the exact pre-export state regardless of what happened in between, which
// is what the persistence rollback contract relies on.
func (s *Store) Export() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := &Snapshot{
		Filesystems: make([]FileSystemSnapshot, 0, len(s.fss)),
		Users:       make([]UserSnapshot, 0, len(s.users)),
		Permissions: make([]PermissionSnapshot, 0, s.permissions.Len()),
	}
	for _, fs := range s.fss {
		fsDump := FileSystemSnapshot{
			Name:   fs.name,
			FSNo:   fs.fsno,
			Limits: fs.limits,
			Files:  make([]FileSnapshot, 0, len(fs.files)),
		}
		for _, f := range fs.files {
			fsDump.Files = append(fsDump.Files, FileSnapshot{
				Path:  f.path,
				Ino:   f.ino,
				Ctime: f.ctime.UnixMilli(),
				Mtime: f.mtime.UnixMilli(),
				Data:  append([]byte(nil), f.data...),
			})
		}
		snapshot.Filesystems = append(snapshot.Filesystems, fsDump)
	}
	for _, user := range s.users {
		snapshot.Users = append(snapshot.Users, UserSnapshot{
			Userno:   user.userno,
			Name:     user.name,
			Password: user.passwordHash,
			Admin:    user.admin,
			FS:       user.fs,
			Union:    append([]string(nil), user.union...),
		})
	}
	s.permissions.each(func(userno, fsno string, perm Permission) {
		snapshot.Permissions = append(snapshot.Permissions, PermissionSnapshot{
			Userno:    userno,
			FSNo:      fsno,
			Readable:  perm.Readable,
			Writeable: perm.Writeable,
		})
	})
	return snapshot
}

// Restore replaces the Store's state with the snapshot's.
//
// User filesystem references are validated against the snapshot's
// filesystems; a dangling fsno fails the restore and leaves the Store
// unchanged.
func (s *Store) Restore(snapshot *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fss := make([]*FileSystem, 0, len(snapshot.Filesystems))
	byFSNo := make(map[string]*FileSystem, len(snapshot.Filesystems))
	for _, fsDump := range snapshot.Filesystems {
		fs := NewFileSystem(fsDump.Name, fsDump.FSNo, fsDump.Limits, s.idgen)
		for _, f := range fsDump.Files {
			fs.files[f.Path] = &fileRecord{
				path:  f.Path,
				ino:   f.Ino,
				ctime: time.UnixMilli(f.Ctime),
				mtime: time.UnixMilli(f.Mtime),
				data:  append([]byte(nil), f.Data...),
			}
			fs.storedBytes += int64(len(f.Data))
		}
		fss = append(fss, fs)
		byFSNo[fs.fsno] = fs
	}

	users := make([]*UserRecord, 0, len(snapshot.Users))
	for _, userDump := range snapshot.Users {
		if userDump.FS != "" && byFSNo[userDump.FS] == nil {
			return errorf(ErrNotFound, "File system not found.")
		}
		for _, ufsno := range userDump.Union {
			if byFSNo[ufsno] == nil {
				return errorf(ErrNotFound, "File system not found.")
			}
		}
		users = append(users, &UserRecord{
			userno:       userDump.Userno,
			name:         userDump.Name,
			passwordHash: userDump.Password,
			admin:        userDump.Admin,
			fs:           userDump.FS,
			union:        append([]string(nil), userDump.Union...),
		})
	}

	permissions := NewPermissionSet()
	for _, permDump := range snapshot.Permissions {
		permissions.Set(permDump.Userno, permDump.FSNo, Permission{
			Readable:  permDump.Readable,
			Writeable: permDump.Writeable,
		})
	}

	s.fss = fss
	s.users = users
	s.permissions = permissions
	return nil
}
