package vfs

import (
	"testing"
)

// unionFixture is a store with an admin, a plain user assigned a primary
// ("home") and one secondary ("shared"), and a third ungranted filesystem
// ("private").
type unionFixture struct {
	store   *Store
	admin   *Session
	user    *Session
	home    string
	shared  string
	private string
}

func newUnionFixture(t *testing.T) *unionFixture {
	t.Helper()
	store := NewStore(sequenceGen("id"), PlaintextHasher{}, DefaultLimits())
	if err := store.Bootstrap("root", "rootpw"); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	admin, err := store.Login("root", "rootpw")
	if err != nil {
		t.Fatalf("admin login failed: %v", err)
	}
	home, err := admin.FSAdd("home", LimitsPatch{})
	if err != nil {
		t.Fatalf("FSAdd(home) failed: %v", err)
	}
	shared, err := admin.FSAdd("shared", LimitsPatch{})
	if err != nil {
		t.Fatalf("FSAdd(shared) failed: %v", err)
	}
	private, err := admin.FSAdd("private", LimitsPatch{})
	if err != nil {
		t.Fatalf("FSAdd(private) failed: %v", err)
	}
	if _, err := admin.UserAdd(UserAddOptions{
		Name:     "alice",
		Password: "alicepw",
		FS:       home.FSNo,
		Union:    []string{shared.FSNo},
	}); err != nil {
		t.Fatalf("UserAdd failed: %v", err)
	}
	user, err := store.Login("alice", "alicepw")
	if err != nil {
		t.Fatalf("user login failed: %v", err)
	}
	return &unionFixture{
		store:   store,
		admin:   admin,
		user:    user,
		home:    home.FSNo,
		shared:  shared.FSNo,
		private: private.FSNo,
	}
}

// seed writes a file into a filesystem directly, bypassing views.
func (fx *unionFixture) seed(t *testing.T, fsno, path, data string) {
	t.Helper()
	fs := fx.store.lookupFS(fsno)
	if fs == nil {
		t.Fatalf("no filesystem %q", fsno)
	}
	if _, err := fs.WriteFile(path, []byte(data), false); err != nil {
		t.Fatalf("seeding %s:%s failed: %v", fsno, path, err)
	}
}

func TestUnionReadFirstHitWins(t *testing.T) {
	fx := newUnionFixture(t)
	fx.seed(t, fx.home, "/doc", "primary")
	fx.seed(t, fx.shared, "/doc", "secondary")
	fx.seed(t, fx.shared, "/only-shared", "secondary")

	view, err := fx.user.FS()
	if err != nil {
		t.Fatalf("FS failed: %v", err)
	}

	data, err := view.ReadFile("/doc")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "primary" {
		t.Errorf("shadowed read returned %q, want %q", data, "primary")
	}

	data, err = view.ReadFile("/only-shared")
	if err != nil {
		t.Fatalf("ReadFile from secondary failed: %v", err)
	}
	if string(data) != "secondary" {
		t.Errorf("secondary read returned %q", data)
	}

	if _, err := view.ReadFile("/nowhere"); !IsCode(err, ErrNotFound) {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestUnionStatWriteableBit(t *testing.T) {
	fx := newUnionFixture(t)
	fx.seed(t, fx.home, "/mine", "x")
	fx.seed(t, fx.shared, "/theirs", "x")

	view, err := fx.user.FS()
	if err != nil {
		t.Fatalf("FS failed: %v", err)
	}

	mine, err := view.Stat("/mine")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if !mine.Writeable {
		t.Error("primary hit should be writeable on a writeable view")
	}
	theirs, err := view.Stat("/theirs")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if theirs.Writeable {
		t.Error("secondary hit must never be writeable")
	}
}

func TestUnionStatReadOnlyView(t *testing.T) {
	fx := newUnionFixture(t)
	fx.seed(t, fx.home, "/mine", "x")

	if err := fx.admin.Grant(userno(t, fx.store, "alice"), []GrantOptions{
		{FSNo: fx.private, Readable: true},
	}); err != nil {
		t.Fatalf("Grant failed: %v", err)
	}
	fx.seed(t, fx.private, "/p", "x")

	view, err := fx.user.FSGet(fx.private, FSGetOptions{})
	if err != nil {
		t.Fatalf("FSGet failed: %v", err)
	}
	info, err := view.Stat("/p")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Writeable {
		t.Error("read-only view must force Writeable false")
	}
}

func TestUnionReaddirMerge(t *testing.T) {
	fx := newUnionFixture(t)
	fx.seed(t, fx.home, "/both", "x")
	fx.seed(t, fx.home, "/primary-only", "x")
	fx.seed(t, fx.shared, "/both", "x")
	fx.seed(t, fx.shared, "/shared-only", "x")
	fx.seed(t, fx.shared, "/sub/nested", "x")

	view, err := fx.user.FS()
	if err != nil {
		t.Fatalf("FS failed: %v", err)
	}
	entries, err := view.Readdir("/")
	if err != nil {
		t.Fatalf("Readdir failed: %v", err)
	}

	want := []struct {
		name      string
		kind      NodeKind
		writeable bool
	}{
		{"both", KindFile, true},
		{"primary-only", KindFile, true},
		{"shared-only", KindFile, false},
		{"sub", KindDirectory, false},
	}
	if len(entries) != len(want) {
		t.Fatalf("Readdir returned %d entries, want %d: %+v", len(entries), len(want), entries)
	}
	for i, w := range want {
		e := entries[i]
		if e.Name != w.name || e.Kind != w.kind || e.Writeable != w.writeable {
			t.Errorf("entry %d = (%q, %s, writeable=%v), want (%q, %s, writeable=%v)",
				i, e.Name, e.Kind, e.Writeable, w.name, w.kind, w.writeable)
		}
	}
}

func TestUnionWriteGoesToPrimary(t *testing.T) {
	fx := newUnionFixture(t)
	view, err := fx.user.FS()
	if err != nil {
		t.Fatalf("FS failed: %v", err)
	}
	if _, err := view.WriteFile("/new", []byte("data"), false); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := fx.store.lookupFS(fx.home).Stat("/new"); err != nil {
		t.Errorf("write did not land on primary: %v", err)
	}
	if _, err := fx.store.lookupFS(fx.shared).Stat("/new"); !IsCode(err, ErrNotFound) {
		t.Errorf("write leaked to secondary: %v", err)
	}
}

func TestUnionWriteOnReadOnlyView(t *testing.T) {
	fx := newUnionFixture(t)
	if err := fx.admin.Grant(userno(t, fx.store, "alice"), []GrantOptions{
		{FSNo: fx.private, Readable: true},
	}); err != nil {
		t.Fatalf("Grant failed: %v", err)
	}
	view, err := fx.user.FSGet(fx.private, FSGetOptions{})
	if err != nil {
		t.Fatalf("FSGet failed: %v", err)
	}
	if _, err := view.WriteFile("/f", []byte("x"), false); !IsCode(err, ErrNotAuthorized) {
		t.Errorf("expected NotAuthorized, got %v", err)
	}
	if err := view.Unlink("/f"); !IsCode(err, ErrNotAuthorized) {
		t.Errorf("expected NotAuthorized, got %v", err)
	}
	if err := view.Move("/f", "/g"); !IsCode(err, ErrNotAuthorized) {
		t.Errorf("expected NotAuthorized, got %v", err)
	}
}

func TestUnionUnlinkSecondaryConflict(t *testing.T) {
	fx := newUnionFixture(t)
	fx.seed(t, fx.shared, "/theirs", "x")

	view, err := fx.user.FS()
	if err != nil {
		t.Fatalf("FS failed: %v", err)
	}

	// Present on a secondary only: AccessDenied, not NotFound.
	if err := view.Unlink("/theirs"); !IsCode(err, ErrAccessDenied) {
		t.Errorf("unlink of secondary file: expected AccessDenied, got %v", err)
	}
	if err := view.Move("/theirs", "/elsewhere"); !IsCode(err, ErrAccessDenied) {
		t.Errorf("move of secondary file: expected AccessDenied, got %v", err)
	}
	// Present nowhere: plain NotFound.
	if err := view.Unlink("/nowhere"); !IsCode(err, ErrNotFound) {
		t.Errorf("unlink of missing file: expected NotFound, got %v", err)
	}
}

func TestUnionRevokedGrantInvalidatesView(t *testing.T) {
	fx := newUnionFixture(t)
	alice := userno(t, fx.store, "alice")
	if err := fx.admin.Grant(alice, []GrantOptions{
		{FSNo: fx.private, Readable: true},
	}); err != nil {
		t.Fatalf("Grant failed: %v", err)
	}
	view, err := fx.user.FSGet(fx.private, FSGetOptions{})
	if err != nil {
		t.Fatalf("FSGet failed: %v", err)
	}
	if _, err := view.Readdir("/"); err != nil {
		t.Fatalf("Readdir before revoke failed: %v", err)
	}

	if err := fx.admin.Grant(alice, []GrantOptions{{FSNo: fx.private}}); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	if _, err := view.Readdir("/"); !IsCode(err, ErrAccessDenied) {
		t.Errorf("view after revoke: expected AccessDenied, got %v", err)
	}
}

func TestUnionDeletedUserInvalidatesView(t *testing.T) {
	fx := newUnionFixture(t)
	view, err := fx.user.FS()
	if err != nil {
		t.Fatalf("FS failed: %v", err)
	}
	if err := fx.admin.UserDel(userno(t, fx.store, "alice")); err != nil {
		t.Fatalf("UserDel failed: %v", err)
	}
	if _, err := view.ReadFile("/anything"); !IsCode(err, ErrAccessDenied) {
		t.Errorf("view of deleted user: expected AccessDenied, got %v", err)
	}
}

func TestUnionDetail(t *testing.T) {
	fx := newUnionFixture(t)
	fx.seed(t, fx.home, "/f", "12345")

	view, err := fx.user.FS()
	if err != nil {
		t.Fatalf("FS failed: %v", err)
	}
	detail, err := view.Detail()
	if err != nil {
		t.Fatalf("Detail failed: %v", err)
	}
	if detail.FS.FSNo != fx.home {
		t.Errorf("detail primary = %q, want %q", detail.FS.FSNo, fx.home)
	}
	if detail.FS.Usage.NoFiles != 1 || detail.FS.Usage.BytesUsed != 5 {
		t.Errorf("detail usage = %+v", detail.FS.Usage)
	}
	if len(detail.Union) != 1 || detail.Union[0].FSNo != fx.shared {
		t.Errorf("detail union = %+v", detail.Union)
	}
}

// userno resolves a user's id by name for test assertions.
func userno(t *testing.T, store *Store, name string) string {
	t.Helper()
	store.mu.RLock()
	defer store.mu.RUnlock()
	user := store.lookupUserByName(name)
	if user == nil {
		t.Fatalf("no user %q", name)
	}
	return user.userno
}
