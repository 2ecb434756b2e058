package vfs

import "testing"

func TestNormalizeFilePath(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"/a", "/a"},
		{"a", "/a"},
		{"//a///b", "/a/b"},
		{"/a/b/c", "/a/b/c"},
	}
	for _, c := range cases {
		got, err := NormalizeFilePath(c.in)
		if err != nil {
			t.Fatalf("NormalizeFilePath(%q) returned error: %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("NormalizeFilePath(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeFilePath_Rejects(t *testing.T) {
	for _, in := range []string{"", "/a/", "/", "/a/../b", "./a", "/a/./b", ".."} {
		if _, err := NormalizeFilePath(in); !IsCode(err, ErrInvalidPath) {
			t.Errorf("NormalizeFilePath(%q): expected InvalidPath, got %v", in, err)
		}
	}
}

func TestNormalizeDirPath(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", "/"},
		{"/", "/"},
		{"/a", "/a/"},
		{"/a/", "/a/"},
		{"//a///b", "/a/b/"},
	}
	for _, c := range cases {
		got, err := NormalizeDirPath(c.in)
		if err != nil {
			t.Fatalf("NormalizeDirPath(%q) returned error: %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("NormalizeDirPath(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeDirPath_RejectsDotSegments(t *testing.T) {
	for _, in := range []string{"/a/..", "./", "/a/./b/"} {
		if _, err := NormalizeDirPath(in); !IsCode(err, ErrInvalidPath) {
			t.Errorf("NormalizeDirPath(%q): expected InvalidPath, got %v", in, err)
		}
	}
}

func TestDepth(t *testing.T) {
	cases := []struct {
		path string
		want int
	}{
		{"/a", 1},
		{"/a/b", 2},
		{"/a/b/c/d/e", 5},
	}
	for _, c := range cases {
		if got := Depth(c.path); got != c.want {
			t.Errorf("Depth(%q) = %d, want %d", c.path, got, c.want)
		}
	}
}
