package httpd

import (
	"reflect"
	"testing"

	"github.com/driftfs/driftfs/pkg/vfs"
)

func TestFSTokenRoundTrip(t *testing.T) {
	codec := NewFSTokenCodec(testSecret)

	view := vfs.ViewInfo{
		FSNo:      "fs-1",
		Union:     []string{"fs-2", "fs-3"},
		Writeable: true,
	}
	token, err := codec.Encode("acme", view)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := codec.Decode("acme", token)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !reflect.DeepEqual(decoded, view) {
		t.Fatalf("decoded view %+v, want %+v", decoded, view)
	}
}

func TestFSTokenOwnerMismatch(t *testing.T) {
	codec := NewFSTokenCodec(testSecret)

	token, err := codec.Encode("acme", vfs.ViewInfo{FSNo: "fs-1"})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if _, err := codec.Decode("globex", token); !vfs.IsCode(err, vfs.ErrInvalidToken) {
		t.Fatalf("expected InvalidToken for foreign owner, got %v", err)
	}
}

func TestFSTokenTampered(t *testing.T) {
	codec := NewFSTokenCodec(testSecret)

	token, err := codec.Encode("acme", vfs.ViewInfo{FSNo: "fs-1"})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	tampered := token[:len(token)-2] + "xx"
	if _, err := codec.Decode("acme", tampered); !vfs.IsCode(err, vfs.ErrInvalidToken) {
		t.Fatalf("expected InvalidToken, got %v", err)
	}
}

func TestFSTokenWrongSecret(t *testing.T) {
	codec := NewFSTokenCodec(testSecret)
	other := NewFSTokenCodec([]byte("another-secret-another-secret-ab"))

	token, err := other.Encode("acme", vfs.ViewInfo{FSNo: "fs-1"})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if _, err := codec.Decode("acme", token); !vfs.IsCode(err, vfs.ErrInvalidToken) {
		t.Fatalf("expected InvalidToken, got %v", err)
	}
}
