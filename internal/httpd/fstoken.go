package httpd

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/driftfs/driftfs/pkg/vfs"
)

// fsClaims is the payload of a filesystem-handle credential: the view's
// composition plus the owning tenant, so a handle issued for one tenant
// cannot be replayed against another.
//
// No expiry: the engine re-validates the caller's grants on every resume,
// so a handle dies the moment its grants do.
type fsClaims struct {
	Owner     string   `json:"owner"`
	FSNo      string   `json:"fsno"`
	Union     []string `json:"union"`
	Writeable bool     `json:"writeable"`
	jwt.RegisteredClaims
}

// FSTokenCodec signs and verifies filesystem-handle credentials.
type FSTokenCodec struct {
	secret []byte
}

// NewFSTokenCodec creates a codec signing with secret.
func NewFSTokenCodec(secret []byte) *FSTokenCodec {
	return &FSTokenCodec{secret: secret}
}

// Encode signs a handle credential for a view of the owner's tenant.
func (c *FSTokenCodec) Encode(owner string, view vfs.ViewInfo) (string, error) {
	claims := fsClaims{
		Owner:     owner,
		FSNo:      view.FSNo,
		Union:     view.Union,
		Writeable: view.Writeable,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Decode verifies a handle credential and returns the view it names.
// The owner must match the tenant the request is addressed to.
func (c *FSTokenCodec) Decode(owner, token string) (vfs.ViewInfo, error) {
	claims := &fsClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return vfs.ViewInfo{}, &vfs.StoreError{Code: vfs.ErrInvalidToken, Message: "Invalid fs token."}
	}
	if claims.Owner != owner {
		return vfs.ViewInfo{}, &vfs.StoreError{Code: vfs.ErrInvalidToken, Message: "Invalid fs token."}
	}
	return vfs.ViewInfo{
		FSNo:      claims.FSNo,
		Union:     claims.Union,
		Writeable: claims.Writeable,
	}, nil
}
