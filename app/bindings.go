package app

import (
	"context"

	auth "github.com/goliatone/go-auth-starter"
)

// WithCrypto binds the hasher and the hashid codec from the config
func WithCrypto(_ context.Context, app *App) error {
	cfg := app.Config()

	if err := app.hasher.Bind(auth.NewBcryptHasher(cfg.Crypto.BcryptCost)); err != nil {
		return err
	}

	codec, err := auth.NewHashids(cfg.Hashid.Salt, cfg.Hashid.MinLength)
	if err != nil {
		return err
	}
	return app.hashids.Bind(codec)
}

// deferredHasher resolves the bound hasher on every call so components can
// be built before the config is loaded.
type deferredHasher struct {
	d *auth.Deferred[auth.PasswordHasher]
}

func (h deferredHasher) Hash(password string) (string, error) {
	return h.d.Get().Hash(password)
}

func (h deferredHasher) Verify(password, hash string) error {
	return h.d.Get().Verify(password, hash)
}

func (h deferredHasher) VerifyDummy(password string) {
	h.d.Get().VerifyDummy(password)
}

type deferredCodec struct {
	d *auth.Deferred[auth.IDCodec]
}

func (c deferredCodec) Encode(id int64) (string, error) {
	return c.d.Get().Encode(id)
}

func (c deferredCodec) Decode(hash string) (int64, error) {
	return c.d.Get().Decode(hash)
}
