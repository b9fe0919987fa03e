package core

import "context"

// Logout ends the local session: it clears the store and navigates to the
// landing view with a normal (push) navigation.
type Logout struct {
	LandingPath string
}

// NewLogout builds the logout action configured by cfg.
func NewLogout(cfg Config) Logout {
	return Logout{LandingPath: firstNonEmpty(cfg.LandingPath, "/")}
}

// Run clears token and expire_at together and then navigates. Navigation
// happens even when clearing failed; the clear error is returned for logging.
// Running it on an empty store is a no-op apart from the navigation.
func (l Logout) Run(ctx context.Context, store Store, adapter Adapter) error {
	var err error
	if store != nil {
		err = store.Clear(ctx)
	}
	adapter.Redirect(firstNonEmpty(l.LandingPath, "/"), NavPush)
	return err
}
