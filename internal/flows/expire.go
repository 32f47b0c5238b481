package flows

import "context"

// ExpireDeps captures the side effects of ending an unrecoverable session.
type ExpireDeps struct {
	// Logout notifies the server. Its failure is ignored.
	Logout func(context.Context) error
	// ClearCredentials removes access, refresh, csrf and user from storage.
	ClearCredentials func(context.Context) error
	// ResetCSRF drops the in-memory anti-forgery token.
	ResetCSRF func()
	// StripTokenParam removes a leftover token query parameter without navigating.
	StripTokenParam func() bool
	// OnLoginPage reports whether the host is already on the login route.
	OnLoginPage func() bool
	// NavigateToLogin performs the full navigation to the login route.
	NavigateToLogin func()
	// Emit publishes the token-expired signal.
	Emit func(ctx context.Context, reason string)
}

// ExpireResult reports what the expiry sequence did.
type ExpireResult struct {
	LogoutErr     error
	ClearErr      error
	StrippedParam bool
	Navigated     bool
}

// RunExpire performs the forced-logout sequence: best-effort server logout, unconditional
// credential clearing, URL cleanup, navigation to login unless already there, and the
// token-expired signal. Every step runs even when an earlier one fails.
func RunExpire(ctx context.Context, reason string, deps ExpireDeps) ExpireResult {
	var res ExpireResult

	if deps.Logout != nil {
		res.LogoutErr = deps.Logout(ctx)
	}
	if deps.ClearCredentials != nil {
		res.ClearErr = deps.ClearCredentials(ctx)
	}
	if deps.ResetCSRF != nil {
		deps.ResetCSRF()
	}
	if deps.StripTokenParam != nil {
		res.StrippedParam = deps.StripTokenParam()
	}
	if deps.NavigateToLogin != nil && (deps.OnLoginPage == nil || !deps.OnLoginPage()) {
		deps.NavigateToLogin()
		res.Navigated = true
	}
	if deps.Emit != nil {
		deps.Emit(ctx, reason)
	}

	return res
}
