package flows

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestRunExpireRunsEveryStepInOrder(t *testing.T) {
	var steps []string
	deps := ExpireDeps{
		Logout: func(context.Context) error {
			steps = append(steps, "logout")
			return errors.New("offline")
		},
		ClearCredentials: func(context.Context) error {
			steps = append(steps, "clear")
			return nil
		},
		ResetCSRF:       func() { steps = append(steps, "csrf") },
		StripTokenParam: func() bool { steps = append(steps, "strip"); return true },
		OnLoginPage:     func() bool { return false },
		NavigateToLogin: func() { steps = append(steps, "navigate") },
		Emit: func(_ context.Context, reason string) {
			steps = append(steps, "emit:"+reason)
		},
	}

	res := RunExpire(context.Background(), "refresh_failed", deps)

	want := []string{"logout", "clear", "csrf", "strip", "navigate", "emit:refresh_failed"}
	if !reflect.DeepEqual(steps, want) {
		t.Fatalf("steps = %v, want %v", steps, want)
	}
	if res.LogoutErr == nil || !res.StrippedParam || !res.Navigated {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRunExpireSkipsNavigationOnLoginPage(t *testing.T) {
	navigated := false
	res := RunExpire(context.Background(), "x", ExpireDeps{
		OnLoginPage:     func() bool { return true },
		NavigateToLogin: func() { navigated = true },
	})
	if navigated || res.Navigated {
		t.Fatalf("must not navigate while already on the login page")
	}
}

func TestRunExpireClearsEvenWhenLogoutFails(t *testing.T) {
	cleared := false
	res := RunExpire(context.Background(), "x", ExpireDeps{
		Logout:           func(context.Context) error { return errors.New("boom") },
		ClearCredentials: func(context.Context) error { cleared = true; return nil },
	})
	if !cleared || res.ClearErr != nil {
		t.Fatalf("credentials must be cleared unconditionally")
	}
}
