package auth

import (
	"context"
	"net/http"

	"github.com/mind-engage/lti-platform/pkg/platform/lti"
)

type ctxKey string

const ctxKeyUser ctxKey = "user"

func WithUser(ctx context.Context, u lti.User) context.Context {
	return context.WithValue(ctx, ctxKeyUser, u)
}

func UserFromContext(ctx context.Context) (lti.User, bool) {
	if v := ctx.Value(ctxKeyUser); v != nil {
		if u, ok := v.(lti.User); ok {
			return u, true
		}
	}
	return lti.User{}, false
}

// CurrentUser matches the CurrentUser hook of the launch and auth servers.
func CurrentUser(r *http.Request) (lti.User, bool) {
	return UserFromContext(r.Context())
}
