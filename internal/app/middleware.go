package app

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/klokku/treasury/pkg/identity"
	log "github.com/sirupsen/logrus"
)

// SetupMiddleware wires all HTTP middlewares for the application.
func SetupMiddleware(r *mux.Router, deps *Dependencies) {
	r.Use(identityMiddleware(deps.IdentityService))
}

// identityMiddleware resolves the X-User-Id header into the request identity. Requests without
// the header carry no identity and fail at the first service that needs one.
func identityMiddleware(service identity.Service) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			log.Debug("Propagating user ID header")

			userIdHeader := req.Header.Get("X-User-Id")
			ctx := req.Context()

			if userIdHeader != "" {
				id, err := service.Resolve(ctx, userIdHeader)
				if err != nil {
					if errors.Is(err, identity.ErrUserNotFound) {
						log.Debugf("user not found: %s", userIdHeader)
						http.Error(w, "user not found", http.StatusForbidden)
						return
					}
					log.Errorf("failed to get user: %v", err)
					http.Error(w, "failed to resolve user", http.StatusInternalServerError)
					return
				}
				log.Debugf("user found: %s", id.Uid)
				ctx = identity.WithIdentity(ctx, id)
			}
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	}
}
