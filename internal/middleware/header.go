package middleware

import "net/http"

const UserIDHeader = "X-User-ID"

// HeaderIdentity trusts X-User-ID as set by an internal caller or a gateway
// that already authenticated the user.
func HeaderIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(UserIDHeader)
		if userID == "" {
			userID = r.URL.Query().Get("user_id")
		}
		if userID == "" {
			writeUnauthorized(w, "missing "+UserIDHeader)
			return
		}
		next.ServeHTTP(w, r.WithContext(InjectUserID(r.Context(), userID)))
	})
}
