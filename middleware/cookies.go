package middleware

import "net/http"

// RefreshCookieName is the cookie carrying the refresh token. The token
// never rides in response bodies or localStorage-visible surfaces; HttpOnly
// keeps it out of script reach.
const RefreshCookieName = "refreshToken"

// AttachRefresh sets the refresh token cookie on the response. Secure and
// SameSite=Strict are non-negotiable: the refresh token is a long-lived
// credential.
func AttachRefresh(w http.ResponseWriter, refreshToken string) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    refreshToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

// ExtractRefresh reads the refresh token from the request cookie. Returns
// false when the cookie is absent or empty.
func ExtractRefresh(r *http.Request) (string, bool) {
	c, err := r.Cookie(RefreshCookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

// ClearRefresh expires the refresh token cookie. Call it on logout and on
// any refresh failure that forces re-authentication.
func ClearRefresh(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   -1,
	})
}

// ExtractBearer reads a bearer access token from the Authorization header.
// Returns false when the header is missing or not a bearer credential.
func ExtractBearer(r *http.Request) (string, bool) {
	return bearerToken(r.Header.Get("Authorization"))
}
