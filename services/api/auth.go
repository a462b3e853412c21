package api

import (
	"log/slog"
	"net"
	"net/http"
)

// sessionCookie carries the auth token between requests.
const sessionCookie = "costco_tracker_session"

func sessionToken(r *http.Request) string {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func clientIp(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// checkClientIp rejects peers outside the allowlist before anything
// else runs, login included.
func (s Service) checkClientIp(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, err := s.auth.CheckIpAllowed(r.Context(), clientIp(r))
		if err != nil {
			respondError(w, http.StatusInternalServerError, "check ip allowlist: %v", err)
			return
		}
		if !allowed {
			respondError(w, http.StatusForbidden, "IP not allowed")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAuth validates the session cookie. An instance with no site
// password configured yet is open, matching the first run experience
// before setup.
func (s Service) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		configured, err := s.auth.PasswordConfigured(ctx)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "read auth state: %v", err)
			return
		}
		if configured {
			valid := false
			if token := sessionToken(r); token != "" {
				valid, err = s.auth.ValidateSession(ctx, token)
				if err != nil {
					respondError(w, http.StatusInternalServerError, "validate session: %v", err)
					return
				}
			}
			if !valid {
				respondError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

type loginRequest struct {
	Password string `json:"password"`
}

func (s Service) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ok, err := s.auth.VerifyPassword(ctx, req.Password)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "verify password: %v", err)
		return
	}
	if !ok {
		respondError(w, http.StatusUnauthorized, "Invalid password")
		return
	}

	token, err := s.auth.CreateSession(ctx)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "create session: %v", err)
		return
	}
	config, err := s.settings.Snapshot(ctx)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "read settings: %v", err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(config.SessionTimeoutMinutes * 60),
	})
	respondJSON(w, http.StatusOK, statusOk())
}

func (s Service) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := sessionToken(r); token != "" {
		if err := s.auth.DestroySession(r.Context(), token); err != nil {
			slog.WarnContext(r.Context(), "destroy session", "err", err)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	respondJSON(w, http.StatusOK, statusOk())
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (s Service) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req changePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ok, err := s.auth.VerifyPassword(ctx, req.CurrentPassword)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "verify password: %v", err)
		return
	}
	if !ok {
		respondError(w, http.StatusBadRequest, "Current password is incorrect")
		return
	}
	if req.NewPassword == "" {
		respondError(w, http.StatusBadRequest, "new_password is required")
		return
	}

	if err := s.auth.SetPassword(ctx, req.NewPassword); err != nil {
		respondError(w, http.StatusInternalServerError, "set password: %v", err)
		return
	}
	respondJSON(w, http.StatusOK, statusOk())
}
