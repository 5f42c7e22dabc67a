package httpx

import (
	"net/http"

	"github.com/hredge/portal/internal/domain/access"
	"github.com/hredge/portal/internal/domain/profile"
	apperrors "github.com/hredge/portal/internal/errors"
	"github.com/hredge/portal/internal/service"
)

// APIHandlers expose the session and resolution state to scripted clients.
type APIHandlers struct {
	Registry *service.ResolverRegistry
	Routes   *RouteTable
}

type sessionJSON struct {
	Loaded     bool   `json:"loaded"`
	SignedIn   bool   `json:"signed_in"`
	IdentityID string `json:"identity_id,omitempty"`
}

type decisionJSON struct {
	Path     string `json:"path"`
	Decision string `json:"decision"`
	Reason   string `json:"reason,omitempty"`
}

type sessionResponse struct {
	Session    sessionJSON      `json:"session"`
	Profile    *profile.Profile `json:"profile"`
	Loading    bool             `json:"loading"`
	Error      string           `json:"error,omitempty"`
	Phase      string           `json:"phase"`
	Navigation []NavLink        `json:"navigation"`
	Access     *decisionJSON    `json:"access,omitempty"`
}

// Session reports the caller's session and profile resolution state. With
// ?path=, it also reports the access decision for that path.
// GET /api/session.
func (h *APIHandlers) Session(w http.ResponseWriter, r *http.Request) {
	auth := GetRequestAuth(r.Context())

	var st profile.ResolutionState
	var stp *profile.ResolutionState
	if h.Registry != nil {
		if res := h.Registry.Observe(auth.SessionID, auth.Tokens, auth.State); res != nil {
			st = res.Snapshot()
		}
		stp = &st
	}

	resp := sessionResponse{
		Session: sessionJSON{
			Loaded:     auth.State.Loaded,
			SignedIn:   auth.State.SignedIn,
			IdentityID: auth.State.IdentityID,
		},
		Profile:    st.Profile,
		Loading:    st.Loading,
		Phase:      st.Phase.String(),
		Navigation: Navigation(h.Routes, st, ""),
	}
	if st.Err != nil {
		resp.Error = st.Err.Error()
	}
	if path := r.URL.Query().Get("path"); path != "" {
		if spec, ok := h.Routes.Match(path); ok {
			out := access.Decide(auth.State, stp, spec.Required)
			resp.Access = &decisionJSON{Path: path, Decision: out.Decision.String(), Reason: out.Reason}
		}
	}
	WriteJSON(w, http.StatusOK, resp)
}

// Refetch re-resolves the caller's profile, keeping the current one visible
// until the new result arrives.
// POST /api/profile/refetch.
func (h *APIHandlers) Refetch(w http.ResponseWriter, r *http.Request) {
	auth := GetRequestAuth(r.Context())
	if h.Registry == nil {
		WriteAppError(w, apperrors.Misconfigured(access.ErrNoResolver))
		return
	}

	res := h.Registry.Observe(auth.SessionID, auth.Tokens, auth.State)
	if res == nil || !auth.State.Authenticated() || !res.Refetch() {
		WriteAppError(w, apperrors.Unauthenticated("sign-in required"))
		return
	}

	// The retry button on the profile error page posts a plain form.
	if !isJSONRequest(r) && r.Header.Get("Content-Type") != "" {
		back := safeRedirectFromURL(r.Header.Get("Referer"))
		if back == "" {
			back = "/"
		}
		http.Redirect(w, r, back, http.StatusSeeOther)
		return
	}
	WriteJSON(w, http.StatusAccepted, map[string]bool{"refetching": true})
}
