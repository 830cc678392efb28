package ingest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/caasmo/hookrelay/authn"
	"github.com/caasmo/hookrelay/db"
	"github.com/caasmo/hookrelay/router"
)

var (
	errNoAuthHeader  = errors.New("ingest: no authorization header")
	errInvalidToken  = errors.New("ingest: invalid bearer token")
	errForbiddenRole = errors.New("ingest: principal lacks required role")
)

// Handler wires the ingest HTTP surface: POST /events.
type Handler struct {
	service      *Service
	authorizer   *Authorizer
	jwtSecret    []byte
	requiredRole db.Role
	logger       *slog.Logger
}

func NewHandler(service *Service, authorizer *Authorizer, jwtSecret []byte, requiredRole db.Role, logger *slog.Logger) *Handler {
	return &Handler{
		service:      service,
		authorizer:   authorizer,
		jwtSecret:    jwtSecret,
		requiredRole: requiredRole,
		logger:       logger,
	}
}

// Register adds this handler's routes to rtr.
func (h *Handler) Register(rtr *router.Router) {
	rtr.Handler(http.MethodPost, "/events", http.HandlerFunc(h.postEvent))
}

// postEvent handles POST /events. Authorization runs in two independent
// layers: a bearer token identifying the principal and its role on the
// application (the Authorization Probe), and the application_secret carried
// in the body itself (the Ingest algorithm's own check). Either failing
// denies the request.
func (h *Handler) postEvent(w http.ResponseWriter, r *http.Request) {
	var post EventPost
	if err := json.NewDecoder(r.Body).Decode(&post); err != nil {
		writeJsonError(w, errorInvalidRequest)
		return
	}

	// Authorization Probe: exercised here, external to the Ingest algorithm's
	// own application_secret check.
	principal, authzErr := h.authorize(r, post.ApplicationID)
	if authzErr != nil {
		h.writeAuthError(w, authzErr)
		return
	}
	h.logger.Debug("ingest: authorized", "principal", principal, "application_id", post.ApplicationID)

	peerIP := ExtractPeerIP(r.RemoteAddr)
	if hdr := r.Header.Get("X-Forwarded-For"); hdr != "" {
		peerIP = firstForwardedFor(hdr)
	}

	created, err := h.service.Ingest(r.Context(), post, peerIP)
	if err != nil {
		var ingestErr *IngestError
		if errors.As(err, &ingestErr) {
			writeIngestError(w, ingestErr)
			return
		}
		writeJsonError(w, errorInternal)
		return
	}

	writeEventAccepted(w, created)
}

func (h *Handler) authorize(r *http.Request, applicationID string) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errNoAuthHeader
	}

	claims, err := authn.ExtractBearer(r, h.jwtSecret)
	if err != nil {
		return "", errInvalidToken
	}

	principal := claims.Subject
	ok, err := h.authorizer.Authorize(r.Context(), principal, applicationID, h.requiredRole)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errForbiddenRole
	}
	return principal, nil
}

func (h *Handler) writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errNoAuthHeader):
		writeJsonError(w, errorNoAuthHeader)
	case errors.Is(err, errInvalidToken):
		writeJsonError(w, errorInvalidTokenFormat)
	case errors.Is(err, errForbiddenRole):
		writeJsonError(w, errorForbidden)
	default:
		writeJsonError(w, errorInternal)
	}
}

// firstForwardedFor returns the left-most (originating) address in an
// X-Forwarded-For header. postEvent prefers it over RemoteAddr whenever the
// header is present; no check is made of who set it.
func firstForwardedFor(header string) string {
	for i := 0; i < len(header); i++ {
		if header[i] == ',' {
			return header[:i]
		}
	}
	return header
}
