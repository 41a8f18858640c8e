// Package callback encodes and decodes the opaque selection tokens attached
// to reply buttons.
//
// Tokens are versioned and pipe separated:
//
//	v1|pick|<sessionID>|<index>
//	v1|dl|<sessionID>|<externalID>
//	v1|restart
//
// Decoding is pure and fails closed: anything that is not exactly one of the
// forms above yields a *domain.InvalidTokenError.
package callback

import (
	"strconv"
	"strings"

	"tunegrab/internal/core/domain"
)

const (
	version = "v1"
	sep     = "|"

	// MaxTokenLen is the largest token a chat transport will round-trip.
	MaxTokenLen = 64
)

// Kind tags an Action.
type Kind string

const (
	KindPick     Kind = "pick"
	KindDownload Kind = "dl"
	KindRestart  Kind = "restart"
)

// Action is a decoded callback.
type Action struct {
	Kind      Kind
	SessionID string
	Index     int    // KindPick
	ResultRef string // KindDownload
}

// Pick selects the result at index of a session.
func Pick(sessionID string, index int) Action {
	return Action{Kind: KindPick, SessionID: sessionID, Index: index}
}

// Download selects a result of a session by external reference.
func Download(sessionID, ref string) Action {
	return Action{Kind: KindDownload, SessionID: sessionID, ResultRef: ref}
}

// Restart asks for a fresh search.
func Restart() Action {
	return Action{Kind: KindRestart}
}

// Encode renders a as a token.
func Encode(a Action) string {
	switch a.Kind {
	case KindPick:
		return strings.Join([]string{version, string(KindPick), a.SessionID, strconv.Itoa(a.Index)}, sep)
	case KindDownload:
		return strings.Join([]string{version, string(KindDownload), a.SessionID, a.ResultRef}, sep)
	default:
		return version + sep + string(KindRestart)
	}
}

// Decode parses token into an Action.
func Decode(token string) (Action, error) {
	if token == "" {
		return Action{}, invalid(token, "empty token")
	}
	if len(token) > MaxTokenLen {
		return Action{}, invalid(token, "token too long")
	}
	parts := strings.Split(token, sep)
	if parts[0] != version {
		return Action{}, invalid(token, "unsupported version")
	}
	if len(parts) < 2 {
		return Action{}, invalid(token, "missing kind")
	}

	switch Kind(parts[1]) {
	case KindRestart:
		if len(parts) != 2 {
			return Action{}, invalid(token, "unexpected payload")
		}
		return Restart(), nil

	case KindPick:
		if len(parts) != 4 {
			return Action{}, invalid(token, "missing payload")
		}
		if !validRef(parts[2]) {
			return Action{}, invalid(token, "bad session id")
		}
		idx, err := strconv.Atoi(parts[3])
		if err != nil || idx < 0 || parts[3] != strconv.Itoa(idx) {
			return Action{}, invalid(token, "bad index")
		}
		return Pick(parts[2], idx), nil

	case KindDownload:
		if len(parts) != 4 {
			return Action{}, invalid(token, "missing payload")
		}
		if !validRef(parts[2]) {
			return Action{}, invalid(token, "bad session id")
		}
		if !validRef(parts[3]) {
			return Action{}, invalid(token, "bad result ref")
		}
		return Download(parts[2], parts[3]), nil

	default:
		return Action{}, invalid(token, "unknown kind")
	}
}

// validRef accepts the alphabet of ULIDs and provider video IDs.
func validRef(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

func invalid(token, reason string) error {
	return &domain.InvalidTokenError{Token: token, Reason: reason}
}
