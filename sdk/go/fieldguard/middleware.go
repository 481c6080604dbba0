package fieldguard

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
)

// Middleware returns an http.Handler that enforces each request before
// passing it to next. The action type is the last path segment and the
// parameters are the numeric query values; a repeated or non-numeric
// parameter is refused with a 400. Blocked requests receive a
// 403, and a quarantined or unreachable agent a 503, with a JSON body.
func (c *Client) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		action, err := actionFromRequest(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}

		err = c.admit(r.Context(), action)
		var blocked *BlockedError
		switch {
		case err == nil:
			next.ServeHTTP(w, r)
		case errors.As(err, &blocked):
			writeJSON(w, http.StatusForbidden, map[string]any{
				"blocked":    true,
				"action_id":  blocked.ActionID,
				"reason":     blocked.Reason,
				"violations": blocked.Violations,
			})
		default:
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"blocked": true,
				"reason":  err.Error(),
			})
		}
	})
}

// actionFromRequest maps an HTTP request to an Action.
func actionFromRequest(r *http.Request) (Action, error) {
	path := strings.Trim(r.URL.Path, "/")
	actionType := path
	if i := strings.LastIndex(path, "/"); i >= 0 {
		actionType = path[i+1:]
	}
	if actionType == "" {
		actionType = strings.ToLower(r.Method)
	}

	params := make(map[string]float64)
	for key, values := range r.URL.Query() {
		if len(values) == 0 {
			continue
		}
		// Handlers read either the first or the last value; only one is
		// checked, so repeats are refused.
		if len(values) > 1 {
			return Action{}, errors.New("parameter " + key + " is repeated")
		}
		v, err := strconv.ParseFloat(values[0], 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return Action{}, errors.New("parameter " + key + " is not a finite number")
		}
		params[key] = v
	}
	return Action{Type: actionType, Parameters: params}, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
