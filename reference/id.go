package reference

import (
	"log/slog"
	"strconv"

	"github.com/goforj/rescache/value"
)

func idOf(logger *slog.Logger, ref any) (string, error) {
	id, err := extractID(ref)
	if err != nil {
		logger.Error("reference: cannot extract resource id", "input", ref, "error", err)
		return "", err
	}
	return id, nil
}

// extractID accepts a number, an object with an id or url field, or a
// reference string.
func extractID(ref any) (string, error) {
	n, err := value.Normalize(ref)
	if err != nil {
		return "", &InvalidReferenceError{Input: ref, Reason: err.Error()}
	}
	switch t := n.(type) {
	case nil:
		return "", &InvalidReferenceError{Input: ref, Reason: "reference is absent"}
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case string:
		if id, ok := lastSegment(t); ok {
			return id, nil
		}
		return "", &InvalidReferenceError{Input: ref, Reason: "no path segment"}
	case *value.Object:
		if id, ok := t.Get("id"); ok && id != nil {
			return scalarID(ref, id)
		}
		if url, ok := t.Get("url"); ok {
			if s, isString := url.(string); isString {
				if id, found := lastSegment(s); found {
					return id, nil
				}
			}
			return "", &InvalidReferenceError{Input: ref, Reason: "url field has no path segment"}
		}
		return "", &InvalidReferenceError{Input: ref, Reason: "object has neither id nor url"}
	}
	return "", &InvalidReferenceError{Input: ref, Reason: "unsupported reference shape"}
}

func scalarID(ref any, id value.Value) (string, error) {
	switch t := id.(type) {
	case string:
		if t != "" {
			return t, nil
		}
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	}
	return "", &InvalidReferenceError{Input: ref, Reason: "id field is empty or not scalar"}
}
