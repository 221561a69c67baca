// Package urls composes request URLs from a base URL and a resource string.
//
// Resolution rules, in order:
//   - An empty resource returns the base URL unchanged.
//   - An absolute, non-file resource replaces the base entirely.
//   - A fragment ("#...") or a base that already carries a fragment is joined literally.
//   - A query fragment ("?..." or "&...") is joined literally after checking that it agrees
//     with the base URL's query presence.
//   - Anything else is a path segment appended after exactly one "/". The base query is
//     kept, any query in the resource follows it, and a resource fragment stays last.
//
// Surrounding whitespace in the resource is ignored.
package urls

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// FormatError reports a URL composition that is malformed or ambiguous.
type FormatError struct {
	Base     string
	Resource string
	Reason   string
	Err      error
}

func (e *FormatError) Error() string {
	msg := fmt.Sprintf("url format: %s (base=%q resource=%q)", e.Reason, e.Base, e.Resource)
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// IsFormatError reports whether err is or wraps a *FormatError.
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}

// Resolve combines base and resource into a single URL. base may be nil.
func Resolve(base *url.URL, resource string) (*url.URL, error) {
	baseStr := ""
	if base != nil {
		baseStr = base.String()
	}

	resource = strings.TrimSpace(resource)
	if resource == "" {
		if base == nil {
			return nil, &FormatError{Reason: "no base URL and no resource"}
		}
		return clone(base), nil
	}

	if abs, ok := parseAbsolute(resource); ok {
		return abs, nil
	}

	if base == nil {
		return nil, &FormatError{Resource: resource, Reason: "relative resource requires a base URL"}
	}

	joined, err := join(base, baseStr, resource)
	if err != nil {
		return nil, err
	}

	u, err := url.Parse(joined)
	if err != nil {
		return nil, &FormatError{Base: baseStr, Resource: resource, Reason: "joined URL does not parse", Err: err}
	}
	return u, nil
}

// ResolveString is Resolve for string inputs. An empty base means "no base URL".
func ResolveString(base, resource string) (*url.URL, error) {
	if base == "" {
		return Resolve(nil, resource)
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, &FormatError{Base: base, Resource: resource, Reason: "base URL does not parse", Err: err}
	}
	if !u.IsAbs() {
		return nil, &FormatError{Base: base, Resource: resource, Reason: "base URL must be absolute"}
	}
	return Resolve(u, resource)
}

func join(base *url.URL, baseStr, resource string) (string, error) {
	switch {
	case strings.HasPrefix(resource, "#") || base.Fragment != "" || strings.HasSuffix(baseStr, "#"):
		return baseStr + resource, nil

	case strings.HasPrefix(resource, "?"):
		if hasQuery(base, baseStr) {
			return "", &FormatError{Base: baseStr, Resource: resource, Reason: "base URL already has a query string; use '&' to add parameters"}
		}
		return baseStr + resource, nil

	case strings.HasPrefix(resource, "&"):
		if !hasQuery(base, baseStr) {
			return "", &FormatError{Base: baseStr, Resource: resource, Reason: "base URL has no query string; use '?' to start one"}
		}
		return baseStr + resource, nil
	}

	// Path segment: keep query/fragment of the base out of the way.
	u := clone(base)
	u.RawQuery = ""
	u.ForceQuery = false
	prefix := u.String()
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	path, fragment, hasFragment := strings.Cut(resource, "#")
	path, query, _ := strings.Cut(path, "?")

	joined := prefix + strings.TrimLeft(path, "/")
	if q := mergeQuery(base.RawQuery, query); q != "" {
		joined += "?" + q
	}
	if hasFragment {
		joined += "#" + fragment
	}
	return joined, nil
}

func mergeQuery(base, extra string) string {
	switch {
	case base == "":
		return extra
	case extra == "":
		return base
	default:
		return base + "&" + extra
	}
}

func hasQuery(base *url.URL, baseStr string) bool {
	return base.RawQuery != "" || base.ForceQuery || strings.Contains(baseStr, "?")
}

func parseAbsolute(resource string) (*url.URL, bool) {
	u, err := url.Parse(resource)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return nil, false
	}
	if strings.EqualFold(u.Scheme, "file") {
		return nil, false
	}
	return u, true
}

func clone(u *url.URL) *url.URL {
	c := *u
	if u.User != nil {
		user := *u.User
		c.User = &user
	}
	return &c
}
