package urls

import (
	"fmt"
	"net/url"
	"sort"
)

// AppendQuery returns a copy of u with params added to its query string.
// Keys are added in sorted order so the resulting URL is deterministic.
// A nil value is skipped when ignoreNil is true and sent as an empty value otherwise.
// Slice values of string or any produce one parameter per element.
func AppendQuery(u *url.URL, params map[string]any, ignoreNil bool) *url.URL {
	out := clone(u)
	if len(params) == 0 {
		return out
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	q := out.Query()
	for _, k := range keys {
		switch v := params[k].(type) {
		case nil:
			if !ignoreNil {
				q.Add(k, "")
			}
		case []string:
			for _, item := range v {
				q.Add(k, item)
			}
		case []any:
			for _, item := range v {
				if item == nil {
					if !ignoreNil {
						q.Add(k, "")
					}
					continue
				}
				q.Add(k, fmt.Sprint(item))
			}
		case *string:
			if v == nil {
				if !ignoreNil {
					q.Add(k, "")
				}
				continue
			}
			q.Add(k, *v)
		default:
			q.Add(k, fmt.Sprint(v))
		}
	}
	out.RawQuery = q.Encode()
	return out
}
