// Package http contains handler helpers shared by the API packages.
package http

import (
	"bytes"
	"io"
	"net/http"
)

// ReadAllAndReplaceBody reads r.Body to completion and swaps in a
// fresh reader over the same bytes so the next handler can read it
// again.
func ReadAllAndReplaceBody(r *http.Request) ([]byte, error) {
	b, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(b))
	return b, nil
}

// DumpHandler writes request bodies to output before passing the
// request on to next.
func DumpHandler(next http.Handler, output io.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if body, err := ReadAllAndReplaceBody(r); err == nil {
			output.Write(append(body, '\n'))
		}
		next.ServeHTTP(w, r)
	}
}
