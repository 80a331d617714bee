package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/gorilla/schema"
	"github.com/skyward-school/skyward/internal/errorz"
	"github.com/skyward-school/skyward/internal/web/sessions"
)

// maxBodyBytes limits the size of request bodies.
const maxBodyBytes = 64 << 10

var errUnsupportedValue = errors.New("unsupported value")

// mapper is a generic HTTP handler that maps requests to target
// function calls and writes the output to the response.
type mapper[IN, OUT any] struct {
	s      *Server
	msgs   messages
	req    func(*http.Request) (IN, error)
	target func(context.Context, IN) (OUT, error)
	res    func(result[IN, OUT]) error
}

// result is the result of a succesful request.
// it contains all relevant data because we can't know
// in advance what we will need to construct a response.
type result[IN, OUT any] struct {
	s    *Server
	r    *http.Request
	w    http.ResponseWriter
	sess *sessions.Session
	msgs messages
	in   IN
	out  OUT
}

// mapBoth creates a HTTP Handler that:
// 1. Maps the request to a value of input type IN.
// 2. Calls the target func with that value.
// 3. Writes the success message with status 200.
//
// Errors are written using the server error handler.
func mapBoth[IN, OUT any](s *Server, msgs messages, targetFunc func(context.Context, IN) (OUT, error)) *mapper[IN, OUT] {
	return &mapper[IN, OUT]{
		s:    s,
		msgs: msgs,
		req: func(r *http.Request) (IN, error) {
			return defaultRequest[IN](s, r)
		},
		target: targetFunc,
		res:    defaultResponse[IN, OUT],
	}
}

// mapRequest is mapBoth for target functions that only return an error.
func mapRequest[IN any](s *Server, msgs messages, targetFunc func(context.Context, IN) error) *mapper[IN, struct{}] {
	return mapBoth(s, msgs, func(ctx context.Context, in IN) (struct{}, error) {
		return struct{}{}, targetFunc(ctx, in)
	})
}

// request overwrites the function that maps the request to the input type.
func (e *mapper[IN, OUT]) request(fn func(r *http.Request) (IN, error)) *mapper[IN, OUT] {
	e.req = fn
	return e
}

// response overwrites the function that writes the output to the response.
func (e *mapper[IN, OUT]) response(fn func(result[IN, OUT]) error) *mapper[IN, OUT] {
	e.res = fn
	return e
}

func (e *mapper[IN, OUT]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sess, err := sessionFromCtx(r.Context())
	if err != nil {
		e.s.handleError(w, r, e.msgs, err)
		return
	}

	in, err := e.req(r)
	if err != nil {
		e.s.handleError(w, r, e.msgs, err)
		return
	}

	out, err := e.target(r.Context(), in)
	if err != nil {
		e.s.handleError(w, r, e.msgs, err)
		return
	}

	result := result[IN, OUT]{
		s:    e.s,
		r:    r,
		w:    w,
		sess: sess,
		msgs: e.msgs,
		in:   in,
		out:  out,
	}

	err = e.res(result)
	if err != nil {
		e.s.handleError(w, r, e.msgs, err)
		return
	}
}

// defaultRequest decodes a form or JSON body into IN. Blank
// values are dropped first, so they count as missing.
func defaultRequest[IN any](s *Server, r *http.Request) (IN, error) {
	var in IN

	values, err := requestValues(r)
	if err != nil {
		return in, err
	}

	err = s.decoder.Decode(&in, values)
	if err != nil {
		return in, decodeError(err)
	}

	return in, nil
}

// defaultResponse writes the success message of the route.
func defaultResponse[IN, OUT any](r result[IN, OUT]) error {
	return writeJSON(r.w, http.StatusOK, response{
		Success: true,
		Message: r.msgs.success,
	})
}

func requestValues(r *http.Request) (url.Values, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)

	var (
		values url.Values
		err    error
	)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		values, err = jsonValues(r)
	} else {
		err = r.ParseForm()
		values = r.PostForm
	}
	if err != nil {
		return nil, errorz.InvalidInput{errorz.Keyed{Key: "body", Err: err}}
	}

	out := make(url.Values, len(values))
	for key, vals := range values {
		for _, v := range vals {
			if strings.TrimSpace(v) != "" {
				out[key] = append(out[key], v)
			}
		}
	}

	return out, nil
}

// jsonValues reads a flat JSON object into form values.
func jsonValues(r *http.Request) (url.Values, error) {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()

	var obj map[string]any
	err := dec.Decode(&obj)
	if err != nil {
		return nil, err
	}

	values := make(url.Values, len(obj))
	for key, raw := range obj {
		switch v := raw.(type) {
		case nil:
		case string:
			values.Set(key, v)
		case json.Number:
			values.Set(key, v.String())
		case bool:
			values.Set(key, fmt.Sprint(v))
		default:
			return nil, fmt.Errorf("field %q: %w", key, errUnsupportedValue)
		}
	}

	return values, nil
}

func decodeError(err error) error {
	if err == nil {
		return nil
	}

	var multiErr schema.MultiError
	if errors.As(err, &multiErr) {
		keys := make([]string, 0, len(multiErr))
		for key := range multiErr {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		var invalidInput errorz.InvalidInput
		for _, key := range keys {
			e := multiErr[key]

			var (
				emptyErr schema.EmptyFieldError
				convErr  schema.ConversionError
			)
			switch {
			case errors.As(e, &emptyErr):
				e = errorz.ErrMissingField
			case errors.As(e, &convErr) && convErr.Err != nil:
				e = convErr.Err
			}

			invalidInput.Add(key, e)
		}

		return invalidInput
	}

	return err
}
