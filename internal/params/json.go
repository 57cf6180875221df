package params

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"

	gqlerrors "github.com/hanpama/gqlhttp/internal/gqlerrors"
)

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, bodyError(err)
	}
	return body, nil
}

// decodeBody decodes a JSON body holding one parameter object or an array of
// them.
func decodeBody(body []byte) ([]*RequestParams, bool, error) {
	if !gjson.ValidBytes(body) {
		return nil, false, errInvalidJSON()
	}
	root := gjson.ParseBytes(body)
	if root.IsArray() {
		elems := root.Array()
		out := make([]*RequestParams, 0, len(elems))
		for _, el := range elems {
			p, err := decodeObject(el)
			if err != nil {
				return nil, true, err
			}
			out = append(out, p)
		}
		return out, true, nil
	}
	p, err := decodeObject(root)
	if err != nil {
		return nil, false, err
	}
	return []*RequestParams{p}, false, nil
}

func decodeObject(v gjson.Result) (*RequestParams, error) {
	if !v.IsObject() {
		return nil, gqlerrors.Newf(http.StatusBadRequest, "POST body is expected to be object but received %s.", kindOf(v))
	}
	p := &RequestParams{}
	var err error
	v.ForEach(func(key, val gjson.Result) bool {
		switch key.String() {
		case "query":
			p.Query, err = stringParam("query", val)
		case "operationName":
			p.OperationName, err = stringParam("operationName", val)
		case "variables":
			p.Variables, err = objectParam("variables", val)
		case "extensions":
			p.Extensions, err = objectParam("extensions", val)
		default:
			err = gqlerrors.Newf(http.StatusBadRequest, "Unexpected parameter %q in the request body.", key.String())
		}
		return err == nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func stringParam(name string, v gjson.Result) (string, error) {
	switch v.Type {
	case gjson.Null:
		return "", nil
	case gjson.String:
		return v.Str, nil
	}
	return "", gqlerrors.Newf(http.StatusBadRequest, "Expected %q param to be a string, but given %s.", name, kindOf(v))
}

func objectParam(name string, v gjson.Result) (map[string]any, error) {
	if v.Type == gjson.Null {
		return nil, nil
	}
	if !v.IsObject() {
		return nil, gqlerrors.Newf(http.StatusBadRequest, "Expected %q param to be an object, but given %s.", name, kindOf(v))
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(v.Raw), &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return out, nil
}

func kindOf(v gjson.Result) string {
	switch v.Type {
	case gjson.Null:
		return "null"
	case gjson.False, gjson.True:
		return "boolean"
	case gjson.Number:
		return "number"
	case gjson.String:
		return "string"
	}
	if v.IsArray() {
		return "array"
	}
	return "object"
}

// Values renders p as a GET query string.
func (p *RequestParams) Values() (url.Values, error) {
	v := url.Values{}
	if p.Query != "" {
		v.Set("query", p.Query)
	}
	if p.OperationName != "" {
		v.Set("operationName", p.OperationName)
	}
	for name, m := range map[string]map[string]any{"variables": p.Variables, "extensions": p.Extensions} {
		if m == nil {
			continue
		}
		b, err := json.Marshal(m)
		if err != nil {
			return nil, err
		}
		v.Set(name, string(b))
	}
	return v, nil
}
