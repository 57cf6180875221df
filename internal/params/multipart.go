package params

import (
	"encoding/json"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	gqlerrors "github.com/hanpama/gqlhttp/internal/gqlerrors"
)

// Upload is a file received through a multipart request. It is placed in the
// variables at the position named by the request's map field.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64

	header *multipart.FileHeader
}

// Open returns the file contents.
func (u *Upload) Open() (multipart.File, error) { return u.header.Open() }

// MarshalJSON renders the upload by name so that variables can be logged.
func (u *Upload) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"filename": u.Filename, "contentType": u.ContentType, "size": u.Size})
}

func newUpload(fh *multipart.FileHeader) *Upload {
	return &Upload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		header:      fh,
	}
}

func fromMultipart(r *http.Request, opt Options) ([]*RequestParams, bool, error) {
	mem := opt.MaxMemory
	if mem <= 0 {
		mem = defaultMaxMemory
	}
	if err := r.ParseMultipartForm(mem); err != nil {
		return nil, false, bodyError(err)
	}
	form := r.MultipartForm

	operations := firstValue(form, "operations", "{}")
	ps, batched, err := decodeBody([]byte(operations))
	if err != nil {
		return nil, false, err
	}

	var fileMap map[string]any
	if err := json.Unmarshal([]byte(firstValue(form, "map", "{}")), &fileMap); err != nil {
		return nil, false, errInvalidJSON()
	}
	for field, target := range fileMap {
		files := form.File[field]
		if len(files) == 0 {
			return nil, false, gqlerrors.Newf(http.StatusBadRequest, "Missing multipart file %q.", field)
		}
		up := newUpload(files[0])

		var paths []string
		switch t := target.(type) {
		case string:
			paths = []string{t}
		case []any:
			for _, el := range t {
				s, ok := el.(string)
				if !ok {
					return nil, false, gqlerrors.Newf(http.StatusBadRequest, "Invalid map entry for %q.", field)
				}
				paths = append(paths, s)
			}
		default:
			return nil, false, gqlerrors.Newf(http.StatusBadRequest, "Invalid map entry for %q.", field)
		}
		for _, path := range paths {
			if err := inject(ps, batched, path, up); err != nil {
				return nil, false, err
			}
		}
	}
	return ps, batched, nil
}

func firstValue(form *multipart.Form, key, fallback string) string {
	if vs := form.Value[key]; len(vs) > 0 && vs[0] != "" {
		return vs[0]
	}
	return fallback
}

// inject places up at a dotted path such as "variables.file" or, for
// batches, "0.variables.files.1".
func inject(ps []*RequestParams, batched bool, path string, up *Upload) error {
	invalid := gqlerrors.Newf(http.StatusBadRequest, "Invalid upload path %q.", path)
	segs := strings.Split(path, ".")
	idx := 0
	if batched {
		i, err := strconv.Atoi(segs[0])
		if err != nil || i < 0 || i >= len(ps) {
			return invalid
		}
		idx, segs = i, segs[1:]
	}
	if len(ps) == 0 || len(segs) < 2 || segs[0] != "variables" {
		return invalid
	}
	p := ps[idx]
	if p.Variables == nil {
		p.Variables = map[string]any{}
	}

	var cur any = p.Variables
	for i, seg := range segs[1:] {
		last := i == len(segs)-2
		switch c := cur.(type) {
		case map[string]any:
			if last {
				c[seg] = up
				return nil
			}
			cur = c[seg]
		case []any:
			n, err := strconv.Atoi(seg)
			if err != nil || n < 0 || n >= len(c) {
				return invalid
			}
			if last {
				c[n] = up
				return nil
			}
			cur = c[n]
		default:
			return invalid
		}
	}
	return invalid
}
