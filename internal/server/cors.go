package server

import (
	"net/http"
	"slices"
)

func setCORSHeaders(w http.ResponseWriter, r *http.Request, opts CORSOptions) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	wildcard := false
	if opts.AllowOrigin != nil {
		if !opts.AllowOrigin(r, origin) {
			return
		}
	} else {
		wildcard = slices.Contains(opts.AllowedOrigins, "*")
		if !wildcard && !slices.Contains(opts.AllowedOrigins, origin) {
			return
		}
	}
	if wildcard {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	} else {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}
	if r.Method == http.MethodOptions {
		if hdr := r.Header.Get("Access-Control-Request-Headers"); hdr != "" {
			w.Header().Set("Access-Control-Allow-Headers", hdr)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	}
}
