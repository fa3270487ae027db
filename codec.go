package dispatch

import (
	"io"
	"mime"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Common media types.
const (
	MediaJSON     = "application/json"
	MediaXML      = "application/xml"
	MediaText     = "text/plain"
	MediaWildcard = "*/*"
)

// defaultCandidates is the fallback candidate list when the method's
// Produces list and the client's Accept list do not intersect.
var defaultCandidates = []string{MediaJSON, MediaWildcard}

// Writer serializes a method result to wire bytes.
type Writer interface {
	Write(w io.Writer, v any) error
}

// Reader deserializes wire bytes into a value of the target type.
type Reader interface {
	Read(data []byte, target reflect.Type) (any, error)
}

// CodecInfo describes one registered writer or reader: the declared value
// type it handles (nil for any), the media types it produces or consumes,
// an applicability predicate, and an affinity scorer used to break ties
// between eligible codecs. Exactly one of Writer or Reader is set.
type CodecInfo struct {
	Name       string
	Type       reflect.Type
	MediaTypes []string
	Applicable func(t reflect.Type, mediaType string) bool
	Affinity   func(t reflect.Type, mediaType string) int
	Writer     Writer
	Reader     Reader
}

// ConstAffinity returns an affinity scorer that ignores its inputs.
func ConstAffinity(n int) func(reflect.Type, string) int {
	return func(reflect.Type, string) int { return n }
}

func (ci *CodecInfo) declares(mediaType string) bool {
	for _, mt := range ci.MediaTypes {
		if mt == mediaType || mt == MediaWildcard {
			return true
		}
	}
	return false
}

func (ci *CodecInfo) applicable(t reflect.Type, mediaType string) bool {
	return ci.Applicable == nil || ci.Applicable(t, mediaType)
}

func (ci *CodecInfo) affinity(t reflect.Type, mediaType string) int {
	if ci.Affinity == nil {
		return 0
	}
	return ci.Affinity(t, mediaType)
}

// concreteMediaType resolves the Content-Type to report for a selection.
// A wildcard candidate takes the writer's first declared concrete type.
func (ci *CodecInfo) concreteMediaType(candidate string) string {
	if candidate != MediaWildcard {
		return candidate
	}
	for _, mt := range ci.MediaTypes {
		if mt != MediaWildcard {
			return mt
		}
	}
	return MediaJSON
}

// ParseFunc constructs a typed value from its string form.
type ParseFunc func(string) (any, error)

// codecRegistry holds all registered writers, readers, and string parsers.
// It is populated during Application construction and read-only once
// dispatching starts, so concurrent lookups need no locking.
type codecRegistry struct {
	writers []*CodecInfo
	readers []*CodecInfo
	parsers map[reflect.Type]ParseFunc
}

func newCodecRegistry() *codecRegistry {
	cr := &codecRegistry{parsers: make(map[reflect.Type]ParseFunc)}
	registerBuiltinParsers(cr)
	return cr
}

func (cr *codecRegistry) registerDefaults() {
	for _, ci := range builtinCodecs() {
		//nolint:errcheck // built-in descriptors are well-formed
		cr.register(ci)
	}
}

func (cr *codecRegistry) register(ci CodecInfo) error {
	if (ci.Writer == nil) == (ci.Reader == nil) {
		return Configf("codec %q must set exactly one of Writer or Reader", ci.Name)
	}
	if len(ci.MediaTypes) == 0 {
		return Configf("codec %q declares no media types", ci.Name)
	}
	c := ci
	if c.Writer != nil {
		cr.writers = append(cr.writers, &c)
	} else {
		cr.readers = append(cr.readers, &c)
	}
	return nil
}

func (cr *codecRegistry) registerParser(t reflect.Type, fn ParseFunc) {
	cr.parsers[t] = fn
}

// parseAccept splits an Accept header into media types ordered by client
// preference: q descending, header order for equal q.
func parseAccept(header string) []string {
	if strings.TrimSpace(header) == "" {
		return nil
	}

	type entry struct {
		mt string
		q  float64
	}

	var entries []entry
	for part := range strings.SplitSeq(header, ",") {
		mediaType, params, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		q := 1.0
		if qs, ok := params["q"]; ok {
			if parsed, err := strconv.ParseFloat(qs, 64); err == nil {
				q = parsed
			}
		}
		entries = append(entries, entry{mt: mediaType, q: q})
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].q > entries[j].q })

	seen := make(map[string]bool, len(entries))
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if seen[e.mt] {
			continue
		}
		seen[e.mt] = true
		out = append(out, e.mt)
	}
	return out
}

func wildcardOnly(accept []string) bool {
	for _, mt := range accept {
		if mt != MediaWildcard {
			return false
		}
	}
	return true
}

// candidateMediaTypes computes the ordered candidate list for writer
// selection: the intersection of Produces and Accept in the client's
// preference order, with the documented fallbacks for empty lists.
func candidateMediaTypes(produces, accept []string) []string {
	switch {
	case len(produces) == 0 && len(accept) == 0:
		return defaultCandidates
	case len(produces) == 0:
		return accept
	case len(accept) == 0 || wildcardOnly(accept):
		return produces
	}

	seen := make(map[string]bool)
	var out []string
	add := func(mt string) {
		if !seen[mt] {
			seen[mt] = true
			out = append(out, mt)
		}
	}

	declared := make(map[string]bool, len(produces))
	for _, p := range produces {
		declared[p] = true
	}

	for _, a := range accept {
		if a == MediaWildcard {
			for _, p := range produces {
				add(p)
			}
			continue
		}
		if declared[a] {
			add(a)
		}
	}

	if len(out) == 0 {
		return defaultCandidates
	}
	return out
}

// contentTypeAllowed reports whether a request Content-Type satisfies a
// method's Consumes list. An empty list allows anything, as does a request
// without a body content type.
func contentTypeAllowed(consumes []string, contentType string) bool {
	if len(consumes) == 0 || contentType == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	for _, c := range consumes {
		if c == mt || c == MediaWildcard {
			return true
		}
	}
	return false
}

// findWriter selects the writer for a return type given the method's
// Produces list and the request's Accept header. Candidates are tried in
// preference order; the first candidate with an eligible writer wins, and
// among eligible writers the highest affinity wins with registration order
// breaking ties. Selection is a pure function of its inputs and the
// registry contents.
func (cr *codecRegistry) findWriter(t reflect.Type, produces []string, acceptHeader string) (*CodecInfo, string, bool) {
	candidates := candidateMediaTypes(produces, parseAccept(acceptHeader))

	for _, mt := range candidates {
		var best *CodecInfo
		bestAff := 0
		for _, w := range cr.writers {
			if !w.applicable(t, mt) {
				continue
			}
			if mt != MediaWildcard && !w.declares(mt) {
				continue
			}
			if aff := w.affinity(t, mt); best == nil || aff > bestAff {
				best = w
				bestAff = aff
			}
		}
		if best != nil {
			return best, best.concreteMediaType(mt), true
		}
	}
	return nil, "", false
}

// findReader selects the best-affinity reader whose declared type matches
// the parameter type and whose predicate accepts the content media type.
// Callers fall back to the string-parser registry when this returns nil.
func (cr *codecRegistry) findReader(t reflect.Type, contentType string) *CodecInfo {
	mt := MediaJSON
	if contentType != "" {
		parsed, _, err := mime.ParseMediaType(contentType)
		if err != nil {
			return nil
		}
		mt = parsed
	}

	var best *CodecInfo
	bestAff := 0
	for _, rd := range cr.readers {
		if rd.Type != nil && rd.Type != t {
			continue
		}
		if !rd.applicable(t, mt) {
			continue
		}
		if aff := rd.affinity(t, mt); best == nil || aff > bestAff {
			best = rd
			bestAff = aff
		}
	}
	return best
}

// parserFor returns the registered string parser for a type, if any.
func (cr *codecRegistry) parserFor(t reflect.Type) (ParseFunc, bool) {
	fn, ok := cr.parsers[t]
	return fn, ok
}
