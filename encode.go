package dispatch

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"time"
	"unicode/utf8"
)

// jsonCodec implements both Writer and Reader for JSON.
type jsonCodec struct{}

func (jsonCodec) Write(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}

func (jsonCodec) Read(data []byte, target reflect.Type) (any, error) {
	ptr := reflect.New(target)
	if err := json.Unmarshal(data, ptr.Interface()); err != nil {
		return nil, err
	}
	return ptr.Elem().Interface(), nil
}

// xmlCodec implements both Writer and Reader for XML.
type xmlCodec struct{}

func (xmlCodec) Write(w io.Writer, v any) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	return xml.NewEncoder(w).Encode(v)
}

func (xmlCodec) Read(data []byte, target reflect.Type) (any, error) {
	ptr := reflect.New(target)
	if err := xml.Unmarshal(data, ptr.Interface()); err != nil {
		return nil, err
	}
	return ptr.Elem().Interface(), nil
}

// textCodec writes strings, Stringers, and errors as text/plain and reads
// plain bodies into string parameters.
type textCodec struct{}

func (textCodec) Write(w io.Writer, v any) error {
	switch s := v.(type) {
	case string:
		_, err := io.WriteString(w, s)
		return err
	case fmt.Stringer:
		_, err := io.WriteString(w, s.String())
		return err
	case error:
		_, err := io.WriteString(w, s.Error())
		return err
	}
	return errors.New("text codec: value is not a string")
}

func (textCodec) Read(data []byte, target reflect.Type) (any, error) {
	if target.Kind() != reflect.String {
		return nil, fmt.Errorf("text codec: cannot read into %s", target)
	}
	return reflect.ValueOf(string(data)).Convert(target).Interface(), nil
}

func textWritable(t reflect.Type, _ string) bool {
	if t == nil {
		return false
	}
	if t.Kind() == reflect.String {
		return true
	}
	return t.Implements(reflect.TypeFor[fmt.Stringer]()) || t.Implements(errType)
}

// builtinCodecs returns the default writers and readers. JSON is registered
// first so ties resolve in its favor; its higher affinity also wins the
// wildcard candidate.
func builtinCodecs() []CodecInfo {
	return []CodecInfo{
		{
			Name:       "json",
			MediaTypes: []string{MediaJSON},
			Applicable: func(_ reflect.Type, mt string) bool { return mt == MediaJSON || mt == MediaWildcard },
			Affinity:   ConstAffinity(10),
			Writer:     jsonCodec{},
		},
		{
			Name:       "xml",
			MediaTypes: []string{MediaXML},
			Applicable: func(_ reflect.Type, mt string) bool { return mt == MediaXML || mt == MediaWildcard },
			Affinity:   ConstAffinity(5),
			Writer:     xmlCodec{},
		},
		{
			Name:       "text",
			MediaTypes: []string{MediaText},
			Applicable: func(t reflect.Type, mt string) bool {
				return (mt == MediaText || mt == MediaWildcard) && textWritable(t, mt)
			},
			Affinity: ConstAffinity(1),
			Writer:   textCodec{},
		},
		{
			Name:       "json",
			MediaTypes: []string{MediaJSON},
			Applicable: func(_ reflect.Type, mt string) bool { return mt == MediaJSON },
			Affinity:   ConstAffinity(10),
			Reader:     jsonCodec{},
		},
		{
			Name:       "xml",
			MediaTypes: []string{MediaXML},
			Applicable: func(_ reflect.Type, mt string) bool { return mt == MediaXML },
			Affinity:   ConstAffinity(5),
			Reader:     xmlCodec{},
		},
		{
			Name:       "text",
			MediaTypes: []string{MediaText},
			Type:       reflect.TypeFor[string](),
			Applicable: func(_ reflect.Type, mt string) bool { return mt == MediaText },
			Affinity:   ConstAffinity(1),
			Reader:     textCodec{},
		},
	}
}

// registerBuiltinParsers installs the default string-to-value constructors
// used for parameter coercion.
func registerBuiltinParsers(cr *codecRegistry) {
	cr.registerParser(reflect.TypeFor[string](), func(s string) (any, error) {
		return s, nil
	})
	cr.registerParser(reflect.TypeFor[int](), func(s string) (any, error) {
		n, err := strconv.ParseInt(s, 10, 0)
		return int(n), err
	})
	cr.registerParser(reflect.TypeFor[int64](), func(s string) (any, error) {
		return strconv.ParseInt(s, 10, 64)
	})
	cr.registerParser(reflect.TypeFor[uint64](), func(s string) (any, error) {
		return strconv.ParseUint(s, 10, 64)
	})
	cr.registerParser(reflect.TypeFor[float64](), func(s string) (any, error) {
		return strconv.ParseFloat(s, 64)
	})
	cr.registerParser(reflect.TypeFor[bool](), func(s string) (any, error) {
		return strconv.ParseBool(s)
	})
	cr.registerParser(reflect.TypeFor[time.Duration](), func(s string) (any, error) {
		return time.ParseDuration(s)
	})
	cr.registerParser(reflect.TypeFor[rune](), func(s string) (any, error) {
		if utf8.RuneCountInString(s) != 1 {
			return nil, fmt.Errorf("expected a single character, got %q", s)
		}
		r, _ := utf8.DecodeRuneInString(s)
		return r, nil
	})
	cr.registerParser(reflect.TypeFor[[]byte](), func(s string) (any, error) {
		return []byte(s), nil
	})
}
