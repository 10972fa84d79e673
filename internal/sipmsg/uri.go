package sipmsg

import (
	"fmt"
	"strings"
)

// URI is a minimal SIP URI: scheme, optional user, host, optional port,
// and an ordered list of ;param or ;param=value segments.
type URI struct {
	Scheme string // "sip" or "sips"
	User   string
	Host   string
	Port   int // 0 means absent
	Params []Param
}

// Param is one ";name" or ";name=value" URI parameter.
type Param struct {
	Name  string
	Value string // empty when the param is bare (e.g. "rport")
}

// Get returns the value of the first parameter with the given name
// (case-insensitive) and whether it was present.
func (u URI) Get(name string) (string, bool) {
	for _, p := range u.Params {
		if strings.EqualFold(p.Name, name) {
			return p.Value, true
		}
	}
	return "", false
}

// WithParam returns a copy of u with the given parameter appended.
func (u URI) WithParam(name, value string) URI {
	u.Params = append(append([]Param{}, u.Params...), Param{Name: name, Value: value})
	return u
}

// String renders the URI in wire form.
func (u URI) String() string {
	var b strings.Builder
	scheme := u.Scheme
	if scheme == "" {
		scheme = "sip"
	}
	b.WriteString(scheme)
	b.WriteByte(':')
	if u.User != "" {
		b.WriteString(u.User)
		b.WriteByte('@')
	}
	b.WriteString(u.Host)
	if u.Port != 0 {
		fmt.Fprintf(&b, ":%d", u.Port)
	}
	for _, p := range u.Params {
		b.WriteByte(';')
		b.WriteString(p.Name)
		if p.Value != "" {
			b.WriteByte('=')
			b.WriteString(p.Value)
		}
	}
	return b.String()
}

// ParseURI parses a bare SIP URI of the form "sip:user@host:port;p=v".
// Angle brackets around the URI, if present, are stripped first.
func ParseURI(s string) (URI, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "<")
	s = strings.TrimSuffix(s, ">")

	scheme := "sip"
	if i := strings.Index(s, ":"); i >= 0 {
		scheme = s[:i]
		s = s[i+1:]
	} else {
		return URI{}, fmt.Errorf("sipmsg: no scheme in URI %q", s)
	}

	parts := strings.Split(s, ";")
	hostpart := parts[0]
	var params []Param
	for _, raw := range parts[1:] {
		if raw == "" {
			continue
		}
		if i := strings.Index(raw, "="); i >= 0 {
			params = append(params, Param{Name: raw[:i], Value: raw[i+1:]})
		} else {
			params = append(params, Param{Name: raw})
		}
	}

	user := ""
	host := hostpart
	if i := strings.Index(hostpart, "@"); i >= 0 {
		user = hostpart[:i]
		host = hostpart[i+1:]
	}

	port := 0
	if i := strings.LastIndex(host, ":"); i >= 0 {
		var p int
		if _, err := fmt.Sscanf(host[i+1:], "%d", &p); err == nil {
			port = p
			host = host[:i]
		}
	}

	return URI{Scheme: scheme, User: user, Host: host, Port: port, Params: params}, nil
}
