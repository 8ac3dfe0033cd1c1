package svn

import (
	"net/url"
	"slices"
	"strings"

	"github.com/thiagokokada/gitsvn/internal/svnerr"
)

const (
	ProtocolVersion = 2

	CapEditPipeline   = "edit-pipeline"
	CapSvndiff1       = "svndiff1"
	CapAbsentEntries  = "absent-entries"
	CapDepth          = "depth"
	CapInheritedProps = "inherited-props"
	CapLogRevprops    = "log-revprops"
)

// ServerCapabilities is the capability list of the greeting.
var ServerCapabilities = []string{
	CapEditPipeline,
	CapSvndiff1,
	CapAbsentEntries,
	CapDepth,
	CapInheritedProps,
	CapLogRevprops,
}

// WriteGreeting writes "( success ( min max ( ) ( caps ) ) )".
func WriteGreeting(w *Writer) error {
	return w.Success(func(w *Writer) {
		w.Int(ProtocolVersion).Int(ProtocolVersion)
		w.ListBegin().ListEnd()
		w.ListBegin()
		for _, c := range ServerCapabilities {
			w.Word(c)
		}
		w.ListEnd()
	})
}

// ClientInfo is the client's handshake response:
// "( version ( cap ... ) url [ ra-client ] [ ( client ) ] )".
type ClientInfo struct {
	Version      int
	Capabilities []string
	URL          *url.URL
	RAClient     string
	Client       string
}

func ParseClientInfo(t *Tuple) (*ClientInfo, error) {
	version, err := t.Number()
	if err != nil {
		return nil, err
	}
	caps, err := t.Words()
	if err != nil {
		return nil, err
	}
	raw, err := t.Text()
	if err != nil {
		return nil, err
	}
	u, err := ParseURL(raw)
	if err != nil {
		return nil, err
	}
	info := &ClientInfo{
		Version:      int(version),
		Capabilities: caps,
		URL:          u,
	}
	if t.More() {
		if info.RAClient, err = t.Text(); err != nil {
			return nil, err
		}
	}
	if t.More() {
		if info.Client, _, err = t.OptText(); err != nil {
			return nil, err
		}
	}
	return info, nil
}

func (c *ClientInfo) HasCapability(name string) bool {
	return slices.Contains(c.Capabilities, name)
}

// ParseURL validates a repository URL: valid percent escapes, an svn or
// svn+tunnel scheme and a host.
func ParseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &svnerr.Error{
			Kind:    svnerr.KindMalformed,
			Code:    svnerr.CodeBadURL,
			Message: "invalid repository URL",
			Err:     err,
		}
	}
	if u.Scheme != "svn" && !strings.HasPrefix(u.Scheme, "svn+") {
		return nil, &svnerr.Error{
			Kind:    svnerr.KindMalformed,
			Code:    svnerr.CodeRAIllegalURL,
			Message: "unsupported URL scheme " + u.Scheme,
		}
	}
	if u.Host == "" {
		return nil, &svnerr.Error{
			Kind:    svnerr.KindMalformed,
			Code:    svnerr.CodeRAIllegalURL,
			Message: "URL " + raw + " has no host",
		}
	}
	return u, nil
}

// AuthReq is "( mech [ ( token ) ] )".
type AuthReq struct {
	Mech   string
	Tokens []string
}

func ParseAuthReq(t *Tuple) (*AuthReq, error) {
	mech, err := t.Word()
	if err != nil {
		return nil, err
	}
	req := &AuthReq{Mech: mech}
	if t.More() {
		if req.Tokens, err = t.Texts(); err != nil {
			return nil, err
		}
	}
	return req, nil
}

// Token returns the first token, or "" when the client sent none.
func (a *AuthReq) Token() string {
	if len(a.Tokens) == 0 {
		return ""
	}
	return a.Tokens[0]
}

// WriteAuthRequest announces the mechanisms: "( success ( ( mech ... ) realm ) )".
func WriteAuthRequest(w *Writer, mechs []string, realm string) error {
	return w.Success(func(w *Writer) {
		w.ListBegin()
		for _, m := range mechs {
			w.Word(m)
		}
		w.ListEnd()
		w.Text(realm)
	})
}

// Command is "( name ( params ... ) )".
type Command struct {
	Name   string
	Params *Tuple
}

func (r *Reader) ReadCommand() (*Command, error) {
	t, err := r.ReadTuple()
	if err != nil {
		return nil, err
	}
	name, err := t.Word()
	if err != nil {
		return nil, err
	}
	params := NewTuple(nil)
	if t.More() {
		if params, err = t.List(); err != nil {
			return nil, err
		}
	}
	return &Command{Name: name, Params: params}, nil
}
