package bind

import (
	"context"
	"errors"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
)

// observation is what a recorder saw when it was bound.
type observation struct {
	data     any
	index    int
	depth    int
	fragment string
}

// recordingParser builds one recorder per template instantiation and records
// every recorder binding.
type recordingParser struct {
	calls     int
	fragments []string
	remotes   []RemoteSource
	seen      []observation
	parseErr  error
	bindErr   error
}

func (p *recordingParser) ParseTemplate(remote RemoteSource, fragment string) (Component, error) {
	p.calls++
	p.fragments = append(p.fragments, fragment)
	p.remotes = append(p.remotes, remote)
	if p.parseErr != nil {
		return nil, p.parseErr
	}
	g := NewGroup("")
	Attach(g, &recorder{Base: NewBase("recorder", ""), parser: p, fragment: fragment})
	return g, nil
}

type recorder struct {
	Base
	parser   *recordingParser
	fragment string
}

func (p *recorder) Bind(c *Context) error {
	p.parser.seen = append(p.parser.seen, observation{
		data:     c.Current(),
		index:    c.Index(),
		depth:    c.StackDepth(),
		fragment: p.fragment,
	})
	return p.parser.bindErr
}

func (p *recordingParser) data() []any {
	out := make([]any, 0, len(p.seen))
	for _, o := range p.seen {
		out = append(out, o.data)
	}
	return out
}

func (p *recordingParser) usedTemplate(marker string) bool {
	for _, f := range p.fragments {
		if strings.Contains(f, marker) {
			return true
		}
	}
	return false
}

type remote struct {
	Group
	fs billy.Filesystem
}

func newRemote(id string) *remote {
	return &remote{Group: Group{Base: NewBase("document", id)}, fs: memfs.New()}
}

func (r *remote) FS() billy.Filesystem { return r.fs }

func newTestContext(opts Options) *Context {
	return NewContext(context.Background(), opts)
}

func tmpl(p Parser, content string) *Template {
	return &Template{Content: content, Parser: p}
}

func digits(n int) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = i
	}
	return out
}

var errBoom = errors.New("boom")
