package component

import (
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/helper/chroot"

	"github.com/agentic-research/loom/internal/bind"
)

// Panel groups children.
type Panel struct {
	bind.Base
}

func NewPanel(id string) *Panel {
	return &Panel{Base: bind.NewBase(KindPanel, id)}
}

func (p *Panel) Bind(c *bind.Context) error { return bind.BindChildren(c, p) }

// Document is the root of a component tree. Relative references below it
// resolve against its filesystem.
type Document struct {
	bind.Base
	// Namespaces are the prefix bindings declared on the document element.
	Namespaces map[string]string

	fs billy.Filesystem
}

func NewDocument(id string, fs billy.Filesystem) *Document {
	return &Document{Base: bind.NewBase(KindDocument, id), fs: fs}
}

func (d *Document) FS() billy.Filesystem { return d.fs }

func (d *Document) Bind(c *bind.Context) error { return bind.BindChildren(c, d) }

// Import binds the markup of another file in place. References inside the
// imported markup resolve against that file's directory.
type Import struct {
	bind.Base
	Src    string
	Parser bind.Parser
	// Origin anchors Src; when nil the nearest remote source above the
	// import is used.
	Origin bind.RemoteSource

	fs billy.Filesystem
}

func NewImport(id string) *Import {
	return &Import{Base: bind.NewBase(KindImport, id)}
}

// FS returns the imported file's directory, set once bound.
func (imp *Import) FS() billy.Filesystem { return imp.fs }

func (imp *Import) Bind(c *bind.Context) error {
	imp.ClearChildren()
	origin := imp.Origin
	if origin == nil {
		origin = bind.FindRemote(c, imp.Parent())
	}
	if origin == nil || origin.FS() == nil {
		return fmt.Errorf("import %q: no filesystem to resolve %s", imp.ID(), imp.Src)
	}

	content, err := readFile(origin.FS(), imp.Src)
	if err != nil {
		return fmt.Errorf("import %q: %w", imp.ID(), err)
	}
	imp.fs = chroot.New(origin.FS(), path.Dir(imp.Src))

	content = stripProlog(content)
	tmpl := &bind.Template{Content: content, Parser: imp.Parser, Prewrapped: bind.IsFragment(content)}
	sub, err := tmpl.Instantiate(c, c.Index(), imp)
	if err != nil {
		return fmt.Errorf("import %q: %w", imp.ID(), err)
	}
	bind.Attach(imp, sub)
	return c.Bind(sub)
}

func (imp *Import) Properties() map[string]any {
	return map[string]any{"src": imp.Src}
}

func readFile(fs billy.Filesystem, name string) (string, error) {
	f, err := fs.Open(name)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", name, err)
	}
	defer func() { _ = f.Close() }()
	data, err := io.ReadAll(f)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	return string(data), nil
}

// stripProlog drops an XML declaration, which may not appear inside a
// fragment.
func stripProlog(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "<?xml") {
		return s
	}
	if end := strings.Index(t, "?>"); end >= 0 {
		return t[end+2:]
	}
	return s
}
