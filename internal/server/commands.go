package server

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"log/slog"
	"path"
	"strconv"
	"time"

	"github.com/thiagokokada/gitsvn/internal/git"
	"github.com/thiagokokada/gitsvn/internal/revision"
	"github.com/thiagokokada/gitsvn/internal/svn"
	"github.com/thiagokokada/gitsvn/internal/svnerr"
)

const (
	propAuthor = "svn:author"
	propDate   = "svn:date"
	propLog    = "svn:log"

	propCommittedRev  = "svn:entry:committed-rev"
	propCommittedDate = "svn:entry:committed-date"
	propLastAuthor    = "svn:entry:last-author"
	propUUID          = "svn:entry:uuid"
	propExecutable    = "svn:executable"
	propSpecial       = "svn:special"

	fileChunkSize = 64 << 10
)

// handler serves one command. parse runs before the permission check and
// paths reports the repository paths the command reads.
type handler interface {
	parse(s *Session, params *svn.Tuple) error
	paths() []string
	serve(ctx context.Context, s *Session) error
}

var commands = map[string]func() handler{
	"get-latest-rev": func() handler { return &getLatestRev{} },
	"get-dated-rev":  func() handler { return &getDatedRev{} },
	"reparent":       func() handler { return &reparent{} },
	"check-path":     func() handler { return &checkPath{} },
	"stat":           func() handler { return &stat{} },
	"get-file":       func() handler { return &getFile{} },
	"get-dir":        func() handler { return &getDir{} },
	"log":            func() handler { return &logCmd{} },
	"rev-proplist":   func() handler { return &revProplist{} },
	"rev-prop":       func() handler { return &revProp{} },
}

func (s *Session) dispatch(ctx context.Context, cmd *svn.Command) error {
	newHandler, ok := commands[cmd.Name]
	if !ok {
		return svnerr.Unsupported(svnerr.CodeRASvnUnknownCmd, "Unknown command '%s'", cmd.Name)
	}
	h := newHandler()
	if err := h.parse(s, cmd.Params); err != nil {
		return err
	}
	s.log.Debug("command", slog.String("command", cmd.Name), slog.Any("paths", h.paths()))
	step := CheckPermission{Check: readChecker(h.paths()), Next: StepFunc(h.serve)}
	return step.Process(ctx, s)
}

func readChecker(paths []string) Checker {
	return func(_ context.Context, s *Session) error {
		for _, p := range paths {
			if err := s.repo.Access().CheckRead(s.user, p); err != nil {
				return err
			}
		}
		return nil
	}
}

// sessionPaths is embedded by commands that only read the session
// directory.
type sessionPaths struct{ dir string }

func (p *sessionPaths) paths() []string { return []string{p.dir} }

type getLatestRev struct{ sessionPaths }

func (c *getLatestRev) parse(s *Session, _ *svn.Tuple) error {
	c.dir = s.dir
	return nil
}

func (c *getLatestRev) serve(ctx context.Context, s *Session) error {
	latest, err := s.repo.Refresh(ctx)
	if err != nil {
		return err
	}
	return s.w.Success(func(w *svn.Writer) { w.Int(latest) })
}

type getDatedRev struct {
	sessionPaths
	when time.Time
}

func (c *getDatedRev) parse(s *Session, params *svn.Tuple) error {
	raw, err := params.Text()
	if err != nil {
		return err
	}
	c.when, err = parseDate(raw)
	c.dir = s.dir
	return err
}

func parseDate(raw string) (time.Time, error) {
	for _, layout := range []string{svn.DateFormat, time.RFC3339Nano} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, svnerr.Malformed("invalid date %q", raw)
}

func (c *getDatedRev) serve(_ context.Context, s *Session) error {
	rev := s.repo.Translator().DatedRevision(c.when)
	return s.w.Success(func(w *svn.Writer) { w.Int(rev) })
}

type reparent struct {
	dir string
}

func (c *reparent) parse(s *Session, params *svn.Tuple) error {
	raw, err := params.Text()
	if err != nil {
		return err
	}
	u, err := svn.ParseURL(raw)
	if err != nil {
		return err
	}
	repo, dir, err := s.route(u)
	if err != nil {
		return err
	}
	if repo != s.repo {
		return &svnerr.Error{
			Kind:    svnerr.KindNotFound,
			Code:    svnerr.CodeRAIllegalURL,
			Message: "Can't reparent to a different repository: " + u.Redacted(),
		}
	}
	c.dir = dir
	return nil
}

func (c *reparent) paths() []string { return []string{c.dir} }

func (c *reparent) serve(_ context.Context, s *Session) error {
	s.dir = c.dir
	return s.w.Success(nil)
}

// pathRev is the "( path [ rev ] ...)" prefix shared by node commands.
type pathRev struct {
	path string
	rev  int
}

func (c *pathRev) parsePathRev(s *Session, params *svn.Tuple) error {
	p, err := params.Text()
	if err != nil {
		return err
	}
	rev, ok, err := params.OptNumber()
	if err != nil {
		return err
	}
	c.path = s.resolve(p)
	c.rev, err = s.revision(rev, ok)
	return err
}

func (c *pathRev) paths() []string { return []string{c.path} }

type checkPath struct{ pathRev }

func (c *checkPath) parse(s *Session, params *svn.Tuple) error {
	return c.parsePathRev(s, params)
}

func (c *checkPath) serve(ctx context.Context, s *Session) error {
	e, err := s.node(ctx, c.rev, c.path)
	if err != nil {
		return err
	}
	return s.w.Success(func(w *svn.Writer) { w.Word(e.Kind.String()) })
}

type stat struct{ pathRev }

func (c *stat) parse(s *Session, params *svn.Tuple) error {
	return c.parsePathRev(s, params)
}

func (c *stat) serve(ctx context.Context, s *Session) error {
	e, err := s.node(ctx, c.rev, c.path)
	if err != nil {
		return err
	}
	if e.Kind == git.KindNone {
		return s.w.Success(func(w *svn.Writer) { w.ListBegin().ListEnd() })
	}
	d, err := s.dirent(ctx, c.rev, c.path, e)
	if err != nil {
		return err
	}
	return s.w.Success(func(w *svn.Writer) {
		w.ListBegin()
		d.write(w)
		w.ListEnd()
	})
}

type getFile struct {
	pathRev
	wantProps    bool
	wantContents bool
	wantIprops   bool
}

func (c *getFile) parse(s *Session, params *svn.Tuple) error {
	if err := c.parsePathRev(s, params); err != nil {
		return err
	}
	var err error
	if c.wantProps, err = params.Bool(); err != nil {
		return err
	}
	if c.wantContents, err = params.Bool(); err != nil {
		return err
	}
	c.wantIprops, err = params.BoolOr(false)
	return err
}

func (c *getFile) serve(ctx context.Context, s *Session) error {
	e, err := s.node(ctx, c.rev, c.path)
	if err != nil {
		return err
	}
	switch e.Kind {
	case git.KindNone:
		return svnerr.NotFound(svnerr.CodeFSNotFound, "File not found: revision %d, path '/%s'", c.rev, c.path)
	case git.KindDir:
		return svnerr.NotFound(svnerr.CodeFSNotFile, "Path '/%s' is not a file", c.path)
	}
	content, err := s.repo.Store().ReadObject(ctx, e.ID)
	if err != nil {
		return err
	}
	if e.Symlink {
		content = append([]byte("link "), content...)
	}
	var props []prop
	if c.wantProps {
		d, err := s.dirent(ctx, c.rev, c.path, e)
		if err != nil {
			return err
		}
		props = s.nodeProps(d, e)
	}
	sum := md5.Sum(content)
	err = s.w.Success(func(w *svn.Writer) {
		w.OptText(hex.EncodeToString(sum[:]), true)
		w.Int(c.rev)
		writeProps(w, props)
		if c.wantIprops {
			w.ListBegin().ListEnd()
		}
	})
	if err != nil || !c.wantContents {
		return err
	}
	for len(content) > 0 {
		n := min(len(content), fileChunkSize)
		s.w.Bytes(content[:n])
		content = content[n:]
	}
	s.w.Text("")
	return s.w.Success(nil)
}

type getDir struct {
	pathRev
	wantProps    bool
	wantContents bool
	wantIprops   bool
}

func (c *getDir) parse(s *Session, params *svn.Tuple) error {
	if err := c.parsePathRev(s, params); err != nil {
		return err
	}
	var err error
	if c.wantProps, err = params.Bool(); err != nil {
		return err
	}
	if c.wantContents, err = params.Bool(); err != nil {
		return err
	}
	// The dirent field list is accepted but every field is always sent.
	if params.More() {
		if _, err := params.Words(); err != nil {
			return err
		}
	}
	c.wantIprops, err = params.BoolOr(false)
	return err
}

func (c *getDir) serve(ctx context.Context, s *Session) error {
	e, err := s.node(ctx, c.rev, c.path)
	if err != nil {
		return err
	}
	switch e.Kind {
	case git.KindNone:
		return svnerr.NotFound(svnerr.CodeFSNotFound, "Directory not found: revision %d, path '/%s'", c.rev, c.path)
	case git.KindFile:
		return svnerr.NotFound(svnerr.CodeFSNotDirectory, "Path '/%s' is not a directory", c.path)
	}
	var props []prop
	if c.wantProps {
		d, err := s.dirent(ctx, c.rev, c.path, e)
		if err != nil {
			return err
		}
		props = s.nodeProps(d, e)
	}
	type child struct {
		name string
		d    dirent
	}
	var children []child
	if c.wantContents && c.rev > 0 {
		commit, err := s.repo.Translator().Revision(c.rev)
		if err != nil {
			return err
		}
		entries, err := s.repo.Store().ListDir(ctx, commit.ID, c.path)
		if err != nil {
			return err
		}
		for _, ce := range entries {
			d, err := s.dirent(ctx, c.rev, joinPath(c.path, ce.Name), ce)
			if err != nil {
				return err
			}
			children = append(children, child{name: ce.Name, d: d})
		}
	}
	return s.w.Success(func(w *svn.Writer) {
		w.Int(c.rev)
		writeProps(w, props)
		w.ListBegin()
		for _, ch := range children {
			w.ListBegin().Text(ch.name)
			ch.d.write(w)
			w.ListEnd()
		}
		w.ListEnd()
		if c.wantIprops {
			w.ListBegin().ListEnd()
		}
	})
}

type logCmd struct {
	targets      []string
	start, end   int
	changedPaths bool
	limit        int
}

func (c *logCmd) parse(s *Session, params *svn.Tuple) error {
	targets, err := params.Texts()
	if err != nil {
		return err
	}
	for _, t := range targets {
		c.targets = append(c.targets, s.resolve(t))
	}
	if len(c.targets) == 0 {
		c.targets = []string{s.dir}
	}
	start, startOK, err := params.OptNumber()
	if err != nil {
		return err
	}
	end, endOK, err := params.OptNumber()
	if err != nil {
		return err
	}
	if c.start, err = s.revision(start, startOK); err != nil {
		return err
	}
	if c.end, err = s.revision(end, endOK); err != nil {
		return err
	}
	if c.changedPaths, err = params.Bool(); err != nil {
		return err
	}
	// strict-node has no meaning without copies across branches.
	if _, err := params.BoolOr(false); err != nil {
		return err
	}
	if params.More() {
		limit, err := params.Number()
		if err != nil {
			return err
		}
		c.limit = int(limit)
	}
	return nil
}

func (c *logCmd) paths() []string { return c.targets }

func (c *logCmd) serve(ctx context.Context, s *Session) error {
	tr := s.repo.Translator()
	step := -1
	if c.start < c.end {
		step = 1
	}
	sent := 0
	for rev := c.start; ; rev += step {
		if rev > 0 {
			entry, err := tr.CacheEntry(ctx, rev)
			if err != nil {
				return err
			}
			if touchesAny(entry.Touches, c.targets) {
				commit, err := tr.Revision(rev)
				if err != nil {
					return err
				}
				s.w.ListBegin()
				s.w.ListBegin()
				if c.changedPaths {
					writeChangedPaths(s.w, entry, rev)
				}
				s.w.ListEnd()
				s.w.Int(rev).
					OptText(commit.Author.Name, true).
					OptText(svn.FormatDate(commit.Committer.When), true).
					OptText(commit.Message, true).
					Bool(false).
					Bool(false).
					Number(0).
					ListBegin().ListEnd().
					Bool(false)
				s.w.ListEnd()
				if err := s.w.Err(); err != nil {
					return err
				}
				sent++
				if c.limit > 0 && sent >= c.limit {
					break
				}
			}
		}
		if rev == c.end {
			break
		}
	}
	s.w.Word("done")
	return s.w.Success(nil)
}

func touchesAny(touches func(string) bool, targets []string) bool {
	for _, t := range targets {
		if touches(t) {
			return true
		}
	}
	return false
}

// writeChangedPaths writes "( path action ( [ copy-path copy-rev ] ) ( kind text-mods prop-mods ) )"
// for every path of entry. Git only records blobs, so every node is a file.
func writeChangedPaths(w *svn.Writer, entry *revision.CacheEntry, rev int) {
	for _, p := range entry.ChangedPaths() {
		rec, _ := entry.Change(p)
		action := "M"
		switch {
		case rec.Added():
			action = "A"
		case rec.Deleted():
			action = "D"
		}
		w.ListBegin().Text("/" + p).Word(action).ListBegin()
		if from, ok := entry.CopiedFrom(p); ok {
			w.Text("/" + from).Int(rev - 1)
		}
		w.ListEnd()
		w.ListBegin().Text(git.KindFile.String()).Bool(!rec.Deleted()).Bool(false).ListEnd()
		w.ListEnd()
	}
}

type revProplist struct {
	sessionPaths
	rev int
}

func (c *revProplist) parse(s *Session, params *svn.Tuple) error {
	rev, err := params.Number()
	if err != nil {
		return err
	}
	c.dir = s.dir
	c.rev, err = s.revision(rev, true)
	return err
}

func (c *revProplist) serve(_ context.Context, s *Session) error {
	props, err := s.revProps(c.rev)
	if err != nil {
		return err
	}
	return s.w.Success(func(w *svn.Writer) { writeProps(w, props) })
}

type revProp struct {
	sessionPaths
	rev  int
	name string
}

func (c *revProp) parse(s *Session, params *svn.Tuple) error {
	rev, err := params.Number()
	if err != nil {
		return err
	}
	if c.name, err = params.Text(); err != nil {
		return err
	}
	c.dir = s.dir
	c.rev, err = s.revision(rev, true)
	return err
}

func (c *revProp) serve(_ context.Context, s *Session) error {
	props, err := s.revProps(c.rev)
	if err != nil {
		return err
	}
	value, ok := "", false
	for _, p := range props {
		if p.name == c.name {
			value, ok = p.value, true
		}
	}
	return s.w.Success(func(w *svn.Writer) { w.OptText(value, ok) })
}

type prop struct {
	name, value string
}

func writeProps(w *svn.Writer, props []prop) {
	w.ListBegin()
	for _, p := range props {
		w.ListBegin().Text(p.name).Text(p.value).ListEnd()
	}
	w.ListEnd()
}

// revProps returns the revision properties of rev. Revision 0 only carries
// a date, taken from the first commit.
func (s *Session) revProps(rev int) ([]prop, error) {
	tr := s.repo.Translator()
	if rev == 0 {
		first, err := tr.Revision(1)
		if err != nil {
			return nil, nil
		}
		return []prop{{propDate, svn.FormatDate(first.Committer.When)}}, nil
	}
	c, err := tr.Revision(rev)
	if err != nil {
		return nil, err
	}
	return []prop{
		{propAuthor, c.Author.Name},
		{propDate, svn.FormatDate(c.Committer.When)},
		{propLog, c.Message},
	}, nil
}

// node looks p up in revision rev. Revision 0 is an empty root directory.
func (s *Session) node(ctx context.Context, rev int, p string) (git.TreeEntry, error) {
	if rev == 0 {
		if p == "" {
			return git.TreeEntry{Kind: git.KindDir}, nil
		}
		return git.TreeEntry{Name: path.Base(p)}, nil
	}
	c, err := s.repo.Translator().Revision(rev)
	if err != nil {
		return git.TreeEntry{}, err
	}
	return s.repo.Store().Stat(ctx, c.ID, p)
}

type dirent struct {
	kind       git.EntryKind
	size       int64
	hasProps   bool
	createdRev int
	date       string
	author     string
}

// dirent describes the node e found at p in revision rev. created-rev is
// the last revision at or before rev that changed p.
func (s *Session) dirent(ctx context.Context, rev int, p string, e git.TreeEntry) (dirent, error) {
	tr := s.repo.Translator()
	created, err := tr.LastChanged(ctx, p, rev)
	if err != nil {
		return dirent{}, err
	}
	d := dirent{
		kind:       e.Kind,
		hasProps:   e.Executable || e.Symlink,
		createdRev: created,
	}
	if e.Kind == git.KindFile {
		d.size = e.Size
	}
	if created > 0 {
		c, err := tr.Revision(created)
		if err != nil {
			return dirent{}, err
		}
		d.date = svn.FormatDate(c.Committer.When)
		d.author = c.Author.Name
	}
	return d, nil
}

// write emits "kind size has-props created-rev ( [ date ] ) ( [ author ] )".
func (d dirent) write(w *svn.Writer) {
	w.Word(d.kind.String()).
		Number(uint64(d.size)).
		Bool(d.hasProps).
		Int(d.createdRev).
		OptText(d.date, d.date != "").
		OptText(d.author, d.author != "")
}

func (s *Session) nodeProps(d dirent, e git.TreeEntry) []prop {
	props := []prop{
		{propCommittedRev, strconv.Itoa(d.createdRev)},
		{propCommittedDate, d.date},
		{propLastAuthor, d.author},
		{propUUID, s.repo.UUID()},
	}
	if e.Executable {
		props = append(props, prop{propExecutable, "*"})
	}
	if e.Symlink {
		props = append(props, prop{propSpecial, "*"})
	}
	return props
}

func joinPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}
