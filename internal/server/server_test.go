package server

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/thiagokokada/gitsvn/internal/auth"
	"github.com/thiagokokada/gitsvn/internal/git/gittest"
	"github.com/thiagokokada/gitsvn/internal/repository"
	"github.com/thiagokokada/gitsvn/internal/revision"
	"github.com/thiagokokada/gitsvn/internal/router"
	"github.com/thiagokokada/gitsvn/internal/svn"
	"github.com/thiagokokada/gitsvn/internal/svnerr"
)

// testClient drives the client side of a connection.
type testClient struct {
	t    *testing.T
	conn net.Conn
	r    *svn.Reader
}

func (c *testClient) send(raw string) {
	c.t.Helper()
	if _, err := c.conn.Write([]byte(raw)); err != nil {
		c.t.Fatalf("send %q: %v", raw, err)
	}
}

func (c *testClient) read() svn.Item {
	c.t.Helper()
	it, err := c.r.ReadItem()
	if err != nil {
		c.t.Fatalf("read: %v", err)
	}
	return it
}

func (c *testClient) expect(want string) {
	c.t.Helper()
	if got := c.read().String(); got != strings.TrimSpace(want) {
		c.t.Fatalf("got  %s\nwant %s", got, strings.TrimSpace(want))
	}
}

func text(s string) string {
	return strconv.Itoa(len(s)) + ":" + s
}

func date(minute int) string {
	return text(time.Date(2024, 1, 1, 12, minute, 0, 0, time.UTC).Format(svn.DateFormat))
}

func newTestServer(t *testing.T) (*Server, *repository.Repository) {
	t.Helper()
	fixture := gittest.New(t)
	fixture.Write("README", "hello\n").Write("src/main.go", "package main\n").Commit("first")
	fixture.Write("README", "hello world\n").Write("secret/key.txt", "k").Commit("second")
	fixture.Move("src/main.go", "src/app.go").Commit("rename")

	repo := repository.New(fixture.Store(), revision.NewMemoryStore(), repository.Options{
		Prefix: "/demo",
		Branch: fixture.Branch(),
		UUID:   "6f1c2f52-0000-5000-8000-000000000000",
		Access: auth.Access{AnonymousRead: true, Private: []string{"secret"}},
	})
	t.Cleanup(func() { _ = repo.Close() })
	routes := router.New(map[string]*repository.Repository{"/demo": repo})
	return New(routes, testUsers(t), WithRealm("test")), repo
}

func connect(t *testing.T, srv *Server) *testClient {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.ServeConn(ctx, serverConn)
	}()
	t.Cleanup(func() {
		_ = clientConn.Close()
		cancel()
		<-done
	})
	c := &testClient{t: t, conn: clientConn, r: svn.NewReader(clientConn)}
	c.expect("( success ( 2 2 ( ) ( edit-pipeline svndiff1 absent-entries depth inherited-props log-revprops ) ) )")
	return c
}

func handshakeResponse(url string) string {
	return "( 2 ( edit-pipeline svndiff1 ) " + text(url) + " " + text("test-client") + " ( ) ) "
}

func TestSessionServesCommands(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	c := connect(t, srv)

	c.send(handshakeResponse("svn://localhost/demo"))
	c.expect("( success ( ( PLAIN ANONYMOUS ) 4:test ) )")
	c.send("( ANONYMOUS ( 0: ) ) ")
	c.expect("( success ( ) )")
	c.expect("( success ( " + text("6f1c2f52-0000-5000-8000-000000000000") + " " + text("svn://localhost/demo") + " ( ) ) )")

	c.send("( get-latest-rev ( ) ) ")
	c.expect(ack)
	c.expect("( success ( 3 ) )")

	sum := md5.Sum([]byte("hello world\n"))
	c.send("( get-file ( 6:README ( ) false true ) ) ")
	c.expect(ack)
	c.expect("( success ( ( " + text(hex.EncodeToString(sum[:])) + " ) 3 ( ) ) )")
	if got := c.read(); string(got.Bytes) != "hello world\n" {
		t.Fatalf("content chunk %q", got.Bytes)
	}
	c.expect("0:")
	c.expect("( success ( ) )")

	// Anonymous users are asked for credentials on private paths, and the
	// response follows the exchange without a second acknowledgment.
	c.send("( check-path ( 6:secret ( ) ) ) ")
	c.expect("( success ( ( PLAIN ) 4:test ) )")
	c.send(plainResponse("alice", "secret"))
	c.expect("( success ( ) )")
	c.expect("( success ( dir ) )")

	c.send("( frobnicate ( ) ) ")
	failure := c.read()
	if failure.Kind != svn.ItemList || failure.List[0].Word != "failure" {
		t.Fatalf("expected failure, got %s", failure)
	}
	if code := failure.List[1].List[0].List[0].Number; code != svnerr.CodeRASvnUnknownCmd {
		t.Fatalf("failure code %d", code)
	}

	c.send("( stat ( 6:README ( 1 ) ) ) ")
	c.expect(ack)
	c.expect("( success ( ( file 6 false 1 ( " + date(1) + " ) ( 5:Alice ) ) ) )")

	c.send("( check-path ( 7:missing ( ) ) ) ")
	c.expect(ack)
	c.expect("( success ( none ) )")

	c.send("( log ( ( 0: ) ( 3 ) ( 1 ) true false 0 ) ) ")
	c.expect(ack)
	c.expect("( ( ( 11:/src/app.go A ( 12:/src/main.go 2 ) ( 4:file true false ) ) " +
		"( 12:/src/main.go D ( ) ( 4:file false false ) ) ) " +
		"3 ( 5:Alice ) ( " + date(3) + " ) ( 6:rename ) false false 0 ( ) false )")
	for _, rev := range []uint64{2, 1} {
		entry := c.read()
		if entry.Kind != svn.ItemList || entry.List[1].Number != rev {
			t.Fatalf("expected log entry for r%d, got %s", rev, entry)
		}
	}
	c.expect("done")
	c.expect("( success ( ) )")

	c.send("( get-dir ( 0: ( 3 ) false true ) ) ")
	c.expect(ack)
	c.expect("( success ( 3 ( ) ( " +
		"( 6:README file 12 false 2 ( " + date(2) + " ) ( 5:Alice ) ) " +
		"( 6:secret dir 0 false 2 ( " + date(2) + " ) ( 5:Alice ) ) " +
		"( 3:src dir 0 false 3 ( " + date(3) + " ) ( 5:Alice ) ) ) ) )")

	c.send("( rev-prop ( 2 7:svn:log ) ) ")
	c.expect(ack)
	c.expect("( success ( ( 6:second ) ) )")

	c.send("( rev-proplist ( 1 ) ) ")
	c.expect(ack)
	c.expect("( success ( ( ( 10:svn:author 5:Alice ) ( 8:svn:date " + date(1) + " ) ( 7:svn:log 5:first ) ) ) )")

	c.send("( get-dated-rev ( " + date(2) + " ) ) ")
	c.expect(ack)
	c.expect("( success ( 2 ) )")

	c.send("( reparent ( " + text("svn://localhost/demo/src") + " ) ) ")
	c.expect(ack)
	c.expect("( success ( ) )")
	c.send("( check-path ( 6:app.go ( ) ) ) ")
	c.expect(ack)
	c.expect("( success ( file ) )")

	c.send("( get-file ( 7:nothere ( ) false true ) ) ")
	c.expect(ack)
	failure = c.read()
	if code := failure.List[1].List[0].List[0].Number; code != svnerr.CodeFSNotFound {
		t.Fatalf("failure code %d, want not found", code)
	}

	// The session is still usable after the recoverable failures above.
	c.send("( get-latest-rev ( ) ) ")
	c.expect(ack)
	c.expect("( success ( 3 ) )")
}

func TestSessionEndsWhenForcedAuthenticationFails(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	c := connect(t, srv)
	c.send(handshakeResponse("svn://localhost/demo"))
	c.expect("( success ( ( PLAIN ANONYMOUS ) 4:test ) )")
	c.send("( ANONYMOUS ( 0: ) ) ")
	c.expect(authSucceeded)
	c.read()

	c.send("( check-path ( 6:secret ( ) ) ) ")
	c.expect(plainAnnounce)
	for range 3 {
		c.send(plainResponse("alice", "wrong"))
		c.expect(badCredentials)
	}
	failure := c.read()
	if failure.List[0].Word != "failure" {
		t.Fatalf("expected failure, got %s", failure)
	}
	if code := failure.List[1].List[0].List[0].Number; code != svnerr.CodeRANotAuthorized {
		t.Fatalf("failure code %d, want %d", code, svnerr.CodeRANotAuthorized)
	}
	if it, err := c.r.ReadItem(); !errors.Is(err, io.EOF) {
		t.Fatalf("session kept serving after failed authentication: %v, %v", it, err)
	}
}

func TestSessionRejectsUnknownRepository(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	c := connect(t, srv)
	c.send(handshakeResponse("svn://localhost/nope"))
	failure := c.read()
	if failure.List[0].Word != "failure" {
		t.Fatalf("expected failure, got %s", failure)
	}
	if code := failure.List[1].List[0].List[0].Number; code != svnerr.CodeRASvnReposNotFound {
		t.Fatalf("failure code %d", code)
	}
}

func TestSessionRequiresCredentialsWithoutAnonymousRead(t *testing.T) {
	t.Parallel()

	fixture := gittest.New(t)
	fixture.Write("a", "a").Commit("only")
	repo := repository.New(fixture.Store(), revision.NewMemoryStore(), repository.Options{
		Prefix: "/",
		Branch: fixture.Branch(),
	})
	t.Cleanup(func() { _ = repo.Close() })
	if _, err := repo.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	srv := New(router.New(map[string]*repository.Repository{"/": repo}), testUsers(t), WithRealm("test"))
	c := connect(t, srv)

	c.send(handshakeResponse("svn://localhost/any/path"))
	c.expect(plainAnnounce)
	c.send(plainResponse("alice", "wrong"))
	c.expect(badCredentials)
	c.send(plainResponse("alice", "secret"))
	c.expect(authSucceeded)
	info := c.read()
	if got := string(info.List[1].List[1].Bytes); got != "svn://localhost" {
		t.Fatalf("root url %q", got)
	}
	c.send("( check-path ( 0: ( ) ) ) ")
	c.expect(ack)
	// The session directory "any/path" does not exist in the tree.
	c.expect("( success ( none ) )")
}

func TestServeStopsOnCancel(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ctx, ln) }()

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if _, err := svn.NewReader(conn).ReadItem(); err != nil {
		t.Fatalf("greeting: %v", err)
	}
	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Serve did not return after cancel")
	}
}
