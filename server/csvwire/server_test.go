package csvwire_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/geoyogesh/csvscan"
	"github.com/geoyogesh/csvscan/csvclient"
	"github.com/geoyogesh/csvscan/internal/csvformat"
	"github.com/geoyogesh/csvscan/internal/source"
	"github.com/geoyogesh/csvscan/server/csvwire"
)

func startServer(t *testing.T, files map[string]string, idle time.Duration) string {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, body := range files {
		require.NoError(t, afero.WriteFile(fs, name, []byte(body), 0o644))
	}
	reg := source.NewRegistry()
	reg.Register("", source.NewLocalFetcher(fs, "/data"))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- csvwire.Serve(ctx, ln, csvwire.ServerConfig{
			Catalog:     csvscan.NewCatalog(reg, 8),
			Defaults:    csvformat.DefaultOptions(),
			IdleTimeout: idle,
		})
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("server did not stop")
		}
	})
	return ln.Addr().String()
}

func TestServer_SessionsShareCatalog(t *testing.T) {
	addr := startServer(t, map[string]string{"/data/users.csv": "name,age\nAlice,30\nBob,25\n"}, 0)

	c1, err := csvclient.Dial(addr, time.Second)
	require.NoError(t, err)
	defer func() { _ = c1.Close() }()
	c1.SetRWTimeout(5 * time.Second)

	_, err = c1.Exec("CREATE EXTERNAL TABLE users STORED AS CSV LOCATION 'users.csv';")
	require.NoError(t, err)

	c2, err := csvclient.Dial(addr, time.Second)
	require.NoError(t, err)
	defer func() { _ = c2.Close() }()
	c2.SetRWTimeout(5 * time.Second)

	res, err := c2.Exec("SELECT name, age FROM users;")
	require.NoError(t, err)
	require.Equal(t, []string{"name", "age"}, res.Columns)
	require.Equal(t, []string{"utf8", "int64"}, res.Types)
	require.Equal(t, [][]any{{"Alice", float64(30)}, {"Bob", float64(25)}}, res.Rows)

	res, err = c2.Exec("SELECT COUNT(*) FROM users;")
	require.NoError(t, err)
	require.Equal(t, [][]any{{float64(2)}}, res.Rows)
}

func TestServer_ErrorKinds(t *testing.T) {
	addr := startServer(t, map[string]string{
		"/data/bad.csv":   "a\n1\n\"open\n",
		"/data/empty.csv": "",
	}, 0)

	c, err := csvclient.Dial(addr, time.Second)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()
	c.SetRWTimeout(5 * time.Second)

	kindOf := func(sql string) string {
		t.Helper()
		_, err := c.Exec(sql)
		var se *csvclient.ServerError
		require.True(t, errors.As(err, &se), "got %v", err)
		return string(se.Kind)
	}

	require.Equal(t, "acquisition", kindOf("CREATE EXTERNAL TABLE m STORED AS CSV LOCATION 'missing.csv';"))
	require.Equal(t, "header_read", kindOf("CREATE EXTERNAL TABLE e STORED AS CSV LOCATION 'empty.csv';"))
	require.Equal(t, "other", kindOf("SELEC 1;"))

	_, err = c.Exec("CREATE EXTERNAL TABLE bad (a INT) STORED AS CSV LOCATION 'bad.csv';")
	require.NoError(t, err)
	require.Equal(t, "record_parse", kindOf("SELECT * FROM bad;"))

	// the session survives errors
	res, err := c.Exec("SHOW TABLES;")
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
}

func TestServer_IdleTimeoutClosesSession(t *testing.T) {
	addr := startServer(t, nil, 50*time.Millisecond)

	c, err := csvclient.Dial(addr, time.Second)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()
	c.SetRWTimeout(2 * time.Second)

	time.Sleep(200 * time.Millisecond)
	_, err = c.Exec("SHOW TABLES;")
	require.Error(t, err)
}

func TestServe_NilCatalog(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	require.Error(t, csvwire.Serve(context.Background(), ln, csvwire.ServerConfig{}))
}
