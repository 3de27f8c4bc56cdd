package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func memFS(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, body := range files {
		require.NoError(t, afero.WriteFile(fs, name, []byte(body), 0o644))
	}
	return fs
}

func TestParseURL(t *testing.T) {
	cases := []struct {
		in                 string
		scheme, host, path string
	}{
		{"data/users.csv", "", "", "data/users.csv"},
		{"/abs/users.csv", "", "", "/abs/users.csv"},
		{"file:///abs/users.csv", "file", "", "/abs/users.csv"},
		{"HTTPS://example.com/a/b.csv", "https", "example.com", "/a/b.csv"},
		{"s3://bucket/key.csv", "s3", "bucket", "/key.csv"},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			scheme, host, path, err := ParseURL(tc.in)
			require.NoError(t, err)
			require.Equal(t, tc.scheme, scheme)
			require.Equal(t, tc.host, host)
			require.Equal(t, tc.path, path)
		})
	}

	_, _, _, err := ParseURL("")
	require.Error(t, err)
	_, _, _, err = ParseURL("://nohost")
	require.Error(t, err)
}

func TestMakeURL(t *testing.T) {
	require.Equal(t, "s3://bucket/key.csv", MakeURL("s3", "bucket", "key.csv"))
	require.Equal(t, "http://h:8080/a.csv", MakeURL("http", "h:8080", "/a.csv"))
	require.Equal(t, "rel/a.csv", MakeURL("", "", "rel/a.csv"))
}

func TestFileMeta_IsEmpty(t *testing.T) {
	require.True(t, FileMeta{}.IsEmpty())
	require.False(t, FileMeta{Size: 1}.IsEmpty())
}

func TestLocalFetcher_Fetch(t *testing.T) {
	fs := memFS(t, map[string]string{"/data/a.csv": "x\n1\n"})

	t.Run("root relative", func(t *testing.T) {
		f := NewLocalFetcher(fs, "/data")
		b, err := f.Fetch(context.Background(), "a.csv")
		require.NoError(t, err)
		require.Equal(t, "x\n1\n", string(b))
	})

	t.Run("absolute inside root", func(t *testing.T) {
		f := NewLocalFetcher(fs, "/data")
		b, err := f.Fetch(context.Background(), "/data/a.csv")
		require.NoError(t, err)
		require.NotEmpty(t, b)
	})

	t.Run("no root serves any path", func(t *testing.T) {
		b, err := NewLocalFetcher(fs, "").Fetch(context.Background(), "/data/a.csv")
		require.NoError(t, err)
		require.NotEmpty(t, b)
	})

	t.Run("escaping root", func(t *testing.T) {
		f := NewLocalFetcher(fs, "/data/inner")
		for _, loc := range []string{"/data/a.csv", "../a.csv", "x/../../a.csv", "/data/inner/../a.csv"} {
			_, err := f.Fetch(context.Background(), loc)
			var ae *AcquisitionError
			require.True(t, errors.As(err, &ae), loc)
			require.ErrorIs(t, err, ErrOutsideRoot, loc)

			_, err = f.List(context.Background(), loc, ".csv")
			require.ErrorIs(t, err, ErrOutsideRoot, loc)
		}
	})

	t.Run("missing", func(t *testing.T) {
		f := NewLocalFetcher(fs, "/data")
		_, err := f.Fetch(context.Background(), "nope.csv")
		var ae *AcquisitionError
		require.True(t, errors.As(err, &ae))
		require.Equal(t, "nope.csv", ae.Location)
		require.True(t, errors.Is(err, os.ErrNotExist))
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewLocalFetcher(fs, "/data").Fetch(ctx, "a.csv")
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestLocalFetcher_List(t *testing.T) {
	fs := memFS(t, map[string]string{
		"/data/t/b.csv":       "x\n",
		"/data/t/a.CSV":       "x\n2\n",
		"/data/t/notes.txt":   "ignore",
		"/data/t/.hidden.csv": "x\n",
		"/data/t/sub/c.csv":   "",
	})
	f := NewLocalFetcher(fs, "/data")

	metas, err := f.List(context.Background(), "t", ".csv")
	require.NoError(t, err)

	var locs []string
	for _, m := range metas {
		locs = append(locs, m.Location)
	}
	require.Equal(t, []string{"t/a.CSV", "t/b.csv", "t/sub/c.csv"}, locs)
	require.True(t, metas[2].IsEmpty())

	single, err := f.List(context.Background(), "t/notes.txt", ".csv")
	require.NoError(t, err)
	require.Len(t, single, 1)
	require.Equal(t, int64(6), single[0].Size)

	_, err = f.List(context.Background(), "t", ".parquet")
	require.Error(t, err)
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.csv":
			_, _ = w.Write([]byte("a,b\n1,2\n"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.Client())

	b, err := f.Fetch(context.Background(), srv.URL+"/ok.csv")
	require.NoError(t, err)
	require.Equal(t, "a,b\n1,2\n", string(b))

	_, err = f.Fetch(context.Background(), srv.URL+"/missing.csv")
	require.Error(t, err)
	require.Contains(t, err.Error(), "404")

	f.MaxBytes = 3
	_, err = f.Fetch(context.Background(), srv.URL+"/ok.csv")
	require.Error(t, err)
	require.Contains(t, err.Error(), "exceeds")
}

func TestRegistry(t *testing.T) {
	fs := memFS(t, map[string]string{"/d/a.csv": "a\n1\n", "/d/b.csv": "a\n2\n"})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("remote"))
	}))
	defer srv.Close()

	reg := NewRegistry()
	reg.Register("file", NewLocalFetcher(fs, ""))
	reg.Register("http", NewHTTPFetcher(srv.Client()))
	ctx := context.Background()

	b, err := reg.Fetch(ctx, "/d/a.csv")
	require.NoError(t, err)
	require.Equal(t, "a\n1\n", string(b))

	b, err = reg.Fetch(ctx, "file:///d/b.csv")
	require.NoError(t, err)
	require.Equal(t, "a\n2\n", string(b))

	b, err = reg.Fetch(ctx, srv.URL+"/x.csv")
	require.NoError(t, err)
	require.Equal(t, "remote", string(b))

	_, err = reg.Fetch(ctx, "s3://bucket/x.csv")
	require.ErrorIs(t, err, ErrUnknownScheme)
	var ae *AcquisitionError
	require.True(t, errors.As(err, &ae))
	require.True(t, ae.Acquisition())

	metas, err := reg.List(ctx, "/d", ".csv")
	require.NoError(t, err)
	require.Len(t, metas, 2)

	// http has no listing: the location is the single file
	metas, err = reg.List(ctx, srv.URL+"/x.csv", ".csv")
	require.NoError(t, err)
	require.Equal(t, []FileMeta{{Location: srv.URL + "/x.csv"}}, metas)
}

func TestBuildRegistry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("a\n1\n"))
	}))
	defer srv.Close()

	reg, err := BuildRegistry(RegistryConfig{
		Schemes: []string{"file", "http"},
		FS:      memFS(t, map[string]string{"/root/x.csv": "x\n"}),
		Root:    "/root",
	})
	require.NoError(t, err)

	data, err := reg.Fetch(context.Background(), "x.csv")
	require.NoError(t, err)
	require.Equal(t, "x\n", string(data))

	data, err = reg.Fetch(context.Background(), srv.URL+"/a.csv")
	require.NoError(t, err)
	require.Equal(t, "a\n1\n", string(data))

	// https was not configured
	_, err = reg.Fetch(context.Background(), "https://example.invalid/a.csv")
	require.ErrorIs(t, err, ErrUnknownScheme)

	_, err = BuildRegistry(RegistryConfig{Schemes: []string{"ftp"}})
	require.Error(t, err)

	// scheme names are trimmed and lowercased
	reg, err = BuildRegistry(RegistryConfig{Schemes: []string{" HTTP ", "File"}, FS: memFS(t, nil)})
	require.NoError(t, err)
	data, err = reg.Fetch(context.Background(), srv.URL+"/a.csv")
	require.NoError(t, err)
	require.Equal(t, "a\n1\n", string(data))
}
