package lists_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gelecek/folder-uploader/internal/lists"
	"github.com/stretchr/testify/require"
)

func TestFetch(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/6/lists" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"lists":[{"list_id":"l1","user_data":"staff"},{"list_id":"l2","user_data":"guests"}]}`))
	}))
	t.Cleanup(srv.Close)

	client, err := lists.NewClient(srv.URL+"/6/lists", time.Second)
	require.NoError(t, err)
	got, err := client.Fetch(t.Context())
	require.NoError(t, err)
	require.Equal(t, []lists.List{
		{ListID: "l1", UserData: "staff"},
		{ListID: "l2", UserData: "guests"},
	}, got)
	require.Equal(t, "staff (l1)", got[0].Label())
}

func TestFetch_ContentType(t *testing.T) {
	t.Parallel()
	for _, contentType := range []string{"text/json", "text/plain; charset=utf-8", ""} {
		t.Run(contentType, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header()["Content-Type"] = []string{contentType}
				_, _ = w.Write([]byte(`{"lists":[{"list_id":"l1","user_data":"staff"}]}`))
			}))
			t.Cleanup(srv.Close)

			client, err := lists.NewClient(srv.URL, time.Second)
			require.NoError(t, err)
			got, err := client.Fetch(t.Context())
			require.NoError(t, err)
			require.Equal(t, []lists.List{{ListID: "l1", UserData: "staff"}}, got)
		})
	}
}

func TestFetch_Fail(t *testing.T) {
	t.Parallel()
	type given struct {
		status      int
		contentType string
		body        string
	}
	cases := []struct {
		scenario string
		given    given
		then     string
	}{
		{"status", given{http.StatusInternalServerError, "text/plain", "boom"}, "unexpected status: 500, body: boom"},
		{"content type", given{http.StatusOK, "text/html", "<html>"}, "decoding json response failed, content type text/html"},
		{"json", given{http.StatusOK, "application/json", "{"}, "decoding json response failed"},
	}
	for _, tc := range cases {
		t.Run(tc.scenario, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", tc.given.contentType)
				w.WriteHeader(tc.given.status)
				_, _ = w.Write([]byte(tc.given.body))
			}))
			t.Cleanup(srv.Close)

			client, err := lists.NewClient(srv.URL, time.Second)
			require.NoError(t, err)
			_, err = client.Fetch(t.Context())
			require.Error(t, err)
			require.ErrorContains(t, err, tc.then)
		})
	}

	t.Run("timeout", func(t *testing.T) {
		done := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-done:
			}
		}))
		t.Cleanup(srv.Close)
		t.Cleanup(func() { close(done) })

		client, err := lists.NewClient(srv.URL, 50*time.Millisecond)
		require.NoError(t, err)
		_, err = client.Fetch(t.Context())
		require.Error(t, err)
	})
}

func TestNewClient_Fail(t *testing.T) {
	t.Parallel()
	for _, u := range []string{"", "192.168.18.70:5000/6/lists", "/6/lists"} {
		_, err := lists.NewClient(u, time.Second)
		require.Error(t, err, u)
	}
}

func TestSelect(t *testing.T) {
	t.Parallel()
	all := []lists.List{
		{ListID: "l1", UserData: "staff"},
		{ListID: "staff", UserData: "other"},
	}
	got, err := lists.Select(all, "staff")
	require.NoError(t, err)
	require.Equal(t, "staff", got.ListID, "id wins over user data")

	got, err = lists.Select(all, "other")
	require.NoError(t, err)
	require.Equal(t, "staff", got.ListID)

	_, err = lists.Select(all, "missing")
	require.ErrorIs(t, err, lists.ErrNotFound)
}
