package botapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu    sync.Mutex
	calls []string
	errs  []error
}

func (o *recordingObserver) ObserveRequest(endpoint string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, endpoint)
	o.errs = append(o.errs, err)
}

func TestBaseURLForHost(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"localhost", "http://localhost:8080"},
		{"example.com:3000", "http://example.com:8080"},
		{"10.0.0.5:80", "http://10.0.0.5:8080"},
		{"[::1]:3000", "http://[::1]:8080"},
		{"", "http://localhost:8080"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BaseURLForHost(tt.host), "host %q", tt.host)
	}
}

func TestHostName(t *testing.T) {
	assert.Equal(t, "example.com", HostName("example.com:3000"))
	assert.Equal(t, "::1", HostName("[::1]:3000"))
	assert.Equal(t, "dash.local", HostName("Dash.Local"))
	assert.Equal(t, "localhost", HostName(""))
}

func TestParsePermission(t *testing.T) {
	p, err := ParsePermission("Moderator")
	require.NoError(t, err)
	assert.Equal(t, PermModerator, p)
	assert.Equal(t, uint8(2), p.Level())

	_, err = ParsePermission("vip")
	assert.ErrorIs(t, err, ErrInvalidPermission)
	assert.Equal(t, uint8(255), Permission("vip").Level())
	assert.Equal(t, uint8(0), PermAll.Level())
	assert.Equal(t, uint8(3), PermBroadcaster.Level())
}

func TestCommandsDecodesKeyedMap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/getcoms", r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		io.WriteString(w, `{"hello":{"Response":"hi there","Perm":"all"},"so":{"response":"go follow","perm":"moderator","count":4}}`)
	}))
	defer srv.Close()

	coms, err := New(srv.URL).Commands(context.Background())
	require.NoError(t, err)
	require.Len(t, coms, 2)
	assert.Equal(t, Command{Name: "hello", Response: "hi there", Perm: PermAll}, coms["hello"])
	assert.Equal(t, "so", coms["so"].Name)
	assert.Equal(t, PermModerator, coms["so"].Perm)
	assert.Equal(t, 4, coms["so"].Count)
	assert.Equal(t, []string{"hello", "so"}, SortedNames(coms))
}

func TestCommandsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	coms, err := New(srv.URL).Commands(context.Background())
	require.NoError(t, err)
	assert.Empty(t, coms)
}

func TestAddCommandBody(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/addcom", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		io.WriteString(w, `{"Status":"Command successfully added"}`)
	}))
	defer srv.Close()

	err := New(srv.URL).AddCommand(context.Background(), Command{Name: "lurk", Response: "enjoy the lurk", Perm: "Subscriber"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"CommandName": "lurk",
		"Response":    "enjoy the lurk",
		"Perm":        "subscriber",
	}, got)
}

func TestAddCommandValidation(t *testing.T) {
	c := New("http://127.0.0.1:1")

	assert.ErrorIs(t, c.AddCommand(context.Background(), Command{Name: " "}), ErrEmptyName)
	assert.ErrorIs(t, c.AddCommand(context.Background(), Command{Name: "x", Perm: "vip"}), ErrInvalidPermission)
}

func TestDeleteCommandsBody(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/delcom", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	require.NoError(t, New(srv.URL).DeleteCommands(context.Background(), []string{"a", "b"}))
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestQuotesParsesIDs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"1":{"Quote":"first","Timestamp":"2021-01-02","Submitter":"liam"},"12":{"Quote":"later","Timestamp":"2021-03-04","Submitter":"sam"}}`)
	}))
	defer srv.Close()

	quotes, err := New(srv.URL).Quotes(context.Background())
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	assert.Equal(t, Quote{ID: 12, Quote: "later", Timestamp: "2021-03-04", Submitter: "sam"}, quotes[12])
}

func TestQuotesBadID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"one":{"Quote":"x"}}`)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Quotes(context.Background())
	assert.Error(t, err)
}

func TestBanHistoryAndStats(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/getbanhistory", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"User":"spammer","Reason":"big follows","Timestamp":"2021-01-01 10:00:00"}]`)
	})
	mux.HandleFunc("/getstats", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"Commands":3,"Quotes":2,"Bans":1,"TopCommand":"hello","TopComCount":9,"TopChatter":"liam","TopChatCount":40}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL)
	bans, err := c.BanHistory(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []BanRecord{{User: "spammer", Reason: "big follows", Timestamp: "2021-01-01 10:00:00"}}, bans)

	stats, err := c.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Commands: 3, Quotes: 2, Bans: 1, TopCommand: "hello", TopComCount: 9, TopChatter: "liam", TopChatCount: 40}, stats)
}

func TestBanHistoryNullIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `null`)
	}))
	defer srv.Close()

	bans, err := New(srv.URL).BanHistory(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, bans)
	assert.Empty(t, bans)
}

func TestCheckAuthAndAddOAuth(t *testing.T) {
	var token string
	mux := http.NewServeMux()
	mux.HandleFunc("/checkauth", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `true`)
	})
	mux.HandleFunc("/addoauth", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&token))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL)
	ok, err := c.CheckAuth(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, c.Ping(context.Background()))

	require.NoError(t, c.AddOAuth(context.Background(), "ABC"))
	assert.Equal(t, "ABC", token)
}

func TestNon2xxIsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"Status":"Couldn't delete all commands"}`)
	}))
	defer srv.Close()

	obs := &recordingObserver{}
	err := New(srv.URL, WithObserver(obs)).DeleteCommands(context.Background(), []string{"nope"})

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, EndpointDeleteCommand, se.Endpoint)
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.Contains(t, se.Body, "Couldn't delete")
	assert.Equal(t, []string{EndpointDeleteCommand}, obs.calls)
	assert.Error(t, obs.errs[0])
}

func TestNetworkErrorIsWrapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := New(url, WithTimeout(time.Second)).Commands(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), EndpointGetCommands)

	var se *StatusError
	assert.False(t, errors.As(err, &se))
}
