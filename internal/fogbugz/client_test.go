package fogbugz

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casesync/casesync/internal/tracker"
	"github.com/casesync/casesync/internal/types"
)

var _ tracker.RemoteSystem = (*Client)(nil)

const apiXML = `<?xml version="1.0" encoding="UTF-8"?>
<response><version>8</version><minversion>1</minversion><url>api.asp?</url></response>`

// newTestServer serves api.xml and hands every command to handle, which
// returns the XML body to send.
func newTestServer(t *testing.T, handle func(cmd string, form url.Values) string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api.xml":
			fmt.Fprint(w, apiXML)
		case "/api.asp":
			if r.Method != http.MethodPost {
				t.Errorf("method = %s, want POST", r.Method)
			}
			if err := r.ParseForm(); err != nil {
				t.Errorf("ParseForm: %v", err)
			}
			fmt.Fprint(w, handle(r.PostForm.Get("cmd"), r.PostForm))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// loggedOn returns a client that has verified the API and holds token "tok".
func loggedOn(t *testing.T, handle func(cmd string, form url.Values) string) *Client {
	t.Helper()
	srv := newTestServer(t, func(cmd string, form url.Values) string {
		if cmd == "logon" {
			return `<response><token>tok</token></response>`
		}
		if got := form.Get("token"); got != "tok" {
			t.Errorf("%s: token = %q, want tok", cmd, got)
		}
		return handle(cmd, form)
	})
	c := NewClient(srv.URL)
	ctx := context.Background()
	ok, err := c.VerifyAPI(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, c.Logon(ctx, "sync@example.com", "secret"))
	return c
}

func TestVerifyAPI(t *testing.T) {
	tests := []struct {
		name       string
		version    int
		minVersion int
		want       bool
	}{
		{"current server", 8, 1, true},
		{"exact version", 5, 5, true},
		{"too old", 4, 1, false},
		{"dropped support", 8, 6, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api.xml" {
					t.Errorf("path = %q, want /api.xml", r.URL.Path)
				}
				fmt.Fprintf(w, `<response><version>%d</version><minversion>%d</minversion><url>api.asp?</url></response>`,
					tt.version, tt.minVersion)
			}))
			defer srv.Close()

			got, err := NewClient(srv.URL + "/").VerifyAPI(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCommandsRequireVerifyAndLogon(t *testing.T) {
	srv := newTestServer(t, func(string, url.Values) string { return `<response/>` })
	c := NewClient(srv.URL)
	ctx := context.Background()

	err := c.Logon(ctx, "a", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VerifyAPI")

	_, err = c.VerifyAPI(ctx)
	require.NoError(t, err)
	_, err = c.SearchChangedCases(ctx, 10, time.Now())
	assert.ErrorIs(t, err, ErrNotLoggedOn)
	// Logoff without a session is a no-op.
	assert.NoError(t, c.Logoff(ctx))
}

func TestLogonError(t *testing.T) {
	srv := newTestServer(t, func(cmd string, form url.Values) string {
		assert.Equal(t, "sync@example.com", form.Get("email"))
		return `<response><error code="1">Incorrect password or username</error></response>`
	})
	c := NewClient(srv.URL)
	ctx := context.Background()
	_, err := c.VerifyAPI(ctx)
	require.NoError(t, err)

	err = c.Logon(ctx, "sync@example.com", "wrong")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "1", apiErr.Code)
	assert.Equal(t, "logon", apiErr.Command)
	assert.Equal(t, "Incorrect password or username", apiErr.Message)
}

func TestSearchChangedCases(t *testing.T) {
	c := loggedOn(t, func(cmd string, form url.Values) string {
		assert.Equal(t, "search", cmd)
		q := form.Get("q")
		assert.True(t, strings.HasPrefix(q, `project:=10 edited:"3/1/2024..`), "q = %q", q)
		assert.Contains(t, form.Get("cols"), "sLatestTextSummary")
		return `<response><cases count="2">
<case ixBug="42" operations="edit,resolve">
  <sTitle>Crash on save</sTitle>
  <sLatestTextSummary>Reproduced on build 12</sLatestTextSummary>
  <ixProject>10</ixProject><ixArea>3</ixArea>
  <ixPersonOpenedBy>60</ixPersonOpenedBy><ixPersonAssignedTo>50</ixPersonAssignedTo>
  <ixStatus>1</ixStatus><ixPriority>2</ixPriority><ixFixFor></ixFixFor>
  <sVersion>1.2</sVersion><sComputer>lab-pc</sComputer>
  <hrsCurrEst>2.5</hrsCurrEst><ixCategory>1</ixCategory>
  <dtClosed></dtClosed><dtDue>2024-03-20T00:00:00Z</dtDue>
  <dtLastUpdated>2024-03-09T10:15:00Z</dtLastUpdated>
</case>
<case ixBug="43"><sTitle>Second</sTitle></case>
</cases></response>`
	})

	cases, err := c.SearchChangedCases(context.Background(), 10, time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, cases, 2)

	got := cases[0]
	assert.Equal(t, 42, got.ID)
	assert.Equal(t, 10, got.Project)
	assert.Equal(t, "Crash on save", got.Title)
	assert.Equal(t, "Reproduced on build 12", got.Description)
	assert.Equal(t, 3, got.Area)
	assert.Equal(t, 60, got.PersonOpenedBy)
	assert.Equal(t, 50, got.PersonAssignedTo)
	assert.Equal(t, 2, got.Priority)
	assert.Equal(t, types.Unset, got.FixFor)
	assert.Equal(t, 2, got.HrsCurrEst)
	assert.Equal(t, "lab-pc", got.Computer)
	assert.Nil(t, got.Closed)
	require.NotNil(t, got.Due)
	assert.True(t, got.Due.Equal(time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)))
	require.NotNil(t, got.LastUpdated)

	second := cases[1]
	assert.Equal(t, 43, second.ID)
	assert.Equal(t, types.Unset, second.Status)
	assert.Equal(t, types.Unset, second.HrsCurrEst)
}

func TestCaseNotFound(t *testing.T) {
	c := loggedOn(t, func(cmd string, form url.Values) string {
		assert.Equal(t, "7", form.Get("q"))
		return `<response><cases count="0"></cases></response>`
	})
	got, err := c.Case(context.Background(), 7)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCreateCase(t *testing.T) {
	var form url.Values
	c := loggedOn(t, func(cmd string, f url.Values) string {
		assert.Equal(t, "new", cmd)
		form = f
		return `<response><case ixBug="123" operations="edit"></case></response>`
	})

	in := types.NewCase()
	in.Project = 10
	in.Title = "Crash on save"
	in.Description = "Incident [IN1|http://spira/1] detected by Ann in SpiraTest.\nBroken"
	in.Category = 7
	in.Status = 0
	in.PersonAssignedTo = 1
	due := time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC)
	in.Due = &due

	got, err := c.CreateCase(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 123, got.ID)
	assert.Equal(t, types.Unset, in.ID, "input must not be modified")

	assert.Equal(t, "10", form.Get("ixProject"))
	assert.Equal(t, "7", form.Get("ixCategory"))
	assert.Equal(t, "1", form.Get("ixPersonAssignedTo"))
	assert.Equal(t, in.Description, form.Get("sEvent"))
	assert.Equal(t, "2024-03-20T09:00:00Z", form.Get("dtDue"))
	for _, key := range []string{"ixFixFor", "ixArea", "ixPriority", "hrsCurrEst", "ixStatus", "sVersion"} {
		_, ok := form[key]
		assert.False(t, ok, "%s should not be sent", key)
	}
}

func TestMilestone(t *testing.T) {
	c := loggedOn(t, func(cmd string, form url.Values) string {
		assert.Equal(t, "viewFixFor", cmd)
		if form.Get("ixFixFor") == "77" {
			return `<response><fixfor><ixFixFor>77</ixFixFor><sFixFor>Sprint 9</sFixFor>
<ixProject>10</ixProject><dt>2024-04-01T00:00:00Z</dt><fAssignable>true</fAssignable></fixfor></response>`
		}
		return `<response></response>`
	})
	ctx := context.Background()

	m, err := c.Milestone(ctx, 77)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, 77, m.ID)
	assert.Equal(t, "Sprint 9", m.Name)
	assert.Equal(t, 10, m.Project)
	assert.True(t, m.Assignable)
	assert.True(t, m.ReleaseDate.Equal(time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)))

	missing, err := c.Milestone(ctx, 78)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCreateMilestone(t *testing.T) {
	c := loggedOn(t, func(cmd string, form url.Values) string {
		assert.Equal(t, "newFixFor", cmd)
		assert.Equal(t, "10", form.Get("ixProject"))
		assert.Equal(t, "1.2(42)", form.Get("sFixFor"))
		assert.Equal(t, "1", form.Get("fAssignable"))
		assert.Equal(t, "2024-04-10T15:30:00Z", form.Get("dtRelease"))
		return `<response><fixFor ixFixFor="88"/></response>`
	})

	m := types.NewMilestone()
	m.Project = 10
	m.Name = "1.2(42)"
	m.ReleaseDate = time.Date(2024, 4, 10, 15, 30, 0, 0, time.UTC)
	got, err := c.CreateMilestone(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, 88, got.ID)
}

func TestRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if r.URL.Path == "/api.xml" {
			if n == 1 {
				http.Error(w, "warming up", http.StatusServiceUnavailable)
				return
			}
			fmt.Fprint(w, apiXML)
			return
		}
		// Every command fails; only idempotent ones are retried.
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithRetryLimit(time.Second))
	ctx := context.Background()
	ok, err := c.VerifyAPI(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(2), calls.Load())

	c.token = "tok"
	calls.Store(0)
	_, err = c.CreateCase(ctx, types.NewCase())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>maintenance</html>")
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, WithRetryLimit(100*time.Millisecond)).VerifyAPI(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to parse response")
}

func TestTransportOptions(t *testing.T) {
	c := NewClient("https://bugs.example.com", WithKeepAlive(false), WithVerifyCertificate(false), WithTimeout(time.Minute))
	tr, ok := c.httpClient.Transport.(*http.Transport)
	require.True(t, ok)
	assert.True(t, tr.DisableKeepAlives)
	require.NotNil(t, tr.TLSClientConfig)
	assert.True(t, tr.TLSClientConfig.InsecureSkipVerify)
	assert.Equal(t, time.Minute, c.httpClient.Timeout)

	def := NewClient("https://bugs.example.com", WithKeepAlive(true))
	tr = def.httpClient.Transport.(*http.Transport)
	assert.False(t, tr.DisableKeepAlives)
	assert.Nil(t, tr.TLSClientConfig)
	assert.Equal(t, DefaultTimeout, def.httpClient.Timeout)

	hc := &http.Client{}
	custom := NewClient("https://bugs.example.com", WithHTTPClient(hc))
	assert.Same(t, hc, custom.httpClient)
	assert.Nil(t, hc.Transport)
}
