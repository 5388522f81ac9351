package battlenet

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAccountProfileRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/profile/user/wow" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("namespace"); got != "profile-eu" {
			t.Errorf("namespace: got %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token-value" {
			t.Errorf("authorization: got %q", got)
		}
		w.Write([]byte(`{"wow_accounts":[]}`))
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL))

	body, err := client.AccountProfile(context.Background(), RegionEU, "token-value")
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != `{"wow_accounts":[]}` {
		t.Fatalf("unexpected body %s", body)
	}
}

func TestCharacterPathIsLowerCased(t *testing.T) {
	var requestedPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestedPath = r.URL.Path
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL))

	if _, err := client.CharacterProfile(context.Background(), RegionEU, "t", "blackmoore", "Foo"); err != nil {
		t.Fatal(err)
	}
	if requestedPath != "/profile/wow/character/blackmoore/foo" {
		t.Fatalf("unexpected path %q", requestedPath)
	}
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusNotFound, ErrNotFound},
	}

	for _, tc := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))

		client := NewClient(WithBaseURL(server.URL))
		_, err := client.AccountProfile(context.Background(), RegionEU, "t")
		if !errors.Is(err, tc.want) {
			t.Errorf("status %d: expected %v, got %v", tc.status, tc.want, err)
		}
		server.Close()
	}
}

func TestUnexpectedStatusCarriesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("downstream exploded"))
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL))
	_, err := client.AccountProfile(context.Background(), RegionEU, "t")

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusInternalServerError || statusErr.Body != "downstream exploded" {
		t.Fatalf("unexpected status error %+v", statusErr)
	}
}

func TestParseRegion(t *testing.T) {
	for _, valid := range []string{"eu", "us", "kr", "tw"} {
		if _, err := ParseRegion(valid); err != nil {
			t.Errorf("region %q rejected: %v", valid, err)
		}
	}
	for _, invalid := range []string{"", "EU", "cn", "mars"} {
		if _, err := ParseRegion(invalid); err == nil {
			t.Errorf("region %q accepted", invalid)
		}
	}
}
