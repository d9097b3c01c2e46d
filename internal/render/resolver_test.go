package render

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"
)

type fakeBlobs struct {
	objects map[string][]byte
}

var errObjectMissing = errors.New("object not found")

func (b fakeBlobs) Open(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := b.objects[key]
	if !ok {
		return nil, errObjectMissing
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func TestParseAssetRef(t *testing.T) {
	cases := []struct {
		in   string
		want AssetRef
		ok   bool
	}{
		{"https://cdn.example.com/a.png", Remote("https://cdn.example.com/a.png"), true},
		{"/uploads/a.png", Remote("/uploads/a.png"), true},
		{"stored:schools/1/a.png", Stored("schools/1/a.png"), true},
		{"blob:schools/1/a.png", Stored("schools/1/a.png"), true},
		{"schools/1/a.png", Stored("schools/1/a.png"), true},
		{"  ", AssetRef{}, false},
		{"stored:", AssetRef{}, false},
	}
	for _, tc := range cases {
		got, ok := ParseAssetRef(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Errorf("ParseAssetRef(%q) = %+v, %v; want %+v, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestHTTPResolver_RemoteAbsoluteAndRelative(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/uploads/a.png":
			_, _ = w.Write([]byte("relative"))
		case "/abs.png":
			_, _ = w.Write([]byte("absolute"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	resolver, err := NewResolver(nil, ResolverOptions{BaseURL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}

	data, err := resolver.Resolve(context.Background(), Remote(srv.URL+"/abs.png"))
	if err != nil || string(data) != "absolute" {
		t.Fatalf("absolute fetch: %q, %v", data, err)
	}
	data, err = resolver.Resolve(context.Background(), Remote("/uploads/a.png"))
	if err != nil || string(data) != "relative" {
		t.Fatalf("relative fetch: %q, %v", data, err)
	}

	_, err = resolver.Resolve(context.Background(), Remote("/missing.png"))
	if !errors.Is(err, ErrAssetUnavailable) {
		t.Fatalf("non-2xx must map to ErrAssetUnavailable, got %v", err)
	}
}

func TestHTTPResolver_RelativeWithoutBase(t *testing.T) {
	resolver, err := NewResolver(nil, ResolverOptions{})
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	if _, err := resolver.Resolve(context.Background(), Remote("/a.png")); !errors.Is(err, ErrAssetUnavailable) {
		t.Fatalf("expected ErrAssetUnavailable, got %v", err)
	}
}

func TestHTTPResolver_SizeLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("x"), 64))
	}))
	defer srv.Close()

	resolver, err := NewResolver(nil, ResolverOptions{BaseURL: srv.URL, MaxBytes: 16})
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	_, err = resolver.Resolve(context.Background(), Remote(srv.URL+"/big.png"))
	if !errors.Is(err, ErrAssetUnavailable) || !errors.Is(err, errAssetTooLarge) {
		t.Fatalf("expected size limit error, got %v", err)
	}
}

func TestHTTPResolver_RemoteHostAllowlist(t *testing.T) {
	var hits atomic.Int32
	internal := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("secret"))
	}))
	defer internal.Close()
	cdn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/redirect.png" {
			http.Redirect(w, r, internal.URL+"/a.png", http.StatusFound)
			return
		}
		_, _ = w.Write([]byte("cdn"))
	}))
	defer cdn.Close()

	cdnURL, err := url.Parse(cdn.URL)
	if err != nil {
		t.Fatalf("parse cdn url: %v", err)
	}
	resolver, err := NewResolver(nil, ResolverOptions{AllowedHosts: []string{cdnURL.Host}, Timeout: time.Second})
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}

	data, err := resolver.Resolve(context.Background(), Remote(cdn.URL+"/a.png"))
	if err != nil || string(data) != "cdn" {
		t.Fatalf("allowed host fetch: %q, %v", data, err)
	}

	blocked := []string{
		internal.URL + "/a.png",
		cdn.URL + "/redirect.png",
		"file:///etc/passwd",
	}
	for _, raw := range blocked {
		_, err := resolver.Resolve(context.Background(), Remote(raw))
		if !errors.Is(err, ErrAssetUnavailable) || !errors.Is(err, errHostNotAllowed) {
			t.Errorf("%s: expected host rejection, got %v", raw, err)
		}
	}
	if n := hits.Load(); n != 0 {
		t.Fatalf("disallowed host was contacted %d times", n)
	}
}

func TestHTTPResolver_Stored(t *testing.T) {
	blobs := fakeBlobs{objects: map[string][]byte{"schools/1/a.png": []byte("png")}}
	resolver, err := NewResolver(blobs, ResolverOptions{})
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}

	data, err := resolver.Resolve(context.Background(), Stored("schools/1/a.png"))
	if err != nil || string(data) != "png" {
		t.Fatalf("stored read: %q, %v", data, err)
	}

	_, err = resolver.Resolve(context.Background(), Stored("missing-key"))
	if !errors.Is(err, ErrAssetUnavailable) || !errors.Is(err, errObjectMissing) {
		t.Fatalf("expected wrapped not-found, got %v", err)
	}
	var assetErr *AssetError
	if !errors.As(err, &assetErr) || assetErr.Ref != Stored("missing-key") {
		t.Fatalf("expected AssetError for the ref, got %v", err)
	}
}

func TestNewResolver_RejectsRelativeBase(t *testing.T) {
	if _, err := NewResolver(nil, ResolverOptions{BaseURL: "cdn.example.com"}); err == nil {
		t.Fatalf("expected error for base url without scheme")
	}
}

func TestDecodeImage_RejectsGarbage(t *testing.T) {
	if _, err := decodeImage([]byte("not an image")); err == nil {
		t.Fatalf("expected decode error")
	}
	if _, err := decodeImage(pngBytes(t, 2, 2)); err != nil {
		t.Fatalf("decode png: %v", err)
	}
}
