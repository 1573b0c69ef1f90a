package store

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
)

var _ Store = (*CookieStore)(nil)

// cookieValue is what gets encoded into each cookie. The expiry travels with
// the value so an expired cookie replayed by a client is still rejected.
type cookieValue struct {
	Value     string `json:"v"`
	ExpiresAt int64  `json:"e"`
}

type pendingCookie struct {
	entry
	removed bool
}

// CookieStore implements Store on top of the cookies of a single HTTP request.
// Create one per request; writes are emitted on the response immediately and are
// visible to later reads through the same CookieStore.
type CookieStore struct {
	w       http.ResponseWriter
	r       *http.Request
	codec   *securecookie.SecureCookie
	pending map[string]pendingCookie
	secure  bool
	path    string
	nowFunc func() time.Time
}

// CookieOption configures a CookieStore.
type CookieOption func(*CookieStore)

// WithSecureCookies marks emitted cookies as Secure
func WithSecureCookies(secure bool) CookieOption {
	return func(s *CookieStore) {
		s.secure = secure
	}
}

// WithCookiePath sets the Path attribute of emitted cookies (default "/")
func WithCookiePath(path string) CookieOption {
	return func(s *CookieStore) {
		s.path = path
	}
}

// WithCookieNowFunc overrides the clock used to expire decoded values.
func WithCookieNowFunc(now func() time.Time) CookieOption {
	return func(s *CookieStore) {
		s.nowFunc = now
	}
}

// MaxEncodedLength bounds an encoded cookie value. Base64 and encryption roughly
// double a token, so the securecookie default of 4096 rejects JWTs above ~2.2 KB.
// Browsers may still drop a cookie whose name, value and attributes exceed 4096 bytes.
const MaxEncodedLength = 8192

// NewCodec builds the securecookie codec shared by all CookieStores of a server.
// blockKey may be nil to sign without encrypting.
func NewCodec(hashKey, blockKey []byte) *securecookie.SecureCookie {
	codec := securecookie.New(hashKey, blockKey)
	codec.SetSerializer(securecookie.JSONEncoder{})
	// Expiry is enforced from the encoded value instead of the codec timestamp
	codec.MaxAge(0)
	codec.MaxLength(MaxEncodedLength)
	return codec
}

// NewCookieStore creates a store bound to one request/response pair.
func NewCookieStore(w http.ResponseWriter, r *http.Request, codec *securecookie.SecureCookie, opts ...CookieOption) *CookieStore {
	s := &CookieStore{
		w:       w,
		r:       r,
		codec:   codec,
		pending: make(map[string]pendingCookie),
		path:    "/",
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the decoded value of the named cookie
func (s *CookieStore) Get(key string) (string, error) {
	if p, ok := s.pending[key]; ok {
		if p.removed || p.expired(s.nowFunc()) {
			return "", ErrNotFound
		}
		return p.Value, nil
	}

	c, err := s.r.Cookie(key)
	if err != nil || c.Value == "" {
		return "", ErrNotFound
	}

	var v cookieValue
	if err := s.codec.Decode(key, c.Value, &v); err != nil {
		// Tampered or foreign cookies are indistinguishable from absent ones
		return "", ErrNotFound
	}
	if !time.Unix(v.ExpiresAt, 0).After(s.nowFunc()) {
		return "", ErrNotFound
	}
	return v.Value, nil
}

// Set emits a cookie that expires at expiresAt
func (s *CookieStore) Set(key, value string, expiresAt time.Time) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}

	encoded, err := s.codec.Encode(key, cookieValue{Value: value, ExpiresAt: expiresAt.Unix()})
	if err != nil {
		return err
	}

	http.SetCookie(s.w, &http.Cookie{
		Name:     key,
		Value:    encoded,
		Path:     s.path,
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	s.pending[key] = pendingCookie{entry: entry{Value: value, ExpiresAt: expiresAt}}
	return nil
}

// Remove emits an expired cookie so the client drops it
func (s *CookieStore) Remove(key string) error {
	p, seen := s.pending[key]
	_, err := s.r.Cookie(key)
	if (seen && p.removed) || (!seen && err != nil) {
		return nil
	}

	http.SetCookie(s.w, &http.Cookie{
		Name:     key,
		Value:    "",
		Path:     s.path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	s.pending[key] = pendingCookie{removed: true}
	return nil
}
