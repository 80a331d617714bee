package sessions

import (
	"errors"
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/skyward-school/skyward/internal/krypto"
)

const CookieName = "skyward-session"

var ErrKeyPairs = errors.New("session keys must come in pairs of a hash key and an encryption key")

// Store keeps sessions in a signed and encrypted cookie.
type Store struct {
	store  *sessions.CookieStore
	secure bool
}

// NewStore creates a cookie store. keys are used in pairs: a hash key
// followed by an encryption key. The first pair encodes new cookies,
// the other pairs are only used to decode, which allows keys to be rotated.
//
// Cookies are always marked Secure when secure is true, otherwise only
// when the request arrived over TLS.
func NewStore(keys []krypto.Key, secure bool) (*Store, error) {
	if len(keys) == 0 || len(keys)%2 != 0 {
		return nil, ErrKeyPairs
	}

	pairs := make([][]byte, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k.SecretValue())
	}

	cs := sessions.NewCookieStore(pairs...)
	cs.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	// Session cookies, they are gone when the browser closes.
	cs.MaxAge(0)

	return &Store{
		store:  cs,
		secure: secure,
	}, nil
}

// Get returns the session of the request. A cookie that can't be
// decoded, for example because it was signed with a key that was
// rotated out, results in a new session.
func (s *Store) Get(r *http.Request) (*Session, error) {
	base, err := s.store.New(r, CookieName)
	if base == nil {
		return nil, err
	}

	sess := &Session{base: base}
	if _, ok := sess.ID(); !ok {
		err = sess.newID()
		if err != nil {
			return nil, err
		}
	}

	return sess, nil
}

// Save writes the session cookie to w.
func (s *Store) Save(r *http.Request, w http.ResponseWriter, sess *Session) error {
	sess.base.Options.Secure = s.secure || r.TLS != nil

	err := s.store.Save(r, w, sess.base)
	if err != nil {
		return err
	}

	sess.needsSave = false
	return nil
}
