package sessions

import (
	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/skyward-school/skyward/internal/auth"
	"github.com/skyward-school/skyward/internal/krypto"
)

// Values are stored as strings so the cookie codec doesn't need any
// types registered.
const (
	keyID       = "sid"
	keyUserID   = "user_id"
	keyUsername = "username"
	keyName     = "name"
	keyRole     = "role"
)

// User is the account a session is logged in as.
type User struct {
	ID       uuid.UUID
	Username auth.Username
	Name     string
	Role     auth.Role
}

// UserFromAuth copies the session relevant fields of an authenticated user.
func UserFromAuth(u auth.User) User {
	return User{
		ID:       u.ID,
		Username: u.Username,
		Name:     u.Name,
		Role:     u.Role,
	}
}

type Session struct {
	base      *sessions.Session
	needsSave bool
}

func (s *Session) NeedsSave() bool {
	return s.needsSave
}

// ID returns the identifier of the session. It changes every time
// the session is renewed.
func (s *Session) ID() (string, bool) {
	id, ok := s.base.Values[keyID].(string)
	return id, ok && id != ""
}

func (s *Session) newID() error {
	token, err := krypto.GenerateToken()
	if err != nil {
		return err
	}

	s.needsSave = true
	s.base.Values[keyID] = token.Hex()
	return nil
}

// User returns the logged in user, if any.
func (s *Session) User() (User, bool) {
	rawID, ok := s.base.Values[keyUserID].(string)
	if !ok {
		return User{}, false
	}

	id, err := uuid.Parse(rawID)
	if err != nil {
		return User{}, false
	}

	username, _ := s.base.Values[keyUsername].(string)
	name, _ := s.base.Values[keyName].(string)
	role, _ := s.base.Values[keyRole].(string)

	return User{
		ID:       id,
		Username: auth.Username(username),
		Name:     name,
		Role:     auth.Role(role),
	}, true
}

// Renew discards everything in the session, gives it a new identifier
// and logs in u.
func (s *Session) Renew(u User) error {
	s.clearValues()

	err := s.newID()
	if err != nil {
		return err
	}

	s.base.Values[keyUserID] = u.ID.String()
	s.base.Values[keyUsername] = string(u.Username)
	s.base.Values[keyName] = u.Name
	s.base.Values[keyRole] = string(u.Role)
	return nil
}

// Clear discards everything in the session and expires the cookie
// on the next save.
func (s *Session) Clear() {
	s.clearValues()
	s.base.Options.MaxAge = -1
	s.needsSave = true
}

func (s *Session) clearValues() {
	for k := range s.base.Values {
		delete(s.base.Values, k)
	}
}
