// internal/app/system/scheme/credentials.go
package scheme

import (
	"encoding/gob"
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"
)

// Credential values travel inside the login record, which lives in the
// transport session. Each type is gob registered and keeps its secret out of
// fmt and zap output.
func init() {
	gob.Register(&PasswordCredentials{})
	gob.Register(&AnswerCredentials{})
	gob.Register(&TokenCredentials{})
	gob.Register(&CompositeCredentials{})
	gob.Register(&OAuthCredentials{})
	gob.Register(&BearerCredentials{})
}

const redacted = "[REDACTED]"

// PasswordCredentials is a username and password pair.
type PasswordCredentials struct {
	Scheme   string
	Username string
	Password string
}

func (c *PasswordCredentials) SchemeID() string { return c.Scheme }
func (c *PasswordCredentials) Label() string    { return c.Username }

func (c *PasswordCredentials) String() string {
	return fmt.Sprintf("PasswordCredentials{scheme=%s username=%s password=%s}", c.Scheme, c.Username, redacted)
}

func (c *PasswordCredentials) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("scheme_id", c.Scheme)
	enc.AddString("username", c.Username)
	return nil
}

// AnswerCredentials is an answer to the candidate principal's secret question.
type AnswerCredentials struct {
	Scheme      string
	PrincipalID string
	Username    string
	Question    string
	Answer      string
}

func (c *AnswerCredentials) SchemeID() string { return c.Scheme }
func (c *AnswerCredentials) Label() string    { return c.Username }

func (c *AnswerCredentials) String() string {
	return fmt.Sprintf("AnswerCredentials{scheme=%s username=%s answer=%s}", c.Scheme, c.Username, redacted)
}

func (c *AnswerCredentials) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("scheme_id", c.Scheme)
	enc.AddString("username", c.Username)
	enc.AddString("principal_id", c.PrincipalID)
	return nil
}

// TokenCredentials is a one-time code, optionally with the username it was
// issued for.
type TokenCredentials struct {
	Scheme   string
	Username string
	Token    string
}

func (c *TokenCredentials) SchemeID() string { return c.Scheme }
func (c *TokenCredentials) Label() string    { return c.Username }

func (c *TokenCredentials) String() string {
	return fmt.Sprintf("TokenCredentials{scheme=%s username=%s token=%s}", c.Scheme, c.Username, redacted)
}

func (c *TokenCredentials) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("scheme_id", c.Scheme)
	enc.AddString("username", c.Username)
	return nil
}

// CompositeCredentials stands for a set of factors already validated on the
// login record. It carries no secret of its own.
type CompositeCredentials struct {
	Scheme   string
	Username string
	Factors  []string
}

func (c *CompositeCredentials) SchemeID() string { return c.Scheme }
func (c *CompositeCredentials) Label() string    { return c.Username }

func (c *CompositeCredentials) String() string {
	return fmt.Sprintf("CompositeCredentials{scheme=%s username=%s factors=%s}", c.Scheme, c.Username, strings.Join(c.Factors, ","))
}

func (c *CompositeCredentials) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("scheme_id", c.Scheme)
	enc.AddString("username", c.Username)
	enc.AddString("factors", strings.Join(c.Factors, ","))
	return nil
}

// OAuthCredentials is an authorization code returned by a provider.
type OAuthCredentials struct {
	Scheme string
	Code   string
	State  string
}

func (c *OAuthCredentials) SchemeID() string { return c.Scheme }
func (c *OAuthCredentials) Label() string    { return "" }

func (c *OAuthCredentials) String() string {
	return fmt.Sprintf("OAuthCredentials{scheme=%s code=%s}", c.Scheme, redacted)
}

func (c *OAuthCredentials) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("scheme_id", c.Scheme)
	return nil
}

// BearerCredentials is a signed token presented in a request header.
type BearerCredentials struct {
	Scheme string
	Token  string
}

func (c *BearerCredentials) SchemeID() string { return c.Scheme }
func (c *BearerCredentials) Label() string    { return "" }

func (c *BearerCredentials) String() string {
	return fmt.Sprintf("BearerCredentials{scheme=%s token=%s}", c.Scheme, redacted)
}

func (c *BearerCredentials) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("scheme_id", c.Scheme)
	return nil
}

func typeName(creds Credentials) string {
	if creds == nil {
		return "no credentials"
	}
	return fmt.Sprintf("unexpected %T", creds)
}
