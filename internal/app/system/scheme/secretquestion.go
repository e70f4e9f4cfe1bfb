// internal/app/system/scheme/secretquestion.go
package scheme

import (
	"context"
	"strings"

	"github.com/dalemusser/strataauth/internal/app/system/authconfig"
	"github.com/dalemusser/strataauth/internal/app/system/autherr"
	"github.com/dalemusser/strataauth/internal/app/system/userlogin"
	"github.com/dalemusser/strataauth/internal/domain/models"
	"go.uber.org/zap"
)

// AttrSecretQuestion is the session attribute holding the question shown to
// the candidate principal.
const AttrSecretQuestion = "secretquestion.question"

// SecretQuestion is a second factor: it only works once an earlier factor
// has established a candidate principal on the login record.
//
// Config keys: question_param (default "question"), answer_param (default
// "answer"), challenge_url (default "/login/secret-question").
type SecretQuestion struct {
	Base
	dir           Directory
	log           *zap.Logger
	questionParam string
	answerParam   string
}

func NewSecretQuestion(d Deps) *SecretQuestion {
	return &SecretQuestion{dir: d.Directory, log: d.logger()}
}

func (s *SecretQuestion) Configure(id string, cfg authconfig.Values) error {
	if err := s.configureBase(id, cfg, "/login/secret-question"); err != nil {
		return err
	}
	s.questionParam = cfg.String("question_param", "question")
	s.answerParam = cfg.String("answer_param", "answer")
	return nil
}

// BeforeAuthentication makes sure the question is on the session for the
// form that will be rendered if this attempt fails.
func (s *SecretQuestion) BeforeAuthentication(sess Session) {
	s.question(sess)
}

// question returns the candidate's stored question, caching it on the session.
func (s *SecretQuestion) question(sess Session) string {
	if v, ok := sess.Attribute(AttrSecretQuestion); ok {
		if q, _ := v.(string); q != "" {
			return q
		}
	}
	rec := sess.Record()
	if rec == nil || rec.Principal() == nil {
		return ""
	}
	q, err := s.dir.SecretQuestion(sess.Context(), rec.Principal().ID)
	if err != nil {
		s.log.Debug("no secret question for candidate", zap.String("scheme_id", s.ID()), zap.Error(err))
		return ""
	}
	sess.SetAttribute(AttrSecretQuestion, q)
	return q
}

func (s *SecretQuestion) Credentials(sess Session) (Credentials, error) {
	rec := sess.Record()
	if rec == nil {
		return nil, nil
	}
	candidate := rec.Principal()
	if candidate == nil {
		return nil, nil
	}
	stored := s.question(sess)

	answer, ok := sess.RequestParam(s.answerParam)
	if !ok || strings.TrimSpace(answer) == "" {
		return nil, nil
	}
	question, ok := sess.RequestParam(s.questionParam)
	if !ok || strings.TrimSpace(question) == "" {
		question = stored
	}
	return &AnswerCredentials{
		Scheme:      s.ID(),
		PrincipalID: candidate.ID,
		Username:    candidate.Name,
		Question:    strings.TrimSpace(question),
		Answer:      answer,
	}, nil
}

func (s *SecretQuestion) Authenticate(ctx context.Context, creds Credentials) (*models.Principal, error) {
	return Verify(ctx, s.ID(), creds, s.verify)
}

func (s *SecretQuestion) verify(ctx context.Context, creds Credentials) (*models.Principal, error) {
	c, ok := creds.(*AnswerCredentials)
	if !ok || c.Scheme != s.ID() {
		return nil, autherr.New(autherr.ErrIncorrectCredentials, s.ID(), typeName(creds))
	}
	rec := userlogin.Current(ctx)
	if rec == nil || rec.Principal() == nil || rec.Principal().ID != c.PrincipalID {
		return nil, autherr.New(autherr.ErrIncorrectCredentials, s.ID(), "answer is not for the current candidate")
	}
	stored, err := s.dir.SecretQuestion(ctx, c.PrincipalID)
	if err != nil {
		return nil, incorrect(s.ID(), err)
	}
	if !strings.EqualFold(strings.TrimSpace(stored), c.Question) {
		return nil, autherr.New(autherr.ErrIncorrectCredentials, s.ID(), "question does not match")
	}
	p, err := s.dir.VerifySecretAnswer(ctx, c.PrincipalID, c.Answer)
	if err != nil {
		s.log.Debug("secret answer rejected", zap.String("scheme_id", s.ID()), zap.String("principal_id", c.PrincipalID))
		return nil, incorrect(s.ID(), err)
	}
	return p, nil
}
