package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/tabletop/internal/dependencies/mocks"
)

type ServiceSuite struct {
	suite.Suite
	clock   *mocks.MockClock
	service *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.service = New(s.clock, Config{Secret: "admin-secret"})
}

func (s *ServiceSuite) TestIssuedTokenValidates() {
	token, err := s.service.Issue("operator")
	s.Require().NoError(err)

	claims, err := s.service.Validate(token)
	s.Require().NoError(err)

	s.Equal("operator", claims.Subject)
	s.NotEmpty(claims.ID)
	s.True(s.clock.Now().Equal(claims.IssuedAt))
	s.True(s.clock.Now().Add(time.Hour).Equal(claims.ExpiresAt))
}

func (s *ServiceSuite) TestExpiredTokenIsRejected() {
	token, err := s.service.Issue("operator")
	s.Require().NoError(err)

	s.clock.Advance(2 * time.Hour)

	_, err = s.service.Validate(token)
	s.ErrorIs(err, ErrInvalidToken)
}

func (s *ServiceSuite) TestTokenFromOtherSecretIsRejected() {
	other := New(s.clock, Config{Secret: "someone-else"})
	token, err := other.Issue("operator")
	s.Require().NoError(err)

	_, err = s.service.Validate(token)
	s.ErrorIs(err, ErrInvalidToken)
}

func (s *ServiceSuite) TestUnsignedTokenIsRejected() {
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Issuer:    issuer,
		ExpiresAt: jwt.NewNumericDate(s.clock.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	s.Require().NoError(err)

	_, err = s.service.Validate(token)
	s.ErrorIs(err, ErrInvalidToken)
}

func (s *ServiceSuite) TestTokenWithoutExpiryIsRejected() {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer: issuer,
	}).SignedString([]byte("admin-secret"))
	s.Require().NoError(err)

	_, err = s.service.Validate(token)
	s.ErrorIs(err, ErrInvalidToken)
}

func (s *ServiceSuite) TestGarbageIsRejected() {
	_, err := s.service.Validate("not.a.token")
	s.ErrorIs(err, ErrInvalidToken)

	_, err = s.service.Validate("")
	s.ErrorIs(err, ErrInvalidToken)
}

func (s *ServiceSuite) TestUnconfiguredServiceRefusesEverything() {
	svc := New(s.clock, Config{})

	_, err := svc.Issue("operator")
	s.ErrorIs(err, ErrNotConfigured)

	_, err = svc.Validate("anything")
	s.ErrorIs(err, ErrNotConfigured)
}
