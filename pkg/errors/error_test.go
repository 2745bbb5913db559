package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"
)

type ErrorTestSuite struct {
	suite.Suite
}

func TestErrorSuite(t *testing.T) {
	suite.Run(t, new(ErrorTestSuite))
}

func (suite *ErrorTestSuite) TestNewError() {
	err := New(ErrCodeInvalidConfiguration, "invalid configuration")
	suite.NotNil(err)
	suite.Equal(ErrCodeInvalidConfiguration, err.Code)
	suite.Equal("invalid configuration", err.Message)
	suite.Nil(err.Cause)
}

func (suite *ErrorTestSuite) TestNewfError() {
	err := Newf(ErrCodeServerError, "server rejected symbol: %s", "AAPL")
	suite.NotNil(err)
	suite.Equal(ErrCodeServerError, err.Code)
	suite.Equal("server rejected symbol: AAPL", err.Message)
	suite.Nil(err.Cause)
}

func (suite *ErrorTestSuite) TestWrapError() {
	cause := errors.New("underlying error")
	err := Wrap(ErrCodeConnectFailed, "dial failed", cause)
	suite.NotNil(err)
	suite.Equal(ErrCodeConnectFailed, err.Code)
	suite.Equal("dial failed", err.Message)
	suite.Equal(cause, err.Cause)
}

func (suite *ErrorTestSuite) TestWrapfError() {
	cause := errors.New("underlying error")
	err := Wrapf(ErrCodeSendFailed, cause, "failed to send subscribe for symbol: %s", "AAPL")
	suite.NotNil(err)
	suite.Equal(ErrCodeSendFailed, err.Code)
	suite.Equal("failed to send subscribe for symbol: AAPL", err.Message)
	suite.Equal(cause, err.Cause)
}

func (suite *ErrorTestSuite) TestErrorString() {
	err := New(ErrCodeInvalidConfiguration, "invalid configuration")
	suite.Equal("[100] invalid configuration", err.Error())
}

func (suite *ErrorTestSuite) TestErrorStringWithCause() {
	cause := errors.New("underlying error")
	err := Wrap(ErrCodeConnectFailed, "dial failed", cause)
	suite.Equal("[200] dial failed: underlying error", err.Error())
}

func (suite *ErrorTestSuite) TestUnwrap() {
	cause := errors.New("underlying error")
	err := Wrap(ErrCodeReceiveFailed, "read failed", cause)
	suite.Equal(cause, err.Unwrap())
}

func (suite *ErrorTestSuite) TestUnwrapNil() {
	err := New(ErrCodeMalformedMessage, "malformed message")
	suite.Nil(err.Unwrap())
}

func (suite *ErrorTestSuite) TestGetCode() {
	err := New(ErrCodeMalformedMessage, "malformed message")
	suite.Equal(ErrCodeMalformedMessage, GetCode(err))
}

func (suite *ErrorTestSuite) TestGetCodeFromWrapped() {
	cause := New(ErrCodeReceiveFailed, "read failed")
	err := Wrap(ErrCodeConnectionClosed, "connection closed", cause)
	// GetCode should return the outermost error's code
	suite.Equal(ErrCodeConnectionClosed, GetCode(err))
}

func (suite *ErrorTestSuite) TestGetCodeFromStandardError() {
	err := errors.New("standard error")
	suite.Equal(ErrCodeUnknown, GetCode(err))
}

func (suite *ErrorTestSuite) TestHasCode() {
	err := New(ErrCodeHeartbeatTimeout, "no message within heartbeat interval")
	suite.True(HasCode(err, ErrCodeHeartbeatTimeout))
	suite.False(HasCode(err, ErrCodeConnectFailed))
}

func (suite *ErrorTestSuite) TestIsError() {
	cause := errors.New("underlying error")
	err := Wrap(ErrCodeRequestFailed, "request failed", cause)
	suite.True(Is(err, cause))
}

func (suite *ErrorTestSuite) TestAsError() {
	err := New(ErrCodeCallbackFailed, "handler returned error")
	var structured *Error
	suite.True(As(err, &structured))
	suite.Equal(ErrCodeCallbackFailed, structured.Code)
}

func (suite *ErrorTestSuite) TestErrorCodeValues() {
	// Verify the category bases have expected values
	suite.Equal(ErrorCode(1), ErrCodeUnknown)
	suite.Equal(ErrorCode(100), ErrCodeInvalidConfiguration)
	suite.Equal(ErrorCode(200), ErrCodeConnectFailed)
	suite.Equal(ErrorCode(300), ErrCodeMalformedMessage)
	suite.Equal(ErrorCode(400), ErrCodeServerError)
	suite.Equal(ErrorCode(500), ErrCodeCallbackFailed)
	suite.Equal(ErrorCode(600), ErrCodeRequestFailed)
}

func (suite *ErrorTestSuite) TestIsFatal() {
	suite.True(IsFatal(New(ErrCodeAuthRejected, "bad token")))
	suite.True(IsFatal(New(ErrCodeRetriesExhausted, "gave up reconnecting")))
	suite.True(IsFatal(New(ErrCodeInvalidConfiguration, "bad options")))
	suite.False(IsFatal(New(ErrCodeMalformedMessage, "bad payload")))
	suite.False(IsFatal(New(ErrCodeCallbackFailed, "handler error")))
	suite.False(IsFatal(New(ErrCodeServerError, "transient server error")))
}

func (suite *ErrorTestSuite) TestIsFatalStandardError() {
	suite.False(IsFatal(errors.New("standard error")))
	suite.False(IsFatal(nil))
}

func (suite *ErrorTestSuite) TestIsFatalWrappedCause() {
	cause := New(ErrCodeAuthRejected, "bad token")
	err := Wrap(ErrCodeServerError, "server error event", cause)
	// Classification follows the outermost code
	suite.False(IsFatal(err))
	suite.True(IsFatal(cause))
}
