package stream

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/quantfold/tickstream/internal/logger"
	"github.com/quantfold/tickstream/pkg/errors"
)

type SubscriptionTestSuite struct {
	suite.Suite

	transport *fakeTransport
	handler   *recordingHandler
	reported  *errorCollector
}

func TestSubscriptionSuite(t *testing.T) {
	suite.Run(t, new(SubscriptionTestSuite))
}

func (suite *SubscriptionTestSuite) SetupTest() {
	suite.transport = newFakeTransport()
	suite.handler = &recordingHandler{}
	suite.reported = &errorCollector{}
}

func (suite *SubscriptionTestSuite) testOptions() Options {
	opts := DefaultOptions()
	opts.Token = "test-token"
	opts.Endpoint = "wss://stream.example.test/ws"
	opts.HistoryCapacity = 3
	opts.ReconnectMinDelay = time.Millisecond
	opts.ReconnectMaxDelay = 5 * time.Millisecond
	opts.OnError = suite.reported.collect

	return opts
}

func (suite *SubscriptionTestSuite) connect(symbols []string, opts Options) *Subscription {
	sub, err := connectWith(context.Background(), symbols, suite.handler, opts,
		suite.transport, logger.NewNopLogger())
	suite.Require().NoError(err)

	return sub
}

// sentControls decodes the control messages written to the transport.
func (suite *SubscriptionTestSuite) sentControls() []controlMessage {
	raw := suite.transport.sentMessages()

	out := make([]controlMessage, 0, len(raw))

	for _, data := range raw {
		var msg controlMessage
		suite.Require().NoError(json.Unmarshal([]byte(data), &msg))
		out = append(out, msg)
	}

	return out
}

func (suite *SubscriptionTestSuite) countControls(msgType, symbol string) int {
	count := 0

	for _, msg := range suite.sentControls() {
		if msg.Type == msgType && msg.Symbol == symbol {
			count++
		}
	}

	return count
}

func (suite *SubscriptionTestSuite) TestConnectSubscribesInitialSymbols() {
	sub := suite.connect([]string{"AAPL", "MSFT"}, suite.testOptions())
	defer sub.Close()

	suite.Equal(StateConnected, sub.State())
	suite.Equal([]string{"AAPL", "MSFT"}, sub.ActiveSymbols())

	suite.Equal(1, suite.countControls("subscribe", "AAPL"))
	suite.Equal(1, suite.countControls("subscribe", "MSFT"))
}

func (suite *SubscriptionTestSuite) TestTicksReachCallbackAndHistoryInOrder() {
	sub := suite.connect([]string{"AAPL", "MSFT"}, suite.testOptions())
	defer sub.Close()

	suite.transport.push(`{"type":"trade","data":[{"s":"AAPL","p":100,"v":10,"t":1704067200000}]}`)
	suite.transport.push(`{"type":"trade","data":[{"s":"AAPL","p":101,"v":10,"t":1704067201000}]}`)
	suite.transport.push(`{"type":"trade","data":[{"s":"MSFT","p":200,"v":5,"t":1704067202000}]}`)
	suite.transport.push(`{"type":"trade","data":[{"s":"AAPL","p":102,"v":10,"t":1704067203000}]}`)
	suite.transport.push(`{"type":"trade","data":[{"s":"AAPL","p":103,"v":10,"t":1704067204000}]}`)

	suite.Eventually(func() bool {
		return suite.handler.count() == 5
	}, time.Second, 5*time.Millisecond)

	suite.Equal([]float64{100, 101, 200, 102, 103}, suite.handler.prices())

	// Capacity 3: the oldest AAPL tick fell off.
	aapl, ok := sub.History("AAPL")
	suite.True(ok)
	suite.Len(aapl, 3)
	suite.Equal(101.0, aapl[0].Price)
	suite.Equal(103.0, aapl[2].Price)

	msft, ok := sub.History("MSFT")
	suite.True(ok)
	suite.Len(msft, 1)
	suite.Equal(200.0, msft[0].Price)

	latest := sub.Latest("AAPL")
	suite.True(latest.IsSome())
	suite.Equal(103.0, latest.Unwrap().Price)
}

func (suite *SubscriptionTestSuite) TestSubscribeIsIdempotent() {
	sub := suite.connect([]string{"AAPL"}, suite.testOptions())
	defer sub.Close()

	suite.NoError(sub.Subscribe([]string{"AAPL"}, nil))
	suite.NoError(sub.Subscribe([]string{"AAPL"}, nil))

	// Exactly one protocol message for AAPL across all three subscriptions.
	suite.Equal(1, suite.countControls("subscribe", "AAPL"))
	suite.Equal([]string{"AAPL"}, sub.ActiveSymbols())
}

func (suite *SubscriptionTestSuite) TestSubscribeAddsNewSymbol() {
	sub := suite.connect([]string{"AAPL"}, suite.testOptions())
	defer sub.Close()

	suite.NoError(sub.Subscribe([]string{"TSLA"}, nil))

	suite.Equal(1, suite.countControls("subscribe", "TSLA"))
	suite.Equal([]string{"AAPL", "TSLA"}, sub.ActiveSymbols())
}

func (suite *SubscriptionTestSuite) TestUnsubscribeUnknownSymbolIsNoop() {
	sub := suite.connect([]string{"AAPL"}, suite.testOptions())
	defer sub.Close()

	sub.Unsubscribe([]string{"NFLX"})

	suite.Equal(0, suite.countControls("unsubscribe", "NFLX"))
	suite.Equal([]string{"AAPL"}, sub.ActiveSymbols())
}

func (suite *SubscriptionTestSuite) TestUnsubscribeRemovesHistoryAndStopsDelivery() {
	sub := suite.connect([]string{"AAPL"}, suite.testOptions())
	defer sub.Close()

	suite.transport.push(`{"type":"trade","data":[{"s":"AAPL","p":100,"v":1,"t":1}]}`)

	suite.Eventually(func() bool {
		return suite.handler.count() == 1
	}, time.Second, 5*time.Millisecond)

	sub.Unsubscribe([]string{"AAPL"})

	suite.Equal(1, suite.countControls("unsubscribe", "AAPL"))

	_, ok := sub.History("AAPL")
	suite.False(ok)

	// A late tick for the unsubscribed symbol is ignored.
	suite.transport.push(`{"type":"trade","data":[{"s":"AAPL","p":101,"v":1,"t":2}]}`)
	time.Sleep(20 * time.Millisecond)
	suite.Equal(1, suite.handler.count())
}

func (suite *SubscriptionTestSuite) TestSubscriptionsReplayedAfterReconnect() {
	sub := suite.connect([]string{"AAPL", "MSFT"}, suite.testOptions())
	defer sub.Close()

	suite.transport.Drop()

	suite.Eventually(func() bool {
		return suite.transport.connects() >= 2 && sub.State() == StateConnected
	}, time.Second, 5*time.Millisecond)

	// Both symbols were re-subscribed on the new connection.
	suite.Eventually(func() bool {
		return suite.countControls("subscribe", "AAPL") >= 2 &&
			suite.countControls("subscribe", "MSFT") >= 2
	}, time.Second, 5*time.Millisecond)

	suite.Equal([]string{"AAPL", "MSFT"}, sub.ActiveSymbols())
}

func (suite *SubscriptionTestSuite) TestCloseClearsHistoryAndIsIdempotent() {
	sub := suite.connect([]string{"AAPL"}, suite.testOptions())

	suite.transport.push(`{"type":"trade","data":[{"s":"AAPL","p":100,"v":1,"t":1}]}`)

	suite.Eventually(func() bool {
		return suite.handler.count() == 1
	}, time.Second, 5*time.Millisecond)

	suite.NoError(sub.Close())
	suite.NoError(sub.Close())

	suite.Equal(StateClosed, sub.State())

	_, ok := sub.History("AAPL")
	suite.False(ok)

	err := sub.Subscribe([]string{"TSLA"}, nil)
	suite.True(errors.HasCode(err, errors.ErrCodeConnectionClosed))
}

func (suite *SubscriptionTestSuite) TestRetainHistoryOnClose() {
	opts := suite.testOptions()
	opts.RetainHistoryOnClose = true

	sub := suite.connect([]string{"AAPL"}, opts)

	suite.transport.push(`{"type":"trade","data":[{"s":"AAPL","p":100,"v":1,"t":1}]}`)

	suite.Eventually(func() bool {
		return suite.handler.count() == 1
	}, time.Second, 5*time.Millisecond)

	suite.NoError(sub.Close())

	history, ok := sub.History("AAPL")
	suite.True(ok)
	suite.Len(history, 1)
}

func (suite *SubscriptionTestSuite) TestConnectFailsFastOnInvalidOptions() {
	_, err := Connect(context.Background(), []string{"AAPL"}, suite.handler,
		Options{}) //nolint:exhaustruct // missing token is the point
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (suite *SubscriptionTestSuite) TestConnectFailsWhenRetriesExhausted() {
	suite.transport.connectErrs = []error{
		errors.New(errors.ErrCodeConnectFailed, "refused"),
		errors.New(errors.ErrCodeConnectFailed, "refused"),
	}

	opts := suite.testOptions()
	opts.MaxReconnectAttempts = 2

	_, err := connectWith(context.Background(), []string{"AAPL"}, suite.handler, opts,
		suite.transport, logger.NewNopLogger())
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeRetriesExhausted))
}

func (suite *SubscriptionTestSuite) TestLatestForUntrackedSymbolIsNone() {
	sub := suite.connect([]string{"AAPL"}, suite.testOptions())
	defer sub.Close()

	suite.True(sub.Latest("TSLA").IsNone())
}
