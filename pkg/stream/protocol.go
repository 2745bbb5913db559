package stream

import "encoding/json"

const (
	messageTypeSubscribe   = "subscribe"
	messageTypeUnsubscribe = "unsubscribe"
)

// controlMessage is the outbound protocol message shape, one per symbol per
// registry mutation.
type controlMessage struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
}

func subscribeMessage(symbol string) []byte {
	data, _ := json.Marshal(controlMessage{Type: messageTypeSubscribe, Symbol: symbol})

	return data
}

func unsubscribeMessage(symbol string) []byte {
	data, _ := json.Marshal(controlMessage{Type: messageTypeUnsubscribe, Symbol: symbol})

	return data
}
