package main

import (
	"errors"

	"github.com/tidwall/gjson"
)

// Event types delivered by the commerce platform's webhook relay.
const (
	EventOrderCreated = "order.created"
	EventOrderUpdated = "order.updated"
	EventRefundCreate = "refund.created"
	EventRefundUpdate = "refund.updated"
)

var errMalformed = errors.New("malformed event")

// WorkerMessage is one webhook delivery forwarded to SQS:
//
//	{"event_id": "...", "type": "order.updated", "merchant_id": "...",
//	 "data": {"object": {"order": {...}}}}
type WorkerMessage struct {
	EventID    string
	Type       string
	MerchantID string
	Object     []byte // the order or refund payload
}

// parseMessage extracts the envelope fields with gjson so the object payload
// is handed to the order parsers untouched.
func parseMessage(body string) (WorkerMessage, error) {
	if !gjson.Valid(body) {
		return WorkerMessage{}, errMalformed
	}
	root := gjson.Parse(body)
	msg := WorkerMessage{
		EventID:    root.Get("event_id").String(),
		Type:       root.Get("type").String(),
		MerchantID: root.Get("merchant_id").String(),
	}
	obj := root.Get("data.object")
	if msg.Type == "" || msg.MerchantID == "" || !obj.IsObject() {
		return WorkerMessage{}, errMalformed
	}
	msg.Object = []byte(obj.Raw)
	return msg, nil
}
