package event

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Message is one raw notification as delivered by the channel.
type Message struct {
	ID   string
	Body []byte
}

// SNS notification types that ParseBatch understands.
const (
	TypeNotification             = "Notification"
	TypeSubscriptionConfirmation = "SubscriptionConfirmation"
	TypeUnsubscribeConfirmation  = "UnsubscribeConfirmation"
)

// ErrSubscriptionControl is returned by ParseBatch for SNS subscription
// handshake messages, which carry no user notification.
var ErrSubscriptionControl = errors.New("subscription control message")

// ControlMessage describes an SNS subscription handshake.
type ControlMessage struct {
	Type         string `json:"Type"`
	TopicArn     string `json:"TopicArn"`
	SubscribeURL string `json:"SubscribeURL"`
}

// lambdaEvent is the batch shape handed to a function subscribed to a topic.
type lambdaEvent struct {
	Records []struct {
		EventSource string `json:"EventSource"`
		Sns         struct {
			MessageID string `json:"MessageId"`
			Message   string `json:"Message"`
		} `json:"Sns"`
	} `json:"Records"`
}

// httpNotification is the body of an SNS HTTP(S) endpoint delivery.
type httpNotification struct {
	Type         string `json:"Type"`
	MessageID    string `json:"MessageId"`
	TopicArn     string `json:"TopicArn"`
	Message      string `json:"Message"`
	SubscribeURL string `json:"SubscribeURL"`
}

// ParseBatch splits one channel delivery into its messages. Accepted shapes:
// a Lambda-style {"Records":[{"Sns":{...}}]} batch, a single SNS HTTP
// notification, a bare user payload, or newline-delimited raw payloads.
// A delivery that opens with a JSON object which does not parse is rejected
// as a whole. Messages without an id get a generated one.
func ParseBatch(body []byte) ([]Message, error) {
	data := bytes.TrimSpace(body)
	if len(data) == 0 {
		return nil, errors.New("empty delivery")
	}

	if data[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(data))
		var fields map[string]json.RawMessage
		if err := dec.Decode(&fields); err != nil {
			return nil, fmt.Errorf("malformed envelope: %w", err)
		}
		if !dec.More() {
			if _, ok := fields["Records"]; ok {
				return parseLambdaEvent(data)
			}
			if _, ok := fields["Type"]; ok {
				return parseHTTPNotification(data)
			}
			return []Message{{ID: uuid.NewString(), Body: data}}, nil
		}
		// More values follow the first object: newline-delimited payloads.
	}

	return parseLines(data)
}

// ParseControl extracts the subscription handshake details from a delivery
// for which ParseBatch returned ErrSubscriptionControl.
func ParseControl(body []byte) (ControlMessage, error) {
	var c ControlMessage
	if err := json.Unmarshal(body, &c); err != nil {
		return ControlMessage{}, fmt.Errorf("parsing control message: %w", err)
	}
	return c, nil
}

func parseLambdaEvent(data []byte) ([]Message, error) {
	var ev lambdaEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("parsing records envelope: %w", err)
	}
	msgs := make([]Message, 0, len(ev.Records))
	for _, r := range ev.Records {
		id := r.Sns.MessageID
		if id == "" {
			id = uuid.NewString()
		}
		msgs = append(msgs, Message{ID: id, Body: []byte(r.Sns.Message)})
	}
	return msgs, nil
}

func parseHTTPNotification(data []byte) ([]Message, error) {
	var n httpNotification
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("parsing notification envelope: %w", err)
	}
	switch n.Type {
	case TypeNotification:
	case TypeSubscriptionConfirmation, TypeUnsubscribeConfirmation:
		return nil, ErrSubscriptionControl
	default:
		return nil, fmt.Errorf("unsupported notification type %q", n.Type)
	}
	id := n.MessageID
	if id == "" {
		id = uuid.NewString()
	}
	return []Message{{ID: id, Body: []byte(n.Message)}}, nil
}

func parseLines(data []byte) ([]Message, error) {
	var msgs []Message
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		body := make([]byte, len(line))
		copy(body, line)
		msgs = append(msgs, Message{ID: uuid.NewString(), Body: body})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading delivery lines: %w", err)
	}
	return msgs, nil
}
