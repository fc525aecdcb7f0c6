package device

// MsgData carries one raw receiver line, terminator included.
type MsgData struct {
	Data []byte
}

// MsgSubscribe registers the sender as the consumer of receiver bytes.
type MsgSubscribe struct{}

type msgFatal struct {
	err error
}
