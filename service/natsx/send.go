package natsx

import (
	"context"

	"github.com/nats-io/nats.go"

	"vhrealtime/tools/errs"
)

func newMsg(subject string, data []byte, hdr map[string]string) *nats.Msg {
	// 用 NewMsg 构造，Header 已初始化
	msg := nats.NewMsg(subject)
	msg.Data = data
	for k, v := range hdr {
		msg.Header.Add(k, v)
	}
	return msg
}

func (c *NatsxClient) sendCore(subject string, data []byte, hdr map[string]string) error {
	if err := c.nc.PublishMsg(newMsg(subject, data, hdr)); err != nil {
		return errs.WrapMsg(err, "publish failed")
	}
	return nil
}

func (c *NatsxClient) sendJS(ctx context.Context, subject string, data []byte, hdr map[string]string) error {
	if _, err := c.js.PublishMsg(newMsg(subject, data, hdr), nats.Context(ctx)); err != nil {
		return errs.WrapMsg(err, "jetstream publish failed")
	}
	return nil
}
