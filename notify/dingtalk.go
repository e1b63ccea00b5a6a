package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// DingTalk posts text messages to a custom robot. When a secret is set every
// request is signed with it.
type DingTalk struct {
	webhook string
	secret  string
	client  *resty.Client
	limiter *rate.Limiter
	now     func() time.Time
}

func NewDingTalk(webhook, secret string, timeout, minInterval time.Duration) *DingTalk {
	return &DingTalk{
		webhook: webhook,
		secret:  secret,
		client:  resty.New().SetTimeout(timeout),
		limiter: newLimiter(minInterval),
		now:     time.Now,
	}
}

func (d *DingTalk) Name() string { return "dingtalk" }

// Sign returns the url-escaped HMAC-SHA256 of "<ms>\n<secret>".
func Sign(secret string, ms int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ms, 10) + "\n" + secret))
	return url.QueryEscape(base64.StdEncoding.EncodeToString(mac.Sum(nil)))
}

func (d *DingTalk) signedURL() string {
	if d.secret == "" {
		return d.webhook
	}
	ms := d.now().UnixMilli()
	sep := "&"
	if !strings.Contains(d.webhook, "?") {
		sep = "?"
	}
	return fmt.Sprintf("%s%stimestamp=%d&sign=%s", d.webhook, sep, ms, Sign(d.secret, ms))
}

type dingText struct {
	MsgType string `json:"msgtype"`
	Text    struct {
		Content string `json:"content"`
	} `json:"text"`
	At struct {
		AtMobiles []string `json:"atMobiles"`
		AtUserIDs []string `json:"atUserIds"`
		IsAtAll   bool     `json:"isAtAll"`
	} `json:"at"`
}

type dingReply struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

func (d *DingTalk) Notify(ctx context.Context, title, body string) error {
	if title == "" && body == "" {
		return errors.New("empty message")
	}
	if !d.limiter.Allow() {
		return errRateLimited
	}

	var msg dingText
	msg.MsgType = "text"
	msg.Text.Content = strings.TrimSpace(title + "\n" + body)
	msg.At.AtMobiles = []string{}
	msg.At.AtUserIDs = []string{}

	var reply dingReply
	resp, err := d.client.R().
		SetContext(ctx).
		SetBody(msg).
		SetResult(&reply).
		ForceContentType("application/json").
		Post(d.signedURL())
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("http %d", resp.StatusCode())
	}
	if reply.ErrCode != 0 {
		return fmt.Errorf("dingtalk error %d: %s", reply.ErrCode, reply.ErrMsg)
	}
	return nil
}

var errRateLimited = errors.New("rate limited, message dropped")

func newLimiter(every time.Duration) *rate.Limiter {
	if every <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(every), 1)
}
