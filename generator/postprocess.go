package generator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	ErrEmptyPayload     = errors.New("model returned empty payload")
	ErrMalformedPayload = errors.New("model returned malformed json")
	ErrMissingSafe      = errors.New("verdict payload has no boolean 'safe' field")
)

var fenceRe = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")

// stripCodeFence 去掉模型偶尔包裹的 ```json 代码块。
func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if m := fenceRe.FindStringSubmatch(s); len(m) == 2 {
		return strings.TrimSpace(m[1])
	}
	return s
}

// ParseVerdict validates an untrusted moderation payload field by field.
// 'safe' must be a JSON boolean; 'reason' is used only when it is a string.
func ParseVerdict(raw string) (Verdict, error) {
	payload := stripCodeFence(raw)
	if payload == "" {
		return Verdict{}, ErrEmptyPayload
	}
	if !gjson.Valid(payload) {
		return Verdict{}, ErrMalformedPayload
	}
	doc := gjson.Parse(payload)
	if !doc.IsObject() {
		return Verdict{}, fmt.Errorf("%w: top level is %s", ErrMalformedPayload, doc.Type)
	}

	safe := doc.Get("safe")
	if safe.Type != gjson.True && safe.Type != gjson.False {
		return Verdict{}, ErrMissingSafe
	}

	v := Verdict{Safe: safe.Bool()}
	if reason := doc.Get("reason"); reason.Type == gjson.String {
		v.Reason = strings.TrimSpace(reason.String())
	}
	return v, nil
}
