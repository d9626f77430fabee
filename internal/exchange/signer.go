package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"

	"riskguard/pkg/utils"
)

// Sign вычисляет подпись запроса Kraken Futures:
//
//	digest = SHA256(nonce + postData)
//	sign   = base64(HMAC-SHA512(base64decode(privateKey), urlPath + digest))
func Sign(urlPath, postData, nonce, privateKey string) (string, error) {
	secret, err := base64.StdEncoding.DecodeString(strings.TrimSpace(privateKey))
	if err != nil {
		return "", fmt.Errorf("%w: private key is not base64", ErrInvalidCredentials)
	}

	digest := sha256.Sum256([]byte(nonce + postData))

	mac := hmac.New(sha512.New, secret)
	mac.Write([]byte(urlPath))
	mac.Write(digest[:])

	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// nonceSource выдаёт строго возрастающие nonce в микросекундах.
// При совпадении с предыдущим значением nonce сдвигается на 1.
type nonceSource struct {
	last atomic.Int64
}

func (n *nonceSource) Next() string {
	for {
		now := utils.UnixMicros()
		last := n.last.Load()
		if now <= last {
			now = last + 1
		}
		if n.last.CompareAndSwap(last, now) {
			return strconv.FormatInt(now, 10)
		}
	}
}

// formParam - пара ключ/значение формы с сохранением порядка
type formParam struct {
	key   string
	value string
}

// encodeForm кодирует параметры в порядке добавления.
// url.Values.Encode сортирует ключи, а подпись считается по телу как есть.
func encodeForm(params []formParam) string {
	var sb strings.Builder
	for i, p := range params {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(p.key))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(p.value))
	}
	return sb.String()
}
