package utils

import (
	"context"
	"time"

	"github.com/mojocn/base64Captcha"
)

const captchaTTL = 10 * time.Minute

// redisCaptchaStore implements base64Captcha.Store on Redis so answers survive
// across instances behind a load balancer.
type redisCaptchaStore struct {
	ttl time.Duration
}

// NewRedisCaptchaStore returns a captcha store keyed under "captcha:".
func NewRedisCaptchaStore(ttl time.Duration) base64Captcha.Store {
	if ttl <= 0 {
		ttl = captchaTTL
	}
	return &redisCaptchaStore{ttl: ttl}
}

func (s *redisCaptchaStore) key(id string) string {
	return "captcha:" + id
}

func (s *redisCaptchaStore) Set(id string, value string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return GetRedis().Set(ctx, s.key(id), value, s.ttl).Err()
}

func (s *redisCaptchaStore) Get(id string, clear bool) string {
	v, _ := getMaybeDel(s.key(id), clear)
	return v
}

func (s *redisCaptchaStore) Verify(id, answer string, clear bool) bool {
	v := s.Get(id, clear)
	return v != "" && v == answer
}

var captchaStore = NewRedisCaptchaStore(captchaTTL)

// GenerateCaptcha creates a digit captcha and returns its id and data URI.
func GenerateCaptcha() (string, string, error) {
	driver := base64Captcha.NewDriverDigit(40, 120, 5, 0.7, 80)
	c := base64Captcha.NewCaptcha(driver, captchaStore)
	id, b64, _, err := c.Generate()
	return id, b64, err
}

// VerifyCaptcha checks the answer and consumes the captcha.
func VerifyCaptcha(id, answer string) bool {
	if id == "" || answer == "" {
		return false
	}
	return captchaStore.Verify(id, answer, true)
}

// getMaybeDel reads key and deletes it in the same step when del is set.
func getMaybeDel(key string, del bool) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	rc := GetRedis()
	if !del {
		v, err := rc.Get(ctx, key).Result()
		return v, err == nil
	}
	if v, err := rc.GetDel(ctx, key).Result(); err == nil {
		return v, true
	}
	// Redis < 6.2 has no GETDEL
	script := `local v=redis.call('GET', KEYS[1]); if v then redis.call('DEL', KEYS[1]); end; return v`
	res, err := rc.Eval(ctx, script, []string{key}).Result()
	if err != nil || res == nil {
		return "", false
	}
	s, ok := res.(string)
	return s, ok
}
