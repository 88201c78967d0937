package utils

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cppla/classifieds/config"
)

func throttleKey(parts ...string) string {
	return "throttle:" + strings.Join(parts, ":")
}

// SignupCooldownTry enforces a short cooldown between signup attempts per IP.
func SignupCooldownTry(ip string) bool {
	sec := config.Get().RegisterAttemptCooldownSec
	if sec <= 0 {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	ok, err := GetRedis().SetNX(ctx, throttleKey("signup", "cooldown", ip), "1", time.Duration(sec)*time.Second).Result()
	if err != nil {
		return true
	}
	return ok
}

// SignupDailyAllowed reports whether ip is still under today's signup cap.
func SignupDailyAllowed(ip string) bool {
	limit := config.Get().RegisterMaxPerIPPerDay
	if limit <= 0 {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	n, err := GetRedis().Get(ctx, signupDayKey(ip)).Int()
	if err == redis.Nil {
		return true
	}
	if err != nil {
		return true
	}
	return n < limit
}

// SignupDailyIncrement counts a successful signup for ip until midnight.
func SignupDailyIncrement(ip string) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	rc := GetRedis()
	key := signupDayKey(ip)
	if err := rc.Incr(ctx, key).Err(); err != nil {
		return
	}
	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
	_ = rc.ExpireAt(ctx, key, midnight).Err()
}

func signupDayKey(ip string) string {
	return throttleKey("signup", "day", ip, time.Now().Format("20060102"))
}

// EmailCooldownTry limits how often one account can trigger outgoing mail
// such as verification resends and password reset links.
func EmailCooldownTry(kind, account string) bool {
	sec := config.Get().EmailCooldownSec
	if sec <= 0 {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	ok, err := GetRedis().SetNX(ctx, throttleKey("mail", kind, strings.ToLower(account)), "1", time.Duration(sec)*time.Second).Result()
	if err != nil {
		return true
	}
	return ok
}
