package integration

import (
	"fmt"
	"time"
)

// TestUser generates unique test user credentials using timestamp
func TestUser(suffix string) (email, password string) {
	ts := time.Now().UnixNano()
	email = fmt.Sprintf("test-%d-%s@example.com", ts, suffix)
	password = "TestPassword123!"
	return
}

// LoginBody builds a login request body with a fixed set of device
// signals. Vary screenResolution to simulate a different device.
func LoginBody(email, password, captchaToken, screenResolution string) map[string]interface{} {
	return map[string]interface{}{
		"email":         email,
		"password":      password,
		"captcha_token": captchaToken,
		"device": map[string]string{
			"user_agent":        "Mozilla/5.0 (integration)",
			"language":          "en-US",
			"screen_resolution": screenResolution,
		},
	}
}
