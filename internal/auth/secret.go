package auth

import "golang.org/x/crypto/bcrypt"

// HashWebhookSecret hashes a company's inbound webhook secret with configured cost.
func HashWebhookSecret(secret string, cost int) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// VerifyWebhookSecret reports whether plain matches the stored hash.
func VerifyWebhookSecret(hashed, plain string) bool {
	if hashed == "" || plain == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain)) == nil
}
