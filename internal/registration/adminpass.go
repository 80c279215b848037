package registration

import "golang.org/x/crypto/bcrypt"

// HashAdminPassword bcrypt-hashes password for storage in
// configs/config.json's AdminOverridePasswordHash field. This is the
// one credential rgtpd stores at rest rather than as a per-protocol
// shared secret, so unlike the MD5 challenge secret it never needs to
// be recovered in plaintext and bcrypt's one-way hash applies.
func HashAdminPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyAdminPassword reports whether password matches hash, as
// produced by HashAdminPassword.
func VerifyAdminPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
