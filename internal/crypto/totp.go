package crypto

import (
	"encoding/base32"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/skip2/go-qrcode"
)

const (
	totpSecretSize = 20
	qrSize         = 256
)

var totpOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// NewTOTPKey generates a 160-bit secret and the otpauth URI for it.
func NewTOTPKey(account, issuer string) (*otp.Key, error) {
	key, err := totp.Generate(generateOpts(account, issuer, nil))
	if err != nil {
		return nil, fmt.Errorf("totp secret generation failed: %w", err)
	}
	return key, nil
}

// ProvisioningURI rebuilds the otpauth URI for an existing secret.
func ProvisioningURI(secret, account, issuer string) (string, error) {
	raw, err := decodeSecret(secret)
	if err != nil {
		return "", err
	}
	key, err := totp.Generate(generateOpts(account, issuer, raw))
	if err != nil {
		return "", fmt.Errorf("building provisioning uri: %w", err)
	}
	return key.URL(), nil
}

// VerifyTOTP accepts the code for the time step containing now and for the
// step on either side of it.
func VerifyTOTP(secret, code string, now time.Time) bool {
	ok, err := totp.ValidateCustom(code, secret, now, totpOpts)
	return err == nil && ok
}

// TOTPCode returns the code for the time step containing t.
func TOTPCode(secret string, t time.Time) (string, error) {
	code, err := totp.GenerateCodeCustom(secret, t, totpOpts)
	if err != nil {
		return "", fmt.Errorf("generating totp code: %w", err)
	}
	return code, nil
}

// ProvisioningQR renders uri as a PNG QR code in a data URL.
func ProvisioningQR(uri string) (string, error) {
	png, err := qrcode.Encode(uri, qrcode.Medium, qrSize)
	if err != nil {
		return "", fmt.Errorf("rendering qr code: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

func generateOpts(account, issuer string, secret []byte) totp.GenerateOpts {
	return totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Period:      totpOpts.Period,
		SecretSize:  totpSecretSize,
		Secret:      secret,
		Digits:      totpOpts.Digits,
		Algorithm:   totpOpts.Algorithm,
	}
}

func decodeSecret(secret string) ([]byte, error) {
	s := strings.ToUpper(strings.ReplaceAll(secret, " ", ""))
	s = strings.TrimRight(s, "=")
	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decoding totp secret: %w", err)
	}
	return key, nil
}
