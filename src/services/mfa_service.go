package services

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	defaultMFAIssuer = "Conciliador"
	mfaQRCodeSize    = 200
)

// MFAEnrollment is what an administrator needs to register an authenticator app.
type MFAEnrollment struct {
	Secret       string `json:"secret"`
	QRCodeBase64 string `json:"qr_code"`
	URL          string `json:"otpauth_url"`
}

// MFAService issues and checks the optional TOTP second factor used at login.
type MFAService struct {
	issuer string
	now    func() time.Time
}

// NewMFAService labels generated secrets with issuer, the name shown in
// authenticator apps. An empty issuer falls back to "Conciliador".
func NewMFAService(issuer string) *MFAService {
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		issuer = defaultMFAIssuer
	}
	return &MFAService{issuer: issuer, now: time.Now}
}

func (s *MFAService) Issuer() string {
	return s.issuer
}

// Enroll creates a TOTP secret for username along with a PNG QR code.
func (s *MFAService) Enroll(username string) (MFAEnrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: username,
	})
	if err != nil {
		return MFAEnrollment{}, fmt.Errorf("failed to generate TOTP secret: %w", err)
	}

	img, err := key.Image(mfaQRCodeSize, mfaQRCodeSize)
	if err != nil {
		return MFAEnrollment{}, fmt.Errorf("failed to render QR code: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return MFAEnrollment{}, fmt.Errorf("failed to encode QR code: %w", err)
	}

	return MFAEnrollment{
		Secret:       key.Secret(),
		QRCodeBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		URL:          key.URL(),
	}, nil
}

// ValidateCode checks a six digit code, accepting one period of clock skew.
func (s *MFAService) ValidateCode(secret, code string) bool {
	code = strings.TrimSpace(code)
	if secret == "" || code == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, s.now().UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}
