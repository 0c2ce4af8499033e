package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"jansunwai/models"
	"jansunwai/utils"
)

// AttachmentService issues opaque attachment handles and short-lived signed
// fetch URLs. Binary storage is external; the core only moves handles around.
type AttachmentService struct {
	signingSecret []byte
	urlTTL        time.Duration
	baseURL       string
	clock         utils.Clock
}

// NewAttachmentService wires the attachment handle issuer.
func NewAttachmentService(signingSecret string, urlTTL time.Duration, baseURL string, clock utils.Clock) *AttachmentService {
	return &AttachmentService{
		signingSecret: []byte(signingSecret),
		urlTTL:        urlTTL,
		baseURL:       strings.TrimRight(baseURL, "/"),
		clock:         clock,
	}
}

// NewHandle mints an opaque attachment handle for an upload.
func (s *AttachmentService) NewHandle() string {
	return "att_" + uuid.NewString()
}

// SignedURL returns an expiring fetch URL for a handle. The signature covers
// handle and expiry so neither can be swapped.
func (s *AttachmentService) SignedURL(handle string) string {
	expires := s.clock.Now().Add(s.urlTTL).Unix()
	sig := s.sign(handle, expires)
	return fmt.Sprintf("%s/%s?expires=%d&sig=%s", s.baseURL, handle, expires, sig)
}

// VerifySignedURL checks the signature and expiry of a fetch request.
func (s *AttachmentService) VerifySignedURL(handle string, expires int64, sig string) error {
	if s.clock.Now().Unix() > expires {
		return models.E(models.KindForbidden, "attachment link has expired")
	}
	expected := s.sign(handle, expires)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return models.E(models.KindForbidden, "attachment link signature is invalid")
	}
	return nil
}

func (s *AttachmentService) sign(handle string, expires int64) string {
	mac := hmac.New(sha256.New, s.signingSecret)
	mac.Write([]byte(handle))
	mac.Write([]byte(strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}
