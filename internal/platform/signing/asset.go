// Package signing issues short-lived HMAC-signed URLs for cover and avatar
// asset uploads. The asset gateway verifies the same parameters before
// accepting a PUT.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type Signer struct {
	Secret []byte
}

type Signed struct {
	ObjectKey string
	Exp       int64
	UID       string
	Sig       string
}

func New(secret string) *Signer {
	return &Signer{Secret: []byte(secret)}
}

// Sign binds an object key to a user and expiry.
func (s *Signer) Sign(objectKey, userID string, exp time.Time) Signed {
	sig := s.signValue(objectKey, userID, exp.Unix())
	return Signed{ObjectKey: objectKey, Exp: exp.Unix(), UID: userID, Sig: sig}
}

// Verify checks the signature and expiry for an upload request.
func (s *Signer) Verify(objectKey, userID string, exp int64, sig string) bool {
	if time.Now().Unix() > exp {
		return false
	}
	return hmac.Equal([]byte(sig), []byte(s.signValue(objectKey, userID, exp)))
}

func (s *Signer) signValue(objectKey, userID string, exp int64) string {
	mac := hmac.New(sha256.New, s.Secret)
	mac.Write([]byte(objectKey))
	mac.Write([]byte("|"))
	mac.Write([]byte(userID))
	mac.Write([]byte("|"))
	mac.Write([]byte(strconv.FormatInt(exp, 10)))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// BuildUploadURL appends the signed parameters to the asset gateway base URL.
func BuildUploadURL(base string, signed Signed) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("key", signed.ObjectKey)
	q.Set("exp", strconv.FormatInt(signed.Exp, 10))
	q.Set("uid", signed.UID)
	q.Set("sig", signed.Sig)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ExtractSigned parses the signed parameters back out of a request query.
func ExtractSigned(query url.Values) (string, string, int64, string, error) {
	objectKey := strings.TrimSpace(query.Get("key"))
	uid := strings.TrimSpace(query.Get("uid"))
	expStr := strings.TrimSpace(query.Get("exp"))
	sig := strings.TrimSpace(query.Get("sig"))
	if objectKey == "" || uid == "" || expStr == "" || sig == "" {
		return "", "", 0, "", fmt.Errorf("missing signed params")
	}
	exp, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		return "", "", 0, "", err
	}
	return objectKey, uid, exp, sig, nil
}
