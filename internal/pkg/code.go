package pkg

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

// NumericCode n 位数字验证码，不足位补零
func NumericCode(n int) (string, error) {
	if n <= 0 || n > 18 {
		return "", fmt.Errorf("code length %d out of range", n)
	}
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
	x, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", n, x.Int64()), nil
}

// CertificateCode 证书核验码，形如 CC-1A2B3C4D-5E6F7A8B
func CertificateCode() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "CC-" + raw[:8] + "-" + raw[8:16]
}
