package app

import (
	"crypto/rand"
	"encoding/hex"
)

const (
	orderRefPrefix   = "pf_order_"
	paymentRefPrefix = "pf_pay_"
	refundRefPrefix  = "pf_rfnd_"
	keyIDPrefix      = "pf_key_"
	keySecretPrefix  = "pf_sec_"
)

// token returns prefix followed by n random bytes in hex.
func token(prefix string, n int) string {
	b := make([]byte, n)
	// crypto/rand.Read never returns an error on supported platforms.
	_, _ = rand.Read(b)
	return prefix + hex.EncodeToString(b)
}

func newOrderRef() string { return token(orderRefPrefix, 10) }
func newPaymentRef() string { return token(paymentRefPrefix, 10) }
func newRefundRef() string { return token(refundRefPrefix, 10) }
