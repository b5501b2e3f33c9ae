package gateway

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// ErrMalformedNotification is returned when a webhook body is not a JSON
// object or lacks the fields required to resolve a payment.
var ErrMalformedNotification = errors.New("malformed gateway notification")

// settlementTimeLayout is the gateway's local-time format. RFC 3339 is
// accepted as a fallback.
const settlementTimeLayout = "2006-01-02 15:04:05"

// ParseNotification decodes a gateway notification body. The decoder is
// deliberately tolerant: unknown fields are skipped, gross_amount may be
// a JSON string or number, and null values read as absent. The raw body
// is retained for the append-only audit log.
func ParseNotification(body []byte) (*Notification, error) {
	n := &Notification{Raw: append([]byte(nil), body...)}

	d := jx.DecodeBytes(body)
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if d.Next() == jx.Null {
			return d.Null()
		}
		switch string(key) {
		case "order_id":
			return readStr(d, &n.OrderRef)
		case "transaction_id":
			return readStr(d, &n.TransactionID)
		case "transaction_status":
			return readStr(d, &n.TransactionStatus)
		case "fraud_status":
			return readStr(d, &n.FraudStatus)
		case "payment_type":
			return readStr(d, &n.PaymentType)
		case "status_code":
			return readStrOrNum(d, &n.StatusCode)
		case "gross_amount":
			return readStrOrNum(d, &n.GrossAmount)
		case "signature_key":
			return readStr(d, &n.SignatureKey)
		case "settlement_time":
			var raw string
			if err := readStr(d, &raw); err != nil {
				return err
			}
			if t, ok := parseGatewayTime(raw); ok {
				n.SettlementTime = &t
			}
			return nil
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, errors.Wrap(ErrMalformedNotification, err.Error())
	}

	if n.OrderRef == "" && n.TransactionID == "" {
		return nil, errors.Wrap(ErrMalformedNotification, "no order_id or transaction_id")
	}
	if n.TransactionStatus == "" {
		return nil, errors.Wrap(ErrMalformedNotification, "no transaction_status")
	}
	return n, nil
}

func readStr(d *jx.Decoder, dst *string) error {
	s, err := d.Str()
	if err != nil {
		return err
	}
	*dst = s
	return nil
}

// readStrOrNum accepts both "300000.00" and 300000 for fields some
// gateway versions send as numbers.
func readStrOrNum(d *jx.Decoder, dst *string) error {
	if d.Next() == jx.String {
		return readStr(d, dst)
	}
	num, err := d.Num()
	if err != nil {
		return err
	}
	*dst = string(num)
	return nil
}

func parseGatewayTime(raw string) (time.Time, bool) {
	if t, err := time.Parse(settlementTimeLayout, raw); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// VerifySignature checks the shared-secret signature some gateway
// configurations attach: hex(sha512(order_id + status_code +
// gross_amount + serverKey)). Comparison is constant time.
func VerifySignature(n *Notification, serverKey string) bool {
	h := sha512.New()
	h.Write([]byte(n.OrderRef))
	h.Write([]byte(n.StatusCode))
	h.Write([]byte(n.GrossAmount))
	h.Write([]byte(serverKey))
	want := hex.EncodeToString(h.Sum(nil))

	return subtle.ConstantTimeCompare([]byte(want), []byte(n.SignatureKey)) == 1
}
