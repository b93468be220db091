package grpc

import (
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const signaturePrefix = "rugs.fun vault v1"

// signedFields are covered by the request signature, in this order
var signedFields = []string{
	"signer",
	"mint",
	"token_program",
	"amount",
	"decimals",
	"authority",
	"pool_account",
	"user_account",
	"expires_at",
}

// CanonicalMessage renders the bytes a signer signs for method. Absent
// fields render empty so that adding one changes the message.
func CanonicalMessage(method string, req *structpb.Struct) []byte {
	var b strings.Builder
	b.WriteString(signaturePrefix)
	b.WriteString("\nmethod:")
	b.WriteString(method)
	for _, name := range signedFields {
		b.WriteByte('\n')
		b.WriteString(name)
		b.WriteByte(':')
		b.WriteString(renderValue(req.GetFields()[name]))
	}
	return []byte(b.String())
}

func renderValue(v *structpb.Value) string {
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return k.StringValue
	case *structpb.Value_NumberValue:
		return strconv.FormatFloat(k.NumberValue, 'f', -1, 64)
	case *structpb.Value_BoolValue:
		return strconv.FormatBool(k.BoolValue)
	default:
		return ""
	}
}

// SignRequest builds a request for method from fields, signed by key and
// valid until expiresAt
func SignRequest(key solana.PrivateKey, method string, fields map[string]interface{}, expiresAt time.Time) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	req.Fields["signer"] = structpb.NewStringValue(key.PublicKey().String())
	req.Fields["expires_at"] = structpb.NewNumberValue(float64(expiresAt.Unix()))

	sig, err := key.Sign(CanonicalMessage(method, req))
	if err != nil {
		return nil, err
	}
	req.Fields["signature"] = structpb.NewStringValue(base58.Encode(sig[:]))

	return req, nil
}

// SignatureVerifier authenticates mutating requests. A request is accepted
// when its signature by signer covers the canonical message and expires_at
// lies within MaxAge of now.
type SignatureVerifier struct {
	MaxAge time.Duration
	now    func() time.Time
}

// NewSignatureVerifier creates a verifier accepting requests that expire at
// most maxAge in the future
func NewSignatureVerifier(maxAge time.Duration) *SignatureVerifier {
	return &SignatureVerifier{MaxAge: maxAge, now: time.Now}
}

// Verify returns the authenticated signer of req
func (v *SignatureVerifier) Verify(method string, req *structpb.Struct) (solana.PublicKey, error) {
	fields := req.GetFields()

	signer, err := solana.PublicKeyFromBase58(fields["signer"].GetStringValue())
	if err != nil {
		return solana.PublicKey{}, status.Error(codes.Unauthenticated, "missing or malformed signer")
	}

	expiresAt, ok := fields["expires_at"].GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return solana.PublicKey{}, status.Error(codes.Unauthenticated, "missing expires_at")
	}
	expiry := time.Unix(int64(expiresAt.NumberValue), 0)
	now := v.now()
	if !expiry.After(now) {
		return solana.PublicKey{}, status.Error(codes.Unauthenticated, "request expired")
	}
	if expiry.Sub(now) > v.MaxAge {
		return solana.PublicKey{}, status.Errorf(codes.Unauthenticated, "expires_at more than %s ahead", v.MaxAge)
	}

	var sig solana.Signature
	raw, err := base58.Decode(fields["signature"].GetStringValue())
	if err != nil || len(raw) != len(sig) {
		return solana.PublicKey{}, status.Error(codes.Unauthenticated, "missing or malformed signature")
	}
	copy(sig[:], raw)

	if !sig.Verify(signer, CanonicalMessage(method, req)) {
		return solana.PublicKey{}, status.Error(codes.Unauthenticated, "invalid signature")
	}

	return signer, nil
}
