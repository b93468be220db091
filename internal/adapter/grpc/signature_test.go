package grpc

import (
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestSignatureVerifier_Verify(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	key := solana.NewWallet().PrivateKey
	fields := map[string]interface{}{
		"mint":     solana.NewWallet().PublicKey().String(),
		"amount":   "12.5",
		"decimals": 6,
	}

	verifier := NewSignatureVerifier(time.Minute)
	verifier.now = func() time.Time { return now }

	tests := []struct {
		name    string
		build   func(t *testing.T) *structpb.Struct
		method  string
		wantErr string
	}{
		{
			name: "Valid signature",
			build: func(t *testing.T) *structpb.Struct {
				req, err := SignRequest(key, MethodDeposit, fields, now.Add(30*time.Second))
				require.NoError(t, err)
				return req
			},
			method: MethodDeposit,
		},
		{
			name: "Signed for another method",
			build: func(t *testing.T) *structpb.Struct {
				req, err := SignRequest(key, MethodDeposit, fields, now.Add(30*time.Second))
				require.NoError(t, err)
				return req
			},
			method:  MethodWithdraw,
			wantErr: "invalid signature",
		},
		{
			name: "Tampered amount",
			build: func(t *testing.T) *structpb.Struct {
				req, err := SignRequest(key, MethodDeposit, fields, now.Add(30*time.Second))
				require.NoError(t, err)
				req.Fields["amount"] = structpb.NewStringValue("1250")
				return req
			},
			method:  MethodDeposit,
			wantErr: "invalid signature",
		},
		{
			name: "Added account override",
			build: func(t *testing.T) *structpb.Struct {
				req, err := SignRequest(key, MethodDeposit, fields, now.Add(30*time.Second))
				require.NoError(t, err)
				req.Fields["user_account"] = structpb.NewStringValue(solana.NewWallet().PublicKey().String())
				return req
			},
			method:  MethodDeposit,
			wantErr: "invalid signature",
		},
		{
			name: "Claimed by another signer",
			build: func(t *testing.T) *structpb.Struct {
				req, err := SignRequest(key, MethodDeposit, fields, now.Add(30*time.Second))
				require.NoError(t, err)
				req.Fields["signer"] = structpb.NewStringValue(solana.NewWallet().PublicKey().String())
				return req
			},
			method:  MethodDeposit,
			wantErr: "invalid signature",
		},
		{
			name: "Expired",
			build: func(t *testing.T) *structpb.Struct {
				req, err := SignRequest(key, MethodDeposit, fields, now.Add(-time.Second))
				require.NoError(t, err)
				return req
			},
			method:  MethodDeposit,
			wantErr: "request expired",
		},
		{
			name: "Expiry too far ahead",
			build: func(t *testing.T) *structpb.Struct {
				req, err := SignRequest(key, MethodDeposit, fields, now.Add(time.Hour))
				require.NoError(t, err)
				return req
			},
			method:  MethodDeposit,
			wantErr: "ahead",
		},
		{
			name: "Missing signature",
			build: func(t *testing.T) *structpb.Struct {
				req, err := SignRequest(key, MethodDeposit, fields, now.Add(30*time.Second))
				require.NoError(t, err)
				delete(req.Fields, "signature")
				return req
			},
			method:  MethodDeposit,
			wantErr: "malformed signature",
		},
		{
			name: "Missing signer",
			build: func(t *testing.T) *structpb.Struct {
				req, err := structpb.NewStruct(fields)
				require.NoError(t, err)
				return req
			},
			method:  MethodDeposit,
			wantErr: "malformed signer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signer, err := verifier.Verify(tt.method, tt.build(t))
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, key.PublicKey(), signer)
				return
			}
			st, ok := status.FromError(err)
			require.True(t, ok, "error should be a gRPC status")
			assert.Equal(t, codes.Unauthenticated, st.Code())
			assert.Contains(t, st.Message(), tt.wantErr)
		})
	}
}

func TestCanonicalMessage_IsStable(t *testing.T) {
	req, err := structpb.NewStruct(map[string]interface{}{
		"signer":     "S",
		"mint":       "M",
		"amount":     "1.5",
		"decimals":   9,
		"expires_at": 1700000000,
	})
	require.NoError(t, err)

	want := "rugs.fun vault v1\n" +
		"method:Deposit\n" +
		"signer:S\n" +
		"mint:M\n" +
		"token_program:\n" +
		"amount:1.5\n" +
		"decimals:9\n" +
		"authority:\n" +
		"pool_account:\n" +
		"user_account:\n" +
		"expires_at:1700000000"
	assert.Equal(t, want, string(CanonicalMessage(MethodDeposit, req)))
}
