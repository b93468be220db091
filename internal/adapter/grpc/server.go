package grpc

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/piyushhsainii/rugs.fun/internal/adapter/metrics"
	"github.com/piyushhsainii/rugs.fun/internal/domain"
	"github.com/piyushhsainii/rugs.fun/internal/usecase/authority"
	"github.com/piyushhsainii/rugs.fun/internal/usecase/initializer"
	"github.com/piyushhsainii/rugs.fun/internal/usecase/overview"
	"github.com/piyushhsainii/rugs.fun/internal/usecase/seeder"
	"github.com/piyushhsainii/rugs.fun/internal/usecase/transfer"
)

// Faucet credits development funds to a wallet
type Faucet interface {
	Airdrop(ctx context.Context, owner, mint solana.PublicKey, amount string) (*seeder.AirdropResult, error)
}

// Server implements VaultServiceServer
type Server struct {
	InitializerService *initializer.InitializerService
	TransferService    *transfer.TransferService
	OverviewService    *overview.OverviewService
	Deriver            *authority.Deriver
	Verifier           *SignatureVerifier
	Metrics            *metrics.Metrics

	// SignerLimit bounds requests per verified signer; nil disables it
	SignerLimit *RateLimiter
	// Faucet serves Airdrop; nil leaves it unimplemented
	Faucet Faucet
}

var _ VaultServiceServer = (*Server)(nil)

// NewServer creates a new gRPC server instance. m may be nil.
func NewServer(
	initializerService *initializer.InitializerService,
	transferService *transfer.TransferService,
	overviewService *overview.OverviewService,
	deriver *authority.Deriver,
	verifier *SignatureVerifier,
	m *metrics.Metrics,
) *Server {
	return &Server{
		InitializerService: initializerService,
		TransferService:    transferService,
		OverviewService:    overviewService,
		Deriver:            deriver,
		Verifier:           verifier,
		Metrics:            m,
	}
}

// WithSignerLimit sets the per-signer rate limiter
func (s *Server) WithSignerLimit(rl *RateLimiter) *Server {
	s.SignerLimit = rl
	return s
}

// WithFaucet enables the Airdrop RPC
func (s *Server) WithFaucet(f Faucet) *Server {
	s.Faucet = f
	return s
}

// authenticate verifies req and charges its signer's rate limit. Only a
// verified signer is charged, so forged requests cannot spend another
// wallet's budget.
func (s *Server) authenticate(method string, req *structpb.Struct) (solana.PublicKey, error) {
	signer, err := s.Verifier.Verify(method, req)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if s.SignerLimit != nil && !s.SignerLimit.Allow("signer:"+signer.String()) {
		if s.Metrics != nil {
			s.Metrics.ObserveRateLimited(metrics.ScopeSigner)
		}
		return solana.PublicKey{}, status.Error(codes.ResourceExhausted, "rate limit exceeded")
	}
	return signer, nil
}

// InitializeVault handles the InitializeVault RPC. The signer pays rent.
func (s *Server) InitializeVault(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	signer, err := s.authenticate(MethodInitializeVault, req)
	if err != nil {
		return nil, err
	}

	asset, err := parseAsset(req)
	if err != nil {
		return nil, err
	}

	auth, err := s.Deriver.Vault()
	if err != nil {
		return nil, mapError(err)
	}
	authorityAddr, err := optionalKey(req, "authority", auth.Address)
	if err != nil {
		return nil, err
	}

	// Call usecase service
	res, err := s.InitializerService.InitializeVault(ctx, initializer.InitializeInput{
		Payer:        signer,
		Authority:    authorityAddr,
		Mint:         asset.mint,
		TokenProgram: asset.tokenProgram,
	})
	if err != nil {
		return nil, mapError(err)
	}

	// Build response
	return newStruct(map[string]interface{}{
		"authority":    res.Authority.Address.String(),
		"bump":         int(res.Authority.Bump),
		"pool_account": res.PoolAccount.String(),
		"rent_paid":    formatUnits(res.RentPaid),
	})
}

// Deposit handles the Deposit RPC
func (s *Server) Deposit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.transfer(ctx, MethodDeposit, domain.DirectionDeposit, req, s.TransferService.Deposit)
}

// Withdraw handles the Withdraw RPC
func (s *Server) Withdraw(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.transfer(ctx, MethodWithdraw, domain.DirectionWithdraw, req, s.TransferService.Withdraw)
}

type transferFunc func(ctx context.Context, input transfer.TransferInput) (*domain.TransferReceipt, error)

func (s *Server) transfer(ctx context.Context, method string, direction domain.Direction, req *structpb.Struct, fn transferFunc) (*structpb.Struct, error) {
	signer, err := s.authenticate(method, req)
	if err != nil {
		return nil, err
	}

	input, err := s.parseTransfer(req, signer)
	if err != nil {
		if s.Metrics != nil {
			s.Metrics.ObserveTransfer(direction, err)
		}
		return nil, mapError(err)
	}

	receipt, err := fn(ctx, input)
	if s.Metrics != nil {
		s.Metrics.ObserveTransfer(direction, err)
	}
	if err != nil {
		return nil, mapError(err)
	}

	return receiptToStruct(receipt)
}

// parseTransfer resolves a transfer request. Omitted account fields default
// to their canonical addresses; supplied ones are checked by the engine.
func (s *Server) parseTransfer(req *structpb.Struct, signer solana.PublicKey) (transfer.TransferInput, error) {
	asset, err := parseAsset(req)
	if err != nil {
		return transfer.TransferInput{}, err
	}

	decimals, err := uint8Field(req, "decimals")
	if err != nil {
		return transfer.TransferInput{}, err
	}

	amount, err := domain.ParseUIAmount(req.GetFields()["amount"].GetStringValue(), decimals)
	if err != nil {
		return transfer.TransferInput{}, err
	}

	auth, err := s.Deriver.Vault()
	if err != nil {
		return transfer.TransferInput{}, err
	}
	authorityAddr, err := optionalKey(req, "authority", auth.Address)
	if err != nil {
		return transfer.TransferInput{}, err
	}

	canonicalPool, err := domain.AssociatedTokenAddress(authorityAddr, asset.mint, asset.tokenProgram)
	if err != nil {
		return transfer.TransferInput{}, err
	}
	pool, err := optionalKey(req, "pool_account", canonicalPool)
	if err != nil {
		return transfer.TransferInput{}, err
	}

	canonicalUser, err := domain.AssociatedTokenAddress(signer, asset.mint, asset.tokenProgram)
	if err != nil {
		return transfer.TransferInput{}, err
	}
	user, err := optionalKey(req, "user_account", canonicalUser)
	if err != nil {
		return transfer.TransferInput{}, err
	}

	return transfer.TransferInput{
		Signer:       signer,
		Authority:    authorityAddr,
		PoolAccount:  pool,
		UserAccount:  user,
		Mint:         asset.mint,
		TokenProgram: asset.tokenProgram,
		Amount:       amount,
		Decimals:     decimals,
	}, nil
}

// GetVault handles the GetVault RPC
func (s *Server) GetVault(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	mint, err := requiredKey(req, "mint")
	if err != nil {
		return nil, err
	}

	vault, err := s.OverviewService.GetVault(ctx, mint)
	if err != nil {
		return nil, mapError(err)
	}

	return newStruct(map[string]interface{}{
		"authority":       vault.Authority.Address.String(),
		"bump":            int(vault.Authority.Bump),
		"initialized":     vault.Initialized,
		"mint":            vault.Mint.String(),
		"decimals":        int(vault.Decimals),
		"pool_account":    vault.PoolAccount.String(),
		"pool_balance":    formatUnits(vault.PoolBalance),
		"pool_ui_balance": vault.PoolUIBalance.String(),
	})
}

// ListTransfers handles the ListTransfers RPC, newest transfers first
func (s *Server) ListTransfers(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	mint, err := requiredKey(req, "mint")
	if err != nil {
		return nil, err
	}

	limit := 0
	if v, ok := req.GetFields()["limit"].GetKind().(*structpb.Value_NumberValue); ok {
		n := v.NumberValue
		if n < 0 || n > math.MaxInt32 || n != math.Trunc(n) {
			return nil, status.Errorf(codes.InvalidArgument, "invalid limit: %v", n)
		}
		limit = int(n)
	}

	transfers, err := s.OverviewService.RecentTransfers(ctx, mint, limit)
	if err != nil {
		return nil, mapError(err)
	}

	list := make([]interface{}, 0, len(transfers))
	for _, tr := range transfers {
		list = append(list, map[string]interface{}{
			"id":          tr.ID.String(),
			"source":      tr.Source.String(),
			"destination": tr.Destination.String(),
			"authority":   tr.Authority.String(),
			"amount":      formatUnits(tr.Amount),
			"decimals":    int(tr.Decimals),
		})
	}
	return newStruct(map[string]interface{}{
		"mint":      mint.String(),
		"transfers": list,
	})
}

// Airdrop handles the Airdrop RPC, crediting development funds to the signer
func (s *Server) Airdrop(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.Faucet == nil {
		return nil, status.Error(codes.Unimplemented, "airdrop is disabled")
	}

	signer, err := s.authenticate(MethodAirdrop, req)
	if err != nil {
		return nil, err
	}
	mint, err := requiredKey(req, "mint")
	if err != nil {
		return nil, err
	}

	res, err := s.Faucet.Airdrop(ctx, signer, mint, req.GetFields()["amount"].GetStringValue())
	if err != nil {
		return nil, mapError(err)
	}

	return newStruct(map[string]interface{}{
		"account":  res.Account.Address.String(),
		"mint":     mint.String(),
		"amount":   formatUnits(res.Credited),
		"decimals": int(res.Decimals),
		"balance":  formatUnits(res.Account.Amount),
	})
}

type assetFields struct {
	mint         solana.PublicKey
	tokenProgram solana.PublicKey
}

// parseAsset reads mint and token_program; token_program defaults to the
// classic token program
func parseAsset(req *structpb.Struct) (assetFields, error) {
	mint, err := requiredKey(req, "mint")
	if err != nil {
		return assetFields{}, err
	}
	program, err := optionalKey(req, "token_program", solana.TokenProgramID)
	if err != nil {
		return assetFields{}, err
	}
	return assetFields{mint: mint, tokenProgram: program}, nil
}

func requiredKey(req *structpb.Struct, name string) (solana.PublicKey, error) {
	raw := req.GetFields()[name].GetStringValue()
	if raw == "" {
		return solana.PublicKey{}, status.Errorf(codes.InvalidArgument, "%s is required", name)
	}
	key, err := solana.PublicKeyFromBase58(raw)
	if err != nil {
		return solana.PublicKey{}, status.Errorf(codes.InvalidArgument, "invalid %s format: %v", name, err)
	}
	return key, nil
}

func optionalKey(req *structpb.Struct, name string, fallback solana.PublicKey) (solana.PublicKey, error) {
	if req.GetFields()[name].GetStringValue() == "" {
		return fallback, nil
	}
	return requiredKey(req, name)
}

func uint8Field(req *structpb.Struct, name string) (uint8, error) {
	v, ok := req.GetFields()[name].GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, status.Errorf(codes.InvalidArgument, "%s is required", name)
	}
	n := v.NumberValue
	if n < 0 || n > math.MaxUint8 || n != math.Trunc(n) {
		return 0, status.Errorf(codes.InvalidArgument, "invalid %s: %v", name, n)
	}
	return uint8(n), nil
}

func receiptToStruct(r *domain.TransferReceipt) (*structpb.Struct, error) {
	return newStruct(map[string]interface{}{
		"id":           r.ID.String(),
		"direction":    string(r.Direction),
		"signer":       r.Signer.String(),
		"mint":         r.Mint.String(),
		"amount":       formatUnits(r.Amount),
		"ui_amount":    r.UIAmount.String(),
		"pool_balance": formatUnits(r.PoolBalance),
		"user_balance": formatUnits(r.UserBalance),
		"executed_at":  r.ExecutedAt.UTC().Format(time.RFC3339Nano),
	})
}

func newStruct(fields map[string]interface{}) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to build response: %v", err)
	}
	return out, nil
}

// base units travel as decimal strings; float64 loses precision above 2^53
func formatUnits(v uint64) string {
	return strconv.FormatUint(v, 10)
}

// mapError converts domain errors to gRPC status errors
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	errorMsg := err.Error()

	switch domain.KindOf(err) {
	case domain.KindAlreadyInitialized:
		return status.Errorf(codes.AlreadyExists, "%s", errorMsg)
	case domain.KindInvalidAssetType, domain.KindPrecisionMismatch:
		return status.Errorf(codes.InvalidArgument, "%s", errorMsg)
	case domain.KindAccountMismatch, domain.KindAuthorityMismatch, domain.KindInsufficientFunds:
		return status.Errorf(codes.FailedPrecondition, "%s", errorMsg)
	case domain.KindDerivationExhausted:
		return status.Errorf(codes.Internal, "%s", errorMsg)
	}

	switch {
	case errors.Is(err, domain.ErrInvalidAmount):
		return status.Errorf(codes.InvalidArgument, "%s", errorMsg)
	case errors.Is(err, domain.ErrAccountNotFound):
		return status.Errorf(codes.NotFound, "%s", errorMsg)
	case errors.Is(err, context.Canceled):
		return status.Errorf(codes.Canceled, "%s", errorMsg)
	case errors.Is(err, context.DeadlineExceeded):
		return status.Errorf(codes.DeadlineExceeded, "%s", errorMsg)
	}

	// Default to Internal error for unknown errors
	return status.Errorf(codes.Internal, "%s", errorMsg)
}
