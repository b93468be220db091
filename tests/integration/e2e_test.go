//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	grpcadapter "github.com/piyushhsainii/rugs.fun/internal/adapter/grpc"
	"github.com/piyushhsainii/rugs.fun/internal/adapter/repository/postgres"
	"github.com/piyushhsainii/rugs.fun/internal/config"
	"github.com/piyushhsainii/rugs.fun/internal/domain"
	"github.com/piyushhsainii/rugs.fun/internal/usecase/seeder"
)

// The server under test must run with VAULT_LEDGER=postgres against the
// same database.
var (
	db         *postgres.DB
	ledger     *postgres.Ledger
	fixtures   *seeder.SystemSeeder
	grpcClient *grpcadapter.VaultClient
	grpcConn   *grpc.ClientConn
)

// TestMain sets up the test environment
func TestMain(m *testing.M) {
	ctx := context.Background()

	// 1. Connect to Database
	var err error
	db, err = postgres.NewDB(getDBConnectionString())
	if err != nil {
		panic(fmt.Sprintf("Failed to connect to database: %v", err))
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		panic(fmt.Sprintf("Failed to migrate database: %v", err))
	}
	ledger = postgres.NewLedger(db)

	// 2. Connect to gRPC Server
	grpcConn, err = grpc.NewClient(getGRPCAddress(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		panic(fmt.Sprintf("Failed to connect to gRPC server: %v", err))
	}
	defer grpcConn.Close()

	grpcClient = grpcadapter.NewVaultClient(grpcConn)

	// 3. Self-Healing Setup: fixture mints exist, issued by the same
	// authority a SEED_FIXTURES server uses
	fixtures = seeder.NewSystemSeeder(ledger, solana.MustPublicKeyFromBase58(config.DefaultProgramID))
	if err := fixtures.Seed(ctx, nil, 0); err != nil {
		panic(fmt.Sprintf("Failed to seed fixtures: %v", err))
	}

	// Run tests
	code := m.Run()

	os.Exit(code)
}

// newFundedUser creates a wallet holding lamports for rent and usdc base
// units of the test USDC mint
func newFundedUser(t *testing.T, usdc uint64) solana.PrivateKey {
	t.Helper()
	ctx := context.Background()
	key := solana.NewWallet().PrivateKey
	pub := key.PublicKey()

	require.NoError(t, fixtures.Seed(ctx, &pub, 1_000_000_000))
	if usdc > 0 {
		_, err := fixtures.FundUser(ctx, pub, seeder.MINT_TEST_USDC, usdc)
		require.NoError(t, err)
	}
	return key
}

func signed(t *testing.T, key solana.PrivateKey, method string, fields map[string]interface{}) *structpb.Struct {
	t.Helper()
	fields["mint"] = seeder.MINT_TEST_USDC.String()
	fields["token_program"] = domain.Token2022ProgramID.String()
	req, err := grpcadapter.SignRequest(key, method, fields, time.Now().Add(time.Minute))
	require.NoError(t, err)
	return req
}

// ensureInitialized initializes the USDC vault, accepting a vault left by
// an earlier run
func ensureInitialized(t *testing.T) {
	t.Helper()
	payer := newFundedUser(t, 0)
	_, err := grpcClient.InitializeVault(getAuthContext(), signed(t, payer, grpcadapter.MethodInitializeVault, map[string]interface{}{}))
	if err != nil {
		require.Equal(t, codes.AlreadyExists, status.Code(err), "unexpected error: %v", err)
	}
}

func poolBalance(t *testing.T) uint64 {
	t.Helper()
	req, err := structpb.NewStruct(map[string]interface{}{"mint": seeder.MINT_TEST_USDC.String()})
	require.NoError(t, err)

	vault, err := grpcClient.GetVault(getAuthContext(), req)
	require.NoError(t, err)
	require.True(t, vault.GetFields()["initialized"].GetBoolValue())

	var balance uint64
	_, err = fmt.Sscan(vault.GetFields()["pool_balance"].GetStringValue(), &balance)
	require.NoError(t, err)
	return balance
}

// getAuthContext returns a context with authorization metadata
func getAuthContext() context.Context {
	token := os.Getenv("API_TOKEN")
	if token == "" {
		token = "dev-token"
	}
	md := metadata.New(map[string]string{
		"authorization": token,
	})
	return metadata.NewOutgoingContext(context.Background(), md)
}

// getDBConnectionString returns the database connection string from environment or defaults
func getDBConnectionString() string {
	connStr := os.Getenv("DB_CONN_STR")
	if connStr != "" {
		return connStr
	}

	host := os.Getenv("DB_HOST")
	if host == "" {
		host = "localhost"
	}

	port := os.Getenv("DB_PORT")
	if port == "" {
		port = "5432"
	}

	user := os.Getenv("DB_USER")
	if user == "" {
		user = "postgres"
	}

	password := os.Getenv("DB_PASSWORD")
	if password == "" {
		password = "postgres"
	}

	dbname := os.Getenv("DB_NAME")
	if dbname == "" {
		dbname = "rugsfun"
	}

	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)
}

// getGRPCAddress returns the gRPC server address from environment or defaults
func getGRPCAddress() string {
	addr := os.Getenv("GRPC_ADDRESS")
	if addr == "" {
		addr = "localhost:8080"
	}
	return addr
}

// TestEndToEndFlow tests the complete flow: Initialize -> Deposit -> Withdraw
func TestEndToEndFlow(t *testing.T) {
	ctx := getAuthContext()
	ensureInitialized(t)
	user := newFundedUser(t, 1_000_000_000_000)

	before := poolBalance(t)

	// 1. Deposit 1000 USDC
	receipt, err := grpcClient.Deposit(ctx, signed(t, user, grpcadapter.MethodDeposit, map[string]interface{}{
		"amount":   "1000",
		"decimals": 9,
	}))
	require.NoError(t, err, "Deposit should succeed")
	assert.Equal(t, "0", receipt.GetFields()["user_balance"].GetStringValue())

	// 2. Withdraw 400 USDC
	receipt, err = grpcClient.Withdraw(ctx, signed(t, user, grpcadapter.MethodWithdraw, map[string]interface{}{
		"amount":   "400",
		"decimals": 9,
	}))
	require.NoError(t, err, "Withdraw should succeed")
	assert.Equal(t, "400000000000", receipt.GetFields()["user_balance"].GetStringValue())

	// 3. Verify the pool grew by exactly 600
	assert.Equal(t, before+600_000_000_000, poolBalance(t))

	// 4. Verify the journal recorded both transfers
	var count int
	userATA, err := domain.AssociatedTokenAddress(user.PublicKey(), seeder.MINT_TEST_USDC, domain.Token2022ProgramID)
	require.NoError(t, err)
	err = db.QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM transfers WHERE source = $1 OR destination = $1`, userATA.String(),
	).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

// TestNegativeScenarios verifies rejected requests leave no trace
func TestNegativeScenarios(t *testing.T) {
	ctx := getAuthContext()
	ensureInitialized(t)
	user := newFundedUser(t, 5_000_000_000)

	// 1. Excess precision
	t.Run("ExcessPrecision", func(t *testing.T) {
		_, err := grpcClient.Deposit(ctx, signed(t, user, grpcadapter.MethodDeposit, map[string]interface{}{
			"amount":   "1.0000000001",
			"decimals": 9,
		}))
		require.Error(t, err)
		assert.Equal(t, codes.InvalidArgument, status.Code(err))
	})

	// 2. Deposit more than held
	t.Run("InsufficientUserFunds", func(t *testing.T) {
		_, err := grpcClient.Deposit(ctx, signed(t, user, grpcadapter.MethodDeposit, map[string]interface{}{
			"amount":   "5.000000001",
			"decimals": 9,
		}))
		require.Error(t, err)
		assert.Equal(t, codes.FailedPrecondition, status.Code(err))
	})

	// 3. Withdraw into an account the signer does not own
	t.Run("ForeignUserAccount", func(t *testing.T) {
		other := newFundedUser(t, 1)
		otherATA, err := domain.AssociatedTokenAddress(other.PublicKey(), seeder.MINT_TEST_USDC, domain.Token2022ProgramID)
		require.NoError(t, err)

		_, err = grpcClient.Withdraw(ctx, signed(t, user, grpcadapter.MethodWithdraw, map[string]interface{}{
			"amount":       "0.000000001",
			"decimals":     9,
			"user_account": otherATA.String(),
		}))
		require.Error(t, err)
		assert.Equal(t, codes.FailedPrecondition, status.Code(err))
	})

	// 4. Unsigned request
	t.Run("MissingSignature", func(t *testing.T) {
		req := signed(t, user, grpcadapter.MethodDeposit, map[string]interface{}{"amount": "1", "decimals": 9})
		delete(req.Fields, "signature")

		_, err := grpcClient.Deposit(ctx, req)
		require.Error(t, err)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})
}

// TestConcurrentWithdrawals races withdrawals to one user account; every
// successful withdrawal must land exactly once
func TestConcurrentWithdrawals(t *testing.T) {
	ctx := getAuthContext()
	ensureInitialized(t)
	user := newFundedUser(t, 10_000_000_000)

	_, err := grpcClient.Deposit(ctx, signed(t, user, grpcadapter.MethodDeposit, map[string]interface{}{
		"amount":   "10",
		"decimals": 9,
	}))
	require.NoError(t, err)

	reqs := make([]*structpb.Struct, 5)
	for i := range reqs {
		reqs[i] = signed(t, user, grpcadapter.MethodWithdraw, map[string]interface{}{
			"amount":   "2",
			"decimals": 9,
		})
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for _, req := range reqs {
		wg.Add(1)
		go func(req *structpb.Struct) {
			defer wg.Done()
			if _, err := grpcClient.Withdraw(ctx, req); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(req)
	}
	wg.Wait()
	assert.Positive(t, succeeded)

	var amount string
	userATA, err := domain.AssociatedTokenAddress(user.PublicKey(), seeder.MINT_TEST_USDC, domain.Token2022ProgramID)
	require.NoError(t, err)
	require.NoError(t, db.QueryRowContext(context.Background(),
		`SELECT amount FROM token_accounts WHERE address = $1`, userATA.String(),
	).Scan(&amount))

	assert.Equal(t, fmt.Sprintf("%d", uint64(succeeded)*2_000_000_000), amount)
}

// TestAirdropFlow funds a fresh wallet through the server and deposits it.
// Requires SEED_FIXTURES=true on the server.
func TestAirdropFlow(t *testing.T) {
	ctx := getAuthContext()
	ensureInitialized(t)
	user := solana.NewWallet().PrivateKey

	res, err := grpcClient.Airdrop(ctx, signed(t, user, grpcadapter.MethodAirdrop, map[string]interface{}{"amount": "3"}))
	if status.Code(err) == codes.Unimplemented {
		t.Skip("server runs without SEED_FIXTURES")
	}
	require.NoError(t, err)
	assert.Equal(t, "3000000000", res.GetFields()["amount"].GetStringValue())

	receipt, err := grpcClient.Deposit(ctx, signed(t, user, grpcadapter.MethodDeposit, map[string]interface{}{
		"amount":   "3",
		"decimals": 9,
	}))
	require.NoError(t, err)
	assert.Equal(t, "0", receipt.GetFields()["user_balance"].GetStringValue())
}
