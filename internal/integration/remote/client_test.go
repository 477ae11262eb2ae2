package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	clierr "github.com/intentfi/intentfi/internal/errors"
	"github.com/intentfi/intentfi/internal/integration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDepositPostsParams(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/blockchain/deposit", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"success":true,"data":{"transactionHash":"0xabc"}}`))
	}))
	defer srv.Close()

	client := New(srv.URL+"/", "", time.Second, 2, nil)
	res, err := client.Deposit(context.Background(), integration.LendRequest{ChainID: 44787, Token: "USDC", Amount: "10"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "0xabc", res.TransactionHash)
	assert.Equal(t, map[string]any{"chainId": float64(44787), "token": "USDC", "amount": "10"}, got)
}

func TestWriteFailureIsNotRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success":false,"message":"insufficient collateral"}`))
	}))
	defer srv.Close()

	client := New(srv.URL, "", time.Second, 3, nil)
	res, err := client.Borrow(context.Background(), integration.LendRequest{ChainID: 44787, Token: "USDC", Amount: "10"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "insufficient collateral", res.Error)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestValidationErrorIsUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"success":false,"error":"poolId is required"}`))
	}))
	defer srv.Close()

	client := New(srv.URL, "", time.Second, 0, nil)
	_, err := client.Stake(context.Background(), integration.StakeRequest{ChainID: 44787, Amount: "1"})
	require.Error(t, err)
	assert.True(t, clierr.HasCode(err, clierr.CodeUsage))
	assert.Contains(t, err.Error(), "poolId is required")
}

func TestReadsDecodeData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/blockchain/getpools":
			_, _ = w.Write([]byte(`{"success":true,"data":[{"poolId":0,"stakingToken":"CELO","rewardToken":"USDC","rewardRate":"1","totalStaked":"3","active":true}]}`))
		case "/api/blockchain/balance":
			_, _ = w.Write([]byte(`{"success":true,"data":{"chainId":44787,"token":"USDC","balance":"12.5","raw":"12500000","decimals":6}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := New(srv.URL, "", time.Second, 0, nil)
	pools, err := client.PoolInformation(context.Background(), 44787)
	require.NoError(t, err)
	require.Len(t, pools, 1)
	assert.Equal(t, "CELO", pools[0].StakingToken)
	assert.True(t, pools[0].Active)

	bal, err := client.TokenBalance(context.Background(), integration.BalanceRequest{ChainID: 44787, Token: "USDC"})
	require.NoError(t, err)
	assert.Equal(t, "12.5", bal.Balance)
}

func TestReadRejectedIsDispatchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error":"pool not found"}`))
	}))
	defer srv.Close()

	client := New(srv.URL, "", time.Second, 0, nil)
	_, err := client.UserPoolInformation(context.Background(), integration.UserPoolRequest{ChainID: 44787, PoolID: 9, User: "0x00000000000000000000000000000000000000bb"})
	require.Error(t, err)
	assert.True(t, clierr.HasCode(err, clierr.CodeDispatch))
}

func TestBearerTokenAndAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"success":false,"error":"bad token"}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"data":{"token":"USDC","balance":"1.5"}}`))
	}))
	defer srv.Close()

	bal, err := New(srv.URL, "s3cret", time.Second, 0, nil).TokenBalance(context.Background(), integration.BalanceRequest{ChainID: 44787, Token: "USDC"})
	require.NoError(t, err)
	assert.Equal(t, "1.5", bal.Balance)

	_, err = New(srv.URL, "wrong", time.Second, 0, nil).TokenBalance(context.Background(), integration.BalanceRequest{ChainID: 44787, Token: "USDC"})
	assert.True(t, clierr.HasCode(err, clierr.CodeAuth))
}
